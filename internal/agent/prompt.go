package agent

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/salebot/internal/business"
)

// BuildSystemPrompt renders the tenant persona plus catalog, scripts and
// conversation context. Product lines carry name, price and status only;
// details come from get_product_info.
func BuildSystemPrompt(biz *business.BusinessConfig, summary, offHoursNote string) string {
	var b strings.Builder

	identity := strings.TrimSpace(biz.Identity)
	if identity == "" {
		identity = fmt.Sprintf("คุณคือผู้ช่วยฝ่ายขายของร้าน %s", biz.Name)
	}
	b.WriteString(identity)
	b.WriteString("\n")

	if len(biz.Products) > 0 {
		b.WriteString("\n## สินค้า\n")
		for _, p := range biz.Products {
			fmt.Fprintf(&b, "- %s | %s บาท | %s\n", p.Name, business.FormatPrice(p.Price), business.StatusLabel(p.Status))
		}
	}
	if len(biz.Categories) > 0 {
		fmt.Fprintf(&b, "\n## หมวดหมู่\n%s\n", strings.Join(biz.Categories, ", "))
	}
	if len(biz.SaleScripts) > 0 {
		b.WriteString("\n## สคริปต์การขายที่มี (ค้นด้วย search_sale_script)\n")
		for _, s := range biz.SaleScripts {
			title := s.Title
			if title == "" {
				title = s.ID
			}
			fmt.Fprintf(&b, "- %s\n", title)
		}
	}
	if biz.OrderChannel != "" {
		fmt.Fprintf(&b, "\n## ช่องทางสั่งซื้อ\n%s\n", biz.OrderChannel)
	}
	if summary != "" {
		fmt.Fprintf(&b, "\n## สรุปบทสนทนาก่อนหน้า\n%s\n", summary)
	}
	if offHoursNote != "" {
		fmt.Fprintf(&b, "\n## หมายเหตุ\n%s\n", offHoursNote)
	}

	b.WriteString(`
## แนวทาง
- ตอบเป็นภาษาไทย สุภาพ กระชับ ลงท้ายด้วย ค่ะ
- ก่อนยืนยันราคาหรือสถานะสินค้า ให้เรียก get_product_info
- คำถามเรื่องนโยบาย การรับประกัน การจัดส่ง ให้เรียก search_knowledge
- ถ้าลูกค้าไม่พอใจหรือต้องการคุยกับคน ให้เรียก analyze_sentiment แล้ว flag_for_admin
- ห้ามแต่งข้อมูลที่ไม่มีในร้าน`)
	return b.String()
}
