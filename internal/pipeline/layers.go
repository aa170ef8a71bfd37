package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/salebot/internal/business"
	"github.com/nextlevelbuilder/salebot/internal/store"
	"github.com/nextlevelbuilder/salebot/internal/tools"
)

const (
	escalationReason = "customer requested admin"
	maxDocReplyWidth = 800
)

// longestPhrase returns the longest phrase contained in msg. Ties keep the
// earlier phrase so the result is stable.
func longestPhrase(msg string, phrases []string) (string, bool) {
	best, found := "", false
	for _, p := range phrases {
		if !business.ContainsText(msg, p) {
			continue
		}
		if !found || business.RuneLen(p) > business.RuneLen(best) {
			best, found = p, true
		}
	}
	return best, found
}

func matchAdminEscalation(_ context.Context, in *Input) (*Match, error) {
	rule := in.Triggers.AdminEscalation
	if _, ok := longestPhrase(in.Message, rule.Phrases); !ok {
		return nil, nil
	}
	return &Match{
		Content: rule.Response,
		Flag: &Flag{
			Reason:  escalationReason,
			Urgency: store.UrgencyHigh,
			Source:  NameAdminEscalation,
		},
	}, nil
}

func hoursMatcher(gate NoticeGate) func(context.Context, *Input) (*Match, error) {
	return func(ctx context.Context, in *Input) (*Match, error) {
		hours := in.Business.Hours
		if !in.Closed || !hours.NotifyWhenClosed {
			return nil, nil
		}
		// Within the cooldown the message falls through and later layers
		// answer with the off-hours note in context.
		if gate != nil && !gate.ClaimOfflineNotice(ctx, in.Business.ID, in.UserID) {
			return nil, nil
		}
		msg := hours.ClosedMessage
		if msg == "" {
			msg = in.Triggers.ClosedNotice
		}
		if msg == "" {
			return nil, nil
		}
		return &Match{Content: msg}, nil
	}
}

// matchStockInquiry answers "is X in stock" when the message names a
// catalog product. Without a product the agent asks which one.
func matchStockInquiry(_ context.Context, in *Input) (*Match, error) {
	if _, ok := longestPhrase(in.Message, in.Triggers.StockInquiry.Phrases); !ok {
		return nil, nil
	}
	p, _ := tools.FindProduct(in.Business, in.Message, "")
	if p == nil {
		return nil, nil
	}

	var b strings.Builder
	switch p.Status {
	case business.StatusOutOfStock:
		fmt.Fprintf(&b, "%s ตอนนี้สินค้าหมดชั่วคราวค่ะ 🙏", p.Name)
	case business.StatusPreorder:
		fmt.Fprintf(&b, "%s เปิดให้สั่งจองล่วงหน้าค่ะ", p.Name)
	case business.StatusDiscontinued:
		fmt.Fprintf(&b, "%s เลิกจำหน่ายแล้วค่ะ", p.Name)
	default:
		fmt.Fprintf(&b, "%s มีสินค้าพร้อมส่งค่ะ ✅", p.Name)
	}
	fmt.Fprintf(&b, "\n💰 ราคา: %s บาท", business.FormatPrice(p.Price))
	if in.Business.OrderChannel != "" && p.Status != business.StatusDiscontinued {
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(in.Business.OrderChannel))
	}
	return &Match{Content: b.String()}, nil
}

func matchContactChannel(_ context.Context, in *Input) (*Match, error) {
	rule := in.Triggers.ContactChannel
	if _, ok := longestPhrase(in.Message, rule.Phrases); !ok {
		return nil, nil
	}
	reply := strings.TrimSpace(in.Business.OrderChannel)
	if reply == "" {
		reply = rule.Response
	}
	if reply == "" {
		return nil, nil
	}
	return &Match{Content: reply}, nil
}

func matchDiscontinued(_ context.Context, in *Input) (*Match, error) {
	var (
		hit      *business.Discontinued
		hitName  string
		hitRunes int
	)
	for i := range in.Business.Discontinued {
		d := &in.Business.Discontinued[i]
		if name, ok := longestPhrase(in.Message, d.Names); ok && business.RuneLen(name) > hitRunes {
			hit, hitName, hitRunes = d, name, business.RuneLen(name)
		}
	}
	if hit == nil {
		return nil, nil
	}
	if hit.Message != "" {
		return &Match{Content: hit.Message}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "รุ่น %s เลิกจำหน่ายแล้วค่ะ 🙏", hitName)
	if hit.Replacement != "" {
		fmt.Fprintf(&b, "\nแนะนำ %s แทนค่ะ", hit.Replacement)
		if p, _ := tools.FindProduct(in.Business, hit.Replacement, ""); p != nil {
			fmt.Fprintf(&b, " ราคา %s บาท (%s)", business.FormatPrice(p.Price), business.StatusLabel(p.Status))
		}
	}
	return &Match{Content: b.String()}, nil
}

// matchSaleScript picks the script whose matched trigger is the most
// specific (longest); earlier scripts win ties.
func matchSaleScript(_ context.Context, in *Input) (*Match, error) {
	var (
		best  *business.SaleScript
		runes int
	)
	for i := range in.Business.SaleScripts {
		s := &in.Business.SaleScripts[i]
		if t, ok := longestPhrase(in.Message, s.Triggers); ok && business.RuneLen(t) > runes {
			best, runes = s, business.RuneLen(t)
		}
	}
	if best == nil {
		return nil, nil
	}
	return &Match{Content: best.Reply}, nil
}

func matchFAQ(_ context.Context, in *Input) (*Match, error) {
	var (
		best  *business.FAQ
		runes int
	)
	for i := range in.Business.FAQ {
		f := &in.Business.FAQ[i]
		phrases := append([]string{f.Question}, f.Keywords...)
		if p, ok := longestPhrase(in.Message, phrases); ok && business.RuneLen(p) > runes {
			best, runes = f, business.RuneLen(p)
		}
	}
	if best == nil {
		return nil, nil
	}
	return &Match{Content: best.Answer}, nil
}

// matchKnowledge answers from a document only on one of its explicit
// trigger phrases; looser matching is left to the agent's search tool.
func matchKnowledge(_ context.Context, in *Input) (*Match, error) {
	var (
		best  *business.KnowledgeDoc
		runes int
	)
	for i := range in.Business.KnowledgeDocs {
		d := &in.Business.KnowledgeDocs[i]
		if t, ok := longestPhrase(in.Message, d.Triggers); ok && business.RuneLen(t) > runes {
			best, runes = d, business.RuneLen(t)
		}
	}
	if best == nil {
		return nil, nil
	}
	content := runewidth.Truncate(strings.TrimSpace(best.Content), maxDocReplyWidth, "…")
	return &Match{Content: fmt.Sprintf("📚 %s\n%s", best.Title, content)}, nil
}
