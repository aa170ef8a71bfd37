// Package businesstest provides a fixed tenant catalog for tests.
package businesstest

import "github.com/nextlevelbuilder/salebot/internal/business"

// Shop returns a fresh drone-shop tenant. Callers may mutate the result.
func Shop() *business.BusinessConfig {
	return &business.BusinessConfig{
		ID:              "shop",
		Name:            "SkyDrone",
		Identity:        "คุณคือผู้ช่วยขายของร้าน SkyDrone",
		FallbackMessage: "ขออภัยค่ะ เดี๋ยวแอดมินตอบนะคะ",
		OrderChannel:    "สั่งซื้อทาง LINE @skydrone ค่ะ",
		Categories:      []string{"โดรน", "กิมบอล"},
		Products: []business.Product{
			{ID: "mini4k", Name: "DJI Mini 4K", Category: "โดรน", Price: 9990, Status: business.StatusActive,
				Description: "โดรน 249 กรัม กล้อง 4K", Tags: []string{"มินิ 4k"}},
			{ID: "mini4pro", Name: "DJI Mini 4 Pro", Category: "โดรน", Price: 28900, Status: business.StatusActive,
				Description: "กล้อง 4K/60fps HDR"},
			{ID: "air3", Name: "DJI Air 3", Category: "โดรน", Price: 39990, Status: business.StatusOutOfStock,
				Description: "กล้องคู่"},
			{ID: "osmo6", Name: "DJI Osmo Mobile 6", Category: "กิมบอล", Price: 4990, Status: business.StatusActive,
				Description: "ไม้กันสั่นมือถือ", Tags: []string{"กิมบอลมือถือ"}},
		},
		FAQ: []business.FAQ{
			{Question: "ส่งของกี่วัน", Answer: "ได้รับภายใน 1-3 วันค่ะ", Keywords: []string{"ส่งกี่วัน", "กี่วันถึง"}},
			{Question: "มีประกันไหม", Answer: "ประกันศูนย์ 1 ปีค่ะ", Keywords: []string{"ประกัน"}},
		},
		SaleScripts: []business.SaleScript{
			{ID: "installment", Title: "ผ่อนชำระ", Triggers: []string{"ผ่อน", "ผ่อน 0%"}, Reply: "ผ่อน 0% 10 เดือนค่ะ"},
			{ID: "beginner", Title: "มือใหม่", Triggers: []string{"มือใหม่"}, Reply: "มือใหม่แนะนำ DJI Mini 4K ค่ะ"},
		},
		KnowledgeDocs: []business.KnowledgeDoc{
			{ID: "registration", Title: "การขึ้นทะเบียนโดรน กสทช", Content: "โดรนที่มีกล้องต้องขึ้นทะเบียนกับ กสทช. ก่อนบิน",
				Tags: []string{"ขึ้นทะเบียน"}, Triggers: []string{"ขึ้นทะเบียนโดรน"}},
			{ID: "battery", Title: "การดูแลแบตเตอรี่", Content: "ชาร์จแบตให้เหลือ 60% ก่อนเก็บนานเกิน 10 วัน",
				Tags: []string{"แบตเตอรี่"}},
		},
		Discontinued: []business.Discontinued{
			{Names: []string{"Mini 2", "Mini 2 SE"}, Replacement: "DJI Mini 4K"},
		},
	}
}
