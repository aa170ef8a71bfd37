package tools

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/salebot/internal/business"
)

const maxProductSuggestions = 3

func productMatches(p business.Product, model string) bool {
	if business.ContainsText(p.Name, model) || business.ContainsText(model, p.Name) {
		return true
	}
	for _, tag := range p.Tags {
		if business.ContainsText(tag, model) || business.ContainsText(model, tag) {
			return true
		}
	}
	return false
}

// FindProduct returns the most specific product whose name or tag overlaps
// model, optionally restricted to a category. Longer names are tried first
// so "DJI Mini 4 Pro" wins over "DJI Mini 4" for "mini 4 pro".
func FindProduct(biz *business.BusinessConfig, model, category string) (*business.Product, []business.Product) {
	candidates := make([]business.Product, 0, len(biz.Products))
	for _, p := range biz.Products {
		if category != "" && !business.ContainsText(p.Category, category) {
			continue
		}
		candidates = append(candidates, p)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return business.RuneLen(candidates[i].Name) > business.RuneLen(candidates[j].Name)
	})

	for i := range candidates {
		if productMatches(candidates[i], model) {
			return &candidates[i], candidates
		}
	}
	return nil, candidates
}

// ProductCard renders a product for the model and for direct replies.
func ProductCard(p *business.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 %s\n", p.Name)
	fmt.Fprintf(&b, "💰 ราคา: %s บาท\n", business.FormatPrice(p.Price))
	if p.Category != "" {
		fmt.Fprintf(&b, "📂 หมวดหมู่: %s\n", p.Category)
	}
	fmt.Fprintf(&b, "📊 สถานะ: %s", business.StatusLabel(p.Status))
	if p.Description != "" {
		fmt.Fprintf(&b, "\n📝 %s", p.Description)
	}
	return b.String()
}

func getProductInfo(biz *business.BusinessConfig, args map[string]interface{}) *Result {
	model, _ := args["model_name"].(string)
	category, _ := args["category"].(string)

	p, candidates := FindProduct(biz, model, category)
	if p != nil {
		return NewResult(ProductCard(p))
	}

	if len(candidates) == 0 {
		candidates = biz.Products
	}
	var b strings.Builder
	fmt.Fprintf(&b, "ไม่พบสินค้า %q", model)
	if n := min(len(candidates), maxProductSuggestions); n > 0 {
		b.WriteString("\nสินค้าที่ใกล้เคียง:")
		for _, c := range candidates[:n] {
			fmt.Fprintf(&b, "\n- %s (%s บาท)", c.Name, business.FormatPrice(c.Price))
		}
	}
	return NewResult(b.String())
}
