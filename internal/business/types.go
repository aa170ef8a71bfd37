// Package business holds the per-tenant knowledge bundle (catalog, FAQ, sale
// scripts, knowledge docs, identity text) and the resolver that serves it.
// A BusinessConfig is immutable once loaded; readers never copy it.
package business

import (
	"fmt"
	"strconv"
	"strings"
)

// Product status values.
const (
	StatusActive       = "active"
	StatusOutOfStock   = "out_of_stock"
	StatusPreorder     = "preorder"
	StatusDiscontinued = "discontinued"
)

// BusinessConfig is the read-only bundle for one tenant.
type BusinessConfig struct {
	ID              string         `yaml:"id"`
	Name            string         `yaml:"name"`
	Identity        string         `yaml:"identity"` // system-prompt persona text
	FallbackMessage string         `yaml:"fallback_message"`
	OrderChannel    string         `yaml:"order_channel"`
	Categories      []string       `yaml:"categories"`
	Products        []Product      `yaml:"products"`
	FAQ             []FAQ          `yaml:"faq"`
	SaleScripts     []SaleScript   `yaml:"sale_scripts"`
	KnowledgeDocs   []KnowledgeDoc `yaml:"knowledge_docs"`
	Discontinued    []Discontinued `yaml:"discontinued"`
	Hours           Hours          `yaml:"hours"`
	Triggers        *TriggerTable  `yaml:"triggers,omitempty"` // nil = DefaultTriggers()
}

type Product struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"`
	Price       int64    `yaml:"price"` // whole baht
	Status      string   `yaml:"status"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

type FAQ struct {
	Question string   `yaml:"question"`
	Answer   string   `yaml:"answer"`
	Keywords []string `yaml:"keywords"`
}

type SaleScript struct {
	ID       string   `yaml:"id"`
	Title    string   `yaml:"title"`
	Triggers []string `yaml:"triggers"`
	Reply    string   `yaml:"reply"`
}

type KnowledgeDoc struct {
	ID       string   `yaml:"id"`
	Title    string   `yaml:"title"`
	Content  string   `yaml:"content"`
	Tags     []string `yaml:"tags"`
	Triggers []string `yaml:"triggers"` // exact phrases that answer directly from this doc
}

// Discontinued maps retired model names to a replacement suggestion.
type Discontinued struct {
	Names       []string `yaml:"names"`
	Replacement string   `yaml:"replacement"`
	Message     string   `yaml:"message,omitempty"` // overrides the generated reply
}

// TriggerSet returns the tenant trigger table merged over the embedded default.
func (b *BusinessConfig) TriggerSet() *TriggerTable {
	return mergeTriggers(DefaultTriggers(), b.Triggers)
}

// Fallback returns the static fallback message, never empty.
func (b *BusinessConfig) Fallback() string {
	if strings.TrimSpace(b.FallbackMessage) != "" {
		return b.FallbackMessage
	}
	return DefaultTriggers().FallbackMessage
}

// Validate checks fields the matchers rely on.
func (b *BusinessConfig) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("business id is required")
	}
	for i, p := range b.Products {
		if p.Name == "" {
			return fmt.Errorf("%s: product %d has no name", b.ID, i)
		}
		switch p.Status {
		case "", StatusActive, StatusOutOfStock, StatusPreorder, StatusDiscontinued:
		default:
			return fmt.Errorf("%s: product %q has unknown status %q", b.ID, p.Name, p.Status)
		}
	}
	for _, s := range b.SaleScripts {
		if len(s.Triggers) == 0 || s.Reply == "" {
			return fmt.Errorf("%s: sale script %q needs triggers and a reply", b.ID, s.ID)
		}
	}
	return b.Hours.validate()
}

// StatusLabel renders a product status for customers.
func StatusLabel(status string) string {
	switch status {
	case StatusOutOfStock:
		return "❌ สินค้าหมด"
	case StatusPreorder:
		return "🕐 สั่งจองล่วงหน้า"
	case StatusDiscontinued:
		return "⛔ เลิกจำหน่าย"
	default:
		return "✅ พร้อมจำหน่าย"
	}
}

// FormatPrice renders whole baht with thousands separators: 9990 -> "9,990".
func FormatPrice(price int64) string {
	neg := price < 0
	if neg {
		price = -price
	}
	digits := strconv.FormatInt(price, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
