package tools

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/salebot/internal/business"
)

const (
	queryPrefixRunes  = 20
	maxKnowledgeHits  = 3
	maxExcerptWidth   = 600
	minTitleWordRunes = 3
	scriptPrefixRunes = 8
)

func excerpt(s string) string {
	return runewidth.Truncate(strings.TrimSpace(s), maxExcerptWidth, "…")
}

func docMatches(doc business.KnowledgeDoc, query, prefix string) bool {
	for _, tag := range doc.Tags {
		if business.ContainsText(query, tag) {
			return true
		}
	}
	for _, w := range strings.Fields(business.Normalize(doc.Title)) {
		if business.RuneLen(w) >= minTitleWordRunes && business.ContainsText(query, w) {
			return true
		}
	}
	return business.ContainsText(doc.Content, prefix)
}

func faqMatches(f business.FAQ, query, prefix string) bool {
	if business.ContainsText(f.Question, prefix) || business.ContainsText(f.Answer, prefix) {
		return true
	}
	for _, kw := range f.Keywords {
		if business.ContainsText(query, kw) {
			return true
		}
	}
	return false
}

func searchKnowledge(biz *business.BusinessConfig, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	prefix := business.RunePrefix(business.Normalize(query), queryPrefixRunes)

	var hits []string
	for _, doc := range biz.KnowledgeDocs {
		if docMatches(doc, query, prefix) {
			hits = append(hits, fmt.Sprintf("📚 %s\n%s", doc.Title, excerpt(doc.Content)))
			if len(hits) == maxKnowledgeHits {
				break
			}
		}
	}
	if len(hits) > 0 {
		return NewResult(strings.Join(hits, "\n\n"))
	}

	for _, f := range biz.FAQ {
		if len(hits) == maxKnowledgeHits {
			break
		}
		if faqMatches(f, query, prefix) {
			hits = append(hits, fmt.Sprintf("Q: %s\nA: %s", f.Question, excerpt(f.Answer)))
		}
	}
	if len(hits) > 0 {
		return NewResult(strings.Join(hits, "\n\n"))
	}
	return NewResult(fmt.Sprintf("ไม่พบข้อมูลในฐานความรู้สำหรับ %q", query))
}

// scriptTriggerMatches reports containment in either direction, or overlap
// of the first few runes, between a trigger and a topic.
func scriptTriggerMatches(trigger, topic string) bool {
	tr, tp := business.Normalize(trigger), business.Normalize(topic)
	if tr == "" || tp == "" {
		return false
	}
	return strings.Contains(tp, business.RunePrefix(tr, scriptPrefixRunes)) ||
		strings.Contains(tr, business.RunePrefix(tp, scriptPrefixRunes))
}

func searchSaleScript(biz *business.BusinessConfig, args map[string]interface{}) *Result {
	topic, _ := args["topic"].(string)

	var best *business.SaleScript
	bestLen := 0
	for i, s := range biz.SaleScripts {
		for _, trig := range s.Triggers {
			if n := business.RuneLen(trig); n > bestLen && scriptTriggerMatches(trig, topic) {
				best, bestLen = &biz.SaleScripts[i], n
			}
		}
	}
	if best == nil {
		return NewResult(fmt.Sprintf("ไม่พบสคริปต์การขายสำหรับ %q", topic))
	}
	if best.Title != "" {
		return NewResult(fmt.Sprintf("📋 %s\n%s", best.Title, best.Reply))
	}
	return NewResult(best.Reply)
}
