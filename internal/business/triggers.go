package business

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed triggers.yaml
var defaultTriggersYAML []byte

// TriggerTable is the versioned phrase table for the rule layers that are not
// driven by tenant catalog data. Tenants may override any rule.
type TriggerTable struct {
	Version         string     `yaml:"version"`
	AdminEscalation PhraseRule `yaml:"admin_escalation"`
	StockInquiry    PhraseRule `yaml:"stock_inquiry"`
	ContactChannel  PhraseRule `yaml:"contact_channel"`
	ClosedNotice    string     `yaml:"closed_notice"`
	FallbackMessage string     `yaml:"fallback_message"`
}

// PhraseRule pairs trigger phrases with an optional response template.
type PhraseRule struct {
	Phrases  []string `yaml:"phrases"`
	Response string   `yaml:"response,omitempty"`
}

var (
	defaultOnce     sync.Once
	defaultTriggers TriggerTable
)

// DefaultTriggers returns a copy of the embedded trigger table.
func DefaultTriggers() *TriggerTable {
	defaultOnce.Do(func() {
		if err := yaml.Unmarshal(defaultTriggersYAML, &defaultTriggers); err != nil {
			panic(fmt.Sprintf("business: embedded triggers.yaml is invalid: %v", err))
		}
	})
	t := defaultTriggers
	return &t
}

func mergeTriggers(base, override *TriggerTable) *TriggerTable {
	if override == nil {
		return base
	}
	out := *base
	if override.Version != "" {
		out.Version = override.Version
	}
	mergeRule(&out.AdminEscalation, override.AdminEscalation)
	mergeRule(&out.StockInquiry, override.StockInquiry)
	mergeRule(&out.ContactChannel, override.ContactChannel)
	if override.ClosedNotice != "" {
		out.ClosedNotice = override.ClosedNotice
	}
	if override.FallbackMessage != "" {
		out.FallbackMessage = override.FallbackMessage
	}
	return &out
}

func mergeRule(dst *PhraseRule, src PhraseRule) {
	if len(src.Phrases) > 0 {
		dst.Phrases = src.Phrases
	}
	if src.Response != "" {
		dst.Response = src.Response
	}
}
