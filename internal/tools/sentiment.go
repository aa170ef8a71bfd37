package tools

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/salebot/internal/business"
)

//go:embed lexicon.yaml
var lexiconYAML []byte

// Lexicon holds the keyword sets analyze_sentiment tests membership against.
type Lexicon struct {
	Version string   `yaml:"version"`
	Angry   []string `yaml:"angry"`
	Urgent  []string `yaml:"urgent"`
	Worried []string `yaml:"worried"`
}

// LoadLexicon parses a lexicon document; nil data loads the embedded default.
func LoadLexicon(data []byte) (*Lexicon, error) {
	if data == nil {
		data = lexiconYAML
	}
	var lx Lexicon
	if err := yaml.Unmarshal(data, &lx); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	if len(lx.Angry) == 0 || len(lx.Urgent) == 0 || len(lx.Worried) == 0 {
		return nil, fmt.Errorf("lexicon %q: angry, urgent and worried sets must be non-empty", lx.Version)
	}
	return &lx, nil
}

// Sentiment is the JSON payload returned to the model.
type Sentiment struct {
	Sentiment string `json:"sentiment"`
	Urgency   string `json:"urgency"`
	IsAngry   bool   `json:"isAngry"`
	IsUrgent  bool   `json:"isUrgent"`
	IsSad     bool   `json:"isSad"`
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if w = business.Normalize(w); w != "" && strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// Analyze classifies message. Angry or urgent is high urgency, worried is
// medium, anything else low.
func (lx *Lexicon) Analyze(message string) Sentiment {
	text := business.Normalize(message)
	s := Sentiment{
		IsAngry:  containsAny(text, lx.Angry),
		IsUrgent: containsAny(text, lx.Urgent),
		IsSad:    containsAny(text, lx.Worried),
	}

	switch {
	case s.IsAngry:
		s.Sentiment = "angry"
	case s.IsSad:
		s.Sentiment = "worried"
	case s.IsUrgent:
		s.Sentiment = "urgent"
	default:
		s.Sentiment = "neutral"
	}

	switch {
	case s.IsAngry || s.IsUrgent:
		s.Urgency = UrgencyHigh
	case s.IsSad:
		s.Urgency = UrgencyMedium
	default:
		s.Urgency = UrgencyLow
	}
	return s
}

func (e *Executor) analyzeSentiment(args map[string]interface{}) *Result {
	message, _ := args["message"].(string)
	out, err := json.Marshal(e.lexicon.Analyze(message))
	if err != nil {
		return ErrorResult(fmt.Sprintf("analyze_sentiment: %v", err))
	}
	return NewResult(string(out))
}
