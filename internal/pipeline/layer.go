// Package pipeline routes one inbound message through the ordered rule
// layers and, when none matches, the agent. The first layer to match wins.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/salebot/internal/agent"
	"github.com/nextlevelbuilder/salebot/internal/business"
	"github.com/nextlevelbuilder/salebot/internal/store"
)

// Layer ids. Lower runs first in the default order; the ids are stable
// analytics keys and do not change when the order is reconfigured.
const (
	LayerAdminEscalation = 1
	LayerBusinessHours   = 2
	LayerStockInquiry    = 3
	LayerContactChannel  = 4
	LayerDiscontinued    = 5
	LayerSaleScript      = 6
	LayerFAQ             = 7
	LayerKnowledge       = 8
	LayerAgent           = 14
	LayerFallback        = 15
)

// Layer names, as used in pipeline.layers.
const (
	NameAdminEscalation = "admin_escalation"
	NameBusinessHours   = "business_hours"
	NameStockInquiry    = "stock_inquiry"
	NameContactChannel  = "contact_channel"
	NameDiscontinued    = "discontinued"
	NameSaleScript      = "sale_script"
	NameFAQ             = "faq"
	NameKnowledge       = "knowledge"
	NameAgent           = "agent"
	NameFallback        = "fallback"
)

// DefaultOrder is the rule-layer order used when none is configured.
var DefaultOrder = []string{
	NameAdminEscalation,
	NameBusinessHours,
	NameStockInquiry,
	NameContactChannel,
	NameDiscontinued,
	NameSaleScript,
	NameFAQ,
	NameKnowledge,
}

// Request is one message to route.
type Request struct {
	Message        string
	History        []store.ChatMessage // snapshot, oldest first
	Business       *business.BusinessConfig
	Summary        string
	ConversationID string
	UserID         string
	Now            time.Time // zero = wall clock
}

// Input is what a layer sees: the request plus state derived once per run.
type Input struct {
	*Request
	Triggers     *business.TriggerTable
	Closed       bool
	OffHoursNote string
}

// Flag asks for admin attention alongside a reply.
type Flag struct {
	Reason  string
	Urgency string
	Source  string
}

// Match is a winning layer's output.
type Match struct {
	Content string
	Flag    *Flag
}

// Layer is one deterministic matcher. A nil Match with a nil error means
// the layer does not apply.
type Layer interface {
	ID() int
	Name() string
	Match(ctx context.Context, in *Input) (*Match, error)
}

// Decision is the routed reply for one message.
type Decision struct {
	Content   string
	LayerID   int
	LayerName string
	Flag      *Flag
	Agent     *agent.Result // set when the agent answered
	AgentErr  error         // agent failure that was replaced by the fallback
}

// NoticeGate throttles the closed-hours notice per user.
type NoticeGate interface {
	ClaimOfflineNotice(ctx context.Context, businessID, userID string) bool
}

type funcLayer struct {
	id   int
	name string
	fn   func(ctx context.Context, in *Input) (*Match, error)
}

func (l funcLayer) ID() int      { return l.id }
func (l funcLayer) Name() string { return l.name }
func (l funcLayer) Match(ctx context.Context, in *Input) (*Match, error) {
	return l.fn(ctx, in)
}

// BuildLayers resolves layer names to rule layers. "agent" may appear only
// as the last entry, where it is accepted and ignored since the agent always
// runs last.
func BuildLayers(names []string, gate NoticeGate) ([]Layer, error) {
	if len(names) == 0 {
		names = DefaultOrder
	}
	seen := make(map[string]bool, len(names))
	layers := make([]Layer, 0, len(names))
	for i, name := range names {
		if name == NameAgent {
			if i != len(names)-1 {
				return nil, fmt.Errorf("layer %q must be last", NameAgent)
			}
			continue
		}
		if seen[name] {
			return nil, fmt.Errorf("layer %q listed twice", name)
		}
		seen[name] = true
		l, ok := newRuleLayer(name, gate)
		if !ok {
			return nil, fmt.Errorf("unknown layer %q", name)
		}
		layers = append(layers, l)
	}
	return layers, nil
}

func newRuleLayer(name string, gate NoticeGate) (Layer, bool) {
	switch name {
	case NameAdminEscalation:
		return funcLayer{LayerAdminEscalation, name, matchAdminEscalation}, true
	case NameBusinessHours:
		return funcLayer{LayerBusinessHours, name, hoursMatcher(gate)}, true
	case NameStockInquiry:
		return funcLayer{LayerStockInquiry, name, matchStockInquiry}, true
	case NameContactChannel:
		return funcLayer{LayerContactChannel, name, matchContactChannel}, true
	case NameDiscontinued:
		return funcLayer{LayerDiscontinued, name, matchDiscontinued}, true
	case NameSaleScript:
		return funcLayer{LayerSaleScript, name, matchSaleScript}, true
	case NameFAQ:
		return funcLayer{LayerFAQ, name, matchFAQ}, true
	case NameKnowledge:
		return funcLayer{LayerKnowledge, name, matchKnowledge}, true
	}
	return nil, false
}
