package tools

import "strings"

// Kind is the closed set of tools the agent may call.
type Kind int

const (
	SearchKnowledge Kind = iota
	SearchSaleScript
	GetProductInfo
	AnalyzeSentiment
	FlagForAdmin

	numKinds
)

var kindNames = [numKinds]string{
	SearchKnowledge:  "search_knowledge",
	SearchSaleScript: "search_sale_script",
	GetProductInfo:   "get_product_info",
	AnalyzeSentiment: "analyze_sentiment",
	FlagForAdmin:     "flag_for_admin",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "unknown"
	}
	return kindNames[k]
}

// ParseKind maps a model-supplied tool name to a Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return -1, false
}

// Kinds returns every tool kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// Urgency tiers shared by analyze_sentiment and flag_for_admin.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// NormalizeUrgency maps u onto a known tier, defaulting to medium.
func NormalizeUrgency(u string) string {
	switch u = strings.ToLower(strings.TrimSpace(u)); u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return u
	default:
		return UrgencyMedium
	}
}
