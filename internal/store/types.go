package store

import "time"

// Role of a stored chat message.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleBot      Role = "bot"
	RoleAdmin    Role = "admin"
)

// ChatMessage is one entry of the append-only conversation log.
type ChatMessage struct {
	ID                string    `json:"id"`
	Role              Role      `json:"role"`
	Content           string    `json:"content"`
	Timestamp         time.Time `json:"timestamp"`
	Channel           string    `json:"channel,omitempty"`
	PipelineLayer     int       `json:"pipelineLayer,omitempty"`
	PipelineLayerName string    `json:"pipelineLayerName,omitempty"`
}

// Summary is the rolling AI-generated summary of older turns.
type Summary struct {
	Text         string    `json:"text"`
	MessageCount int       `json:"messageCount"` // TotalMessages when generated
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Profile is the lightweight CRM record kept per user.
type Profile struct {
	UserID       string    `json:"userId"`
	Channel      string    `json:"channel"`
	DisplayName  string    `json:"displayName,omitempty"`
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
	MessageCount int       `json:"messageCount"`
}

// ProfileUpdate is applied on every inbound customer message.
type ProfileUpdate struct {
	Channel     string
	DisplayName string
	At          time.Time
}

// Flag urgency tiers.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// AgentFlag asks a human admin to look at a conversation.
type AgentFlag struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	BusinessID     string    `json:"businessId"`
	UserID         string    `json:"userId"`
	Reason         string    `json:"reason"`
	Urgency        string    `json:"urgency"`
	UserMessage    string    `json:"userMessage"`
	Source         string    `json:"source"` // layer name or "agent"
	Timestamp      time.Time `json:"timestamp"`
}

// UsageRecord is the token accounting for one agent invocation.
type UsageRecord struct {
	ID               string
	BusinessID       string
	UserID           string
	ConversationID   string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Estimated        bool
	Iterations       int
	ToolsUsed        []string
	CreatedAt        time.Time
}

// UsageTotals aggregates usage rows.
type UsageTotals struct {
	Runs             int `json:"runs"`
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Funnel event names.
const (
	EventMessageReceived = "message_received"
	EventRuleAnswered    = "rule_answered"
	EventAgentAnswered   = "agent_answered"
	EventFlagged         = "flagged"
	EventRateLimited     = "rate_limited"
	EventDuplicate       = "duplicate"
)

// FunnelEvent is one step in the customer funnel.
type FunnelEvent struct {
	ID         string
	BusinessID string
	UserID     string
	Channel    string
	Event      string
	Layer      string
	CreatedAt  time.Time
}

// ConversationID is the stable id of one (business, user) conversation.
func ConversationID(businessID, userID string) string {
	return businessID + ":" + userID
}
