package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Stores is the top-level container for all storage backends.
// Conversations and Flags live in Redis; Usage and Funnel in the SQL ledger.
type Stores struct {
	Conversations ConversationStore
	Flags         FlagStore
	Usage         UsageStore
	Funnel        FunnelStore
}

// GenNewID returns a time-ordered UUID v7 string.
func GenNewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ConversationStore holds per-(business,user) history, summary, bot switches
// and CRM profile.
type ConversationStore interface {
	// GetMessages returns history oldest to newest, capped by the store's retention.
	GetMessages(ctx context.Context, businessID, userID string) ([]ChatMessage, error)
	AppendMessages(ctx context.Context, businessID, userID string, msgs ...ChatMessage) error
	CountMessages(ctx context.Context, businessID, userID string) (int, error)
	// TotalMessages counts every message ever appended. Unlike the history
	// it is never trimmed, so it keeps growing past the retention window.
	TotalMessages(ctx context.Context, businessID, userID string) (int, error)

	GetSummary(ctx context.Context, businessID, userID string) (*Summary, error)
	SetSummary(ctx context.Context, businessID, userID string, s Summary) error

	IsBotEnabled(ctx context.Context, businessID, userID string) (bool, error)
	SetBotEnabled(ctx context.Context, businessID, userID string, enabled bool) error
	IsGlobalBotEnabled(ctx context.Context, businessID string) (bool, error)
	SetGlobalBotEnabled(ctx context.Context, businessID string, enabled bool) error

	TouchProfile(ctx context.Context, businessID, userID string, u ProfileUpdate) error
	GetProfile(ctx context.Context, businessID, userID string) (*Profile, error)
}

// FlagStore is the bounded, TTL'd per-business list of admin flags.
type FlagStore interface {
	AddFlag(ctx context.Context, f AgentFlag) error
	// ListFlags returns newest first.
	ListFlags(ctx context.Context, businessID string, limit int) ([]AgentFlag, error)
}

// UsageStore records one row per agent invocation.
type UsageStore interface {
	RecordUsage(ctx context.Context, r UsageRecord) error
	UsageTotals(ctx context.Context, businessID string, since time.Time) (*UsageTotals, error)
}

// FunnelStore records conversion funnel events.
type FunnelStore interface {
	RecordEvent(ctx context.Context, e FunnelEvent) error
	CountEvents(ctx context.Context, businessID string, since time.Time) (map[string]int, error)
}
