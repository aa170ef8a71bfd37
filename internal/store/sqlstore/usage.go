package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/salebot/internal/store"
)

// UsageStore implements store.UsageStore.
type UsageStore struct {
	db *DB
}

func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

func (s *UsageStore) RecordUsage(ctx context.Context, r store.UsageRecord) error {
	if r.ID == "" {
		r.ID = store.GenNewID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO usage_records
		(id, business_id, user_id, conversation_id, provider, model,
		 prompt_tokens, completion_tokens, total_tokens, estimated, iterations, tools_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.BusinessID, r.UserID, r.ConversationID, r.Provider, r.Model,
		r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.Estimated, r.Iterations,
		strings.Join(r.ToolsUsed, ","), r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

func (s *UsageStore) UsageTotals(ctx context.Context, businessID string, since time.Time) (*store.UsageTotals, error) {
	var t store.UsageTotals
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT COUNT(*),
		COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0), COALESCE(SUM(total_tokens), 0)
		FROM usage_records WHERE business_id = ? AND created_at >= ?`),
		businessID, since.UnixMilli(),
	).Scan(&t.Runs, &t.PromptTokens, &t.CompletionTokens, &t.TotalTokens)
	if err != nil {
		return nil, fmt.Errorf("usage totals: %w", err)
	}
	return &t, nil
}
