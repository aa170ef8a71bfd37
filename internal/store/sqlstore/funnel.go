package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/salebot/internal/store"
)

// FunnelStore implements store.FunnelStore.
type FunnelStore struct {
	db *DB
}

func NewFunnelStore(db *DB) *FunnelStore {
	return &FunnelStore{db: db}
}

func (s *FunnelStore) RecordEvent(ctx context.Context, e store.FunnelEvent) error {
	if e.ID == "" {
		e.ID = store.GenNewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO funnel_events
		(id, business_id, user_id, channel, event, layer, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.BusinessID, e.UserID, e.Channel, e.Event, e.Layer, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert funnel event: %w", err)
	}
	return nil
}

func (s *FunnelStore) CountEvents(ctx context.Context, businessID string, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`SELECT event, COUNT(*) FROM funnel_events
		WHERE business_id = ? AND created_at >= ? GROUP BY event`),
		businessID, since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("count funnel events: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			event string
			n     int
		)
		if err := rows.Scan(&event, &n); err != nil {
			return nil, fmt.Errorf("scan funnel count: %w", err)
		}
		out[event] = n
	}
	return out, rows.Err()
}
