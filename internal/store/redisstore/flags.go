package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/salebot/internal/store"
)

// Flags implements store.FlagStore as a capped, TTL'd list per business.
type Flags struct {
	rdb redis.Cmdable
	max int
	ttl time.Duration
}

func NewFlags(rdb redis.Cmdable, max int, ttl time.Duration) *Flags {
	if max <= 0 {
		max = 100
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Flags{rdb: rdb, max: max, ttl: ttl}
}

func flagsKey(biz string) string { return "flags:" + biz }

func (f *Flags) AddFlag(ctx context.Context, fl store.AgentFlag) error {
	if fl.ID == "" {
		fl.ID = store.GenNewID()
	}
	if fl.Timestamp.IsZero() {
		fl.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(fl)
	if err != nil {
		return fmt.Errorf("marshal flag: %w", err)
	}
	key := flagsKey(fl.BusinessID)
	_, err = f.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, data)
		p.LTrim(ctx, key, 0, int64(f.max-1))
		p.Expire(ctx, key, f.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add flag: %w", err)
	}
	return nil
}

func (f *Flags) ListFlags(ctx context.Context, biz string, limit int) ([]store.AgentFlag, error) {
	if limit <= 0 || limit > f.max {
		limit = f.max
	}
	raw, err := f.rdb.LRange(ctx, flagsKey(biz), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	out := make([]store.AgentFlag, 0, len(raw))
	for _, r := range raw {
		var fl store.AgentFlag
		if err := json.Unmarshal([]byte(r), &fl); err == nil {
			out = append(out, fl)
		}
	}
	return out, nil
}
