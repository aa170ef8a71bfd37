package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/salebot/internal/store"
)

const (
	defaultRetention = 200
	defaultTTL       = 30 * 24 * time.Hour
)

// Conversations implements store.ConversationStore.
//
// Keys:
//
//	chat:{biz}:{user}:messages  list of JSON ChatMessage, oldest first
//	chat:{biz}:{user}:total     messages ever appended (never trimmed)
//	chat:{biz}:{user}:summary   JSON Summary
//	bot:{biz}:{user}:enabled    "0" when an admin has taken over
//	bot:{biz}:global            "0" when the bot is off for the whole business
//	crm:{biz}:{user}            hash profile
type Conversations struct {
	rdb       redis.Cmdable
	retention int
	ttl       time.Duration
}

func NewConversations(rdb redis.Cmdable, retention int, ttl time.Duration) *Conversations {
	if retention <= 0 {
		retention = defaultRetention
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Conversations{rdb: rdb, retention: retention, ttl: ttl}
}

func messagesKey(biz, user string) string { return fmt.Sprintf("chat:%s:%s:messages", biz, user) }
func totalKey(biz, user string) string    { return fmt.Sprintf("chat:%s:%s:total", biz, user) }
func summaryKey(biz, user string) string  { return fmt.Sprintf("chat:%s:%s:summary", biz, user) }
func botKey(biz, user string) string      { return fmt.Sprintf("bot:%s:%s:enabled", biz, user) }
func globalBotKey(biz string) string      { return fmt.Sprintf("bot:%s:global", biz) }
func profileKey(biz, user string) string  { return fmt.Sprintf("crm:%s:%s", biz, user) }

func (c *Conversations) GetMessages(ctx context.Context, biz, user string) ([]store.ChatMessage, error) {
	raw, err := c.rdb.LRange(ctx, messagesKey(biz, user), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	msgs := make([]store.ChatMessage, 0, len(raw))
	for _, r := range raw {
		var m store.ChatMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			continue // skip corrupt entries, keep the rest of the history
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// AppendMessages pushes msgs in order, trims to the retention window, bumps
// the total counter and refreshes the TTLs in one round trip.
func (c *Conversations) AppendMessages(ctx context.Context, biz, user string, msgs ...store.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	vals := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == "" {
			m.ID = store.GenNewID()
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now().UTC()
		}
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		vals = append(vals, data)
	}

	key, total := messagesKey(biz, user), totalKey(biz, user)
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, vals...)
		p.LTrim(ctx, key, int64(-c.retention), -1)
		p.Expire(ctx, key, c.ttl)
		p.IncrBy(ctx, total, int64(len(msgs)))
		p.Expire(ctx, total, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	return nil
}

func (c *Conversations) CountMessages(ctx context.Context, biz, user string) (int, error) {
	n, err := c.rdb.LLen(ctx, messagesKey(biz, user)).Result()
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return int(n), nil
}

func (c *Conversations) TotalMessages(ctx context.Context, biz, user string) (int, error) {
	n, err := c.rdb.Get(ctx, totalKey(biz, user)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count total messages: %w", err)
	}
	return n, nil
}

func (c *Conversations) GetSummary(ctx context.Context, biz, user string) (*store.Summary, error) {
	data, err := c.rdb.Get(ctx, summaryKey(biz, user)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load summary: %w", err)
	}
	var s store.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &s, nil
}

func (c *Conversations) SetSummary(ctx context.Context, biz, user string, s store.Summary) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := c.rdb.Set(ctx, summaryKey(biz, user), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// A missing switch means enabled.
func (c *Conversations) readSwitch(ctx context.Context, key string) (bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("read %s: %w", key, err)
	}
	return v != "0", nil
}

func (c *Conversations) writeSwitch(ctx context.Context, key string, enabled bool) error {
	var err error
	if enabled {
		err = c.rdb.Del(ctx, key).Err()
	} else {
		err = c.rdb.Set(ctx, key, "0", 0).Err()
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (c *Conversations) IsBotEnabled(ctx context.Context, biz, user string) (bool, error) {
	return c.readSwitch(ctx, botKey(biz, user))
}

func (c *Conversations) SetBotEnabled(ctx context.Context, biz, user string, enabled bool) error {
	return c.writeSwitch(ctx, botKey(biz, user), enabled)
}

func (c *Conversations) IsGlobalBotEnabled(ctx context.Context, biz string) (bool, error) {
	return c.readSwitch(ctx, globalBotKey(biz))
}

func (c *Conversations) SetGlobalBotEnabled(ctx context.Context, biz string, enabled bool) error {
	return c.writeSwitch(ctx, globalBotKey(biz), enabled)
}

func (c *Conversations) TouchProfile(ctx context.Context, biz, user string, u store.ProfileUpdate) error {
	if u.At.IsZero() {
		u.At = time.Now().UTC()
	}
	key := profileKey(biz, user)
	at := u.At.UTC().Format(time.RFC3339)
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSetNX(ctx, key, "first_seen", at)
		fields := []interface{}{"user_id", user, "last_seen", at}
		if u.Channel != "" {
			fields = append(fields, "channel", u.Channel)
		}
		if u.DisplayName != "" {
			fields = append(fields, "display_name", u.DisplayName)
		}
		p.HSet(ctx, key, fields...)
		p.HIncrBy(ctx, key, "message_count", 1)
		p.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("touch profile: %w", err)
	}
	return nil
}

func (c *Conversations) GetProfile(ctx context.Context, biz, user string) (*store.Profile, error) {
	h, err := c.rdb.HGetAll(ctx, profileKey(biz, user)).Result()
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if len(h) == 0 {
		return nil, nil
	}
	p := &store.Profile{
		UserID:      h["user_id"],
		Channel:     h["channel"],
		DisplayName: h["display_name"],
	}
	p.FirstSeen, _ = time.Parse(time.RFC3339, h["first_seen"])
	p.LastSeen, _ = time.Parse(time.RFC3339, h["last_seen"])
	p.MessageCount, _ = strconv.Atoi(h["message_count"])
	return p, nil
}
