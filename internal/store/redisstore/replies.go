package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Reply is a bot or admin message pushed to a connected widget.
type Reply struct {
	BusinessID string `json:"businessId"`
	UserID     string `json:"userId"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	Layer      string `json:"layer,omitempty"`
}

// ReplyBus fans replies out to widget connections on any replica.
type ReplyBus struct {
	rdb *redis.Client
}

func NewReplyBus(rdb *redis.Client) *ReplyBus {
	return &ReplyBus{rdb: rdb}
}

func replyChannel(biz, user string) string { return fmt.Sprintf("reply:%s:%s", biz, user) }

func (b *ReplyBus) Publish(ctx context.Context, r Reply) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	if err := b.rdb.Publish(ctx, replyChannel(r.BusinessID, r.UserID), data).Err(); err != nil {
		return fmt.Errorf("publish reply: %w", err)
	}
	return nil
}

// Subscribe delivers replies for one user until ctx is done. The returned
// channel is closed when the subscription ends.
func (b *ReplyBus) Subscribe(ctx context.Context, biz, user string) (<-chan Reply, error) {
	sub := b.rdb.Subscribe(ctx, replyChannel(biz, user))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Reply, 8)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var r Reply
				if err := json.Unmarshal([]byte(msg.Payload), &r); err != nil {
					continue
				}
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
