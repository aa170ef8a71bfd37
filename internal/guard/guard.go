// Package guard holds the pre-pipeline gates: fixed-window rate limit,
// delivery idempotency and the off-hours notice cooldown. Each gate is one
// atomic Redis primitive on its own key; every gate fails open.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var decisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "salebot",
	Subsystem: "guard",
	Name:      "decisions_total",
	Help:      "Guard decisions by gate and outcome",
}, []string{"gate", "outcome"})

// Config holds the tunable limits.
type Config struct {
	MaxMessages     int
	Window          time.Duration
	IdempotencyTTL  time.Duration
	OfflineCooldown time.Duration
}

// Guard implements the three gates over a shared Redis client.
type Guard struct {
	rdb redis.Cmdable
	cfg Config
	now func() time.Time
}

func New(rdb redis.Cmdable, cfg Config) *Guard {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 20
	}
	switch {
	case cfg.Window <= 0:
		cfg.Window = time.Minute
	case cfg.Window < time.Millisecond:
		// Windows are numbered in milliseconds.
		cfg.Window = time.Millisecond
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 5 * time.Minute
	}
	if cfg.OfflineCooldown <= 0 {
		cfg.OfflineCooldown = 10 * time.Minute
	}
	return &Guard{rdb: rdb, cfg: cfg, now: time.Now}
}

// SetClock replaces the time source (tests).
func (g *Guard) SetClock(now func() time.Time) { g.now = now }

func rateKey(businessID, userID string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", businessID, userID, window)
}

// IsRateLimited counts this message in the current fixed window and reports
// whether the user is over the limit.
func (g *Guard) IsRateLimited(ctx context.Context, businessID, userID string) bool {
	window := g.now().UnixMilli() / g.cfg.Window.Milliseconds()
	key := rateKey(businessID, userID, window)

	var incr *redis.IntCmd
	_, err := g.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.Expire(ctx, key, 2*g.cfg.Window)
		return nil
	})
	if err != nil {
		slog.Warn("guard.unavailable", "gate", "rate_limit", "business", businessID, "error", err)
		decisions.WithLabelValues("rate_limit", "fail_open").Inc()
		return false
	}

	limited := incr.Val() > int64(g.cfg.MaxMessages)
	if limited {
		slog.Info("guard.rate_limited", "business", businessID, "user", userID, "count", incr.Val())
		decisions.WithLabelValues("rate_limit", "limited").Inc()
	} else {
		decisions.WithLabelValues("rate_limit", "allowed").Inc()
	}
	return limited
}

// IsDuplicate claims a delivery token. The first claim within the TTL
// returns false; repeats return true. An empty token is never a duplicate.
func (g *Guard) IsDuplicate(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	ok, err := g.rdb.SetNX(ctx, "idem:"+token, 1, g.cfg.IdempotencyTTL).Result()
	if err != nil {
		slog.Warn("guard.unavailable", "gate", "idempotency", "error", err)
		decisions.WithLabelValues("idempotency", "fail_open").Inc()
		return false
	}
	if !ok {
		decisions.WithLabelValues("idempotency", "duplicate").Inc()
		return true
	}
	decisions.WithLabelValues("idempotency", "first").Inc()
	return false
}

// ClaimOfflineNotice reports whether the closed-hours notice may be sent to
// this user now. It returns true at most once per cooldown.
func (g *Guard) ClaimOfflineNotice(ctx context.Context, businessID, userID string) bool {
	key := fmt.Sprintf("offline:%s:%s", businessID, userID)
	ok, err := g.rdb.SetNX(ctx, key, 1, g.cfg.OfflineCooldown).Result()
	if err != nil {
		slog.Warn("guard.unavailable", "gate", "offline_cooldown", "business", businessID, "error", err)
		decisions.WithLabelValues("offline_cooldown", "fail_open").Inc()
		return true
	}
	if ok {
		decisions.WithLabelValues("offline_cooldown", "claimed").Inc()
	} else {
		decisions.WithLabelValues("offline_cooldown", "cooling").Inc()
	}
	return ok
}
