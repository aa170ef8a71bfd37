package guard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newGuard(t *testing.T, cfg Config) (*Guard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, cfg), mr
}

func TestIsRateLimited_Boundary(t *testing.T) {
	g, _ := newGuard(t, Config{MaxMessages: 3, Window: time.Minute})
	now := time.Date(2024, 11, 4, 10, 0, 5, 0, time.UTC)
	g.SetClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if g.IsRateLimited(ctx, "shop", "u1") {
			t.Fatalf("call %d limited", i)
		}
	}
	if !g.IsRateLimited(ctx, "shop", "u1") {
		t.Fatal("4th call should be limited")
	}
	if g.IsRateLimited(ctx, "shop", "u2") {
		t.Error("other users have their own counter")
	}
	if g.IsRateLimited(ctx, "other", "u1") {
		t.Error("other businesses have their own counter")
	}

	now = now.Add(time.Minute)
	if g.IsRateLimited(ctx, "shop", "u1") {
		t.Error("new window should reset the count")
	}
}

func TestIsRateLimited_KeyExpires(t *testing.T) {
	g, mr := newGuard(t, Config{MaxMessages: 1, Window: time.Minute})
	ctx := context.Background()
	g.IsRateLimited(ctx, "shop", "u1")

	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("keys = %v", keys)
	}
	if ttl := mr.TTL(keys[0]); ttl <= 0 || ttl > 2*time.Minute {
		t.Errorf("ttl = %v", ttl)
	}
}

func TestIsDuplicate_TTL(t *testing.T) {
	g, mr := newGuard(t, Config{IdempotencyTTL: 5 * time.Minute})
	ctx := context.Background()

	if g.IsDuplicate(ctx, "reply-token-1") {
		t.Fatal("first claim should not be a duplicate")
	}
	if !g.IsDuplicate(ctx, "reply-token-1") {
		t.Fatal("second claim should be a duplicate")
	}
	mr.FastForward(5*time.Minute + time.Second)
	if g.IsDuplicate(ctx, "reply-token-1") {
		t.Fatal("claim after TTL should not be a duplicate")
	}
	if g.IsDuplicate(ctx, "") || g.IsDuplicate(ctx, "") {
		t.Error("empty token is never a duplicate")
	}
}

func TestClaimOfflineNotice(t *testing.T) {
	g, mr := newGuard(t, Config{OfflineCooldown: 10 * time.Minute})
	ctx := context.Background()

	if !g.ClaimOfflineNotice(ctx, "shop", "u1") {
		t.Fatal("first notice should be claimed")
	}
	if g.ClaimOfflineNotice(ctx, "shop", "u1") {
		t.Fatal("second notice within cooldown should be refused")
	}
	if !g.ClaimOfflineNotice(ctx, "shop", "u2") {
		t.Error("cooldown is per user")
	}
	mr.FastForward(10*time.Minute + time.Second)
	if !g.ClaimOfflineNotice(ctx, "shop", "u1") {
		t.Error("notice after cooldown should be claimed")
	}
}

func TestGuard_FailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	g := New(rdb, Config{MaxMessages: 1})
	mr.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if g.IsRateLimited(ctx, "shop", "u1") {
			t.Fatal("unreachable store must not limit")
		}
	}
	if g.IsDuplicate(ctx, "tok") || g.IsDuplicate(ctx, "tok") {
		t.Error("unreachable store must not report duplicates")
	}
	if !g.ClaimOfflineNotice(ctx, "shop", "u1") {
		t.Error("unreachable store must allow the notice")
	}
}

func TestNew_SubMillisecondWindow(t *testing.T) {
	g, _ := newGuard(t, Config{MaxMessages: 1, Window: 500 * time.Microsecond})
	if g.cfg.Window != time.Millisecond {
		t.Fatalf("window = %v, want 1ms", g.cfg.Window)
	}
	now := time.Date(2024, 11, 4, 10, 0, 0, 0, time.UTC)
	g.SetClock(func() time.Time { return now })
	ctx := context.Background()

	if g.IsRateLimited(ctx, "shop", "u1") {
		t.Fatal("first call limited")
	}
	if !g.IsRateLimited(ctx, "shop", "u1") {
		t.Error("second call in the same window should be limited")
	}
}
