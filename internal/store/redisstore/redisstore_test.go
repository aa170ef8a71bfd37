package redisstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/salebot/internal/store"
)

func newClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

func TestConversations_AppendAndRetention(t *testing.T) {
	rdb, mr := newClient(t)
	c := NewConversations(rdb, 4, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := c.AppendMessages(ctx, "shop", "u1",
			store.ChatMessage{Role: store.RoleCustomer, Content: fmt.Sprintf("q%d", i)},
			store.ChatMessage{Role: store.RoleBot, Content: fmt.Sprintf("a%d", i)},
		)
		if err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := c.GetMessages(ctx, "shop", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 4 {
		t.Fatalf("len = %d, want 4", len(msgs))
	}
	if msgs[0].Content != "q1" || msgs[3].Content != "a2" {
		t.Errorf("kept wrong window: %q .. %q", msgs[0].Content, msgs[3].Content)
	}
	if msgs[0].ID == "" || msgs[0].Timestamp.IsZero() {
		t.Error("id and timestamp should be filled in")
	}
	if n, _ := c.CountMessages(ctx, "shop", "u1"); n != 4 {
		t.Errorf("count = %d", n)
	}
	if n, _ := c.TotalMessages(ctx, "shop", "u1"); n != 6 {
		t.Errorf("total = %d, want 6 past the retention window", n)
	}
	if n, _ := c.TotalMessages(ctx, "shop", "u2"); n != 0 {
		t.Errorf("u2 total = %d", n)
	}
	if ttl := mr.TTL("chat:shop:u1:total"); ttl <= 0 {
		t.Errorf("total key has no ttl")
	}
	if ttl := mr.TTL("chat:shop:u1:messages"); ttl <= 0 {
		t.Errorf("messages key has no ttl")
	}

	other, _ := c.GetMessages(ctx, "shop", "u2")
	if len(other) != 0 {
		t.Errorf("u2 history = %v", other)
	}
}

func TestConversations_SkipsCorruptEntries(t *testing.T) {
	rdb, mr := newClient(t)
	c := NewConversations(rdb, 0, 0)
	ctx := context.Background()

	if err := c.AppendMessages(ctx, "shop", "u1", store.ChatMessage{Role: store.RoleCustomer, Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	mr.RPush("chat:shop:u1:messages", "{not json")

	msgs, err := c.GetMessages(ctx, "shop", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Errorf("msgs = %+v", msgs)
	}
}

func TestConversations_Summary(t *testing.T) {
	rdb, _ := newClient(t)
	c := NewConversations(rdb, 0, 0)
	ctx := context.Background()

	s, err := c.GetSummary(ctx, "shop", "u1")
	if err != nil || s != nil {
		t.Fatalf("missing summary = %v, %v", s, err)
	}
	if err := c.SetSummary(ctx, "shop", "u1", store.Summary{Text: "ลูกค้าสนใจ Mini 4K", MessageCount: 20}); err != nil {
		t.Fatal(err)
	}
	s, err = c.GetSummary(ctx, "shop", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if s.Text != "ลูกค้าสนใจ Mini 4K" || s.MessageCount != 20 || s.UpdatedAt.IsZero() {
		t.Errorf("summary = %+v", s)
	}
}

func TestConversations_BotSwitches(t *testing.T) {
	rdb, _ := newClient(t)
	c := NewConversations(rdb, 0, 0)
	ctx := context.Background()

	if on, _ := c.IsBotEnabled(ctx, "shop", "u1"); !on {
		t.Error("bot should default to enabled")
	}
	if on, _ := c.IsGlobalBotEnabled(ctx, "shop"); !on {
		t.Error("global switch should default to enabled")
	}

	c.SetBotEnabled(ctx, "shop", "u1", false)
	if on, _ := c.IsBotEnabled(ctx, "shop", "u1"); on {
		t.Error("bot should be disabled for u1")
	}
	if on, _ := c.IsBotEnabled(ctx, "shop", "u2"); !on {
		t.Error("switch is per user")
	}
	c.SetBotEnabled(ctx, "shop", "u1", true)
	if on, _ := c.IsBotEnabled(ctx, "shop", "u1"); !on {
		t.Error("bot should be re-enabled")
	}

	c.SetGlobalBotEnabled(ctx, "shop", false)
	if on, _ := c.IsGlobalBotEnabled(ctx, "shop"); on {
		t.Error("global switch should be off")
	}
	if on, _ := c.IsGlobalBotEnabled(ctx, "other"); !on {
		t.Error("global switch is per business")
	}
}

func TestConversations_Profile(t *testing.T) {
	rdb, _ := newClient(t)
	c := NewConversations(rdb, 0, 0)
	ctx := context.Background()

	first := time.Date(2024, 11, 4, 9, 0, 0, 0, time.UTC)
	later := first.Add(2 * time.Hour)

	if p, _ := c.GetProfile(ctx, "shop", "u1"); p != nil {
		t.Fatalf("unexpected profile %+v", p)
	}
	c.TouchProfile(ctx, "shop", "u1", store.ProfileUpdate{Channel: "line", DisplayName: "Somchai", At: first})
	c.TouchProfile(ctx, "shop", "u1", store.ProfileUpdate{Channel: "line", At: later})

	p, err := c.GetProfile(ctx, "shop", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !p.FirstSeen.Equal(first) || !p.LastSeen.Equal(later) {
		t.Errorf("seen = %v .. %v", p.FirstSeen, p.LastSeen)
	}
	if p.MessageCount != 2 || p.DisplayName != "Somchai" || p.Channel != "line" || p.UserID != "u1" {
		t.Errorf("profile = %+v", p)
	}
}

func TestFlags_NewestFirstAndCapped(t *testing.T) {
	rdb, mr := newClient(t)
	f := NewFlags(rdb, 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := f.AddFlag(ctx, store.AgentFlag{BusinessID: "shop", UserID: "u1", Reason: fmt.Sprintf("r%d", i), Urgency: store.UrgencyHigh})
		if err != nil {
			t.Fatal(err)
		}
	}
	got, err := f.ListFlags(ctx, "shop", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Reason != "r4" || got[2].Reason != "r2" {
		t.Errorf("order = %s, %s, %s", got[0].Reason, got[1].Reason, got[2].Reason)
	}
	if got[0].ID == "" {
		t.Error("flag id should be generated")
	}

	if two, _ := f.ListFlags(ctx, "shop", 2); len(two) != 2 {
		t.Errorf("limit 2 returned %d", len(two))
	}
	if ttl := mr.TTL("flags:shop"); ttl <= 0 || ttl > time.Hour {
		t.Errorf("ttl = %v", ttl)
	}
}

func TestReplyBus_PublishSubscribe(t *testing.T) {
	rdb, _ := newClient(t)
	bus := NewReplyBus(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "shop", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, Reply{BusinessID: "shop", UserID: "u2", Content: "not yours"}); err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, Reply{BusinessID: "shop", UserID: "u1", Role: "bot", Content: "สวัสดีค่ะ"}); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-ch:
		if r.Content != "สวัสดีค่ะ" || r.Role != "bot" {
			t.Errorf("reply = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply received")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
