package inbound

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/salebot/internal/business"
	"github.com/nextlevelbuilder/salebot/internal/business/businesstest"
	"github.com/nextlevelbuilder/salebot/internal/channels"
	"github.com/nextlevelbuilder/salebot/internal/guard"
	"github.com/nextlevelbuilder/salebot/internal/pipeline"
	"github.com/nextlevelbuilder/salebot/internal/providers"
	"github.com/nextlevelbuilder/salebot/internal/store"
	"github.com/nextlevelbuilder/salebot/internal/store/redisstore"
)

type memFunnel struct {
	mu     sync.Mutex
	events []string
}

func (f *memFunnel) RecordEvent(_ context.Context, e store.FunnelEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e.Event)
	return nil
}

func (f *memFunnel) CountEvents(context.Context, string, time.Time) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, e := range f.events {
		out[e]++
	}
	return out, nil
}

type memSender struct {
	mu  sync.Mutex
	out []channels.OutboundMessage
}

func (s *memSender) Send(_ context.Context, m channels.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, m)
	return nil
}

type fakeSummarizer struct {
	calls    int
	previous string
	got      int
}

func (f *fakeSummarizer) Summarize(_ context.Context, previous string, msgs []store.ChatMessage) (string, *providers.Usage, error) {
	f.calls++
	f.previous = previous
	f.got = len(msgs)
	return "สรุป: ลูกค้าสนใจโดรน", &providers.Usage{TotalTokens: 10}, nil
}

type failingRouter struct{}

func (failingRouter) Decide(context.Context, *pipeline.Request) (*pipeline.Decision, error) {
	return nil, context.DeadlineExceeded
}

type harness struct {
	svc    *Service
	conv   *redisstore.Conversations
	flags  *redisstore.Flags
	funnel *memFunnel
	sender *memSender
	mr     *miniredis.Miniredis
	deps   Deps
}

func newHarness(t *testing.T, cfg Config, guardCfg guard.Config, mutate func(*Deps)) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	router, err := pipeline.NewOrchestrator(pipeline.Config{})
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		conv:   redisstore.NewConversations(rdb, 0, 0),
		flags:  redisstore.NewFlags(rdb, 0, 0),
		funnel: &memFunnel{},
		sender: &memSender{},
		mr:     mr,
	}
	deps := Deps{
		Gate:     guard.New(rdb, guardCfg),
		Resolver: business.NewResolver("shop", businesstest.Shop()),
		Router:   router,
		Stores: &store.Stores{
			Conversations: h.conv,
			Flags:         h.flags,
			Funnel:        h.funnel,
		},
		Sender: h.sender,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.deps = deps
	h.svc = NewService(cfg, deps)
	return h
}

func customerMsg(content string) Message {
	return Message{BusinessID: "shop", UserID: "u1", Channel: channels.Web, Content: content}
}

func TestHandle_RuleReplyIsPersistedAndSent(t *testing.T) {
	h := newHarness(t, Config{}, guard.Config{}, nil)
	ctx := context.Background()

	r, err := h.svc.Handle(ctx, customerMsg("มีประกันไหมคะ"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusReplied || r.LayerName != pipeline.NameFAQ || !strings.Contains(r.Content, "ประกันศูนย์") {
		t.Fatalf("reply = %+v", r)
	}

	msgs, _ := h.conv.GetMessages(ctx, "shop", "u1")
	if len(msgs) != 2 {
		t.Fatalf("stored %d messages", len(msgs))
	}
	if msgs[0].Role != store.RoleCustomer || msgs[1].Role != store.RoleBot {
		t.Errorf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].PipelineLayer != pipeline.LayerFAQ || msgs[1].PipelineLayerName != pipeline.NameFAQ {
		t.Errorf("layer metadata = %d/%s", msgs[1].PipelineLayer, msgs[1].PipelineLayerName)
	}

	if len(h.sender.out) != 1 || h.sender.out[0].Role != "bot" || h.sender.out[0].Channel != channels.Web {
		t.Errorf("sent = %+v", h.sender.out)
	}
	counts, _ := h.funnel.CountEvents(ctx, "shop", time.Time{})
	if counts[store.EventMessageReceived] != 1 || counts[store.EventRuleAnswered] != 1 {
		t.Errorf("funnel = %v", counts)
	}
	if p, _ := h.conv.GetProfile(ctx, "shop", "u1"); p == nil || p.MessageCount != 1 {
		t.Errorf("profile = %+v", p)
	}
}

func TestHandle_UnknownBusinessUsesDefaultTenant(t *testing.T) {
	h := newHarness(t, Config{}, guard.Config{}, nil)
	msg := customerMsg("มีประกันไหม")
	msg.BusinessID = "nope"
	r, err := h.svc.Handle(context.Background(), msg)
	if err != nil {
		t.Fatal(err)
	}
	if r.LayerName != pipeline.NameFAQ {
		t.Errorf("reply = %+v", r)
	}
	if n, _ := h.conv.CountMessages(context.Background(), "shop", "u1"); n != 2 {
		t.Errorf("stored under default tenant: %d", n)
	}
}

func TestHandle_DuplicateDelivery(t *testing.T) {
	h := newHarness(t, Config{}, guard.Config{}, nil)
	ctx := context.Background()
	msg := customerMsg("มีประกันไหม")
	msg.DeliveryID = "evt-1"

	if r, _ := h.svc.Handle(ctx, msg); r.Status != StatusReplied {
		t.Fatalf("first = %+v", r)
	}
	r, err := h.svc.Handle(ctx, msg)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusDuplicate || r.Content != "" {
		t.Errorf("second = %+v", r)
	}
	if n, _ := h.conv.CountMessages(ctx, "shop", "u1"); n != 2 {
		t.Errorf("stored %d messages", n)
	}
	if len(h.sender.out) != 1 {
		t.Errorf("sent %d replies", len(h.sender.out))
	}
}

func TestHandle_RateLimited(t *testing.T) {
	h := newHarness(t, Config{}, guard.Config{MaxMessages: 2, Window: time.Minute}, nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if r, _ := h.svc.Handle(ctx, customerMsg("สวัสดี")); r.Status != StatusReplied {
			t.Fatalf("call %d = %+v", i, r)
		}
	}
	r, _ := h.svc.Handle(ctx, customerMsg("สวัสดี"))
	if r.Status != StatusRateLimited {
		t.Errorf("third = %+v", r)
	}
	counts, _ := h.funnel.CountEvents(ctx, "shop", time.Time{})
	if counts[store.EventRateLimited] != 1 {
		t.Errorf("funnel = %v", counts)
	}
}

func TestHandle_BotDisabled(t *testing.T) {
	for _, global := range []bool{false, true} {
		h := newHarness(t, Config{}, guard.Config{}, nil)
		ctx := context.Background()
		if global {
			h.conv.SetGlobalBotEnabled(ctx, "shop", false)
		} else {
			h.conv.SetBotEnabled(ctx, "shop", "u1", false)
		}

		r, err := h.svc.Handle(ctx, customerMsg("มีประกันไหม"))
		if err != nil {
			t.Fatal(err)
		}
		if r.Status != StatusBotDisabled || r.Content != "" {
			t.Errorf("global=%v reply = %+v", global, r)
		}
		msgs, _ := h.conv.GetMessages(ctx, "shop", "u1")
		if len(msgs) != 1 || msgs[0].Role != store.RoleCustomer {
			t.Errorf("global=%v stored = %+v", global, msgs)
		}
		if len(h.sender.out) != 0 {
			t.Errorf("global=%v sent %d replies", global, len(h.sender.out))
		}
	}
}

func TestHandle_EscalationRaisesFlag(t *testing.T) {
	h := newHarness(t, Config{}, guard.Config{}, nil)
	ctx := context.Background()

	r, err := h.svc.Handle(ctx, customerMsg("ขอคุยกับแอดมินค่ะ"))
	if err != nil {
		t.Fatal(err)
	}
	if !r.Flagged || r.LayerName != pipeline.NameAdminEscalation {
		t.Fatalf("reply = %+v", r)
	}
	flags, _ := h.flags.ListFlags(ctx, "shop", 10)
	if len(flags) != 1 {
		t.Fatalf("flags = %+v", flags)
	}
	f := flags[0]
	if f.Urgency != store.UrgencyHigh || f.Source != pipeline.NameAdminEscalation || f.ConversationID != "shop:u1" || f.UserMessage != "ขอคุยกับแอดมินค่ะ" {
		t.Errorf("flag = %+v", f)
	}
	counts, _ := h.funnel.CountEvents(ctx, "shop", time.Time{})
	if counts[store.EventFlagged] != 1 {
		t.Errorf("funnel = %v", counts)
	}
}

func TestHandle_RouterFailureSendsApology(t *testing.T) {
	h := newHarness(t, Config{ApologyMessage: "ขออภัยค่ะ"}, guard.Config{}, func(d *Deps) {
		d.Router = failingRouter{}
	})
	ctx := context.Background()

	r, err := h.svc.Handle(ctx, customerMsg("สวัสดี"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != StatusError || r.Content != "ขออภัยค่ะ" {
		t.Errorf("reply = %+v", r)
	}
	msgs, _ := h.conv.GetMessages(ctx, "shop", "u1")
	if len(msgs) != 1 || msgs[0].Role != store.RoleCustomer {
		t.Errorf("stored = %+v", msgs)
	}
	if len(h.sender.out) != 1 || h.sender.out[0].Content != "ขออภัยค่ะ" {
		t.Errorf("sent = %+v", h.sender.out)
	}
}

func TestHandle_InvalidMessage(t *testing.T) {
	h := newHarness(t, Config{}, guard.Config{}, nil)
	for _, m := range []Message{
		{BusinessID: "shop", Content: "hi"},
		{BusinessID: "shop", UserID: "u1", Content: "   "},
	} {
		if _, err := h.svc.Handle(context.Background(), m); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("%+v: err = %v", m, err)
		}
	}
}

func TestHandle_RollingSummary(t *testing.T) {
	sum := &fakeSummarizer{}
	h := newHarness(t, Config{SummaryThreshold: 4}, guard.Config{}, func(d *Deps) {
		d.Summarizer = sum
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		h.svc.Handle(ctx, customerMsg("สวัสดี"))
	}
	if sum.calls != 0 {
		t.Fatalf("summarized at 4 messages")
	}
	h.svc.Handle(ctx, customerMsg("สวัสดี"))
	if sum.calls != 1 {
		t.Fatalf("calls = %d after 6 messages", sum.calls)
	}
	if sum.got != 4 {
		t.Errorf("summarized %d older messages, want 4", sum.got)
	}
	s, _ := h.conv.GetSummary(ctx, "shop", "u1")
	if s == nil || s.MessageCount != 6 || !strings.HasPrefix(s.Text, "สรุป") {
		t.Fatalf("summary = %+v", s)
	}

	// Not enough new turns yet.
	h.svc.Handle(ctx, customerMsg("สวัสดี"))
	if sum.calls != 1 {
		t.Errorf("re-summarized too early")
	}
	h.svc.Handle(ctx, customerMsg("สวัสดี"))
	if sum.calls != 2 || sum.previous == "" {
		t.Errorf("calls = %d, previous = %q", sum.calls, sum.previous)
	}
}

func TestHandle_RollingSummaryPastRetention(t *testing.T) {
	sum := &fakeSummarizer{}
	cfg := Config{SummaryThreshold: 4}
	h := newHarness(t, cfg, guard.Config{MaxMessages: 1000}, func(d *Deps) {
		d.Summarizer = sum
	})
	rdb := redis.NewClient(&redis.Options{Addr: h.mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	h.conv = redisstore.NewConversations(rdb, 10, 0)
	h.deps.Stores.Conversations = h.conv
	h.svc = NewService(cfg, h.deps)
	ctx := context.Background()

	var calls []int
	for i := 0; i < 30; i++ {
		h.svc.Handle(ctx, customerMsg("สวัสดี"))
		calls = append(calls, sum.calls)
	}
	// First summary at 6 messages, then one every 4 new messages (2 turns).
	if sum.calls != 14 {
		t.Fatalf("calls = %d, want 14; per turn %v", sum.calls, calls)
	}
	if sum.got != 4 {
		t.Errorf("last refresh summarized %d messages, want only the 4 new ones", sum.got)
	}
	msgs, _ := h.conv.GetMessages(ctx, "shop", "u1")
	if len(msgs) != 10 {
		t.Errorf("history = %d, want trimmed to 10", len(msgs))
	}
	s, _ := h.conv.GetSummary(ctx, "shop", "u1")
	if s == nil || s.MessageCount != 58 {
		t.Errorf("summary = %+v, want taken at 58 messages", s)
	}
	if _, busy := h.svc.summarizing.Load("shop:u1"); busy {
		t.Error("summarize claim left behind")
	}
}

func TestHandle_RateLimitUsesResolvedBusiness(t *testing.T) {
	h := newHarness(t, Config{}, guard.Config{MaxMessages: 1}, nil)
	now := time.Date(2024, 11, 4, 10, 0, 5, 0, time.UTC)
	h.deps.Gate.(*guard.Guard).SetClock(func() time.Time { return now })
	ctx := context.Background()

	var limited int
	for i := 0; i < 5; i++ {
		m := customerMsg("มีประกันไหมคะ")
		m.BusinessID = fmt.Sprintf("bogus-%d", i)
		r, err := h.svc.Handle(ctx, m)
		if err != nil {
			t.Fatal(err)
		}
		if r.Status == StatusRateLimited {
			limited++
		}
	}
	if limited != 4 {
		t.Errorf("limited = %d, want 4: unknown ids share the default tenant's window", limited)
	}
	msgs, _ := h.conv.GetMessages(ctx, "shop", "u1")
	if len(msgs) != 2 {
		t.Errorf("stored %d messages under shop, want 2", len(msgs))
	}
}

func TestSendAdminMessage(t *testing.T) {
	h := newHarness(t, Config{}, guard.Config{}, nil)
	ctx := context.Background()

	if err := h.svc.SendAdminMessage(ctx, "shop", "u1", channels.Web, "แอดมินมาแล้วค่ะ"); err != nil {
		t.Fatal(err)
	}
	msgs, _ := h.conv.GetMessages(ctx, "shop", "u1")
	if len(msgs) != 1 || msgs[0].Role != store.RoleAdmin {
		t.Errorf("stored = %+v", msgs)
	}
	if len(h.sender.out) != 1 || h.sender.out[0].Role != "admin" {
		t.Errorf("sent = %+v", h.sender.out)
	}
	if err := h.svc.SendAdminMessage(ctx, "shop", "", "", "x"); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("err = %v", err)
	}
}

func TestKeyedMutex_Serializes(t *testing.T) {
	k := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("shop:u1")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d", counter)
	}
	if n := k.size(); n != 0 {
		t.Errorf("%d locks left behind", n)
	}
}
