package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/salebot/internal/business/businesstest"
	"github.com/nextlevelbuilder/salebot/internal/providers"
	"github.com/nextlevelbuilder/salebot/internal/store"
	"github.com/nextlevelbuilder/salebot/internal/tools"
)

// scriptedProvider replays responses in order and records every request.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*providers.ChatResponse
	err       error
	requests  []providers.ChatRequest
}

func (p *scriptedProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &providers.ChatResponse{Content: "done"}, nil
	}
	r := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return r, nil
}
func (p *scriptedProvider) DefaultModel() string { return "scripted" }
func (p *scriptedProvider) Name() string         { return "scripted" }

type memUsage struct {
	mu      sync.Mutex
	records []store.UsageRecord
}

func (m *memUsage) RecordUsage(_ context.Context, r store.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memUsage) UsageTotals(context.Context, string, time.Time) (*store.UsageTotals, error) {
	return &store.UsageTotals{}, nil
}

func toolCall(id, name string, args map[string]interface{}) providers.ToolCall {
	return providers.ToolCall{ID: id, Name: name, Arguments: args}
}

func usage(p, c int) *providers.Usage {
	return &providers.Usage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c}
}

func newLoop(t *testing.T, p providers.Provider, u store.UsageStore, maxIter int) *Loop {
	t.Helper()
	exec, err := tools.NewExecutor(nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewLoop(LoopConfig{Provider: p, MaxIterations: maxIter, Tools: exec, Usage: u})
}

func TestRun_DirectAnswer(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{{Content: "สวัสดีค่ะ", Usage: usage(100, 10)}}}
	u := &memUsage{}
	res, err := newLoop(t, p, u, 5).Run(context.Background(), RunRequest{Message: "สวัสดี", Business: businesstest.Shop()})
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != "สวัสดีค่ะ" || res.Iterations != 1 || len(res.ToolsUsed) != 0 {
		t.Errorf("res = %+v", res)
	}
	if len(u.records) != 1 || u.records[0].TotalTokens != 110 || u.records[0].Iterations != 1 {
		t.Errorf("usage records = %+v", u.records)
	}
}

func TestRun_ToolThenAnswer_AccumulatesUsage(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{toolCall("c1", "get_product_info", map[string]interface{}{"model_name": "Mini 4K"})}, Usage: usage(200, 20)},
		{Content: "Mini 4K ราคา 9,990 บาทค่ะ", Usage: usage(300, 30)},
	}}
	u := &memUsage{}
	res, err := newLoop(t, p, u, 5).Run(context.Background(), RunRequest{Message: "Mini 4K เท่าไหร่", Business: businesstest.Shop()})
	if err != nil {
		t.Fatal(err)
	}
	if res.Iterations != 2 || len(res.ToolsUsed) != 1 || res.ToolsUsed[0] != "get_product_info" {
		t.Errorf("res = %+v", res)
	}
	if len(u.records) != 1 {
		t.Fatalf("want exactly one usage record, got %d", len(u.records))
	}
	if r := u.records[0]; r.PromptTokens != 500 || r.CompletionTokens != 50 || r.TotalTokens != 550 {
		t.Errorf("usage = %+v", r)
	}

	// second request carries the assistant tool call and the tool result
	second := p.requests[1].Messages
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "c1" || !strings.Contains(last.Content, "9,990") {
		t.Errorf("tool message = %+v", last)
	}
	if second[len(second)-2].Role != "assistant" || len(second[len(second)-2].ToolCalls) != 1 {
		t.Errorf("assistant tool-call message missing: %+v", second[len(second)-2])
	}
}

func TestRun_IterationCapReturnsFallback(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{toolCall("c", "search_knowledge", map[string]interface{}{"query": "x"})}, Usage: usage(10, 1)},
	}}
	u := &memUsage{}
	biz := businesstest.Shop()
	res, err := newLoop(t, p, u, 3).Run(context.Background(), RunRequest{Message: "?", Business: biz})
	if err != nil {
		t.Fatal(err)
	}
	if res.Iterations != 3 || !res.CapReached {
		t.Errorf("iterations = %d cap = %v", res.Iterations, res.CapReached)
	}
	if res.Content != biz.Fallback() {
		t.Errorf("content = %q, want fallback", res.Content)
	}
	if len(res.ToolsUsed) != 3 {
		t.Errorf("tools used = %v", res.ToolsUsed)
	}
	if len(p.requests) != 3 {
		t.Errorf("provider calls = %d", len(p.requests))
	}
	if len(u.records) != 1 || u.records[0].TotalTokens != 33 {
		t.Errorf("usage records = %+v", u.records)
	}
}

func TestRun_FlagLatchesAcrossIterations(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{toolCall("c1", "flag_for_admin", map[string]interface{}{"reason": "ลูกค้าโกรธ", "urgency": "high"})}},
		{ToolCalls: []providers.ToolCall{toolCall("c2", "search_knowledge", map[string]interface{}{"query": "ประกัน"})}},
		{Content: "แอดมินจะติดต่อกลับค่ะ"},
	}}
	res, err := newLoop(t, p, nil, 5).Run(context.Background(), RunRequest{Message: "ห่วยมาก", Business: businesstest.Shop()})
	if err != nil {
		t.Fatal(err)
	}
	if !res.FlaggedForAdmin || res.FlagReason != "ลูกค้าโกรธ" || res.FlagUrgency != "high" {
		t.Errorf("flag not latched: %+v", res)
	}
	if res.Iterations != 3 {
		t.Errorf("iterations = %d", res.Iterations)
	}
}

func TestRun_FlagLastWriteWins(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{ToolCalls: []providers.ToolCall{
			toolCall("c1", "flag_for_admin", map[string]interface{}{"reason": "first", "urgency": "low"}),
			toolCall("c2", "flag_for_admin", map[string]interface{}{"reason": "second", "urgency": "high"}),
		}},
		{Content: "ok"},
	}}
	res, err := newLoop(t, p, nil, 5).Run(context.Background(), RunRequest{Message: "x", Business: businesstest.Shop()})
	if err != nil {
		t.Fatal(err)
	}
	if res.FlagReason != "second" || res.FlagUrgency != "high" {
		t.Errorf("res = %+v", res)
	}
}

func TestRun_EmptyContentFallsBack(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{{Content: "  <think>hmm</think> "}}}
	biz := businesstest.Shop()
	res, err := newLoop(t, p, nil, 5).Run(context.Background(), RunRequest{Message: "x", Business: biz})
	if err != nil {
		t.Fatal(err)
	}
	if res.Content != biz.Fallback() {
		t.Errorf("content = %q", res.Content)
	}
}

func TestRun_ProviderErrorSurfaces(t *testing.T) {
	boom := errors.New("upstream down")
	p := &scriptedProvider{err: boom}
	u := &memUsage{}
	_, err := newLoop(t, p, u, 5).Run(context.Background(), RunRequest{Message: "x", Business: businesstest.Shop()})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(p.requests) != 1 {
		t.Errorf("provider must not be retried, calls = %d", len(p.requests))
	}
	if len(u.records) != 0 {
		t.Errorf("no usage record on provider error, got %d", len(u.records))
	}
}

func TestRun_NoProvider(t *testing.T) {
	l := NewLoop(LoopConfig{})
	if _, err := l.Run(context.Background(), RunRequest{Message: "x", Business: businesstest.Shop()}); !errors.Is(err, ErrNoProvider) {
		t.Errorf("err = %v", err)
	}
}

func TestNewLoop_MaxIterations(t *testing.T) {
	if n := NewLoop(LoopConfig{}).MaxIterations(); n != 5 {
		t.Errorf("default cap = %d, want 5", n)
	}
	if n := NewLoop(LoopConfig{MaxIterations: 3}).MaxIterations(); n != 3 {
		t.Errorf("cap = %d, want 3", n)
	}
}

func TestRun_EstimatesUsageWhenMissing(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{{Content: "ok"}}}
	u := &memUsage{}
	if _, err := newLoop(t, p, u, 5).Run(context.Background(), RunRequest{Message: "hello", Business: businesstest.Shop()}); err != nil {
		t.Fatal(err)
	}
	if len(u.records) != 1 || !u.records[0].Estimated || u.records[0].PromptTokens == 0 {
		t.Errorf("usage = %+v", u.records)
	}
}

func TestBuildMessages_DedupesTailCustomerTurn(t *testing.T) {
	p := &scriptedProvider{}
	l := newLoop(t, p, nil, 5)
	now := time.Now()
	history := []store.ChatMessage{
		{Role: store.RoleCustomer, Content: "สวัสดี", Timestamp: now},
		{Role: store.RoleBot, Content: "สวัสดีค่ะ", Timestamp: now},
		{Role: store.RoleAdmin, Content: "แอดมินตอบค่ะ", Timestamp: now},
		{Role: store.RoleCustomer, Content: "Mini 4K เท่าไหร่", Timestamp: now},
	}
	msgs := l.buildMessages(RunRequest{Message: "Mini 4K เท่าไหร่", History: history, Business: businesstest.Shop()})

	// system + 3 history + current user
	if len(msgs) != 5 {
		t.Fatalf("messages = %d: %+v", len(msgs), msgs)
	}
	count := 0
	for _, m := range msgs {
		if m.Role == "user" && m.Content == "Mini 4K เท่าไหร่" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("current message appears %d times", count)
	}
	if msgs[3].Role != "assistant" {
		t.Errorf("admin message role = %q", msgs[3].Role)
	}
}

func TestLimitHistory(t *testing.T) {
	var h []store.ChatMessage
	for i := 0; i < 15; i++ {
		h = append(h, store.ChatMessage{Role: store.RoleBot, Content: strings.Repeat("x", i+1)})
	}
	got := limitHistory(h, "q", 10)
	if len(got) != 10 || got[0].Content != strings.Repeat("x", 6) {
		t.Errorf("limitHistory kept %d, first %q", len(got), got[0].Content)
	}

	// non-matching tail is kept
	h2 := []store.ChatMessage{{Role: store.RoleCustomer, Content: "a"}}
	if got := limitHistory(h2, "b", 10); len(got) != 1 {
		t.Errorf("non-duplicate tail dropped")
	}
	// matching bot tail is kept (only customer turns dedupe)
	h3 := []store.ChatMessage{{Role: store.RoleBot, Content: "b"}}
	if got := limitHistory(h3, "b", 10); len(got) != 1 {
		t.Errorf("bot tail dropped")
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	biz := businesstest.Shop()
	got := BuildSystemPrompt(biz, "ลูกค้าสนใจ Mini 4K", "ขณะนี้อยู่นอกเวลาทำการ")
	for _, want := range []string{biz.Identity, "DJI Mini 4K | 9,990 บาท", "ผ่อนชำระ", "LINE @skydrone", "ลูกค้าสนใจ Mini 4K", "นอกเวลาทำการ"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSanitizeAssistantContent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"สวัสดีค่ะ", "สวัสดีค่ะ"},
		{"<think>plan</think>ราคา 9,990 บาทค่ะ", "ราคา 9,990 บาทค่ะ"},
		{"<final>ok</final>", "ok"},
		{"a\n\na\n\nb", "a\n\nb"},
		{`<tool_call>{"name":"x"}</tool_call>`, ""},
	}
	for _, tt := range tests {
		if got := SanitizeAssistantContent(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{{Content: "ลูกค้าสนใจโดรนมือใหม่"}}}
	l := newLoop(t, p, nil, 5)
	got, u, err := l.Summarize(context.Background(), "เดิม", []store.ChatMessage{
		{Role: store.RoleCustomer, Content: "มือใหม่ควรซื้ออะไร"},
		{Role: store.RoleBot, Content: "แนะนำ Mini 4K ค่ะ"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "ลูกค้าสนใจโดรนมือใหม่" || u == nil {
		t.Errorf("got %q, usage %+v", got, u)
	}
	prompt := p.requests[0].Messages[0].Content
	if !strings.Contains(prompt, "สรุปเดิม: เดิม") || !strings.Contains(prompt, "ลูกค้า: มือใหม่ควรซื้ออะไร") {
		t.Errorf("prompt = %q", prompt)
	}
}
