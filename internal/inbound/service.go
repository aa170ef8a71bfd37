// Package inbound is the request path for one customer message: tenant
// lookup, guard, bot switches, routing, persistence, side effects and
// delivery, in that order.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nextlevelbuilder/salebot/internal/business"
	"github.com/nextlevelbuilder/salebot/internal/channels"
	"github.com/nextlevelbuilder/salebot/internal/pipeline"
	"github.com/nextlevelbuilder/salebot/internal/providers"
	"github.com/nextlevelbuilder/salebot/internal/store"
	"github.com/nextlevelbuilder/salebot/internal/tasks"
)

var messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "salebot",
	Subsystem: "inbound",
	Name:      "messages_total",
	Help:      "Inbound customer messages by final status",
}, []string{"status"})

// Reply statuses.
const (
	StatusReplied     = "replied"
	StatusDuplicate   = "duplicate"
	StatusRateLimited = "rate_limited"
	StatusBotDisabled = "bot_disabled"
	StatusError       = "error"
)

// ErrInvalidMessage is returned for messages missing a user or content.
var ErrInvalidMessage = errors.New("invalid message")

// Message is a normalized inbound customer message.
type Message struct {
	BusinessID  string `json:"businessId"`
	UserID      string `json:"userId"`
	Channel     string `json:"channel"`
	Content     string `json:"content"`
	DisplayName string `json:"displayName,omitempty"`
	DeliveryID  string `json:"deliveryId,omitempty"` // platform delivery id, for idempotency
}

// Reply is what the caller gets back for one message.
type Reply struct {
	Status    string `json:"status"`
	Content   string `json:"content,omitempty"`
	LayerID   int    `json:"layer,omitempty"`
	LayerName string `json:"layerName,omitempty"`
	Flagged   bool   `json:"flagged,omitempty"`
}

// Gate is the pre-pipeline guard.
type Gate interface {
	IsDuplicate(ctx context.Context, token string) bool
	IsRateLimited(ctx context.Context, businessID, userID string) bool
}

// Resolver returns the tenant bundle for an id.
type Resolver interface {
	Get(id string) *business.BusinessConfig
}

// Router picks the reply for one message.
type Router interface {
	Decide(ctx context.Context, req *pipeline.Request) (*pipeline.Decision, error)
}

// Summarizer condenses older turns into a rolling summary.
type Summarizer interface {
	Summarize(ctx context.Context, previous string, msgs []store.ChatMessage) (string, *providers.Usage, error)
}

// Sender delivers replies to the customer's platform.
type Sender interface {
	Send(ctx context.Context, msg channels.OutboundMessage) error
}

// Config holds the request-path tunables.
type Config struct {
	HistoryWindow    int           // messages loaded per request
	RequestTimeout   time.Duration // deadline for routing one message
	ApologyMessage   string
	SummaryThreshold int // 0 = never summarize
}

// Deps are the collaborators of a Service. Sender, Summarizer and Tasks are
// optional.
type Deps struct {
	Gate       Gate
	Resolver   Resolver
	Router     Router
	Stores     *store.Stores
	Summarizer Summarizer
	Sender     Sender
	Tasks      tasks.Runner
}

// Service handles inbound messages. Messages of one conversation are
// processed one at a time within this process.
type Service struct {
	cfg  Config
	deps Deps

	convMu      *keyedMutex
	summarizing sync.Map // conversation id → struct{} while a refresh runs
	now         func() time.Time
}

func NewService(cfg Config, deps Deps) *Service {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 45 * time.Second
	}
	if deps.Tasks == nil {
		deps.Tasks = tasks.Inline{}
	}
	return &Service{
		cfg:    cfg,
		deps:   deps,
		convMu: newKeyedMutex(),
		now:    time.Now,
	}
}

// Handle runs one customer message end to end. The returned error is only
// for invalid input or a failed history read; routing failures are answered
// with the apology text.
func (s *Service) Handle(ctx context.Context, msg Message) (*Reply, error) {
	msg.Content = strings.TrimSpace(msg.Content)
	if msg.UserID == "" || msg.Content == "" {
		return nil, fmt.Errorf("%w: userId and content are required", ErrInvalidMessage)
	}
	if msg.Channel == "" {
		msg.Channel = channels.Web
	}

	// Gates are keyed on the resolved tenant: an unknown id lands in the
	// default tenant and must share its counters.
	biz := s.deps.Resolver.Get(msg.BusinessID)
	msg.BusinessID = biz.ID

	if msg.DeliveryID != "" && s.deps.Gate.IsDuplicate(ctx, msg.DeliveryID) {
		s.funnel(msg, store.EventDuplicate, "")
		return s.done(&Reply{Status: StatusDuplicate}), nil
	}
	if s.deps.Gate.IsRateLimited(ctx, biz.ID, msg.UserID) {
		s.funnel(msg, store.EventRateLimited, "")
		return s.done(&Reply{Status: StatusRateLimited}), nil
	}

	convID := store.ConversationID(biz.ID, msg.UserID)

	unlock := s.convMu.Lock(convID)
	defer unlock()

	now := s.now()
	s.funnel(msg, store.EventMessageReceived, "")
	s.touchProfile(msg, now)

	conv := s.deps.Stores.Conversations
	customer := store.ChatMessage{
		ID:        store.GenNewID(),
		Role:      store.RoleCustomer,
		Content:   msg.Content,
		Timestamp: now,
		Channel:   msg.Channel,
	}

	if !s.botEnabled(ctx, biz.ID, msg.UserID) {
		s.persist(ctx, msg, customer)
		return s.done(&Reply{Status: StatusBotDisabled}), nil
	}

	history, err := conv.GetMessages(ctx, biz.ID, msg.UserID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(history) > s.cfg.HistoryWindow {
		history = history[len(history)-s.cfg.HistoryWindow:]
	}
	var (
		summary      string
		summarizedAt int
	)
	if sm, err := conv.GetSummary(ctx, biz.ID, msg.UserID); err != nil {
		slog.Warn("inbound.summary_load_failed", "conversation", convID, "error", err)
	} else if sm != nil {
		summary, summarizedAt = sm.Text, sm.MessageCount
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	decision, err := s.deps.Router.Decide(rctx, &pipeline.Request{
		Message:        msg.Content,
		History:        history,
		Business:       biz,
		Summary:        summary,
		ConversationID: convID,
		UserID:         msg.UserID,
		Now:            now,
	})
	cancel()
	if err != nil {
		slog.Error("inbound.pipeline_failed", "conversation", convID, "error", err)
		s.persist(ctx, msg, customer)
		reply := &Reply{Status: StatusError, Content: s.apology(biz)}
		s.send(ctx, msg, reply, store.RoleBot)
		return s.done(reply), nil
	}
	if decision.AgentErr != nil {
		slog.Warn("inbound.agent_fallback", "conversation", convID, "error", decision.AgentErr)
	}

	bot := store.ChatMessage{
		ID:                store.GenNewID(),
		Role:              store.RoleBot,
		Content:           decision.Content,
		Timestamp:         s.now(),
		Channel:           msg.Channel,
		PipelineLayer:     decision.LayerID,
		PipelineLayerName: decision.LayerName,
	}
	s.persist(ctx, msg, customer, bot)

	reply := &Reply{
		Status:    StatusReplied,
		Content:   decision.Content,
		LayerID:   decision.LayerID,
		LayerName: decision.LayerName,
		Flagged:   decision.Flag != nil,
	}
	s.afterReply(ctx, msg, convID, decision, summarizedAt)
	s.send(ctx, msg, reply, store.RoleBot)
	return s.done(reply), nil
}

// SendAdminMessage stores an admin-authored message and delivers it.
func (s *Service) SendAdminMessage(ctx context.Context, businessID, userID, channel, content string) error {
	content = strings.TrimSpace(content)
	if userID == "" || content == "" {
		return fmt.Errorf("%w: userId and content are required", ErrInvalidMessage)
	}
	if channel == "" {
		channel = channels.Web
	}
	biz := s.deps.Resolver.Get(businessID)
	unlock := s.convMu.Lock(store.ConversationID(biz.ID, userID))
	defer unlock()

	m := store.ChatMessage{
		ID:        store.GenNewID(),
		Role:      store.RoleAdmin,
		Content:   content,
		Timestamp: s.now(),
		Channel:   channel,
	}
	if err := s.deps.Stores.Conversations.AppendMessages(ctx, biz.ID, userID, m); err != nil {
		return fmt.Errorf("store admin message: %w", err)
	}
	msg := Message{BusinessID: biz.ID, UserID: userID, Channel: channel}
	s.send(ctx, msg, &Reply{Content: content}, store.RoleAdmin)
	return nil
}

func (s *Service) botEnabled(ctx context.Context, businessID, userID string) bool {
	conv := s.deps.Stores.Conversations
	// An unreadable switch counts as on so a store outage never silences the bot.
	on, err := conv.IsGlobalBotEnabled(ctx, businessID)
	if err != nil {
		slog.Warn("inbound.bot_switch_unavailable", "business", businessID, "error", err)
		on = true
	}
	if !on {
		return false
	}
	on, err = conv.IsBotEnabled(ctx, businessID, userID)
	if err != nil {
		slog.Warn("inbound.bot_switch_unavailable", "business", businessID, "user", userID, "error", err)
		on = true
	}
	return on
}

func (s *Service) persist(ctx context.Context, msg Message, msgs ...store.ChatMessage) {
	if err := s.deps.Stores.Conversations.AppendMessages(ctx, msg.BusinessID, msg.UserID, msgs...); err != nil {
		slog.Error("inbound.persist_failed", "business", msg.BusinessID, "user", msg.UserID, "error", err)
	}
}

func (s *Service) apology(biz *business.BusinessConfig) string {
	if s.cfg.ApologyMessage != "" {
		return s.cfg.ApologyMessage
	}
	return biz.Fallback()
}

func (s *Service) send(ctx context.Context, msg Message, reply *Reply, role store.Role) {
	if s.deps.Sender == nil || reply.Content == "" {
		return
	}
	// Send logs its own failures; delivery never changes the reply.
	_ = s.deps.Sender.Send(ctx, channels.OutboundMessage{
		BusinessID: msg.BusinessID,
		UserID:     msg.UserID,
		Channel:    msg.Channel,
		Role:       string(role),
		Content:    reply.Content,
		LayerName:  reply.LayerName,
	})
}

func (s *Service) done(r *Reply) *Reply {
	messagesTotal.WithLabelValues(r.Status).Inc()
	return r
}
