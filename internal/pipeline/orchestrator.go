package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/salebot/internal/agent"
)

var tracer = otel.Tracer("salebot/pipeline")

var (
	layerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salebot",
		Subsystem: "pipeline",
		Name:      "layer_outcomes_total",
		Help:      "Layer evaluations by layer and outcome (match, miss, error, panic)",
	}, []string{"layer", "outcome"})

	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salebot",
		Subsystem: "pipeline",
		Name:      "decisions_total",
		Help:      "Winning layer per routed message",
	}, []string{"layer"})

	decideDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "salebot",
		Subsystem: "pipeline",
		Name:      "decide_seconds",
		Help:      "Wall time to route one message",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 9),
	})
)

// Agent is the final layer.
type Agent interface {
	Run(ctx context.Context, req agent.RunRequest) (*agent.Result, error)
}

// Config configures an Orchestrator.
type Config struct {
	Layers       []string // rule-layer order; empty = DefaultOrder
	OffHoursNote string   // passed to the agent while the business is closed
	Agent        Agent    // nil = rule layers then fallback
	Notices      NoticeGate
}

// Orchestrator runs the layers for one message at a time. It holds no
// per-request state and is safe for concurrent use.
type Orchestrator struct {
	layers       []Layer
	agent        Agent
	offHoursNote string
	now          func() time.Time
}

func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	layers, err := BuildLayers(cfg.Layers, cfg.Notices)
	if err != nil {
		return nil, fmt.Errorf("pipeline layers: %w", err)
	}
	return &Orchestrator{
		layers:       layers,
		agent:        cfg.Agent,
		offHoursNote: cfg.OffHoursNote,
		now:          time.Now,
	}, nil
}

// LayerNames returns the effective rule-layer order.
func (o *Orchestrator) LayerNames() []string {
	names := make([]string, len(o.layers))
	for i, l := range o.layers {
		names[i] = l.Name()
	}
	return names
}

// Decide returns exactly one reply. The only error is a cancelled or expired
// context: a timed-out request is never answered with a partial result.
func (o *Orchestrator) Decide(ctx context.Context, req *Request) (*Decision, error) {
	if req == nil || req.Business == nil {
		return nil, fmt.Errorf("pipeline: request without business")
	}
	ctx, span := tracer.Start(ctx, "pipeline.decide")
	defer span.End()
	span.SetAttributes(
		attribute.String("business.id", req.Business.ID),
		attribute.String("conversation.id", req.ConversationID),
	)
	start := time.Now()
	defer func() { decideDuration.Observe(time.Since(start).Seconds()) }()

	now := req.Now
	if now.IsZero() {
		now = o.now()
	}
	in := &Input{
		Request:  req,
		Triggers: req.Business.TriggerSet(),
		Closed:   !req.Business.Hours.IsOpen(now),
	}
	if in.Closed {
		in.OffHoursNote = o.offHoursNote
	}

	for _, l := range o.layers {
		if err := ctx.Err(); err != nil {
			return nil, o.abort(span, err)
		}
		m := o.tryLayer(ctx, l, in)
		if m == nil {
			continue
		}
		return o.decided(span, &Decision{
			Content:   m.Content,
			LayerID:   l.ID(),
			LayerName: l.Name(),
			Flag:      m.Flag,
		}), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, o.abort(span, err)
	}
	if o.agent == nil {
		return o.decided(span, o.fallback(req, nil)), nil
	}

	res, err := o.runAgent(ctx, in)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, o.abort(span, ctxErr)
	}
	if err != nil {
		slog.Warn("pipeline.agent_failed", "business", req.Business.ID, "conversation", req.ConversationID, "error", err)
		span.RecordError(err)
		return o.decided(span, o.fallback(req, err)), nil
	}

	d := &Decision{
		Content:   res.Content,
		LayerID:   LayerAgent,
		LayerName: NameAgent,
		Agent:     res,
	}
	if res.FlaggedForAdmin {
		d.Flag = &Flag{Reason: res.FlagReason, Urgency: res.FlagUrgency, Source: NameAgent}
	}
	return o.decided(span, d), nil
}

// tryLayer treats errors and panics as a non-match.
func (o *Orchestrator) tryLayer(ctx context.Context, l Layer, in *Input) (m *Match) {
	outcome := "miss"
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline.layer_panic", "layer", l.Name(), "business", in.Business.ID, "panic", fmt.Sprint(r))
			outcome, m = "panic", nil
		}
		layerOutcomes.WithLabelValues(l.Name(), outcome).Inc()
	}()

	m, err := l.Match(ctx, in)
	if err != nil {
		slog.Warn("pipeline.layer_error", "layer", l.Name(), "business", in.Business.ID, "error", err)
		outcome = "error"
		return nil
	}
	if m == nil || m.Content == "" {
		return nil
	}
	outcome = "match"
	return m
}

func (o *Orchestrator) runAgent(ctx context.Context, in *Input) (res *agent.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline.layer_panic", "layer", NameAgent, "business", in.Business.ID, "panic", fmt.Sprint(r))
			res, err = nil, fmt.Errorf("agent panic: %v", r)
		}
	}()
	res, err = o.agent.Run(ctx, agent.RunRequest{
		Message:        in.Message,
		History:        in.History,
		Business:       in.Business,
		OffHoursNote:   in.OffHoursNote,
		Summary:        in.Summary,
		ConversationID: in.ConversationID,
		UserID:         in.UserID,
	})
	if err == nil && (res == nil || res.Content == "") {
		err = fmt.Errorf("agent returned no content")
	}
	outcome := "match"
	if err != nil {
		outcome = "error"
	}
	layerOutcomes.WithLabelValues(NameAgent, outcome).Inc()
	return res, err
}

func (o *Orchestrator) fallback(req *Request, cause error) *Decision {
	return &Decision{
		Content:   req.Business.Fallback(),
		LayerID:   LayerFallback,
		LayerName: NameFallback,
		AgentErr:  cause,
	}
}

func (o *Orchestrator) decided(span trace.Span, d *Decision) *Decision {
	decisionsTotal.WithLabelValues(d.LayerName).Inc()
	span.SetAttributes(
		attribute.String("pipeline.layer", d.LayerName),
		attribute.Int("pipeline.layer_id", d.LayerID),
	)
	return d
}

func (o *Orchestrator) abort(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("pipeline aborted: %w", err)
}
