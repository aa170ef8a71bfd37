package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/salebot/internal/business"
	"github.com/nextlevelbuilder/salebot/internal/providers"
	"github.com/nextlevelbuilder/salebot/internal/store"
	"github.com/nextlevelbuilder/salebot/internal/tasks"
	"github.com/nextlevelbuilder/salebot/internal/tools"
)

// ErrNoProvider is returned by Run when the loop was built without a provider.
var ErrNoProvider = errors.New("agent: no provider configured")

// ToolExecutor runs one tool call for one business.
type ToolExecutor interface {
	Execute(ctx context.Context, biz *business.BusinessConfig, call providers.ToolCall) *tools.Result
}

// Loop is the bounded tool-calling agent used as the pipeline's last layer.
// Think → Act → Observe, capped at maxIterations.
type Loop struct {
	provider      providers.Provider
	model         string
	maxIterations int
	historyLimit  int
	maxTokens     int
	temperature   float64

	tools ToolExecutor
	usage store.UsageStore // optional
	tasks tasks.Runner
}

// LoopConfig configures a new Loop.
type LoopConfig struct {
	Provider      providers.Provider
	Model         string // empty = provider default
	MaxIterations int
	HistoryLimit  int
	MaxTokens     int
	Temperature   float64
	Tools         ToolExecutor
	Usage         store.UsageStore
	Tasks         tasks.Runner // nil = tasks.Inline
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Tasks == nil {
		cfg.Tasks = tasks.Inline{}
	}
	return &Loop{
		provider:      cfg.Provider,
		model:         cfg.Model,
		maxIterations: cfg.MaxIterations,
		historyLimit:  cfg.HistoryLimit,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		tools:         cfg.Tools,
		usage:         cfg.Usage,
		tasks:         cfg.Tasks,
	}
}

// RunRequest is the input for one agent invocation.
type RunRequest struct {
	Message        string
	History        []store.ChatMessage // snapshot, oldest first
	Business       *business.BusinessConfig
	OffHoursNote   string
	Summary        string
	ConversationID string
	UserID         string
}

// Result is the terminal output of one invocation.
type Result struct {
	Content         string          `json:"content"`
	ToolsUsed       []string        `json:"toolsUsed"`
	Iterations      int             `json:"iterations"`
	FlaggedForAdmin bool            `json:"flaggedForAdmin,omitempty"`
	FlagReason      string          `json:"flagReason,omitempty"`
	FlagUrgency     string          `json:"flagUrgency,omitempty"`
	CapReached      bool            `json:"capReached,omitempty"`
	Usage           providers.Usage `json:"usage"`
}

// MaxIterations returns the configured iteration cap.
func (l *Loop) MaxIterations() int { return l.maxIterations }

// Run processes one message. Provider errors are returned unwrapped of any
// fallback; the caller decides what the customer sees.
func (l *Loop) Run(ctx context.Context, req RunRequest) (*Result, error) {
	if l.provider == nil {
		return nil, ErrNoProvider
	}
	if req.Business == nil {
		return nil, fmt.Errorf("agent: business is required")
	}

	ctx, span := tracer.Start(ctx, "agent.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("business.id", req.Business.ID),
		attribute.String("conversation.id", req.ConversationID),
	)

	start := time.Now()
	result, err := l.runLoop(ctx, req)
	runDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("agent.iterations", result.Iterations),
		attribute.StringSlice("agent.tools_used", result.ToolsUsed),
		attribute.Bool("agent.flagged", result.FlaggedForAdmin),
		attribute.Bool("agent.cap_reached", result.CapReached),
	)
	iterationsHist.Observe(float64(result.Iterations))
	l.recordUsage(req, result)
	return result, nil
}

func (l *Loop) runLoop(ctx context.Context, req RunRequest) (*Result, error) {
	messages := l.buildMessages(req)
	toolDefs := tools.Definitions()
	res := &Result{}

	for res.Iterations < l.maxIterations {
		res.Iterations++

		slog.Debug("agent iteration", "business", req.Business.ID, "iteration", res.Iterations, "messages", len(messages))

		chatReq := providers.ChatRequest{
			Messages: messages,
			Tools:    toolDefs,
			Model:    l.model,
			Options: map[string]interface{}{
				providers.OptMaxTokens:   l.maxTokens,
				providers.OptTemperature: l.temperature,
			},
		}

		resp, err := l.chat(ctx, chatReq, res.Iterations)
		if err != nil {
			return nil, fmt.Errorf("LLM call failed (iteration %d): %w", res.Iterations, err)
		}

		if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
			res.Usage.Add(resp.Usage)
		} else {
			res.Usage.Add(providers.EstimateUsage(chatReq, resp))
		}

		// No tool calls → done
		if len(resp.ToolCalls) == 0 {
			res.Content = SanitizeAssistantContent(resp.Content)
			if res.Content == "" {
				res.Content = req.Business.Fallback()
			}
			return res, nil
		}

		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Tools are pure lookups over the resolved business; run in order.
		for _, tc := range resp.ToolCalls {
			result := l.executeTool(ctx, req.Business, tc)
			res.ToolsUsed = append(res.ToolsUsed, tc.Name)

			if result.FlaggedForAdmin {
				res.FlaggedForAdmin = true
				res.FlagReason = result.FlagReason
				res.FlagUrgency = result.Urgency
			}

			messages = append(messages, providers.Message{
				Role:       "tool",
				Content:    result.ForLLM,
				ToolCallID: tc.ID,
			})
		}
	}

	slog.Warn("agent.iteration_cap",
		"business", req.Business.ID, "conversation", req.ConversationID,
		"iterations", res.Iterations, "tools", res.ToolsUsed)
	res.CapReached = true
	res.Content = req.Business.Fallback()
	return res, nil
}

func (l *Loop) chat(ctx context.Context, req providers.ChatRequest, iteration int) (*providers.ChatResponse, error) {
	ctx, span := startLLMSpan(ctx, l.provider.Name(), l.modelName(), iteration, len(req.Messages))
	resp, err := l.provider.Chat(ctx, req)
	endLLMSpan(span, resp, err)
	return resp, err
}

func (l *Loop) executeTool(ctx context.Context, biz *business.BusinessConfig, tc providers.ToolCall) *tools.Result {
	argsJSON, _ := json.Marshal(tc.Arguments)
	slog.Info("tool call", "business", biz.ID, "tool", tc.Name, "args_len", len(argsJSON))

	ctx, span := startToolSpan(ctx, tc.Name, tc.ID, string(argsJSON))
	var result *tools.Result
	if l.tools == nil {
		result = tools.ErrorResult("tools are not available")
	} else {
		result = l.tools.Execute(ctx, biz, tc)
	}
	endToolSpan(span, result)

	outcome := "ok"
	if result.IsError {
		outcome = "error"
		slog.Warn("tool error", "business", biz.ID, "tool", tc.Name, "error", truncateStr(result.ForLLM, 200))
	}
	toolCalls.WithLabelValues(tc.Name, outcome).Inc()
	return result
}

func (l *Loop) modelName() string {
	if l.model != "" {
		return l.model
	}
	return l.provider.DefaultModel()
}

// recordUsage emits exactly one usage record per invocation, off the reply path.
func (l *Loop) recordUsage(req RunRequest, res *Result) {
	tokensUsed.WithLabelValues("prompt").Add(float64(res.Usage.PromptTokens))
	tokensUsed.WithLabelValues("completion").Add(float64(res.Usage.CompletionTokens))
	if l.usage == nil {
		return
	}
	rec := store.UsageRecord{
		ID:               store.GenNewID(),
		BusinessID:       req.Business.ID,
		UserID:           req.UserID,
		ConversationID:   req.ConversationID,
		Provider:         l.provider.Name(),
		Model:            l.modelName(),
		PromptTokens:     res.Usage.PromptTokens,
		CompletionTokens: res.Usage.CompletionTokens,
		TotalTokens:      res.Usage.TotalTokens,
		Estimated:        res.Usage.Estimated,
		Iterations:       res.Iterations,
		ToolsUsed:        append([]string(nil), res.ToolsUsed...),
		CreatedAt:        time.Now().UTC(),
	}
	l.tasks.Go("usage.record", func(ctx context.Context) error {
		return l.usage.RecordUsage(ctx, rec)
	})
}
