package agent

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/salebot/internal/providers"
	"github.com/nextlevelbuilder/salebot/internal/tools"
)

var tracer = otel.Tracer("salebot/agent")

var (
	iterationsHist = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "salebot",
		Subsystem: "agent",
		Name:      "iterations",
		Help:      "Iterations per agent invocation",
		Buckets:   []float64{1, 2, 3, 4, 5, 8, 10},
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "salebot",
		Subsystem: "agent",
		Name:      "run_seconds",
		Help:      "Wall time of one agent invocation",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
	})

	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salebot",
		Subsystem: "agent",
		Name:      "tool_calls_total",
		Help:      "Tool calls by tool and outcome",
	}, []string{"tool", "outcome"})

	tokensUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salebot",
		Subsystem: "agent",
		Name:      "tokens_total",
		Help:      "LLM tokens consumed by kind",
	}, []string{"kind"})
)

func startLLMSpan(ctx context.Context, provider, model string, iteration, messages int) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("%s/%s #%d", provider, model, iteration),
		trace.WithAttributes(
			attribute.String("llm.provider", provider),
			attribute.String("llm.model", model),
			attribute.Int("llm.iteration", iteration),
			attribute.Int("llm.messages", messages),
		))
}

func endLLMSpan(span trace.Span, resp *providers.ChatResponse, callErr error) {
	defer span.End()
	if callErr != nil {
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
		return
	}
	if resp == nil {
		return
	}
	span.SetAttributes(
		attribute.String("llm.finish_reason", resp.FinishReason),
		attribute.Int("llm.tool_calls", len(resp.ToolCalls)),
		attribute.String("llm.output_preview", truncateStr(resp.Content, 500)),
	)
	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("llm.input_tokens", resp.Usage.PromptTokens),
			attribute.Int("llm.output_tokens", resp.Usage.CompletionTokens),
		)
	}
}

func startToolSpan(ctx context.Context, name, callID, input string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "tool "+name,
		trace.WithAttributes(
			attribute.String("tool.name", name),
			attribute.String("tool.call_id", callID),
			attribute.String("tool.input", truncateStr(input, 500)),
		))
}

func endToolSpan(span trace.Span, result *tools.Result) {
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.output_preview", truncateStr(result.ForLLM, 500)),
		attribute.Bool("tool.flagged", result.FlaggedForAdmin),
	)
	if result.IsError {
		span.SetStatus(codes.Error, truncateStr(result.ForLLM, 200))
	}
}

// truncateStr cuts s to at most maxLen runes.
func truncateStr(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
