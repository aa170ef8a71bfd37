package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/salebot/internal/providers"
	"github.com/nextlevelbuilder/salebot/internal/store"
)

// buildMessages constructs [system, ...history, user] for one invocation.
func (l *Loop) buildMessages(req RunRequest) []providers.Message {
	history := limitHistory(req.History, req.Message, l.historyLimit)

	messages := make([]providers.Message, 0, len(history)+2)
	messages = append(messages, providers.Message{
		Role:    "system",
		Content: BuildSystemPrompt(req.Business, req.Summary, req.OffHoursNote),
	})
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		messages = append(messages, providers.Message{
			Role:    providerRole(m.Role),
			Content: m.Content,
		})
	}
	messages = append(messages, providers.Message{
		Role:    "user",
		Content: req.Message,
	})
	return messages
}

// limitHistory drops a trailing customer message equal to the current one
// (the caller may already have stored it) and keeps the last limit entries.
func limitHistory(history []store.ChatMessage, current string, limit int) []store.ChatMessage {
	h := history
	if n := len(h); n > 0 && h[n-1].Role == store.RoleCustomer &&
		strings.TrimSpace(h[n-1].Content) == strings.TrimSpace(current) {
		h = h[:n-1]
	}
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return h
}

// providerRole maps stored roles onto chat roles. Admin replies were sent to
// the customer as the shop, so the model sees them as its own turns.
func providerRole(r store.Role) string {
	if r == store.RoleCustomer {
		return "user"
	}
	return "assistant"
}

// Summarize condenses older turns, folding in the previous summary.
// Used by the inbound summarizer; shares the loop's provider and model.
func (l *Loop) Summarize(ctx context.Context, previous string, msgs []store.ChatMessage) (string, *providers.Usage, error) {
	if l.provider == nil {
		return "", nil, ErrNoProvider
	}

	var sb strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case store.RoleCustomer:
			fmt.Fprintf(&sb, "ลูกค้า: %s\n", m.Content)
		case store.RoleBot, store.RoleAdmin:
			fmt.Fprintf(&sb, "ร้าน: %s\n", m.Content)
		}
	}

	prompt := "สรุปบทสนทนาระหว่างร้านกับลูกค้านี้ให้กระชับ เก็บสินค้าที่สนใจ งบประมาณ และปัญหาที่ค้างอยู่:\n"
	if previous != "" {
		prompt += "สรุปเดิม: " + previous + "\n"
	}
	prompt += "\n" + sb.String()

	req := providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: prompt}},
		Model:    l.model,
		Options:  map[string]interface{}{providers.OptMaxTokens: 512, providers.OptTemperature: 0.3},
	}
	resp, err := l.provider.Chat(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("summarize: %w", err)
	}
	usage := resp.Usage
	if usage == nil || usage.TotalTokens == 0 {
		usage = providers.EstimateUsage(req, resp)
	}
	return SanitizeAssistantContent(resp.Content), usage, nil
}
