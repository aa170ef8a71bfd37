package inbound

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/salebot/internal/pipeline"
	"github.com/nextlevelbuilder/salebot/internal/store"
)

// summaryKeepLast is how many recent turns stay verbatim next to the summary.
const summaryKeepLast = 10

// Side effects below run on the task runner after the reply is decided.
// They never block or fail the reply.

func (s *Service) funnel(msg Message, event, layer string) {
	fs := s.deps.Stores.Funnel
	if fs == nil {
		return
	}
	e := store.FunnelEvent{
		BusinessID: msg.BusinessID,
		UserID:     msg.UserID,
		Channel:    msg.Channel,
		Event:      event,
		Layer:      layer,
		CreatedAt:  s.now(),
	}
	s.deps.Tasks.Go("funnel."+event, func(ctx context.Context) error {
		return fs.RecordEvent(ctx, e)
	})
}

func (s *Service) touchProfile(msg Message, at time.Time) {
	u := store.ProfileUpdate{Channel: msg.Channel, DisplayName: msg.DisplayName, At: at}
	conv := s.deps.Stores.Conversations
	s.deps.Tasks.Go("crm.touch", func(ctx context.Context) error {
		return conv.TouchProfile(ctx, msg.BusinessID, msg.UserID, u)
	})
}

func (s *Service) afterReply(ctx context.Context, msg Message, convID string, d *pipeline.Decision, summarizedAt int) {
	event := store.EventRuleAnswered
	if d.LayerID == pipeline.LayerAgent {
		event = store.EventAgentAnswered
	}
	s.funnel(msg, event, d.LayerName)

	if d.Flag != nil {
		s.flag(msg, convID, d.Flag)
	}
	if s.summaryDue(ctx, msg.BusinessID, msg.UserID, summarizedAt) {
		s.summarize(msg.BusinessID, msg.UserID, convID)
	}
}

// summaryDue reports whether a threshold's worth of messages was appended
// since the summary taken at summarizedAt. It counts with TotalMessages, so
// it keeps firing after the history hits its retention cap.
func (s *Service) summaryDue(ctx context.Context, businessID, userID string, summarizedAt int) bool {
	if s.cfg.SummaryThreshold <= 0 || s.deps.Summarizer == nil {
		return false
	}
	total, err := s.deps.Stores.Conversations.TotalMessages(ctx, businessID, userID)
	if err != nil {
		slog.Warn("inbound.summary_count_failed", "business", businessID, "user", userID, "error", err)
		return false
	}
	if summarizedAt > total {
		// Counter expired under an older summary; start over.
		summarizedAt = 0
	}
	return total > s.cfg.SummaryThreshold && total-summarizedAt >= s.cfg.SummaryThreshold
}

func (s *Service) flag(msg Message, convID string, f *pipeline.Flag) {
	fl := store.AgentFlag{
		ID:             store.GenNewID(),
		ConversationID: convID,
		BusinessID:     msg.BusinessID,
		UserID:         msg.UserID,
		Reason:         f.Reason,
		Urgency:        f.Urgency,
		UserMessage:    msg.Content,
		Source:         f.Source,
		Timestamp:      s.now(),
	}
	if flags := s.deps.Stores.Flags; flags != nil {
		s.deps.Tasks.Go("flags.add", func(ctx context.Context) error {
			return flags.AddFlag(ctx, fl)
		})
	}
	slog.Info("inbound.flagged", "conversation", convID, "urgency", f.Urgency, "source", f.Source)
	s.funnel(msg, store.EventFlagged, f.Source)
}

// summarize refreshes the rolling summary unless a refresh for this
// conversation is already running. The claim is dropped when it finishes.
func (s *Service) summarize(businessID, userID, convID string) {
	if _, busy := s.summarizing.LoadOrStore(convID, struct{}{}); busy {
		slog.Debug("summarization already in progress, skipping", "conversation", convID)
		return
	}

	started := s.deps.Tasks.Go("conversation.summarize", func(ctx context.Context) error {
		defer s.summarizing.Delete(convID)
		return s.refreshSummary(ctx, businessID, userID)
	})
	if !started {
		s.summarizing.Delete(convID)
	}
}

func (s *Service) refreshSummary(ctx context.Context, businessID, userID string) error {
	conv := s.deps.Stores.Conversations
	total, err := conv.TotalMessages(ctx, businessID, userID)
	if err != nil {
		return err
	}
	if total <= s.cfg.SummaryThreshold {
		return nil
	}
	prev, err := conv.GetSummary(ctx, businessID, userID)
	if err != nil {
		return err
	}
	// Re-summarize only after another threshold's worth of turns.
	previous, since := "", total
	if prev != nil {
		previous = prev.Text
		if prev.MessageCount <= total {
			if total-prev.MessageCount < s.cfg.SummaryThreshold {
				return nil
			}
			since = total - prev.MessageCount
		}
	}

	msgs, err := conv.GetMessages(ctx, businessID, userID)
	if err != nil {
		return err
	}
	// The last keep turns stay verbatim; everything before them that the
	// previous summary did not cover goes to the summarizer.
	keep := min(summaryKeepLast, s.cfg.SummaryThreshold/2)
	end := len(msgs) - keep
	start := max(0, end-since)
	if end <= start {
		return nil
	}
	older := msgs[start:end]
	text, _, err := s.deps.Summarizer.Summarize(ctx, previous, older)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	return conv.SetSummary(ctx, businessID, userID, store.Summary{
		Text:         text,
		MessageCount: total,
		UpdatedAt:    s.now(),
	})
}
