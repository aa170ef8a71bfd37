package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sends = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "salebot",
	Subsystem: "channels",
	Name:      "sends_total",
	Help:      "Outbound replies by channel and outcome",
}, []string{"channel", "outcome"})

// Manager routes outbound replies to the registered channel by name.
// Safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

// RegisterChannel adds or replaces a channel under its Name().
func (m *Manager) RegisterChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
	slog.Info("channel registered", "channel", ch.Name())
}

// GetChannel returns a registered channel.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// GetEnabledChannels returns registered channel names, sorted.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Send delivers msg on its channel.
func (m *Manager) Send(ctx context.Context, msg OutboundMessage) error {
	ch, ok := m.GetChannel(msg.Channel)
	if !ok {
		sends.WithLabelValues(msg.Channel, "unknown").Inc()
		return fmt.Errorf("%w: %q", ErrUnknownChannel, msg.Channel)
	}
	if err := ch.Send(ctx, msg); err != nil {
		sends.WithLabelValues(msg.Channel, "error").Inc()
		slog.Error("channels.send_failed",
			"channel", msg.Channel,
			"business", msg.BusinessID,
			"user", msg.UserID,
			"error", err,
		)
		return fmt.Errorf("send on %s: %w", msg.Channel, err)
	}
	sends.WithLabelValues(msg.Channel, "ok").Inc()
	return nil
}
