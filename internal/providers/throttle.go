package providers

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttled wraps a Provider with a process-wide token bucket. Waiting honors
// ctx, so a request deadline still bounds the total call time.
type Throttled struct {
	Provider
	limiter *rate.Limiter
}

// NewThrottled returns p unchanged when rps <= 0.
func NewThrottled(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{Provider: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *Throttled) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: throttle: %w", t.Provider.Name(), err)
	}
	return t.Provider.Chat(ctx, req)
}
