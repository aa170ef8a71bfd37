package channels

import (
	"sync"
	"time"
)

// maxTrackedKeys caps tracked keys so rotating source IPs cannot grow the
// map without bound.
const maxTrackedKeys = 4096

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

// WebhookRateLimiter is an in-process fixed-window limiter keyed by caller
// (usually the client IP), applied before a webhook body is even parsed.
// The per-customer limit lives in the guard package; this one only protects
// the process. Safe for concurrent use.
type WebhookRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	max     int
	window  time.Duration
	now     func() time.Time
}

func NewWebhookRateLimiter(max int, window time.Duration) *WebhookRateLimiter {
	if max <= 0 {
		max = 120
	}
	if window <= 0 {
		window = time.Minute
	}
	return &WebhookRateLimiter{
		entries: make(map[string]*rateLimitEntry),
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

// Allow counts one hit for key and reports whether it is within the limit.
func (r *WebhookRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if len(r.entries) >= maxTrackedKeys {
		r.prune(now)
	}

	e, ok := r.entries[key]
	if !ok || now.Sub(e.windowStart) >= r.window {
		r.entries[key] = &rateLimitEntry{windowStart: now, count: 1}
		return true
	}
	e.count++
	return e.count <= r.max
}

func (r *WebhookRateLimiter) prune(now time.Time) {
	for k, e := range r.entries {
		if now.Sub(e.windowStart) >= r.window {
			delete(r.entries, k)
		}
	}
	// still full: evict arbitrary keys
	for k := range r.entries {
		if len(r.entries) < maxTrackedKeys {
			break
		}
		delete(r.entries, k)
	}
}
