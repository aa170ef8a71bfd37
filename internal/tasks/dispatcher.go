// Package tasks runs fire-and-forget side effects (usage records, funnel
// events, flag writes, summaries) off the reply path.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner schedules a named side effect. Go reports whether it was accepted.
type Runner interface {
	Go(name string, fn func(ctx context.Context) error) bool
}

// Dispatcher is a bounded Runner. Tasks get a context detached from the
// request that spawned them, capped by the per-task timeout. Errors are
// logged and dropped at this boundary.
type Dispatcher struct {
	g       errgroup.Group
	base    context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

func NewDispatcher(limit int, timeout time.Duration) *Dispatcher {
	if limit <= 0 {
		limit = 64
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{base: base, cancel: cancel, timeout: timeout}
	d.g.SetLimit(limit)
	return d
}

// Go never blocks: when the dispatcher is saturated the task is dropped.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context) error) bool {
	if d.base.Err() != nil {
		slog.Warn("tasks.closed", "task", name)
		return false
	}
	ok := d.g.TryGo(func() error {
		ctx, cancel := context.WithTimeout(d.base, d.timeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("tasks.panic", "task", name, "panic", r)
			}
		}()
		if err := fn(ctx); err != nil {
			slog.Warn("tasks.failed", "task", name, "error", err)
		}
		return nil
	})
	if !ok {
		slog.Warn("tasks.dropped", "task", name)
	}
	return ok
}

// Close waits for in-flight tasks up to ctx, then cancels the rest.
func (d *Dispatcher) Close(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		_ = d.g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("tasks.close_timeout")
	}
	d.cancel()
}

// Inline runs tasks synchronously on the caller's goroutine. Used by the
// one-shot CLI and in tests.
type Inline struct{}

func (Inline) Go(name string, fn func(ctx context.Context) error) bool {
	if err := fn(context.Background()); err != nil {
		slog.Warn("tasks.failed", "task", name, "error", err)
	}
	return true
}
