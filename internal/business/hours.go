package business

import (
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata"

	"github.com/adhocore/gronx"
)

// Hours describes opening hours as cron expressions evaluated per minute.
// "* 9-17 * * 1-6" means open Monday to Saturday, 09:00 to 17:59.
type Hours struct {
	Timezone         string   `yaml:"timezone"`
	Open             []string `yaml:"open"` // empty = always open
	ClosedMessage    string   `yaml:"closed_message,omitempty"`
	NotifyWhenClosed bool     `yaml:"notify_when_closed"`
}

func (h Hours) validate() error {
	g := gronx.New()
	for _, expr := range h.Open {
		if !g.IsValid(expr) {
			return fmt.Errorf("invalid opening-hours expression %q", expr)
		}
	}
	if h.Timezone != "" {
		if _, err := time.LoadLocation(h.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", h.Timezone, err)
		}
	}
	return nil
}

// IsOpen reports whether t falls inside any opening window.
// An unparsable expression counts as closed for that window only.
func (h Hours) IsOpen(t time.Time) bool {
	if len(h.Open) == 0 {
		return true
	}
	if h.Timezone != "" {
		if loc, err := time.LoadLocation(h.Timezone); err == nil {
			t = t.In(loc)
		}
	}
	g := gronx.New()
	for _, expr := range h.Open {
		due, err := g.IsDue(expr, t.Truncate(time.Minute))
		if err != nil {
			slog.Warn("business.hours_expr_invalid", "expr", expr, "error", err)
			continue
		}
		if due {
			return true
		}
	}
	return false
}
