// Package channels delivers bot and admin replies back to the platform the
// customer wrote from. The web widget is served over a Redis-backed push bus;
// LINE and Facebook go through an HTTP relay that owns the platform wire format.
package channels

import (
	"context"
	"errors"
)

// Channel names as carried on inbound messages.
const (
	Web      = "web"
	Line     = "line"
	Facebook = "facebook"
)

// ErrUnknownChannel is returned when no channel is registered under a name.
var ErrUnknownChannel = errors.New("unknown channel")

// IsKnown reports whether name is a supported inbound channel.
func IsKnown(name string) bool {
	switch name {
	case Web, Line, Facebook:
		return true
	}
	return false
}

// OutboundMessage is one reply to deliver.
type OutboundMessage struct {
	BusinessID string `json:"businessId"`
	UserID     string `json:"userId"`
	Channel    string `json:"channel"`
	Role       string `json:"role"` // "bot" or "admin"
	Content    string `json:"content"`
	LayerName  string `json:"layer,omitempty"`
}

// Channel sends replies to one platform.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg OutboundMessage) error
}
