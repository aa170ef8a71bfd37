package channels

import (
	"context"

	"github.com/nextlevelbuilder/salebot/internal/store/redisstore"
)

// ReplyPublisher is the push side of the widget reply bus.
type ReplyPublisher interface {
	Publish(ctx context.Context, r redisstore.Reply) error
}

// WidgetChannel pushes replies to whichever replica holds the customer's
// websocket.
type WidgetChannel struct {
	bus ReplyPublisher
}

func NewWidgetChannel(bus ReplyPublisher) *WidgetChannel {
	return &WidgetChannel{bus: bus}
}

func (c *WidgetChannel) Name() string { return Web }

func (c *WidgetChannel) Send(ctx context.Context, msg OutboundMessage) error {
	return c.bus.Publish(ctx, redisstore.Reply{
		BusinessID: msg.BusinessID,
		UserID:     msg.UserID,
		Role:       msg.Role,
		Content:    msg.Content,
		Layer:      msg.LayerName,
	})
}
