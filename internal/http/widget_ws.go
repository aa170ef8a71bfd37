package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/salebot/internal/channels"
	"github.com/nextlevelbuilder/salebot/internal/inbound"
	"github.com/nextlevelbuilder/salebot/internal/store/redisstore"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 8 << 10
)

// widgetFrame is what the server writes to the widget.
type widgetFrame struct {
	Type   string            `json:"type"` // connected | reply | status | error
	Reply  *redisstore.Reply `json:"reply,omitempty"`
	Status string            `json:"status,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// widgetInbound is what the widget sends.
type widgetInbound struct {
	Content     string `json:"content"`
	DisplayName string `json:"displayName,omitempty"`
	DeliveryID  string `json:"deliveryId,omitempty"`
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) write(f widgetFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(f)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// handleWidget serves one widget session: ?business=&user=. Replies for the
// user arrive over the reply bus, so any replica can answer a message sent
// on another replica's socket.
func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}
	biz := s.deps.Businesses.Get(r.URL.Query().Get("business")).ID

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	replies, err := s.deps.Replies.Subscribe(ctx, biz, user)
	if err != nil {
		slog.Error("widget.subscribe_failed", "business", biz, "user", user, "error", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable")
		return
	}

	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	if err := conn.write(widgetFrame{Type: "connected"}); err != nil {
		return
	}

	go s.pumpReplies(ctx, cancel, conn, replies)

	raw.SetReadLimit(wsMaxMessage)
	raw.SetReadDeadline(time.Now().Add(wsPongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var in widgetInbound
		if err := raw.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("widget.closed", "business", biz, "user", user, "error", err)
			}
			return
		}
		if in.Content == "" {
			continue
		}
		reply, err := s.deps.Inbound.Handle(ctx, inbound.Message{
			BusinessID:  biz,
			UserID:      user,
			Channel:     channels.Web,
			Content:     in.Content,
			DisplayName: in.DisplayName,
			DeliveryID:  in.DeliveryID,
		})
		if err != nil {
			slog.Warn("widget.handle_failed", "business", biz, "user", user, "error", err)
			conn.write(widgetFrame{Type: "error", Error: "message not accepted"})
			continue
		}
		// Replied messages arrive as a reply frame via the bus.
		if reply.Status != inbound.StatusReplied {
			conn.write(widgetFrame{Type: "status", Status: reply.Status})
		}
	}
}

func (s *Server) pumpReplies(ctx context.Context, cancel context.CancelFunc, conn *wsConn, replies <-chan redisstore.Reply) {
	// Closing the socket unblocks the read loop.
	defer conn.conn.Close()
	defer cancel()
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		case rep, ok := <-replies:
			if !ok {
				return
			}
			if err := conn.write(widgetFrame{Type: "reply", Reply: &rep}); err != nil {
				return
			}
		}
	}
}
