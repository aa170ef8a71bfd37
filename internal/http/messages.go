package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nextlevelbuilder/salebot/internal/channels"
	"github.com/nextlevelbuilder/salebot/internal/inbound"
)

// handleMessage is the generic inbound endpoint used by the web widget's
// HTTP fallback and by tests. The reply text is returned inline.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg inbound.Message
	if err := decodeJSON(w, r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg.Channel != "" && !channels.IsKnown(msg.Channel) {
		writeError(w, http.StatusBadRequest, "unknown channel")
		return
	}
	s.respond(w, r, msg)
}

// handleWebhook accepts a message a relay already normalized from LINE or
// Facebook. The reply goes back through the relay channel, so only the
// status is returned here.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "channel")
	if !channels.IsKnown(name) || name == channels.Web {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}
	if secret := s.deps.WebhookTokens[name]; secret != "" && !tokenEqual(extractBearerToken(r), secret) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var msg inbound.Message
	if err := decodeJSON(w, r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg.Channel = name

	reply, err := s.deps.Inbound.Handle(r.Context(), msg)
	if err != nil {
		s.writeHandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": reply.Status})
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, msg inbound.Message) {
	reply, err := s.deps.Inbound.Handle(r.Context(), msg)
	if err != nil {
		s.writeHandleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) writeHandleError(w http.ResponseWriter, err error) {
	if errors.Is(err, inbound.ErrInvalidMessage) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Error("http.inbound_failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
