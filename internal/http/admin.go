package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nextlevelbuilder/salebot/internal/inbound"
)

const defaultFlagLimit = 50

// businessID resolves the path tenant to its canonical id.
func (s *Server) businessID(r *http.Request) string {
	return s.deps.Businesses.Get(chi.URLParam(r, "business")).ID
}

func (s *Server) handleListFlags(w http.ResponseWriter, r *http.Request) {
	limit := defaultFlagLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	flags, err := s.deps.Stores.Flags.ListFlags(r.Context(), s.businessID(r), limit)
	if err != nil {
		slog.Error("http.list_flags", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"flags": flags})
}

type botSwitch struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) readSwitch(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var body botSwitch
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false, false
	}
	if body.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return false, false
	}
	return *body.Enabled, true
}

func (s *Server) handleSetGlobalBot(w http.ResponseWriter, r *http.Request) {
	on, ok := s.readSwitch(w, r)
	if !ok {
		return
	}
	biz := s.businessID(r)
	if err := s.deps.Stores.Conversations.SetGlobalBotEnabled(r.Context(), biz, on); err != nil {
		slog.Error("http.set_global_bot", "business", biz, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	slog.Info("admin.bot_switch", "business", biz, "enabled", on)
	writeJSON(w, http.StatusOK, map[string]interface{}{"business": biz, "enabled": on})
}

func (s *Server) handleSetUserBot(w http.ResponseWriter, r *http.Request) {
	on, ok := s.readSwitch(w, r)
	if !ok {
		return
	}
	biz, user := s.businessID(r), chi.URLParam(r, "user")
	if err := s.deps.Stores.Conversations.SetBotEnabled(r.Context(), biz, user, on); err != nil {
		slog.Error("http.set_user_bot", "business", biz, "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	slog.Info("admin.bot_switch", "business", biz, "user", user, "enabled", on)
	writeJSON(w, http.StatusOK, map[string]interface{}{"business": biz, "user": user, "enabled": on})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	biz, user := s.businessID(r), chi.URLParam(r, "user")
	msgs, err := s.deps.Stores.Conversations.GetMessages(r.Context(), biz, user)
	if err != nil {
		slog.Error("http.get_messages", "business", biz, "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	biz, user := s.businessID(r), chi.URLParam(r, "user")
	p, err := s.deps.Stores.Conversations.GetProfile(r.Context(), biz, user)
	if err != nil {
		slog.Error("http.get_profile", "business", biz, "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type adminMessage struct {
	Channel string `json:"channel"`
	Content string `json:"content"`
}

func (s *Server) handleAdminMessage(w http.ResponseWriter, r *http.Request) {
	var body adminMessage
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	biz, user := s.businessID(r), chi.URLParam(r, "user")
	err := s.deps.Inbound.SendAdminMessage(r.Context(), biz, user, body.Channel, body.Content)
	if errors.Is(err, inbound.ErrInvalidMessage) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("http.admin_message", "business", biz, "user", user, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// handleStats reports agent token usage and funnel counts since ?since=
// (a Go duration, default 24h).
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid since")
			return
		}
		window = d
	}
	biz := s.businessID(r)
	since := time.Now().Add(-window)

	out := map[string]interface{}{"business": biz, "since": since.UTC().Format(time.RFC3339)}
	if us := s.deps.Stores.Usage; us != nil {
		totals, err := us.UsageTotals(r.Context(), biz, since)
		if err != nil {
			slog.Error("http.usage_totals", "business", biz, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		out["usage"] = totals
	}
	if fs := s.deps.Stores.Funnel; fs != nil {
		counts, err := fs.CountEvents(r.Context(), biz, since)
		if err != nil {
			slog.Error("http.funnel_counts", "business", biz, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		out["funnel"] = counts
	}
	writeJSON(w, http.StatusOK, out)
}
