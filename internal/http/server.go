// Package http exposes the inbound message API, relay webhooks, the widget
// websocket and the admin routes.
package http

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nextlevelbuilder/salebot/internal/business"
	"github.com/nextlevelbuilder/salebot/internal/channels"
	"github.com/nextlevelbuilder/salebot/internal/inbound"
	"github.com/nextlevelbuilder/salebot/internal/store"
	"github.com/nextlevelbuilder/salebot/internal/store/redisstore"
)

// Inbound is the request path the handlers drive.
type Inbound interface {
	Handle(ctx context.Context, msg inbound.Message) (*inbound.Reply, error)
	SendAdminMessage(ctx context.Context, businessID, userID, channel, content string) error
}

// ReplySubscriber streams replies for one widget user.
type ReplySubscriber interface {
	Subscribe(ctx context.Context, businessID, userID string) (<-chan redisstore.Reply, error)
}

// Resolver maps a path business id to its canonical tenant.
type Resolver interface {
	Get(id string) *business.BusinessConfig
}

// Deps wires the server. Replies may be nil when the widget is disabled;
// Ready may be nil.
type Deps struct {
	Inbound        Inbound
	Stores         *store.Stores
	Businesses     Resolver
	Replies        ReplySubscriber
	Token          string            // admin bearer token; empty disables auth
	WebhookTokens  map[string]string // channel → relay shared secret
	AllowedOrigins []string
	WebhookLimiter *channels.WebhookRateLimiter
	Ready          func(ctx context.Context) error
}

// Server is the HTTP front of the gateway.
type Server struct {
	deps       Deps
	upgrader   websocket.Upgrader
	router     chi.Router
	httpServer *http.Server
}

func NewServer(deps Deps) *Server {
	if deps.WebhookLimiter == nil {
		deps.WebhookLimiter = channels.NewWebhookRateLimiter(0, 0)
	}
	s := &Server{deps: deps}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.router = s.routes()
	return s
}

// Handler returns the routed handler, for tests and extra listeners.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "salebot.api")
		})
		r.Post("/messages", s.handleMessage)
		r.With(s.limitWebhooks).Post("/webhooks/{channel}", s.handleWebhook)
		if s.deps.Replies != nil {
			r.Get("/widget/ws", s.handleWidget)
		}
	})

	r.Route("/admin/{business}", func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/flags", s.handleListFlags)
		r.Get("/stats", s.handleStats)
		r.Put("/bot", s.handleSetGlobalBot)
		r.Put("/users/{user}/bot", s.handleSetUserBot)
		r.Get("/users/{user}/messages", s.handleGetMessages)
		r.Post("/users/{user}/messages", s.handleAdminMessage)
		r.Get("/users/{user}/profile", s.handleGetProfile)
	})
	return r
}

// Start listens on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Token != "" && !tokenEqual(extractBearerToken(r), s.deps.Token) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitWebhooks(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.deps.WebhookLimiter.Allow(ip) {
			slog.Warn("security.webhook_rate_limited", "ip", ip)
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkOrigin validates the widget websocket origin against the allowlist.
// No configured origins allows all; an empty Origin (non-browser) is allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.deps.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("security.cors_rejected", "origin", origin)
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func tokenEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
