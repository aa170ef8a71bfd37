package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/salebot/internal/channels"
	httpapi "github.com/nextlevelbuilder/salebot/internal/http"
	"github.com/nextlevelbuilder/salebot/internal/store/redisstore"
	"github.com/nextlevelbuilder/salebot/internal/store/sqlstore"
	"github.com/nextlevelbuilder/salebot/internal/tasks"
	"github.com/nextlevelbuilder/salebot/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("telemetry.setup_failed", "error", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracing(sctx)
	}()

	rdb, err := redisstore.Open(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	version, err := sqlstore.MigrateUp(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("ledger migrations: %w", err)
	}
	db, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("ledger ready", "driver", db.Driver(), "schema", version)

	dispatcher := tasks.NewDispatcher(0, 0)
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		dispatcher.Close(dctx)
	}()

	a, err := buildApp(cfg, rdb, db, dispatcher)
	if err != nil {
		return err
	}
	if cfg.Businesses.Watch {
		if err := a.resolver.Watch(ctx); err != nil {
			slog.Warn("business.watch_disabled", "error", err)
		}
	}
	agentCap := 0
	if a.agent != nil {
		agentCap = a.agent.MaxIterations()
	}
	slog.Info("pipeline ready",
		"layers", a.router.LayerNames(),
		"agent_max_iterations", agentCap,
		"businesses", a.resolver.IDs(),
		"channels", a.channels.GetEnabledChannels(),
	)

	deps := httpapi.Deps{
		Inbound:        a.service,
		Stores:         a.stores,
		Businesses:     a.resolver,
		Token:          cfg.Gateway.Token,
		AllowedOrigins: cfg.Channels.Widget.AllowedOrigins,
		WebhookTokens: map[string]string{
			channels.Line:     cfg.Channels.Line.Token,
			channels.Facebook: cfg.Channels.Facebook.Token,
		},
		WebhookLimiter: channels.NewWebhookRateLimiter(cfg.Gateway.WebhookMaxPerWindow, cfg.Gateway.WebhookWindow.Std()),
		Ready: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			return nil
		},
	}
	if cfg.Channels.Widget.Enabled {
		deps.Replies = a.bus
	}
	if cfg.Gateway.Token == "" {
		slog.Warn("security.admin_token_missing", "hint", "set SALEBOT_GATEWAY_TOKEN to protect /admin routes")
	}

	server := httpapi.NewServer(deps)
	if cleanup := initTailscale(ctx, cfg, server.Handler()); cleanup != nil {
		defer cleanup()
	}
	return server.Start(ctx, cfg.Addr())
}
