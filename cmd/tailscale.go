//go:build tsnet

package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"tailscale.com/tsnet"

	"github.com/nextlevelbuilder/salebot/internal/config"
)

// initTailscale serves handler on the tailnet as cfg.Tailscale.Hostname.
// Returns a cleanup func, or nil when Tailscale is not configured.
func initTailscale(ctx context.Context, cfg *config.Config, handler http.Handler) func() {
	tc := cfg.Tailscale
	if tc.Hostname == "" {
		return nil
	}
	srv := &tsnet.Server{
		Hostname:  tc.Hostname,
		Dir:       tc.StateDir,
		AuthKey:   tc.AuthKey,
		Ephemeral: tc.Ephemeral,
		Logf:      func(string, ...any) {},
	}
	ln, err := srv.Listen("tcp", ":80")
	if err != nil {
		slog.Error("tailscale.listen_failed", "hostname", tc.Hostname, "error", err)
		srv.Close()
		return nil
	}

	hs := &http.Server{Handler: handler}
	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("tailscale.serve_failed", "error", err)
		}
	}()
	slog.Info("tailscale listener started", "hostname", tc.Hostname)

	return func() {
		hs.Shutdown(context.Background())
		srv.Close()
	}
}
