package telemetry

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/salebot/internal/config"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{}, "test")
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetup_HTTPExporter(t *testing.T) {
	// Exporters connect lazily, so an unreachable endpoint still sets up.
	cfg := config.TelemetryConfig{Enabled: true, Protocol: "http", Endpoint: "127.0.0.1:1", Insecure: true}
	shutdown, err := Setup(context.Background(), cfg, "test")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	shutdown(ctx)
}

func TestProtocol(t *testing.T) {
	if got := protocol(config.TelemetryConfig{}); got != "grpc" {
		t.Errorf("default = %q", got)
	}
	if got := protocol(config.TelemetryConfig{Protocol: "http"}); got != "http" {
		t.Errorf("http = %q", got)
	}
}
