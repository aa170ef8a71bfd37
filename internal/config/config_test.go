package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json5")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.Agent.MaxIterations)
	}
	if cfg.Guard.Window.Std() != 60*time.Second {
		t.Errorf("Window = %v, want 60s", cfg.Guard.Window.Std())
	}
	if cfg.Flags.MaxPerBusiness != 100 {
		t.Errorf("MaxPerBusiness = %d, want 100", cfg.Flags.MaxPerBusiness)
	}
}

func TestLoad_JSON5WithDurations(t *testing.T) {
	path := writeConfig(t, `{
		// comments are allowed
		guard: { max_messages: 3, window: "10s", idempotency_ttl: 120 },
		pipeline: { layers: ["faq", "sale_script"] },
		businesses: { default_id: "shop-a", },
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Guard.MaxMessages != 3 {
		t.Errorf("MaxMessages = %d, want 3", cfg.Guard.MaxMessages)
	}
	if cfg.Guard.Window.Std() != 10*time.Second {
		t.Errorf("Window = %v, want 10s", cfg.Guard.Window.Std())
	}
	if cfg.Guard.IdempotencyTTL.Std() != 2*time.Minute {
		t.Errorf("IdempotencyTTL = %v, want 2m", cfg.Guard.IdempotencyTTL.Std())
	}
	if len(cfg.Pipeline.Layers) != 2 || cfg.Pipeline.Layers[0] != "faq" {
		t.Errorf("Layers = %v", cfg.Pipeline.Layers)
	}
	if cfg.Businesses.DefaultID != "shop-a" {
		t.Errorf("DefaultID = %q", cfg.Businesses.DefaultID)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SALEBOT_OPENAI_API_KEY", "sk-test")
	t.Setenv("SALEBOT_MAX_ITERATIONS", "7")
	t.Setenv("SALEBOT_LINE_RELAY_URL", "http://relay.local/line")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "sk-test" {
		t.Errorf("APIKey not applied")
	}
	if cfg.Agent.MaxIterations != 7 {
		t.Errorf("MaxIterations = %d, want 7", cfg.Agent.MaxIterations)
	}
	if !cfg.Channels.Line.Enabled {
		t.Errorf("line channel should auto-enable when relay URL is set")
	}
}

func TestLoad_InvalidDriver(t *testing.T) {
	path := writeConfig(t, `{ database: { driver: "mysql" } }`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
