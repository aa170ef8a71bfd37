package cmd

import (
	"testing"

	"github.com/nextlevelbuilder/salebot/internal/config"
)

func TestOnboardApply_SecretsGoToEnv(t *testing.T) {
	a := onboardAnswers{
		Provider:   "anthropic",
		APIKey:     "sk-ant-test",
		RedisURL:   "redis://cache:6379/1",
		Driver:     "postgres",
		DSN:        "postgres://bot:pw@db/salebot",
		Port:       "9000",
		Businesses: "tenants",
		DefaultID:  "shop",
		AdminToken: "tok",
	}
	cfg, env := a.apply(config.Default())

	if cfg.Providers.Default != "anthropic" || cfg.Gateway.Port != 9000 || cfg.Businesses.DefaultID != "shop" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Database.DSN != "" {
		t.Errorf("postgres DSN must not be written to the config file")
	}
	want := map[string]string{
		"SALEBOT_ANTHROPIC_API_KEY": "sk-ant-test",
		"SALEBOT_DATABASE_DSN":      "postgres://bot:pw@db/salebot",
		"SALEBOT_GATEWAY_TOKEN":     "tok",
	}
	for k, v := range want {
		if env[k] != v {
			t.Errorf("env[%s] = %q, want %q", k, env[k], v)
		}
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("onboarded config invalid: %v", err)
	}
}

func TestOnboardApply_SQLiteKeepsPath(t *testing.T) {
	a := onboardAnswers{Provider: "openai", Driver: "sqlite", DSN: "data/ledger.db", Port: "8790"}
	cfg, env := a.apply(config.Default())
	if cfg.Database.DSN != "data/ledger.db" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if len(env) != 0 {
		t.Errorf("env = %v, want none", env)
	}
}

func TestValidatePort(t *testing.T) {
	for _, tt := range []struct {
		in string
		ok bool
	}{{"8790", true}, {"0", false}, {"70000", false}, {"http", false}} {
		if err := validatePort(tt.in); (err == nil) != tt.ok {
			t.Errorf("validatePort(%q) = %v", tt.in, err)
		}
	}
}

func TestBuildProvider_MissingKey(t *testing.T) {
	cfg := config.Default()
	if p := buildProvider(cfg); p != nil {
		t.Errorf("provider without key = %v", p)
	}
	cfg.Providers.OpenAI.APIKey = "sk-test"
	if p := buildProvider(cfg); p == nil || p.Name() != "openai" {
		t.Errorf("provider = %v", p)
	}
}
