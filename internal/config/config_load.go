package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:                "0.0.0.0",
			Port:                8790,
			WebhookMaxPerWindow: 120,
			WebhookWindow:       Duration(time.Minute),
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "salebot.db",
		},
		Providers: ProvidersConfig{
			Default:   "openai",
			OpenAI:    ProviderConfig{Model: "gpt-4o-mini"},
			Anthropic: ProviderConfig{Model: "claude-sonnet-4-5-20250929"},
			Burst:     5,
			Timeout:   Duration(60 * time.Second),
		},
		Agent: AgentConfig{
			MaxIterations: 5,
			HistoryLimit:  10,
			MaxTokens:     1024,
			Temperature:   0.5,
		},
		Pipeline: PipelineConfig{
			HistoryWindow:  20,
			RequestTimeout: Duration(45 * time.Second),
			ApologyMessage: "ขออภัยค่ะ ระบบขัดข้องชั่วคราว กรุณาลองใหม่อีกครั้ง หรือรอแอดมินติดต่อกลับนะคะ 🙏",
			OffHoursNote:   "ขณะนี้อยู่นอกเวลาทำการ แอดมินจะติดต่อกลับในเวลาทำการ ให้ตอบคำถามทั่วไปได้ แต่ห้ามยืนยันการจัดส่งหรือการชำระเงิน",
		},
		Guard: GuardConfig{
			MaxMessages:     20,
			Window:          Duration(60 * time.Second),
			IdempotencyTTL:  Duration(5 * time.Minute),
			OfflineCooldown: Duration(10 * time.Minute),
		},
		Flags: FlagsConfig{
			MaxPerBusiness: 100,
			TTL:            Duration(72 * time.Hour),
		},
		Conversations: ConversationConfig{
			Retention:        200,
			TTL:              Duration(30 * 24 * time.Hour),
			SummaryThreshold: 30,
		},
		Businesses: BusinessesConfig{
			Dir:       "businesses",
			DefaultID: "demo",
			Watch:     true,
		},
		Channels: ChannelsConfig{
			Widget: WidgetConfig{Enabled: true},
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive")
	}
	if c.Guard.MaxMessages <= 0 || c.Guard.Window <= 0 {
		return fmt.Errorf("guard.max_messages and guard.window must be positive")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	switch c.Providers.Default {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("providers.default must be openai or anthropic, got %q", c.Providers.Default)
	}
	return nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	envStr("SALEBOT_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("SALEBOT_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("SALEBOT_PROVIDER", &c.Providers.Default)
	envStr("SALEBOT_OPENAI_MODEL", &c.Providers.OpenAI.Model)
	envStr("SALEBOT_ANTHROPIC_MODEL", &c.Providers.Anthropic.Model)

	envStr("SALEBOT_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("SALEBOT_HOST", &c.Gateway.Host)
	envInt("SALEBOT_PORT", &c.Gateway.Port)

	envStr("SALEBOT_REDIS_URL", &c.Redis.URL)
	envStr("SALEBOT_DATABASE_DRIVER", &c.Database.Driver)
	envStr("SALEBOT_DATABASE_DSN", &c.Database.DSN)

	envStr("SALEBOT_BUSINESSES_DIR", &c.Businesses.Dir)
	envStr("SALEBOT_DEFAULT_BUSINESS", &c.Businesses.DefaultID)

	envInt("SALEBOT_MAX_ITERATIONS", &c.Agent.MaxIterations)
	envInt("SALEBOT_RATE_LIMIT_MAX", &c.Guard.MaxMessages)

	envStr("SALEBOT_LINE_RELAY_URL", &c.Channels.Line.RelayURL)
	envStr("SALEBOT_LINE_RELAY_TOKEN", &c.Channels.Line.Token)
	envStr("SALEBOT_FACEBOOK_RELAY_URL", &c.Channels.Facebook.RelayURL)
	envStr("SALEBOT_FACEBOOK_RELAY_TOKEN", &c.Channels.Facebook.Token)
	if c.Channels.Line.RelayURL != "" {
		c.Channels.Line.Enabled = true
	}
	if c.Channels.Facebook.RelayURL != "" {
		c.Channels.Facebook.Enabled = true
	}

	envStr("SALEBOT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("SALEBOT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("SALEBOT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("SALEBOT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SALEBOT_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	envStr("SALEBOT_TSNET_HOSTNAME", &c.Tailscale.Hostname)
	envStr("SALEBOT_TSNET_AUTH_KEY", &c.Tailscale.AuthKey)
	envStr("SALEBOT_TSNET_DIR", &c.Tailscale.StateDir)

	if v := os.Getenv("SALEBOT_PIPELINE_LAYERS"); v != "" {
		c.Pipeline.Layers = strings.Split(v, ",")
	}
}

// Addr returns the listen address for the HTTP gateway.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}
