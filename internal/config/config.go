package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that reads as a Go duration string ("60s", "5m")
// or as a bare number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("duration must be a string or number of seconds")
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Config is the root configuration for the salebot gateway.
type Config struct {
	Gateway       GatewayConfig      `json:"gateway"`
	Redis         RedisConfig        `json:"redis"`
	Database      DatabaseConfig     `json:"database"`
	Providers     ProvidersConfig    `json:"providers"`
	Agent         AgentConfig        `json:"agent"`
	Pipeline      PipelineConfig     `json:"pipeline"`
	Guard         GuardConfig        `json:"guard"`
	Flags         FlagsConfig        `json:"flags"`
	Conversations ConversationConfig `json:"conversations"`
	Businesses    BusinessesConfig   `json:"businesses"`
	Channels      ChannelsConfig     `json:"channels"`
	Telemetry     TelemetryConfig    `json:"telemetry,omitempty"`
	Tailscale     TailscaleConfig    `json:"tailscale,omitempty"`
}

// RedisConfig points at the key-value store holding conversations, guard
// counters and admin flags.
type RedisConfig struct {
	URL string `json:"url"` // redis://host:6379/0
}

// DatabaseConfig configures the usage/funnel ledger.
// DSN is never read from the config file for postgres; use SALEBOT_DATABASE_DSN.
type DatabaseConfig struct {
	Driver string `json:"driver"`        // "sqlite" (default) or "postgres"
	DSN    string `json:"dsn,omitempty"` // sqlite file path; postgres DSN from env
}

// ProvidersConfig holds LLM provider credentials and the process-wide throttle.
type ProvidersConfig struct {
	Default           string         `json:"default"` // "openai" or "anthropic"
	OpenAI            ProviderConfig `json:"openai"`
	Anthropic         ProviderConfig `json:"anthropic"`
	RequestsPerSecond float64        `json:"requests_per_second,omitempty"` // 0 = unthrottled
	Burst             int            `json:"burst,omitempty"`
	Timeout           Duration       `json:"timeout,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `json:"-"` // env only
	APIBase string `json:"api_base,omitempty"`
	Model   string `json:"model,omitempty"`
}

// AgentConfig tunes the tool-calling loop.
type AgentConfig struct {
	MaxIterations int     `json:"max_iterations"`
	HistoryLimit  int     `json:"history_limit"` // last K messages sent to the model
	MaxTokens     int     `json:"max_tokens"`
	Temperature   float64 `json:"temperature"`
}

// PipelineConfig controls layer order and the user-facing fallback texts.
type PipelineConfig struct {
	Layers         []string `json:"layers,omitempty"` // layer names in priority order; empty = default order
	HistoryWindow  int      `json:"history_window"`   // most recent N messages loaded per request
	RequestTimeout Duration `json:"request_timeout"`
	ApologyMessage string   `json:"apology_message"`
	OffHoursNote   string   `json:"off_hours_note"`
}

// GuardConfig holds rate limit, idempotency and offline-notice cooldown tunables.
type GuardConfig struct {
	MaxMessages     int      `json:"max_messages"`
	Window          Duration `json:"window"`
	IdempotencyTTL  Duration `json:"idempotency_ttl"`
	OfflineCooldown Duration `json:"offline_cooldown"`
}

// FlagsConfig bounds the per-business admin flag list.
type FlagsConfig struct {
	MaxPerBusiness int      `json:"max_per_business"`
	TTL            Duration `json:"ttl"`
}

// ConversationConfig bounds stored history and controls rolling summaries.
type ConversationConfig struct {
	Retention        int      `json:"retention"` // messages kept per conversation
	TTL              Duration `json:"ttl"`
	SummaryThreshold int      `json:"summary_threshold"` // 0 = never summarize
}

// BusinessesConfig locates the per-tenant knowledge files.
type BusinessesConfig struct {
	Dir       string `json:"dir"`
	DefaultID string `json:"default_id"`
	Watch     bool   `json:"watch"`
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"` // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// TailscaleConfig configures the optional tsnet listener that serves the same
// routes on a tailnet. Requires building with -tags tsnet. Auth key from env only.
type TailscaleConfig struct {
	Hostname  string `json:"hostname,omitempty"` // e.g. "salebot-admin"
	StateDir  string `json:"state_dir,omitempty"`
	AuthKey   string `json:"-"` // SALEBOT_TSNET_AUTH_KEY
	Ephemeral bool   `json:"ephemeral,omitempty"`
}
