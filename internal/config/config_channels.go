package config

// ChannelsConfig configures outbound delivery per inbound channel.
// LINE and Facebook replies are handed to a relay that owns the platform wire format.
type ChannelsConfig struct {
	Widget   WidgetConfig `json:"widget"`
	Line     RelayConfig  `json:"line"`
	Facebook RelayConfig  `json:"facebook"`
}

// WidgetConfig configures the embedded web chat widget websocket.
type WidgetConfig struct {
	Enabled        bool     `json:"enabled"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"` // empty = allow all
}

// RelayConfig points at a service that forwards replies to a messaging platform.
type RelayConfig struct {
	Enabled  bool   `json:"enabled"`
	RelayURL string `json:"relay_url,omitempty"`
	Token    string `json:"-"` // env only
}

// GatewayConfig configures the HTTP listener.
type GatewayConfig struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Token string `json:"-"` // bearer token for admin routes, env only

	// Per-IP limit on webhook deliveries, ahead of the per-customer guard.
	WebhookMaxPerWindow int      `json:"webhook_max_per_window,omitempty"`
	WebhookWindow       Duration `json:"webhook_window,omitempty"`
}
