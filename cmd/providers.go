package cmd

import (
	"log/slog"

	"github.com/nextlevelbuilder/salebot/internal/config"
	"github.com/nextlevelbuilder/salebot/internal/providers"
)

// buildProvider returns the configured default provider wrapped in the
// process throttle, or nil when its API key is missing. Without a provider
// the pipeline answers unmatched messages with the business fallback.
func buildProvider(cfg *config.Config) providers.Provider {
	pc := cfg.Providers
	var p providers.Provider
	switch pc.Default {
	case "anthropic":
		if pc.Anthropic.APIKey == "" {
			break
		}
		opts := []providers.AnthropicOption{providers.WithAnthropicTimeout(pc.Timeout.Std())}
		if pc.Anthropic.Model != "" {
			opts = append(opts, providers.WithAnthropicModel(pc.Anthropic.Model))
		}
		if pc.Anthropic.APIBase != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(pc.Anthropic.APIBase))
		}
		p = providers.NewAnthropicProvider(pc.Anthropic.APIKey, opts...)
	default:
		if pc.OpenAI.APIKey == "" {
			break
		}
		p = providers.NewOpenAIProvider(pc.OpenAI.APIKey, pc.OpenAI.APIBase, pc.OpenAI.Model, pc.Timeout.Std())
	}
	if p == nil {
		slog.Warn("provider.not_configured", "provider", pc.Default)
		return nil
	}
	slog.Info("registered provider", "name", p.Name(), "model", p.DefaultModel())
	return providers.NewThrottled(p, pc.RequestsPerSecond, pc.Burst)
}
