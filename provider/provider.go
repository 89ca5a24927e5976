// Package provider selects and constructs a model client from configuration.
package provider

import (
	"context"
	"fmt"

	"github.com/jarvas-assistant/jarvas/config"
	"github.com/jarvas-assistant/jarvas/provider/claude"
	"github.com/jarvas-assistant/jarvas/provider/gemini"
	"github.com/jarvas-assistant/jarvas/provider/ollama"
	"github.com/jarvas-assistant/jarvas/provider/openai"
	"github.com/jarvas-assistant/jarvas/session"
)

// New builds the model client named by cfg.Provider.
func New(ctx context.Context, cfg *config.Config) (session.ModelClient, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.New(&ollama.Config{
			BaseURL:     cfg.OllamaURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			NumCtx:      4096,
		}), nil
	case config.ProviderOpenAI:
		return openai.New(&openai.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}), nil
	case config.ProviderClaude:
		return claude.New(&claude.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		}), nil
	case config.ProviderGemini:
		return gemini.New(ctx, &gemini.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: float32(cfg.Temperature),
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
