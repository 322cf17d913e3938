package rewriter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Ezekiel98Tz/PrintingAgent/config"
)

// New builds the Rewriter selected by cfg.Provider.
func New(ctx context.Context, cfg config.AIConfig) (Rewriter, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY")
		}
		return NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIKey, cfg.Model, httpClient), nil
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY")
		}
		return NewAnthropicClient(cfg.AnthropicBaseURL, cfg.AnthropicKey, cfg.Model, httpClient), nil
	case "ollama":
		return NewOllamaClient(cfg.OllamaURL, cfg.Model, httpClient), nil
	case "vertex":
		return NewVertexClient(ctx, cfg.VertexProject, cfg.VertexLocation, cfg.Model)
	case "mock":
		return NewMockRewriter(WithSuffix(cfg.MockSuffix), WithDelay(cfg.MockDelay)), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// OptionsFrom returns the per-call options configured in cfg.
func OptionsFrom(cfg config.AIConfig) Options {
	return Options{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
}
