package llm

import (
	"context"
	"fmt"
)

// Options are per-call generation parameters.
type Options struct {
	Tier ModelTier
	// Temperature is left to the provider default when nil.
	Temperature *float32
	// MaxOutputTokens is left to the provider default when zero.
	MaxOutputTokens int32
	// JSON asks the provider for a JSON response body.
	JSON bool
}

// Client is an abstraction over reasoning-service providers.
// Implementations return *ClientError for every service failure.
type Client interface {
	// Submit sends a prompt and returns the raw response text.
	Submit(ctx context.Context, prompt string, opts Options) (string, error)
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini, "":
		return NewGeminiClient(ctx, config, apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(config, apiKey)
	default:
		return nil, fmt.Errorf("unsupported provider %q", config.Provider)
	}
}

// Temperature is a helper for building Options literals.
func Temperature(t float32) *float32 {
	return &t
}
