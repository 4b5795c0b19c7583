// Package llm provides the reasoning-service client: provider backends, a
// typed error taxonomy and a throttled, retrying wrapper used by the stage engine.
package llm

import "time"

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for cheap yes/no screening prompts
	TierLite ModelTier = "lite"
	// TierStandard is for single-question evaluation stages
	TierStandard ModelTier = "standard"
	// TierAdvanced is for research-heavy evidence gathering
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI is any OpenAI-compatible chat-completions endpoint (OpenAI, Perplexity)
	ProviderOpenAI Provider = "openai"
)

// Config holds the model configuration for the reasoning client.
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
	// BaseURL overrides the endpoint for HTTP providers.
	BaseURL string
	// Timeout bounds a single HTTP request.
	Timeout time.Duration
}

// DefaultConfig returns the default configuration (currently Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
	}
}

// DefaultOpenAIConfig returns the default OpenAI-compatible configuration.
func DefaultOpenAIConfig() *Config {
	return &Config{
		Provider: ProviderOpenAI,
		BaseURL:  "https://api.openai.com/v1",
		Timeout:  5 * time.Minute,
		Models: map[ModelTier]string{
			TierLite:     "gpt-4o-mini",
			TierStandard: "gpt-4o-mini",
			TierAdvanced: "gpt-4o",
		},
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Provider: c.Provider,
		BaseURL:  c.BaseURL,
		Timeout:  c.Timeout,
		Models:   make(map[ModelTier]string),
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}

// RetryPolicy controls throttling and retries in the Reasoner.
type RetryPolicy struct {
	// MinCallDelay is the fixed interval enforced before every attempt.
	MinCallDelay time.Duration
	// MaxRateLimitRetries bounds retries of RateLimited errors.
	MaxRateLimitRetries int
	// TransientRetries bounds retries of Transient errors.
	TransientRetries int
	// BackoffBase is the first backoff wait; it doubles on each retry.
	BackoffBase time.Duration
	// BackoffMax caps a single backoff wait.
	BackoffMax time.Duration
}

// DefaultRetryPolicy mirrors the request budget the pipeline was tuned for:
// one call per second, three rate-limit retries starting at ten seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MinCallDelay:        time.Second,
		MaxRateLimitRetries: 3,
		TransientRetries:    2,
		BackoffBase:         10 * time.Second,
		BackoffMax:          2 * time.Minute,
	}
}
