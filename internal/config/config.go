// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/idea-funnel/internal/llm"
)

// Default locations, relative to the working directory.
const (
	DefaultStorePath = "ideas_bank.json"
	DefaultReportDir = "."
	DefaultCount     = 30
)

// Duration is a time.Duration written as a Go duration string ("1s", "2m").
type Duration time.Duration

// UnmarshalJSON parses a duration string.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string such as \"1s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON writes the duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// RetryConfig overrides parts of the reasoning client's retry policy.
type RetryConfig struct {
	MinCallDelay        Duration `json:"min_call_delay,omitempty" validate:"gte=0"`
	MaxRateLimitRetries *int     `json:"max_rate_limit_retries,omitempty" validate:"omitempty,gte=0,lte=10"`
	TransientRetries    *int     `json:"transient_retries,omitempty" validate:"omitempty,gte=0,lte=10"`
	BackoffBase         Duration `json:"backoff_base,omitempty" validate:"gte=0"`
	BackoffMax          Duration `json:"backoff_max,omitempty" validate:"gte=0"`
}

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Reasoning service
	Provider       string            `json:"provider,omitempty" validate:"omitempty,oneof=gemini openai"`
	Models         map[string]string `json:"models,omitempty" validate:"omitempty,dive,keys,oneof=lite standard advanced,endkeys,required"`
	BaseURL        string            `json:"base_url,omitempty" validate:"omitempty,url"`
	APIKey         string            `json:"api_key,omitempty"`
	RequestTimeout Duration          `json:"request_timeout,omitempty" validate:"gte=0"`
	Retry          RetryConfig       `json:"retry"`

	// Storage
	Store       string `json:"store,omitempty"`        // Path to the JSON candidate store
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL

	// Pipeline
	Stages            string   `json:"stages,omitempty"`  // Path to a YAML stage file
	Input             string   `json:"input,omitempty"`   // Seed file used instead of generation
	Profile           string   `json:"profile,omitempty"` // Founder profile (JSON or YAML) for founder-fit stages
	ReportDir         string   `json:"report_dir,omitempty"`
	Mode              string   `json:"mode,omitempty" validate:"omitempty,oneof=full generate resume stage"`
	Count             int      `json:"count,omitempty" validate:"gte=0"`
	Stage             int      `json:"stage,omitempty" validate:"gte=0"`
	Through           int      `json:"through,omitempty" validate:"gte=0"`
	SignalConcurrency int      `json:"signal_concurrency,omitempty" validate:"gte=0,lte=16"`
	ExcludeIndustries []string `json:"exclude_industries,omitempty"`

	Verbose bool `json:"verbose,omitempty"`
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks field ranges and cross-field rules. It does not require
// fields that CLI flags may still supply.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config error: '%s' failed '%s' check", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}

	if c.Store != "" && c.DatabaseURL != "" {
		return fmt.Errorf("config error: 'store' and 'database_url' are mutually exclusive")
	}
	if c.Mode == "stage" && c.Stage == 0 {
		return fmt.Errorf("config error: 'stage' is required when mode is 'stage'")
	}
	if c.Stage > 0 && c.Through > 0 {
		return fmt.Errorf("config error: 'stage' and 'through' are mutually exclusive")
	}
	if c.Retry.BackoffMax > 0 && c.Retry.BackoffBase > c.Retry.BackoffMax {
		return fmt.Errorf("config error: 'retry.backoff_base' exceeds 'retry.backoff_max'")
	}

	// Validate file paths exist (if specified)
	if c.Stages != "" {
		if _, err := os.Stat(c.Stages); os.IsNotExist(err) {
			return fmt.Errorf("config error: stage file not found: %s", c.Stages)
		}
	}
	if c.Input != "" {
		if _, err := os.Stat(c.Input); os.IsNotExist(err) {
			return fmt.Errorf("config error: input file not found: %s", c.Input)
		}
	}
	if c.Profile != "" {
		if _, err := os.Stat(c.Profile); os.IsNotExist(err) {
			return fmt.Errorf("config error: profile file not found: %s", c.Profile)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.Provider == "" {
		result.Provider = defaults.Provider
	}
	if result.BaseURL == "" {
		result.BaseURL = defaults.BaseURL
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.Store == "" && result.DatabaseURL == "" {
		result.Store = defaults.Store
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.Stages == "" {
		result.Stages = defaults.Stages
	}
	if result.Input == "" {
		result.Input = defaults.Input
	}
	if result.Profile == "" {
		result.Profile = defaults.Profile
	}
	if result.ReportDir == "" {
		result.ReportDir = defaults.ReportDir
	}
	if result.Mode == "" {
		result.Mode = defaults.Mode
	}

	// Int fields: use default if zero
	if result.Count == 0 {
		result.Count = defaults.Count
	}
	if result.Stage == 0 {
		result.Stage = defaults.Stage
	}
	if result.Through == 0 {
		result.Through = defaults.Through
	}
	if result.SignalConcurrency == 0 {
		result.SignalConcurrency = defaults.SignalConcurrency
	}
	if result.RequestTimeout == 0 {
		result.RequestTimeout = defaults.RequestTimeout
	}

	// Maps and slices
	if len(result.Models) == 0 {
		result.Models = defaults.Models
	}
	if len(result.ExcludeIndustries) == 0 {
		result.ExcludeIndustries = defaults.ExcludeIndustries
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// Defaults returns the values used when neither the file nor flags set a field.
func Defaults() Config {
	return Config{
		Provider:          string(llm.ProviderGemini),
		Store:             DefaultStorePath,
		ReportDir:         DefaultReportDir,
		Mode:              "full",
		Count:             DefaultCount,
		SignalConcurrency: 1,
	}
}

// LLMConfig builds the reasoning client configuration.
func (c *Config) LLMConfig() *llm.Config {
	var cfg *llm.Config
	if llm.Provider(c.Provider) == llm.ProviderOpenAI {
		cfg = llm.DefaultOpenAIConfig()
	} else {
		cfg = llm.DefaultGeminiConfig()
	}
	for tier, model := range c.Models {
		cfg = cfg.WithModel(llm.ModelTier(tier), model)
	}
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	if c.RequestTimeout > 0 {
		cfg.Timeout = time.Duration(c.RequestTimeout)
	}
	return cfg
}

// RetryPolicy applies the retry overrides to the default policy.
func (c *Config) RetryPolicy() llm.RetryPolicy {
	policy := llm.DefaultRetryPolicy()
	r := c.Retry
	if r.MinCallDelay > 0 {
		policy.MinCallDelay = time.Duration(r.MinCallDelay)
	}
	if r.MaxRateLimitRetries != nil {
		policy.MaxRateLimitRetries = *r.MaxRateLimitRetries
	}
	if r.TransientRetries != nil {
		policy.TransientRetries = *r.TransientRetries
	}
	if r.BackoffBase > 0 {
		policy.BackoffBase = time.Duration(r.BackoffBase)
	}
	if r.BackoffMax > 0 {
		policy.BackoffMax = time.Duration(r.BackoffMax)
	}
	return policy
}

// APIKeyEnv returns the environment variable holding the provider's key.
func APIKeyEnv(provider string) string {
	if llm.Provider(provider) == llm.ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "GEMINI_API_KEY"
}
