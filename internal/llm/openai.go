package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// OpenAIClient implements Client for OpenAI-compatible chat-completions
// endpoints. Perplexity exposes the same API under a different base URL.
type OpenAIClient struct {
	apiKey     string
	config     *Config
	httpClient *http.Client
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    *float32              `json:"temperature,omitempty"`
	MaxTokens      int32                 `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

const openAISystemPrompt = "You are a rigorous market researcher. You KILL ideas unless you find strong evidence."

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(config *Config, apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultOpenAIConfig().BaseURL
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultOpenAIConfig().Timeout
	}
	return &OpenAIClient{
		apiKey:     apiKey,
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Submit sends a single chat-completions request. Retries are the Reasoner's job.
func (c *OpenAIClient) Submit(ctx context.Context, prompt string, opts Options) (string, error) {
	modelName := c.config.GetModel(opts.Tier)
	if modelName == "" {
		return "", Fatal(fmt.Sprintf("no model configured for tier %s", opts.Tier), nil)
	}

	reqBody := openAIRequest{
		Model: modelName,
		Messages: []openAIMessage{
			{Role: "system", Content: openAISystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxOutputTokens,
	}
	if opts.JSON {
		reqBody.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", Fatal("failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.config.BaseURL, "/")+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", Fatal("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", Transient("request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", Transient("failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := fmt.Sprintf("API request failed with status %d", resp.StatusCode)
		cause := errors.New(truncate(strings.TrimSpace(string(body)), 300))
		return "", classifyStatus(resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), detail, cause)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", Transient("failed to parse response", err)
	}
	if parsed.Error != nil {
		return "", Fatal("API error: "+parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", Transient("no completion returned", nil)
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", Transient("empty response", nil)
	}
	if opts.JSON {
		return CleanJSONBlock(text), nil
	}
	return text, nil
}

// Close is a no-op; the HTTP client holds no per-client resources.
func (c *OpenAIClient) Close() error {
	return nil
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
