package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// Submit sends a prompt to the model configured for opts.Tier.
func (c *GeminiClient) Submit(ctx context.Context, prompt string, opts Options) (string, error) {
	modelName := c.config.GetModel(opts.Tier)
	if modelName == "" {
		return "", Fatal(fmt.Sprintf("no model configured for tier %s", opts.Tier), nil)
	}

	model := c.client.GenerativeModel(modelName)
	if opts.Temperature != nil {
		model.SetTemperature(*opts.Temperature)
	}
	if opts.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(opts.MaxOutputTokens)
	}
	if opts.JSON {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyGeminiError(err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", err
	}
	if opts.JSON {
		return CleanJSONBlock(text), nil
	}
	return text, nil
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", Transient("no candidates in response", nil)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", Transient("no content in response", nil)
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", Transient("no text parts in response", nil)
	}

	text := strings.Join(parts, "")
	if strings.TrimSpace(text) == "" {
		return "", Transient("empty response", nil)
	}
	return text, nil
}

// classifyGeminiError maps SDK errors onto the error taxonomy.
// Context errors pass through untouched so callers can tell cancellation apart.
func classifyGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return Fatal("response blocked by safety filters", err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, 0, fmt.Sprintf("gemini returned HTTP %d", apiErr.Code), err)
	}

	switch code := status.Code(err); code {
	case codes.ResourceExhausted:
		return RateLimited("gemini quota exhausted", 0, err)
	case codes.Unavailable, codes.Aborted, codes.Internal, codes.DeadlineExceeded:
		return Transient(fmt.Sprintf("gemini %s", strings.ToLower(code.String())), err)
	case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument,
		codes.NotFound, codes.FailedPrecondition, codes.Unimplemented:
		return Fatal(fmt.Sprintf("gemini %s", strings.ToLower(code.String())), err)
	}

	return Transient("gemini request failed", err)
}
