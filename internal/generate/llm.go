package generate

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/idea-funnel/internal/llm"
	"github.com/jonathan/idea-funnel/internal/prompts"
	"github.com/jonathan/idea-funnel/internal/store"
)

const (
	// DefaultBatchSize is how many ideas one generation call asks for.
	DefaultBatchSize = 30
	// DefaultMaxCalls caps generation calls per Generate.
	DefaultMaxCalls = 10

	generatePromptKey = "generate-ideas"
)

// Submitter is the subset of the reasoning client used for generation.
type Submitter interface {
	Submit(ctx context.Context, prompt string, opts llm.Options) (string, error)
}

// LLMOptions configures an LLMSource.
type LLMOptions struct {
	BatchSize int
	MaxCalls  int
	// Exclude lists industries the prompt tells the service to avoid.
	Exclude []string
	Logger  *zap.Logger
}

// LLMSource asks the reasoning service for new ideas in batches.
type LLMSource struct {
	submitter Submitter
	batchSize int
	maxCalls  int
	exclude   []string
	logger    *zap.Logger
}

// NewLLMSource creates a generation source over submitter.
func NewLLMSource(submitter Submitter, opts LLMOptions) *LLMSource {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxCalls <= 0 {
		opts.MaxCalls = DefaultMaxCalls
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &LLMSource{
		submitter: submitter,
		batchSize: opts.BatchSize,
		maxCalls:  opts.MaxCalls,
		exclude:   opts.Exclude,
		logger:    opts.Logger,
	}
}

// Name identifies the source in record provenance.
func (s *LLMSource) Name() string {
	return "llm"
}

// Generate calls the service until count distinct seeds are collected or the
// call budget runs out. Partial results are returned with the error that
// stopped generation.
func (s *LLMSource) Generate(ctx context.Context, count int) ([]store.Seed, error) {
	if count <= 0 {
		return nil, nil
	}

	var (
		seeds []store.Seed
		seen  = make(map[string]bool)
	)
	for call := 0; call < s.maxCalls && len(seeds) < count; call++ {
		want := min(s.batchSize, count-len(seeds))
		prompt, err := prompts.Render(prompts.GenerationFile, generatePromptKey, map[string]string{
			"Count":    fmt.Sprint(want),
			"Excluded": excludedList(s.exclude),
		})
		if err != nil {
			return seeds, err
		}

		raw, err := s.submitter.Submit(ctx, prompt, llm.Options{
			Tier:            llm.TierStandard,
			Temperature:     llm.Temperature(0.9),
			MaxOutputTokens: 4000,
			JSON:            true,
		})
		if err != nil {
			return seeds, fmt.Errorf("idea generation failed: %w", err)
		}

		batch, err := ParseSeeds(raw)
		if err != nil {
			s.logger.Warn("discarding unparseable generation batch", zap.Error(err))
			continue
		}
		added := 0
		for _, seed := range clean(batch, s.Name()) {
			key := store.ContentHash(seed.Business, seed.Pain)
			if seen[key] || s.excluded(seed.Business) {
				continue
			}
			seen[key] = true
			seeds = append(seeds, seed)
			added++
			if len(seeds) == count {
				break
			}
		}
		s.logger.Debug("generation batch", zap.Int("call", call+1), zap.Int("added", added), zap.Int("total", len(seeds)))
	}
	return seeds, nil
}

func (s *LLMSource) excluded(business string) bool {
	lower := strings.ToLower(business)
	for _, kw := range s.exclude {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func excludedList(exclude []string) string {
	if len(exclude) == 0 {
		return "(none)"
	}
	return strings.Join(exclude, ", ")
}

// ParseSeeds reads a generation response. JSON arrays (bare, fenced, or
// wrapped in an {"ideas": [...]} object) are preferred; otherwise each
// "business,pain" line is read as CSV.
func ParseSeeds(raw string) ([]store.Seed, error) {
	cleaned := llm.CleanJSONBlock(raw)

	var seeds []store.Seed
	if err := json.Unmarshal([]byte(cleaned), &seeds); err == nil {
		return seeds, nil
	}
	var wrapped struct {
		Ideas []store.Seed `json:"ideas"`
	}
	if err := json.Unmarshal([]byte(cleaned), &wrapped); err == nil && len(wrapped.Ideas) > 0 {
		return wrapped.Ideas, nil
	}
	return parseCSVLines(raw)
}

func parseCSVLines(raw string) ([]store.Seed, error) {
	var seeds []store.Seed
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, ",") || strings.HasPrefix(line, "```") {
			continue
		}
		r := csv.NewReader(strings.NewReader(line))
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		fields, err := r.Read()
		if err != nil || len(fields) < 2 {
			continue
		}
		business := strings.TrimSpace(fields[0])
		if strings.EqualFold(business, "business") || strings.EqualFold(business, "business type") {
			continue
		}
		seeds = append(seeds, store.Seed{
			Business: business,
			Pain:     strings.TrimSpace(strings.Join(fields[1:], ",")),
		})
	}
	if len(seeds) == 0 {
		return nil, errors.New("no ideas found in generation response")
	}
	return seeds, nil
}
