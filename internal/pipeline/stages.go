package pipeline

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/idea-funnel/internal/llm"
	"github.com/jonathan/idea-funnel/internal/prompts"
	"github.com/jonathan/idea-funnel/internal/verdict"
)

//go:embed default_stages.yaml
var defaultStagesYAML []byte

// Mode selects how a stage reaches its decision.
type Mode string

const (
	// ModeVerdict reads a single PASS/KILL verdict from one response.
	ModeVerdict Mode = "verdict"
	// ModeEvidence scores several signals and applies thresholds.
	ModeEvidence Mode = "evidence"
)

// DefaultScoreKey is the field read from a signal response when ScoreKey is empty.
const DefaultScoreKey = "score"

// HardFailDef kills a candidate when Key is missing from the signal response
// or its value is below Below.
type HardFailDef struct {
	Key   string  `yaml:"key" validate:"required"`
	Below float64 `yaml:"below"`
}

// SignalDef is one evidence sub-check. A signal counts as triggered when
// its sub-score is positive, or, with TriggerKey set, when that response
// field is positive or true.
type SignalDef struct {
	Name       string       `yaml:"name" validate:"required"`
	Prompt     string       `yaml:"prompt,omitempty"`
	Template   string       `yaml:"template,omitempty"`
	Max        float64      `yaml:"max" validate:"gt=0"`
	ScoreKey   string       `yaml:"score_key,omitempty"`
	TriggerKey string       `yaml:"trigger_key,omitempty"`
	HardFail   *HardFailDef `yaml:"hard_fail,omitempty"`
}

// StageDef describes one pipeline stage.
type StageDef struct {
	Name            string          `yaml:"name" validate:"required"`
	Mode            Mode            `yaml:"mode" validate:"required,oneof=verdict evidence"`
	Prompt          string          `yaml:"prompt,omitempty"`
	Template        string          `yaml:"template,omitempty"`
	Tier            string          `yaml:"tier,omitempty" validate:"omitempty,oneof=lite standard advanced"`
	Temperature     *float32        `yaml:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxOutputTokens int32           `yaml:"max_output_tokens,omitempty" validate:"gte=0"`
	Grammar         verdict.Grammar `yaml:"grammar,omitempty"`
	ExcludeKeywords []string        `yaml:"exclude_keywords,omitempty"`
	ScoreThreshold  float64         `yaml:"score_threshold,omitempty" validate:"gte=0"`
	SignalThreshold int             `yaml:"signal_threshold,omitempty" validate:"gte=0"`
	Signals         []SignalDef     `yaml:"signals,omitempty" validate:"omitempty,dive"`
}

// StageSet is the document form of an ordered stage list.
type StageSet struct {
	Stages []StageDef `yaml:"stages" validate:"required,min=1,dive"`
}

// StageError reports an invalid stage definition.
type StageError struct {
	Stage   string
	Message string
	Cause   error
}

func (e *StageError) Error() string {
	prefix := "stage definition error"
	if e.Stage != "" {
		prefix = fmt.Sprintf("stage %q", e.Stage)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// DefaultStages returns the embedded stage chain.
func DefaultStages() ([]StageDef, error) {
	return ParseStages(defaultStagesYAML)
}

// LoadStages reads and validates a YAML stage file.
func LoadStages(path string) ([]StageDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage file %s: %w", path, err)
	}
	return ParseStages(data)
}

// ParseStages decodes and validates a YAML stage document.
func ParseStages(data []byte) ([]StageDef, error) {
	var set StageSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, &StageError{Message: "failed to parse YAML", Cause: err}
	}
	if err := ValidateStages(set.Stages); err != nil {
		return nil, err
	}
	return set.Stages, nil
}

// ValidateStages checks field constraints and cross-field rules.
func ValidateStages(stages []StageDef) error {
	validate := validator.New()
	if err := validate.Struct(StageSet{Stages: stages}); err != nil {
		return &StageError{Message: "invalid field", Cause: err}
	}

	seen := make(map[string]bool, len(stages))
	for _, s := range stages {
		if seen[s.Name] {
			return &StageError{Stage: s.Name, Message: "duplicate stage name"}
		}
		seen[s.Name] = true
		if err := s.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s StageDef) validate() error {
	switch s.Mode {
	case ModeVerdict:
		if len(s.Signals) > 0 {
			return &StageError{Stage: s.Name, Message: "verdict stages cannot define signals"}
		}
		if err := checkPromptSource(s.Prompt, s.Template); err != nil {
			return &StageError{Stage: s.Name, Message: err.Error()}
		}
	case ModeEvidence:
		if len(s.Signals) == 0 {
			return &StageError{Stage: s.Name, Message: "evidence stages need at least one signal"}
		}
		if s.SignalThreshold > len(s.Signals) {
			return &StageError{Stage: s.Name, Message: fmt.Sprintf("signal_threshold %d exceeds %d signals", s.SignalThreshold, len(s.Signals))}
		}
		names := make(map[string]bool, len(s.Signals))
		for _, sig := range s.Signals {
			if names[sig.Name] {
				return &StageError{Stage: s.Name, Message: fmt.Sprintf("duplicate signal %q", sig.Name)}
			}
			names[sig.Name] = true
			if err := checkPromptSource(sig.Prompt, sig.Template); err != nil {
				return &StageError{Stage: s.Name, Message: fmt.Sprintf("signal %q: %v", sig.Name, err)}
			}
		}
	}
	return nil
}

func checkPromptSource(key, template string) error {
	switch {
	case key != "" && template != "":
		return fmt.Errorf("prompt and template are mutually exclusive")
	case key == "" && strings.TrimSpace(template) == "":
		return fmt.Errorf("one of prompt or template is required")
	case key != "":
		if _, err := prompts.Get(prompts.StagesFile, key); err != nil {
			return err
		}
	}
	return nil
}

// options builds the reasoning call options for this stage.
func (s StageDef) options(jsonMode bool) llm.Options {
	tier := llm.ModelTier(s.Tier)
	if tier == "" {
		tier = llm.TierStandard
	}
	return llm.Options{
		Tier:            tier,
		Temperature:     s.Temperature,
		MaxOutputTokens: s.MaxOutputTokens,
		JSON:            jsonMode,
	}
}

// grammar returns the default grammar with this stage's overrides applied.
func (s StageDef) grammar() verdict.Grammar {
	return verdict.DefaultGrammar().Override(s.Grammar)
}

// excludedKeyword returns the first exclude keyword found in business.
func (s StageDef) excludedKeyword(business string) (string, bool) {
	lower := strings.ToLower(business)
	for _, kw := range s.ExcludeKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}

func renderPrompt(key, template string, data map[string]string) (string, error) {
	if template != "" {
		return prompts.Format(template, data), nil
	}
	return prompts.Render(prompts.StagesFile, key, data)
}

func (sig SignalDef) scoreKey() string {
	if sig.ScoreKey != "" {
		return sig.ScoreKey
	}
	return DefaultScoreKey
}
