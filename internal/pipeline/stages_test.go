package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/idea-funnel/internal/llm"
)

func TestDefaultStages(t *testing.T) {
	stages, err := DefaultStages()
	require.NoError(t, err)
	require.Len(t, stages, 6)

	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"white_space", "economic_proof", "build_feasibility", "cost_calculator", "go_to_market", "founder_fit"}, names)

	proof := stages[1]
	assert.Equal(t, ModeEvidence, proof.Mode)
	assert.Equal(t, 25.0, proof.ScoreThreshold)
	assert.Equal(t, 6, proof.SignalThreshold)
	require.Len(t, proof.Signals, 8)

	var maxTotal float64
	for _, sig := range proof.Signals {
		maxTotal += sig.Max
	}
	assert.Equal(t, 39.0, maxTotal)

	market := proof.Signals[6]
	assert.Equal(t, "market_size", market.Name)
	require.NotNil(t, market.HardFail)
	assert.Equal(t, "tam_millions", market.HardFail.Key)
	assert.Equal(t, 10.0, market.HardFail.Below)

	cost := stages[3]
	assert.Equal(t, ModeEvidence, cost.Mode)
	assert.Equal(t, 1, cost.SignalThreshold)
	require.Len(t, cost.Signals, 1)
	assert.Equal(t, "sources_cited", cost.Signals[0].TriggerKey)
	require.NotNil(t, cost.Signals[0].HardFail)
	assert.Equal(t, "total_annual_cost", cost.Signals[0].HardFail.Key)
	assert.Equal(t, 10000.0, cost.Signals[0].HardFail.Below)

	assert.Equal(t, "founder-fit", stages[5].Prompt)
	assert.Equal(t, ModeVerdict, stages[5].Mode)

	kw, ok := stages[0].excludedKeyword("Independent Dental Labs")
	assert.True(t, ok)
	assert.Equal(t, "dental", kw)
}

func TestParseStages_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "invalid yaml",
			yaml:    "stages: [",
			wantMsg: "failed to parse YAML",
		},
		{
			name:    "no stages",
			yaml:    "stages: []",
			wantMsg: "invalid field",
		},
		{
			name: "unknown mode",
			yaml: `
stages:
  - name: a
    mode: vibes
    template: "x"`,
			wantMsg: "invalid field",
		},
		{
			name: "duplicate names",
			yaml: `
stages:
  - name: a
    mode: verdict
    template: "x"
  - name: a
    mode: verdict
    template: "y"`,
			wantMsg: "duplicate stage name",
		},
		{
			name: "verdict with signals",
			yaml: `
stages:
  - name: a
    mode: verdict
    template: "x"
    signals:
      - name: s
        template: "y"
        max: 5`,
			wantMsg: "verdict stages cannot define signals",
		},
		{
			name: "evidence without signals",
			yaml: `
stages:
  - name: a
    mode: evidence`,
			wantMsg: "at least one signal",
		},
		{
			name: "signal threshold above signal count",
			yaml: `
stages:
  - name: a
    mode: evidence
    signal_threshold: 3
    signals:
      - name: s
        template: "y"
        max: 5`,
			wantMsg: "signal_threshold 3 exceeds 1 signals",
		},
		{
			name: "missing prompt",
			yaml: `
stages:
  - name: a
    mode: verdict`,
			wantMsg: "one of prompt or template is required",
		},
		{
			name: "prompt and template",
			yaml: `
stages:
  - name: a
    mode: verdict
    prompt: white-space
    template: "x"`,
			wantMsg: "mutually exclusive",
		},
		{
			name: "unknown prompt key",
			yaml: `
stages:
  - name: a
    mode: verdict
    prompt: does-not-exist`,
			wantMsg: "not found",
		},
		{
			name: "signal max must be positive",
			yaml: `
stages:
  - name: a
    mode: evidence
    signals:
      - name: s
        template: "y"
        max: 0`,
			wantMsg: "invalid field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStages([]byte(tt.yaml))
			require.Error(t, err)
			var stageErr *StageError
			assert.ErrorAs(t, err, &stageErr)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadStages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stages.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
stages:
  - name: quick_screen
    mode: verdict
    tier: lite
    template: "Is {{.Business}} worth it? VERDICT: PASS or KILL"
    grammar:
      markers: ["ANSWER"]
`), 0o644))

	stages, err := LoadStages(path)
	require.NoError(t, err)
	require.Len(t, stages, 1)

	opts := stages[0].options(false)
	assert.Equal(t, llm.TierLite, opts.Tier)
	assert.Equal(t, []string{"ANSWER"}, stages[0].grammar().Markers)
	assert.Equal(t, []string{"PASS", "PROCEED"}, stages[0].grammar().PassTokens)

	_, err = LoadStages(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStageOptions_Defaults(t *testing.T) {
	s := StageDef{Name: "a", Mode: ModeEvidence, Temperature: llm.Temperature(0.2), MaxOutputTokens: 1500}
	opts := s.options(true)
	assert.Equal(t, llm.TierStandard, opts.Tier)
	assert.True(t, opts.JSON)
	require.NotNil(t, opts.Temperature)
	assert.InDelta(t, 0.2, *opts.Temperature, 1e-6)
	assert.Equal(t, int32(1500), opts.MaxOutputTokens)

	assert.Equal(t, DefaultScoreKey, SignalDef{}.scoreKey())
	assert.Equal(t, "tam", SignalDef{ScoreKey: "tam"}.scoreKey())
}
