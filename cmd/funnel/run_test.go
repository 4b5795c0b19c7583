package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/idea-funnel/internal/config"
	"github.com/jonathan/idea-funnel/internal/llm"
	"github.com/jonathan/idea-funnel/internal/observability"
	"github.com/jonathan/idea-funnel/internal/pipeline"
)

// resetFlags restores every flag of cmd to its default and clears Changed.
func resetFlags(t *testing.T, cmd interface{ Flags() *pflag.FlagSet }) {
	t.Helper()
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		require.NoError(t, f.Value.Set(f.DefValue))
		f.Changed = false
	})
}

func setFlags(t *testing.T, values map[string]string) {
	t.Helper()
	resetFlags(t, runCommand)
	t.Cleanup(func() { resetFlags(t, runCommand) })
	for name, value := range values {
		require.NoError(t, runCommand.Flags().Set(name, value))
	}
}

func clearEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type passAll struct{ calls int64 }

func (p *passAll) Submit(context.Context, string, llm.Options) (string, error) {
	p.calls++
	return "Strong niche.\nVERDICT: PASS - clear demand", nil
}

func (p *passAll) Calls() int64 { return p.calls }

func TestResolveRunConfig_GenerateFromFileNeedsNoKey(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	seeds := writeFile(t, dir, "seeds.json", `[{"business": "Law firms", "pain": "Billing"}]`)
	setFlags(t, map[string]string{
		"mode":  "generate",
		"input": seeds,
		"store": filepath.Join(dir, "ideas.json"),
	})

	cfg, err := resolveRunConfig(runCommand)
	require.NoError(t, err)
	assert.Equal(t, "generate", cfg.Mode)
	assert.Equal(t, seeds, cfg.Input)
	assert.Equal(t, config.DefaultCount, cfg.Count)
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, needsReasoner(cfg) && cfg.APIKey == "")
}

func TestResolveRunConfig_MissingAPIKey(t *testing.T) {
	clearEnv(t)
	setFlags(t, map[string]string{"mode": "resume"})

	_, err := resolveRunConfig(runCommand)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY environment variable or --api-key flag is required")
}

func TestResolveRunConfig_FlagsOverrideConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfgPath := writeFile(t, t.TempDir(), "config.json", `{
		"provider": "openai",
		"count": 50,
		"store": "from-config.json",
		"signal_concurrency": 2
	}`)
	setFlags(t, map[string]string{
		"config": cfgPath,
		"count":  "5",
	})

	cfg, err := resolveRunConfig(runCommand)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Count)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "from-config.json", cfg.Store)
	assert.Equal(t, 2, cfg.SignalConcurrency)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "full", cfg.Mode)
}

func TestResolveRunConfig_StageFlagImpliesStageMode(t *testing.T) {
	clearEnv(t)
	setFlags(t, map[string]string{"stage": "2", "api-key": "k"})

	cfg, err := resolveRunConfig(runCommand)
	require.NoError(t, err)
	assert.Equal(t, string(pipeline.RunSingleStage), cfg.Mode)
	assert.Equal(t, 2, cfg.Stage)
}

func TestResolveRunConfig_DatabaseURLFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/funnel")
	setFlags(t, map[string]string{"api-key": "k"})

	cfg, err := resolveRunConfig(runCommand)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/funnel", cfg.DatabaseURL)
	assert.Empty(t, cfg.Store)

	// An explicit store wins over the environment.
	setFlags(t, map[string]string{"api-key": "k", "store": "local.json"})
	cfg, err = resolveRunConfig(runCommand)
	require.NoError(t, err)
	assert.Equal(t, "local.json", cfg.Store)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestResolveRunConfig_InvalidMode(t *testing.T) {
	clearEnv(t)
	setFlags(t, map[string]string{"mode": "sideways", "api-key": "k"})

	_, err := resolveRunConfig(runCommand)
	assert.Error(t, err)
}

func TestExecuteRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	seeds := writeFile(t, dir, "seeds.yaml", `
- business: HVAC companies
  pain: Phone tag with technicians
- business: Food trucks
  pain: Permit renewals
`)
	stages := writeFile(t, dir, "stages.yaml", `
stages:
  - name: screen
    mode: verdict
    template: "Screen {{.Business}}: {{.Pain}}"
  - name: build
    mode: verdict
    template: "Build {{.Business}} given {{.PriorFindings}}"
`)
	storePath := filepath.Join(dir, "ideas.json")
	reportDir := filepath.Join(dir, "reports")

	cfg := config.Config{
		Mode:      "full",
		Count:     10,
		Input:     seeds,
		Stages:    stages,
		Store:     storePath,
		ReportDir: reportDir,
	}
	var out bytes.Buffer
	sub := &passAll{}

	summary, err := executeRun(context.Background(), cfg, zap.NewNop(), sub, observability.NewPrinter(&out))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Generated)
	assert.Len(t, summary.Finalists, 2)
	assert.Equal(t, int64(4), summary.Calls)
	require.Len(t, summary.Reports, 2)
	assert.FileExists(t, filepath.Join(reportDir, "FINALIST_1_HVAC_companies.txt"))
	assert.Contains(t, out.String(), "Stage 1/2: screen")

	// A second run with the same seeds finds only duplicates and makes no calls.
	summary, err = executeRun(context.Background(), cfg, zap.NewNop(), sub, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Generated)
	assert.Equal(t, 2, summary.Duplicates)
	assert.Equal(t, int64(4), sub.calls)

	// status reads the same store.
	var statusOut bytes.Buffer
	rootCmd.SetOut(&statusOut)
	rootCmd.SetArgs([]string{"status", "--store", storePath})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		resetFlags(t, statusCommand)
	})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, statusOut.String(), "finalist")
	assert.True(t, strings.Contains(statusOut.String(), "total"))
}

func TestExecuteRun_BadStageFile(t *testing.T) {
	dir := t.TempDir()
	stages := writeFile(t, dir, "stages.yaml", "stages: []")

	_, err := executeRun(context.Background(), config.Config{
		Mode:   "resume",
		Stages: stages,
		Store:  filepath.Join(dir, "ideas.json"),
	}, zap.NewNop(), &passAll{}, nil)
	var stageErr *pipeline.StageError
	assert.ErrorAs(t, err, &stageErr)
}

// promptRecorder passes every candidate and keeps the prompts it saw.
type promptRecorder struct{ prompts []string }

func (r *promptRecorder) Submit(_ context.Context, prompt string, _ llm.Options) (string, error) {
	r.prompts = append(r.prompts, prompt)
	return "VERDICT: PASS - fits the founder", nil
}

func TestExecuteRun_FounderProfileAndPlaybook(t *testing.T) {
	dir := t.TempDir()
	seeds := writeFile(t, dir, "seeds.json", `[{"business": "HVAC companies", "pain": "Phone tag with technicians"}]`)
	founder := writeFile(t, dir, "founder_profile.json", `{"background": "ran dispatch for an HVAC contractor", "skills": ["Go", "SQL"]}`)
	stages := writeFile(t, dir, "stages.yaml", `
stages:
  - name: founder_fit
    mode: verdict
    template: "Fit {{.Business}} for someone who {{.Profile_background}}.\n{{.FounderProfile}}"
`)
	reportDir := filepath.Join(dir, "reports")
	sub := &promptRecorder{}

	summary, err := executeRun(context.Background(), config.Config{
		Mode:      "full",
		Count:     5,
		Input:     seeds,
		Stages:    stages,
		Profile:   founder,
		Store:     filepath.Join(dir, "ideas.json"),
		ReportDir: reportDir,
	}, zap.NewNop(), sub, nil)
	require.NoError(t, err)
	require.Len(t, summary.Finalists, 1)

	require.Len(t, sub.prompts, 1)
	assert.Contains(t, sub.prompts[0], "Fit HVAC companies for someone who ran dispatch for an HVAC contractor.")
	assert.Contains(t, sub.prompts[0], "skills: Go, SQL")

	report, err := os.ReadFile(filepath.Join(reportDir, "FINALIST_1_HVAC_companies.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "VALIDATION PLAYBOOK")
	assert.Contains(t, string(report), "How do you currently handle Phone tag with technicians?")
}

func TestExecuteRun_BadProfileFile(t *testing.T) {
	dir := t.TempDir()
	founder := writeFile(t, dir, "founder_profile.json", `not json`)

	_, err := executeRun(context.Background(), config.Config{
		Mode:    "resume",
		Profile: founder,
		Store:   filepath.Join(dir, "ideas.json"),
	}, zap.NewNop(), &passAll{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse profile")
}

func TestResolveRunConfig_ProfileFlag(t *testing.T) {
	clearEnv(t)
	founder := writeFile(t, t.TempDir(), "founder.yaml", "background: ops\n")
	setFlags(t, map[string]string{"profile": founder, "api-key": "k"})

	cfg, err := resolveRunConfig(runCommand)
	require.NoError(t, err)
	assert.Equal(t, founder, cfg.Profile)
}

