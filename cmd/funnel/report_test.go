package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/idea-funnel/internal/store"
	"github.com/jonathan/idea-funnel/internal/verdict"
)

func seedStore(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	bank := store.NewBank(store.NewFileBackend(path), nil)

	winner, _ := bank.Insert(store.Seed{Business: "HVAC companies", Pain: "Phone tag"}, "run-1")
	require.NoError(t, winner.MarkPassed(1, store.StageResult{Stage: 1, StageName: "screen", Verdict: verdict.Pass}))
	require.NoError(t, winner.MarkFinalist())
	require.NoError(t, bank.Upsert(winner))

	loser, _ := bank.Insert(store.Seed{Business: "Food trucks", Pain: "Permits"}, "run-1")
	require.NoError(t, loser.MarkKilled(1, "seasonal", store.StageResult{Stage: 1, StageName: "screen", Verdict: verdict.Kill, Reason: "seasonal"}))
	require.NoError(t, bank.Upsert(loser))

	require.NoError(t, bank.Save(ctx))
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		resetFlags(t, reportCommand)
		resetFlags(t, statusCommand)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestReportCommand_Finalists(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "ideas.json")
	seedStore(t, storePath)
	outDir := filepath.Join(dir, "reports")

	out, err := executeRoot(t, "report", "--store", storePath, "--report-dir", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "FINALIST_1_HVAC_companies.txt")
	assert.NotContains(t, out, "Food")
	assert.FileExists(t, filepath.Join(outDir, "FINALIST_1_HVAC_companies.txt"))
}

func TestReportCommand_SingleRecord(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "ideas.json")
	seedStore(t, storePath)

	out, err := executeRoot(t, "report", "--store", storePath, "--report-dir", dir, "--id", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "FINALIST_2_Food_trucks.txt")

	_, err = executeRoot(t, "report", "--store", storePath, "--report-dir", dir, "--id", "9")
	assert.Error(t, err)
}

func TestReportCommand_NoFinalists(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	dir := t.TempDir()

	out, err := executeRoot(t, "report", "--store", filepath.Join(dir, "empty.json"), "--report-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No finalists in the store.")
}

func TestStatusCommand(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "ideas.json")
	seedStore(t, storePath)

	out, err := executeRoot(t, "status", "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, "CANDIDATE STORE")
	assert.Contains(t, out, "finalist")
	assert.Contains(t, out, "killed_stage_1")
}
