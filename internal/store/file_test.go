package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/idea-funnel/internal/verdict"
)

func TestFileBackend_MissingFileIsEmpty(t *testing.T) {
	backend := NewFileBackend(filepath.Join(t.TempDir(), "ideas.json"))
	records, err := backend.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileBackend_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ideas.json")
	backend := NewFileBackend(path)
	ctx := context.Background()

	bank := NewBank(backend, nil)
	rec, _ := bank.Insert(Seed{Business: "Landscaping firms", Pain: "Invoices chased by hand", Source: "seeds.yaml"}, "run-1")
	require.NoError(t, rec.MarkPassed(1, StageResult{Stage: 1, StageName: "white_space", Verdict: verdict.Pass, RawResponse: "VERDICT: PASS"}))
	require.NoError(t, rec.MarkKilled(2, "evidence too weak (12/25)", StageResult{
		Stage:            2,
		StageName:        "economic_proof",
		Verdict:          verdict.Kill,
		Reason:           "evidence too weak (12/25)",
		TotalScore:       12,
		TriggeredSignals: 3,
		Evidence: map[string]EvidenceEntry{
			"reddit": {SubScore: 4, Max: 5, Triggered: true, RawResponse: "SCORE: 4"},
		},
	}))
	require.NoError(t, bank.Persist(ctx, rec))

	reloaded := NewBank(backend, nil)
	require.NoError(t, reloaded.Load(ctx))
	got, ok := reloaded.Get(rec.ID)
	require.True(t, ok)

	assert.Equal(t, rec.Hash, got.Hash)
	assert.Equal(t, StatusKilled, got.Status)
	assert.Equal(t, 2, got.Stage)
	assert.Equal(t, "seeds.yaml", got.Source)
	require.Len(t, got.History, 2)
	assert.Equal(t, "VERDICT: PASS", got.History[0].RawResponse)
	assert.Equal(t, "SCORE: 4", got.History[1].Evidence["reddit"].RawResponse)
	assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))
}

func TestFileBackend_WritesIdeasDocumentWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ideas.json")
	backend := NewFileBackend(path)

	require.NoError(t, backend.Save(context.Background(), nil))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ideas": []}`, string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileBackend_FailedSaveKeepsPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ideas.json")
	backend := NewFileBackend(path)
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, []Record{{ID: 1, Business: "a", Pain: "b", Hash: "h1", Status: StatusGenerated}}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, backend.Save(cancelled, []Record{}))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFileBackend_RejectsInvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ideas.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ideas": [{"id": 1, "status": "pending"}]}`), 0o644))

	_, err := NewFileBackend(path).Load(context.Background())
	require.Error(t, err)

	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}
