package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jonathan/idea-funnel/internal/llm"
	"github.com/jonathan/idea-funnel/internal/store"
)

// fakeSubmitter answers prompts with a scripted function and records calls.
type fakeSubmitter struct {
	mu      sync.Mutex
	respond func(ctx context.Context, prompt string) (string, error)
	prompts []string
	opts    []llm.Options
}

func (f *fakeSubmitter) Submit(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()
	return f.respond(ctx, prompt)
}

func (f *fakeSubmitter) Calls() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.prompts))
}

func (f *fakeSubmitter) promptsContaining(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.prompts {
		if strings.Contains(p, substr) {
			n++
		}
	}
	return n
}

// byPrompt returns a responder that picks the first response whose key is
// contained in the prompt, and a KILL otherwise.
func byPrompt(responses map[string]string) func(context.Context, string) (string, error) {
	return func(_ context.Context, prompt string) (string, error) {
		best := ""
		for key := range responses {
			if strings.Contains(prompt, key) && len(key) > len(best) {
				best = key
			}
		}
		if best == "" {
			return "VERDICT: KILL - unscripted prompt", nil
		}
		return responses[best], nil
	}
}

func verdictStage(name string) StageDef {
	return StageDef{
		Name:     name,
		Mode:     ModeVerdict,
		Template: "[" + name + "] {{.Business}} / {{.Pain}}",
	}
}

func signal(name string, max float64) SignalDef {
	return SignalDef{
		Name:     name,
		Template: "[" + name + "] {{.Business}}",
		Max:      max,
	}
}

// newTestBank creates a file-backed bank seeded with one record per business.
func newTestBank(t *testing.T, businesses ...string) (*store.Bank, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ideas.json")
	bank := store.NewBank(store.NewFileBackend(path), nil)
	for _, b := range businesses {
		_, ok := bank.Insert(store.Seed{Business: b, Pain: "pain of " + b}, "seed")
		require.True(t, ok)
	}
	require.NoError(t, bank.Save(context.Background()))
	return bank, path
}

// reload reads the snapshot at path into a fresh bank.
func reload(t *testing.T, path string) *store.Bank {
	t.Helper()
	bank := store.NewBank(store.NewFileBackend(path), nil)
	require.NoError(t, bank.Load(context.Background()))
	return bank
}

func newTestEngine(t *testing.T, stages []StageDef, sub Submitter, bank *store.Bank) *Engine {
	t.Helper()
	engine, err := NewEngine(stages, sub, bank, EngineOptions{RunID: "run-test"})
	require.NoError(t, err)
	return engine
}

// failingBackend loads nothing and refuses every save.
type failingBackend struct{}

func (failingBackend) Load(context.Context) ([]store.Record, error) { return nil, nil }

func (failingBackend) Save(context.Context, []store.Record) error {
	return errors.New("disk full")
}
