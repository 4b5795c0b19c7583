package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryBackend records every save for inspection.
type memoryBackend struct {
	records []Record
	saves   int
	saveErr error
}

func (m *memoryBackend) Load(_ context.Context) ([]Record, error) {
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *memoryBackend) Save(_ context.Context, records []Record) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.records = records
	return nil
}

// incrementalBackend additionally supports per-record writes.
type incrementalBackend struct {
	memoryBackend
	saved []int
}

func (i *incrementalBackend) SaveRecord(_ context.Context, rec Record) error {
	i.saved = append(i.saved, rec.ID)
	return nil
}

func TestBank_InsertDeduplicates(t *testing.T) {
	bank := NewBank(&memoryBackend{}, nil)

	first, isNew := bank.Insert(Seed{Business: "Roofing contractors", Pain: "Quotes take days"}, "run-1")
	require.True(t, isNew)
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, StatusGenerated, first.Status)
	assert.Equal(t, "run-1", first.RunID)

	dup, isNew := bank.Insert(Seed{Business: "  ROOFING contractors", Pain: "quotes   take days "}, "run-2")
	assert.False(t, isNew)
	assert.Equal(t, first.ID, dup.ID)
	assert.Equal(t, "run-1", dup.RunID)

	second, isNew := bank.Insert(Seed{Business: "Roofing contractors", Pain: "Crews idle on rain days"}, "run-2")
	require.True(t, isNew)
	assert.Equal(t, 2, second.ID)
	assert.Equal(t, 2, bank.Len())
	assert.True(t, bank.Exists(first.Hash))
}

func TestBank_LoadContinuesIDs(t *testing.T) {
	backend := &memoryBackend{records: []Record{
		{ID: 4, Business: "a", Pain: "b", Hash: ContentHash("a", "b"), Status: StatusKilled, Stage: 1},
		{ID: 9, Business: "c", Pain: "d", Hash: ContentHash("c", "d"), Status: StatusFinalist, Stage: 4},
	}}
	bank := NewBank(backend, nil)
	require.NoError(t, bank.Load(context.Background()))

	rec, isNew := bank.Insert(Seed{Business: "e", Pain: "f"}, "run")
	require.True(t, isNew)
	assert.Equal(t, 10, rec.ID)

	// Killed and finalist records still block duplicates.
	_, isNew = bank.Insert(Seed{Business: "A", Pain: "B"}, "run")
	assert.False(t, isNew)
}

func TestBank_LoadRejectsDuplicateHashes(t *testing.T) {
	backend := &memoryBackend{records: []Record{
		{ID: 1, Business: "a", Pain: "b", Status: StatusGenerated},
		{ID: 2, Business: "A ", Pain: "b", Status: StatusGenerated},
	}}
	err := NewBank(backend, nil).Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateHash))
}

func TestBank_CopySemantics(t *testing.T) {
	bank := NewBank(&memoryBackend{}, nil)
	rec, _ := bank.Insert(Seed{Business: "a", Pain: "b"}, "run")

	rec.Business = "mutated"
	got, ok := bank.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, "a", got.Business)
}

func TestBank_UpsertRejectsHashCollision(t *testing.T) {
	bank := NewBank(&memoryBackend{}, nil)
	a, _ := bank.Insert(Seed{Business: "a", Pain: "b"}, "run")
	b, _ := bank.Insert(Seed{Business: "c", Pain: "d"}, "run")

	b.Business, b.Pain, b.Hash = a.Business, a.Pain, ""
	err := bank.Upsert(b)
	assert.True(t, errors.Is(err, ErrDuplicateHash))

	assert.Error(t, bank.Upsert(Record{ID: 0, Business: "x"}))
}

func TestBank_PendingAndCounts(t *testing.T) {
	bank := NewBank(&memoryBackend{}, nil)
	for _, s := range []Seed{
		{Business: "a", Pain: "1"}, {Business: "b", Pain: "2"},
		{Business: "c", Pain: "3"}, {Business: "d", Pain: "4"},
	} {
		bank.Insert(s, "run")
	}

	r2, _ := bank.Get(2)
	require.NoError(t, r2.MarkPassed(1, StageResult{Stage: 1}))
	require.NoError(t, bank.Upsert(r2))

	r3, _ := bank.Get(3)
	require.NoError(t, r3.MarkKilled(1, "no", StageResult{Stage: 1}))
	require.NoError(t, bank.Upsert(r3))

	r4, _ := bank.Get(4)
	require.NoError(t, r4.MarkInterrupted(1))
	require.NoError(t, bank.Upsert(r4))

	ids := func(recs []Record) []int {
		out := make([]int, len(recs))
		for i, r := range recs {
			out[i] = r.ID
		}
		return out
	}
	assert.Equal(t, []int{1, 4}, ids(bank.Pending(1)))
	assert.Equal(t, []int{2}, ids(bank.Pending(2)))
	assert.Empty(t, bank.Pending(3))
	assert.Equal(t, []int{3}, ids(bank.ByStatus(StatusKilled)))

	assert.Equal(t, map[string]int{
		"generated":           1,
		"passed_stage_1":      1,
		"killed_stage_1":      1,
		"interrupted_stage_1": 1,
	}, bank.CountByStatus())
}

func TestBank_PersistUsesIncrementalSave(t *testing.T) {
	backend := &incrementalBackend{}
	bank := NewBank(backend, nil)
	rec, _ := bank.Insert(Seed{Business: "a", Pain: "b"}, "run")

	require.NoError(t, rec.MarkPassed(1, StageResult{Stage: 1}))
	require.NoError(t, bank.Persist(context.Background(), rec))

	assert.Equal(t, []int{rec.ID}, backend.saved)
	assert.Equal(t, 0, backend.saves)
}

func TestBank_PersistFallsBackToSnapshot(t *testing.T) {
	backend := &memoryBackend{}
	bank := NewBank(backend, nil)
	rec, _ := bank.Insert(Seed{Business: "a", Pain: "b"}, "run")

	require.NoError(t, rec.MarkPassed(1, StageResult{Stage: 1}))
	require.NoError(t, bank.Persist(context.Background(), rec))

	assert.Equal(t, 1, backend.saves)
	require.Len(t, backend.records, 1)
	assert.Equal(t, StatusPassed, backend.records[0].Status)
}

func TestBank_SaveErrorIsReturned(t *testing.T) {
	backend := &memoryBackend{saveErr: errors.New("disk full")}
	bank := NewBank(backend, nil)
	rec, _ := bank.Insert(Seed{Business: "a", Pain: "b"}, "run")

	err := bank.Persist(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
