package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Backend persists full snapshots of the bank.
type Backend interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

// RecordSaver is implemented by backends that can persist one record
// without rewriting the whole snapshot.
type RecordSaver interface {
	SaveRecord(ctx context.Context, record Record) error
}

// Seed is a freshly generated candidate before it is given an identity.
type Seed struct {
	Business string `json:"business" yaml:"business"`
	Pain     string `json:"pain" yaml:"pain"`
	Source   string `json:"source,omitempty" yaml:"source,omitempty"`
}

// Bank is the authoritative in-memory copy of every record. All reads and
// writes go through copies; callers never hold references into the bank.
type Bank struct {
	backend Backend
	logger  *zap.Logger

	mu      sync.RWMutex
	records map[int]Record
	byHash  map[string]int
	nextID  int

	// saveMu keeps at most one save in flight.
	saveMu sync.Mutex
}

// NewBank creates an empty bank over backend. A nil logger disables logging.
func NewBank(backend Backend, logger *zap.Logger) *Bank {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bank{
		backend: backend,
		logger:  logger,
		records: make(map[int]Record),
		byHash:  make(map[string]int),
		nextID:  1,
	}
}

// Load replaces the in-memory state with the backend snapshot.
func (b *Bank) Load(ctx context.Context) error {
	loaded, err := b.backend.Load(ctx)
	if err != nil {
		return err
	}

	records := make(map[int]Record, len(loaded))
	byHash := make(map[string]int, len(loaded))
	nextID := 1
	for _, rec := range loaded {
		if rec.Hash == "" {
			rec.Hash = ContentHash(rec.Business, rec.Pain)
		}
		if _, dup := records[rec.ID]; dup {
			return &LoadError{Message: fmt.Sprintf("duplicate record id %d", rec.ID)}
		}
		if other, dup := byHash[rec.Hash]; dup {
			return &LoadError{
				Message: fmt.Sprintf("records %d and %d share hash %s", other, rec.ID, rec.Hash),
				Cause:   ErrDuplicateHash,
			}
		}
		records[rec.ID] = rec.Clone()
		byHash[rec.Hash] = rec.ID
		if rec.ID >= nextID {
			nextID = rec.ID + 1
		}
	}

	b.mu.Lock()
	b.records, b.byHash, b.nextID = records, byHash, nextID
	b.mu.Unlock()

	b.logger.Debug("candidate store loaded", zap.Int("records", len(records)))
	return nil
}

// Save writes the full snapshot through the backend.
func (b *Bank) Save(ctx context.Context) error {
	b.saveMu.Lock()
	defer b.saveMu.Unlock()

	if err := b.backend.Save(ctx, b.Records()); err != nil {
		return fmt.Errorf("failed to save candidate store: %w", err)
	}
	return nil
}

// Persist updates rec in memory and makes it durable immediately, using an
// incremental write when the backend supports one.
func (b *Bank) Persist(ctx context.Context, rec Record) error {
	if err := b.Upsert(rec); err != nil {
		return err
	}
	saver, ok := b.backend.(RecordSaver)
	if !ok {
		return b.Save(ctx)
	}

	b.saveMu.Lock()
	defer b.saveMu.Unlock()
	if err := saver.SaveRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist record %d: %w", rec.ID, err)
	}
	return nil
}

// Exists reports whether a record with hash has ever been stored.
func (b *Bank) Exists(hash string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.byHash[hash]
	return ok
}

// Insert adds seed as a new Generated record unless its content hash is
// already known. It returns the stored record and whether it was new.
// Insert does not persist; callers save once per batch.
func (b *Bank) Insert(seed Seed, runID string) (Record, bool) {
	hash := ContentHash(seed.Business, seed.Pain)

	b.mu.Lock()
	defer b.mu.Unlock()

	if id, ok := b.byHash[hash]; ok {
		return b.records[id].Clone(), false
	}

	now := time.Now().UTC()
	rec := Record{
		ID:        b.nextID,
		Business:  seed.Business,
		Pain:      seed.Pain,
		Hash:      hash,
		Status:    StatusGenerated,
		RunID:     runID,
		Source:    seed.Source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.records[rec.ID] = rec
	b.byHash[hash] = rec.ID
	b.nextID++
	return rec.Clone(), true
}

// Upsert stores a copy of rec, replacing any record with the same ID.
func (b *Bank) Upsert(rec Record) error {
	if rec.ID <= 0 {
		return fmt.Errorf("record id must be positive, got %d", rec.ID)
	}
	if rec.Hash == "" {
		rec.Hash = ContentHash(rec.Business, rec.Pain)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if owner, ok := b.byHash[rec.Hash]; ok && owner != rec.ID {
		return fmt.Errorf("record %d: %w (owned by record %d)", rec.ID, ErrDuplicateHash, owner)
	}
	if prev, ok := b.records[rec.ID]; ok && prev.Hash != rec.Hash {
		delete(b.byHash, prev.Hash)
	}
	b.records[rec.ID] = rec.Clone()
	b.byHash[rec.Hash] = rec.ID
	if rec.ID >= b.nextID {
		b.nextID = rec.ID + 1
	}
	return nil
}

// Get returns a copy of the record with id.
func (b *Bank) Get(id int) (Record, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.Clone(), true
}

// Len returns the number of stored records.
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// Records returns copies of all records in insertion (ID) order.
func (b *Bank) Records() []Record {
	return b.filter(func(Record) bool { return true })
}

// Pending returns the records whose next evaluation is stage, in ID order.
func (b *Bank) Pending(stage int) []Record {
	return b.filter(func(r Record) bool {
		next, ok := r.NextStage()
		return ok && next == stage
	})
}

// ByStatus returns the records with the given status, in ID order.
func (b *Bank) ByStatus(status StatusKind) []Record {
	return b.filter(func(r Record) bool { return r.Status == status })
}

// CountByStatus tallies records by Record.Label.
func (b *Bank) CountByStatus() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	counts := make(map[string]int)
	for _, r := range b.records {
		counts[r.Label()]++
	}
	return counts
}

func (b *Bank) filter(keep func(Record) bool) []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Record, 0, len(b.records))
	for _, r := range b.records {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
