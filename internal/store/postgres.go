package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createCandidatesTable = `
CREATE TABLE IF NOT EXISTS candidates (
	id         INTEGER PRIMARY KEY,
	hash       TEXT NOT NULL UNIQUE,
	status     TEXT NOT NULL,
	stage      INTEGER NOT NULL DEFAULT 0,
	record     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const upsertCandidate = `
INSERT INTO candidates (id, hash, status, stage, record, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (id) DO UPDATE SET
	hash = EXCLUDED.hash,
	status = EXCLUDED.status,
	stage = EXCLUDED.stage,
	record = EXCLUDED.record,
	updated_at = NOW()`

// PostgresBackend stores one row per record.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// ConnectPostgres establishes a connection pool to the database
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresBackend{pool: pool}, nil
}

// Close closes the connection pool
func (p *PostgresBackend) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// EnsureSchema creates the candidates table if it does not exist.
func (p *PostgresBackend) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createCandidatesTable); err != nil {
		return fmt.Errorf("failed to create candidates table: %w", err)
	}
	return nil
}

// Load returns every stored record in ID order.
func (p *PostgresBackend) Load(ctx context.Context) ([]Record, error) {
	rows, err := p.pool.Query(ctx, `SELECT record FROM candidates ORDER BY id`)
	if err != nil {
		return nil, &LoadError{Message: "failed to query candidates", Cause: err}
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, &LoadError{Message: "failed to scan candidate", Cause: err}
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, &LoadError{Message: "failed to decode candidate", Cause: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &LoadError{Message: "error iterating candidates", Cause: err}
	}
	return records, nil
}

// Save upserts every record in a single transaction.
func (p *PostgresBackend) Save(ctx context.Context, records []Record) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return &SaveError{Message: "failed to begin transaction", Cause: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, rec := range records {
		args, err := upsertArgs(rec)
		if err != nil {
			return err
		}
		batch.Queue(upsertCandidate, args...)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return &SaveError{Message: "failed to upsert candidates", Cause: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &SaveError{Message: "failed to commit candidates", Cause: err}
	}
	return nil
}

// SaveRecord upserts a single record.
func (p *PostgresBackend) SaveRecord(ctx context.Context, rec Record) error {
	args, err := upsertArgs(rec)
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, upsertCandidate, args...); err != nil {
		return &SaveError{Message: fmt.Sprintf("failed to upsert candidate %d", rec.ID), Cause: err}
	}
	return nil
}

func upsertArgs(rec Record) ([]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, &SaveError{Message: fmt.Sprintf("failed to marshal candidate %d", rec.ID), Cause: err}
	}
	return []any{rec.ID, rec.Hash, string(rec.Status), rec.Stage, raw}, nil
}
