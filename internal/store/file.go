package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonathan/idea-funnel/internal/schemas"
)

// snapshot is the on-disk document.
type snapshot struct {
	Ideas []Record `json:"ideas"`
}

// FileBackend keeps the whole store in one JSON document.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend reading and writing path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the snapshot location.
func (f *FileBackend) Path() string {
	return f.path
}

// Load reads and validates the snapshot. A missing file is an empty store.
func (f *FileBackend) Load(_ context.Context) ([]Record, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("failed to read %s", f.path), Cause: err}
	}

	if err := schemas.ValidateDocument(schemas.CandidateStore, data); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("%s does not match the store schema", f.path), Cause: err}
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &LoadError{Message: fmt.Sprintf("failed to parse %s", f.path), Cause: err}
	}
	return snap.Ideas, nil
}

// Save replaces the snapshot atomically.
func (f *FileBackend) Save(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return &SaveError{Message: "save cancelled", Cause: err}
	}
	if records == nil {
		records = []Record{}
	}

	data, err := json.MarshalIndent(snapshot{Ideas: records}, "", "  ")
	if err != nil {
		return &SaveError{Message: "failed to marshal snapshot", Cause: err}
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &SaveError{Message: fmt.Sprintf("failed to create %s", dir), Cause: err}
		}
	}
	if err := writeFileAtomic(f.path, data, 0o644); err != nil {
		return &SaveError{Message: fmt.Sprintf("failed to write %s", f.path), Cause: err}
	}
	return nil
}

// writeFileAtomic writes to a temp file in the target directory, fsyncs it,
// and renames it over path. Readers see either the old or the new snapshot.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
