package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/idea-funnel/internal/store"
)

// FileSource reads seeds from a JSON or YAML list of {business, pain}.
type FileSource struct {
	path string
}

// NewFileSource returns a source over path. The format follows the extension;
// .yaml and .yml are YAML, everything else JSON.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name identifies the source in record provenance.
func (f *FileSource) Name() string {
	return "file:" + filepath.Base(f.path)
}

// Generate returns the first count seeds of the file. A count of zero or
// less returns all of them.
func (f *FileSource) Generate(_ context.Context, count int) ([]store.Seed, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", f.path, err)
	}

	seeds, err := parseSeeds(data, f.path)
	if err != nil {
		return nil, err
	}
	seeds = clean(seeds, f.Name())
	if count > 0 && len(seeds) > count {
		seeds = seeds[:count]
	}
	return seeds, nil
}

func parseSeeds(data []byte, path string) ([]store.Seed, error) {
	var seeds []store.Seed
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &seeds); err != nil {
			return nil, fmt.Errorf("failed to parse YAML seed file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &seeds); err != nil {
			return nil, fmt.Errorf("failed to parse JSON seed file %s: %w", path, err)
		}
	}
	return seeds, nil
}
