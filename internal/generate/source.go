// Package generate produces fresh candidate seeds for a run.
package generate

import (
	"context"
	"strings"

	"github.com/jonathan/idea-funnel/internal/store"
)

// Source yields up to count seeds. Sources may return fewer when they run
// dry; duplicates are filtered later by the store.
type Source interface {
	Generate(ctx context.Context, count int) ([]store.Seed, error)
	Name() string
}

// clean trims seeds and drops ones missing either field.
func clean(seeds []store.Seed, source string) []store.Seed {
	out := make([]store.Seed, 0, len(seeds))
	for _, s := range seeds {
		s.Business = strings.TrimSpace(s.Business)
		s.Pain = strings.TrimSpace(s.Pain)
		if s.Business == "" || s.Pain == "" {
			continue
		}
		if s.Source == "" {
			s.Source = source
		}
		out = append(out, s)
	}
	return out
}
