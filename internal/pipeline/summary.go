package pipeline

import (
	"time"

	"github.com/jonathan/idea-funnel/internal/store"
)

// StageSummary counts what happened at one stage during a run.
type StageSummary struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Entered int    `json:"entered"`
	Passed  int    `json:"passed"`
	Killed  int    `json:"killed"`
	// Errors is the subset of Killed caused by evaluation errors.
	Errors int `json:"errors"`
}

// RunSummary reports the outcome of one run. It is never persisted.
type RunSummary struct {
	RunID          string         `json:"run_id"`
	Generated      int            `json:"generated"`
	Duplicates     int            `json:"duplicates"`
	Stages         []StageSummary `json:"stages"`
	Finalists      []store.Record `json:"finalists"`
	Reports        []string       `json:"reports,omitempty"`
	Interrupted    bool           `json:"interrupted"`
	StoppedEarlyAt int            `json:"stopped_early_at,omitempty"`
	Calls          int64          `json:"calls"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
}

// Duration returns the wall-clock time the run took.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Killed returns the total number of candidates killed during the run.
func (s *RunSummary) Killed() int {
	n := 0
	for _, st := range s.Stages {
		n += st.Killed
	}
	return n
}
