// Package store holds every candidate ever generated, keyed by content hash,
// and persists them through a pluggable backend.
package store

import (
	"fmt"
	"time"

	"github.com/jonathan/idea-funnel/internal/verdict"
)

// StatusKind is the coarse lifecycle state of a record. Together with
// Record.Stage it identifies the exact position in the pipeline.
type StatusKind string

const (
	StatusGenerated   StatusKind = "generated"
	StatusPassed      StatusKind = "passed"
	StatusKilled      StatusKind = "killed"
	StatusInterrupted StatusKind = "interrupted"
	StatusFinalist    StatusKind = "finalist"
)

// Record is one candidate and everything that happened to it.
type Record struct {
	ID         int           `json:"id"`
	Business   string        `json:"business"`
	Pain       string        `json:"pain"`
	Hash       string        `json:"hash"`
	Status     StatusKind    `json:"status"`
	Stage      int           `json:"stage"`
	History    []StageResult `json:"history"`
	KillReason string        `json:"kill_reason,omitempty"`
	RunID      string        `json:"run_id,omitempty"`
	Source     string        `json:"source,omitempty"`
	// Playbook is the validation plan attached when the record becomes a finalist.
	Playbook   string        `json:"playbook,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// StageResult is one stage's outcome for one record.
type StageResult struct {
	Stage            int                      `json:"stage"`
	StageName        string                   `json:"stage_name,omitempty"`
	RunID            string                   `json:"run_id,omitempty"`
	RawResponse      string                   `json:"raw_response,omitempty"`
	Verdict          verdict.Decision         `json:"verdict"`
	Reason           string                   `json:"reason,omitempty"`
	Evidence         map[string]EvidenceEntry `json:"evidence,omitempty"`
	TotalScore       float64                  `json:"total_score"`
	TriggeredSignals int                      `json:"triggered_signals"`
	Error            string                   `json:"error,omitempty"`
	EvaluatedAt      time.Time                `json:"evaluated_at"`
}

// EvidenceEntry is one signal's contribution to an evidence stage.
type EvidenceEntry struct {
	SubScore    float64 `json:"sub_score"`
	Max         float64 `json:"max"`
	Triggered   bool    `json:"triggered"`
	HardFail    bool    `json:"hard_fail,omitempty"`
	Details     string  `json:"details,omitempty"`
	RawResponse string  `json:"raw_response,omitempty"`
}

// Terminal reports whether the record can no longer move.
func (r *Record) Terminal() bool {
	return r.Status == StatusKilled || r.Status == StatusFinalist
}

// NextStage returns the stage index this record should be evaluated at next.
// Terminal records return false.
func (r *Record) NextStage() (int, bool) {
	switch r.Status {
	case StatusGenerated:
		return 1, true
	case StatusPassed:
		return r.Stage + 1, true
	case StatusInterrupted:
		return r.Stage, true
	default:
		return 0, false
	}
}

// Label renders the status as "passed_stage_2", "generated", "finalist" and so on.
func (r *Record) Label() string {
	switch r.Status {
	case StatusPassed, StatusKilled, StatusInterrupted:
		return fmt.Sprintf("%s_stage_%d", r.Status, r.Stage)
	default:
		return string(r.Status)
	}
}

// LastResult returns the most recent stage result, if any.
func (r *Record) LastResult() (StageResult, bool) {
	if len(r.History) == 0 {
		return StageResult{}, false
	}
	return r.History[len(r.History)-1], true
}

// TotalScore sums the total score of every evidence stage in the history.
func (r *Record) TotalScore() float64 {
	var total float64
	for _, h := range r.History {
		total += h.TotalScore
	}
	return total
}

func (r *Record) checkEvaluable(stage int) error {
	if next, ok := r.NextStage(); !ok || stage != next {
		return &TransitionError{ID: r.ID, From: r.Label(), Stage: stage}
	}
	return nil
}

// MarkPassed records a PASS at stage.
func (r *Record) MarkPassed(stage int, result StageResult) error {
	if err := r.checkEvaluable(stage); err != nil {
		return err
	}
	r.History = append(r.History, result)
	r.Status = StatusPassed
	r.Stage = stage
	r.KillReason = ""
	r.touch()
	return nil
}

// MarkKilled records a KILL at stage. Killed records are terminal.
func (r *Record) MarkKilled(stage int, reason string, result StageResult) error {
	if err := r.checkEvaluable(stage); err != nil {
		return err
	}
	r.History = append(r.History, result)
	r.Status = StatusKilled
	r.Stage = stage
	r.KillReason = reason
	r.touch()
	return nil
}

// MarkInterrupted parks the record at stage so a later run resumes it there.
func (r *Record) MarkInterrupted(stage int) error {
	if err := r.checkEvaluable(stage); err != nil {
		return err
	}
	r.Status = StatusInterrupted
	r.Stage = stage
	r.touch()
	return nil
}

// MarkFinalist promotes a record that passed the last stage.
func (r *Record) MarkFinalist() error {
	if r.Status != StatusPassed {
		return &TransitionError{ID: r.ID, From: r.Label(), To: string(StatusFinalist)}
	}
	r.Status = StatusFinalist
	r.touch()
	return nil
}

func (r *Record) touch() {
	r.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy so callers never alias the bank's state.
func (r Record) Clone() Record {
	out := r
	if r.History != nil {
		out.History = make([]StageResult, len(r.History))
		for i, h := range r.History {
			out.History[i] = h.clone()
		}
	}
	return out
}

func (s StageResult) clone() StageResult {
	out := s
	if s.Evidence != nil {
		out.Evidence = make(map[string]EvidenceEntry, len(s.Evidence))
		for k, v := range s.Evidence {
			out.Evidence[k] = v
		}
	}
	return out
}
