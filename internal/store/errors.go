package store

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is matched by every TransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDuplicateHash is returned when a write would give two records the same hash.
	ErrDuplicateHash = errors.New("duplicate content hash")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	ID    int
	From  string
	Stage int
	To    string
}

func (e *TransitionError) Error() string {
	if e.To != "" {
		return fmt.Sprintf("record %d: cannot move from %s to %s", e.ID, e.From, e.To)
	}
	return fmt.Sprintf("record %d: cannot evaluate stage %d from %s", e.ID, e.Stage, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// LoadError represents an error reading or decoding a snapshot
type LoadError struct {
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("load error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("load error: %s", e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// SaveError represents an error writing a snapshot or record
type SaveError struct {
	Message string
	Cause   error
}

func (e *SaveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("save error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("save error: %s", e.Message)
}

func (e *SaveError) Unwrap() error {
	return e.Cause
}
