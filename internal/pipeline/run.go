package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/idea-funnel/internal/generate"
	"github.com/jonathan/idea-funnel/internal/profile"
	"github.com/jonathan/idea-funnel/internal/report"
	"github.com/jonathan/idea-funnel/internal/store"
)

// RunMode selects which phases a run performs.
type RunMode string

const (
	// RunFull generates new candidates and runs every pending record.
	RunFull RunMode = "full"
	// RunGenerate only generates and stores new candidates.
	RunGenerate RunMode = "generate"
	// RunResume runs pending records without generating.
	RunResume RunMode = "resume"
	// RunSingleStage runs a single stage over the records due for it.
	RunSingleStage RunMode = "stage"
)

// ParseRunMode validates a mode string. Empty means full.
func ParseRunMode(s string) (RunMode, error) {
	switch RunMode(s) {
	case "":
		return RunFull, nil
	case RunFull, RunGenerate, RunResume, RunSingleStage:
		return RunMode(s), nil
	default:
		return "", fmt.Errorf("unknown run mode %q (want full, generate, resume or stage)", s)
	}
}

// RunOptions holds configuration for one run
type RunOptions struct {
	Mode RunMode
	// Count is how many new candidates to request in full and generate modes.
	Count int
	// Stage is the 1-based stage for RunSingleStage.
	Stage int
	// Through stops the run after this stage. Zero runs to the end.
	Through int

	Stages    []StageDef
	Bank      *store.Bank
	Submitter Submitter
	// Source is required for full and generate modes.
	Source generate.Source
	// ReportDir receives finalist reports. Empty disables report writing.
	ReportDir string

	// RunID tags records and history. A random UUID is used when empty.
	RunID             string
	SignalConcurrency int
	// Profile fills the founder placeholders of stage templates.
	Profile    profile.Profile
	Logger     *zap.Logger
	OnProgress ProgressCallback
}

// callCounter is implemented by submitters that count service calls.
type callCounter interface {
	Calls() int64
}

// Run loads the store, optionally generates new candidates, drives pending
// records through the selected stages and writes finalist reports. The
// summary is returned even when err is non-nil.
func Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	mode, err := ParseRunMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	if opts.Bank == nil {
		return nil, fmt.Errorf("a candidate store is required")
	}
	if mode == RunSingleStage && opts.Stage < 1 {
		return nil, fmt.Errorf("stage mode requires a stage number of at least 1, got %d", opts.Stage)
	}
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("run_id", opts.RunID), zap.String("mode", string(mode)))

	summary := &RunSummary{RunID: opts.RunID}

	if err := opts.Bank.Load(ctx); err != nil {
		return summary, fmt.Errorf("failed to load candidate store: %w", err)
	}
	logger.Info("candidate store loaded", zap.Int("records", opts.Bank.Len()))

	if mode == RunFull || mode == RunGenerate {
		generated, duplicates, err := generateCandidates(ctx, opts, logger)
		summary.Generated, summary.Duplicates = generated, duplicates
		if err != nil {
			return summary, err
		}
	}
	if mode == RunGenerate {
		return summary, nil
	}

	rng := Range{Through: opts.Through}
	if mode == RunSingleStage {
		rng = Range{From: opts.Stage, Through: opts.Stage}
	}

	engine, err := NewEngine(opts.Stages, opts.Submitter, opts.Bank, EngineOptions{
		RunID:             opts.RunID,
		SignalConcurrency: opts.SignalConcurrency,
		Profile:           opts.Profile,
		Logger:            logger,
		OnProgress:        opts.OnProgress,
	})
	if err != nil {
		return summary, err
	}

	result, runErr := engine.Run(ctx, rng)
	if result != nil {
		result.RunID = opts.RunID
		result.Generated, result.Duplicates = summary.Generated, summary.Duplicates
		summary = result
	}
	if counter, ok := opts.Submitter.(callCounter); ok {
		summary.Calls = counter.Calls()
	}

	if opts.ReportDir != "" && len(summary.Finalists) > 0 {
		paths, err := report.WriteAll(opts.ReportDir, summary.Finalists)
		summary.Reports = paths
		if err != nil {
			return summary, errors.Join(runErr, err)
		}
		logger.Info("finalist reports written", zap.Int("count", len(paths)), zap.String("dir", opts.ReportDir))
	}

	if runErr != nil {
		return summary, runErr
	}
	logger.Info("run complete",
		zap.Int("finalists", len(summary.Finalists)),
		zap.Int("killed", summary.Killed()),
		zap.Int64("calls", summary.Calls),
		zap.Duration("duration", summary.Duration()))
	return summary, nil
}

// generateCandidates pulls seeds from the source, inserts the new ones and
// saves once. Seeds the source produced before failing are still stored.
func generateCandidates(ctx context.Context, opts RunOptions, logger *zap.Logger) (generated, duplicates int, err error) {
	if opts.Source == nil {
		return 0, 0, fmt.Errorf("a candidate source is required for generation")
	}
	if opts.Count <= 0 {
		return 0, 0, fmt.Errorf("count must be positive, got %d", opts.Count)
	}

	seeds, genErr := opts.Source.Generate(ctx, opts.Count)
	for _, seed := range seeds {
		if seed.Source == "" {
			seed.Source = opts.Source.Name()
		}
		if _, inserted := opts.Bank.Insert(seed, opts.RunID); inserted {
			generated++
		} else {
			duplicates++
		}
	}
	if opts.OnProgress != nil {
		opts.OnProgress(ProgressEvent{Category: CategoryGenerate, RunID: opts.RunID,
			Message: fmt.Sprintf("Generated %d new candidates (%d duplicates skipped) from %s", generated, duplicates, opts.Source.Name())})
	}
	logger.Info("candidates generated",
		zap.String("source", opts.Source.Name()),
		zap.Int("new", generated),
		zap.Int("duplicates", duplicates))

	if generated > 0 {
		if err := opts.Bank.Save(context.WithoutCancel(ctx)); err != nil {
			return generated, duplicates, fmt.Errorf("%w: %w", ErrPersist, err)
		}
	}
	if genErr != nil {
		return generated, duplicates, fmt.Errorf("candidate generation failed: %w", genErr)
	}
	return generated, duplicates, nil
}
