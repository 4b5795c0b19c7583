// Package pipeline runs candidates through an ordered list of evaluation
// stages and orchestrates complete runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/idea-funnel/internal/evidence"
	"github.com/jonathan/idea-funnel/internal/llm"
	"github.com/jonathan/idea-funnel/internal/profile"
	"github.com/jonathan/idea-funnel/internal/report"
	"github.com/jonathan/idea-funnel/internal/store"
	"github.com/jonathan/idea-funnel/internal/verdict"
)

var (
	// ErrInterrupted is returned when the context is cancelled mid-run.
	ErrInterrupted = errors.New("run interrupted")
	// ErrPersist is returned when the candidate store cannot be written.
	ErrPersist = errors.New("failed to persist candidate store")
)

// Submitter sends one prompt to the reasoning service. *llm.Reasoner
// implements it with throttling and retries.
type Submitter interface {
	Submit(ctx context.Context, prompt string, opts llm.Options) (string, error)
}

// ProgressEvent represents a progress update during a run
type ProgressEvent struct {
	Stage       string `json:"stage"`
	Category    string `json:"category"`
	Message     string `json:"message"`
	RunID       string `json:"run_id,omitempty"`
	CandidateID int    `json:"candidate_id,omitempty"`
	Content     any    `json:"content,omitempty"`
}

// ProgressCallback is called when run progress occurs
type ProgressCallback func(event ProgressEvent)

// Progress categories.
const (
	CategoryStageStart    = "stage_start"
	CategoryCandidate     = "candidate"
	CategoryStageComplete = "stage_complete"
	CategoryFinalist      = "finalist"
	CategoryInterrupted   = "interrupted"
	CategoryGenerate      = "generate"
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	RunID string
	// SignalConcurrency bounds parallel signal calls within one candidate.
	// Candidates themselves are always processed one at a time.
	SignalConcurrency int
	// Profile fills the founder placeholders of stage templates.
	Profile    profile.Profile
	Logger     *zap.Logger
	OnProgress ProgressCallback
}

// Engine evaluates records stage by stage and persists after every record.
type Engine struct {
	stages            []StageDef
	submitter         Submitter
	bank              *store.Bank
	runID             string
	signalConcurrency int
	profileData       map[string]string
	logger            *zap.Logger
	onProgress        ProgressCallback
	now               func() time.Time
}

// NewEngine creates an Engine over a validated stage list.
func NewEngine(stages []StageDef, submitter Submitter, bank *store.Bank, opts EngineOptions) (*Engine, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}
	if submitter == nil || bank == nil {
		return nil, fmt.Errorf("submitter and bank are required")
	}
	if err := ValidateStages(stages); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := opts.SignalConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Engine{
		stages:            stages,
		submitter:         submitter,
		bank:              bank,
		runID:             opts.RunID,
		signalConcurrency: concurrency,
		profileData:       opts.Profile.Placeholders(),
		logger:            logger.With(zap.String("run_id", opts.RunID)),
		onProgress:        opts.OnProgress,
		now:               func() time.Time { return time.Now().UTC() },
	}, nil
}

// Stages returns the configured stage count.
func (e *Engine) Stages() int {
	return len(e.stages)
}

// StageName returns the name of the 1-based stage index.
func (e *Engine) StageName(stage int) string {
	if stage < 1 || stage > len(e.stages) {
		return ""
	}
	return e.stages[stage-1].Name
}

func (e *Engine) emit(event ProgressEvent) {
	if e.onProgress != nil {
		event.RunID = e.runID
		e.onProgress(event)
	}
}

// outcome is what evaluating one record at one stage produced.
type outcome struct {
	result      store.StageResult
	pass        bool
	killReason  string
	interrupted bool
}

// RunStage evaluates every record in working at the 1-based stage index, in
// order, persisting each record as soon as its status changes. Records that
// are not due for this stage are skipped. On cancellation the in-flight
// record is marked interrupted and ErrInterrupted is returned together with
// the results gathered so far. A store failure returns ErrPersist.
func (e *Engine) RunStage(ctx context.Context, stage int, working []store.Record) (survivors, killed []store.Record, err error) {
	if stage < 1 || stage > len(e.stages) {
		return nil, nil, fmt.Errorf("stage %d out of range 1..%d", stage, len(e.stages))
	}
	def := e.stages[stage-1]
	persistCtx := context.WithoutCancel(ctx)
	log := e.logger.With(zap.Int("stage", stage), zap.String("stage_name", def.Name))

	for _, rec := range working {
		if next, ok := rec.NextStage(); !ok || next != stage {
			log.Warn("skipping record not due for this stage",
				zap.Int("id", rec.ID), zap.String("status", rec.Label()))
			continue
		}
		if ctx.Err() != nil {
			return survivors, killed, fmt.Errorf("%w at stage %d", ErrInterrupted, stage)
		}

		out := e.evaluate(ctx, stage, def, rec)

		if out.interrupted {
			if err := rec.MarkInterrupted(stage); err != nil {
				return survivors, killed, err
			}
			if err := e.bank.Persist(persistCtx, rec); err != nil {
				return survivors, killed, fmt.Errorf("%w: record %d: %w", ErrPersist, rec.ID, err)
			}
			log.Info("run interrupted", zap.Int("id", rec.ID))
			e.emit(ProgressEvent{Stage: def.Name, Category: CategoryInterrupted, CandidateID: rec.ID,
				Message: fmt.Sprintf("interrupted while evaluating #%d", rec.ID)})
			return survivors, killed, fmt.Errorf("%w at stage %d", ErrInterrupted, stage)
		}

		if out.pass {
			err = rec.MarkPassed(stage, out.result)
		} else {
			err = rec.MarkKilled(stage, out.killReason, out.result)
		}
		if err != nil {
			return survivors, killed, err
		}
		if err := e.bank.Persist(persistCtx, rec); err != nil {
			return survivors, killed, fmt.Errorf("%w: record %d: %w", ErrPersist, rec.ID, err)
		}

		fields := []zap.Field{zap.Int("id", rec.ID), zap.String("business", rec.Business)}
		if out.pass {
			survivors = append(survivors, rec)
			log.Info("candidate passed", fields...)
		} else {
			killed = append(killed, rec)
			log.Info("candidate killed", append(fields, zap.String("reason", out.killReason))...)
		}
		e.emit(ProgressEvent{Stage: def.Name, Category: CategoryCandidate, CandidateID: rec.ID,
			Message: fmt.Sprintf("#%d %s: %s", rec.ID, out.result.Verdict, firstNonEmpty(out.killReason, out.result.Reason)),
			Content: out.result})
	}
	return survivors, killed, nil
}

func (e *Engine) evaluate(ctx context.Context, stage int, def StageDef, rec store.Record) outcome {
	base := store.StageResult{
		Stage:     stage,
		StageName: def.Name,
		RunID:     e.runID,
	}

	if kw, ok := def.excludedKeyword(rec.Business); ok {
		base.Verdict = verdict.Kill
		base.Reason = "excluded industry: " + kw
		base.EvaluatedAt = e.now()
		return outcome{result: base, killReason: base.Reason}
	}

	data := e.promptData(rec, def)
	var out outcome
	if def.Mode == ModeEvidence {
		out = e.evaluateEvidence(ctx, def, data, base)
	} else {
		out = e.evaluateVerdict(ctx, def, data, base)
	}
	out.result.EvaluatedAt = e.now()
	return out
}

func (e *Engine) evaluateVerdict(ctx context.Context, def StageDef, data map[string]string, base store.StageResult) outcome {
	prompt, err := renderPrompt(def.Prompt, def.Template, data)
	if err != nil {
		return e.evaluationError(ctx, base, err)
	}
	raw, err := e.submitter.Submit(ctx, prompt, def.options(false))
	if err != nil {
		return e.evaluationError(ctx, base, err)
	}

	v := def.grammar().Extract(raw)
	base.RawResponse = raw
	base.Verdict = v.Decision
	base.Reason = v.Reason
	if v.Decision == verdict.Pass {
		return outcome{result: base, pass: true}
	}

	reason := v.Reason
	if reason == "" {
		reason = "verdict KILL"
	}
	return outcome{result: base, killReason: reason}
}

type signalRun struct {
	raw      string
	score    float64
	hardFail bool
	trigger  *bool
	details  string
}

func (e *Engine) evaluateEvidence(ctx context.Context, def StageDef, data map[string]string, base store.StageResult) outcome {
	runs := make([]signalRun, len(def.Signals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.signalConcurrency)
	for i, sig := range def.Signals {
		i, sig := i, sig
		g.Go(func() error {
			prompt, err := renderPrompt(sig.Prompt, sig.Template, data)
			if err != nil {
				return fmt.Errorf("signal %s: %w", sig.Name, err)
			}
			raw, err := e.submitter.Submit(gctx, prompt, def.options(true))
			if err != nil {
				return &signalError{signal: sig.Name, err: err}
			}
			runs[i] = readSignal(sig, raw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return e.evaluationError(ctx, base, err)
	}

	signals := make(map[string]evidence.Signal, len(def.Signals))
	for i, sig := range def.Signals {
		signals[sig.Name] = evidence.Signal{
			Name:     sig.Name,
			SubScore: runs[i].score,
			Max:      sig.Max,
			Trigger:  runs[i].trigger,
			HardFail: runs[i].hardFail,
			Details:  runs[i].details,
		}
	}
	res := evidence.Score(signals)
	decision := evidence.Policy{ScoreThreshold: def.ScoreThreshold, SignalThreshold: def.SignalThreshold}.Decide(res)

	base.Evidence = make(map[string]store.EvidenceEntry, len(def.Signals))
	for i, sig := range def.Signals {
		scored := res.Signals[sig.Name]
		base.Evidence[sig.Name] = store.EvidenceEntry{
			SubScore:    scored.SubScore,
			Max:         scored.Max,
			Triggered:   scored.Triggered(),
			HardFail:    scored.HardFail,
			Details:     scored.Details,
			RawResponse: runs[i].raw,
		}
	}
	base.TotalScore = res.Total
	base.TriggeredSignals = res.TriggeredCount
	base.Reason = decision.Reason

	if decision.Pass {
		base.Verdict = verdict.Pass
		return outcome{result: base, pass: true}
	}
	base.Verdict = verdict.Kill
	return outcome{result: base, killReason: decision.Reason}
}

// readSignal pulls the sub-score and hard-fail field out of a signal response.
func readSignal(sig SignalDef, raw string) signalRun {
	run := signalRun{raw: raw}
	var notes []string

	if score, ok := verdict.ExtractNumber(raw, sig.scoreKey()); ok {
		run.score = score
		notes = append(notes, fmt.Sprintf("%s=%g", sig.scoreKey(), score))
	} else {
		notes = append(notes, fmt.Sprintf("%s not found", sig.scoreKey()))
	}

	if hf := sig.HardFail; hf != nil {
		value, ok := verdict.ExtractNumber(raw, hf.Key)
		switch {
		case !ok:
			run.hardFail = true
			notes = append(notes, fmt.Sprintf("%s missing", hf.Key))
		case value < hf.Below:
			run.hardFail = true
			notes = append(notes, fmt.Sprintf("%s=%g below %g", hf.Key, value, hf.Below))
		default:
			notes = append(notes, fmt.Sprintf("%s=%g", hf.Key, value))
		}
	}
	if sig.TriggerKey != "" {
		value, ok := verdict.ExtractNumber(raw, sig.TriggerKey)
		triggered := ok && value > 0
		run.trigger = &triggered
		if !ok {
			notes = append(notes, fmt.Sprintf("%s missing", sig.TriggerKey))
		} else {
			notes = append(notes, fmt.Sprintf("%s=%g", sig.TriggerKey, value))
		}
	}
	run.details = strings.Join(notes, "; ")
	return run
}

type signalError struct {
	signal string
	err    error
}

func (e *signalError) Error() string {
	return fmt.Sprintf("signal %s: %s", e.signal, llm.Detail(e.err))
}

func (e *signalError) Unwrap() error {
	return e.err
}

// evaluationError turns a failed call into a killed outcome, unless the
// failure was the run being cancelled.
func (e *Engine) evaluationError(ctx context.Context, base store.StageResult, err error) outcome {
	if ctx.Err() != nil {
		return outcome{result: base, interrupted: true}
	}

	detail := llm.Detail(err)
	var se *signalError
	if errors.As(err, &se) {
		detail = se.Error()
	}

	base.Verdict = verdict.Unclear
	base.Error = detail
	base.Reason = "evaluation error: " + detail
	return outcome{result: base, killReason: base.Reason}
}

// promptData is the placeholder set offered to stage templates: the
// candidate, the stage, prior findings and the founder profile fields.
func (e *Engine) promptData(rec store.Record, def StageDef) map[string]string {
	data := make(map[string]string, len(e.profileData)+4)
	for k, v := range e.profileData {
		data[k] = v
	}
	data["Business"] = rec.Business
	data["Pain"] = rec.Pain
	data["StageName"] = def.Name
	data["PriorFindings"] = priorFindings(rec.History)
	return data
}

func priorFindings(history []store.StageResult) string {
	if len(history) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, h := range history {
		fmt.Fprintf(&sb, "- %s: %s", h.StageName, h.Verdict)
		if h.TotalScore > 0 {
			fmt.Fprintf(&sb, " (score %g, %d signals)", h.TotalScore, h.TriggeredSignals)
		}
		if h.Reason != "" {
			fmt.Fprintf(&sb, " - %s", h.Reason)
		}
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Range selects a contiguous, 1-based slice of the stage chain. Zero values
// mean the first and last stage respectively.
type Range struct {
	From    int
	Through int
}

func (r Range) resolve(n int) (from, through int, err error) {
	from, through = r.From, r.Through
	if from == 0 {
		from = 1
	}
	if through == 0 {
		through = n
	}
	if from < 1 || through > n || from > through {
		return 0, 0, fmt.Errorf("invalid stage range %d..%d for %d stages", r.From, r.Through, n)
	}
	return from, through, nil
}

// Run drives every pending record through the selected stages. Each stage
// works on the records due for it, which are the previous stage's survivors
// plus any record resuming there. A run that covers the last stage promotes
// every record that passed it to finalist. The summary is returned even when
// err is non-nil.
func (e *Engine) Run(ctx context.Context, rng Range) (*RunSummary, error) {
	summary := &RunSummary{RunID: e.runID, StartedAt: e.now()}
	defer func() { summary.FinishedAt = e.now() }()

	from, through, err := rng.resolve(len(e.stages))
	if err != nil {
		return summary, err
	}

	for stage := from; stage <= through; stage++ {
		def := e.stages[stage-1]
		working := e.bank.Pending(stage)

		if len(working) == 0 {
			if !e.pendingAfter(stage, through) {
				summary.StoppedEarlyAt = stage
				e.logger.Info("no candidates left, stopping early", zap.Int("stage", stage))
				break
			}
			summary.Stages = append(summary.Stages, StageSummary{Index: stage, Name: def.Name})
			continue
		}

		e.logger.Info("stage started", zap.Int("stage", stage), zap.String("stage_name", def.Name),
			zap.Int("candidates", len(working)))
		e.emit(ProgressEvent{Stage: def.Name, Category: CategoryStageStart,
			Message: fmt.Sprintf("Stage %d/%d: %s (%d candidates)", stage, len(e.stages), def.Name, len(working))})

		survivors, killed, err := e.RunStage(ctx, stage, working)
		stageSummary := StageSummary{
			Index:   stage,
			Name:    def.Name,
			Entered: len(working),
			Passed:  len(survivors),
			Killed:  len(killed),
			Errors:  countEvaluationErrors(killed),
		}
		summary.Stages = append(summary.Stages, stageSummary)
		e.emit(ProgressEvent{Stage: def.Name, Category: CategoryStageComplete,
			Message: fmt.Sprintf("Stage %d complete: %d passed, %d killed", stage, stageSummary.Passed, stageSummary.Killed),
			Content: stageSummary})

		if err != nil {
			if errors.Is(err, ErrInterrupted) {
				summary.Interrupted = true
			}
			return summary, err
		}
	}

	if through == len(e.stages) {
		finalists, err := e.promoteFinalists(ctx)
		summary.Finalists = finalists
		if err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// pendingAfter reports whether any stage after stage, up to through, has
// records waiting on it.
func (e *Engine) pendingAfter(stage, through int) bool {
	for next := stage + 1; next <= through; next++ {
		if len(e.bank.Pending(next)) > 0 {
			return true
		}
	}
	return false
}

func (e *Engine) promoteFinalists(ctx context.Context) ([]store.Record, error) {
	persistCtx := context.WithoutCancel(ctx)
	var finalists []store.Record
	for _, rec := range e.bank.Pending(len(e.stages) + 1) {
		rec.Playbook = report.Playbook(rec)
		if err := rec.MarkFinalist(); err != nil {
			return finalists, err
		}
		if err := e.bank.Persist(persistCtx, rec); err != nil {
			return finalists, fmt.Errorf("%w: record %d: %w", ErrPersist, rec.ID, err)
		}
		finalists = append(finalists, rec)
		e.logger.Info("finalist", zap.Int("id", rec.ID), zap.String("business", rec.Business))
		e.emit(ProgressEvent{Category: CategoryFinalist, CandidateID: rec.ID,
			Message: fmt.Sprintf("#%d %s is a finalist", rec.ID, rec.Business)})
	}
	return finalists, nil
}

func countEvaluationErrors(records []store.Record) int {
	n := 0
	for _, rec := range records {
		if last, ok := rec.LastResult(); ok && last.Error != "" {
			n++
		}
	}
	return n
}
