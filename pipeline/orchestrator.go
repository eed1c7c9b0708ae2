package pipeline

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"

	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/ledger"
)

// Hooks supplies the three stage implementations of a phase. Each hook
// receives the previous stage's stream and returns its own. A non-nil error
// in a stream is a crash and aborts the run.
type Hooks interface {
	Extract(ctx context.Context, sc *StageContext) iter.Seq2[*core.ProcessingItem, error]
	Transform(ctx context.Context, sc *StageContext, in iter.Seq2[*core.ProcessingItem, error]) iter.Seq2[*core.ProcessingItem, error]
	Load(ctx context.Context, sc *StageContext, in iter.Seq2[*core.ProcessingItem, error]) iter.Seq2[*core.ProcessingItem, error]
}

// ItemOutcome is the final state of one item after a run.
type ItemOutcome struct {
	ItemID       core.FileID     `json:"item_id"`
	SourcePath   string          `json:"source_path"`
	Status       core.ItemStatus `json:"status"`
	Stage        core.StageType  `json:"stage,omitempty"`
	Step         string          `json:"step,omitempty"`
	Error        string          `json:"error,omitempty"`
	Reason       string          `json:"skipped_reason,omitempty"`
	OutputPath   string          `json:"output_path,omitempty"`
	ParentItemID core.FileID     `json:"parent_item_id,omitempty"`
}

// RunResult summarizes one orchestrator run.
type RunResult struct {
	Phase          core.PhaseType
	Processed      int
	Failed         int
	Skipped        int
	Unfinished     int
	ExtractResumed bool
	Outcomes       []ItemOutcome
}

// Orchestrator runs the fixed Extract, Transform, Load template of a phase.
type Orchestrator struct {
	sessionID         string
	inputPath         string
	debug             bool
	limit             int
	resume            bool
	itemsPerDump      int
	progress          io.Writer
	progressInterval  int
	clock             Clock
	onExtractComplete func(phase *Phase) error
	logger            *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSessionID stamps ledger records with the session id.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) {
		o.sessionID = id
	}
}

// WithInputPath records the extract input path on the Extract stage.
func WithInputPath(path string) Option {
	return func(o *Orchestrator) {
		o.inputPath = path
	}
}

// WithDebug enables per-item debug logging in stage contexts.
func WithDebug(debug bool) Option {
	return func(o *Orchestrator) {
		o.debug = debug
	}
}

// WithLimit caps the number of extracted items. Zero means no limit.
func WithLimit(n int) Option {
	return func(o *Orchestrator) {
		o.limit = max(n, 0)
	}
}

// WithResume controls whether completed-items caches are built from the
// ledger and extract dumps are reused. Default is true.
func WithResume(resume bool) Option {
	return func(o *Orchestrator) {
		o.resume = resume
	}
}

// WithItemsPerDump sets the extract dump rotation size.
func WithItemsPerDump(n int) Option {
	return func(o *Orchestrator) {
		o.itemsPerDump = n
	}
}

// WithProgress reports drain progress to w every interval items.
func WithProgress(w io.Writer, interval int) Option {
	return func(o *Orchestrator) {
		o.progress = w
		o.progressInterval = max(interval, 1)
	}
}

// WithClock sets the clock used for step timing.
func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithExtractComplete registers a callback invoked once the extract stream
// is exhausted, or right away when extract output is restored from disk.
// An error from the callback crashes the run.
func WithExtractComplete(fn func(phase *Phase) error) Option {
	return func(o *Orchestrator) {
		o.onExtractComplete = fn
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
	}
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resume:       true,
		itemsPerDump: DefaultItemsPerDump,
		clock:        systemClock,
		logger:       slog.Default().With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes phase with hooks and drains the final stream.
//
// Extract is replaced by a restore from disk when committed dumps exist.
// Counts come from terminal item statuses: completed items are processed,
// failed items failed, filtered items skipped. On a crash the error is
// returned as a *CrashError and the phase is left for the caller to record.
func (o *Orchestrator) Run(ctx context.Context, phase *Phase, hooks Hooks) (*RunResult, error) {
	if hooks == nil {
		return nil, ErrHooksRequired
	}
	phase.SetClock(o.clock)
	phase.Begin()
	if err := phase.Save(); err != nil {
		return nil, err
	}

	logger := o.logger.With("phase", phase.PhaseType)
	writer := ledger.NewWriter(phase.LedgerPath(), o.sessionID, phase.PhaseType)
	result := &RunResult{Phase: phase.PhaseType}

	newContext := func(stage *Stage) *StageContext {
		sc := &StageContext{
			Phase:     phase.PhaseType,
			Stage:     stage.Type,
			SessionID: o.sessionID,
			Debug:     o.debug,
			Limit:     o.limit,
			Ledger:    writer,
			Logger:    logger.With("stage", stage.Type),
			stage:     stage,
		}
		if o.resume {
			sc.Completed = ledger.LoadCompletedItems(phase.LedgerPath(), stage.Type, logger)
		}
		phase.AddStage(stage)
		return sc
	}

	extract := NewStage(core.StageExtract, o.clock)
	extract.InputPath = o.inputPath
	extract.OutputPath = phase.ExtractOutputDir()
	extractCtx := newContext(extract)

	var stream iter.Seq2[*core.ProcessingItem, error]
	var progress *ProgressTracker
	if o.resume && ShouldLoadExtractFromOutput(extract.OutputPath) {
		logger.Info("restoring extract output from disk", "dir", extract.OutputPath)
		extract.MarkSkipped("restored from extract output")
		result.ExtractResumed = true
		if err := o.extractDone(phase); err != nil {
			return result, &CrashError{Phase: phase.PhaseType, Stage: core.StageExtract, Err: err}
		}
		stream = LoadExtractOutput(ctx, extract.OutputPath, logger)
		progress = o.newProgress(0)
	} else {
		dump, err := NewDumpWriter(extract.OutputPath, o.itemsPerDump)
		if err != nil {
			return result, &CrashError{Phase: phase.PhaseType, Stage: core.StageExtract, Err: err}
		}
		defer dump.Abort()
		extractCtx.Dump = dump
		progress = o.newProgress(0)

		stream = o.limited(hooks.Extract(ctx, extractCtx))
		stream = onExhausted(stream, func() error {
			extract.Finish()
			if err := dump.Close(); err != nil {
				return &CrashError{Stage: core.StageExtract, Err: err}
			}
			progress.SetTotal(extract.Items)
			if err := o.extractDone(phase); err != nil {
				return &CrashError{Stage: core.StageExtract, Err: err}
			}
			return nil
		})
	}

	transform := NewStage(core.StageTransform, o.clock)
	stream = hooks.Transform(ctx, newContext(transform), stream)

	load := NewStage(core.StageLoad, o.clock)
	stream = hooks.Load(ctx, newContext(load), stream)

	progress.Start()
	for item, err := range stream {
		if err != nil {
			var crash *CrashError
			if !errors.As(err, &crash) {
				crash = &CrashError{Err: err}
			}
			crash.Phase = phase.PhaseType
			return result, crash
		}
		result.record(item)
		progress.Increment(1)
	}
	progress.Finish()

	if result.Unfinished > 0 {
		logger.Warn("items left the pipeline without a terminal status", "count", result.Unfinished)
	}

	transform.Finish()
	load.Finish()
	phase.Finish(result.Processed, result.Failed, result.Skipped)
	if err := phase.Save(); err != nil {
		return result, err
	}

	logger.Info("phase finished",
		"status", phase.Status,
		"processed", result.Processed,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"extract_resumed", result.ExtractResumed)
	return result, nil
}

func (o *Orchestrator) extractDone(phase *Phase) error {
	if err := phase.Save(); err != nil {
		return err
	}
	if o.onExtractComplete == nil {
		return nil
	}
	return o.onExtractComplete(phase)
}

func (o *Orchestrator) newProgress(total int) *ProgressTracker {
	if o.progress == nil {
		return nil
	}
	return NewProgressTracker(o.progress, total, o.progressInterval)
}

// limited stops the stream after o.limit items when a limit is set.
func (o *Orchestrator) limited(in iter.Seq2[*core.ProcessingItem, error]) iter.Seq2[*core.ProcessingItem, error] {
	if o.limit <= 0 {
		return in
	}
	return func(yield func(*core.ProcessingItem, error) bool) {
		n := 0
		for item, err := range in {
			if !yield(item, err) || err != nil {
				return
			}
			if n++; n >= o.limit {
				return
			}
		}
	}
}

// onExhausted calls done after in ends without error, before the consumer
// sees the end of the stream. An error from done is yielded.
func onExhausted(in iter.Seq2[*core.ProcessingItem, error], done func() error) iter.Seq2[*core.ProcessingItem, error] {
	return func(yield func(*core.ProcessingItem, error) bool) {
		for item, err := range in {
			if !yield(item, err) || err != nil {
				return
			}
		}
		if err := done(); err != nil {
			yield(nil, err)
		}
	}
}

func (r *RunResult) record(item *core.ProcessingItem) {
	switch item.Status {
	case core.ItemCompleted:
		r.Processed++
	case core.ItemFailed:
		r.Failed++
	case core.ItemFiltered:
		r.Skipped++
	default:
		r.Unfinished++
	}
	outcome := ItemOutcome{
		ItemID:     item.ItemID,
		SourcePath: item.SourcePath,
		Status:     item.Status,
		Stage:      item.CurrentStage,
		Step:       item.CurrentStep,
		Error:      item.Error,
		Reason:     item.Metadata.SkippedReason,
		OutputPath: item.OutputPath,
	}
	if item.Chunk != nil {
		outcome.ParentItemID = item.Chunk.ParentItemID
	}
	r.Outcomes = append(r.Outcomes, outcome)
}
