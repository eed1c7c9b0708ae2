package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/ledger"
)

// StageStatus is the aggregate state of a Stage.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StagePartial   StageStatus = "partial"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StepFunc performs one step for one item. Returning an error fails the item
// at this step; returning Skip(reason) records the item as skipped.
type StepFunc func(ctx context.Context, sc *StageContext, item *core.ProcessingItem) error

// StepDef names a StepFunc.
type StepDef struct {
	Name string
	Run  StepFunc
}

// Stage runs ordered steps over a stream of items.
type Stage struct {
	Type         core.StageType `json:"stage_type"`
	InputPath    string         `json:"input_path,omitempty"`
	OutputPath   string         `json:"output_path,omitempty"`
	Steps        []*Step        `json:"steps"`
	Status       StageStatus    `json:"status"`
	Items        int            `json:"items"`
	ItemsFailed  int            `json:"items_failed"`
	ItemsSkipped int            `json:"items_skipped"`
	SkipReason   string         `json:"skip_reason,omitempty"`

	trackers []*StepTracker
	clock    Clock
}

// NewStage creates a pending stage. A nil clock uses the system clock.
func NewStage(stageType core.StageType, clock Clock) *Stage {
	if clock == nil {
		clock = systemClock
	}
	return &Stage{
		Type:   stageType,
		Steps:  []*Step{},
		Status: StagePending,
		clock:  clock,
	}
}

// tracker returns the tracker for name, creating it on first use.
func (s *Stage) tracker(name string) *StepTracker {
	for _, t := range s.trackers {
		if t.Name() == name {
			return t
		}
	}
	t := NewStepTracker(name, s.clock)
	s.trackers = append(s.trackers, t)
	s.Steps = append(s.Steps, t.Step())
	return t
}

// Process lazily runs steps over each item of in.
//
// Each item that enters the stage produces exactly one ledger record: success
// after its last step, failed at the first failing step, or skipped when a
// step returns Skip. Item failures never stop the stream. Items that arrive
// already failed or filtered pass through untouched. An error from in, or a
// ledger write failure, is yielded and ends the stream. So is cancellation of
// ctx: an interrupted item is neither failed nor recorded.
//
// The stage is finalized once in is exhausted. Items leaving the Load stage
// successfully are marked completed.
func (s *Stage) Process(ctx context.Context, sc *StageContext, in iter.Seq2[*core.ProcessingItem, error], steps ...StepDef) iter.Seq2[*core.ProcessingItem, error] {
	for _, def := range steps {
		s.tracker(def.Name)
	}
	return func(yield func(*core.ProcessingItem, error) bool) {
		s.Status = StageRunning
		for item, err := range in {
			if err == nil {
				err = ctx.Err()
			}
			if err != nil {
				yield(nil, s.crash(err))
				return
			}
			if item == nil {
				yield(nil, s.crash(fmt.Errorf("%w: nil item in %s stream", ErrMissingStageData, s.Type)))
				return
			}
			if item.Status == core.ItemFailed || item.Status == core.ItemFiltered {
				if !yield(item, nil) {
					return
				}
				continue
			}

			if err := s.runItem(ctx, sc, item, steps); err != nil {
				yield(nil, s.crash(err))
				return
			}
			if !yield(item, nil) {
				return
			}
		}
		s.Finish()
	}
}

// crash attributes err to this stage unless an earlier stage already claimed it.
func (s *Stage) crash(err error) error {
	var crash *CrashError
	if errors.As(err, &crash) {
		return err
	}
	return &CrashError{Stage: s.Type, Err: err}
}

// runItem runs every step for item and records the outcome. The returned
// error is fatal for the stream.
func (s *Stage) runItem(ctx context.Context, sc *StageContext, item *core.ProcessingItem, steps []StepDef) error {
	s.Items++
	if err := item.Transition(core.ItemProcessing); err != nil {
		return err
	}

	item.CurrentStage = s.Type
	began := s.clock()
	last := ""
	for _, def := range steps {
		last = def.Name
		item.CurrentStep = def.Name
		t := s.tracker(def.Name)
		if err := t.Start(); err != nil {
			return err
		}

		stepErr := def.Run(ctx, sc, item)
		if stepErr == nil {
			t.RecordItem(true)
			continue
		}

		var skip *skipSignal
		if errors.As(stepErr, &skip) {
			t.RecordItem(true)
			return s.SkipItem(sc, item, def.Name, skip.reason, s.clock().Sub(began))
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%s interrupted at %s: %w", item.ItemID, def.Name, ctx.Err())
		}

		t.RecordItem(false)
		s.ItemsFailed++
		item.Fail(def.Name, stepErr)
		sc.Logger.Warn("item failed",
			"stage", s.Type,
			"step", def.Name,
			"item_id", item.ItemID,
			"source", item.SourcePath,
			"error", stepErr)
		return sc.LogItem(item, def.Name, ledger.StatusFailed, s.clock().Sub(began))
	}

	if s.Type == core.StageLoad {
		if err := item.Transition(core.ItemCompleted); err != nil {
			return err
		}
	}
	return sc.LogItem(item, last, ledger.StatusSuccess, s.clock().Sub(began))
}

// SkipItem records item as skipped at this stage with reason.
func (s *Stage) SkipItem(sc *StageContext, item *core.ProcessingItem, step, reason string, timing time.Duration) error {
	s.ItemsSkipped++
	if item.Metadata.SkippedReason == "" {
		item.Metadata.SkippedReason = reason
	}
	if sc.Debug {
		sc.Logger.Debug("item skipped", "stage", s.Type, "step", step, "item_id", item.ItemID, "reason", reason)
	}
	rec := ledger.NewRecord(item, s.Type, step, ledger.StatusSkipped, timing)
	rec.SkippedReason = reason
	return sc.Ledger.Append(rec)
}

// MarkSkipped records that the whole stage was bypassed.
func (s *Stage) MarkSkipped(reason string) {
	for _, t := range s.trackers {
		_ = t.Skip(reason)
	}
	s.Status = StageSkipped
	s.SkipReason = reason
}

// Finish finalizes every step and derives the stage status.
//
// A step that saw no successful items fails if it saw failures and is
// skipped if it saw nothing. The stage is completed when every step that ran
// completed, failed when no step completed and at least one failed, and
// partial otherwise.
func (s *Stage) Finish() {
	if s.Status == StageSkipped {
		return
	}
	completed, failedSteps := 0, 0
	for _, t := range s.trackers {
		step := t.Step()
		switch {
		case step.Status.IsTerminal():
		case step.ItemsProcessed == 0 && step.ItemsFailed > 0:
			_ = t.Fail(fmt.Errorf("%d items failed", step.ItemsFailed))
		case step.Status == StepRunning:
			_ = t.Complete()
		default:
			_ = t.Skip("no items")
		}
		switch step.Status {
		case StepCompleted:
			completed++
		case StepFailed:
			failedSteps++
		}
	}
	s.Status = deriveStageStatus(completed, failedSteps)
}

func deriveStageStatus(completed, failed int) StageStatus {
	switch {
	case failed == 0:
		return StageCompleted
	case completed == 0:
		return StageFailed
	default:
		return StagePartial
	}
}
