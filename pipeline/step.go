package pipeline

import (
	"fmt"
	"time"
)

// StepStatus is the lifecycle state of a Step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// IsTerminal reports whether the step can no longer change.
func (s StepStatus) IsTerminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

// Clock returns the current time. Tests inject their own.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now()
}

// Step is a named unit of work within a Stage.
// Steps are only mutated through a StepTracker.
type Step struct {
	Name           string     `json:"name"`
	Status         StepStatus `json:"status"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	DurationMS     int64      `json:"duration_ms"`
	ItemsProcessed int        `json:"items_processed"`
	ItemsFailed    int        `json:"items_failed"`
	Error          string     `json:"error,omitempty"`
}

// StepTracker owns a Step and enforces its transitions:
// pending -> running -> completed | failed | skipped.
type StepTracker struct {
	step  *Step
	now   Clock
	start time.Time
}

// NewStepTracker creates a tracker for a new pending step.
// A nil clock uses the system clock.
func NewStepTracker(name string, clock Clock) *StepTracker {
	if clock == nil {
		clock = systemClock
	}
	return &StepTracker{
		step: &Step{Name: name, Status: StepPending},
		now:  clock,
	}
}

// Step returns the tracked step.
func (t *StepTracker) Step() *Step {
	return t.step
}

// Name returns the step name.
func (t *StepTracker) Name() string {
	return t.step.Name
}

// Start moves a pending step to running and records the start time.
// Starting a running step is a no-op.
func (t *StepTracker) Start() error {
	switch t.step.Status {
	case StepRunning:
		return nil
	case StepPending:
	default:
		return t.finishedErr()
	}
	t.start = t.now()
	started := t.start.UTC()
	t.step.StartedAt = &started
	t.step.Status = StepRunning
	return nil
}

// Complete marks a running step completed and stamps its duration.
func (t *StepTracker) Complete() error {
	if t.step.Status != StepRunning {
		if t.step.Status.IsTerminal() {
			return t.finishedErr()
		}
		return fmt.Errorf("%w: %s", ErrStepNotStarted, t.step.Name)
	}
	t.stamp()
	t.step.Status = StepCompleted
	return nil
}

// Fail marks the step failed. A step that never started fails with zero
// duration.
func (t *StepTracker) Fail(err error) error {
	if t.step.Status.IsTerminal() {
		return t.finishedErr()
	}
	t.stamp()
	t.step.Status = StepFailed
	if err != nil {
		t.step.Error = err.Error()
	}
	return nil
}

// Skip marks the step skipped without timing and stores the reason as
// "Skipped: <reason>".
func (t *StepTracker) Skip(reason string) error {
	if t.step.Status.IsTerminal() {
		return t.finishedErr()
	}
	t.step.Status = StepSkipped
	t.step.Error = "Skipped: " + reason
	return nil
}

// RecordItem counts one item handled by the step.
func (t *StepTracker) RecordItem(ok bool) {
	if ok {
		t.step.ItemsProcessed++
	} else {
		t.step.ItemsFailed++
	}
}

func (t *StepTracker) stamp() {
	end := t.now()
	completed := end.UTC()
	t.step.CompletedAt = &completed
	if t.start.IsZero() {
		t.step.DurationMS = 0
		return
	}
	t.step.DurationMS = max(end.Sub(t.start).Milliseconds(), 0)
}

func (t *StepTracker) finishedErr() error {
	return fmt.Errorf("%w: %s is %s", ErrStepFinished, t.step.Name, t.step.Status)
}
