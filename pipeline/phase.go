package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/fsutil"
	"github.com/poiesic/vellum/ledger"
)

// PhaseFileName is the persisted phase state inside a phase directory.
const PhaseFileName = "phase.json"

// PhaseStatus is the aggregate state of a Phase.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
	PhasePartial   PhaseStatus = "partial"
	PhaseFailed    PhaseStatus = "failed"
	PhaseCrashed   PhaseStatus = "crashed"
)

// DerivePhaseStatus maps run counts to a terminal status: completed with no
// failures (including an empty run), partial with both successes and
// failures, failed with failures only.
func DerivePhaseStatus(success, failed int) PhaseStatus {
	switch {
	case failed == 0:
		return PhaseCompleted
	case success > 0:
		return PhasePartial
	default:
		return PhaseFailed
	}
}

// PhaseError describes the failure that crashed a phase.
type PhaseError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Phase is one Import or Organize pass inside a session directory.
// It is persisted verbatim to phase.json on every Save.
type Phase struct {
	PhaseType    core.PhaseType            `json:"phase_type"`
	BasePath     string                    `json:"base_path"`
	Status       PhaseStatus               `json:"status"`
	StartedAt    *time.Time                `json:"started_at"`
	CompletedAt  *time.Time                `json:"completed_at"`
	ErrorCount   int                       `json:"error_count"`
	SuccessCount int                       `json:"success_count"`
	SkippedCount int                       `json:"skipped_count"`
	Stages       map[core.StageType]*Stage `json:"stages"`
	Steps        []*Step                   `json:"steps"`
	Error        *PhaseError               `json:"error,omitempty"`

	clock Clock
}

// OpenPhase loads the phase of the given type under sessionPath, or creates
// a pending one when none has been saved yet.
func OpenPhase(sessionPath string, phaseType core.PhaseType) (*Phase, error) {
	if _, err := core.ParsePhaseType(string(phaseType)); err != nil {
		return nil, err
	}
	base := filepath.Join(sessionPath, string(phaseType))
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create phase directory: %w", err)
	}

	p := &Phase{}
	err := fsutil.ReadJSON(filepath.Join(base, PhaseFileName), p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		p = &Phase{PhaseType: phaseType, Status: PhasePending}
	case err != nil:
		return nil, fmt.Errorf("failed to load phase: %w", err)
	}
	p.PhaseType = phaseType
	p.BasePath = base
	if p.Stages == nil {
		p.Stages = make(map[core.StageType]*Stage)
	}
	p.clock = systemClock
	return p, nil
}

// SetClock replaces the clock used for timestamps.
func (p *Phase) SetClock(clock Clock) {
	if clock != nil {
		p.clock = clock
	}
}

// LedgerPath returns the phase's ledger file.
func (p *Phase) LedgerPath() string {
	return filepath.Join(p.BasePath, ledger.FileName)
}

// ExtractOutputDir returns the directory holding extract dumps.
func (p *Phase) ExtractOutputDir() string {
	return filepath.Join(p.BasePath, string(core.StageExtract), "output")
}

// Begin resets the phase for a new run. Counts always restart from zero;
// prior outcomes live in the ledger.
func (p *Phase) Begin() {
	now := p.clock().UTC()
	p.Status = PhaseRunning
	p.StartedAt = &now
	p.CompletedAt = nil
	p.ErrorCount = 0
	p.SuccessCount = 0
	p.SkippedCount = 0
	p.Stages = make(map[core.StageType]*Stage)
	p.Steps = nil
	p.Error = nil
}

// AddStage registers a stage for this run.
func (p *Phase) AddStage(stage *Stage) {
	p.Stages[stage.Type] = stage
}

// Finish records the run counts and derives the terminal status.
func (p *Phase) Finish(success, failed, skipped int) {
	now := p.clock().UTC()
	p.SuccessCount = success
	p.ErrorCount = failed
	p.SkippedCount = skipped
	p.CompletedAt = &now
	p.Status = DerivePhaseStatus(success, failed)
}

// Crash marks the phase crashed with err.
func (p *Phase) Crash(err error) {
	now := p.clock().UTC()
	p.CompletedAt = &now
	p.Status = PhaseCrashed
	p.Error = NewPhaseError(err)
}

// NewPhaseError describes err by the type of its innermost cause.
func NewPhaseError(err error) *PhaseError {
	if err == nil {
		return nil
	}
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	return &PhaseError{Type: fmt.Sprintf("%T", root), Message: err.Error()}
}

// Save writes the phase to phase.json atomically.
func (p *Phase) Save() error {
	p.Steps = p.Steps[:0]
	for _, st := range core.StageTypes {
		if stage, ok := p.Stages[st]; ok {
			p.Steps = append(p.Steps, stage.Steps...)
		}
	}
	if err := fsutil.WriteJSONAtomic(filepath.Join(p.BasePath, PhaseFileName), p); err != nil {
		return fmt.Errorf("failed to save phase %s: %w", p.PhaseType, err)
	}
	return nil
}
