package session

import (
	"fmt"
	"time"

	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/pipeline"
)

const (
	// ManifestFileName is the session manifest inside a session directory.
	ManifestFileName = "session.json"

	// IDLayout is the time layout session ids are derived from.
	IDLayout = "20060102_150405"
)

// Phase stats statuses. Terminal values mirror pipeline.PhaseStatus.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = string(pipeline.PhaseCompleted)
	StatusPartial    = string(pipeline.PhasePartial)
	StatusFailed     = string(pipeline.PhaseFailed)
	StatusCrashed    = string(pipeline.PhaseCrashed)
)

// Manifest is the persisted summary of a session, readable without
// replaying the ledger.
type Manifest struct {
	SessionID         string                         `json:"session_id"`
	SessionType       string                         `json:"session_type"`
	StartedAt         time.Time                      `json:"started_at"`
	UpdatedAt         time.Time                      `json:"updated_at"`
	TotalFiles        int                            `json:"total_files"`
	Provider          string                         `json:"provider"`
	SourceSession     string                         `json:"source_session,omitempty"`
	IntermediateFiles []string                       `json:"intermediate_files,omitempty"`
	Phases            map[core.PhaseType]*PhaseStats `json:"phases"`
}

// PhaseStats is the per-phase entry of the manifest. It is written once
// with status in_progress after Extract, and again when the phase ends.
// A phase that never reaches the second write stays in_progress.
type PhaseStats struct {
	Status                 string                `json:"status"`
	ExpectedTotalItemCount int                   `json:"expected_total_item_count"`
	CompletedInformation   *CompletedInformation `json:"completed_information"`
	Error                  *pipeline.PhaseError  `json:"error,omitempty"`
}

// CompletedInformation holds the final counts of a phase.
type CompletedInformation struct {
	SuccessCount int       `json:"success_count"`
	ErrorCount   int       `json:"error_count"`
	CompletedAt  time.Time `json:"completed_at"`
}

// ParseID checks that id is a timestamp-derived session id and returns the
// time it encodes.
func ParseID(id string) (time.Time, error) {
	t, err := time.Parse(IDLayout, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return t, nil
}
