package ledger

import (
	"fmt"
	"time"

	"github.com/poiesic/vellum/core"
)

// FileName is the name of the ledger file inside a phase directory.
const FileName = "pipeline_stages.jsonl"

// Status is the outcome of one item at one stage.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Record is one immutable ledger line describing the outcome of an item at a
// stage. Step names the last step attempted for the item.
//
// Optional fields are omitted from the encoded line when unset; they are never
// written as null.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Phase     core.PhaseType `json:"phase,omitempty"`
	ItemID    core.FileID    `json:"item_id"`
	Filename  string         `json:"filename"`
	Stage     core.StageType `json:"stage"`
	Step      string         `json:"step"`
	TimingMS  int64          `json:"timing_ms"`
	Status    Status         `json:"status"`

	FileID        core.FileID       `json:"file_id,omitempty"`
	SkippedReason string            `json:"skipped_reason,omitempty"`
	Error         string            `json:"error,omitempty"`
	BeforeChars   *int              `json:"before_chars,omitempty"`
	AfterChars    *int              `json:"after_chars,omitempty"`
	DiffRatio     *float64          `json:"diff_ratio,omitempty"`
	IsChunked     *bool             `json:"is_chunked,omitempty"`
	ParentItemID  core.FileID       `json:"parent_item_id,omitempty"`
	ChunkIndex    *int              `json:"chunk_index,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// NewRecord builds a record for item at the given stage and step. Chunk
// fields are copied from the item when it is a chunk.
func NewRecord(item *core.ProcessingItem, stage core.StageType, step string, status Status, timing time.Duration) Record {
	rec := Record{
		ItemID:   item.ItemID,
		FileID:   item.ItemID,
		Filename: item.SourcePath,
		Stage:    stage,
		Step:     step,
		TimingMS: max(timing.Milliseconds(), 0),
		Status:   status,
	}
	if item.Chunk != nil {
		chunked := true
		index := item.Chunk.Index
		rec.IsChunked = &chunked
		rec.ChunkIndex = &index
		rec.ParentItemID = item.Chunk.ParentItemID
	}
	switch status {
	case StatusFailed:
		rec.Error = item.Error
	case StatusSkipped:
		rec.SkippedReason = item.Metadata.SkippedReason
	}
	return rec
}

// WithChars records the content size before and after a transformation and
// the ratio of the two. The ratio is omitted when before is zero.
func (r Record) WithChars(before, after int) Record {
	r.BeforeChars = &before
	r.AfterChars = &after
	if before > 0 {
		ratio := float64(after) / float64(before)
		r.DiffRatio = &ratio
	}
	return r
}

// Validate checks that the always-present fields are set.
func (r Record) Validate() error {
	switch {
	case r.ItemID == "":
		return fmt.Errorf("%w: item_id", ErrIncompleteRecord)
	case r.Stage == "":
		return fmt.Errorf("%w: stage", ErrIncompleteRecord)
	case r.Step == "":
		return fmt.Errorf("%w: step", ErrIncompleteRecord)
	}
	switch r.Status {
	case StatusSuccess, StatusFailed, StatusSkipped:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
	}
}
