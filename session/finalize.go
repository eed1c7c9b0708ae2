package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/fsutil"
	"github.com/poiesic/vellum/pipeline"
)

// Summary files written by Finalize.
const (
	ErrorsFileName    = "errors.json"
	ProcessedFileName = "processed.json"
	PendingFileName   = "pending.json"
	ResultsFileName   = "results.json"
)

// ErrorEntry is one failed item as recorded in errors.json.
type ErrorEntry struct {
	ItemID       core.FileID    `json:"item_id"`
	SourcePath   string         `json:"source_path"`
	Filename     string         `json:"filename"`
	Phase        core.PhaseType `json:"phase"`
	Stage        core.StageType `json:"stage,omitempty"`
	Step         string         `json:"step,omitempty"`
	Error        string         `json:"error"`
	ParentItemID core.FileID    `json:"parent_item_id,omitempty"`
}

// ProcessedEntry is one completed item as recorded in processed.json.
type ProcessedEntry struct {
	ItemID     core.FileID    `json:"item_id"`
	SourcePath string         `json:"source_path"`
	Phase      core.PhaseType `json:"phase"`
	OutputPath string         `json:"output_path,omitempty"`
}

// PendingEntry is one item that left a run without a terminal status.
type PendingEntry struct {
	ItemID     core.FileID     `json:"item_id"`
	SourcePath string          `json:"source_path"`
	Phase      core.PhaseType  `json:"phase"`
	Status     core.ItemStatus `json:"status"`
	Stage      core.StageType  `json:"stage,omitempty"`
}

// PhaseResult holds the counts of one phase run.
type PhaseResult struct {
	Processed      int  `json:"processed"`
	Failed         int  `json:"failed"`
	Skipped        int  `json:"skipped"`
	Pending        int  `json:"pending"`
	ExtractResumed bool `json:"extract_resumed"`
}

// Results is the content of results.json.
type Results struct {
	SessionID   string                         `json:"session_id"`
	SessionType string                         `json:"session_type"`
	FinalizedAt time.Time                      `json:"finalized_at"`
	Phases      map[core.PhaseType]PhaseResult `json:"phases"`
}

// Finalized reports whether the summary files have been written.
func (s *Session) Finalized() bool {
	_, err := os.Stat(filepath.Join(s.path, ResultsFileName))
	return err == nil
}

// Finalize writes errors.json, processed.json, pending.json and results.json
// from the phases run through this session. It may be called once per session.
func (s *Session) Finalize() (*Results, error) {
	if s.Finalized() {
		return nil, ErrAlreadyFinalized
	}

	errs := []ErrorEntry{}
	processed := []ProcessedEntry{}
	pending := []PendingEntry{}
	results := &Results{
		SessionID:   s.ID(),
		SessionType: s.manifest.SessionType,
		FinalizedAt: s.clock().UTC(),
		Phases:      make(map[core.PhaseType]PhaseResult),
	}

	for _, phaseType := range core.PhaseTypes {
		run, ok := s.results[phaseType]
		if !ok {
			continue
		}
		results.Phases[phaseType] = PhaseResult{
			Processed:      run.Processed,
			Failed:         run.Failed,
			Skipped:        run.Skipped,
			Pending:        run.Unfinished,
			ExtractResumed: run.ExtractResumed,
		}
		for _, o := range run.Outcomes {
			switch o.Status {
			case core.ItemFailed:
				errs = append(errs, newErrorEntry(phaseType, o))
			case core.ItemCompleted:
				processed = append(processed, ProcessedEntry{
					ItemID:     o.ItemID,
					SourcePath: o.SourcePath,
					Phase:      phaseType,
					OutputPath: o.OutputPath,
				})
			case core.ItemFiltered:
			default:
				pending = append(pending, PendingEntry{
					ItemID:     o.ItemID,
					SourcePath: o.SourcePath,
					Phase:      phaseType,
					Status:     o.Status,
					Stage:      o.Stage,
				})
			}
		}
	}

	files := []struct {
		name string
		v    any
	}{
		{ErrorsFileName, errs},
		{ProcessedFileName, processed},
		{PendingFileName, pending},
		{ResultsFileName, results},
	}
	// results.json goes last; its presence marks the session finalized.
	for _, f := range files {
		if err := fsutil.WriteJSONAtomic(filepath.Join(s.path, f.name), f.v); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	s.logger.Info("session finalized",
		"errors", len(errs),
		"processed", len(processed),
		"pending", len(pending))
	return results, nil
}

func newErrorEntry(phaseType core.PhaseType, o pipeline.ItemOutcome) ErrorEntry {
	return ErrorEntry{
		ItemID:       o.ItemID,
		SourcePath:   o.SourcePath,
		Filename:     filepath.Base(o.SourcePath),
		Phase:        phaseType,
		Stage:        o.Stage,
		Step:         o.Step,
		Error:        o.Error,
		ParentItemID: o.ParentItemID,
	}
}

// ReadErrors loads errors.json from a session directory. A missing file is
// reported as fs.ErrNotExist.
func ReadErrors(sessionPath string) ([]ErrorEntry, error) {
	var entries []ErrorEntry
	if err := fsutil.ReadJSON(filepath.Join(sessionPath, ErrorsFileName), &entries); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read %s: %w", ErrorsFileName, err)
	}
	return entries, nil
}
