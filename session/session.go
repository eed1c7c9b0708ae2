package session

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/fsutil"
	"github.com/poiesic/vellum/ledger"
	"github.com/poiesic/vellum/pipeline"
)

// Session is one run rooted at a directory. It is not safe for concurrent
// use; a session has a single active writer.
type Session struct {
	path     string
	manifest *Manifest
	clock    pipeline.Clock
	logger   *slog.Logger
	results  map[core.PhaseType]*pipeline.RunResult
}

// ID returns the timestamp-derived session id.
func (s *Session) ID() string {
	return s.manifest.SessionID
}

// Path returns the session directory.
func (s *Session) Path() string {
	return s.path
}

// Manifest returns a copy of the current manifest.
func (s *Session) Manifest() Manifest {
	m := *s.manifest
	m.IntermediateFiles = slices.Clone(s.manifest.IntermediateFiles)
	m.Phases = make(map[core.PhaseType]*PhaseStats, len(s.manifest.Phases))
	for k, v := range s.manifest.Phases {
		stats := *v
		m.Phases[k] = &stats
	}
	return m
}

// PhaseStats returns the manifest entry for phaseType, or nil.
func (s *Session) PhaseStats(phaseType core.PhaseType) *PhaseStats {
	return s.manifest.Phases[phaseType]
}

// SetTotalFiles records the number of input files.
func (s *Session) SetTotalFiles(n int) {
	s.manifest.TotalFiles = n
}

// AddIntermediateFile records a file produced between phases.
func (s *Session) AddIntermediateFile(path string) {
	if !slices.Contains(s.manifest.IntermediateFiles, path) {
		s.manifest.IntermediateFiles = append(s.manifest.IntermediateFiles, path)
	}
}

// Save writes the manifest atomically, stamping updated_at.
func (s *Session) Save() error {
	s.manifest.UpdatedAt = s.clock().UTC()
	return fsutil.WriteJSONAtomic(filepath.Join(s.path, ManifestFileName), s.manifest)
}

// OpenPhase loads or creates the phase of the given type in this session.
func (s *Session) OpenPhase(phaseType core.PhaseType) (*pipeline.Phase, error) {
	return pipeline.OpenPhase(s.path, phaseType)
}

// RunPhase runs phaseType with hooks and keeps the manifest in step with it.
//
// Phase stats are written twice: as in_progress once Extract is complete,
// with the number of distinct items the ledger shows as extracted, and again
// with the terminal status and counts when the run ends. If the run fails the
// phase is recorded as crashed, with the error's type and message, before
// the error is returned.
func (s *Session) RunPhase(ctx context.Context, phaseType core.PhaseType, hooks pipeline.Hooks, opts ...pipeline.Option) (*pipeline.RunResult, error) {
	if hooks == nil {
		return nil, pipeline.ErrHooksRequired
	}
	phase, err := s.OpenPhase(phaseType)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("phase", phaseType)
	runOpts := []pipeline.Option{pipeline.WithClock(s.clock), pipeline.WithLogger(s.logger)}
	runOpts = append(runOpts, opts...)
	runOpts = append(runOpts,
		pipeline.WithSessionID(s.ID()),
		pipeline.WithExtractComplete(func(p *pipeline.Phase) error {
			expected := ledger.CountDistinct(p.LedgerPath(), core.StageExtract, ledger.StatusSuccess, logger)
			s.manifest.Phases[phaseType] = &PhaseStats{
				Status:                 StatusInProgress,
				ExpectedTotalItemCount: expected,
			}
			logger.Info("extract complete", "expected_items", expected)
			return s.Save()
		}),
	)

	result, err := pipeline.NewOrchestrator(runOpts...).Run(ctx, phase, hooks)
	if err != nil {
		s.recordCrash(phase, err)
		return result, err
	}
	s.results[phaseType] = result

	stats := s.stats(phaseType)
	stats.Status = string(phase.Status)
	stats.Error = nil
	stats.CompletedInformation = &CompletedInformation{
		SuccessCount: phase.SuccessCount,
		ErrorCount:   phase.ErrorCount,
	}
	if phase.CompletedAt != nil {
		stats.CompletedInformation.CompletedAt = *phase.CompletedAt
	}
	if err := s.Save(); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Session) recordCrash(phase *pipeline.Phase, err error) {
	logger := s.logger.With("phase", phase.PhaseType)
	logger.Error("phase crashed", "error", err)

	phase.Crash(err)
	if saveErr := phase.Save(); saveErr != nil {
		logger.Error("failed to save crashed phase", "error", saveErr)
	}
	stats := s.stats(phase.PhaseType)
	stats.Status = StatusCrashed
	stats.Error = phase.Error
	if saveErr := s.Save(); saveErr != nil {
		logger.Error("failed to save manifest after crash", "error", saveErr)
	}
}

func (s *Session) stats(phaseType core.PhaseType) *PhaseStats {
	stats, ok := s.manifest.Phases[phaseType]
	if !ok {
		stats = &PhaseStats{}
		s.manifest.Phases[phaseType] = stats
	}
	return stats
}
