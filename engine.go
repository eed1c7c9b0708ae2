// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package vellum wires storage, AI services and sessions into an engine that
// runs the import and organize phases.
package vellum

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/poiesic/vellum/ai"
	"github.com/poiesic/vellum/ai/openai"
	"github.com/poiesic/vellum/config"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/fsutil"
	"github.com/poiesic/vellum/phases"
	"github.com/poiesic/vellum/pipeline"
	"github.com/poiesic/vellum/providers"
	"github.com/poiesic/vellum/retry"
	"github.com/poiesic/vellum/session"
	"github.com/poiesic/vellum/storage"
	"github.com/poiesic/vellum/storage/badger"
)

// ErrNoInputPath is returned when neither the request nor the resumed session
// names an input.
var ErrNoInputPath = errors.New("no input path")

type Engine struct {
	cfg         *config.Config
	backend     *badger.Backend
	documents   storage.DocumentRepository
	checkpoints storage.CheckpointRepository
	provider    ai.AIProvider
	sessions    *session.Manager
	progress    io.Writer
	logger      *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	provider ai.AIProvider
	inMemory bool
	progress io.Writer
	clock    pipeline.Clock
	logger   *slog.Logger
}

// WithAIProvider replaces the OpenAI-compatible provider built from config.
// The engine takes ownership and closes it.
func WithAIProvider(p ai.AIProvider) EngineOption {
	return func(o *engineOptions) {
		o.provider = p
	}
}

// WithInMemoryStorage keeps the document index in memory.
func WithInMemoryStorage() EngineOption {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// WithProgress reports throughput to w while phases run.
func WithProgress(w io.Writer) EngineOption {
	return func(o *engineOptions) {
		o.progress = w
	}
}

// WithClock sets the clock used by sessions and phases.
func WithClock(clock pipeline.Clock) EngineOption {
	return func(o *engineOptions) {
		o.clock = clock
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// NewEngine opens the document index under cfg.DatabaseDir and prepares the
// session manager under cfg.SessionsDir.
func NewEngine(cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
		cfg.Normalize()
	}
	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger.With("component", "engine")

	backend, err := badger.OpenBackend(cfg.DatabaseDir, options.inMemory)
	if err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(cfg.AIConfig())
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	sessionOpts := []session.Option{session.WithLogger(options.logger.With("component", "session"))}
	if options.clock != nil {
		sessionOpts = append(sessionOpts, session.WithClock(options.clock))
	}
	sessions, err := session.NewManager(cfg.SessionsDir, sessionOpts...)
	if err != nil {
		provider.Close()
		backend.Close()
		return nil, err
	}

	return &Engine{
		cfg:         cfg,
		backend:     backend,
		documents:   badger.NewDocumentRepository(backend),
		checkpoints: badger.NewCheckpointRepository(backend),
		provider:    provider,
		sessions:    sessions,
		progress:    options.progress,
		logger:      logger,
	}, nil
}

// Close releases the AI provider, the repositories and the backend.
func (e *Engine) Close() error {
	if err := e.provider.Close(); err != nil {
		e.logger.Error("error closing AI provider", "err", err)
	}
	if err := e.checkpoints.Close(); err != nil {
		e.logger.Error("error closing checkpoint repository", "err", err)
		return err
	}
	if err := e.documents.Close(); err != nil {
		e.logger.Error("error closing document repository", "err", err)
		return err
	}
	if err := e.backend.Close(); err != nil {
		e.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (e *Engine) Config() *config.Config {
	return e.cfg
}

func (e *Engine) Documents() storage.DocumentRepository {
	return e.documents
}

func (e *Engine) Checkpoints() storage.CheckpointRepository {
	return e.checkpoints
}

func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// RetryCoordinator returns a coordinator over the engine's import sessions.
func (e *Engine) RetryCoordinator(opts ...retry.Option) (*retry.Coordinator, error) {
	return retry.NewCoordinator(e.cfg.SessionsDir, opts...)
}

// RunReport is what a phase run leaves behind.
type RunReport struct {
	Session *session.Session
	Result  *pipeline.RunResult
	Results *session.Results
}

// ImportRequest describes one import run. Empty fields fall back to config.
type ImportRequest struct {
	InputPath string
	OutputDir string
	Provider  string

	// ResumeSession reopens an unfinished import session instead of creating one.
	ResumeSession string
	// SourceSession is recorded in the manifest of retry sessions.
	SourceSession string
	// Targets restricts extraction to these source paths.
	Targets []string

	Limit int
	Debug bool
}

// Import runs the import phase and finalizes the session. A crashed run
// returns the error and leaves the session unfinalized so it can be resumed.
func (e *Engine) Import(ctx context.Context, req ImportRequest) (*RunReport, error) {
	if req.Provider == "" {
		req.Provider = e.cfg.Provider
	}
	if req.OutputDir == "" {
		req.OutputDir = e.cfg.OutputDir
	}
	extractor, err := providers.Lookup(req.Provider)
	if err != nil {
		return nil, err
	}

	sess, err := e.openOrCreate(string(core.PhaseImport), req.Provider, req.ResumeSession, session.CreateOptions{
		SourceSession: req.SourceSession,
	})
	if err != nil {
		return nil, err
	}
	if req.InputPath == "" {
		req.InputPath = recordedInputPath(sess.Path(), core.PhaseImport)
	}
	if req.InputPath == "" {
		return nil, ErrNoInputPath
	}

	hooks, err := phases.NewImport(phases.ImportOptions{
		InputPath:     req.InputPath,
		OutputDir:     req.OutputDir,
		Provider:      extractor,
		Knowledge:     e.provider.KnowledgeExtractor(),
		Documents:     e.documents,
		Checkpoints:   e.checkpoints,
		ChunkOptions:  e.cfg.ChunkOptions(),
		Targets:       req.Targets,
		RetryAttempts: e.cfg.Pipeline.RetryAttempts,
		RetryDelay:    e.cfg.Pipeline.RetryDelay,
	})
	if err != nil {
		return nil, err
	}
	return e.run(ctx, sess, core.PhaseImport, hooks, req.InputPath, req.Limit, req.Debug)
}

// OrganizeRequest describes one organize run. InputPath defaults to the
// import output directory and OutputDir to <data_dir>/organized.
type OrganizeRequest struct {
	InputPath     string
	OutputDir     string
	ResumeSession string
	Limit         int
	Debug         bool
}

// Organize classifies markdown documents into category folders.
func (e *Engine) Organize(ctx context.Context, req OrganizeRequest) (*RunReport, error) {
	if req.OutputDir == "" {
		req.OutputDir = filepath.Join(e.cfg.DataDir, "organized")
	}

	sess, err := e.openOrCreate(string(core.PhaseOrganize), "", req.ResumeSession, session.CreateOptions{})
	if err != nil {
		return nil, err
	}
	if req.InputPath == "" {
		req.InputPath = recordedInputPath(sess.Path(), core.PhaseOrganize)
	}
	if req.InputPath == "" {
		req.InputPath = e.cfg.OutputDir
	}

	hooks, err := phases.NewOrganize(phases.OrganizeOptions{
		InputPath:     req.InputPath,
		OutputDir:     req.OutputDir,
		Classifier:    e.provider.Classifier(),
		Checkpoints:   e.checkpoints,
		Documents:     e.documents,
		RetryAttempts: e.cfg.Pipeline.RetryAttempts,
		RetryDelay:    e.cfg.Pipeline.RetryDelay,
	})
	if err != nil {
		return nil, err
	}
	return e.run(ctx, sess, core.PhaseOrganize, hooks, req.InputPath, req.Limit, req.Debug)
}

// Retry starts a new import session that reprocesses only the source files
// that failed in sourceID. The input path comes from the source session
// unless req names one.
func (e *Engine) Retry(ctx context.Context, sourceID string, req ImportRequest) (*RunReport, error) {
	coordinator, err := e.RetryCoordinator(retry.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	targets, err := coordinator.RetryTargets(sourceID)
	if err != nil {
		return nil, err
	}
	if req.InputPath == "" {
		dir, err := coordinator.FindSession(sourceID)
		if err != nil {
			return nil, err
		}
		req.InputPath = recordedInputPath(dir.Path, core.PhaseImport)
	}
	if req.Provider == "" {
		if src, err := e.sessions.Open(string(core.PhaseImport), sourceID); err == nil {
			req.Provider = src.Manifest().Provider
		}
	}
	req.ResumeSession = ""
	req.SourceSession = sourceID
	req.Targets = retry.SourcePaths(targets)
	e.logger.Info("retrying failed items", "source_session", sourceID, "files", len(req.Targets))
	return e.Import(ctx, req)
}

func (e *Engine) openOrCreate(sessionType, provider, resumeID string, opts session.CreateOptions) (*session.Session, error) {
	if resumeID == "" {
		return e.sessions.Create(sessionType, provider, opts)
	}
	return e.sessions.Resume(sessionType, resumeID)
}

func (e *Engine) run(ctx context.Context, sess *session.Session, phaseType core.PhaseType, hooks pipeline.Hooks, input string, limit int, debug bool) (*RunReport, error) {
	opts := []pipeline.Option{
		pipeline.WithInputPath(input),
		pipeline.WithItemsPerDump(e.cfg.Pipeline.ItemsPerDump),
		pipeline.WithLimit(limit),
		pipeline.WithDebug(debug),
	}
	if e.progress != nil {
		opts = append(opts, pipeline.WithProgress(e.progress, e.cfg.Pipeline.ProgressInterval))
	}

	report := &RunReport{Session: sess}
	result, err := sess.RunPhase(ctx, phaseType, hooks, opts...)
	report.Result = result
	if err != nil {
		return report, err
	}
	if result != nil {
		sess.SetTotalFiles(countSources(result))
		if err := sess.Save(); err != nil {
			return report, err
		}
	}

	results, err := sess.Finalize()
	if err != nil {
		return report, err
	}
	report.Results = results
	return report, nil
}

func countSources(result *pipeline.RunResult) int {
	seen := make(map[string]struct{}, len(result.Outcomes))
	for _, o := range result.Outcomes {
		seen[o.SourcePath] = struct{}{}
	}
	return len(seen)
}

// recordedInputPath returns the extract input saved with a phase, or "".
func recordedInputPath(sessionPath string, phaseType core.PhaseType) string {
	var phase pipeline.Phase
	path := filepath.Join(sessionPath, string(phaseType), pipeline.PhaseFileName)
	if err := fsutil.ReadJSON(path, &phase); err != nil {
		return ""
	}
	if stage, ok := phase.Stages[core.StageExtract]; ok && stage != nil {
		return stage.InputPath
	}
	return ""
}
