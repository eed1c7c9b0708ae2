// Package session owns the on-disk root of one pipeline run: its directory,
// its session.json manifest, the phases run inside it and the final summary
// files written when the run is finalized.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/fsutil"
	"github.com/poiesic/vellum/pipeline"
)

// Manager creates and opens sessions below a base directory laid out as
// <base>/<session type>/<YYYYMMDD_HHMMSS>/.
type Manager struct {
	basePath string
	clock    pipeline.Clock
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for session ids and timestamps.
func WithClock(clock pipeline.Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
	}
}

// NewManager returns a manager rooted at basePath.
func NewManager(basePath string, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, ErrBasePathRequired
	}
	m := &Manager{
		basePath: basePath,
		clock:    time.Now,
		logger:   slog.Default().With("component", "session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// BasePath returns the directory sessions are created under.
func (m *Manager) BasePath() string {
	return m.basePath
}

// CreateOptions carries the manifest fields known when a session starts.
type CreateOptions struct {
	TotalFiles        int
	SourceSession     string
	IntermediateFiles []string
}

// Create makes a new session directory and writes its initial manifest. The
// id is the current time; if a session with that id already exists the
// timestamp is moved forward one second at a time until it is free.
func (m *Manager) Create(sessionType, provider string, opts CreateOptions) (*Session, error) {
	if err := validateType(sessionType); err != nil {
		return nil, err
	}
	typeDir := filepath.Join(m.basePath, sessionType)
	if err := os.MkdirAll(typeDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session root: %w", err)
	}

	now := m.clock().UTC().Truncate(time.Second)
	var id, path string
	for {
		id = now.Format(IDLayout)
		path = filepath.Join(typeDir, id)
		err := os.Mkdir(path, 0o755)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
		now = now.Add(time.Second)
	}

	s := m.newSession(path, &Manifest{
		SessionID:         id,
		SessionType:       sessionType,
		StartedAt:         m.clock().UTC(),
		TotalFiles:        opts.TotalFiles,
		Provider:          provider,
		SourceSession:     opts.SourceSession,
		IntermediateFiles: slices.Clone(opts.IntermediateFiles),
		Phases:            make(map[core.PhaseType]*PhaseStats),
	})
	if err := s.Save(); err != nil {
		return nil, err
	}
	m.logger.Info("session created", "session_id", id, "type", sessionType, "path", path)
	return s, nil
}

// Open loads an existing session by type and id.
func (m *Manager) Open(sessionType, id string) (*Session, error) {
	if err := validateType(sessionType); err != nil {
		return nil, err
	}
	if _, err := ParseID(id); err != nil {
		return nil, err
	}
	return m.OpenPath(filepath.Join(m.basePath, sessionType, id))
}

// OpenPath loads the session rooted at path.
func (m *Manager) OpenPath(path string) (*Session, error) {
	manifest := &Manifest{}
	err := fsutil.ReadJSON(filepath.Join(path, ManifestFileName), manifest)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, path)
	case err != nil:
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if manifest.Phases == nil {
		manifest.Phases = make(map[core.PhaseType]*PhaseStats)
	}
	return m.newSession(path, manifest), nil
}

// Resume opens an unfinalized session so its phases can be run again.
func (m *Manager) Resume(sessionType, id string) (*Session, error) {
	s, err := m.Open(sessionType, id)
	if err != nil {
		return nil, err
	}
	if s.Finalized() {
		return nil, fmt.Errorf("cannot resume %s: %w", id, ErrAlreadyFinalized)
	}
	m.logger.Info("session resumed", "session_id", id, "type", sessionType)
	return s, nil
}

// List returns the ids of sessions of the given type, newest first.
// Directories whose names are not session ids are ignored.
func (m *Manager) List(sessionType string) ([]string, error) {
	if err := validateType(sessionType); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(m.basePath, sessionType))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := ParseID(e.Name()); err == nil {
			ids = append(ids, e.Name())
		}
	}
	// Ids are fixed-width timestamps, so lexical order is time order.
	slices.Sort(ids)
	slices.Reverse(ids)
	return ids, nil
}

// Latest opens the newest session of the given type.
func (m *Manager) Latest(sessionType string) (*Session, error) {
	ids, err := m.List(sessionType)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no %s sessions", ErrSessionNotFound, sessionType)
	}
	return m.Open(sessionType, ids[0])
}

func (m *Manager) newSession(path string, manifest *Manifest) *Session {
	return &Session{
		path:     path,
		manifest: manifest,
		clock:    m.clock,
		logger:   m.logger.With("session_id", manifest.SessionID),
		results:  make(map[core.PhaseType]*pipeline.RunResult),
	}
}

func validateType(sessionType string) error {
	if strings.TrimSpace(sessionType) == "" {
		return ErrSessionTypeRequired
	}
	if strings.ContainsAny(sessionType, `/\`) || sessionType == "." || sessionType == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidSessionType, sessionType)
	}
	return nil
}
