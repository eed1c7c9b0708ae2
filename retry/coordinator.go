// Package retry finds earlier import sessions that recorded item failures
// and turns their errors.json into something an operator can inspect and
// rerun.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/session"
)

// Layout is the directory convention a session was found under.
type Layout string

const (
	// LayoutLegacy is <base>/import_YYYYMMDD_HHMMSS/.
	LayoutLegacy Layout = "legacy"
	// LayoutNested is <base>/import/YYYYMMDD_HHMMSS/.
	LayoutNested Layout = "nested"
)

const legacyPrefix = string(core.PhaseImport) + "_"

// SessionDir is a candidate session directory.
type SessionDir struct {
	ID      string
	Path    string
	Layout  Layout
	ModTime time.Time
}

// SessionInfo summarizes a session that has recorded errors.
type SessionInfo struct {
	SessionDir
	ErrorCount int
}

// Coordinator discovers retryable sessions. It only reads session
// directories and never writes to them.
type Coordinator struct {
	baseDir  string
	poolSize int
	logger   *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPoolSize sets how many errors.json files are read concurrently.
// Default is runtime.NumCPU(), with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(c *Coordinator) {
		c.poolSize = max(size, 1)
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// NewCoordinator returns a coordinator over the sessions under baseDir.
func NewCoordinator(baseDir string, opts ...Option) (*Coordinator, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, ErrBaseDirRequired
	}
	c := &Coordinator{
		baseDir:  baseDir,
		poolSize: max(runtime.NumCPU(), 1),
		logger:   slog.Default().With("component", "retry"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FindSessionDirs lists import sessions in both the legacy flat layout and
// the nested layout, newest modification time first. Sessions of other
// types and directories that are not named after a session id are ignored.
func (c *Coordinator) FindSessionDirs() ([]SessionDir, error) {
	var dirs []SessionDir

	entries, err := os.ReadDir(c.baseDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, e := range entries {
		id, ok := strings.CutPrefix(e.Name(), legacyPrefix)
		if !e.IsDir() || !ok {
			continue
		}
		if dir, ok := c.sessionDir(id, filepath.Join(c.baseDir, e.Name()), LayoutLegacy); ok {
			dirs = append(dirs, dir)
		}
	}

	nestedRoot := filepath.Join(c.baseDir, string(core.PhaseImport))
	nested, err := os.ReadDir(nestedRoot)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, e := range nested {
		if !e.IsDir() {
			continue
		}
		if dir, ok := c.sessionDir(e.Name(), filepath.Join(nestedRoot, e.Name()), LayoutNested); ok {
			dirs = append(dirs, dir)
		}
	}

	slices.SortStableFunc(dirs, func(a, b SessionDir) int {
		if n := b.ModTime.Compare(a.ModTime); n != 0 {
			return n
		}
		return strings.Compare(b.ID, a.ID)
	})
	return dirs, nil
}

func (c *Coordinator) sessionDir(id, path string, layout Layout) (SessionDir, bool) {
	if _, err := session.ParseID(id); err != nil {
		return SessionDir{}, false
	}
	fi, err := os.Stat(path)
	if err != nil {
		c.logger.Warn("skipping unreadable session directory", "path", path, "error", err)
		return SessionDir{}, false
	}
	return SessionDir{ID: id, Path: path, Layout: layout, ModTime: fi.ModTime()}, true
}

// GetSessionsWithErrors returns the sessions whose errors.json lists at
// least one entry, newest first. Error files are read on a worker pool;
// a session whose file is missing or unreadable is left out.
func (c *Coordinator) GetSessionsWithErrors(ctx context.Context) ([]SessionInfo, error) {
	dirs, err := c.FindSessionDirs()
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, nil
	}

	pool, err := ants.NewPool(c.poolSize)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	counts := make([]int, len(dirs))
	var wg sync.WaitGroup
	for i, dir := range dirs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			entries, err := session.ReadErrors(dir.Path)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					c.logger.Warn("failed to read errors file", "session_id", dir.ID, "error", err)
				}
				return
			}
			counts[i] = len(entries)
		})
		if submitErr != nil {
			wg.Done()
			wg.Wait()
			return nil, submitErr
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var infos []SessionInfo
	for i, dir := range dirs {
		if counts[i] > 0 {
			infos = append(infos, SessionInfo{SessionDir: dir, ErrorCount: counts[i]})
		}
	}
	return infos, nil
}

// FindSession resolves an id to a session directory. The id may be given
// bare or with the legacy "import_" prefix.
func (c *Coordinator) FindSession(id string) (SessionDir, error) {
	id = strings.TrimPrefix(id, legacyPrefix)
	if _, err := session.ParseID(id); err != nil {
		return SessionDir{}, err
	}
	candidates := []struct {
		path   string
		layout Layout
	}{
		{filepath.Join(c.baseDir, string(core.PhaseImport), id), LayoutNested},
		{filepath.Join(c.baseDir, legacyPrefix+id), LayoutLegacy},
	}
	for _, cand := range candidates {
		fi, err := os.Stat(cand.path)
		if err == nil && fi.IsDir() {
			return SessionDir{ID: id, Path: cand.path, Layout: cand.layout, ModTime: fi.ModTime()}, nil
		}
	}
	return SessionDir{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}
