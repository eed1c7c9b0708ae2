package retry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/poiesic/vellum/session"
)

// Validation is the outcome of checking whether a session can be retried.
type Validation struct {
	Valid      bool
	Reason     string
	ErrorCount int
	Session    SessionDir

	// Err is the sentinel behind an invalid result.
	Err error
}

func invalid(dir SessionDir, err error) Validation {
	return Validation{Reason: err.Error(), Session: dir, Err: err}
}

// ValidateSession checks that id names an import session with a non-empty
// errors.json.
func (c *Coordinator) ValidateSession(id string) Validation {
	v, _ := c.validate(id)
	return v
}

func (c *Coordinator) validate(id string) (Validation, []session.ErrorEntry) {
	dir, err := c.FindSession(id)
	if err != nil {
		return invalid(SessionDir{}, err), nil
	}

	path := filepath.Join(dir.Path, session.ErrorsFileName)
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return invalid(dir, fmt.Errorf("%w: %s", ErrNoErrorsFile, dir.ID)), nil
	}
	if err != nil {
		return invalid(dir, err), nil
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return invalid(dir, fmt.Errorf("%w: %s", ErrEmptyErrors, dir.ID)), nil
	}

	var entries []session.ErrorEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return invalid(dir, fmt.Errorf("failed to decode %s: %w", session.ErrorsFileName, err)), nil
	}
	if len(entries) == 0 {
		return invalid(dir, fmt.Errorf("%w: %s", ErrEmptyErrors, dir.ID)), nil
	}
	return Validation{Valid: true, ErrorCount: len(entries), Session: dir}, entries
}

// Preview describes what a retry of a session would reprocess.
type Preview struct {
	Validation Validation
	Errors     []session.ErrorEntry
}

// PreviewRetry validates the session and returns its error entries. It has
// no side effects. An invalid session is returned as an error wrapping the
// validation sentinel.
func (c *Coordinator) PreviewRetry(id string) (*Preview, error) {
	v, entries := c.validate(id)
	if !v.Valid {
		return nil, v.Err
	}
	return &Preview{Validation: v, Errors: entries}, nil
}

// Render writes the preview as plain text.
func (p *Preview) Render(w io.Writer) error {
	s := p.Validation.Session
	if _, err := fmt.Fprintf(w, "Session %s (%s layout)\n%d failed item(s):\n", s.ID, s.Layout, p.Validation.ErrorCount); err != nil {
		return err
	}
	for i, e := range p.Errors {
		where := string(e.Phase)
		if e.Stage != "" {
			where += "/" + string(e.Stage)
		}
		if e.Step != "" {
			where += "/" + e.Step
		}
		if _, err := fmt.Fprintf(w, "  %3d. %s [%s] %s\n       %s\n", i+1, e.Filename, e.ItemID, where, e.Error); err != nil {
			return err
		}
	}
	return nil
}

// RetryTargets returns one entry per failed source file, in errors.json
// order. Chunks of the same source collapse into the first entry seen, since
// a retry re-extracts whole sources.
func (c *Coordinator) RetryTargets(id string) ([]session.ErrorEntry, error) {
	preview, err := c.PreviewRetry(id)
	if err != nil {
		return nil, err
	}
	var sources []string
	var targets []session.ErrorEntry
	for _, e := range preview.Errors {
		if slices.Contains(sources, e.SourcePath) {
			continue
		}
		sources = append(sources, e.SourcePath)
		targets = append(targets, e)
	}
	return targets, nil
}

// SourcePaths returns the source paths of entries.
func SourcePaths(entries []session.ErrorEntry) []string {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.SourcePath
	}
	return paths
}
