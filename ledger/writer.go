package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/poiesic/vellum/core"
)

// Writer appends records to a ledger file.
//
// The file is opened, appended and closed on every call, so a crash between
// records leaves every earlier line intact. A line torn by a crash mid-write
// is terminated before the next record is written.
type Writer struct {
	path      string
	sessionID string
	phase     core.PhaseType
	now       func() time.Time
	mu        sync.Mutex
}

// NewWriter creates a writer for the ledger at path. Records without a
// session id or phase are stamped with the given values.
func NewWriter(path, sessionID string, phase core.PhaseType) *Writer {
	return &Writer{
		path:      path,
		sessionID: sessionID,
		phase:     phase,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Path returns the ledger file path.
func (w *Writer) Path() string {
	return w.path
}

// Append writes rec as a single JSON line.
func (w *Writer) Append(rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.now()
	}
	if rec.SessionID == "" {
		rec.SessionID = w.sessionID
	}
	if rec.Phase == "" {
		rec.Phase = w.phase
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode ledger record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	torn, err := endsMidLine(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to inspect ledger: %w", err)
	}
	if torn {
		line = append([]byte{'\n'}, line...)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to ledger: %w", err)
	}
	return f.Close()
}

// endsMidLine reports whether f is non-empty and lacks a trailing newline.
func endsMidLine(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}
