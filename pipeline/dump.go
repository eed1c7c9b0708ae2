package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/ledger"
)

const (
	// DumpPattern matches committed extract dump files.
	DumpPattern = "data-dump-*.jsonl"

	// DefaultItemsPerDump is the number of items written before rotating.
	DefaultItemsPerDump = 1000

	dumpNameFormat = "data-dump-%04d.jsonl"
	partialSuffix  = ".partial"

	// StepsFileName and ErrorDetailsFileName are bookkeeping files that may
	// sit next to dumps.
	StepsFileName        = "steps.jsonl"
	ErrorDetailsFileName = "error_details.jsonl"
)

// reservedFiles never count as extract output even if they match DumpPattern.
var reservedFiles = []string{StepsFileName, ErrorDetailsFileName, ledger.FileName}

// ShouldLoadExtractFromOutput reports whether dir holds at least one
// committed extract dump, meaning Extract can be restored from disk instead
// of rerun.
func ShouldLoadExtractFromOutput(dir string) bool {
	return len(dumpFiles(dir)) > 0
}

// dumpFiles returns the committed dump files in dir in sorted order.
func dumpFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || slices.Contains(reservedFiles, name) {
			continue
		}
		if ok, _ := filepath.Match(DumpPattern, name); ok {
			files = append(files, filepath.Join(dir, name))
		}
	}
	slices.Sort(files)
	return files
}

// LoadExtractOutput streams the items stored in dir's dump files. Files are
// read in filename order so chunk order is preserved across rotations. Lines
// that fail to decode or validate are skipped with a warning. Cancelling ctx
// ends the stream with ctx's error.
func LoadExtractOutput(ctx context.Context, dir string, logger *slog.Logger) iter.Seq2[*core.ProcessingItem, error] {
	if logger == nil {
		logger = slog.Default()
	}
	return func(yield func(*core.ProcessingItem, error) bool) {
		for _, path := range dumpFiles(dir) {
			if !readDump(ctx, path, logger, yield) {
				return
			}
		}
	}
}

func readDump(ctx context.Context, path string, logger *slog.Logger, yield func(*core.ProcessingItem, error) bool) bool {
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("failed to open extract dump", "path", path, "error", err)
		return true
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return false
		}
		line, readErr := r.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			item := &core.ProcessingItem{}
			if err := json.Unmarshal(line, item); err != nil {
				logger.Warn("skipping unparseable dump line", "path", path, "line", lineNo, "error", err)
			} else if err := core.ValidateItem(item); err != nil {
				logger.Warn("skipping incomplete dump line", "path", path, "line", lineNo, "error", err)
			} else if !yield(item, nil) {
				return false
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				logger.Warn("failed to read extract dump", "path", path, "error", readErr)
			}
			return true
		}
	}
}

// DumpWriter writes extracted items to rotating JSONL dump files.
//
// Files are written under a ".partial" name and only renamed to their final
// data-dump-NNNN.jsonl names by Close, so an interrupted extract never looks
// resumable.
type DumpWriter struct {
	dir      string
	perFile  int
	index    int
	count    int
	total    int
	file     *os.File
	buf      *bufio.Writer
	partials []string
	closed   bool
}

// NewDumpWriter prepares dir for a fresh extract. Dumps left by an earlier
// run, committed or partial, are removed.
func NewDumpWriter(dir string, perFile int) (*DumpWriter, error) {
	if perFile <= 0 {
		perFile = DefaultItemsPerDump
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create extract output directory: %w", err)
	}
	stale, err := filepath.Glob(filepath.Join(dir, "*"+partialSuffix))
	if err != nil {
		return nil, err
	}
	for _, path := range append(stale, dumpFiles(dir)...) {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("failed to remove stale dump: %w", err)
		}
	}
	return &DumpWriter{dir: dir, perFile: perFile}, nil
}

// Dir returns the output directory.
func (w *DumpWriter) Dir() string {
	return w.dir
}

// Count returns the number of items written so far.
func (w *DumpWriter) Count() int {
	return w.total
}

// Write appends item to the current dump file.
func (w *DumpWriter) Write(item *core.ProcessingItem) error {
	if w.closed {
		return ErrDumpClosed
	}
	if w.file == nil || w.count >= w.perFile {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	line, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item %s: %w", item.ItemID, err)
	}
	if _, err := w.buf.Write(append(line, '\n')); err != nil {
		return err
	}
	w.count++
	w.total++
	return nil
}

func (w *DumpWriter) rotate() error {
	if err := w.closeFile(); err != nil {
		return err
	}
	w.index++
	path := filepath.Join(w.dir, fmt.Sprintf(dumpNameFormat, w.index)) + partialSuffix
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dump file: %w", err)
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.count = 0
	w.partials = append(w.partials, path)
	return nil
}

func (w *DumpWriter) closeFile() error {
	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil
	if err := w.buf.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Close flushes the current file and commits every partial dump under its
// final name. Closing twice is a no-op.
func (w *DumpWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.closeFile(); err != nil {
		return err
	}
	for _, partial := range w.partials {
		if err := os.Rename(partial, strings.TrimSuffix(partial, partialSuffix)); err != nil {
			return fmt.Errorf("failed to commit dump: %w", err)
		}
	}
	return nil
}

// Abort closes the current file and removes every partial dump.
func (w *DumpWriter) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.closeFile()
	for _, partial := range w.partials {
		if rmErr := os.Remove(partial); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
	}
	return err
}

// WriteDumpStep is the extract step that persists each item to the dump.
var WriteDumpStep = StepDef{
	Name: "write_dump",
	Run: func(_ context.Context, sc *StageContext, item *core.ProcessingItem) error {
		if sc.Dump == nil {
			return fmt.Errorf("%w: no dump writer", ErrMissingStageData)
		}
		return sc.Dump.Write(item)
	},
}
