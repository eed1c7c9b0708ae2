package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"

	"github.com/poiesic/vellum/core"
)

// lineKeys holds the fields every usable ledger line must carry.
// Pointers distinguish a missing key from an empty value.
type lineKeys struct {
	ItemID *string `json:"item_id"`
	Status *string `json:"status"`
	Stage  *string `json:"stage"`
}

func (k lineKeys) complete() bool {
	return k.ItemID != nil && *k.ItemID != "" && k.Status != nil && k.Stage != nil
}

// lines yields every non-blank line of the ledger at path. A missing file
// yields nothing. Read errors end the sequence after a warning.
func lines(path string, logger *slog.Logger) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		f, err := os.Open(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("failed to open ledger", "path", path, "error", err)
			}
			return
		}
		defer f.Close()

		r := bufio.NewReader(f)
		for {
			line, err := r.ReadBytes('\n')
			if line = bytes.TrimSpace(line); len(line) > 0 {
				if !yield(line) {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					logger.Warn("failed to read ledger", "path", path, "error", err)
				}
				return
			}
		}
	}
}

// Records yields every decodable, complete record in the ledger at path in
// file order. Other lines are skipped.
func Records(path string, logger *slog.Logger) iter.Seq[Record] {
	if logger == nil {
		logger = slog.Default()
	}
	return func(yield func(Record) bool) {
		lineNo := 0
		for line := range lines(path, logger) {
			lineNo++
			var keys lineKeys
			if err := json.Unmarshal(line, &keys); err != nil || !keys.complete() {
				logger.Debug("skipping unusable ledger line", "path", path, "line", lineNo)
				continue
			}
			var rec Record
			if err := json.Unmarshal(line, &rec); err != nil {
				logger.Debug("skipping undecodable ledger line", "path", path, "line", lineNo, "error", err)
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// CountDistinct returns the number of distinct item ids that have at least
// one record with the given stage and status.
func CountDistinct(path string, stage core.StageType, status Status, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	return len(collect(path, stage, status, logger))
}

func collect(path string, stage core.StageType, status Status, logger *slog.Logger) map[core.FileID]struct{} {
	ids := make(map[core.FileID]struct{})
	for line := range lines(path, logger) {
		var keys lineKeys
		if err := json.Unmarshal(line, &keys); err != nil || !keys.complete() {
			continue
		}
		if *keys.Stage != string(stage) || *keys.Status != string(status) {
			continue
		}
		ids[core.FileID(*keys.ItemID)] = struct{}{}
	}
	return ids
}
