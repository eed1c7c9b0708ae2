// Package simplified reads conversation exports that have already been split
// into one JSON conversation per file.
package simplified

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/vellum/core"
)

// Name identifies this provider in manifests and on the command line.
const Name = "simplified"

var (
	// ErrMalformedConversation is returned when a file is not a simplified conversation.
	ErrMalformedConversation = errors.New("malformed conversation")

	// ErrNoMessages is returned for conversations without any text messages.
	ErrNoMessages = errors.New("conversation has no text messages")
)

// Extractor implements the simplified export provider.
type Extractor struct {
	logger *slog.Logger
}

// New creates a simplified extractor.
func New() *Extractor {
	return &Extractor{logger: slog.Default().With("component", "simplified-provider")}
}

// Name returns the provider name.
func (e *Extractor) Name() string {
	return Name
}

// DiscoverRawItems yields one item per *.json file under input, in lexical
// path order. input may also name a single file. Hidden files and
// directories are ignored. Item paths are relative to input.
func (e *Extractor) DiscoverRawItems(ctx context.Context, input string) iter.Seq2[*core.ProcessingItem, error] {
	return func(yield func(*core.ProcessingItem, error) bool) {
		info, err := os.Stat(input)
		if err != nil {
			yield(nil, fmt.Errorf("stat input: %w", err))
			return
		}
		root := input
		if !info.IsDir() {
			root = filepath.Dir(input)
		}

		err = filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != input && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			item, err := e.readItem(root, path)
			if err != nil {
				return err
			}
			if !yield(item, nil) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			yield(nil, err)
		}
	}
}

func (e *Extractor) readItem(root, path string) (*core.ProcessingItem, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, err
	}

	item := core.NewProcessingItem(filepath.ToSlash(rel), content)
	item.Metadata.Provider = Name

	// Metadata is best effort here; parse failures are reported per item
	// when the conversation is built.
	var conv Conversation
	if err := json.Unmarshal(content, &conv); err == nil {
		item.Metadata.ConversationID = conv.ConversationID
		item.Metadata.Title = conv.Title
		item.Metadata.MessageCount = len(conv.Messages)
	} else {
		e.logger.Debug("conversation did not parse during discovery", "path", item.SourcePath, "err", err)
	}
	return item, nil
}

// BuildConversationForChunking parses the item content.
func (e *Extractor) BuildConversationForChunking(item *core.ProcessingItem) (*core.Conversation, error) {
	var conv Conversation
	if err := json.Unmarshal([]byte(item.Content), &conv); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedConversation, item.SourcePath, err)
	}
	out := conv.toCore()
	if len(out.Messages) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMessages, item.SourcePath)
	}
	return out, nil
}

// FormatChunk renders a chunk back into the simplified JSON shape.
func (e *Extractor) FormatChunk(conv *core.Conversation) ([]byte, error) {
	return json.Marshal(fromCore(conv))
}
