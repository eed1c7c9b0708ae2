// Package providers defines the per-provider Extractor collaborator used by
// the Import phase and a registry of the built-in providers.
package providers

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/providers/simplified"
)

// Extractor discovers raw items in an export and maps them to the
// provider-neutral conversation shape the chunker understands.
type Extractor interface {
	// Name is the identifier recorded in session manifests.
	Name() string

	// DiscoverRawItems walks input and yields one item per conversation.
	// A yielded error aborts the run; per-item problems must surface later
	// from BuildConversationForChunking instead.
	DiscoverRawItems(ctx context.Context, input string) iter.Seq2[*core.ProcessingItem, error]

	// BuildConversationForChunking parses an item's content. A nil
	// conversation with a nil error means the item is not chunkable.
	BuildConversationForChunking(item *core.ProcessingItem) (*core.Conversation, error)

	// FormatChunk serializes a chunk conversation in the provider's format.
	FormatChunk(conv *core.Conversation) ([]byte, error)
}

var registry = map[string]func() Extractor{
	simplified.Name: func() Extractor { return simplified.New() },
}

// Lookup returns a fresh extractor for name.
func Lookup(name string) (Extractor, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnsupportedProvider, name, Names())
	}
	return factory(), nil
}

// Names lists the registered providers in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
