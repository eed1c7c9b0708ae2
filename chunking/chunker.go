package chunking

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/poiesic/vellum/core"
)

const (
	// DefaultThreshold is the conversation size, in bytes, at or above which
	// a conversation is split into chunks.
	DefaultThreshold = 25000

	// DefaultOverlapMessages is the number of trailing messages carried into
	// the next chunk.
	DefaultOverlapMessages = 2
)

// Formatter serializes a chunk conversation back into item content.
// Providers supply their own so chunk content keeps the provider's format.
type Formatter func(conv *core.Conversation) ([]byte, error)

// Sizer measures a single message.
type Sizer func(msg core.Message) int

// Chunker splits oversized conversations into ordered, overlapping windows.
type Chunker struct {
	threshold int
	overlap   int
	format    Formatter
	size      Sizer
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithThreshold sets the chunking threshold in bytes.
func WithThreshold(threshold int) Option {
	return func(c *Chunker) error {
		if threshold <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidThreshold, threshold)
		}
		c.threshold = threshold
		return nil
	}
}

// WithOverlapMessages sets how many trailing messages are repeated at the
// start of the following chunk.
func WithOverlapMessages(n int) Option {
	return func(c *Chunker) error {
		if n < 0 {
			return fmt.Errorf("%w: %d", ErrInvalidOverlap, n)
		}
		c.overlap = n
		return nil
	}
}

// WithFormatter sets the hook used to render chunk content.
func WithFormatter(f Formatter) Option {
	return func(c *Chunker) error {
		if f != nil {
			c.format = f
		}
		return nil
	}
}

// WithSizer sets the message size function.
func WithSizer(s Sizer) Option {
	return func(c *Chunker) error {
		if s != nil {
			c.size = s
		}
		return nil
	}
}

// NewChunker creates a chunker with the default threshold and overlap.
func NewChunker(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		threshold: DefaultThreshold,
		overlap:   DefaultOverlapMessages,
		format:    FormatPlain,
		size:      MessageSize,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Threshold returns the configured threshold.
func (c *Chunker) Threshold() int {
	return c.threshold
}

// Size returns the total size of a conversation's messages.
func (c *Chunker) Size(conv *core.Conversation) int {
	return c.sizeOf(conv.Messages)
}

// Split divides the conversation behind item into chunk items.
//
// A conversation whose size is below the threshold yields the item itself,
// unchunked. At or above the threshold every returned item carries ChunkInfo,
// even when there is only one chunk. Chunk ids derive from the chunk content
// and "<source path>#chunk-<index>", and all chunks share the parent's id.
func (c *Chunker) Split(item *core.ProcessingItem, conv *core.Conversation) ([]*core.ProcessingItem, error) {
	if conv == nil || len(conv.Messages) == 0 {
		return nil, ErrEmptyConversation
	}
	if c.sizeOf(conv.Messages) < c.threshold {
		return []*core.ProcessingItem{item}, nil
	}

	windows := c.windows(conv.Messages)
	out := make([]*core.ProcessingItem, 0, len(windows))
	for i, window := range windows {
		chunkConv := &core.Conversation{
			ID:       conv.ID,
			Title:    conv.Title,
			Messages: window,
		}
		content, err := c.format(chunkConv)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %w", ErrFormat, i, err)
		}

		chunk := &core.ProcessingItem{
			ItemID:     core.GenerateFileID(content, fmt.Sprintf("%s#chunk-%d", item.SourcePath, i)),
			SourcePath: item.SourcePath,
			Status:     core.ItemPending,
			Metadata:   item.Metadata,
			Content:    string(content),
			Chunk: &core.ChunkInfo{
				Index:        i,
				Total:        len(windows),
				ParentItemID: item.ItemID,
			},
		}
		chunk.Metadata.Extra = maps.Clone(item.Metadata.Extra)
		chunk.Metadata.MessageCount = len(window)
		out = append(out, chunk)
	}
	return out, nil
}

// windows walks messages left to right, closing a window whenever the next
// message would bring a non-empty window to the threshold. The trailing
// overlap of a closed window opens the next one, trimmed from the front
// until the incoming message fits.
func (c *Chunker) windows(msgs []core.Message) [][]core.Message {
	var (
		out     [][]core.Message
		cur     []core.Message
		curSize int
	)
	for _, msg := range msgs {
		msgSize := c.size(msg)
		if len(cur) > 0 && curSize+msgSize >= c.threshold {
			out = append(out, cur)

			carry := cur[max(0, len(cur)-c.overlap):]
			carrySize := c.sizeOf(carry)
			for len(carry) > 0 && carrySize+msgSize >= c.threshold {
				carrySize -= c.size(carry[0])
				carry = carry[1:]
			}
			cur = slices.Clone(carry)
			curSize = carrySize
		}
		cur = append(cur, msg)
		curSize += msgSize
	}
	return append(out, cur)
}

func (c *Chunker) sizeOf(msgs []core.Message) int {
	total := 0
	for _, m := range msgs {
		total += c.size(m)
	}
	return total
}

// MessageSize is the default Sizer: the byte length of role and text.
func MessageSize(msg core.Message) int {
	return len(msg.Role) + len(msg.Text)
}

// FormatPlain is the default Formatter. It renders "role: text" blocks
// separated by blank lines.
func FormatPlain(conv *core.Conversation) ([]byte, error) {
	var b strings.Builder
	for i, m := range conv.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Text)
	}
	return []byte(b.String()), nil
}
