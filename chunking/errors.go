package chunking

import "errors"

var (
	// ErrEmptyConversation is returned when a conversation has no messages.
	ErrEmptyConversation = errors.New("conversation has no messages")

	// ErrInvalidThreshold is returned for a non-positive threshold.
	ErrInvalidThreshold = errors.New("chunk threshold must be positive")

	// ErrInvalidOverlap is returned for a negative overlap.
	ErrInvalidOverlap = errors.New("chunk overlap cannot be negative")

	// ErrFormat is returned when the formatter hook fails on a chunk.
	ErrFormat = errors.New("failed to format chunk")
)
