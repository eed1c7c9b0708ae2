package ai

import "context"

// KnowledgeExtractor turns raw conversation text into a structured
// knowledge document. Implementations must be thread-safe for concurrent use.
type KnowledgeExtractor interface {
	// ExtractKnowledge analyzes text and returns the knowledge it contains.
	// Returns an error if the service fails or its response cannot be parsed.
	ExtractKnowledge(ctx context.Context, text string) (*Knowledge, error)
}

// Classifier files a document into one of a fixed set of categories.
// Implementations must be thread-safe for concurrent use.
type Classifier interface {
	// Classify returns the category that best fits text. The result is
	// always one of the configured categories.
	Classify(ctx context.Context, text string) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// KnowledgeExtractor returns the knowledge extraction service.
	KnowledgeExtractor() KnowledgeExtractor

	// Classifier returns the document classification service.
	Classifier() Classifier

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
