package storage

import (
	"context"

	"github.com/poiesic/vellum/core"
)

// Repository provides operations shared by every repository.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close releases resources held by the repository. It does not close
	// the shared backend.
	Close() error
}

// DocumentRepository stores the knowledge documents written by the Load stage.
type DocumentRepository interface {
	Repository

	// PutDocuments stores documents keyed by item id. Putting a document
	// whose id is already stored replaces it, keeping the original
	// CreatedAt, so repeated loads of the same item are idempotent.
	PutDocuments(ctx context.Context, docs ...*core.Document) error

	// GetDocument retrieves a document by item id.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.FileID) (*core.Document, error)

	// GetDocuments retrieves the documents that exist among ids, in the
	// order given. Missing ids are not an error.
	GetDocuments(ctx context.Context, ids ...core.FileID) ([]*core.Document, error)

	// ListDocuments returns every document ordered by item id.
	ListDocuments(ctx context.Context) ([]*core.Document, error)

	// GetDocumentsByCategory returns the ids of documents filed under category.
	GetDocumentsByCategory(ctx context.Context, category string) ([]core.FileID, error)

	// DeleteDocuments removes documents and their index entries.
	// Returns ErrNotFound if any document doesn't exist.
	DeleteDocuments(ctx context.Context, ids ...core.FileID) error
}

// CheckpointRepository stores per-item Transform results so a resumed run
// can restore them instead of calling the knowledge service again.
type CheckpointRepository interface {
	Repository

	// SaveCheckpoint persists a checkpoint, stamping UpdatedAt.
	SaveCheckpoint(ctx context.Context, checkpoint *core.TransformCheckpoint) error

	// LoadCheckpoint retrieves the checkpoint of an item at a stage.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, id core.FileID, stage core.StageType) (*core.TransformCheckpoint, error)

	// DeleteCheckpoint removes a checkpoint. Deleting a missing checkpoint
	// is not an error.
	DeleteCheckpoint(ctx context.Context, id core.FileID, stage core.StageType) error
}
