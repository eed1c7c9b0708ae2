package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/vellum/core"
	"github.com/poiesic/vellum/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) *DocumentRepository {
	return &DocumentRepository{backend: backend}
}

// Close is a no-op; the backend is closed by its owner.
func (r *DocumentRepository) Close() error {
	return nil
}

// PutDocuments stores documents keyed by item id, replacing earlier versions.
func (r *DocumentRepository) PutDocuments(ctx context.Context, docs ...*core.Document) error {
	for _, doc := range docs {
		if doc == nil || !doc.ItemID.Valid() {
			return storage.ErrInvalidDocument
		}
	}
	return r.backend.Update(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, doc := range docs {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := makeDocumentKey(doc.ItemID)

			existing, err := getDocument(tx, key)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				if doc.CreatedAt.IsZero() {
					doc.CreatedAt = now
				}
			case err != nil:
				return err
			default:
				doc.CreatedAt = existing.CreatedAt
				if existing.Category != doc.Category {
					if err := tx.Delete(makeDocumentCategoryKey(existing.Category, doc.ItemID)); err != nil {
						return err
					}
				}
			}
			doc.UpdatedAt = now

			if err := tx.Set(key, storage.MarshalDocument(doc)); err != nil {
				return err
			}
			if doc.Category != "" {
				catKey := makeDocumentCategoryKey(doc.Category, doc.ItemID)
				if err := tx.Set(catKey, storage.MarshalFileID(doc.ItemID)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GetDocument retrieves a document by item id.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.FileID) (*core.Document, error) {
	var doc *core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		doc, err = getDocument(tx, makeDocumentKey(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocuments retrieves the documents that exist among ids.
func (r *DocumentRepository) GetDocuments(ctx context.Context, ids ...core.FileID) ([]*core.Document, error) {
	docs := make([]*core.Document, 0, len(ids))
	err := r.backend.View(func(tx *badger.Txn) error {
		for _, id := range ids {
			doc, err := getDocument(tx, makeDocumentKey(id))
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// ListDocuments returns every document ordered by item id.
func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	var docs []*core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(documentPrefix), func(_, val []byte) error {
			doc, err := storage.UnmarshalDocument(val)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// GetDocumentsByCategory returns the ids of documents filed under category.
func (r *DocumentRepository) GetDocumentsByCategory(ctx context.Context, category string) ([]core.FileID, error) {
	var ids []core.FileID
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanPrefix(tx, makePartialDocumentCategoryKey(category), func(_, val []byte) error {
			id, err := storage.UnmarshalFileID(val)
			if err != nil {
				return err
			}
			ids = append(ids, id)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteDocuments removes documents and their category index entries.
// Nothing is deleted if any id is missing.
func (r *DocumentRepository) DeleteDocuments(ctx context.Context, ids ...core.FileID) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makeDocumentKey(id)
			doc, err := getDocument(tx, key)
			if err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
			if doc.Category != "" {
				if err := tx.Delete(makeDocumentCategoryKey(doc.Category, id)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func getDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: document %s", storage.ErrNotFound, key[len(documentPrefix):])
	}
	if err != nil {
		return nil, err
	}
	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		doc, unmarshalErr = storage.UnmarshalDocument(val)
		return unmarshalErr
	})
	return doc, err
}
