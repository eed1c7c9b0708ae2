// Package storage defines the repositories the pipeline writes through.
//
// DocumentRepository holds the knowledge documents produced by the Load
// stage. CheckpointRepository holds per-item Transform results so a resumed
// run restores them instead of repeating external calls. Values are encoded
// with the versioned MUS serializers from core.
//
// The badger subpackage implements both on a single BadgerDB instance:
//
//	backend, err := badger.OpenBackend(path, false)
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//	docs := badger.NewDocumentRepository(backend)
//	checkpoints := badger.NewCheckpointRepository(backend)
//
// Tests use badger.NewMemoryRepositories for an in-memory store.
//
// All repository methods accept a context.Context and are safe for
// concurrent use.
package storage
