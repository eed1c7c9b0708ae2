package badger

import (
	"github.com/poiesic/vellum/core"
)

// Key prefixes for different data types
const (
	documentPrefix         = "docrec:"
	documentCategoryPrefix = "doccat:"
	checkpointPrefix       = "chkpt:"
)

// makeDocumentKey generates a key for a document by item id.
func makeDocumentKey(id core.FileID) []byte {
	return []byte(documentPrefix + string(id))
}

// makeDocumentCategoryKey generates a composite key for the category index.
// Format: prefix:category\x00id. The NUL separator keeps one category from
// being a prefix match for another.
func makeDocumentCategoryKey(category string, id core.FileID) []byte {
	buf := makePartialDocumentCategoryKey(category)
	return append(buf, id...)
}

// makePartialDocumentCategoryKey generates a partial key for category queries.
func makePartialDocumentCategoryKey(category string) []byte {
	buf := make([]byte, 0, len(documentCategoryPrefix)+len(category)+1+12)
	buf = append(buf, documentCategoryPrefix...)
	buf = append(buf, category...)
	return append(buf, 0)
}

// makeCheckpointKey generates a key for an item's checkpoint at a stage.
// Format: prefix:stage:id
func makeCheckpointKey(id core.FileID, stage core.StageType) []byte {
	return []byte(checkpointPrefix + string(stage) + ":" + string(id))
}
