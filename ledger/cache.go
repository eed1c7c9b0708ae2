package ledger

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/poiesic/vellum/core"
)

// CompletedItemsCache is the set of item ids that reached success at one
// stage. It is built once from the ledger and never changes afterwards.
type CompletedItemsCache struct {
	stage core.StageType
	ids   map[core.FileID]struct{}
}

// LoadCompletedItems replays the ledger at path and collects every item id
// with a success record for stage.
//
// A line counts only if it is valid JSON carrying item_id, status and stage.
// Everything else is skipped. A missing or empty ledger gives an empty cache.
func LoadCompletedItems(path string, stage core.StageType, logger *slog.Logger) *CompletedItemsCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &CompletedItemsCache{
		stage: stage,
		ids:   collect(path, stage, StatusSuccess, logger),
	}
	logger.Debug("loaded completed items", "stage", stage, "count", len(c.ids), "path", path)
	return c
}

// NewCompletedItemsCache builds a cache from explicit ids.
func NewCompletedItemsCache(stage core.StageType, ids ...core.FileID) *CompletedItemsCache {
	c := &CompletedItemsCache{stage: stage, ids: make(map[core.FileID]struct{}, len(ids))}
	for _, id := range ids {
		c.ids[id] = struct{}{}
	}
	return c
}

// Contains reports whether id already succeeded at the cache's stage.
// A nil cache contains nothing.
func (c *CompletedItemsCache) Contains(id core.FileID) bool {
	if c == nil {
		return false
	}
	_, ok := c.ids[id]
	return ok
}

// Len returns the number of completed items.
func (c *CompletedItemsCache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ids)
}

// Stage returns the stage the cache was built for.
func (c *CompletedItemsCache) Stage() core.StageType {
	if c == nil {
		return ""
	}
	return c.stage
}

// IDs returns the completed ids in sorted order.
func (c *CompletedItemsCache) IDs() []core.FileID {
	if c == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(c.ids))
}
