// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
)

// ValidateItem validates a ProcessingItem according to domain rules.
//
// Validation rules:
//   - ItemID must be a well-formed FileID
//   - SourcePath must not be empty
//   - Chunk info, when present, must have 0 <= Index < Total and a valid parent id
//
// NOT validated (populated by stages):
//   - TransformedContent, OutputPath
//   - Status (enforced by Transition instead)
func ValidateItem(item *ProcessingItem) error {
	if item == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidItem)
	}

	if !item.ItemID.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidItem, ErrInvalidFileID, item.ItemID)
	}

	if item.SourcePath == "" {
		return fmt.Errorf("%w: %w", ErrInvalidItem, ErrEmptySourcePath)
	}

	if err := ValidateChunk(item.Chunk); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}

	return nil
}

// ValidateChunk validates chunk info. A nil chunk is valid (not chunked).
func ValidateChunk(chunk *ChunkInfo) error {
	if chunk == nil {
		return nil
	}
	if chunk.Total < 1 {
		return fmt.Errorf("%w: total_chunks %d", ErrInvalidChunk, chunk.Total)
	}
	if chunk.Index < 0 || chunk.Index >= chunk.Total {
		return fmt.Errorf("%w: chunk_index %d of %d", ErrInvalidChunk, chunk.Index, chunk.Total)
	}
	if !chunk.ParentItemID.Valid() {
		return fmt.Errorf("%w: parent_item_id %q", ErrInvalidChunk, chunk.ParentItemID)
	}
	return nil
}

// ParsePhaseType converts a string to a PhaseType.
func ParsePhaseType(s string) (PhaseType, error) {
	for _, p := range PhaseTypes {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPhase, s)
}

// ParseStageType converts a string to a StageType.
func ParseStageType(s string) (StageType, error) {
	for _, st := range StageTypes {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStage, s)
}
