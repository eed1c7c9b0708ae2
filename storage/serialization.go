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

package storage

import (
	"fmt"

	"github.com/poiesic/vellum/core"
)

// MarshalFileID serializes a FileID for use as an index value.
func MarshalFileID(id core.FileID) []byte {
	return []byte(id)
}

// UnmarshalFileID deserializes a FileID written by MarshalFileID.
func UnmarshalFileID(data []byte) (core.FileID, error) {
	id := core.FileID(data)
	if !id.Valid() {
		return "", fmt.Errorf("%w: invalid file id %q", ErrSerializationFailed, data)
	}
	return id, nil
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	buf := make([]byte, core.DocumentMUS.Size(*doc))
	core.DocumentMUS.Marshal(*doc, buf)
	return buf
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	doc, _, err := core.DocumentMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &doc, nil
}

// MarshalCheckpoint serializes a TransformCheckpoint to bytes.
func MarshalCheckpoint(checkpoint *core.TransformCheckpoint) []byte {
	buf := make([]byte, core.TransformCheckpointMUS.Size(*checkpoint))
	core.TransformCheckpointMUS.Marshal(*checkpoint, buf)
	return buf
}

// UnmarshalCheckpoint deserializes a TransformCheckpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.TransformCheckpoint, error) {
	checkpoint, _, err := core.TransformCheckpointMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &checkpoint, nil
}
