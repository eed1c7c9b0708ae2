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
	"errors"
	"fmt"
)

// Domain validation errors
var (
	// ErrInvalidItem indicates a ProcessingItem failed validation.
	ErrInvalidItem = errors.New("invalid processing item")

	// ErrInvalidFileID indicates an id is not 12 lowercase hex characters.
	ErrInvalidFileID = errors.New("invalid file id")

	// ErrEmptySourcePath indicates the SourcePath field is empty.
	ErrEmptySourcePath = errors.New("source path cannot be empty")

	// ErrInvalidChunk indicates chunk fields are out of range.
	ErrInvalidChunk = errors.New("invalid chunk info")

	// ErrInvalidTransition indicates a backwards or post-terminal status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnknownPhase indicates an unrecognized phase type.
	ErrUnknownPhase = errors.New("unknown phase type")

	// ErrUnknownStage indicates an unrecognized stage type.
	ErrUnknownStage = errors.New("unknown stage type")
)

// TransitionError describes a rejected item status transition.
type TransitionError struct {
	From ItemStatus
	To   ItemStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
