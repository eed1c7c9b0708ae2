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

package pipeline

import (
	"errors"
	"fmt"

	"github.com/poiesic/vellum/core"
)

var (
	// ErrStepFinished is returned when a terminal step is mutated.
	ErrStepFinished = errors.New("step already finished")

	// ErrStepNotStarted is returned when completing a step that never started.
	ErrStepNotStarted = errors.New("step not started")

	// ErrInvalidMaxAttempts is returned when maxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrHooksRequired is returned when an orchestrator runs without hooks.
	ErrHooksRequired = errors.New("phase hooks required")

	// ErrDumpClosed is returned when writing to a committed dump.
	ErrDumpClosed = errors.New("extract dump already closed")

	// ErrMissingStageData is returned when a stage is asked for state it does not have.
	ErrMissingStageData = errors.New("missing stage data")
)

// CrashError reports a failure that aborted a phase run.
// The caller is expected to record the phase as crashed.
type CrashError struct {
	Phase core.PhaseType
	Stage core.StageType
	Err   error
}

func (e *CrashError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("phase %s crashed: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("phase %s crashed in %s: %v", e.Phase, e.Stage, e.Err)
}

func (e *CrashError) Unwrap() error {
	return e.Err
}

// skipSignal is returned by a step to stop processing an item at the
// current stage and record it as skipped.
type skipSignal struct {
	reason string
}

func (s *skipSignal) Error() string {
	return "skipped: " + s.reason
}

// Skip returns an error that makes Stage.Process record the item as skipped
// with reason and run none of its remaining steps. The item keeps its status
// unless the step changed it.
func Skip(reason string) error {
	return &skipSignal{reason: reason}
}
