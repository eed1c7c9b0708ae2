package session

import "errors"

var (
	// ErrBasePathRequired is returned when a manager has no base directory.
	ErrBasePathRequired = errors.New("session base path required")

	// ErrSessionTypeRequired is returned when a session type is empty.
	ErrSessionTypeRequired = errors.New("session type required")

	// ErrInvalidSessionType is returned for types that are not a single path element.
	ErrInvalidSessionType = errors.New("invalid session type")

	// ErrSessionNotFound is returned when no manifest exists for a session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSessionID is returned for ids not shaped like YYYYMMDD_HHMMSS.
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrAlreadyFinalized is returned when summaries were already written.
	ErrAlreadyFinalized = errors.New("session already finalized")
)
