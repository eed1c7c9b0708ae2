package retry

import (
	"errors"

	"github.com/poiesic/vellum/session"
)

var (
	// ErrBaseDirRequired is returned when a coordinator has no sessions directory.
	ErrBaseDirRequired = errors.New("sessions directory required")

	// ErrSessionNotFound is returned when no import session has the given id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoErrorsFile is returned when a session has no errors.json.
	ErrNoErrorsFile = errors.New("session has no errors file")

	// ErrEmptyErrors is returned when a session's errors.json lists nothing.
	ErrEmptyErrors = errors.New("session has no recorded errors")

	// ErrInvalidSessionID is returned for ids that are not session timestamps.
	ErrInvalidSessionID = session.ErrInvalidSessionID
)
