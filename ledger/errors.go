package ledger

import "errors"

var (
	// ErrIncompleteRecord is returned when a record misses a required field.
	ErrIncompleteRecord = errors.New("ledger record missing required field")

	// ErrInvalidStatus is returned for a record status outside success/failed/skipped.
	ErrInvalidStatus = errors.New("invalid ledger record status")
)
