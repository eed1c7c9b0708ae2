package ai

import "errors"

var (
	// ErrEmptyResponse is returned when a service answers with no content.
	ErrEmptyResponse = errors.New("empty response from model")

	// ErrMalformedResponse is returned when a response cannot be parsed after
	// every allowed attempt.
	ErrMalformedResponse = errors.New("malformed response from model")

	// ErrUnknownCategory is returned when a classifier answer matches no
	// configured category.
	ErrUnknownCategory = errors.New("unknown category")
)
