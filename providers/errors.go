package providers

import "errors"

// ErrUnsupportedProvider is returned by Lookup for unknown provider names.
var ErrUnsupportedProvider = errors.New("unsupported provider")
