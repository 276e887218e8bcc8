package storage

import "errors"

// Sentinel errors every backend maps its driver failures onto, so callers
// can errors.Is against one set regardless of the store behind the
// interface.
var (
	// ErrNotFound reports that the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput reports a nil or malformed argument.
	ErrInvalidInput = errors.New("invalid input")
)
