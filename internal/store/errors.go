package store

import "errors"

// Sentinel errors for store operations.
var (
	// ErrUnavailable is returned when the store cannot be reached.
	ErrUnavailable = errors.New("store: unavailable")

	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("store: connection closed")

	// ErrUnknownWatch is returned when cancelling a watch that does not exist.
	ErrUnknownWatch = errors.New("store: unknown watch")

	// ErrUnknownBackend is returned for an unsupported backend name.
	ErrUnknownBackend = errors.New("store: unknown backend")
)
