package discovery

import "errors"

// Sentinel errors for discovery.
var (
	// ErrInvalidOptions is returned when a required option is missing.
	ErrInvalidOptions = errors.New("discovery: invalid options")

	// ErrUnknownRole is returned for modules whose identity is not an
	// antenna or a backend.
	ErrUnknownRole = errors.New("discovery: unknown module role")

	// ErrDuplicate is returned when two modules claim the same location.
	ErrDuplicate = errors.New("discovery: duplicate module location")
)
