package codec

import "errors"

// Sentinel errors for decoding and command parsing.
var (
	// ErrShortSample is returned when a batched read has fewer values than the layout needs.
	ErrShortSample = errors.New("codec: sample too short")

	// ErrMalformed is returned when a store document cannot be parsed.
	ErrMalformed = errors.New("codec: malformed document")

	// ErrUnknownCommand is returned for command names outside the command table.
	ErrUnknownCommand = errors.New("codec: unknown command")

	// ErrInvalidArgument is returned when a command value cannot be coerced to the expected type.
	ErrInvalidArgument = errors.New("codec: invalid command argument")
)
