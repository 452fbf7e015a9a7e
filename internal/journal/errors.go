package journal

import "errors"

// Domain errors for the journal.
var (
	// ErrNotFound is returned when a command id is not in the journal.
	ErrNotFound = errors.New("journal entry not found")
)
