package hwmc

import "errors"

// Domain errors for the service.
var (
	// ErrAlreadyStarted is returned by Start when the service is running.
	ErrAlreadyStarted = errors.New("service already started")

	// ErrNoSessions is returned by Start when discovery found no modules.
	ErrNoSessions = errors.New("no sessions to run")
)
