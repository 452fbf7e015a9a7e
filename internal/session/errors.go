package session

import "errors"

// Sentinel errors for session construction and command handling.
var (
	// ErrInvalidOptions is returned when a required option is missing.
	ErrInvalidOptions = errors.New("session: invalid options")

	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("session: already started")

	// ErrBusy is returned when a script command arrives while another
	// script is still being installed.
	ErrBusy = errors.New("session: script installation in progress")

	// ErrScriptNotRunning is returned when an installed script does not start.
	ErrScriptNotRunning = errors.New("session: script did not start")
)
