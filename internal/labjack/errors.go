package labjack

import "errors"

// Sentinel errors for module access.
var (
	// ErrTransport wraps every register read or write failure.
	ErrTransport = errors.New("labjack: transport error")

	// ErrUnknownRegister is returned for names missing from the register map.
	ErrUnknownRegister = errors.New("labjack: unknown register")

	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("labjack: connection closed")

	// ErrFlashLocked is returned by the simulator when internal flash is
	// written without the unlock key.
	ErrFlashLocked = errors.New("labjack: internal flash locked")
)
