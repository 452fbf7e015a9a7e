package script

import "errors"

// ErrNotFound is returned when no candidate path for a script exists.
var ErrNotFound = errors.New("script: not found")
