package store

import "fmt"

// MonAnt is the monitor key of antenna n.
func MonAnt(n int) string { return fmt.Sprintf("/mon/ant/%d", n) }

// MonBeb is the backend monitor key of antenna n.
func MonBeb(n int) string { return fmt.Sprintf("/mon/beb/%d", n) }

// CmdAnt is the command key of antenna n. Antenna 0 is the broadcast key.
func CmdAnt(n int) string { return fmt.Sprintf("/cmd/ant/%d", n) }

// CmdAll is the broadcast command key.
func CmdAll() string { return CmdAnt(0) }

// CalAnt is the calibration key of antenna n.
func CalAnt(n int) string { return fmt.Sprintf("/cal/ant/%d", n) }
