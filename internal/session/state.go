package session

import "fmt"

// State is the lifecycle state of a session.
type State int

// Session states, in lifecycle order.
const (
	StateNew State = iota
	StateInitializing
	StateRunning
	StateStopping
	StateStopped
)

var stateNames = map[State]string{
	StateNew:          "new",
	StateInitializing: "initializing",
	StateRunning:      "running",
	StateStopping:     "stopping",
	StateStopped:      "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st, name := range stateNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Role is the kind of module a session drives.
type Role int

// Module roles.
const (
	RoleUnknown Role = iota
	RoleAntenna
	RoleBackend
)

func (r Role) String() string {
	switch r {
	case RoleAntenna:
		return "antenna"
	case RoleBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name written by MarshalText.
func (r *Role) UnmarshalText(text []byte) error {
	switch string(text) {
	case "antenna":
		*r = RoleAntenna
	case "backend":
		*r = RoleBackend
	case "unknown":
		*r = RoleUnknown
	default:
		return fmt.Errorf("unknown role %q", text)
	}
	return nil
}
