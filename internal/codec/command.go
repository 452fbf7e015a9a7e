package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Antenna command names. Matching is case-insensitive.
const (
	CmdNoiseA = "noise_a_on"
	CmdNoiseB = "noise_b_on"
	CmdMove   = "move"
	CmdHalt   = "halt"
	CmdScript = "script"
)

// Registers written by antenna commands.
const (
	RegNoiseA     = "EIO3"
	RegNoiseB     = "EIO4"
	RegMovePos    = "USER_RAM1_F32"
	RegMotionFlag = "USER_RAM0_U16"
)

// Motion flag values understood by the drive script.
const (
	MotionHalt = 1
	MotionMove = 2
)

// Command is a parsed command document.
type Command struct {
	// Name is lower-cased.
	Name string
	// Value is the raw "val" member, nil when absent.
	Value json.RawMessage
}

type commandDoc struct {
	Cmd string          `json:"cmd"`
	Val json.RawMessage `json:"val,omitempty"`
}

// ParseCommand decodes a {"cmd": name, "val": value} document.
func ParseCommand(data []byte) (Command, error) {
	var doc commandDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	name := strings.ToLower(strings.TrimSpace(doc.Cmd))
	if name == "" {
		return Command{}, fmt.Errorf("%w: missing cmd", ErrMalformed)
	}
	val := doc.Val
	if bytes.Equal(bytes.TrimSpace(val), []byte("null")) {
		val = nil
	}
	return Command{Name: name, Value: val}, nil
}

// EncodeCommand builds a command document. A nil val omits the "val" member.
func EncodeCommand(name string, val any) ([]byte, error) {
	doc := commandDoc{Cmd: name}
	if val != nil {
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encoding command value: %w", err)
		}
		doc.Val = raw
	}
	return json.Marshal(doc)
}

// HasValue reports whether the document carried a "val" member.
func (c Command) HasValue() bool {
	return len(c.Value) > 0
}

// Float coerces the value to a float. Numbers and numeric strings are
// accepted; anything else, including NaN and infinities, is rejected.
func (c Command) Float() (float64, error) {
	if !c.HasValue() {
		return 0, fmt.Errorf("%w: %s requires a value", ErrInvalidArgument, c.Name)
	}

	var f float64
	if err := json.Unmarshal(c.Value, &f); err != nil {
		var s string
		if json.Unmarshal(c.Value, &s) != nil {
			return 0, fmt.Errorf("%w: %s value %s is not numeric", ErrInvalidArgument, c.Name, c.Value)
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s value %q is not numeric", ErrInvalidArgument, c.Name, s)
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s value is not finite", ErrInvalidArgument, c.Name)
	}
	return f, nil
}

// Bool coerces the value to a boolean. JSON booleans, the numbers 0 and 1,
// and the strings true/false/on/off are accepted.
func (c Command) Bool() (bool, error) {
	if !c.HasValue() {
		return false, fmt.Errorf("%w: %s requires a value", ErrInvalidArgument, c.Name)
	}

	var b bool
	if err := json.Unmarshal(c.Value, &b); err == nil {
		return b, nil
	}
	var n float64
	if err := json.Unmarshal(c.Value, &n); err == nil {
		switch n {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	}
	var s string
	if err := json.Unmarshal(c.Value, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "on":
			return true, nil
		case "false", "off":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %s value %s is not a boolean", ErrInvalidArgument, c.Name, c.Value)
}

// Text returns a string value unchanged.
func (c Command) Text() (string, error) {
	var s string
	if !c.HasValue() || json.Unmarshal(c.Value, &s) != nil || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %s requires a non-empty string", ErrInvalidArgument, c.Name)
	}
	return s, nil
}

// Write is a single named register write.
type Write struct {
	Name  string
	Value float64
}

// Action is what an antenna command resolves to: register writes to issue
// in order, or a script to load.
type Action struct {
	Writes []Write
	Script string
}

// NoiseValue returns the register value for a noise diode state.
// The diode drive line is active low.
func NoiseValue(on bool) float64 {
	if on {
		return 0
	}
	return 1
}

// PlanAntenna maps a command onto the antenna command table.
//
// For move, the position register is written before the motion flag so
// the target is valid when the drive script sees the flag.
func PlanAntenna(c Command) (Action, error) {
	switch c.Name {
	case CmdNoiseA, CmdNoiseB:
		on, err := c.Bool()
		if err != nil {
			return Action{}, err
		}
		reg := RegNoiseA
		if c.Name == CmdNoiseB {
			reg = RegNoiseB
		}
		return Action{Writes: []Write{{Name: reg, Value: NoiseValue(on)}}}, nil

	case CmdMove:
		pos, err := c.Float()
		if err != nil {
			return Action{}, err
		}
		return Action{Writes: []Write{
			{Name: RegMovePos, Value: pos},
			{Name: RegMotionFlag, Value: MotionMove},
		}}, nil

	case CmdHalt:
		return Action{Writes: []Write{{Name: RegMotionFlag, Value: MotionHalt}}}, nil

	case CmdScript:
		name, err := c.Text()
		if err != nil {
			return Action{}, err
		}
		return Action{Script: name}, nil

	default:
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownCommand, c.Name)
	}
}
