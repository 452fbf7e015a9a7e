package labjack

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// DataType is the encoding of a register value.
type DataType int

// Register data types, numbered as in the LJM library.
const (
	Uint16  DataType = 0
	Uint32  DataType = 1
	Int32   DataType = 2
	Float32 DataType = 3
	String  DataType = 98
	Byte    DataType = 99
)

// Words returns the number of 16-bit Modbus registers one value occupies.
// Byte and String registers are buffers and report 1.
func (t DataType) Words() int {
	switch t {
	case Uint32, Int32, Float32:
		return 2
	default:
		return 1
	}
}

func (t DataType) String() string {
	switch t {
	case Uint16:
		return "U16"
	case Uint32:
		return "U32"
	case Int32:
		return "I32"
	case Float32:
		return "F32"
	case String:
		return "STRING"
	case Byte:
		return "BYTE"
	default:
		return fmt.Sprintf("DataType(%d)", int(t))
	}
}

// ParseDataType accepts the short names used in configuration files.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "U16", "UINT16":
		return Uint16, nil
	case "U32", "UINT32":
		return Uint32, nil
	case "I32", "INT32":
		return Int32, nil
	case "F32", "FLOAT32":
		return Float32, nil
	case "STRING":
		return String, nil
	case "BYTE":
		return Byte, nil
	default:
		return 0, fmt.Errorf("%w: data type %q", ErrUnknownRegister, s)
	}
}

// encodeValue packs v into big-endian register bytes.
func encodeValue(t DataType, v float64) ([]byte, error) {
	switch t {
	case Uint16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(int64(v)))
		return b, nil
	case Uint32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(int64(v)))
		return b, nil
	case Int32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(int32(v)))
		return b, nil
	case Float32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, math.Float32bits(float32(v)))
		return b, nil
	default:
		return nil, fmt.Errorf("%w: cannot encode numeric value as %s", ErrTransport, t)
	}
}

// decodeValue unpacks one value of type t from the front of b.
func decodeValue(t DataType, b []byte) (float64, error) {
	if len(b) < 2*t.Words() {
		return 0, fmt.Errorf("%w: short response for %s", ErrTransport, t)
	}
	switch t {
	case Uint16:
		return float64(binary.BigEndian.Uint16(b)), nil
	case Uint32:
		return float64(binary.BigEndian.Uint32(b)), nil
	case Int32:
		return float64(int32(binary.BigEndian.Uint32(b))), nil
	case Float32:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b))), nil
	default:
		return 0, fmt.Errorf("%w: cannot decode %s as a number", ErrTransport, t)
	}
}
