package labjack

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/config"
)

// Register describes one named Modbus register of a T7.
type Register struct {
	Name    string
	Address uint16
	Type    DataType

	// Buffer registers stream consecutive values through a single
	// address instead of occupying a contiguous block.
	Buffer bool
}

// Flash constants for the user calibration area of internal flash.
const (
	FlashKeyAddr          uint16 = 61800
	FlashReadPointerAddr  uint16 = 61810
	FlashReadAddr         uint16 = 61812
	FlashEraseAddr        uint16 = 61820
	FlashWritePointerAddr uint16 = 61830
	FlashWriteAddr        uint16 = 61832

	// FlashUserKey unlocks the user area for erase and write.
	FlashUserKey = 0x6615E336

	// FlashPageSize is the granularity of an erase.
	FlashPageSize = 4096
)

// LuaCodeVersionAddr is the user RAM float the antenna script reports its
// version through.
const LuaCodeVersionAddr uint16 = 46000

// RegisterMap resolves register names to addresses and types.
type RegisterMap struct {
	named map[string]Register
}

// Indexed register families: NAME<n>SUFFIX with base address and stride.
type family struct {
	prefix string
	suffix string
	max    int
	base   uint16
	stride uint16
	typ    DataType
}

var families = []family{
	{prefix: "AIN", max: 254, base: 0, stride: 2, typ: Float32},
	{prefix: "DIO", max: 22, base: 2000, stride: 1, typ: Uint16},
	{prefix: "FIO", max: 7, base: 2000, stride: 1, typ: Uint16},
	{prefix: "EIO", max: 7, base: 2008, stride: 1, typ: Uint16},
	{prefix: "CIO", max: 3, base: 2016, stride: 1, typ: Uint16},
	{prefix: "MIO", max: 2, base: 2020, stride: 1, typ: Uint16},
	{prefix: "USER_RAM", suffix: "_F32", max: 39, base: 46000, stride: 2, typ: Float32},
	{prefix: "USER_RAM", suffix: "_I32", max: 9, base: 46080, stride: 2, typ: Int32},
	{prefix: "USER_RAM", suffix: "_U32", max: 39, base: 46100, stride: 2, typ: Uint32},
	{prefix: "USER_RAM", suffix: "_U16", max: 19, base: 46180, stride: 1, typ: Uint16},
}

var indexedName = regexp.MustCompile(`^([A-Z_]+?)(\d+)(_[A-Z0-9]+)?$`)

func defaultNamed() map[string]Register {
	regs := []Register{
		{Name: "AIN_ALL_RANGE", Address: 43900, Type: Float32},
		{Name: "TEMPERATURE_DEVICE_K", Address: 60052, Type: Float32},

		{Name: "DIO_STATE", Address: 2800, Type: Uint32},
		{Name: "FIO_STATE", Address: 2500, Type: Uint16},
		{Name: "EIO_STATE", Address: 2501, Type: Uint16},
		{Name: "CIO_STATE", Address: 2502, Type: Uint16},
		{Name: "MIO_STATE", Address: 2503, Type: Uint16},
		{Name: "FIO_DIRECTION", Address: 2600, Type: Uint16},
		{Name: "EIO_DIRECTION", Address: 2601, Type: Uint16},
		{Name: "CIO_DIRECTION", Address: 2602, Type: Uint16},
		{Name: "MIO_DIRECTION", Address: 2603, Type: Uint16},

		{Name: "PRODUCT_ID", Address: 60000, Type: Float32},
		{Name: "HARDWARE_VERSION", Address: 60002, Type: Float32},
		{Name: "FIRMWARE_VERSION", Address: 60004, Type: Float32},
		{Name: "BOOTLOADER_VERSION", Address: 60006, Type: Float32},
		{Name: "SERIAL_NUMBER", Address: 60028, Type: Uint32},
		{Name: "DEVICE_NAME_DEFAULT", Address: 60500, Type: String, Buffer: true},
		{Name: "IO_CONFIG_CHECK_FOR_FACTORY", Address: 49002, Type: Uint16},

		{Name: "LUA_RUN", Address: 6000, Type: Uint32},
		{Name: "LUA_SOURCE_SIZE", Address: 6012, Type: Uint32},
		{Name: "LUA_SOURCE_WRITE", Address: 6014, Type: Byte, Buffer: true},
		{Name: "LUA_LOAD_SAVED", Address: 6016, Type: Uint32},
		{Name: "LUA_SAVE_TO_FLASH", Address: 6018, Type: Uint32},
		{Name: "LUA_DEBUG_ENABLE", Address: 6020, Type: Uint32},
		{Name: "LUA_RUN_DEFAULT", Address: 48150, Type: Uint32},

		{Name: "INTERNAL_FLASH_KEY", Address: FlashKeyAddr, Type: Int32},
		{Name: "INTERNAL_FLASH_READ_POINTER", Address: FlashReadPointerAddr, Type: Int32},
		{Name: "INTERNAL_FLASH_READ", Address: FlashReadAddr, Type: Float32, Buffer: true},
		{Name: "INTERNAL_FLASH_ERASE", Address: FlashEraseAddr, Type: Int32},
		{Name: "INTERNAL_FLASH_WRITE_POINTER", Address: FlashWritePointerAddr, Type: Int32},
		{Name: "INTERNAL_FLASH_WRITE", Address: FlashWriteAddr, Type: Float32, Buffer: true},
	}
	m := make(map[string]Register, len(regs))
	for _, r := range regs {
		m[r.Name] = r
	}
	return m
}

// NewRegisterMap returns the built-in T7 register map.
func NewRegisterMap() *RegisterMap {
	return &RegisterMap{named: defaultNamed()}
}

// Override replaces or adds a named register.
//
// Parameters:
//   - name: register name, case-insensitive
//   - address: Modbus start address
//   - typ: data type name such as "F32" or "U16"
//
// Returns:
//   - error: if the address or type is invalid
func (m *RegisterMap) Override(name string, address int, typ string) error {
	if address < 0 || address > 0xFFFF {
		return fmt.Errorf("%w: %s address %d out of range", ErrUnknownRegister, name, address)
	}
	t, err := ParseDataType(typ)
	if err != nil {
		return err
	}
	key := strings.ToUpper(strings.TrimSpace(name))
	m.named[key] = Register{
		Name:    key,
		Address: uint16(address),
		Type:    t,
		Buffer:  t == Byte || t == String,
	}
	return nil
}

// OverrideAll applies the register entries of the hardware config in
// name order and stops at the first invalid one.
func (m *RegisterMap) OverrideAll(regs map[string]config.RegisterConfig) error {
	names := make([]string, 0, len(regs))
	for name := range regs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := m.Override(name, regs[name].Address, regs[name].Type); err != nil {
			return err
		}
	}
	return nil
}

// Lookup resolves a register name.
func (m *RegisterMap) Lookup(name string) (Register, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if r, ok := m.named[key]; ok {
		return r, nil
	}

	match := indexedName.FindStringSubmatch(key)
	if match != nil {
		n, err := strconv.Atoi(match[2])
		if err == nil {
			for _, f := range families {
				if f.prefix != match[1] || f.suffix != match[3] || n > f.max {
					continue
				}
				return Register{
					Name:    key,
					Address: f.base + uint16(n)*f.stride,
					Type:    f.typ,
				}, nil
			}
		}
	}
	return Register{}, fmt.Errorf("%w: %q", ErrUnknownRegister, name)
}

// MustLookup is Lookup for names known to be in the built-in map.
func (m *RegisterMap) MustLookup(name string) Register {
	r, err := m.Lookup(name)
	if err != nil {
		panic(err)
	}
	return r
}
