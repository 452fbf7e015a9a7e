package labjack

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// Simulated module identities. Even positions are antennas numbered from
// one, odd positions are backends serving ten antennas each.
const (
	simProductID = 7
	simSerial    = 470010000
)

// SimDriver serves simulated modules from memory.
type SimDriver struct {
	mu       sync.Mutex
	regs     *RegisterMap
	devices  []*SimDevice
	failOpen map[int]error
}

// NewSimDriver creates n simulated modules.
func NewSimDriver(n int, regs *RegisterMap) *SimDriver {
	d := &SimDriver{regs: regs, failOpen: make(map[int]error)}
	for i := range n {
		d.devices = append(d.devices, NewSimDevice(regs, i))
	}
	return d
}

// Device returns the simulated module at index i.
func (d *SimDriver) Device(i int) *SimDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devices[i]
}

// FailOpen makes Open of module i return err.
func (d *SimDriver) FailOpen(i int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failOpen[i] = err
}

// ListAll returns every simulated module.
func (d *SimDriver) ListAll(ctx context.Context) ([]Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Descriptor, len(d.devices))
	for i := range d.devices {
		out[i] = Descriptor{
			Address: fmt.Sprintf("sim://%d", i),
			Serial:  uint32(simSerial + i),
			Index:   i,
		}
	}
	return out, nil
}

// Open connects to a simulated module.
func (d *SimDriver) Open(ctx context.Context, desc Descriptor) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.Index < 0 || desc.Index >= len(d.devices) {
		return nil, fmt.Errorf("%w: no simulated module %d", ErrTransport, desc.Index)
	}
	if err := d.failOpen[desc.Index]; err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrTransport, desc.Address, err)
	}
	return newConn(d.devices[desc.Index], d.regs, desc), nil
}

// WriteRecord is one register write seen by a simulated module.
type WriteRecord struct {
	Address uint16
	Data    []byte
}

// Value decodes the write as a value of type t.
func (w WriteRecord) Value(t DataType) float64 {
	v, err := decodeValue(t, w.Data)
	if err != nil {
		return math.NaN()
	}
	return v
}

// SimDevice is an in-memory T7: a holding register file plus emulation of
// internal flash and the Lua engine.
type SimDevice struct {
	mu   sync.Mutex
	regs *RegisterMap
	mem  map[uint16]uint16

	flash      map[int]float32
	flashKeyed bool
	readPtr    int
	writePtr   int
	luaSource  []byte
	luaSaved   []byte
	luaBroken  bool
	writes     []WriteRecord
	readErr    error
	writeErr   error
	closeCount int
}

// NewSimDevice creates a module in its nominal state: product 7, script
// loaded and running, flash erased, every alarm line inactive.
func NewSimDevice(regs *RegisterMap, index int) *SimDevice {
	s := &SimDevice{
		regs:  regs,
		mem:   make(map[uint16]uint16),
		flash: make(map[int]float32),
	}

	s.setName("PRODUCT_ID", simProductID)
	s.setName("HARDWARE_VERSION", 1.30)
	s.setName("FIRMWARE_VERSION", 1.0290)
	s.setName("BOOTLOADER_VERSION", 0.94)
	s.setName("SERIAL_NUMBER", float64(simSerial+index))
	s.setName("AIN_ALL_RANGE", 10)
	s.setName("TEMPERATURE_DEVICE_K", 300.15)

	name := make([]byte, 50)
	copy(name, fmt.Sprintf("T7-SIM-%02d", index))
	s.setBytes(s.regs.MustLookup("DEVICE_NAME_DEFAULT").Address, name)

	for ch := 0; ch < 128; ch++ {
		s.setName(fmt.Sprintf("AIN%d", ch), 0.5+0.001*float64(ch))
	}

	// FIO carries the module identity: antennas below 128 numbered from 1,
	// backends with the top bit set and their first antenna 1, 11, 21...
	var id uint32
	if index%2 == 0 {
		id = uint32(index/2+1) & 0x7f
	} else {
		id = 0x80 | uint32(index/2*10+1)&0x7f
	}
	s.setDIO(id | 1<<11 | 1<<12 | 1<<13 | 1<<20 | 1<<21)

	s.luaSource = []byte("-- simulated drive script\n")
	s.luaSaved = s.luaSource
	s.setName("LUA_RUN", 1)
	s.setName("LUA_RUN_DEFAULT", 1)
	s.setAddr(LuaCodeVersionAddr, Float32, 1.0)
	return s
}

// Set stores a numeric register value.
func (s *SimDevice) Set(name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setName(name, value)
}

// Get returns a numeric register value.
func (s *SimDevice) Get(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.regs.MustLookup(name)
	v, _ := decodeValue(r.Type, s.getBytes(r.Address, r.Type.Words())) //nolint:errcheck // numeric types only
	return v
}

// SetDigital replaces the DIO_STATE word.
func (s *SimDevice) SetDigital(w uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setDIO(w)
}

// Flash returns the value stored at a flash address and whether it has
// been written since the last erase.
func (s *SimDevice) Flash(addr int) (float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.flash[addr]
	return v, ok
}

// SetFlash stores a value in flash directly.
func (s *SimDevice) SetFlash(addr int, v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flash[addr] = v
}

// LuaSource returns the script currently loaded into RAM.
func (s *SimDevice) LuaSource() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.luaSource...)
}

// LuaSaved returns the script saved to flash.
func (s *SimDevice) LuaSaved() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.luaSaved...)
}

// BreakLua makes subsequent LUA_RUN=1 writes fail to start the script.
func (s *SimDevice) BreakLua(broken bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.luaBroken = broken
	if broken {
		s.setName("LUA_RUN", 0)
	}
}

// SetReadError makes every read fail with err; nil restores reads.
func (s *SimDevice) SetReadError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// SetWriteError makes every write fail with err; nil restores writes.
func (s *SimDevice) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Writes returns the writes seen so far, oldest first.
func (s *SimDevice) Writes() []WriteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]WriteRecord(nil), s.writes...)
}

// WritesTo returns the writes to one register name.
func (s *SimDevice) WritesTo(name string) []WriteRecord {
	r := s.regs.MustLookup(name)
	var out []WriteRecord
	for _, w := range s.Writes() {
		if w.Address == r.Address {
			out = append(out, w)
		}
	}
	return out
}

// ResetWrites clears the write log.
func (s *SimDevice) ResetWrites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = nil
}

// Closed reports how many times a connection to the module was closed.
func (s *SimDevice) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

func (s *SimDevice) readRegisters(address, quantity uint16) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}

	if address == FlashReadAddr {
		out := make([]byte, 0, int(quantity)*2)
		for i := 0; i < int(quantity)/2; i++ {
			v, ok := s.flash[s.readPtr]
			bits := uint32(0xFFFFFFFF)
			if ok {
				bits = math.Float32bits(v)
			}
			out = binary.BigEndian.AppendUint32(out, bits)
			s.readPtr += 4
		}
		return out, nil
	}

	out := make([]byte, 0, int(quantity)*2)
	for i := uint16(0); i < quantity; i++ {
		out = binary.BigEndian.AppendUint16(out, s.mem[address+i])
	}
	return out, nil
}

func (s *SimDevice) writeRegisters(address uint16, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, WriteRecord{Address: address, Data: append([]byte(nil), data...)})

	switch address {
	case FlashKeyAddr:
		s.flashKeyed = int32(word32(data)) == FlashUserKey
		return nil
	case FlashEraseAddr:
		return s.eraseFlash(int(int32(word32(data))))
	case FlashWritePointerAddr:
		s.writePtr = int(int32(word32(data)))
		return nil
	case FlashReadPointerAddr:
		s.readPtr = int(int32(word32(data)))
		return nil
	case FlashWriteAddr:
		return s.writeFlash(data)
	}

	lua := func(name string) bool { return address == s.regs.MustLookup(name).Address }
	switch {
	case lua("LUA_SOURCE_SIZE"):
		s.luaSource = nil
	case lua("LUA_SOURCE_WRITE"):
		s.luaSource = append(s.luaSource, data...)
		return nil
	case lua("LUA_LOAD_SAVED"):
		if word32(data) == 1 {
			s.luaSource = append([]byte(nil), s.luaSaved...)
		}
	case lua("LUA_SAVE_TO_FLASH"):
		if word32(data) == 1 {
			s.luaSaved = append([]byte(nil), s.luaSource...)
		}
	case lua("LUA_RUN"):
		run := word32(data) == 1 && len(s.luaSource) > 0 && !s.luaBroken
		if run {
			s.setWords(address, []uint16{0, 1})
		} else {
			s.setWords(address, []uint16{0, 0})
		}
		return nil
	}

	for i := 0; i+1 < len(data); i += 2 {
		s.mem[address+uint16(i/2)] = binary.BigEndian.Uint16(data[i:])
	}
	s.afterWrite(address)
	return nil
}

// afterWrite applies side effects of plain register writes.
func (s *SimDevice) afterWrite(address uint16) {
	dioBase := s.regs.MustLookup("DIO0").Address
	switch {
	case address >= dioBase && address <= dioBase+22:
		line := uint(address - dioBase)
		w := s.dio()
		if s.mem[address] != 0 {
			w |= 1 << line
		} else {
			w &^= 1 << line
		}
		s.setDIO(w)
	case address == s.regs.MustLookup("USER_RAM0_U16").Address:
		// The drive script settles on the commanded position.
		if s.mem[address] == 2 {
			cmd := s.regs.MustLookup("USER_RAM1_F32").Address
			el := s.regs.MustLookup("USER_RAM2_F32").Address
			s.setWords(el, s.getWords(cmd, 2))
		}
	}
}

func (s *SimDevice) eraseFlash(addr int) error {
	if !s.flashKeyed {
		return ErrFlashLocked
	}
	s.flashKeyed = false
	page := addr - addr%FlashPageSize
	for a := range s.flash {
		if a >= page && a < page+FlashPageSize {
			delete(s.flash, a)
		}
	}
	return nil
}

func (s *SimDevice) writeFlash(data []byte) error {
	if !s.flashKeyed {
		return ErrFlashLocked
	}
	s.flashKeyed = false
	for i := 0; i+4 <= len(data); i += 4 {
		s.flash[s.writePtr] = math.Float32frombits(binary.BigEndian.Uint32(data[i:]))
		s.writePtr += 4
	}
	return nil
}

func (s *SimDevice) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	return nil
}

func (s *SimDevice) dio() uint32 {
	r := s.regs.MustLookup("DIO_STATE")
	w := s.getWords(r.Address, 2)
	return uint32(w[0])<<16 | uint32(w[1])
}

func (s *SimDevice) setDIO(w uint32) {
	s.setWords(s.regs.MustLookup("DIO_STATE").Address, []uint16{uint16(w >> 16), uint16(w)})
	s.setWords(s.regs.MustLookup("FIO_STATE").Address, []uint16{uint16(w & 0xff)})
	base := s.regs.MustLookup("DIO0").Address
	for line := uint16(0); line <= 22; line++ {
		s.mem[base+line] = uint16(w>>line) & 1
	}
}

func (s *SimDevice) setName(name string, v float64) {
	r := s.regs.MustLookup(name)
	s.setAddr(r.Address, r.Type, v)
}

func (s *SimDevice) setAddr(addr uint16, t DataType, v float64) {
	data, err := encodeValue(t, v)
	if err != nil {
		return
	}
	s.setBytes(addr, data)
}

func (s *SimDevice) setBytes(addr uint16, data []byte) {
	for i := 0; i+1 < len(data); i += 2 {
		s.mem[addr+uint16(i/2)] = binary.BigEndian.Uint16(data[i:])
	}
}

func (s *SimDevice) setWords(addr uint16, words []uint16) {
	for i, w := range words {
		s.mem[addr+uint16(i)] = w
	}
}

func (s *SimDevice) getWords(addr uint16, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = s.mem[addr+uint16(i)]
	}
	return out
}

func (s *SimDevice) getBytes(addr uint16, n int) []byte {
	out := make([]byte, 0, 2*n)
	for _, w := range s.getWords(addr, n) {
		out = binary.BigEndian.AppendUint16(out, w)
	}
	return out
}

func word32(data []byte) uint32 {
	switch {
	case len(data) >= 4:
		return binary.BigEndian.Uint32(data)
	case len(data) >= 2:
		return uint32(binary.BigEndian.Uint16(data))
	default:
		return 0
	}
}
