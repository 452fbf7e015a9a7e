package labjack

import (
	"fmt"
	"sync"
)

// Modbus frame limits in registers.
const (
	maxReadRegisters  = 125
	maxWriteRegisters = 123
)

// Descriptor identifies a module found by Driver.ListAll.
type Descriptor struct {
	// Address is host:port for Modbus modules and "sim://<n>" for
	// simulated ones.
	Address string `json:"address"`

	// Serial is the module serial number when known.
	Serial uint32 `json:"serial,omitempty"`

	// Index is the position of the module in the ListAll result.
	Index int `json:"index"`
}

// Conn is an open connection to a single module.
//
// A Conn is safe for use from multiple goroutines; calls are serialised.
type Conn interface {
	// ReadName reads a single numeric register.
	ReadName(name string) (float64, error)

	// WriteName writes a single numeric register.
	WriteName(name string, value float64) error

	// ReadNames reads counts[i] consecutive values starting at names[i]
	// for each i, returning them concatenated in order.
	ReadNames(names []string, counts []int) ([]float64, error)

	// ReadNameByteArray reads n bytes from a byte or string register.
	ReadNameByteArray(name string, n int) ([]byte, error)

	// WriteNameByteArray streams data to a byte buffer register.
	WriteNameByteArray(name string, data []byte) error

	// ReadAddress reads one value at a raw address.
	ReadAddress(address uint16, typ DataType) (float64, error)

	// WriteAddress writes one value at a raw address.
	WriteAddress(address uint16, typ DataType, value float64) error

	// WriteAddresses writes several raw addresses in order.
	WriteAddresses(addresses []uint16, types []DataType, values []float64) error

	// Descriptor returns the descriptor the connection was opened with.
	Descriptor() Descriptor

	// Close releases the connection.
	Close() error
}

// registerIO is the raw holding-register transport under a conn.
type registerIO interface {
	readRegisters(address, quantity uint16) ([]byte, error)
	writeRegisters(address uint16, data []byte) error
	close() error
}

// conn implements Conn on top of a registerIO and a register map.
type conn struct {
	mu     sync.Mutex
	io     registerIO
	regs   *RegisterMap
	desc   Descriptor
	closed bool
}

func newConn(io registerIO, regs *RegisterMap, desc Descriptor) *conn {
	return &conn{io: io, regs: regs, desc: desc}
}

func (c *conn) Descriptor() Descriptor {
	return c.desc
}

func (c *conn) ReadName(name string) (float64, error) {
	r, err := c.regs.Lookup(name)
	if err != nil {
		return 0, err
	}
	return c.ReadAddress(r.Address, r.Type)
}

func (c *conn) WriteName(name string, value float64) error {
	r, err := c.regs.Lookup(name)
	if err != nil {
		return err
	}
	return c.WriteAddress(r.Address, r.Type, value)
}

func (c *conn) ReadNames(names []string, counts []int) ([]float64, error) {
	if len(names) != len(counts) {
		return nil, fmt.Errorf("%w: %d names with %d counts", ErrTransport, len(names), len(counts))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	var out []float64
	for i, name := range names {
		r, err := c.regs.Lookup(name)
		if err != nil {
			return nil, err
		}
		if counts[i] <= 0 {
			continue
		}
		values, err := c.readBlock(r, counts[i])
		if err != nil {
			return nil, fmt.Errorf("reading %s x%d: %w", r.Name, counts[i], err)
		}
		out = append(out, values...)
	}
	return out, nil
}

// readBlock reads count consecutive values of r.Type starting at r.Address,
// split into frames of at most maxReadRegisters whole values.
func (c *conn) readBlock(r Register, count int) ([]float64, error) {
	words := r.Type.Words()
	perFrame := maxReadRegisters / words

	values := make([]float64, 0, count)
	addr := r.Address
	for remaining := count; remaining > 0; {
		n := min(remaining, perFrame)
		data, err := c.io.readRegisters(addr, uint16(n*words))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		for j := 0; j < n; j++ {
			v, err := decodeValue(r.Type, data[j*2*words:])
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		remaining -= n
		if !r.Buffer {
			addr += uint16(n * words)
		}
	}
	return values, nil
}

func (c *conn) ReadNameByteArray(name string, n int) ([]byte, error) {
	r, err := c.regs.Lookup(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	out := make([]byte, 0, n)
	addr := r.Address
	for len(out) < n {
		want := min(n-len(out), 2*maxReadRegisters)
		data, err := c.io.readRegisters(addr, uint16((want+1)/2))
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrTransport, r.Name, err)
		}
		if len(data) < want {
			return nil, fmt.Errorf("%w: short response for %s", ErrTransport, r.Name)
		}
		out = append(out, data[:want]...)
		if !r.Buffer {
			addr += uint16((want + 1) / 2)
		}
	}
	return out, nil
}

func (c *conn) WriteNameByteArray(name string, data []byte) error {
	r, err := c.regs.Lookup(name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	// Registers carry two bytes; an odd tail is padded with a zero byte.
	for off := 0; off < len(data); off += 2 * maxWriteRegisters {
		end := min(off+2*maxWriteRegisters, len(data))
		frame := data[off:end]
		if len(frame)%2 == 1 {
			frame = append(append([]byte(nil), frame...), 0)
		}
		if err := c.io.writeRegisters(r.Address, frame); err != nil {
			return fmt.Errorf("%w: writing %s: %w", ErrTransport, r.Name, err)
		}
	}
	return nil
}

func (c *conn) ReadAddress(address uint16, typ DataType) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}

	data, err := c.io.readRegisters(address, uint16(typ.Words()))
	if err != nil {
		return 0, fmt.Errorf("%w: reading address %d: %w", ErrTransport, address, err)
	}
	return decodeValue(typ, data)
}

func (c *conn) WriteAddress(address uint16, typ DataType, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.writeLocked(address, typ, value)
}

func (c *conn) WriteAddresses(addresses []uint16, types []DataType, values []float64) error {
	if len(addresses) != len(types) || len(addresses) != len(values) {
		return fmt.Errorf("%w: mismatched write lists", ErrTransport)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	for i := range addresses {
		if err := c.writeLocked(addresses[i], types[i], values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (c *conn) writeLocked(address uint16, typ DataType, value float64) error {
	data, err := encodeValue(typ, value)
	if err != nil {
		return err
	}
	if err := c.io.writeRegisters(address, data); err != nil {
		return fmt.Errorf("%w: writing address %d: %w", ErrTransport, address, err)
	}
	return nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.io.close()
}
