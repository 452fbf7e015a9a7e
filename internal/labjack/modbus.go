package labjack

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	mb "github.com/goburrow/modbus"
	"golang.org/x/sync/errgroup"

	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/config"
)

// Logger is the logging surface used by drivers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Driver finds and opens modules.
type Driver interface {
	// ListAll returns every reachable module, in a stable order.
	ListAll(ctx context.Context) ([]Descriptor, error)

	// Open connects to a module returned by ListAll.
	Open(ctx context.Context, d Descriptor) (Conn, error)
}

// ModbusDriver reaches T7 modules over Modbus TCP.
type ModbusDriver struct {
	cfg    config.HardwareConfig
	regs   *RegisterMap
	logger Logger
}

// NewModbusDriver creates a driver for the configured hosts and scan range.
func NewModbusDriver(cfg config.HardwareConfig, regs *RegisterMap, logger Logger) *ModbusDriver {
	return &ModbusDriver{cfg: cfg, regs: regs, logger: logger}
}

// ListAll probes every candidate address concurrently and keeps those whose
// PRODUCT_ID matches the configured product.
func (d *ModbusDriver) ListAll(ctx context.Context) ([]Descriptor, error) {
	candidates, err := d.candidates()
	if err != nil {
		return nil, err
	}

	productReg := d.regs.MustLookup("PRODUCT_ID")
	serialReg := d.regs.MustLookup("SERIAL_NUMBER")

	found := make([]*Descriptor, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(d.cfg.ProbeWorkers, 1))
	for i, addr := range candidates {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			c, err := d.dial(addr)
			if err != nil {
				d.logger.Debug("probe failed", "address", addr, "error", err)
				return nil
			}
			defer c.Close() //nolint:errcheck // probe connection

			pid, err := c.ReadAddress(productReg.Address, productReg.Type)
			if err != nil {
				d.logger.Debug("probe read failed", "address", addr, "error", err)
				return nil
			}
			if int(math.Round(pid)) != d.cfg.ProductID {
				d.logger.Debug("probe skipped foreign device", "address", addr, "product_id", pid)
				return nil
			}
			serial, _ := c.ReadAddress(serialReg.Address, serialReg.Type) //nolint:errcheck // serial is informational
			found[i] = &Descriptor{Address: addr, Serial: uint32(serial)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Descriptor
	for _, f := range found {
		if f == nil {
			continue
		}
		f.Index = len(out)
		out = append(out, *f)
	}
	d.logger.Info("modbus probe complete", "candidates", len(candidates), "found", len(out))
	return out, nil
}

// Open connects to the module at d.Address.
func (d *ModbusDriver) Open(ctx context.Context, desc Descriptor) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := d.dial(desc.Address)
	if err != nil {
		return nil, err
	}
	c.desc = desc
	return c, nil
}

func (d *ModbusDriver) dial(addr string) (*conn, error) {
	h := mb.NewTCPClientHandler(addr)
	h.Timeout = time.Duration(d.cfg.Timeout) * time.Millisecond
	h.SlaveId = byte(d.cfg.SlaveID)
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", ErrTransport, addr, err)
	}
	io := &modbusIO{handler: h, client: mb.NewClient(h)}
	return newConn(io, d.regs, Descriptor{Address: addr}), nil
}

// candidates expands the configured hosts and scan range into host:port
// addresses, without duplicates, in configuration order.
func (d *ModbusDriver) candidates() ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}

	for _, h := range d.cfg.Hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(h); err == nil {
			add(h)
			continue
		}
		add(net.JoinHostPort(h, strconv.Itoa(d.cfg.Port)))
	}

	if d.cfg.ScanCIDR != "" {
		hosts, err := expandCIDR(d.cfg.ScanCIDR)
		if err != nil {
			return nil, err
		}
		for _, ip := range hosts {
			add(net.JoinHostPort(ip.String(), strconv.Itoa(d.cfg.Port)))
		}
	}
	return out, nil
}

// maxScanHosts bounds a scan range to a /22.
const maxScanHosts = 1024

// expandCIDR lists the host addresses of an IPv4 prefix, skipping the
// network and broadcast addresses of ranges larger than /31.
func expandCIDR(cidr string) ([]netip.Addr, error) {
	prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		return nil, fmt.Errorf("parsing scan range %q: %w", cidr, err)
	}
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() {
		return nil, fmt.Errorf("scan range %q: only IPv4 is supported", cidr)
	}
	hostBits := 32 - prefix.Bits()
	if hostBits > 10 {
		return nil, fmt.Errorf("scan range %q exceeds %d hosts", cidr, maxScanHosts)
	}

	var out []netip.Addr
	for ip := prefix.Addr(); prefix.Contains(ip); ip = ip.Next() {
		out = append(out, ip)
	}
	if hostBits >= 2 {
		out = out[1 : len(out)-1]
	}
	return out, nil
}

// modbusIO adapts a goburrow client to registerIO.
type modbusIO struct {
	handler *mb.TCPClientHandler
	client  mb.Client
}

func (m *modbusIO) readRegisters(address, quantity uint16) ([]byte, error) {
	return m.client.ReadHoldingRegisters(address, quantity)
}

func (m *modbusIO) writeRegisters(address uint16, data []byte) error {
	_, err := m.client.WriteMultipleRegisters(address, uint16(len(data)/2), data)
	return err
}

func (m *modbusIO) close() error {
	return m.handler.Close()
}
