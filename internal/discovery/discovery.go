package discovery

import (
	"context"
	"fmt"
	"sort"

	"github.com/dsa110/dsa110-hwmc/internal/labjack"
	"github.com/dsa110/dsa110-hwmc/internal/session"
)

// identityRegister holds the role and location switches.
const identityRegister = "FIO_STATE"

// backendBit marks a backend module in the identity register.
const backendBit = 0x80

// Logger is the logging surface used by the coordinator.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Coordinator.
type Options struct {
	// Driver lists and opens modules.
	Driver labjack.Driver

	// Simulate assigns roles by position instead of reading the
	// identity register.
	Simulate bool

	// Session is the template for every session; Conn is filled in per
	// module and Sim follows Simulate.
	Session session.Options

	// SessionLogger returns the logger for one session. When nil every
	// session uses Session.Logger.
	SessionLogger func(role session.Role, number int) session.Logger

	Logger Logger
}

// Result holds the sessions created by one discovery pass.
type Result struct {
	Antennas map[int]*session.Antenna
	Backends map[int]*session.Backend

	// Skipped counts modules that could not be opened, read or classified.
	Skipped int
}

// Sessions returns every session, antennas first, each group in number order.
func (r *Result) Sessions() []session.Session {
	out := make([]session.Session, 0, len(r.Antennas)+len(r.Backends))
	for _, n := range sortedKeys(r.Antennas) {
		out = append(out, r.Antennas[n])
	}
	for _, n := range sortedKeys(r.Backends) {
		out = append(out, r.Backends[n])
	}
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Coordinator runs discovery.
type Coordinator struct {
	opts Options
}

// NewCoordinator creates a coordinator.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Driver == nil {
		return nil, fmt.Errorf("%w: driver is required", ErrInvalidOptions)
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidOptions)
	}
	return &Coordinator{opts: opts}, nil
}

// Discover lists the attached modules, opens each one and creates its
// session. Failures on individual modules are logged and skipped; a
// failed listing yields an empty result. Only a cancelled ctx returns an
// error, after closing the modules opened so far.
func (c *Coordinator) Discover(ctx context.Context) (*Result, error) {
	res := &Result{
		Antennas: make(map[int]*session.Antenna),
		Backends: make(map[int]*session.Backend),
	}
	logger := c.opts.Logger
	logger.Info("searching for modules", "simulate", c.opts.Simulate)

	descs, err := c.opts.Driver.ListAll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Error("listing modules failed", "error", err)
		return res, nil
	}
	if len(descs) == 0 {
		logger.Warn("no modules found")
		return res, nil
	}

	remaining := len(descs)
	simAnt, simBeb := 1, 1
	for i, desc := range descs {
		if err := ctx.Err(); err != nil {
			closeAll(res)
			return nil, err
		}

		conn, err := c.opts.Driver.Open(ctx, desc)
		if err != nil {
			res.Skipped++
			remaining--
			logger.Warn("opening module failed", "address", desc.Address, "serial", desc.Serial, "error", err)
			if remaining <= 0 {
				logger.Error("no modules could be opened")
				break
			}
			continue
		}

		var (
			role     session.Role
			location int
		)
		if c.opts.Simulate {
			if i%2 == 0 {
				role, location = session.RoleAntenna, simAnt
				simAnt++
			} else {
				role, location = session.RoleBackend, simBeb
				simBeb += 10
			}
		} else {
			role, location, err = Classify(conn)
			if err != nil {
				logger.Warn("reading module identity failed", "address", desc.Address, "error", err)
			}
		}

		if err := c.add(res, role, location, conn); err != nil {
			res.Skipped++
			_ = conn.Close()
			logger.Warn("module skipped", "address", desc.Address, "serial", desc.Serial, "error", err)
			continue
		}
		logger.Info("module found", "role", role, "number", location, "address", desc.Address, "serial", desc.Serial)
	}

	logger.Info("discovery complete",
		"antennas", len(res.Antennas),
		"backends", len(res.Backends),
		"skipped", res.Skipped,
	)
	return res, nil
}

func (c *Coordinator) add(res *Result, role session.Role, location int, conn labjack.Conn) error {
	opts := c.opts.Session
	opts.Conn = conn
	opts.Sim = c.opts.Simulate
	if c.opts.SessionLogger != nil {
		opts.Logger = c.opts.SessionLogger(role, location)
	}

	switch role {
	case session.RoleAntenna:
		if _, dup := res.Antennas[location]; dup {
			return fmt.Errorf("%w: antenna %d", ErrDuplicate, location)
		}
		ant, err := session.NewAntenna(location, opts)
		if err != nil {
			return err
		}
		res.Antennas[location] = ant
	case session.RoleBackend:
		if _, dup := res.Backends[location]; dup {
			return fmt.Errorf("%w: backend %d", ErrDuplicate, location)
		}
		beb, err := session.NewBackend(location, opts)
		if err != nil {
			return err
		}
		res.Backends[location] = beb
	default:
		return ErrUnknownRole
	}
	return nil
}

// Classify reads the identity register of a module.
//
// Returns:
//   - role: RoleAntenna below 128, RoleBackend otherwise, RoleUnknown on
//     a read failure or a zero location
//   - location: antenna number, or first antenna served by a backend
func Classify(conn labjack.Conn) (session.Role, int, error) {
	v, err := conn.ReadName(identityRegister)
	if err != nil {
		return session.RoleUnknown, 0, err
	}
	bits := int(v)
	location := bits & 0x7f
	if location == 0 {
		return session.RoleUnknown, 0, nil
	}
	if bits&backendBit != 0 {
		return session.RoleBackend, location, nil
	}
	return session.RoleAntenna, location, nil
}

// closeAll releases the connections of sessions that never ran.
func closeAll(res *Result) {
	for _, a := range res.Antennas {
		_ = a.Close()
	}
	for _, b := range res.Backends {
		_ = b.Close()
	}
}
