package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/config"
	"github.com/dsa110/dsa110-hwmc/internal/labjack"
	"github.com/dsa110/dsa110-hwmc/internal/startup"
	"github.com/dsa110/dsa110-hwmc/internal/store"
)

// eventQueueSize bounds store events waiting for the session goroutine.
const eventQueueSize = 16

// Logger is the logging surface used by sessions.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a session.
type Options struct {
	// Conn is the module connection. The session closes it when it stops.
	Conn labjack.Conn

	// Dialer opens the session's own store connection.
	Dialer store.Dialer

	// Config supplies polling, script, calibration and version settings.
	Config *config.Config

	// Logger is required.
	Logger Logger

	// Observers receive every publication. Optional.
	Observers []Observer

	// Journal records commands and calibration decisions. Optional.
	Journal Journal

	// Sim marks antenna publications as simulated.
	Sim bool
}

func (o Options) validate() error {
	switch {
	case o.Conn == nil:
		return fmt.Errorf("%w: connection is required", ErrInvalidOptions)
	case o.Dialer == nil:
		return fmt.Errorf("%w: store dialer is required", ErrInvalidOptions)
	case o.Config == nil:
		return fmt.Errorf("%w: config is required", ErrInvalidOptions)
	case o.Logger == nil:
		return fmt.Errorf("%w: logger is required", ErrInvalidOptions)
	case o.Config.Polling.Interval <= 0:
		return fmt.Errorf("%w: polling interval must be positive", ErrInvalidOptions)
	}
	return nil
}

// Info is a point-in-time status of a session.
type Info struct {
	Role         Role      `json:"role"`
	Number       int       `json:"number"`
	State        State     `json:"state"`
	Address      string    `json:"address"`
	Serial       uint32    `json:"serial"`
	StoreValid   bool      `json:"store_valid"`
	ConfigValid  bool      `json:"config_valid"`
	Started      time.Time `json:"started,omitzero"`
	LastPublish  time.Time `json:"last_publish,omitzero"`
	Publications uint64    `json:"publications"`
	Failures     uint64    `json:"failures"`
}

// Session is the behaviour shared by antenna and backend sessions.
type Session interface {
	Role() Role
	Number() int
	State() State
	Info() Info

	// Run initializes the module and polls it until Stop is called or
	// ctx is done, then releases the store and the module connection.
	Run(ctx context.Context) error

	// Stop requests a cooperative stop. It does not wait.
	Stop()

	// Done is closed once the session is Stopped.
	Done() <-chan struct{}

	// Close releases the module connection of a session that never ran.
	// It does nothing once Run has been called.
	Close() error
}

type event struct {
	key   string
	value string
}

type watch struct {
	key string
	id  store.WatchID
}

// base holds the lifecycle, store connection and publication plumbing
// common to both session kinds.
type base struct {
	role   Role
	number int
	opts   Options
	cfg    *config.Config
	conn   labjack.Conn
	logger Logger

	// store and watches belong to the Run goroutine; store is nil when
	// the connection could not be opened.
	store   store.Store
	watches []watch
	events  chan event

	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// bg tracks background work that must finish before teardown.
	bg sync.WaitGroup

	mu   sync.RWMutex
	info Info
}

func newBase(role Role, number int, opts Options) (*base, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	desc := opts.Conn.Descriptor()
	return &base{
		role:   role,
		number: number,
		opts:   opts,
		cfg:    opts.Config,
		conn:   opts.Conn,
		logger: opts.Logger,
		events: make(chan event, eventQueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		info: Info{
			Role:    role,
			Number:  number,
			State:   StateNew,
			Address: desc.Address,
			Serial:  desc.Serial,
		},
	}, nil
}

// Role returns the module role.
func (b *base) Role() Role { return b.role }

// Number returns the antenna number, or the first antenna served for a backend.
func (b *base) Number() int { return b.number }

// State returns the lifecycle state.
func (b *base) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info.State
}

// Info returns a status snapshot.
func (b *base) Info() Info {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info
}

// Stop requests a cooperative stop.
func (b *base) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.mu.Lock()
		if b.info.State == StateRunning {
			b.info.State = StateStopping
		}
		b.mu.Unlock()
	})
}

// Done is closed once the session is Stopped.
func (b *base) Done() <-chan struct{} { return b.done }

// Close releases the module connection of a session that never ran.
func (b *base) Close() error {
	if !b.started.CompareAndSwap(false, true) {
		return nil
	}
	b.setState(StateStopped)
	close(b.done)
	return b.conn.Close()
}

func (b *base) setState(s State) {
	b.mu.Lock()
	b.info.State = s
	b.mu.Unlock()
}

// begin marks the session started and returns the context used for its
// lifetime.
func (b *base) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if !b.started.CompareAndSwap(false, true) {
		return nil, nil, ErrAlreadyStarted
	}
	b.mu.Lock()
	b.info.State = StateInitializing
	b.info.Started = time.Now()
	b.mu.Unlock()
	ctx, cancel := context.WithCancel(ctx)
	return ctx, cancel, nil
}

// finish moves through Stopping to Stopped, cancelling watches in the
// order they were added before closing the store and the module.
func (b *base) finish(cancel context.CancelFunc) {
	b.setState(StateStopping)
	b.Stop()
	cancel()
	b.bg.Wait()

	b.logger.Info("session stopping")
	if b.store != nil {
		for _, w := range b.watches {
			if err := b.store.CancelWatch(w.id); err != nil {
				b.logger.Warn("cancelling watch failed", "key", w.key, "error", err)
				continue
			}
			b.logger.Debug("watch cancelled", "key", w.key)
		}
		if err := b.store.Close(); err != nil {
			b.logger.Warn("closing store failed", "error", err)
		}
	}
	if err := b.conn.Close(); err != nil {
		b.logger.Warn("closing module connection failed", "error", err)
	}

	b.setState(StateStopped)
	close(b.done)
	b.logger.Info("session stopped")
}

// connectStore opens the session's store connection. A failure leaves
// the session running without publication or watches.
func (b *base) connectStore(ctx context.Context) {
	dctx, cancel := context.WithTimeout(ctx, b.cfg.GetDialTimeout())
	defer cancel()

	name := fmt.Sprintf("%s-%d", b.role, b.number)
	st, err := b.opts.Dialer.Dial(dctx, name)
	if err != nil {
		b.logger.Error("store unavailable, publishing disabled", "error", err)
		return
	}
	b.store = st

	b.mu.Lock()
	b.info.StoreValid = true
	b.mu.Unlock()
}

// watch queues every put to key for the session goroutine.
func (b *base) watch(ctx context.Context, key string) {
	if b.store == nil {
		return
	}
	// Watches are cancelled explicitly, in order, during finish.
	id, err := b.store.Watch(context.WithoutCancel(ctx), key, b.enqueue)
	if err != nil {
		b.logger.Error("installing watch failed", "key", key, "error", err)
		return
	}
	b.watches = append(b.watches, watch{key: key, id: id})
	b.logger.Debug("watch installed", "key", key)
}

func (b *base) enqueue(key, value string) {
	select {
	case b.events <- event{key: key, value: value}:
	case <-b.stop:
	}
}

func (b *base) stopping(ctx context.Context) bool {
	select {
	case <-b.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// loop polls at every interval boundary and handles store events while
// waiting for the next one.
func (b *base) loop(ctx context.Context, poll func(context.Context), handle func(context.Context, event)) {
	if b.stopping(ctx) {
		return
	}
	b.setState(StateRunning)
	b.logger.Info("session running", "interval", b.cfg.Polling.Interval)

	for !b.stopping(ctx) {
		poll(ctx)
		if !b.wait(ctx, handle) {
			return
		}
	}
}

// wait handles events until the next interval boundary. It returns false
// when the session should stop.
func (b *base) wait(ctx context.Context, handle func(context.Context, event)) bool {
	d := time.Until(nextBoundary(time.Now(), b.cfg.Polling.Interval))
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case ev := <-b.events:
			handle(ctx, ev)
		case <-timer.C:
			return true
		case <-b.stop:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// nextBoundary returns the first multiple of interval since the Unix
// epoch that is after t.
func nextBoundary(t time.Time, interval time.Duration) time.Time {
	step := int64(interval)
	return time.Unix(0, (t.UnixNano()/step+1)*step)
}

// publish puts doc on p.Key and hands the publication to observers.
func (b *base) publish(ctx context.Context, p Publication, doc any) {
	payload, err := json.Marshal(doc)
	if err != nil {
		b.logger.Error("encoding monitor points failed", "key", p.Key, "error", err)
		return
	}
	p.Role = b.role
	p.Payload = payload

	if b.store != nil {
		pctx, cancel := context.WithTimeout(ctx, b.cfg.GetDialTimeout())
		err := b.store.Put(pctx, p.Key, string(payload))
		cancel()
		if err != nil {
			b.failure("publishing monitor points failed", err, "key", p.Key)
		}
	}

	b.mu.Lock()
	b.info.LastPublish = p.Time
	b.info.Publications++
	b.mu.Unlock()

	for _, o := range b.opts.Observers {
		o.Observe(p)
	}
}

// failure logs a recoverable error and counts it.
func (b *base) failure(msg string, err error, args ...any) {
	b.mu.Lock()
	b.info.Failures++
	b.mu.Unlock()
	b.logger.Warn(msg, append(args, "error", err)...)
}

func (b *base) setConfigValid(valid bool) {
	b.mu.Lock()
	b.info.ConfigValid = valid
	b.mu.Unlock()
}

// startupDoc is the startup snapshot as published.
type startupDoc struct {
	AntNum int     `json:"ant_num"`
	Time   float64 `json:"time"`
	startup.State
}

func (b *base) checkModule(ctx context.Context, requireScript bool) startup.State {
	st, err := startup.Check(ctx, b.conn, startup.Options{
		ProductID:      b.cfg.Hardware.ProductID,
		RequireScript:  requireScript,
		AutostartDelay: b.cfg.Script.AutostartDelay,
		Minimum:        b.cfg.Versions,
	}, b.logger)
	if err != nil {
		b.failure("startup check failed", err)
	}
	b.setConfigValid(st.ConfigValid)
	return st
}
