package session

import (
	"context"
	"time"

	"github.com/dsa110/dsa110-hwmc/internal/codec"
	"github.com/dsa110/dsa110-hwmc/internal/store"
)

// Backend drives one backend module serving ten consecutive antennas.
type Backend struct {
	*base
}

// NewBackend creates the session for the backend module whose first
// served antenna is firstAnt.
func NewBackend(firstAnt int, opts Options) (*Backend, error) {
	b, err := newBase(RoleBackend, firstAnt, opts)
	if err != nil {
		return nil, err
	}
	return &Backend{base: b}, nil
}

// Run initializes the backend module and runs its poll loop until Stop is
// called or ctx is done.
func (b *Backend) Run(ctx context.Context) error {
	ctx, cancel, err := b.begin(ctx)
	if err != nil {
		return err
	}
	defer b.finish(cancel)

	b.initialize(ctx)
	b.loop(ctx, b.poll, func(context.Context, event) {})
	return nil
}

func (b *Backend) initialize(ctx context.Context) {
	b.logger.Info("initializing backend")

	b.connectStore(ctx)
	st := b.checkModule(ctx, false)
	if err := b.conn.WriteName("AIN_ALL_RANGE", analogRange); err != nil {
		b.failure("configuring module failed", err, "register", "AIN_ALL_RANGE")
	}

	now := time.Now()
	b.publish(ctx, Publication{
		AntNum:  b.number,
		Key:     store.MonBeb(b.number),
		Time:    now,
		Startup: true,
	}, startupDoc{AntNum: b.number, Time: codec.MJD(now), State: st})
}

// poll samples the module and publishes one set per served antenna.
func (b *Backend) poll(ctx context.Context) {
	raw, err := b.conn.ReadNames(codec.BackendSample.Names, codec.BackendSample.Counts)
	if err != nil {
		b.failure("sampling backend module failed", err)
		return
	}
	now := time.Now()
	sets, err := codec.DecodeBackend(raw, b.number, now)
	if err != nil {
		b.failure("decoding backend sample failed", err)
		return
	}
	for _, mon := range sets {
		b.publish(ctx, Publication{
			AntNum: mon.AntNum,
			Key:    store.MonBeb(mon.AntNum),
			Time:   now,
			Fields: mon.Fields(),
		}, mon)
	}
}
