package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dsa110/dsa110-hwmc/internal/calibration"
	"github.com/dsa110/dsa110-hwmc/internal/codec"
	"github.com/dsa110/dsa110-hwmc/internal/script"
	"github.com/dsa110/dsa110-hwmc/internal/store"
)

// Digital direction masks written at antenna startup. A set bit is an output.
const (
	fioDirection = 0b00000000 // module identity switches
	eioDirection = 0b00011110 // drive motor and noise diode control
	cioDirection = 0b00000000 // drive status
	mioDirection = 0b00000000 // fan status
)

// analogRange is the AIN_ALL_RANGE setting in volts.
const analogRange = 10.0

// journalTimeout bounds one journal write.
const journalTimeout = 2 * time.Second

// Antenna drives one antenna module.
//
// Thread Safety: Info, State and Stop are safe for concurrent use. Run
// must be called once.
type Antenna struct {
	*base

	scripts *script.Manager
	cal     *calibration.Writer

	cmdKey    string
	cmdAllKey string
	calKey    string

	installing atomic.Bool

	// pendingCal holds the latest calibration document received while a
	// script install owns the Lua engine. Run goroutine only.
	pendingCal *string
}

// NewAntenna creates the session for antenna antNum.
func NewAntenna(antNum int, opts Options) (*Antenna, error) {
	b, err := newBase(RoleAntenna, antNum, opts)
	if err != nil {
		return nil, err
	}
	scripts := script.NewManager(opts.Conn, opts.Config.Script, opts.Logger)
	return &Antenna{
		base:      b,
		scripts:   scripts,
		cal:       calibration.NewWriter(opts.Conn, opts.Config.Calibration.Tolerance, scripts, opts.Logger),
		cmdKey:    store.CmdAnt(antNum),
		cmdAllKey: store.CmdAll(),
		calKey:    store.CalAnt(antNum),
	}, nil
}

// Run initializes the antenna module and runs its poll loop until Stop is
// called or ctx is done.
func (a *Antenna) Run(ctx context.Context) error {
	ctx, cancel, err := a.begin(ctx)
	if err != nil {
		return err
	}
	defer a.finish(cancel)

	a.initialize(ctx)
	a.loop(ctx, a.poll, a.handle)
	return nil
}

func (a *Antenna) initialize(ctx context.Context) {
	a.logger.Info("initializing antenna")

	a.connectStore(ctx)
	a.watch(ctx, a.cmdKey)
	a.watch(ctx, a.cmdAllKey)
	a.watch(ctx, a.calKey)

	setup := []struct {
		name  string
		value float64
	}{
		{"FIO_DIRECTION", fioDirection},
		{"EIO_DIRECTION", eioDirection},
		{"CIO_DIRECTION", cioDirection},
		{"MIO_DIRECTION", mioDirection},
		{"AIN_ALL_RANGE", analogRange},
	}
	for _, s := range setup {
		if err := a.conn.WriteName(s.name, s.value); err != nil {
			a.failure("configuring module failed", err, "register", s.name)
		}
	}

	st := a.checkModule(ctx, a.cfg.Script.Required)
	a.loadCalibration(ctx)

	now := time.Now()
	a.publish(ctx, Publication{
		AntNum:  a.number,
		Key:     store.MonAnt(a.number),
		Time:    now,
		Startup: true,
	}, startupDoc{AntNum: a.number, Time: codec.MJD(now), State: st})
}

// poll samples the module and publishes the decoded monitor points.
func (a *Antenna) poll(ctx context.Context) {
	if a.pendingCal != nil && !a.installing.Load() {
		value := *a.pendingCal
		a.pendingCal = nil
		a.applyCalibration(ctx, value)
	}

	raw, err := a.conn.ReadNames(codec.AntennaSample.Names, codec.AntennaSample.Counts)
	if err != nil {
		a.failure("sampling antenna module failed", err)
		return
	}
	now := time.Now()
	mon, err := codec.DecodeAntenna(raw, a.number, a.opts.Sim, now)
	if err != nil {
		a.failure("decoding antenna sample failed", err)
		return
	}
	a.publish(ctx, Publication{
		AntNum: a.number,
		Key:    store.MonAnt(a.number),
		Time:   now,
		Fields: mon.Fields(),
	}, mon)
}

func (a *Antenna) handle(ctx context.Context, ev event) {
	if ev.key == a.calKey {
		if a.installing.Load() {
			value := ev.value
			a.pendingCal = &value
			a.logger.Info("calibration deferred until script install completes")
			return
		}
		a.applyCalibration(ctx, ev.value)
		return
	}
	a.dispatch(ctx, ev.key, ev.value)
}

// dispatch applies one command document received on key.
func (a *Antenna) dispatch(ctx context.Context, key, value string) {
	rec := CommandRecord{
		ID:       uuid.NewString(),
		AntNum:   a.number,
		Key:      key,
		Value:    value,
		Received: time.Now(),
	}

	cmd, err := codec.ParseCommand([]byte(value))
	if err != nil {
		a.completeCommand(ctx, rec, err)
		return
	}
	rec.Name = cmd.Name
	rec.Value = string(cmd.Value)

	action, err := codec.PlanAntenna(cmd)
	if err != nil {
		a.completeCommand(ctx, rec, err)
		return
	}

	if action.Script != "" {
		a.installScript(ctx, rec, action.Script)
		return
	}

	for _, w := range action.Writes {
		if err = a.conn.WriteName(w.Name, w.Value); err != nil {
			break
		}
	}
	a.completeCommand(ctx, rec, err)
}

// installScript loads, persists and starts a script in the background so
// polling continues while the module restarts its engine.
func (a *Antenna) installScript(ctx context.Context, rec CommandRecord, name string) {
	if !a.installing.CompareAndSwap(false, true) {
		a.completeCommand(ctx, rec, ErrBusy)
		return
	}

	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		defer a.installing.Store(false)

		a.logger.Info("installing lua script", "script", name)
		running, err := a.scripts.Install(ctx, name)
		if err == nil && !running {
			err = ErrScriptNotRunning
		}
		a.completeCommand(ctx, rec, err)
	}()
}

func (a *Antenna) completeCommand(ctx context.Context, rec CommandRecord, err error) {
	switch {
	case err == nil:
		rec.Outcome = OutcomeApplied
		a.logger.Info("command applied", "command", rec.Name, "value", rec.Value, "key", rec.Key)
	case isRejection(err):
		rec.Outcome = OutcomeRejected
		a.logger.Error("command rejected", "command", rec.Name, "key", rec.Key, "error", err)
	default:
		rec.Outcome = OutcomeFailed
		a.failure("command failed", err, "command", rec.Name, "key", rec.Key)
	}
	if err != nil {
		rec.Error = err.Error()
	}

	if a.opts.Journal == nil {
		return
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := a.opts.Journal.RecordCommand(jctx, rec); err != nil {
		a.logger.Warn("journaling command failed", "id", rec.ID, "error", err)
	}
}

// isRejection reports errors caused by the command itself rather than
// the module or the store.
func isRejection(err error) bool {
	return errors.Is(err, codec.ErrMalformed) ||
		errors.Is(err, codec.ErrUnknownCommand) ||
		errors.Is(err, codec.ErrInvalidArgument) ||
		errors.Is(err, script.ErrNotFound) ||
		errors.Is(err, ErrBusy)
}

// loadCalibration applies the calibration table stored for this antenna.
func (a *Antenna) loadCalibration(ctx context.Context) {
	if a.store == nil {
		return
	}
	gctx, cancel := context.WithTimeout(ctx, a.cfg.GetDialTimeout())
	value, found, err := a.store.Get(gctx, a.calKey)
	cancel()
	switch {
	case err != nil:
		a.failure("reading calibration table failed", err, "key", a.calKey)
	case !found:
		a.logger.Warn("no inclinometer calibration table", "key", a.calKey)
	default:
		a.applyCalibration(ctx, value)
	}
}

// applyCalibration writes a calibration document to flash if it differs
// from what the module holds.
func (a *Antenna) applyCalibration(ctx context.Context, value string) {
	rec := CalibrationRecord{AntNum: a.number, Applied: time.Now()}

	table, err := codec.ParseCalibration([]byte(value))
	if err == nil {
		rec.Length = len(table)
		rec.Wrote, err = a.cal.Apply(ctx, table)
	}
	switch {
	case err != nil:
		rec.Error = err.Error()
		a.failure("applying calibration table failed", err)
	case rec.Wrote:
		a.logger.Info("inclinometer calibration updated", "values", rec.Length)
	default:
		a.logger.Debug("inclinometer calibration unchanged", "values", rec.Length)
	}

	if a.opts.Journal == nil {
		return
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := a.opts.Journal.RecordCalibration(jctx, rec); err != nil {
		a.logger.Warn("journaling calibration failed", "error", err)
	}
}
