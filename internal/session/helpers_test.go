package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/config"
	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/logging"
	"github.com/dsa110/dsa110-hwmc/internal/labjack"
	"github.com/dsa110/dsa110-hwmc/internal/store"
)

const (
	testInterval = 20 * time.Millisecond
	waitFor      = 3 * time.Second
	tick         = 2 * time.Millisecond
)

type harness struct {
	cfg     *config.Config
	regs    *labjack.RegisterMap
	dev     *labjack.SimDevice
	conn    labjack.Conn
	mem     *store.Memory
	pubs    chan Publication
	journal *fakeJournal
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Backend = config.StoreBackendMemory
	cfg.Polling.Interval = testInterval
	cfg.Script.Dir = t.TempDir()
	cfg.Script.StopDelay = time.Millisecond
	cfg.Script.StepDelay = time.Millisecond
	cfg.Script.RunPoll = time.Millisecond
	cfg.Script.AutostartDelay = time.Millisecond
	return cfg
}

// newHarness opens simulated module index. Even indices identify as
// antennas and odd ones as backends.
func newHarness(t *testing.T, index int) *harness {
	t.Helper()
	regs := labjack.NewRegisterMap()
	drv := labjack.NewSimDriver(index+1, regs)
	list, err := drv.ListAll(context.Background())
	require.NoError(t, err)
	conn, err := drv.Open(context.Background(), list[index])
	require.NoError(t, err)

	return &harness{
		cfg:     testConfig(t),
		regs:    regs,
		dev:     drv.Device(index),
		conn:    conn,
		mem:     store.NewMemory(),
		pubs:    make(chan Publication, 1024),
		journal: newFakeJournal(),
	}
}

func (h *harness) options() Options {
	return Options{
		Conn:   h.conn,
		Dialer: h.mem,
		Config: h.cfg,
		Logger: logging.Discard(),
		Observers: []Observer{ObserverFunc(func(p Publication) {
			select {
			case h.pubs <- p:
			default:
			}
		})},
		Journal: h.journal,
		Sim:     true,
	}
}

// next returns the next publication, failing the test after waitFor.
func (h *harness) next(t *testing.T) Publication {
	t.Helper()
	select {
	case p := <-h.pubs:
		return p
	case <-time.After(waitFor):
		t.Fatal("no publication")
		return Publication{}
	}
}

// nextMonitor skips the startup snapshot if present.
func (h *harness) nextMonitor(t *testing.T) Publication {
	t.Helper()
	for {
		if p := h.next(t); !p.Startup {
			return p
		}
	}
}

// put writes key through an independent store connection.
func (h *harness) put(t *testing.T, key string, doc any) {
	t.Helper()
	conn, err := h.mem.Dial(context.Background(), "test")
	require.NoError(t, err)
	defer conn.Close()

	value, ok := doc.(string)
	if !ok {
		data, err := json.Marshal(doc)
		require.NoError(t, err)
		value = string(data)
	}
	require.NoError(t, conn.Put(context.Background(), key, value))
}

func (h *harness) address(name string) uint16 {
	return h.regs.MustLookup(name).Address
}

// start runs s and stops it when the test ends.
func start(t *testing.T, s Session) {
	t.Helper()
	go func() { _ = s.Run(context.Background()) }()
	t.Cleanup(func() {
		s.Stop()
		select {
		case <-s.Done():
		case <-time.After(waitFor):
			t.Error("session did not stop")
		}
	})
	require.Eventually(t, func() bool { return s.State() == StateRunning }, waitFor, tick)
}

type fakeJournal struct {
	mu           sync.Mutex
	commands     []CommandRecord
	calibrations []CalibrationRecord
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{}
}

func (j *fakeJournal) RecordCommand(_ context.Context, rec CommandRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.commands = append(j.commands, rec)
	return nil
}

func (j *fakeJournal) RecordCalibration(_ context.Context, rec CalibrationRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calibrations = append(j.calibrations, rec)
	return nil
}

// waitCommand waits for the n-th journaled command (1-based).
func (j *fakeJournal) waitCommand(t *testing.T, n int) CommandRecord {
	t.Helper()
	var rec CommandRecord
	require.Eventually(t, func() bool {
		j.mu.Lock()
		defer j.mu.Unlock()
		if len(j.commands) < n {
			return false
		}
		rec = j.commands[n-1]
		return true
	}, waitFor, tick)
	return rec
}

// waitCalibration waits for the n-th journaled calibration (1-based).
func (j *fakeJournal) waitCalibration(t *testing.T, n int) CalibrationRecord {
	t.Helper()
	var rec CalibrationRecord
	require.Eventually(t, func() bool {
		j.mu.Lock()
		defer j.mu.Unlock()
		if len(j.calibrations) < n {
			return false
		}
		rec = j.calibrations[n-1]
		return true
	}, waitFor, tick)
	return rec
}

// recordingStore logs watch cancellation and close order.
type recordingStore struct {
	store.Store

	mu    sync.Mutex
	keys  map[store.WatchID]string
	calls []string
}

func (s *recordingStore) Watch(ctx context.Context, key string, fn store.WatchFunc) (store.WatchID, error) {
	id, err := s.Store.Watch(ctx, key, fn)
	if err == nil {
		s.mu.Lock()
		s.keys[id] = key
		s.mu.Unlock()
	}
	return id, err
}

func (s *recordingStore) CancelWatch(id store.WatchID) error {
	s.mu.Lock()
	s.calls = append(s.calls, "cancel "+s.keys[id])
	s.mu.Unlock()
	return s.Store.CancelWatch(id)
}

func (s *recordingStore) Close() error {
	s.mu.Lock()
	s.calls = append(s.calls, "close")
	s.mu.Unlock()
	return s.Store.Close()
}

func (s *recordingStore) log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type dialerFunc func(ctx context.Context, name string) (store.Store, error)

func (f dialerFunc) Dial(ctx context.Context, name string) (store.Store, error) {
	return f(ctx, name)
}
