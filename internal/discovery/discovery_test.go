package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/config"
	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/logging"
	"github.com/dsa110/dsa110-hwmc/internal/labjack"
	"github.com/dsa110/dsa110-hwmc/internal/session"
	"github.com/dsa110/dsa110-hwmc/internal/store"
)

func newCoordinator(t *testing.T, drv labjack.Driver, simulate bool) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(Options{
		Driver:   drv,
		Simulate: simulate,
		Session: session.Options{
			Dialer: store.NewMemory(),
			Config: config.Default(),
			Logger: logging.Discard(),
		},
		Logger: logging.Discard(),
	})
	require.NoError(t, err)
	return c
}

func keys[V any](m map[int]V) []int {
	return sortedKeys(m)
}

func TestDiscover_Simulate(t *testing.T) {
	drv := labjack.NewSimDriver(6, labjack.NewRegisterMap())
	res, err := newCoordinator(t, drv, true).Discover(context.Background())
	require.NoError(t, err)

	require.Equal(t, []int{1, 2, 3}, keys(res.Antennas))
	require.Equal(t, []int{1, 11, 21}, keys(res.Backends))
	require.Zero(t, res.Skipped)
	require.Len(t, res.Sessions(), 6)

	again, err := newCoordinator(t, labjack.NewSimDriver(6, labjack.NewRegisterMap()), true).Discover(context.Background())
	require.NoError(t, err)
	require.Equal(t, keys(res.Antennas), keys(again.Antennas))
	require.Equal(t, keys(res.Backends), keys(again.Backends))
}

func TestDiscover_SessionsOrdered(t *testing.T) {
	drv := labjack.NewSimDriver(5, labjack.NewRegisterMap())
	res, err := newCoordinator(t, drv, true).Discover(context.Background())
	require.NoError(t, err)

	var got []string
	for _, s := range res.Sessions() {
		got = append(got, s.Role().String())
		require.Equal(t, session.StateNew, s.State())
	}
	require.Equal(t, []string{"antenna", "antenna", "antenna", "backend", "backend"}, got)
}

func TestDiscover_LiveClassification(t *testing.T) {
	drv := labjack.NewSimDriver(4, labjack.NewRegisterMap())
	res, err := newCoordinator(t, drv, false).Discover(context.Background())
	require.NoError(t, err)

	require.Equal(t, []int{1, 2}, keys(res.Antennas))
	require.Equal(t, []int{1, 11}, keys(res.Backends))
}

func TestDiscover_OpenFailureSkipsModule(t *testing.T) {
	drv := labjack.NewSimDriver(6, labjack.NewRegisterMap())
	drv.FailOpen(2, errors.New("connection reset"))

	res, err := newCoordinator(t, drv, true).Discover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Skipped)
	require.Len(t, res.Antennas, 2)
	require.Len(t, res.Backends, 3)
}

func TestDiscover_AllOpensFail(t *testing.T) {
	drv := labjack.NewSimDriver(2, labjack.NewRegisterMap())
	drv.FailOpen(0, errors.New("refused"))
	drv.FailOpen(1, errors.New("refused"))

	res, err := newCoordinator(t, drv, true).Discover(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Sessions())
	require.Equal(t, 2, res.Skipped)
}

func TestDiscover_UnreadableIdentity(t *testing.T) {
	drv := labjack.NewSimDriver(2, labjack.NewRegisterMap())
	drv.Device(0).SetReadError(errors.New("timeout"))

	res, err := newCoordinator(t, drv, false).Discover(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Antennas)
	require.Equal(t, []int{1}, keys(res.Backends))
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 1, drv.Device(0).Closed())
}

func TestDiscover_DuplicateLocation(t *testing.T) {
	drv := labjack.NewSimDriver(3, labjack.NewRegisterMap())
	drv.Device(2).SetDigital(1) // claims antenna 1 as well

	res, err := newCoordinator(t, drv, false).Discover(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{1}, keys(res.Antennas))
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 1, drv.Device(2).Closed())
}

type failingDriver struct{}

func (failingDriver) ListAll(context.Context) ([]labjack.Descriptor, error) {
	return nil, errors.New("network unreachable")
}

func (failingDriver) Open(context.Context, labjack.Descriptor) (labjack.Conn, error) {
	return nil, errors.New("unreachable")
}

func TestDiscover_ListFailureIsNotFatal(t *testing.T) {
	res, err := newCoordinator(t, failingDriver{}, false).Discover(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Sessions())
}

func TestDiscover_Cancelled(t *testing.T) {
	drv := labjack.NewSimDriver(2, labjack.NewRegisterMap())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newCoordinator(t, drv, true).Discover(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		fio      uint32
		role     session.Role
		location int
	}{
		{"antenna", 42, session.RoleAntenna, 42},
		{"backend", 0x80 | 21, session.RoleBackend, 21},
		{"zero location", 0, session.RoleUnknown, 0},
		{"backend zero location", 0x80, session.RoleUnknown, 0},
	}
	drv := labjack.NewSimDriver(1, labjack.NewRegisterMap())
	conn, err := drv.Open(context.Background(), labjack.Descriptor{Address: "sim://0"})
	require.NoError(t, err)
	defer conn.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv.Device(0).SetDigital(tt.fio)
			role, location, err := Classify(conn)
			require.NoError(t, err)
			require.Equal(t, tt.role, role)
			require.Equal(t, tt.location, location)
		})
	}
}

func TestNewCoordinator_Validation(t *testing.T) {
	_, err := NewCoordinator(Options{Logger: logging.Discard()})
	require.ErrorIs(t, err, ErrInvalidOptions)
	_, err = NewCoordinator(Options{Driver: failingDriver{}})
	require.ErrorIs(t, err, ErrInvalidOptions)
}
