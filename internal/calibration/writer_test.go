package calibration

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/logging"
	"github.com/dsa110/dsa110-hwmc/internal/labjack"
)

type countingRestarter struct {
	calls int
	err   error
}

func (r *countingRestarter) Restart(context.Context) error {
	r.calls++
	return r.err
}

func newWriter(t *testing.T) (*Writer, *labjack.SimDevice, *countingRestarter) {
	t.Helper()
	drv := labjack.NewSimDriver(1, labjack.NewRegisterMap())
	list, err := drv.ListAll(context.Background())
	require.NoError(t, err)
	conn, err := drv.Open(context.Background(), list[0])
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	r := &countingRestarter{}
	return NewWriter(conn, 1e-3, r, logging.Discard()), drv.Device(0), r
}

func erases(dev *labjack.SimDevice) int {
	return len(dev.WritesTo("INTERNAL_FLASH_ERASE"))
}

func flashWrites(dev *labjack.SimDevice) int {
	return len(dev.WritesTo("INTERNAL_FLASH_WRITE"))
}

func TestApply_WritesErasedFlash(t *testing.T) {
	w, dev, r := newWriter(t)
	table := []float64{0.5, -1.25, 3.0, 42.125}

	wrote, err := w.Apply(context.Background(), table)
	require.NoError(t, err)
	require.True(t, wrote)
	require.Equal(t, 1, erases(dev))
	require.Equal(t, len(table), flashWrites(dev))
	require.Equal(t, 1, r.calls)

	for i, want := range table {
		got, ok := dev.Flash(i * 4)
		require.True(t, ok)
		require.Equal(t, float32(want), got)
	}
}

func TestApply_Idempotent(t *testing.T) {
	w, dev, r := newWriter(t)
	table := []float64{0.1, 0.2, 0.3}

	wrote, err := w.Apply(context.Background(), table)
	require.NoError(t, err)
	require.True(t, wrote)

	dev.ResetWrites()
	wrote, err = w.Apply(context.Background(), table)
	require.NoError(t, err)
	require.False(t, wrote)
	require.Zero(t, erases(dev))
	require.Zero(t, flashWrites(dev))
	require.Equal(t, 1, r.calls)
}

func TestApply_WithinTolerance(t *testing.T) {
	w, dev, _ := newWriter(t)
	dev.SetFlash(0, 1.0)
	dev.SetFlash(4, 2.0)

	wrote, err := w.Apply(context.Background(), []float64{1.0004, 1.9996})
	require.NoError(t, err)
	require.False(t, wrote)

	wrote, err = w.Apply(context.Background(), []float64{1.0, 2.002})
	require.NoError(t, err)
	require.True(t, wrote)
}

func TestApply_NaNAlwaysDiffers(t *testing.T) {
	w, dev, _ := newWriter(t)
	dev.SetFlash(0, 1.0)

	// Stored NaN (erased slot) against a real value.
	wrote, err := w.Apply(context.Background(), []float64{1.0, 2.0})
	require.NoError(t, err)
	require.True(t, wrote)

	// Candidate NaN against a stored value.
	dev.ResetWrites()
	wrote, err = w.Apply(context.Background(), []float64{math.NaN(), 2.0})
	require.NoError(t, err)
	require.True(t, wrote)
	require.Equal(t, 1, erases(dev))

	// NaN written to flash still never matches.
	dev.ResetWrites()
	wrote, err = w.Apply(context.Background(), []float64{math.NaN(), 2.0})
	require.NoError(t, err)
	require.True(t, wrote)
}

func TestApply_EmptyAndOversized(t *testing.T) {
	w, dev, r := newWriter(t)

	wrote, err := w.Apply(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, wrote)
	require.Empty(t, dev.Writes())

	_, err = w.Apply(context.Background(), make([]float64, MaxTableLen+1))
	require.ErrorIs(t, err, ErrTableTooLarge)
	require.Zero(t, r.calls)
}

func TestApply_TransportError(t *testing.T) {
	w, dev, r := newWriter(t)
	dev.SetReadError(errors.New("timeout"))

	_, err := w.Apply(context.Background(), []float64{1})
	require.ErrorIs(t, err, labjack.ErrTransport)
	require.Zero(t, r.calls)
}

func TestApply_RestartFailureIsNotEscalated(t *testing.T) {
	w, _, r := newWriter(t)
	r.err = errors.New("lua stuck")

	wrote, err := w.Apply(context.Background(), []float64{7})
	require.NoError(t, err)
	require.True(t, wrote)
	require.Equal(t, 1, r.calls)
}
