package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dsa110/dsa110-hwmc/internal/labjack"
)

// slotSize is the flash stride of one table value.
const slotSize = 4

// MaxTableLen is the number of values one erased flash page holds.
const MaxTableLen = labjack.FlashPageSize / slotSize

// ErrTableTooLarge is returned for tables that do not fit one flash page.
var ErrTableTooLarge = errors.New("calibration: table too large")

// Restarter restarts the module script so it rereads flash.
type Restarter interface {
	Restart(ctx context.Context) error
}

// Logger is the logging surface used by the writer.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Writer applies calibration tables to one module.
type Writer struct {
	conn      labjack.Conn
	tolerance float64
	restarter Restarter
	logger    Logger
}

// NewWriter creates a writer. restarter may be nil, in which case the
// script is not restarted after a write.
func NewWriter(conn labjack.Conn, tolerance float64, restarter Restarter, logger Logger) *Writer {
	return &Writer{conn: conn, tolerance: tolerance, restarter: restarter, logger: logger}
}

// Matches reports whether flash already holds table within tolerance.
// A NaN on either side never matches.
func (w *Writer) Matches(table []float64) (bool, error) {
	for i, want := range table {
		addr := float64(i * slotSize)
		if err := w.conn.WriteAddress(labjack.FlashReadPointerAddr, labjack.Int32, addr); err != nil {
			return false, err
		}
		got, err := w.conn.ReadAddress(labjack.FlashReadAddr, labjack.Float32)
		if err != nil {
			return false, err
		}
		if !w.equal(got, want) {
			return false, nil
		}
	}
	return true, nil
}

func (w *Writer) equal(stored, want float64) bool {
	if math.IsNaN(stored) || math.IsNaN(want) {
		return false
	}
	return math.Abs(stored-want) <= w.tolerance
}

// Apply writes table to flash unless it is already there, then restarts
// the module script. Calling Apply again with the same table performs no
// erase or write.
//
// Returns:
//   - wrote: whether flash was erased and rewritten
//   - error: transport errors and ErrTableTooLarge; a failed script
//     restart is logged only
func (w *Writer) Apply(ctx context.Context, table []float64) (bool, error) {
	if len(table) == 0 {
		return false, nil
	}
	if len(table) > MaxTableLen {
		return false, fmt.Errorf("%w: %d values, max %d", ErrTableTooLarge, len(table), MaxTableLen)
	}

	same, err := w.Matches(table)
	if err != nil {
		return false, fmt.Errorf("comparing calibration: %w", err)
	}
	if same {
		return false, nil
	}

	w.logger.Info("writing inclinometer calibration", "values", len(table))
	if err := w.write(table); err != nil {
		return false, fmt.Errorf("writing calibration: %w", err)
	}

	if w.restarter != nil {
		if err := w.restarter.Restart(ctx); err != nil {
			w.logger.Warn("restarting script after calibration failed", "error", err)
		}
	}
	return true, nil
}

// write erases the user page and writes each value in its own frame set,
// unlocking flash before each operation.
func (w *Writer) write(table []float64) error {
	err := w.conn.WriteAddresses(
		[]uint16{labjack.FlashKeyAddr, labjack.FlashEraseAddr},
		[]labjack.DataType{labjack.Int32, labjack.Int32},
		[]float64{labjack.FlashUserKey, 0},
	)
	if err != nil {
		return err
	}

	addrs := []uint16{labjack.FlashKeyAddr, labjack.FlashWritePointerAddr, labjack.FlashWriteAddr}
	types := []labjack.DataType{labjack.Int32, labjack.Int32, labjack.Float32}
	for i, v := range table {
		if err := w.conn.WriteAddresses(addrs, types, []float64{labjack.FlashUserKey, float64(i * slotSize), v}); err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
	}
	return nil
}
