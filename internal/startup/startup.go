// Package startup reads a module's identity and health at session start.
package startup

import (
	"bytes"
	"context"
	"math"
	"time"

	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/config"
	"github.com/dsa110/dsa110-hwmc/internal/labjack"
)

// deviceNameLen is the size of the DEVICE_NAME_DEFAULT buffer.
const deviceNameLen = 49

// State is the startup health snapshot of one module.
type State struct {
	Factory     bool    `json:"factory"`
	ProductID   int     `json:"prod_id"`
	HWVersion   float64 `json:"hw_ver"`
	FWVersion   float64 `json:"fw_ver"`
	BootVersion float64 `json:"boot_ver"`
	Serial      int64   `json:"ser_no"`
	DeviceName  string  `json:"dev_name"`
	LuaRunning  bool    `json:"lua_running"`
	LuaVersion  float64 `json:"lua_code_ver"`
	ConfigValid bool    `json:"config_valid"`
}

// Options controls a check.
type Options struct {
	// ProductID is the expected PRODUCT_ID.
	ProductID int

	// RequireScript attempts to start the saved script when none is
	// running, and marks the configuration invalid if that fails.
	RequireScript bool

	// AutostartDelay is the pause after each autostart write.
	AutostartDelay time.Duration

	// Minimum lists version floors; modules below them are logged.
	Minimum config.VersionConfig
}

// Logger is the logging surface used by Check.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Check reads the module identity registers and the Lua engine state.
//
// A transport error stops the check; the partial state is returned with
// ConfigValid false alongside the error.
func Check(ctx context.Context, conn labjack.Conn, opts Options, logger Logger) (State, error) {
	st := State{ProductID: -1, LuaVersion: -1}

	r := reader{conn: conn}
	st.Factory = r.read("IO_CONFIG_CHECK_FOR_FACTORY") != 0
	st.ProductID = int(math.Round(r.read("PRODUCT_ID")))
	st.HWVersion = round(r.read("HARDWARE_VERSION"), 3)
	st.FWVersion = round(r.read("FIRMWARE_VERSION"), 4)
	st.BootVersion = round(r.read("BOOTLOADER_VERSION"), 3)
	st.Serial = int64(r.read("SERIAL_NUMBER"))
	if r.err == nil {
		name, err := conn.ReadNameByteArray("DEVICE_NAME_DEFAULT", deviceNameLen)
		if err != nil {
			r.err = err
		} else {
			if i := bytes.IndexByte(name, 0); i >= 0 {
				name = name[:i]
			}
			st.DeviceName = string(name)
		}
	}
	st.LuaRunning = r.read("LUA_RUN") == 1
	if r.err != nil {
		return st, r.err
	}

	if !st.LuaRunning && opts.RequireScript {
		logger.Warn("lua script not running, starting saved script")
		running, err := autostart(ctx, conn, opts.AutostartDelay)
		if err != nil {
			return st, err
		}
		st.LuaRunning = running
		if !running {
			logger.Warn("saved lua script failed to start")
		}
	}

	v, err := conn.ReadAddress(labjack.LuaCodeVersionAddr, labjack.Float32)
	if err != nil {
		return st, err
	}
	st.LuaVersion = round(v, 3)

	st.ConfigValid = st.ProductID == opts.ProductID && (!opts.RequireScript || st.LuaRunning)
	checkVersions(st, opts, logger)

	logger.Info("module startup check",
		"product_id", st.ProductID,
		"serial", st.Serial,
		"name", st.DeviceName,
		"hw_ver", st.HWVersion,
		"fw_ver", st.FWVersion,
		"boot_ver", st.BootVersion,
		"lua_running", st.LuaRunning,
		"lua_ver", st.LuaVersion,
		"config_valid", st.ConfigValid,
	)
	return st, nil
}

// autostart loads the script saved in flash and starts it.
func autostart(ctx context.Context, conn labjack.Conn, delay time.Duration) (bool, error) {
	if err := conn.WriteName("LUA_LOAD_SAVED", 1); err != nil {
		return false, err
	}
	if err := wait(ctx, delay); err != nil {
		return false, err
	}
	if err := conn.WriteName("LUA_RUN", 1); err != nil {
		return false, err
	}
	if err := wait(ctx, delay); err != nil {
		return false, err
	}
	v, err := conn.ReadName("LUA_RUN")
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

type floor struct {
	name string
	have float64
	min  float64
}

func checkVersions(st State, opts Options, logger Logger) {
	floors := []floor{
		{"hardware", st.HWVersion, opts.Minimum.Hardware},
		{"firmware", st.FWVersion, opts.Minimum.Firmware},
		{"bootloader", st.BootVersion, opts.Minimum.Bootloader},
	}
	if opts.RequireScript {
		floors = append(floors, floor{"script", st.LuaVersion, opts.Minimum.Script})
	}
	for _, f := range floors {
		if f.have < f.min {
			logger.Warn("module version below minimum", "component", f.name, "version", f.have, "minimum", f.min)
		}
	}
}

// reader reads registers until the first error, then returns zeros.
type reader struct {
	conn labjack.Conn
	err  error
}

func (r *reader) read(name string) float64 {
	if r.err != nil {
		return 0
	}
	v, err := r.conn.ReadName(name)
	if err != nil {
		r.err = err
		return 0
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
