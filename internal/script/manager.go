package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/config"
	"github.com/dsa110/dsa110-hwmc/internal/labjack"
)

// Logger is the logging surface used by the manager.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Manager handles the Lua script of one module.
type Manager struct {
	conn   labjack.Conn
	cfg    config.ScriptConfig
	logger Logger

	// path is the last script loaded; empty until Load succeeds.
	path string
}

// NewManager creates a manager for the module behind conn.
func NewManager(conn labjack.Conn, cfg config.ScriptConfig, logger Logger) *Manager {
	return &Manager{conn: conn, cfg: cfg, logger: logger}
}

// Path returns the script last loaded, or "".
func (m *Manager) Path() string {
	return m.path
}

// Resolve finds a script on disk. It tries, in order, name, name.lua,
// dir/name and dir/name.lua, and returns the first regular file.
func (m *Manager) Resolve(name string) (string, error) {
	candidates := []string{name, name + ".lua"}
	if m.cfg.Dir != "" {
		candidates = append(candidates,
			filepath.Join(m.cfg.Dir, name),
			filepath.Join(m.cfg.Dir, name+".lua"),
		)
	}
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && info.Mode().IsRegular() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q (looked in %q)", ErrNotFound, name, m.cfg.Dir)
}

// Load stops any running script and uploads the file at path.
//
// LUA_RUN is cleared twice with a pause between; some firmware ignores
// the first write while the VM is shutting down.
func (m *Manager) Load(ctx context.Context, path string, compress bool) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	if err := m.conn.WriteName("LUA_RUN", 0); err != nil {
		return err
	}
	if err := sleep(ctx, m.cfg.StopDelay); err != nil {
		return err
	}
	if err := m.conn.WriteName("LUA_RUN", 0); err != nil {
		return err
	}

	if compress {
		src = Compress(src)
	}
	src = terminate(src)

	if err := m.conn.WriteName("LUA_SOURCE_SIZE", float64(len(src))); err != nil {
		return err
	}
	if err := m.conn.WriteNameByteArray("LUA_SOURCE_WRITE", src); err != nil {
		return err
	}

	m.path = path
	m.logger.Info("lua script loaded", "path", path, "bytes", len(src), "compressed", compress)
	return nil
}

// Run starts the loaded script and polls LUA_RUN until the module reports
// it running or the retry budget is spent.
func (m *Manager) Run(ctx context.Context, debug bool) (bool, error) {
	dbg := 0.0
	if debug {
		dbg = 1
	}
	if err := m.conn.WriteName("LUA_DEBUG_ENABLE", dbg); err != nil {
		return false, err
	}
	if err := m.conn.WriteName("LUA_RUN", 1); err != nil {
		return false, err
	}

	for range max(m.cfg.RunRetries, 1) {
		running, err := m.conn.ReadName("LUA_RUN")
		if err != nil {
			return false, err
		}
		if running == 1 {
			return true, nil
		}
		if err := sleep(ctx, m.cfg.RunPoll); err != nil {
			return false, err
		}
	}
	return false, nil
}

// RunOnStartup sets the module to start the saved script at power-up.
// It does nothing until a script has been loaded.
func (m *Manager) RunOnStartup() error {
	if m.path == "" {
		return nil
	}
	return m.conn.WriteName("LUA_RUN_DEFAULT", 1)
}

// SaveToFlash persists the loaded script to module flash.
// It does nothing until a script has been loaded.
func (m *Manager) SaveToFlash() error {
	if m.path == "" {
		return nil
	}
	return m.conn.WriteName("LUA_SAVE_TO_FLASH", 1)
}

// Restart stops and restarts whatever script is in the module, so it
// rereads values such as the calibration table.
func (m *Manager) Restart(ctx context.Context) error {
	if err := m.conn.WriteName("LUA_RUN", 0); err != nil {
		return err
	}
	if err := sleep(ctx, m.cfg.StopDelay); err != nil {
		return err
	}
	if err := m.conn.WriteName("LUA_RUN", 0); err != nil {
		return err
	}
	if err := sleep(ctx, m.cfg.StopDelay); err != nil {
		return err
	}
	return m.conn.WriteName("LUA_RUN", 1)
}

// Install resolves name and runs the full sequence: load compressed, save
// to flash, enable run at startup, then start. A missing script is
// reported as ErrNotFound with no module writes.
func (m *Manager) Install(ctx context.Context, name string) (bool, error) {
	path, err := m.Resolve(name)
	if err != nil {
		return false, err
	}
	if err := m.Load(ctx, path, m.cfg.Compress); err != nil {
		return false, err
	}

	steps := []struct {
		msg string
		fn  func() error
	}{
		{"saving lua script to flash", m.SaveToFlash},
		{"enabling lua script at startup", m.RunOnStartup},
	}
	for _, step := range steps {
		if err := sleep(ctx, m.cfg.StepDelay); err != nil {
			return false, err
		}
		m.logger.Info(step.msg, "path", path)
		if err := step.fn(); err != nil {
			return false, err
		}
	}
	if err := sleep(ctx, m.cfg.StepDelay); err != nil {
		return false, err
	}

	ok, err := m.Run(ctx, false)
	if err != nil {
		return false, err
	}
	if !ok {
		m.logger.Warn("lua script did not start", "path", path)
	} else {
		m.logger.Info("lua script started", "path", path)
	}
	return ok, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
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
