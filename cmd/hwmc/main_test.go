package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, options{configPath: "/nonexistent/path/config.yaml"}); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidStoreBackend verifies validation errors stop startup.
func TestRun_InvalidStoreBackend(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: zookeeper
`)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, options{configPath: path}); err == nil {
		t.Fatal("run() should fail with an unknown store backend")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("HWMC_CONFIG", "")
	if got := getConfigPath("/etc/hwmc.yaml"); got != "/etc/hwmc.yaml" {
		t.Errorf("flag path = %q", got)
	}

	t.Setenv("HWMC_CONFIG", "/custom/path/config.yaml")
	if got := getConfigPath(""); got != "/custom/path/config.yaml" {
		t.Errorf("env path = %q", got)
	}
	if got := getConfigPath("/etc/hwmc.yaml"); got != "/etc/hwmc.yaml" {
		t.Errorf("flag must win over env, got %q", got)
	}

	t.Setenv("HWMC_CONFIG", "")
	if got := getConfigPath(""); got != "" {
		t.Errorf("missing default path should yield empty, got %q", got)
	}
}

// TestRun_Simulate starts the daemon against simulated modules with an
// in-memory store and a journal, checks the API reports running sessions,
// then shuts it down.
func TestRun_Simulate(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	path := writeConfig(t, fmt.Sprintf(`
site:
  id: test-site
store:
  backend: memory
database:
  enabled: true
  path: %q
api:
  enabled: true
  host: 127.0.0.1
  port: %d
logging:
  level: error
  format: text
polling:
  interval: 50ms
script:
  dir: %q
  stop_delay: 1ms
  step_delay: 1ms
  run_poll: 1ms
  autostart_delay: 1ms
simulate:
  modules: 4
`, filepath.Join(dir, "hwmc.db"), port, dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, options{configPath: path, simulate: true}) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	deadline := time.Now().Add(10 * time.Second)
	for {
		if status, ok := health(url); ok && status.Sessions.Running == 4 {
			if status.Sessions.Antennas != 2 || status.Sessions.Backends != 2 {
				t.Errorf("sessions = %+v", status.Sessions)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sessions never reported running")
		}
		select {
		case err := <-done:
			t.Fatalf("run() returned early: %v", err)
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

type healthStatus struct {
	Status   string `json:"status"`
	Sessions struct {
		Antennas int `json:"antennas"`
		Backends int `json:"backends"`
		Running  int `json:"running"`
	} `json:"sessions"`
}

func health(url string) (healthStatus, bool) {
	var status healthStatus
	resp, err := http.Get(url) //nolint:gosec // test-local URL
	if err != nil {
		return status, false
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, false
	}
	return status, true
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
