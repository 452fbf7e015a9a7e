package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
store:
  backend: "etcd"
  endpoints: ["10.0.0.5:2379"]
  dial_timeout: 3
hardware:
  hosts: ["192.168.1.10", "192.168.1.11:5020"]
  port: 502
polling:
  interval: 500ms
script:
  dir: "/opt/lua"
calibration:
  tolerance: 0.0001
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if len(cfg.Store.Endpoints) != 1 || cfg.Store.Endpoints[0] != "10.0.0.5:2379" {
		t.Errorf("Store.Endpoints = %v, want [10.0.0.5:2379]", cfg.Store.Endpoints)
	}
	if len(cfg.Hardware.Hosts) != 2 {
		t.Errorf("Hardware.Hosts = %v, want 2 entries", cfg.Hardware.Hosts)
	}
	if cfg.Polling.Interval != 500*time.Millisecond {
		t.Errorf("Polling.Interval = %v, want 500ms", cfg.Polling.Interval)
	}
	if cfg.Script.Dir != "/opt/lua" {
		t.Errorf("Script.Dir = %q, want %q", cfg.Script.Dir, "/opt/lua")
	}
	if cfg.Calibration.Tolerance != 0.0001 {
		t.Errorf("Calibration.Tolerance = %v, want 0.0001", cfg.Calibration.Tolerance)
	}

	// Unset fields keep their defaults.
	if cfg.Hardware.ProductID != 7 {
		t.Errorf("Hardware.ProductID = %d, want 7", cfg.Hardware.ProductID)
	}
	if cfg.Script.RunRetries != 20 {
		t.Errorf("Script.RunRetries = %d, want 20", cfg.Script.RunRetries)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Store.Backend != StoreBackendEtcd {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, StoreBackendEtcd)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
store:
  backend: "zookeeper"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for unknown store backend, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: true,
		},
		{
			name:    "etcd without endpoints",
			mutate:  func(c *Config) { c.Store.Endpoints = nil },
			wantErr: true,
		},
		{
			name: "memory backend needs no endpoints",
			mutate: func(c *Config) {
				c.Store.Backend = StoreBackendMemory
				c.Store.Endpoints = nil
			},
			wantErr: false,
		},
		{
			name: "mqtt backend without prefix",
			mutate: func(c *Config) {
				c.Store.Backend = StoreBackendMQTT
				c.Store.TopicPrefix = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid API port",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name: "API port ignored when disabled",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
			wantErr: false,
		},
		{
			name:    "zero polling interval",
			mutate:  func(c *Config) { c.Polling.Interval = 0 },
			wantErr: true,
		},
		{
			name:    "non-positive tolerance",
			mutate:  func(c *Config) { c.Calibration.Tolerance = 0 },
			wantErr: true,
		},
		{
			name: "register address out of range",
			mutate: func(c *Config) {
				c.Hardware.Registers = map[string]RegisterConfig{"AIN0": {Address: 70000, Type: "F32"}}
			},
			wantErr: true,
		},
		{
			name: "simulate with no modules",
			mutate: func(c *Config) {
				c.Simulate.Enabled = true
				c.Simulate.Modules = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		Store:    StoreConfig{DialTimeout: 4},
		Hardware: HardwareConfig{Timeout: 250},
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetDialTimeout(); got != 4*time.Second {
		t.Errorf("GetDialTimeout() = %v, want 4s", got)
	}
	if got := cfg.GetHardwareTimeout(); got != 250*time.Millisecond {
		t.Errorf("GetHardwareTimeout() = %v, want 250ms", got)
	}
	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("HWMC_STORE_BACKEND", "MQTT")
	t.Setenv("HWMC_STORE_ENDPOINTS", "a:2379, b:2379")
	t.Setenv("HWMC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("HWMC_MQTT_USERNAME", "testuser")
	t.Setenv("HWMC_MQTT_PASSWORD", "testpass")
	t.Setenv("HWMC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("HWMC_DATABASE_PATH", "/custom/path.db")
	t.Setenv("HWMC_API_PORT", "9000")
	t.Setenv("HWMC_HARDWARE_HOSTS", "10.1.1.1,10.1.1.2")
	t.Setenv("HWMC_SIMULATE", "true")

	applyEnvOverrides(cfg)

	if cfg.Store.Backend != StoreBackendMQTT {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, StoreBackendMQTT)
	}
	if len(cfg.Store.Endpoints) != 2 || cfg.Store.Endpoints[1] != "b:2379" {
		t.Errorf("Store.Endpoints = %v, want [a:2379 b:2379]", cfg.Store.Endpoints)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if len(cfg.Hardware.Hosts) != 2 {
		t.Errorf("Hardware.Hosts = %v, want 2 entries", cfg.Hardware.Hosts)
	}
	if !cfg.Simulate.Enabled {
		t.Error("Simulate.Enabled = false, want true")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Store.Endpoints[0] != "etcdv3service.sas.pvt:2379" {
		t.Errorf("default store endpoint = %q", cfg.Store.Endpoints[0])
	}
	if cfg.Polling.Interval != time.Second {
		t.Errorf("default Polling.Interval = %v, want 1s", cfg.Polling.Interval)
	}
	if cfg.Calibration.Tolerance != 1e-3 {
		t.Errorf("default Calibration.Tolerance = %v, want 1e-3", cfg.Calibration.Tolerance)
	}
	if cfg.Simulate.Modules != 6 {
		t.Errorf("default Simulate.Modules = %d, want 6", cfg.Simulate.Modules)
	}
	if cfg.Versions.Firmware != 1.029 {
		t.Errorf("default Versions.Firmware = %v, want 1.029", cfg.Versions.Firmware)
	}
}
