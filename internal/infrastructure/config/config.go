package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the hardware monitor and control daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Store       StoreConfig       `yaml:"store"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Database    DatabaseConfig    `yaml:"database"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Logging     LoggingConfig     `yaml:"logging"`
	Hardware    HardwareConfig    `yaml:"hardware"`
	Polling     PollingConfig     `yaml:"polling"`
	Script      ScriptConfig      `yaml:"script"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Versions    VersionConfig     `yaml:"versions"`
	Simulate    SimulateConfig    `yaml:"simulate"`
}

// SiteConfig identifies the deployment.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Store backends.
const (
	StoreBackendEtcd   = "etcd"
	StoreBackendMQTT   = "mqtt"
	StoreBackendMemory = "memory"
)

// StoreConfig selects and configures the distributed key/value store
// that carries monitor data, commands and calibration tables.
type StoreConfig struct {
	Backend     string   `yaml:"backend"`
	Endpoints   []string `yaml:"endpoints"`
	DialTimeout int      `yaml:"dial_timeout"` // seconds
	TopicPrefix string   `yaml:"topic_prefix"` // mqtt backend only
	GetTimeout  int      `yaml:"get_timeout"`  // seconds, mqtt backend only
}

// DatabaseConfig contains SQLite database settings for the command journal.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// CORSConfig lists origins allowed to call the API from a browser.
// An empty list allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for the monitor archive.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"` // stdout, stderr, or file
	File   string `yaml:"file"`   // path used when output is "file"
}

// HardwareConfig describes how LabJack T7 modules are reached over Modbus TCP.
type HardwareConfig struct {
	Hosts        []string                  `yaml:"hosts"`
	ScanCIDR     string                    `yaml:"scan_cidr"`
	Port         int                       `yaml:"port"`
	Timeout      int                       `yaml:"timeout"` // milliseconds
	SlaveID      int                       `yaml:"slave_id"`
	ProductID    int                       `yaml:"product_id"`
	ProbeWorkers int                       `yaml:"probe_workers"`
	Registers    map[string]RegisterConfig `yaml:"registers"`
}

// RegisterConfig overrides a single entry of the built-in register map.
type RegisterConfig struct {
	Address int    `yaml:"address"`
	Type    string `yaml:"type"`
}

// PollingConfig controls the monitor loop cadence.
type PollingConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ScriptConfig controls on-device Lua script handling.
type ScriptConfig struct {
	Dir            string        `yaml:"dir"`
	Antenna        string        `yaml:"antenna"`
	Compress       bool          `yaml:"compress"`
	Required       bool          `yaml:"required"`
	StopDelay      time.Duration `yaml:"stop_delay"`
	StepDelay      time.Duration `yaml:"step_delay"`
	RunRetries     int           `yaml:"run_retries"`
	RunPoll        time.Duration `yaml:"run_poll"`
	AutostartDelay time.Duration `yaml:"autostart_delay"`
}

// CalibrationConfig controls inclinometer calibration writes.
type CalibrationConfig struct {
	Tolerance float64 `yaml:"tolerance"`
}

// VersionConfig holds minimum acceptable module versions.
type VersionConfig struct {
	Hardware   float64 `yaml:"hardware"`
	Firmware   float64 `yaml:"firmware"`
	Bootloader float64 `yaml:"bootloader"`
	Script     float64 `yaml:"script"`
}

// SimulateConfig enables the simulated module fixture.
type SimulateConfig struct {
	Enabled bool `yaml:"enabled"`
	Modules int  `yaml:"modules"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// An empty path skips step 2, so the daemon can run from defaults and
// environment alone.
//
// Environment variables follow the pattern: HWMC_SECTION_KEY
// For example: HWMC_STORE_ENDPOINTS, HWMC_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file (may be empty)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "dsa110",
			Name: "DSA-110 analog hardware",
		},
		Store: StoreConfig{
			Backend:     StoreBackendEtcd,
			Endpoints:   []string{"etcdv3service.sas.pvt:2379"},
			DialTimeout: 5,
			TopicPrefix: "dsa110",
			GetTimeout:  2,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hwmc",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "dsa110",
			Bucket:        "hwmc",
			BatchSize:     500,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/hwmc.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8110,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Hardware: HardwareConfig{
			Port:         502,
			Timeout:      2000,
			SlaveID:      1,
			ProductID:    7,
			ProbeWorkers: 16,
		},
		Polling: PollingConfig{
			Interval: time.Second,
		},
		Script: ScriptConfig{
			Dir:            "../lua-scripts",
			Antenna:        "antenna_control",
			Compress:       true,
			Required:       true,
			StopDelay:      600 * time.Millisecond,
			StepDelay:      time.Second,
			RunRetries:     20,
			RunPoll:        500 * time.Millisecond,
			AutostartDelay: 2 * time.Second,
		},
		Calibration: CalibrationConfig{
			Tolerance: 1e-3,
		},
		Versions: VersionConfig{
			Hardware:   1.300,
			Firmware:   1.029,
			Bootloader: 0.940,
			Script:     1.000,
		},
		Simulate: SimulateConfig{
			Modules: 6,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HWMC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Store
	if v := os.Getenv("HWMC_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("HWMC_STORE_ENDPOINTS"); v != "" {
		cfg.Store.Endpoints = splitList(v)
	}

	// MQTT
	if v := os.Getenv("HWMC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HWMC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HWMC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("HWMC_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("HWMC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("HWMC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("HWMC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("HWMC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Hardware
	if v := os.Getenv("HWMC_HARDWARE_HOSTS"); v != "" {
		cfg.Hardware.Hosts = splitList(v)
	}

	// Script
	if v := os.Getenv("HWMC_SCRIPT_DIR"); v != "" {
		cfg.Script.Dir = v
	}

	// Logging
	if v := os.Getenv("HWMC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Simulate
	if v := os.Getenv("HWMC_SIMULATE"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			cfg.Simulate.Enabled = on
		}
	}
}

// splitList splits a comma-separated value, trimming blanks.
func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Store validation
	switch c.Store.Backend {
	case StoreBackendEtcd:
		if len(c.Store.Endpoints) == 0 {
			errs = append(errs, "store.endpoints is required for the etcd backend")
		}
	case StoreBackendMQTT:
		if c.Store.TopicPrefix == "" {
			errs = append(errs, "store.topic_prefix is required for the mqtt backend")
		}
	case StoreBackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("store.backend %q must be etcd, mqtt, or memory", c.Store.Backend))
	}
	if c.Store.DialTimeout < 1 {
		errs = append(errs, "store.dial_timeout must be at least 1 second")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Hardware validation
	if c.Hardware.Port < 1 || c.Hardware.Port > 65535 {
		errs = append(errs, "hardware.port must be between 1 and 65535")
	}
	if c.Hardware.Timeout < 1 {
		errs = append(errs, "hardware.timeout must be positive")
	}
	for name, reg := range c.Hardware.Registers {
		if reg.Address < 0 || reg.Address > 65535 {
			errs = append(errs, fmt.Sprintf("hardware.registers.%s.address out of range", name))
		}
	}

	if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File == "" {
		errs = append(errs, "logging.file is required when logging.output is file")
	}

	if c.Polling.Interval <= 0 {
		errs = append(errs, "polling.interval must be positive")
	}
	if c.Script.RunRetries < 1 {
		errs = append(errs, "script.run_retries must be at least 1")
	}
	if c.Calibration.Tolerance <= 0 {
		errs = append(errs, "calibration.tolerance must be positive")
	}
	if c.Simulate.Enabled && c.Simulate.Modules < 1 {
		errs = append(errs, "simulate.modules must be at least 1 in simulate mode")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetDialTimeout returns the store connect timeout as a Duration.
func (c *Config) GetDialTimeout() time.Duration {
	return time.Duration(c.Store.DialTimeout) * time.Second
}

// GetHardwareTimeout returns the per-request Modbus timeout as a Duration.
func (c *Config) GetHardwareTimeout() time.Duration {
	return time.Duration(c.Hardware.Timeout) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
