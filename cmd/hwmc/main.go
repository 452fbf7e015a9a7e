// DSA-110 hardware monitor and control daemon.
//
// hwmc discovers the LabJack T7 modules of the analog signal path, runs
// one monitor/control session per module and publishes monitor points to
// the distributed store, where it also receives antenna commands and
// inclinometer calibration tables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dsa110/dsa110-hwmc/internal/api"
	"github.com/dsa110/dsa110-hwmc/internal/archive"
	"github.com/dsa110/dsa110-hwmc/internal/discovery"
	"github.com/dsa110/dsa110-hwmc/internal/hwmc"
	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/config"
	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/database"
	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/influxdb"
	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/logging"
	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/mqtt"
	"github.com/dsa110/dsa110-hwmc/internal/journal"
	"github.com/dsa110/dsa110-hwmc/internal/labjack"
	"github.com/dsa110/dsa110-hwmc/internal/session"
	"github.com/dsa110/dsa110-hwmc/internal/store"
	"github.com/dsa110/dsa110-hwmc/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds the cooperative stop of all sessions.
const shutdownTimeout = 30 * time.Second

// options are the command-line settings passed to run.
type options struct {
	configPath string
	simulate   bool
}

func main() {
	var opts options
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.StringVar(&opts.configPath, "config", "", "configuration file (default $HWMC_CONFIG or "+defaultConfigPath+")")
	flag.BoolVar(&opts.simulate, "sim", false, "run against simulated modules")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hwmc %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error: loading .env: %v\n", err)
		os.Exit(1)
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Command-line settings
//
// Returns:
//   - error: nil on clean shutdown, or error describing a startup failure
func run(ctx context.Context, opts options) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting hwmc",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath(opts.configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.simulate {
		cfg.Simulate.Enabled = true
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version).With("site", cfg.Site.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	checks := make(map[string]api.Checker)
	var observers []session.Observer

	// Service status on the broker (optional)
	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"status_topic", mqtt.Topics{}.Status(mqttClient.ClientID()),
		)
	}

	// Monitor archive (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		checks["influxdb"] = influxClient
		observers = append(observers, archive.New(influxClient, cfg.Site.ID))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Command journal (optional)
	var jrnl journal.Repository
	if cfg.Database.Enabled {
		db, err := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		checks["database"] = db
		jrnl = journal.NewSQLiteRepository(db.DB)
		log.Info("journal ready", "path", cfg.Database.Path)
	}

	dialer, err := store.NewDialer(cfg, log.With("component", "store"))
	if err != nil {
		return fmt.Errorf("creating store dialer: %w", err)
	}

	driver, err := newDriver(cfg, log)
	if err != nil {
		return err
	}

	var (
		cache *api.Cache
		hub   *api.Hub
	)
	apiLog := log.With("component", "api")
	if cfg.API.Enabled {
		cache = api.NewCache()
		hub = api.NewHub(cfg.WebSocket, apiLog)
		observers = append(observers, cache, hub)
	}

	coordinator, err := discovery.NewCoordinator(discovery.Options{
		Driver:   driver,
		Simulate: cfg.Simulate.Enabled,
		Session: session.Options{
			Dialer:    dialer,
			Config:    cfg,
			Logger:    log,
			Observers: observers,
			Journal:   jrnl,
		},
		SessionLogger: func(role session.Role, number int) session.Logger {
			return log.With("component", "session", role.String(), number)
		},
		Logger: log.With("component", "discovery"),
	})
	if err != nil {
		return fmt.Errorf("creating discovery coordinator: %w", err)
	}
	found, err := coordinator.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovering modules: %w", err)
	}

	svc := hwmc.New(found.Sessions(), log.With("component", "service"))
	switch err := svc.Start(ctx); {
	case errors.Is(err, hwmc.ErrNoSessions):
		log.Warn("no modules discovered, nothing to monitor")
	case err != nil:
		return fmt.Errorf("starting sessions: %w", err)
	}

	if cfg.API.Enabled {
		srv, err := startAPI(ctx, cfg, apiLog, dialer, svc, cache, hub, jrnl, checks)
		if err != nil {
			shutdownSessions(svc, log)
			return err
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"antennas", len(found.Antennas),
		"backends", len(found.Backends),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, stopping sessions")
	shutdownSessions(svc, log)

	// Deferred Close() calls run in reverse order:
	// API server, store connection, database, InfluxDB, MQTT.
	log.Info("hwmc stopped")
	return nil
}

// getConfigPath returns the configuration file path: the -config flag,
// then HWMC_CONFIG, then the default path when it exists. An empty result
// runs from defaults and environment alone.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("HWMC_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// newDriver builds the register map and the module driver for the
// configured mode.
func newDriver(cfg *config.Config, log *logging.Logger) (labjack.Driver, error) {
	regs := labjack.NewRegisterMap()
	if err := regs.OverrideAll(cfg.Hardware.Registers); err != nil {
		return nil, fmt.Errorf("applying register overrides: %w", err)
	}
	if cfg.Simulate.Enabled {
		log.Info("simulate mode", "modules", cfg.Simulate.Modules)
		return labjack.NewSimDriver(cfg.Simulate.Modules, regs), nil
	}
	return labjack.NewModbusDriver(cfg.Hardware, regs, log.With("component", "labjack")), nil
}

// startAPI starts the status API with its own store connection for
// command and calibration injection. A failed store dial leaves those
// endpoints unavailable and the rest of the API running.
func startAPI(
	ctx context.Context,
	cfg *config.Config,
	log *logging.Logger,
	dialer store.Dialer,
	svc *hwmc.Service,
	cache *api.Cache,
	hub *api.Hub,
	jrnl journal.Repository,
	checks map[string]api.Checker,
) (*apiServer, error) {
	var putter api.Putter
	conn, err := dialer.Dial(ctx, "api")
	if err != nil {
		log.Warn("store unavailable, command injection disabled", "error", err)
	} else {
		putter = conn
	}

	srv, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Sessions: svc,
		Cache:    cache,
		Hub:      hub,
		Journal:  jrnl,
		Store:    putter,
		Checks:   checks,
		Site:     cfg.Site.ID,
		Version:  version,
	})
	if err == nil {
		err = srv.Start(ctx)
	}
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	return &apiServer{Server: srv, conn: conn}, nil
}

// apiServer couples the API server with its store connection.
type apiServer struct {
	*api.Server
	conn store.Store
}

// Close stops the server, then releases its store connection.
func (s *apiServer) Close() error {
	err := s.Server.Close()
	if s.conn != nil {
		err = errors.Join(err, s.conn.Close())
	}
	return err
}

// shutdownSessions stops every session and waits up to shutdownTimeout.
func shutdownSessions(svc *hwmc.Service, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		log.Error("sessions did not stop cleanly", "error", err)
		return
	}
	log.Info("all sessions stopped")
}
