package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dsa110/dsa110-hwmc/internal/hwmc"
	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/config"
	"github.com/dsa110/dsa110-hwmc/internal/journal"
	"github.com/dsa110/dsa110-hwmc/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// storeTimeout bounds a command or calibration put.
const storeTimeout = 5 * time.Second

// Logger is the logging surface used by the server and hub.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Sessions is the view of the running service the API reports on.
// *hwmc.Service satisfies it.
type Sessions interface {
	Sessions() []session.Info
	Summary() hwmc.Summary
	Uptime() time.Duration
}

// Putter writes a document to the distributed store. store.Store satisfies it.
type Putter interface {
	Put(ctx context.Context, key, value string) error
}

// Checker is an infrastructure dependency reported by the health endpoint.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger Logger

	// Sessions is required.
	Sessions Sessions

	// Cache serves the last published monitor sets. Required.
	Cache *Cache

	// Hub streams publications. When nil the server creates its own, which
	// then receives nothing from sessions.
	Hub *Hub

	// Journal serves command and calibration history. Optional.
	Journal journal.Repository

	// Store receives injected commands and calibration tables. Optional;
	// without it those endpoints answer 503.
	Store Putter

	// Checks are reported by /health by name. Optional.
	Checks map[string]Checker

	Site    string
	Version string
}

// Server is the HTTP status API server.
//
// It is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   Logger
	sessions Sessions
	cache    *Cache
	hub      *Hub
	journal  journal.Repository
	store    Putter
	checks   map[string]Checker
	site     string
	version  string

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	serveErr chan error
}

// New creates an API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("sessions are required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		sessions: deps.Sessions,
		cache:    deps.Cache,
		hub:      deps.Hub,
		journal:  deps.Journal,
		store:    deps.Store,
		checks:   deps.Checks,
		site:     deps.Site,
		version:  deps.Version,
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Handler returns the router. It is used by Start and by tests.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start listens on the configured address and serves in the background.
//
// Parameters:
//   - ctx: Cancelling ctx disconnects WebSocket clients; Close stops the listener
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.listener = ln
	s.serveErr = make(chan error, 1)
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
		s.serveErr <- err
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to gracefulShutdownTimeout for in-flight requests to
// complete, then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}

	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	<-s.serveErr
	s.server = nil
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
