package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency check of /health.
const healthCheckTimeout = 2 * time.Second

// Health states.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthDown     = "down"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/sessions", s.handleListSessions)

		r.Route("/antennas/{n}", func(r chi.Router) {
			r.Get("/", s.handleGetAntenna)
			r.Post("/commands", s.handlePostCommand)
			r.Put("/calibration", s.handlePutCalibration)
		})
		r.Get("/backends/{n}", s.handleGetBackend)

		r.Route("/commands", func(r chi.Router) {
			r.Get("/", s.handleListCommands)
			r.Get("/{id}", s.handleGetCommand)
		})
		r.Get("/calibrations", s.handleListCalibrations)
	})

	path := s.wsCfg.Path
	if path == "" {
		path = "/ws"
	}
	r.Get(path, s.handleWebSocket)

	return r
}

type healthResponse struct {
	Status   string            `json:"status"`
	Site     string            `json:"site,omitempty"`
	Version  string            `json:"version"`
	Uptime   string            `json:"uptime"`
	Sessions any               `json:"sessions"`
	Checks   map[string]string `json:"checks,omitempty"`
	Clients  int               `json:"ws_clients"`
}

// handleHealth reports "ok" when every session runs with its store and
// every dependency answers, "degraded" when some do not, and "down" with
// a 503 when no session is running.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sum := s.sessions.Summary()
	resp := healthResponse{
		Status:   HealthOK,
		Site:     s.site,
		Version:  s.version,
		Uptime:   s.sessions.Uptime().Truncate(time.Second).String(),
		Sessions: sum,
		Clients:  s.hub.ClientCount(),
	}

	total := sum.Antennas + sum.Backends
	if sum.Running < total || sum.Degraded > 0 {
		resp.Status = HealthDegraded
	}

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		for name, c := range s.checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := c.HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = HealthDegraded
				continue
			}
			resp.Checks[name] = HealthOK
		}
	}

	status := http.StatusOK
	if sum.Running == 0 {
		resp.Status = HealthDown
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
