package hwmc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dsa110/dsa110-hwmc/internal/session"
)

// Logger is the logging surface used by the service.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Summary counts sessions by role and state.
type Summary struct {
	Antennas int `json:"antennas"`
	Backends int `json:"backends"`
	Running  int `json:"running"`
	Degraded int `json:"degraded"`
	Stopped  int `json:"stopped"`
}

// Service owns the sessions of one daemon.
//
// Thread Safety: All methods are safe for concurrent use.
type Service struct {
	sessions []session.Session
	logger   Logger

	wg sync.WaitGroup

	mu      sync.Mutex
	started bool
	since   time.Time
}

// New creates a service for sessions. The order of sessions is kept in
// status snapshots.
func New(sessions []session.Session, logger Logger) *Service {
	return &Service{
		sessions: sessions,
		logger:   logger,
	}
}

// Start launches one goroutine per session and returns immediately.
//
// Parameters:
//   - ctx: Cancelling ctx stops every session
//
// Returns:
//   - error: ErrAlreadyStarted on a second call, ErrNoSessions when there
//     is nothing to run
func (s *Service) Start(ctx context.Context) error {
	if len(s.sessions) == 0 {
		return ErrNoSessions
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.since = time.Now()
	s.mu.Unlock()

	for _, sess := range s.sessions {
		s.wg.Add(1)
		go func(sess session.Session) {
			defer s.wg.Done()
			if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("session exited with error",
					"role", sess.Role(),
					"number", sess.Number(),
					"error", err,
				)
			}
		}(sess)
	}

	s.logger.Info("sessions started", "count", len(s.sessions))
	return nil
}

// Stop requests a cooperative stop of every session. It does not wait.
func (s *Service) Stop() {
	for _, sess := range s.sessions {
		sess.Stop()
	}
}

// Wait blocks until every started session is Stopped.
func (s *Service) Wait() {
	if !s.isStarted() {
		return
	}
	s.wg.Wait()
	for _, sess := range s.sessions {
		<-sess.Done()
	}
}

// Shutdown stops every session and waits for them, giving up when ctx
// is done. Sessions that were never started have their module
// connections released.
//
// Returns:
//   - error: ctx.Err() if the sessions did not stop in time
func (s *Service) Shutdown(ctx context.Context) error {
	if !s.isStarted() {
		for _, sess := range s.sessions {
			_ = sess.Close()
		}
		return nil
	}

	s.Stop()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sessions stopped", "count", len(s.sessions))
		return nil
	case <-ctx.Done():
		pending := 0
		for _, sess := range s.sessions {
			if sess.State() != session.StateStopped {
				pending++
			}
		}
		return fmt.Errorf("waiting for %d sessions: %w", pending, ctx.Err())
	}
}

// Sessions returns a status snapshot of every session.
func (s *Service) Sessions() []session.Info {
	out := make([]session.Info, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Info())
	}
	return out
}

// Session returns the status of one session.
func (s *Service) Session(role session.Role, number int) (session.Info, bool) {
	for _, sess := range s.sessions {
		if sess.Role() == role && sess.Number() == number {
			return sess.Info(), true
		}
	}
	return session.Info{}, false
}

// Summary counts sessions by role and state. A running session without
// a store connection counts as degraded.
func (s *Service) Summary() Summary {
	var sum Summary
	for _, sess := range s.sessions {
		info := sess.Info()
		switch info.Role {
		case session.RoleAntenna:
			sum.Antennas++
		case session.RoleBackend:
			sum.Backends++
		}
		switch info.State {
		case session.StateRunning:
			sum.Running++
			if !info.StoreValid {
				sum.Degraded++
			}
		case session.StateStopped:
			sum.Stopped++
		}
	}
	return sum
}

// Uptime returns the time since Start, or zero before it.
func (s *Service) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return 0
	}
	return time.Since(s.since)
}

func (s *Service) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
