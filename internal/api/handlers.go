package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dsa110/dsa110-hwmc/internal/codec"
	"github.com/dsa110/dsa110-hwmc/internal/journal"
	"github.com/dsa110/dsa110-hwmc/internal/session"
	"github.com/dsa110/dsa110-hwmc/internal/store"
)

// monitorResponse is a monitor snapshot with the status of the session
// that publishes it, when there is one.
type monitorResponse struct {
	Session *session.Info `json:"session,omitempty"`
	Snapshot
}

// handleListSessions returns the status of every session.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	infos := s.sessions.Sessions()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": infos,
		"count":    len(infos),
	})
}

// handleGetAntenna returns the last monitor set and startup snapshot of
// one antenna.
func (s *Server) handleGetAntenna(w http.ResponseWriter, r *http.Request) {
	n, ok := antennaParam(w, r, false)
	if !ok {
		return
	}
	s.writeMonitor(w, store.MonAnt(n), n, func(info session.Info) bool {
		return info.Role == session.RoleAntenna && info.Number == n
	})
}

// handleGetBackend returns the last backend monitor set of one antenna.
// The startup snapshot is held by the first antenna a backend serves.
func (s *Server) handleGetBackend(w http.ResponseWriter, r *http.Request) {
	n, ok := antennaParam(w, r, false)
	if !ok {
		return
	}
	s.writeMonitor(w, store.MonBeb(n), n, func(info session.Info) bool {
		return info.Role == session.RoleBackend &&
			n >= info.Number && n < info.Number+codec.BackendAntennas
	})
}

func (s *Server) writeMonitor(w http.ResponseWriter, key string, n int, owns func(session.Info) bool) {
	resp := monitorResponse{}
	for _, info := range s.sessions.Sessions() {
		if owns(info) {
			resp.Session = &info
			break
		}
	}

	snap, cached := s.cache.Get(key)
	if !cached && resp.Session == nil {
		writeNotFound(w, "no module publishes "+key)
		return
	}
	if !cached {
		snap = Snapshot{Key: key, AntNum: n}
	}
	resp.Snapshot = snap
	writeJSON(w, http.StatusOK, resp)
}

// handlePostCommand validates a command document and puts it on the
// antenna's command key. Antenna 0 is the broadcast key.
func (s *Server) handlePostCommand(w http.ResponseWriter, r *http.Request) {
	n, ok := antennaParam(w, r, true)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	cmd, err := codec.ParseCommand(body)
	if err == nil {
		_, err = codec.PlanAntenna(cmd)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	key := store.CmdAnt(n)
	if !s.put(w, r, key, string(body)) {
		return
	}
	s.logger.Info("command injected", "key", key, "cmd", cmd.Name)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"key": key,
		"cmd": cmd.Name,
	})
}

// handlePutCalibration validates a calibration table and puts it on the
// antenna's calibration key.
func (s *Server) handlePutCalibration(w http.ResponseWriter, r *http.Request) {
	n, ok := antennaParam(w, r, false)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	table, err := codec.ParseCalibration(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	doc, err := codec.EncodeCalibration(table)
	if err != nil {
		writeInternalError(w, "encoding calibration table")
		return
	}

	key := store.CalAnt(n)
	if !s.put(w, r, key, string(doc)) {
		return
	}
	s.logger.Info("calibration table stored", "key", key, "values", len(table))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"key":    key,
		"values": len(table),
	})
}

func (s *Server) put(w http.ResponseWriter, r *http.Request, key, value string) bool {
	if s.store == nil {
		writeUnavailable(w, "store not connected")
		return false
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	if err := s.store.Put(ctx, key, value); err != nil {
		s.logger.Warn("store put failed", "key", key, "error", err)
		writeUnavailable(w, "store put failed")
		return false
	}
	return true
}

// handleListCommands returns journaled commands, newest first.
// Query parameters: ant, outcome, since (RFC 3339), limit.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal disabled")
		return
	}
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	f.Outcome = r.URL.Query().Get("outcome")

	recs, err := s.journal.ListCommands(r.Context(), f)
	if err != nil {
		s.logger.Error("listing commands failed", "error", err)
		writeInternalError(w, "listing commands failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commands": recs,
		"count":    len(recs),
	})
}

// handleGetCommand returns one journaled command.
func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal disabled")
		return
	}
	rec, err := s.journal.GetCommand(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, journal.ErrNotFound) {
		writeNotFound(w, "command not found")
		return
	}
	if err != nil {
		s.logger.Error("reading command failed", "error", err)
		writeInternalError(w, "reading command failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleListCalibrations returns journaled calibration decisions.
func (s *Server) handleListCalibrations(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal disabled")
		return
	}
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}

	recs, err := s.journal.ListCalibrations(r.Context(), f)
	if err != nil {
		s.logger.Error("listing calibrations failed", "error", err)
		writeInternalError(w, "listing calibrations failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"calibrations": recs,
		"count":        len(recs),
	})
}

// antennaParam reads {n}. Zero is accepted only where broadcast makes sense.
func antennaParam(w http.ResponseWriter, r *http.Request, allowZero bool) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 0 || (n == 0 && !allowZero) {
		writeBadRequest(w, "invalid antenna number")
		return 0, false
	}
	return n, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body: "+err.Error())
		return nil, false
	}
	return body, true
}

func parseFilter(w http.ResponseWriter, r *http.Request) (journal.Filter, bool) {
	var f journal.Filter
	q := r.URL.Query()

	if v := q.Get("ant"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "invalid ant")
			return f, false
		}
		f.AntNum = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "invalid limit")
			return f, false
		}
		f.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be RFC 3339")
			return f, false
		}
		f.Since = t
	}
	return f, true
}
