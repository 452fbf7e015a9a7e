package session

import (
	"context"
	"encoding/json"
	"time"
)

// Publication is one monitor point document written to the store.
type Publication struct {
	Role   Role
	AntNum int
	Key    string
	Time   time.Time

	// Startup marks the startup health snapshot published once per session.
	Startup bool

	// Payload is the JSON document put on Key.
	Payload json.RawMessage

	// Fields holds the numeric and boolean monitor points for archiving.
	// It is nil for startup snapshots.
	Fields map[string]any
}

// Observer receives every publication after the store put, including
// when the store is unavailable. Observe must not block.
type Observer interface {
	Observe(p Publication)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(p Publication)

// Observe calls f(p).
func (f ObserverFunc) Observe(p Publication) { f(p) }

// Command outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// CommandRecord describes one received command and what became of it.
type CommandRecord struct {
	ID       string    `json:"id"`
	AntNum   int       `json:"ant_num"`
	Key      string    `json:"key"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Received time.Time `json:"received"`
	Outcome  string    `json:"outcome"`
	Error    string    `json:"error,omitempty"`
}

// CalibrationRecord describes one calibration table application.
type CalibrationRecord struct {
	AntNum  int       `json:"ant_num"`
	Length  int       `json:"length"`
	Wrote   bool      `json:"wrote"`
	Error   string    `json:"error,omitempty"`
	Applied time.Time `json:"applied"`
}

// Journal records commands and calibration decisions.
type Journal interface {
	RecordCommand(ctx context.Context, rec CommandRecord) error
	RecordCalibration(ctx context.Context, rec CalibrationRecord) error
}
