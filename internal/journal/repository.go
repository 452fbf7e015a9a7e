package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dsa110/dsa110-hwmc/internal/session"
)

// timeLayout keeps stored timestamps sortable as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Listing limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Repository is the journal as read and written by the daemon.
type Repository interface {
	session.Journal

	// GetCommand returns one command by id, or ErrNotFound.
	GetCommand(ctx context.Context, id string) (*session.CommandRecord, error)

	// ListCommands returns commands matching f, newest first.
	ListCommands(ctx context.Context, f Filter) ([]session.CommandRecord, error)

	// ListCalibrations returns calibration decisions matching f, newest first.
	ListCalibrations(ctx context.Context, f Filter) ([]session.CalibrationRecord, error)
}

// Filter narrows a listing. Zero values select everything.
type Filter struct {
	// AntNum selects one antenna when positive.
	AntNum int

	// Outcome selects one command outcome. Ignored for calibrations.
	Outcome string

	// Since excludes entries before this time.
	Since time.Time

	// Limit caps the number of rows: DefaultLimit when zero, at most MaxLimit.
	Limit int
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultLimit
	case f.Limit > MaxLimit:
		return MaxLimit
	default:
		return f.Limit
	}
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a journal on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordCommand inserts one command. A repeated id is an error.
func (r *SQLiteRepository) RecordCommand(ctx context.Context, rec session.CommandRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO commands (id, ant_num, key, name, value, received_at, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AntNum, rec.Key, rec.Name, rec.Value,
		formatTime(rec.Received), rec.Outcome, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting command %s: %w", rec.ID, err)
	}
	return nil
}

// RecordCalibration inserts one calibration decision.
func (r *SQLiteRepository) RecordCalibration(ctx context.Context, rec session.CalibrationRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calibrations (ant_num, length, wrote, error, applied_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.AntNum, rec.Length, rec.Wrote, rec.Error, formatTime(rec.Applied),
	)
	if err != nil {
		return fmt.Errorf("inserting calibration for antenna %d: %w", rec.AntNum, err)
	}
	return nil
}

// GetCommand returns one command by id.
func (r *SQLiteRepository) GetCommand(ctx context.Context, id string) (*session.CommandRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, ant_num, key, name, value, received_at, outcome, error
		FROM commands
		WHERE id = ?`, id)

	rec, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying command by id: %w", err)
	}
	return &rec, nil
}

// ListCommands returns commands matching f, newest first.
func (r *SQLiteRepository) ListCommands(ctx context.Context, f Filter) ([]session.CommandRecord, error) {
	where, args := conditions(f, "received_at")
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, f.Outcome)
	}
	query := `
		SELECT id, ant_num, key, name, value, received_at, outcome, error
		FROM commands` + clause(where) + `
		ORDER BY received_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, append(args, f.limit())...)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	out := []session.CommandRecord{}
	for rows.Next() {
		rec, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return out, nil
}

// ListCalibrations returns calibration decisions matching f, newest first.
func (r *SQLiteRepository) ListCalibrations(ctx context.Context, f Filter) ([]session.CalibrationRecord, error) {
	where, args := conditions(f, "applied_at")
	query := `
		SELECT ant_num, length, wrote, error, applied_at
		FROM calibrations` + clause(where) + `
		ORDER BY applied_at DESC, id DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, append(args, f.limit())...)
	if err != nil {
		return nil, fmt.Errorf("querying calibrations: %w", err)
	}
	defer rows.Close()

	out := []session.CalibrationRecord{}
	for rows.Next() {
		var (
			rec     session.CalibrationRecord
			applied string
		)
		if err := rows.Scan(&rec.AntNum, &rec.Length, &rec.Wrote, &rec.Error, &applied); err != nil {
			return nil, fmt.Errorf("scanning calibration: %w", err)
		}
		rec.Applied = parseTime(applied)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating calibrations: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(s rowScanner) (session.CommandRecord, error) {
	var (
		rec      session.CommandRecord
		received string
	)
	err := s.Scan(&rec.ID, &rec.AntNum, &rec.Key, &rec.Name, &rec.Value, &received, &rec.Outcome, &rec.Error)
	if err != nil {
		return rec, err
	}
	rec.Received = parseTime(received)
	return rec, nil
}

func conditions(f Filter, timeColumn string) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	if f.AntNum > 0 {
		where = append(where, "ant_num = ?")
		args = append(args, f.AntNum)
	}
	if !f.Since.IsZero() {
		where = append(where, timeColumn+" >= ?")
		args = append(args, formatTime(f.Since))
	}
	return where, args
}

func clause(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return "\n\t\tWHERE " + strings.Join(where, " AND ")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s) //nolint:errcheck // Format is controlled
	return t
}
