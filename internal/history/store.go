// Package history persists run outcomes to SQLite so past runs can be
// listed and inspected. The store is append-only; a run never reads it.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/madupadilshan/Network-Automation/internal/events"
)

// SchemaVersion is the schema this binary writes.
const SchemaVersion = 1

// stampLayout sorts lexically in time order.
const stampLayout = "2006-01-02T15:04:05.000000000Z"

// Run is one persisted fleet run.
type Run struct {
	ID        string    `json:"id"`
	Workflow  string    `json:"workflow"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished,omitempty"`
	Devices   int       `json:"devices"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	DryRun    bool      `json:"dry_run"`
}

// Outcome is one persisted device result.
type Outcome struct {
	RunID    string        `json:"run_id"`
	Device   string        `json:"device"`
	Workflow string        `json:"workflow"`
	Status   string        `json:"status"`
	State    string        `json:"state"`
	Detail   string        `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
	Artifact string        `json:"artifact,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	Finished time.Time     `json:"finished"`
}

// Filter narrows run queries.
type Filter struct {
	Workflow string
	Since    time.Time
	Limit    int
}

// Store provides persistent run history backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	mu      sync.Mutex
	lastErr error
}

// Open opens (or creates) a SQLite-backed history store.
func Open(dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Workers record concurrently; a single connection serialises writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("history schema version %d is newer than supported version %d", version, SchemaVersion)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		workflow   TEXT NOT NULL,
		started    TEXT NOT NULL,
		finished   TEXT,
		devices    INTEGER NOT NULL DEFAULT 0,
		succeeded  INTEGER NOT NULL DEFAULT 0,
		failed     INTEGER NOT NULL DEFAULT 0,
		skipped    INTEGER NOT NULL DEFAULT 0,
		dry_run    INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS outcomes (
		run_id      TEXT NOT NULL,
		device      TEXT NOT NULL,
		workflow    TEXT NOT NULL,
		status      TEXT NOT NULL,
		state       TEXT,
		detail      TEXT,
		error       TEXT,
		artifact    TEXT,
		attempts    INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		finished    TEXT NOT NULL,
		PRIMARY KEY (run_id, device)
	)`); err != nil {
		return fmt.Errorf("create outcomes table: %w", err)
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_outcomes_device ON outcomes(device, finished)`)

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", SchemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// Close shuts down the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Err returns the last write error, if any.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Record implements events.Sink. Run start, device completion and run
// completion are persisted; other events are ignored.
func (s *Store) Record(e events.Event) {
	var err error
	switch e.Kind {
	case events.KindRunStarted:
		err = s.insertRun(e)
	case events.KindDeviceDone:
		err = s.insertOutcome(e)
	case events.KindRunFinished:
		err = s.finishRun(e)
	default:
		return
	}
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.logger.Warn("history write failed",
			zap.String("run_id", e.RunID),
			zap.String("event", string(e.Kind)),
			zap.Error(err),
		)
	}
}

func (s *Store) insertRun(e events.Event) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO runs (id, workflow, started, devices, dry_run) VALUES (?, ?, ?, ?, ?)`,
		e.RunID,
		e.Workflow,
		stamp(e.Time),
		atoi(e.Fields["devices"]),
		boolInt(e.Fields["dry_run"] == "true"),
	)
	return err
}

func (s *Store) finishRun(e events.Event) error {
	_, err := s.db.Exec(`UPDATE runs SET finished = ?, succeeded = ?, failed = ?, skipped = ? WHERE id = ?`,
		stamp(e.Time),
		atoi(e.Fields["succeeded"]),
		atoi(e.Fields["failed"]),
		atoi(e.Fields["skipped"]),
		e.RunID,
	)
	return err
}

func (s *Store) insertOutcome(e events.Event) error {
	errText := ""
	if e.Err != nil {
		errText = e.Err.Error()
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO outcomes
		(run_id, device, workflow, status, state, detail, error, artifact, attempts, duration_ms, finished)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID,
		e.Device,
		e.Workflow,
		e.Fields["status"],
		e.State,
		e.Message,
		errText,
		e.Fields["artifact"],
		atoi(e.Fields["attempts"]),
		e.Duration.Milliseconds(),
		stamp(e.Time),
	)
	return err
}

const runColumns = "id, workflow, started, COALESCE(finished, ''), devices, succeeded, failed, skipped, dry_run"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (Run, error) {
	var r Run
	var started, finished string
	var dryRun int
	if err := scanner.Scan(&r.ID, &r.Workflow, &started, &finished, &r.Devices, &r.Succeeded, &r.Failed, &r.Skipped, &dryRun); err != nil {
		return Run{}, err
	}
	r.Started = parseStamp(started)
	r.Finished = parseStamp(finished)
	r.DryRun = dryRun != 0
	return r, nil
}

// Runs returns runs newest first.
func (s *Store) Runs(ctx context.Context, f Filter) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE 1=1"
	var args []any
	if f.Workflow != "" {
		query += " AND workflow = ?"
		args = append(args, f.Workflow)
	}
	if !f.Since.IsZero() {
		query += " AND started >= ?"
		args = append(args, stamp(f.Since))
	}
	query += " ORDER BY started DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns one run by ID. A missing run wraps sql.ErrNoRows.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err != nil {
		return Run{}, fmt.Errorf("run %s: %w", id, err)
	}
	return r, nil
}

// Outcomes returns the device outcomes of a run in completion order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	return s.queryOutcomes(ctx, "WHERE run_id = ? ORDER BY finished ASC, device ASC", runID)
}

// DeviceHistory returns the most recent outcomes of one device.
func (s *Store) DeviceHistory(ctx context.Context, device string, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryOutcomes(ctx, "WHERE device = ? ORDER BY finished DESC LIMIT ?", device, limit)
}

func (s *Store) queryOutcomes(ctx context.Context, where string, args ...any) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, device, workflow, status, COALESCE(state, ''), COALESCE(detail, ''),
		COALESCE(error, ''), COALESCE(artifact, ''), attempts, duration_ms, finished FROM outcomes `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var ms int64
		var finished string
		if err := rows.Scan(&o.RunID, &o.Device, &o.Workflow, &o.Status, &o.State, &o.Detail, &o.Error, &o.Artifact, &o.Attempts, &ms, &finished); err != nil {
			return nil, err
		}
		o.Duration = time.Duration(ms) * time.Millisecond
		o.Finished = parseStamp(finished)
		out = append(out, o)
	}
	return out, rows.Err()
}

// StreamJSONL writes matching runs, each followed by its outcomes, as
// newline-delimited JSON.
func (s *Store) StreamJSONL(ctx context.Context, w io.Writer, f Filter) error {
	runs, err := s.Runs(ctx, f)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, r := range runs {
		outcomes, err := s.Outcomes(ctx, r.ID)
		if err != nil {
			return err
		}
		if err := enc.Encode(struct {
			Run
			Outcomes []Outcome `json:"outcomes"`
		}{r, outcomes}); err != nil {
			return err
		}
	}
	return nil
}

// Purge deletes runs started before now - olderThan, with their outcomes.
func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan < 0 {
		return 0, errors.New("olderThan must be >= 0")
	}
	cutoff := stamp(time.Now().Add(-olderThan))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM outcomes WHERE run_id IN (SELECT id FROM runs WHERE started < ?)", cutoff); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE started < ?", cutoff)
	if err != nil {
		return 0, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return deleted, tx.Commit()
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(stampLayout)
}

func parseStamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(stampLayout, s)
	return t
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
