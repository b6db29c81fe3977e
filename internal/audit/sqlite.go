package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/metric-guardrails/internal/model"
)

// SQLiteStore is a durable audit log backed by modernc.org/sqlite.
type SQLiteStore struct {
	db         *sql.DB
	maxRecords int
	mu         sync.Mutex // serializes append + trim
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, maxRecords int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, maxRecords: retention(maxRecords)}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS audit_traces (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	submission_id TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	metric_id     TEXT NOT NULL,
	created_at    DATETIME NOT NULL,
	trace         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_traces_key ON audit_traces(user_id, submission_id, run_id, metric_id, seq);
CREATE INDEX IF NOT EXISTS idx_audit_traces_run_id ON audit_traces(run_id, seq);
`

// Migrate creates the audit table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record appends trace and trims the log to the retention bound in the same
// transaction.
func (s *SQLiteStore) Record(ctx context.Context, trace model.AuditTrace) error {
	if err := checkKey(trace); err != nil {
		return err
	}
	if trace.ID == "" {
		trace.ID = uuid.New().String()
	}
	traceJSON, err := json.Marshal(trace)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal trace")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_traces (id, user_id, submission_id, run_id, metric_id, created_at, trace)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		trace.ID, trace.UserID, trace.SubmissionID, trace.RunID,
		string(trace.MetricID), trace.CreatedAt, string(traceJSON),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert trace %s", trace.Key())
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM audit_traces WHERE seq <= (SELECT MAX(seq) FROM audit_traces) - ?`,
		s.maxRecords,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: trim traces")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// Get returns the latest retained trace for key.
func (s *SQLiteStore) Get(ctx context.Context, key model.TraceKey) (*model.AuditTrace, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT trace FROM audit_traces
		 WHERE user_id = ? AND submission_id = ? AND run_id = ? AND metric_id = ?
		 ORDER BY seq DESC LIMIT 1`,
		key.UserID, key.SubmissionID, key.RunID, string(key.MetricID),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get trace %s", key)
	}
	return decodeTrace([]byte(raw))
}

// ListForRun returns the run's retained traces, oldest first.
func (s *SQLiteStore) ListForRun(ctx context.Context, runID string) ([]model.AuditTrace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT trace FROM audit_traces WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list run %s", runID)
	}
	return scanTraces(rows)
}

// All returns every retained trace, oldest first.
func (s *SQLiteStore) All(ctx context.Context) ([]model.AuditTrace, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT trace FROM audit_traces ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list traces")
	}
	return scanTraces(rows)
}

// Stats aggregates over every retained trace.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	all, err := s.All(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(all), nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

func scanTraces(rows rowScanner) ([]model.AuditTrace, error) {
	defer rows.Close() //nolint:errcheck

	var out []model.AuditTrace
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "audit: scan trace")
		}
		t, err := decodeTrace([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "audit: iterate traces")
}

func decodeTrace(raw []byte) (*model.AuditTrace, error) {
	var t model.AuditTrace
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, eris.Wrap(err, "audit: unmarshal trace")
	}
	return &t, nil
}
