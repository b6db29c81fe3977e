package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/metric-guardrails/internal/model"
)

// Pool is the subset of *pgxpool.Pool the Postgres store uses. pgxmock
// pools satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore is a durable audit log backed by a pgx pool.
type PostgresStore struct {
	pool       Pool
	closeFn    func()
	maxRecords int
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxRecords int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, maxRecords: retention(maxRecords)}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS audit_traces (
	seq           BIGSERIAL PRIMARY KEY,
	id            TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	submission_id TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	metric_id     TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	trace         JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_traces_key ON audit_traces(user_id, submission_id, run_id, metric_id, seq DESC);
CREATE INDEX IF NOT EXISTS idx_audit_traces_run_id ON audit_traces(run_id, seq);
`

// Migrate creates the audit table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Record appends trace and trims the log to the retention bound. The table
// lock serializes concurrent writers so trimming never races an insert.
func (s *PostgresStore) Record(ctx context.Context, trace model.AuditTrace) error {
	if err := checkKey(trace); err != nil {
		return err
	}
	if trace.ID == "" {
		trace.ID = uuid.New().String()
	}
	traceJSON, err := json.Marshal(trace)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal trace")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `LOCK TABLE audit_traces IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return eris.Wrap(err, "postgres: lock traces")
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO audit_traces (id, user_id, submission_id, run_id, metric_id, created_at, trace)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		trace.ID, trace.UserID, trace.SubmissionID, trace.RunID,
		string(trace.MetricID), trace.CreatedAt, traceJSON,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert trace %s", trace.Key())
	}
	_, err = tx.Exec(ctx,
		`DELETE FROM audit_traces WHERE seq <= (SELECT MAX(seq) FROM audit_traces) - $1`,
		s.maxRecords,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: trim traces")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

// Get returns the latest retained trace for key.
func (s *PostgresStore) Get(ctx context.Context, key model.TraceKey) (*model.AuditTrace, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT trace FROM audit_traces
		 WHERE user_id = $1 AND submission_id = $2 AND run_id = $3 AND metric_id = $4
		 ORDER BY seq DESC LIMIT 1`,
		key.UserID, key.SubmissionID, key.RunID, string(key.MetricID),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get trace %s", key)
	}
	return decodeTrace(raw)
}

// ListForRun returns the run's retained traces, oldest first.
func (s *PostgresStore) ListForRun(ctx context.Context, runID string) ([]model.AuditTrace, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT trace FROM audit_traces WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list run %s", runID)
	}
	return collectTraces(rows)
}

// All returns every retained trace, oldest first.
func (s *PostgresStore) All(ctx context.Context) ([]model.AuditTrace, error) {
	rows, err := s.pool.Query(ctx, `SELECT trace FROM audit_traces ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list traces")
	}
	return collectTraces(rows)
}

// Stats aggregates over every retained trace.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	all, err := s.All(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(all), nil
}

func collectTraces(rows pgx.Rows) ([]model.AuditTrace, error) {
	defer rows.Close()

	var out []model.AuditTrace
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan trace")
		}
		t, err := decodeTrace(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate traces")
}
