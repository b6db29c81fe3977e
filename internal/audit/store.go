// Package audit stores the traces produced by guardrail evaluations. Stores
// are append-only logs with bounded retention: re-recording a key appends a
// newer record and Get returns the latest retained one.
package audit

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/metric-guardrails/internal/model"
)

// DefaultMaxRecords is the retention bound used when none is configured.
const DefaultMaxRecords = 1000

// ErrNotFound is returned by Get when no retained trace has the key.
var ErrNotFound = eris.New("audit: trace not found")

// Recorder appends traces. It must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, trace model.AuditTrace) error
}

// Store is the audit trace store contract shared by every backend.
type Store interface {
	Recorder

	// Get returns the most recent retained trace for key.
	Get(ctx context.Context, key model.TraceKey) (*model.AuditTrace, error)
	// ListForRun returns every retained trace of a run, oldest first.
	ListForRun(ctx context.Context, runID string) ([]model.AuditTrace, error)
	// All returns every retained trace, oldest first.
	All(ctx context.Context) ([]model.AuditTrace, error)
	// Stats aggregates over every retained trace.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// KeyOf derives a trace's key from its own fields.
func KeyOf(t model.AuditTrace) model.TraceKey {
	return t.Key()
}

func checkKey(t model.AuditTrace) error {
	if t.RunID == "" || t.MetricID == "" {
		return eris.Errorf("audit: trace %q is missing run_id or metric_id", t.ID)
	}
	return nil
}

func retention(maxRecords int) int {
	if maxRecords <= 0 {
		return DefaultMaxRecords
	}
	return maxRecords
}

// Options selects and configures a backend.
type Options struct {
	Driver     string
	DSN        string
	MaxRecords int
}

// Open creates the store named by opts.Driver: memory (default), sqlite or
// postgres. Durable backends are migrated before they are returned.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "memory":
		return NewMemoryStore(opts.MaxRecords), nil
	case "sqlite":
		st, err := NewSQLite(opts.DSN, opts.MaxRecords)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := NewPostgres(ctx, opts.DSN, opts.MaxRecords)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("audit: unknown driver %q", opts.Driver)
	}
}
