package guardrails

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/metric-guardrails/internal/model"
	"github.com/sells-group/metric-guardrails/internal/rules"
)

// Result is one evaluated metric.
type Result struct {
	Output model.MetricOutput `json:"output"`
	Trace  model.AuditTrace   `json:"trace"`
}

// RunResult holds every evaluated metric of a run, in input order.
type RunResult struct {
	RunID   string   `json:"run_id"`
	Results []Result `json:"results"`
	Defects int      `json:"defects"`
}

// Outputs returns the finalized outputs in input order.
func (r *RunResult) Outputs() []model.MetricOutput {
	out := make([]model.MetricOutput, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Output
	}
	return out
}

// Traces returns the audit traces in input order.
func (r *RunResult) Traces() []model.AuditTrace {
	out := make([]model.AuditTrace, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Trace
	}
	return out
}

// ApplyRun evaluates every output of a run concurrently. Each output is
// compared against the whole run and its own prior output. When a recorder
// is configured, every trace is recorded before ApplyRun returns.
func (e *Engine) ApplyRun(ctx context.Context, run model.Run) (*RunResult, error) {
	if e.rules == nil {
		panic(rules.ErrNotLoaded)
	}

	log := zap.L().With(zap.String("component", "guardrails"), zap.String("run_id", run.Coverage.RunID))
	results := make([]Result, len(run.Outputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, out := range run.Outputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "guardrails: run cancelled")
			}

			var prior *model.MetricOutput
			if p, ok := run.Prior[out.MetricID]; ok {
				prior = &p
			}
			final, trace := e.Apply(out, run.Coverage, prior, run.Outputs)
			results[i] = Result{Output: final, Trace: trace}

			if e.recorder != nil {
				if err := e.recorder.Record(gctx, trace); err != nil {
					return eris.Wrapf(err, "guardrails: record trace %s", trace.Key())
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rr := &RunResult{RunID: run.Coverage.RunID, Results: results}
	for _, r := range results {
		if r.Trace.Resolution.IsDefect {
			rr.Defects++
		}
	}
	log.Info("guardrails: run evaluated",
		zap.Int("metrics", len(results)),
		zap.Int("defects", rr.Defects),
	)
	return rr, nil
}
