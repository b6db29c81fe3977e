package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/metric-guardrails/internal/audit"
	"github.com/sells-group/metric-guardrails/internal/model"
	"github.com/sells-group/metric-guardrails/internal/rules"
)

// ruleBarrier holds the process-wide rule set. It is loaded once, by the
// first command that needs it.
var ruleBarrier = rules.NewBarrier()

// loadRules loads the configured rule directory, or the bundled defaults.
func loadRules(ctx context.Context) (*rules.RuleSet, error) {
	err := ruleBarrier.Load(ctx, func(ctx context.Context) (*rules.RuleSet, error) {
		return loadRulesFrom(ctx, cfg.Rules.Dir)
	})
	if err != nil {
		return nil, err
	}
	return ruleBarrier.Wait(ctx)
}

func loadRulesFrom(ctx context.Context, dir string) (*rules.RuleSet, error) {
	if dir == "" {
		return rules.Default(ctx)
	}
	return rules.LoadDir(ctx, dir)
}

// openAudit opens the configured audit store.
func openAudit(ctx context.Context) (audit.Store, error) {
	return audit.Open(ctx, audit.Options{
		Driver:     cfg.Audit.Driver,
		DSN:        cfg.Audit.DSN,
		MaxRecords: cfg.Audit.MaxRecords,
	})
}

// readRun decodes a run from path, or from stdin when path is "-".
func readRun(path string, stdin io.Reader) (model.Run, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return model.Run{}, eris.Wrapf(err, "open run %s", path)
		}
		defer f.Close() //nolint:errcheck
		r = f
	}

	var run model.Run
	if err := json.NewDecoder(r).Decode(&run); err != nil {
		return model.Run{}, eris.Wrapf(err, "decode run %s", path)
	}
	if run.Coverage.RunID == "" {
		return model.Run{}, eris.Errorf("run %s: coverage.run_id is required", path)
	}
	return run, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
