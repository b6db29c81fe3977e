package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/metric-guardrails/internal/guardrails"
	"github.com/sells-group/metric-guardrails/internal/validate"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <run.json|->",
	Short: "Run the guardrails pipeline over a run's metric outputs",
	Long:  "Reads a run (coverage summary, metric outputs and optional prior outputs), applies every guardrail stage, records an audit trace per metric and prints the finalized outputs.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("evaluate"); err != nil {
			return err
		}

		run, err := readRun(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}

		rs, err := loadRules(ctx)
		if err != nil {
			return err
		}

		st, err := openAudit(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eng := guardrails.NewEngine(rs,
			guardrails.WithRecorder(st),
			guardrails.WithConcurrency(cfg.Engine.Concurrency),
		)
		rr, err := eng.ApplyRun(ctx, run)
		if err != nil {
			return eris.Wrap(err, "evaluate")
		}

		if force, _ := cmd.Flags().GetBool("force-fallback"); force {
			forceFallbacks(rr)
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			if traces, _ := cmd.Flags().GetBool("traces"); traces {
				err = writeJSON(cmd.OutOrStdout(), rr)
			} else {
				err = writeJSON(cmd.OutOrStdout(), rr.Outputs())
			}
		case "table":
			formatEvaluation(cmd.OutOrStdout(), rr)
		default:
			return eris.Errorf("evaluate: unknown format %q", format)
		}
		if err != nil {
			return err
		}

		if strict, _ := cmd.Flags().GetBool("strict"); strict && rr.Defects > 0 {
			return eris.Errorf("evaluate: %d metric(s) with confidence but no representation", rr.Defects)
		}
		return nil
	},
}

// forceFallbacks rewrites every output flagged for the insufficient-data
// renderer.
func forceFallbacks(rr *guardrails.RunResult) {
	for i, r := range rr.Results {
		if r.Trace.Resolution.MustForceFallback {
			rr.Results[i].Output = validate.ForceInsufficientFallback(r.Output)
		}
	}
}

func formatEvaluation(out io.Writer, rr *guardrails.RunResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "METRIC\tINITIAL\tFINAL\tTIER\tPROVENANCE\tRENDER\tFLAGS")
	for _, r := range rr.Results {
		_, _ = fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%s\t%s\t%s\t%d\n",
			r.Trace.MetricID,
			r.Trace.InitialConfidence,
			r.Trace.FinalConfidence,
			r.Trace.Degradation.Tier,
			r.Trace.Provenance.Label,
			r.Output.RenderMode,
			len(r.Output.ExplainabilityFlags),
		)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\n%d metric(s), %d defect(s)\n", len(rr.Results), rr.Defects)
}

func init() {
	evaluateCmd.Flags().Bool("force-fallback", false, "rewrite outputs with no usable representation for the insufficient-data renderer")
	evaluateCmd.Flags().Bool("traces", false, "include audit traces in JSON output")
	evaluateCmd.Flags().Bool("strict", false, "exit non-zero when any metric is a null-as-bug defect")
	evaluateCmd.Flags().String("format", "json", "output format (json, table)")
	rootCmd.AddCommand(evaluateCmd)
}
