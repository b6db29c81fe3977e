package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/metric-guardrails/internal/audit"
	"github.com/sells-group/metric-guardrails/internal/model"
)

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "Inspect recorded audit traces",
	Long:  "Commands for fetching, listing, summarizing and exporting the audit traces recorded by evaluate.",
}

// -- traces get --

var tracesGetCmd = &cobra.Command{
	Use:   "get <user-id> <submission-id> <run-id> <metric-id>",
	Short: "Print the latest trace for a key as JSON",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := getTrace(cmd, args)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), t)
	},
}

// -- traces summary --

var tracesSummaryCmd = &cobra.Command{
	Use:   "summary <user-id> <submission-id> <run-id> <metric-id>",
	Short: "Render the latest trace for a key as markdown",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := getTrace(cmd, args)
		if err != nil {
			return err
		}
		_, err = io.WriteString(cmd.OutOrStdout(), audit.Summary(*t))
		return err
	},
}

// -- traces list --

var tracesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List traces, optionally for one run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("traces"); err != nil {
			return err
		}
		st, err := openAudit(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runID, _ := cmd.Flags().GetString("run")
		var traces []model.AuditTrace
		if runID != "" {
			traces, err = st.ListForRun(ctx, runID)
		} else {
			traces, err = st.All(ctx)
		}
		if err != nil {
			return eris.Wrap(err, "traces list")
		}

		if len(traces) == 0 {
			fmt.Fprintln(os.Stderr, "No traces found.")
			return nil
		}
		formatTraceList(cmd.OutOrStdout(), traces)
		return nil
	},
}

// -- traces stats --

var tracesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate trace statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("traces"); err != nil {
			return err
		}
		st, err := openAudit(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "traces stats")
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), stats)
		}
		formatTraceStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

// -- traces export --

var tracesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every retained trace as a JSON array",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("traces"); err != nil {
			return err
		}
		st, err := openAudit(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out := cmd.OutOrStdout()
		if path, _ := cmd.Flags().GetString("output"); path != "" && path != "-" {
			f, err := os.Create(path)
			if err != nil {
				return eris.Wrapf(err, "traces export: create %s", path)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		return audit.Export(ctx, st, out)
	},
}

func getTrace(cmd *cobra.Command, args []string) (*model.AuditTrace, error) {
	ctx := cmd.Context()
	if err := cfg.Validate("traces"); err != nil {
		return nil, err
	}
	st, err := openAudit(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	key := model.TraceKey{
		UserID:       args[0],
		SubmissionID: args[1],
		RunID:        args[2],
		MetricID:     model.MetricID(args[3]),
	}
	t, err := st.Get(ctx, key)
	if errors.Is(err, audit.ErrNotFound) {
		return nil, eris.Errorf("no trace recorded for %s", key)
	}
	if err != nil {
		return nil, eris.Wrap(err, "traces get")
	}
	return t, nil
}

func init() {
	tracesListCmd.Flags().String("run", "", "only list traces for this run ID")
	tracesStatsCmd.Flags().Bool("json", false, "print statistics as JSON")
	tracesExportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")

	tracesCmd.AddCommand(tracesGetCmd)
	tracesCmd.AddCommand(tracesSummaryCmd)
	tracesCmd.AddCommand(tracesListCmd)
	tracesCmd.AddCommand(tracesStatsCmd)
	tracesCmd.AddCommand(tracesExportCmd)
	rootCmd.AddCommand(tracesCmd)
}

// formatTraceList writes a tabular list of traces to out.
func formatTraceList(out io.Writer, traces []model.AuditTrace) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tMETRIC\tINITIAL\tFINAL\tTIER\tPROVENANCE\tADJ\tCREATED")
	for _, t := range traces {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f\t%.1f\t%s\t%s\t%d\t%s\n",
			t.RunID,
			t.MetricID,
			t.InitialConfidence,
			t.FinalConfidence,
			t.Degradation.Tier,
			t.Provenance.Label,
			len(t.ConfidenceAdjustments),
			t.CreatedAt.UTC().Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatTraceStats writes aggregate statistics to out.
func formatTraceStats(out io.Writer, s audit.Stats) {
	_, _ = fmt.Fprintf(out, "Traces:              %d\n", s.TotalTraces)
	_, _ = fmt.Fprintf(out, "Runs:                %d\n", s.DistinctRuns)
	_, _ = fmt.Fprintf(out, "Metrics:             %d\n", s.DistinctMetrics)
	_, _ = fmt.Fprintf(out, "Mean adjustments:    %.2f\n", s.MeanAdjustments)
	_, _ = fmt.Fprintf(out, "Temporal violations: %d\n", s.TemporalViolations)
	_, _ = fmt.Fprintf(out, "Consistency flags:   %d\n", s.ConsistencyFlags)
	_, _ = fmt.Fprintf(out, "Defects:             %d\n", s.Defects)

	writeDistribution(out, "Tiers", s.TierDistribution)
	writeDistribution(out, "Provenance", s.ProvenanceDistribution)
}

func writeDistribution(out io.Writer, title string, dist map[string]int) {
	if len(dist) == 0 {
		return
	}
	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	_, _ = fmt.Fprintf(out, "\n%s:\n", title)
	for _, k := range keys {
		_, _ = fmt.Fprintf(out, "  %-24s %d\n", k, dist[k])
	}
}
