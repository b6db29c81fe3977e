package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/metric-guardrails/internal/resolve"
	"github.com/sells-group/metric-guardrails/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate <run.json|->",
	Short: "Check that every metric with confidence has a usable representation",
	Long:  "Runs the success validator over a run's outputs without applying guardrails. Exits non-zero when any metric has positive confidence but no representation.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		run, err := readRun(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}

		rs, err := loadRules(ctx)
		if err != nil {
			return err
		}

		v := validate.New(resolve.New(rs.Priority()))
		rep := v.ValidateRun(run.Outputs)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			if err := writeJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
		} else {
			formatReport(cmd.OutOrStdout(), rep)
		}

		if rep.ShouldFailCheck {
			return eris.Errorf("validate: %d defect(s) found", rep.Defects)
		}
		return nil
	},
}

func formatReport(out io.Writer, rep validate.Report) {
	_, _ = fmt.Fprintf(out, "Metrics:    %d\n", rep.Total)
	_, _ = fmt.Fprintf(out, "Successful: %d\n", rep.Successful)
	_, _ = fmt.Fprintf(out, "Failed:     %d\n", rep.Failed)
	_, _ = fmt.Fprintf(out, "Defects:    %d\n", rep.Defects)
	for _, d := range rep.DefectDetails {
		_, _ = fmt.Fprintf(out, "  DEFECT %s: %v\n", d.MetricID, d.FailureReasons)
	}
}

func init() {
	validateCmd.Flags().Bool("json", false, "print the full report as JSON")
	rootCmd.AddCommand(validateCmd)
}
