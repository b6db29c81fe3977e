package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/metric-guardrails/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the guardrail rule tables",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate the rule tables",
	Long:  "Loads every rule table from --dir (or the configured directory, or the bundled defaults), validates them together and reports metrics that have no dependency rule.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Rules.Dir
		}

		rs, err := loadRulesFrom(cmd.Context(), dir)
		if err != nil {
			return err
		}
		formatRuleCheck(cmd.OutOrStdout(), dir, rs)
		return nil
	},
}

func formatRuleCheck(out io.Writer, dir string, rs *rules.RuleSet) {
	source := dir
	if source == "" {
		source = "bundled defaults"
	}
	_, _ = fmt.Fprintf(out, "Source:            %s\n", source)
	_, _ = fmt.Fprintf(out, "Version:           %s\n", rs.Version())
	_, _ = fmt.Fprintf(out, "Metrics:           %d\n", len(rs.MetricIDs()))
	_, _ = fmt.Fprintf(out, "Degradation tiers: %d\n", len(rs.Ladder().Tiers))
	_, _ = fmt.Fprintf(out, "Consistency rules: %d\n", len(rs.ConsistencyRules()))
	_, _ = fmt.Fprintf(out, "Render priority:   %v\n", rs.Priority())

	missing := rs.Coverage()
	if len(missing) == 0 {
		_, _ = fmt.Fprintln(out, "All referenced metrics have dependency rules.")
		return
	}
	_, _ = fmt.Fprintf(out, "Metrics without dependency rules (gated by the built-in fallback):\n")
	for _, id := range missing {
		_, _ = fmt.Fprintf(out, "  - %s\n", id)
	}
}

func init() {
	rulesCheckCmd.Flags().String("dir", "", "rule directory (default: configured rules.dir or bundled defaults)")
	rulesCmd.AddCommand(rulesCheckCmd)
	rootCmd.AddCommand(rulesCmd)
}
