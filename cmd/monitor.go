package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/metric-guardrails/internal/monitoring"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the audit store for integrity regressions",
	Long:  "Periodically computes audit statistics and alerts on null-as-bug defects, temporal violation rate and exploratory tier share. Alerts go to the configured webhook.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("monitor"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openAudit(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		checker := monitoring.NewChecker(
			monitoring.NewCollector(st),
			monitoring.NewAlerter(cfg.Monitoring),
			cfg.Monitoring,
		)

		if once, _ := cmd.Flags().GetBool("once"); once {
			alerts := checker.Check(ctx)
			if alerts == nil {
				alerts = []monitoring.Alert{}
			}
			return writeJSON(cmd.OutOrStdout(), alerts)
		}

		addr := cfg.Monitoring.MetricsAddr
		if cmd.Flags().Changed("metrics-addr") {
			addr, _ = cmd.Flags().GetString("metrics-addr")
		}
		if addr != "" {
			if _, err := serveMetrics(ctx, addr); err != nil {
				return err
			}
		}

		checker.Run(ctx)
		return nil
	},
}

func init() {
	monitorCmd.Flags().Bool("once", false, "run a single check, print the alerts and exit")
	monitorCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (default from config)")
	rootCmd.AddCommand(monitorCmd)
}
