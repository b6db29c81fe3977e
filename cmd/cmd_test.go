package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

const sampleRun = `{
  "coverage": {
    "user_id": "u1",
    "submission_id": "s1",
    "run_id": "r1",
    "stream_coverage": {
      "glucose_cgm": {"days_covered": 14, "missing_rate": 0.05, "quality_score": 0.9}
    }
  },
  "outputs": [
    {"metric_id": "estimated_glucose_range", "confidence_percent": 80, "payload": {"range_low": 95, "range_high": 115}},
    {"metric_id": "diabetes_probability", "confidence_percent": 60, "payload": {}}
  ]
}`

// resetFlags restores every flag to its default so commands can be executed
// repeatedly in one process.
func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// workdir moves the test into an empty directory so no guardrails.yaml is
// picked up, and returns it.
func workdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

// useSQLite points the audit store at a database in dir.
func useSQLite(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("GUARDRAILS_AUDIT_DRIVER", "sqlite")
	t.Setenv("GUARDRAILS_AUDIT_DSN", filepath.Join(dir, "audit.db"))
	t.Setenv("GUARDRAILS_LOG_LEVEL", "error")
}

func writeRun(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "run.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}
