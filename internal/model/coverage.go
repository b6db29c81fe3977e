package model

// StreamCoverage describes the coverage of one raw data stream in a run.
type StreamCoverage struct {
	DaysCovered  float64 `json:"days_covered"`
	MissingRate  float64 `json:"missing_rate"`
	QualityScore float64 `json:"quality_score"`
}

// CoverageSummary is the per-run data coverage record produced by the
// preceding analysis stage. It is read-only input to the guardrails.
type CoverageSummary struct {
	UserID         string                    `json:"user_id"`
	SubmissionID   string                    `json:"submission_id"`
	RunID          string                    `json:"run_id"`
	StreamCoverage map[string]StreamCoverage `json:"stream_coverage"`
	ConflictFlags  []string                  `json:"conflict_flags,omitempty"`
}

// Stream returns the coverage for a stream, if reported.
func (c CoverageSummary) Stream(name string) (StreamCoverage, bool) {
	sc, ok := c.StreamCoverage[name]
	return sc, ok
}

// ConflictCount returns the number of conflict flags raised for the run.
func (c CoverageSummary) ConflictCount() int {
	return len(c.ConflictFlags)
}

// Run bundles everything the pipeline needs to evaluate a whole run.
type Run struct {
	Coverage CoverageSummary           `json:"coverage"`
	Outputs  []MetricOutput            `json:"outputs"`
	Prior    map[MetricID]MetricOutput `json:"prior,omitempty"`
}
