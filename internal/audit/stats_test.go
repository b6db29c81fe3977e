package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/metric-guardrails/internal/model"
)

func TestComputeStats(t *testing.T) {
	a := testTrace("r1", "a")
	b := testTrace("r1", "b")
	b.Degradation.Tier = "exploratory_only"
	b.Provenance.Label = "MEASURED"
	b.ConfidenceAdjustments = append(b.ConfidenceAdjustments,
		model.ConfidenceAdjustment{Stage: model.StageTemporal},
		model.ConfidenceAdjustment{Stage: model.StageConsistency},
	)
	b.TemporalSanity = model.TemporalResult{Checked: true, Violations: []model.TemporalViolation{{FlagCode: "SWING"}}}
	b.CrossMetricConsistency = model.ConsistencyResult{Checked: true, Flags: []model.ConsistencyFlag{{FlagCode: "X"}, {FlagCode: "Y"}}}
	c := testTrace("r2", "a")
	c.SubmissionID = "s2"
	c.Resolution.IsDefect = true

	s := ComputeStats([]model.AuditTrace{a, b, c})

	assert.Equal(t, 3, s.TotalTraces)
	assert.Equal(t, 2, s.DistinctRuns)
	assert.Equal(t, 2, s.DistinctMetrics)
	assert.InDelta(t, 5.0/3.0, s.MeanAdjustments, 1e-9)
	assert.Equal(t, map[string]int{"moderate_degradation": 2, "exploratory_only": 1}, s.TierDistribution)
	assert.Equal(t, map[string]int{"INFERRED": 2, "MEASURED": 1}, s.ProvenanceDistribution)
	assert.Equal(t, 1, s.TemporalViolations)
	assert.Equal(t, 2, s.ConsistencyFlags)
	assert.Equal(t, 1, s.Defects)
	assert.InDelta(t, 1.0/3.0, s.TierShare("exploratory_only"), 1e-9)
	assert.InDelta(t, 1.0/3.0, s.TemporalViolationRate(), 1e-9)
}

func TestComputeStats_SameRunIDDifferentSubmission(t *testing.T) {
	a := testTrace("r1", "a")
	b := testTrace("r1", "a")
	b.SubmissionID = "other"
	assert.Equal(t, 2, ComputeStats([]model.AuditTrace{a, b}).DistinctRuns)
}

func TestComputeStats_Empty(t *testing.T) {
	s := ComputeStats(nil)
	assert.Equal(t, 0, s.TotalTraces)
	assert.Equal(t, 0.0, s.MeanAdjustments)
	assert.Equal(t, 0.0, s.TierShare("x"))
	assert.Equal(t, 0.0, s.TemporalViolationRate())
	assert.NotNil(t, s.TierDistribution)
}
