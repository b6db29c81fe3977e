package guardrails

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metric-guardrails/internal/model"
	"github.com/sells-group/metric-guardrails/internal/rules"
)

func glucose(conf float64, p model.Payload) model.MetricOutput {
	return model.MetricOutput{MetricID: "glucose", ConfidencePercent: model.Float(conf), Payload: p}
}

func TestTemporal_ClampUp(t *testing.T) {
	e := newTestEngine(t)
	before := testutil.ToFloat64(temporalViolations.WithLabelValues("glucose", "cap_to_max_delta"))

	prior := glucose(70, model.Payload{"value": 100.0})
	cur := glucose(80, model.Payload{"value": 200.0})
	final, trace := e.Apply(cur, goodCoverage(), &prior, []model.MetricOutput{cur})

	assert.Equal(t, 120.0, final.Payload["value"])
	require.Len(t, trace.TemporalSanity.Violations, 1)
	v := trace.TemporalSanity.Violations[0]
	assert.Equal(t, "GLUCOSE_SWING", v.FlagCode)
	assert.Equal(t, "cap_to_max_delta", v.Action)
	assert.Equal(t, 100.0, v.Delta)
	assert.Equal(t, 20.0, v.MaxDelta)
	assert.Equal(t, 120.0, v.AdjustedValue)
	assert.Equal(t, "delta 100.00 exceeds max 20 mg/dL", v.Details)
	assert.True(t, trace.TemporalSanity.Checked)
	assert.True(t, final.HasFlag("GLUCOSE_SWING"))

	// 80 * 0.95 = 76, minus 10 point penalty
	stage, _ := trace.Stage(model.StageTemporal)
	assert.False(t, stage.NoOp)
	assert.Equal(t, 76.0, stage.Before)
	assert.Equal(t, 66.0, stage.After)
	assert.Equal(t, 66.0, *final.ConfidencePercent)

	assert.Equal(t, before+1, testutil.ToFloat64(temporalViolations.WithLabelValues("glucose", "cap_to_max_delta")))
}

func TestTemporal_ClampDown(t *testing.T) {
	e := newTestEngine(t)
	prior := glucose(70, model.Payload{"value": 100.0})
	cur := glucose(80, model.Payload{"value": 50.0})

	final, _ := e.Apply(cur, goodCoverage(), &prior, nil)
	assert.Equal(t, 80.0, final.Payload["value"])
}

func TestTemporal_WithinBound(t *testing.T) {
	e := newTestEngine(t)
	prior := glucose(70, model.Payload{"value": 100.0})
	cur := glucose(80, model.Payload{"value": 120.0})

	final, trace := e.Apply(cur, goodCoverage(), &prior, nil)
	assert.Equal(t, 120.0, final.Payload["value"])
	assert.True(t, trace.TemporalSanity.Checked)
	assert.Empty(t, trace.TemporalSanity.Violations)
	stage, _ := trace.Stage(model.StageTemporal)
	assert.True(t, stage.NoOp)
}

func TestTemporal_RangeShift(t *testing.T) {
	e := newTestEngine(t)
	prior := glucose(70, model.Payload{"range_low": 90.0, "range_high": 110.0})
	cur := glucose(80, model.Payload{"range_low": 150.0, "range_high": 170.0})

	final, trace := e.Apply(cur, goodCoverage(), &prior, nil)
	assert.Equal(t, 110.0, final.Payload["range_low"])
	assert.Equal(t, 130.0, final.Payload["range_high"])
	assert.Equal(t, 120.0, trace.TemporalSanity.Violations[0].AdjustedValue)
	assert.Equal(t, model.ModeRange, final.RenderMode)
}

func TestTemporal_DampenAndWiden(t *testing.T) {
	e := newTestEngine(t)
	prior := model.MetricOutput{MetricID: "ir", Payload: model.Payload{"score_value": 40.0}}
	cur := model.MetricOutput{
		MetricID:          "ir",
		ConfidencePercent: model.Float(60),
		Payload:           model.Payload{"score_value": 80.0},
		RangeWidth:        model.Float(10),
	}

	final, trace := e.Apply(cur, goodCoverage(), &prior, nil)
	// delta 40 dampened by half in the same direction
	assert.Equal(t, 60.0, final.Payload["score_value"])
	assert.Equal(t, 15.0, *final.RangeWidth)
	assert.Equal(t, "dampen_by_factor", trace.TemporalSanity.Violations[0].Action)
	assert.Equal(t, 10.0, trace.TemporalSanity.Violations[0].MaxDelta)
	// 60 * 0.95 = 57, minus 5
	assert.InDelta(t, 52.0, *final.ConfidencePercent, 1e-9)
}

func TestTemporal_ProbabilityPairStaysInBounds(t *testing.T) {
	rs, err := rules.Default(context.Background())
	require.NoError(t, err)
	e := NewEngine(rs)

	cov := model.CoverageSummary{
		UserID: "u", SubmissionID: "s", RunID: "r",
		StreamCoverage: map[string]model.StreamCoverage{
			"glucose_cgm": {DaysCovered: 14, MissingRate: 0.05, QualityScore: 0.9},
			"weight":      {DaysCovered: 14, MissingRate: 0.05, QualityScore: 0.9},
		},
	}
	prior := model.MetricOutput{MetricID: "diabetes_probability", Payload: model.Payload{"probability_value": 5.0}}
	cur := model.MetricOutput{
		MetricID:          "diabetes_probability",
		ConfidencePercent: model.Float(60),
		Payload:           model.Payload{"prob_low": 0.0, "prob_high": 60.0},
	}

	final, trace := e.Apply(cur, cov, &prior, []model.MetricOutput{cur})
	require.Len(t, trace.TemporalSanity.Violations, 1)
	assert.Equal(t, 17.5, trace.TemporalSanity.Violations[0].AdjustedValue)
	assert.Equal(t, 0.0, final.Payload["prob_low"])
	assert.Equal(t, 35.0, final.Payload["prob_high"])
	assert.Equal(t, model.ModeProbability, trace.Resolution.Mode)
	assert.False(t, trace.Resolution.IsDefect)
	assert.Greater(t, *final.ConfidencePercent, 0.0)
}

func TestTemporal_SkippedCases(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		name  string
		cur   model.MetricOutput
		prior *model.MetricOutput
		note  string
	}{
		{"no prior", glucose(50, model.Payload{"value": 1.0}), nil, "no prior output"},
		{"no rule", model.MetricOutput{MetricID: "X", Payload: model.Payload{"value": 1.0}}, &model.MetricOutput{Payload: model.Payload{"value": 500.0}}, "no temporal rule"},
		{"prior not numeric", glucose(50, model.Payload{"value": 1.0}), &model.MetricOutput{Payload: model.Payload{"class_label": "high"}}, "no comparable numeric value"},
		{"current not numeric", glucose(50, model.Payload{"value": "high"}), &model.MetricOutput{Payload: model.Payload{"value": 500.0}}, "no comparable numeric value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			final, trace := e.Apply(tt.cur, goodCoverage(), tt.prior, nil)
			stage, _ := trace.Stage(model.StageTemporal)
			assert.True(t, stage.NoOp)
			assert.Equal(t, tt.note, stage.Note)
			assert.False(t, trace.TemporalSanity.Checked)
			assert.Equal(t, tt.cur.Payload, final.Payload)
		})
	}
}

func TestCorrectDelta(t *testing.T) {
	capRule := rules.ViolationBehavior{CapStrategy: rules.CapToMaxDelta}
	damp := rules.ViolationBehavior{CapStrategy: rules.DampenByFactor, DampenFactor: 0.25}

	assert.Equal(t, 120.0, correctDelta(100, 200, 20, capRule))
	assert.Equal(t, 80.0, correctDelta(100, 0, 20, capRule))
	assert.Equal(t, 125.0, correctDelta(100, 200, 20, damp))
	assert.Equal(t, 75.0, correctDelta(100, 0, 20, damp))
}
