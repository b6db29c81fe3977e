package guardrails

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metric-guardrails/internal/model"
	"github.com/sells-group/metric-guardrails/internal/rules"
)

func riskRun(glucoseMid float64, irScore float64, phenotype string) (model.MetricOutput, []model.MetricOutput) {
	risk := model.MetricOutput{MetricID: "risk", ConfidencePercent: model.Float(80), Payload: model.Payload{"probability": 70}}
	return risk, []model.MetricOutput{
		risk,
		{MetricID: "glucose", Payload: model.Payload{"range_low": glucoseMid - 5, "range_high": glucoseMid + 5}},
		{MetricID: "ir", Payload: model.Payload{"score_value": irScore}},
		{MetricID: "phenotype", Payload: model.Payload{"class_label": phenotype}},
	}
}

func TestConsistency_Accumulation(t *testing.T) {
	e := newTestEngine(t)
	risk, all := riskRun(85, 60, "obese")

	final, trace := e.Apply(risk, goodCoverage(), nil, all)

	require.Len(t, trace.CrossMetricConsistency.Flags, 2)
	assert.Equal(t, "LOW_GLUCOSE_HIGH_RISK", trace.CrossMetricConsistency.Flags[0].FlagCode)
	assert.Equal(t, "IR_CONTRADICTION", trace.CrossMetricConsistency.Flags[1].FlagCode)
	assert.InDelta(t, 15.0, trace.CrossMetricConsistency.TotalPenalty, 1e-9)

	// 80 * 0.95 = 76, minus 10 + 5
	stage, _ := trace.Stage(model.StageConsistency)
	assert.False(t, stage.NoOp)
	assert.InDelta(t, 76.0, stage.Before, 1e-9)
	assert.InDelta(t, 61.0, stage.After, 1e-9)
	assert.InDelta(t, 61.0, *final.ConfidencePercent, 1e-9)
	assert.True(t, final.HasFlag("LOW_GLUCOSE_HIGH_RISK"))
	assert.True(t, final.HasFlag("IR_CONTRADICTION"))
}

func TestConsistency_AllConditionsMustHold(t *testing.T) {
	e := newTestEngine(t)

	risk, all := riskRun(150, 60, "Lean")
	_, trace := e.Apply(risk, goodCoverage(), nil, all)
	codes := flagCodes(trace)
	assert.Equal(t, []string{"IR_CONTRADICTION", "LEAN_BUT_RESISTANT"}, codes)

	risk, all = riskRun(150, 40, "Lean")
	_, trace = e.Apply(risk, goodCoverage(), nil, all)
	assert.Empty(t, flagCodes(trace))
}

func TestConsistency_OnlyAffectedMetrics(t *testing.T) {
	e := newTestEngine(t)
	_, all := riskRun(85, 60, "Lean")

	// glucose is referenced by rules but affected by none
	_, trace := e.Apply(all[1], goodCoverage(), nil, all)
	assert.Empty(t, trace.CrossMetricConsistency.Flags)
	assert.True(t, trace.CrossMetricConsistency.Checked)

	// phenotype is affected by high_ir only
	_, trace = e.Apply(all[3], goodCoverage(), nil, all)
	assert.Equal(t, []string{"IR_CONTRADICTION"}, flagCodes(trace))
}

func TestConsistency_MissingReferencedMetric(t *testing.T) {
	e := newTestEngine(t)
	risk := model.MetricOutput{MetricID: "risk", ConfidencePercent: model.Float(80), Payload: model.Payload{"probability": 70}}
	_, trace := e.Apply(risk, goodCoverage(), nil, []model.MetricOutput{risk})
	assert.Empty(t, trace.CrossMetricConsistency.Flags)
	stage, _ := trace.Stage(model.StageConsistency)
	assert.True(t, stage.NoOp)
}

func TestEvaluate(t *testing.T) {
	num := rules.NumberThreshold
	tests := []struct {
		name string
		cond rules.Condition
		p    model.Payload
		want bool
	}{
		{"score above inclusive", rules.Condition{ThresholdType: rules.ScoreOrIndexAbove, Threshold: num(50)}, model.Payload{"score_value": 50}, true},
		{"score below strict", rules.Condition{ThresholdType: rules.ScoreOrIndexBelow, Threshold: num(50)}, model.Payload{"score_value": 50}, false},
		{"probability above from pair", rules.Condition{ThresholdType: rules.ProbabilityAbove, Threshold: num(70)}, model.Payload{"prob_low": 70, "prob_high": 90}, true},
		{"probability below", rules.Condition{ThresholdType: rules.ProbabilityBelow, Threshold: num(30)}, model.Payload{"probability_value": 10}, true},
		{"range midpoint above", rules.Condition{ThresholdType: rules.RangeMidpointAbove, Threshold: num(100)}, model.Payload{"value_range_low": 90, "value_range_high": 110}, true},
		{"range midpoint needs range", rules.Condition{ThresholdType: rules.RangeMidpointBelow, Threshold: num(100)}, model.Payload{"value": 10}, false},
		{"class match case-insensitive", rules.Condition{ThresholdType: rules.ClassMatch, Threshold: rules.LabelThreshold("Improving")}, model.Payload{"trend_label": "improving"}, true},
		{"class match exact only", rules.Condition{ThresholdType: rules.ClassMatch, Threshold: rules.LabelThreshold("improving")}, model.Payload{"trend_label": "slowly_improving"}, false},
		{"class match on value", rules.Condition{ThresholdType: rules.ClassMatch, Threshold: rules.LabelThreshold("high")}, model.Payload{"value": "HIGH"}, true},
		{"numeric comparator with label", rules.Condition{ThresholdType: rules.ScoreOrIndexAbove, Threshold: rules.LabelThreshold("x")}, model.Payload{"score_value": 50}, false},
		{"non numeric value", rules.Condition{ThresholdType: rules.ScoreOrIndexAbove, Threshold: num(1)}, model.Payload{"score_value": "50"}, false},
		{"unknown comparator", rules.Condition{ThresholdType: "median_above", Threshold: num(1)}, model.Payload{"value": 50}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluate(tt.cond, tt.p))
		})
	}
}

func flagCodes(trace model.AuditTrace) []string {
	var out []string
	for _, f := range trace.CrossMetricConsistency.Flags {
		out = append(out, f.FlagCode)
	}
	return out
}
