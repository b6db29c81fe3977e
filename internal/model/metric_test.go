package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsNumber(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"float64", 12.5, 12.5, true},
		{"int", 7, 7, true},
		{"int64", int64(-3), -3, true},
		{"json number", json.Number("42.1"), 42.1, true},
		{"bad json number", json.Number("x"), 0, false},
		{"string", "12", 0, false},
		{"bool", true, 0, false},
		{"nan", math.NaN(), 0, false},
		{"inf", math.Inf(1), 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AsNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPayload_LookupPrefersFirstNonNil(t *testing.T) {
	p := Payload{"range_low": nil, "value_range_low": 3.0}

	v, ok := p.Lookup(RangeLowKeys...)
	require.True(t, ok)
	assert.Equal(t, 3.0, v)

	_, ok = p.Lookup("missing")
	assert.False(t, ok)
}

func TestPayload_NumberMalformed(t *testing.T) {
	p := Payload{"score_value": "high"}

	_, present, ok := p.Number(ScoreKeys...)
	assert.True(t, present)
	assert.False(t, ok)
}

func TestMetricOutput_CloneIsDeep(t *testing.T) {
	orig := MetricOutput{
		MetricID:            "hydration",
		ConfidencePercent:   Float(70),
		Payload:             Payload{"score_value": 55.0},
		RangeWidth:          Float(4),
		ExplainabilityFlags: []string{"A"},
		ProvenanceBadge:     &ProvenanceBadge{Label: "INFERRED"},
	}

	cp := orig.Clone()
	*cp.ConfidencePercent = 10
	*cp.RangeWidth = 1
	cp.Payload["score_value"] = 1.0
	cp.ExplainabilityFlags[0] = "B"
	cp.ProvenanceBadge.Label = "MEASURED"

	assert.Equal(t, 70.0, *orig.ConfidencePercent)
	assert.Equal(t, 4.0, *orig.RangeWidth)
	assert.Equal(t, 55.0, orig.Payload["score_value"])
	assert.Equal(t, "A", orig.ExplainabilityFlags[0])
	assert.Equal(t, "INFERRED", orig.ProvenanceBadge.Label)
}

func TestMetricOutput_ConfidenceDefault(t *testing.T) {
	assert.Equal(t, DefaultConfidencePercent, MetricOutput{}.Confidence())
	assert.Equal(t, 0.0, MetricOutput{ConfidencePercent: Float(0)}.Confidence())
}

func TestMetricOutput_HasFlag(t *testing.T) {
	m := MetricOutput{ExplainabilityFlags: []string{"Exploratory_Only"}}
	assert.True(t, m.HasFlag("EXPLORATORY_ONLY"))
	assert.False(t, m.HasFlag("OTHER"))
}

func TestRepresentationMode_RenderMode(t *testing.T) {
	assert.Equal(t, ModeInsufficientFallback, ModeNone.RenderMode())
	assert.Equal(t, ModeScore, ModeScore.RenderMode())
	assert.True(t, ModeTrend.Valid())
	assert.False(t, ModeNone.Valid())
}

func TestTraceKey_String(t *testing.T) {
	tr := AuditTrace{UserID: "u1", SubmissionID: "s1", RunID: "r1", MetricID: "m1"}
	assert.Equal(t, "u1_s1_r1_m1", tr.Key().String())
}

func TestAuditTrace_CloneIsDeep(t *testing.T) {
	tr := AuditTrace{
		Stages:     []StageRecord{{Stage: StageDependencyGating}},
		Resolution: ResolutionRecord{Warnings: []string{"w"}},
	}
	cp := tr.Clone()
	cp.Stages[0].Note = "changed"
	cp.Resolution.Warnings[0] = "x"

	assert.Empty(t, tr.Stages[0].Note)
	assert.Equal(t, "w", tr.Resolution.Warnings[0])

	s, ok := tr.Stage(StageDependencyGating)
	assert.True(t, ok)
	assert.Equal(t, StageDependencyGating, s.Stage)
}

func TestCoverageSummary(t *testing.T) {
	c := CoverageSummary{
		StreamCoverage: map[string]StreamCoverage{"hr": {DaysCovered: 10}},
		ConflictFlags:  []string{"a", "b"},
	}
	sc, ok := c.Stream("hr")
	assert.True(t, ok)
	assert.Equal(t, 10.0, sc.DaysCovered)
	_, ok = c.Stream("spo2")
	assert.False(t, ok)
	assert.Equal(t, 2, c.ConflictCount())
}
