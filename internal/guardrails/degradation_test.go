package guardrails

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/metric-guardrails/internal/model"
	"github.com/sells-group/metric-guardrails/internal/rules"
)

func TestDegrade_ModerateTierWidensRange(t *testing.T) {
	e := newTestEngine(t)
	cov := goodCoverage()
	cov.ConflictFlags = []string{"weight_vs_activity"}

	final, trace := e.Apply(model.MetricOutput{
		MetricID:          "X",
		ConfidencePercent: model.Float(50),
		Payload:           model.Payload{"range_low": 1, "range_high": 3},
		RangeWidth:        model.Float(2),
	}, cov, nil, nil)

	assert.Equal(t, "moderate_degradation", trace.Degradation.Tier)
	assert.Equal(t, 1, trace.Degradation.Conflicts)
	assert.Equal(t, []string{"show_range_only"}, trace.Degradation.RulesTriggered)
	assert.Equal(t, 40.0, *final.ConfidencePercent)
	assert.Equal(t, 2.5, *final.RangeWidth)
}

func TestDegrade_MultiplicativeOverGating(t *testing.T) {
	e := newTestEngine(t)
	cov := goodCoverage()
	cov.StreamCoverage["S"] = model.StreamCoverage{DaysCovered: 10, MissingRate: 0.25, QualityScore: 0.6}

	_, trace := e.Apply(model.MetricOutput{MetricID: "X", ConfidencePercent: model.Float(80)}, cov, nil, nil)

	// gating fails (missing 0.25 > 0.2): 80 - 30 = 50; moderate tier: 50 * 0.8 = 40
	require.Len(t, trace.ConfidenceAdjustments, 2)
	assert.Equal(t, model.StageDependencyGating, trace.ConfidenceAdjustments[0].Stage)
	assert.Equal(t, 50.0, trace.ConfidenceAdjustments[0].After)
	assert.Equal(t, model.StageDegradation, trace.ConfidenceAdjustments[1].Stage)
	assert.Equal(t, 50.0, trace.ConfidenceAdjustments[1].Before)
	assert.Equal(t, 40.0, trace.ConfidenceAdjustments[1].After)
}

func TestAdequacy(t *testing.T) {
	tables := testTables()
	tables.Dependencies.Metrics["multi"] = rules.DependencyRule{
		RequiredInputs: []rules.RequiredInput{{Stream: "A"}, {Stream: "B"}, {Stream: "C"}},
	}
	e := NewEngine(rules.MustNew(tables))

	cov := model.CoverageSummary{StreamCoverage: map[string]model.StreamCoverage{
		"A": {QualityScore: 0.9, MissingRate: 0.1},
		"B": {QualityScore: 0.6, MissingRate: 0.3},
	}}
	adequacy, missing := e.adequacy("multi", cov)
	assert.InDelta(t, 0.5, adequacy, 1e-9) // (0.9 + 0.6 + 0) / 3
	assert.Equal(t, 1.0, missing)          // C is absent

	cov.StreamCoverage["C"] = model.StreamCoverage{QualityScore: 0.3, MissingRate: 0.2}
	adequacy, missing = e.adequacy("multi", cov)
	assert.InDelta(t, 0.6, adequacy, 1e-9)
	assert.Equal(t, 0.3, missing)

	adequacy, missing = e.adequacy("no_rule", cov)
	assert.Equal(t, 0.0, adequacy)
	assert.Equal(t, 1.0, missing)
}

func TestTierMonotonicity(t *testing.T) {
	check := func(t *testing.T, ladder rules.DegradationLadder) {
		for _, missing := range []float64{0, 0.05, 0.1, 0.2, 0.3, 0.5, 1} {
			for _, conflicts := range []int{0, 1, 2, 3, 10} {
				prev := -1.0
				for a := 0; a <= 100; a++ {
					tier := ladder.Select(float64(a)/100, missing, conflicts)
					if prev >= 0 {
						assert.GreaterOrEqual(t, tier.ConfidenceMultiplier, prev,
							"adequacy %.2f missing %.2f conflicts %d", float64(a)/100, missing, conflicts)
					}
					prev = tier.ConfidenceMultiplier
				}
			}
		}
	}

	t.Run("test ladder", func(t *testing.T) {
		check(t, rules.MustNew(testTables()).Ladder())
	})
	t.Run("default ladder", func(t *testing.T) {
		rs, err := rules.Default(context.Background())
		require.NoError(t, err)
		check(t, rs.Ladder())
	})
}
