package guardrails

import (
	"fmt"

	"github.com/sells-group/metric-guardrails/internal/model"
)

// adequacy summarises the metric's required streams: mean quality score and
// maximum missing rate. Absent streams stay in the mean as quality 0 and
// fully missing rather than being skipped, so a missing required stream
// always lowers adequacy. A metric with no required streams has adequacy 0
// and missing rate 1.
func (e *Engine) adequacy(id model.MetricID, cov model.CoverageSummary) (adequacy, maxMissing float64) {
	rule, ok := e.rules.Dependency(id)
	if !ok || len(rule.RequiredInputs) == 0 {
		return 0, 1
	}

	var sum float64
	for _, req := range rule.RequiredInputs {
		sc, present := cov.Stream(req.Stream)
		if !present {
			sc = model.StreamCoverage{MissingRate: 1}
		}
		sum += sc.QualityScore
		maxMissing = max(maxMissing, sc.MissingRate)
	}
	return sum / float64(len(rule.RequiredInputs)), maxMissing
}

// degrade selects the first degradation tier the run satisfies and scales
// confidence and range width by its multipliers.
func (e *Engine) degrade(out model.MetricOutput, cov model.CoverageSummary, ev *evaluation) model.MetricOutput {
	before := out.Confidence()
	adequacy, maxMissing := e.adequacy(out.MetricID, cov)
	conflicts := cov.ConflictCount()
	tier := e.rules.Ladder().Select(adequacy, maxMissing, conflicts)

	next := out.Clone()
	after := before * tier.ConfidenceMultiplier
	next.ConfidencePercent = &after
	if next.RangeWidth != nil {
		w := *next.RangeWidth * tier.RangeUncertaintyMultiplier
		next.RangeWidth = &w
	}

	ev.trace.Degradation = model.DegradationRecord{
		Tier:                       tier.Tier,
		ConfidenceMultiplier:       tier.ConfidenceMultiplier,
		RangeUncertaintyMultiplier: tier.RangeUncertaintyMultiplier,
		DataAdequacy:               adequacy,
		MaxMissingRate:             maxMissing,
		Conflicts:                  conflicts,
		RulesTriggered:             append([]string(nil), tier.ForcedRules...),
	}

	note := fmt.Sprintf("tier %s (adequacy %.2f, missing %.2f, conflicts %d)", tier.Tier, adequacy, maxMissing, conflicts)
	ev.constraint("degradation_tier", model.ConstraintPass, note)
	ev.adjust(model.StageDegradation, before, after, fmt.Sprintf("tier %s multiplier %.2f", tier.Tier, tier.ConfidenceMultiplier))
	ev.stage(model.StageDegradation, before, after, false, note)
	return next
}
