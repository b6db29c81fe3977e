package guardrails

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/metric-guardrails/internal/model"
	"github.com/sells-group/metric-guardrails/internal/rules"
)

// gate checks the metric's required inputs against the run's coverage. A
// metric with no dependency rule is unverifiable and gets the conservative
// MissingRuleFallback.
func (e *Engine) gate(out model.MetricOutput, cov model.CoverageSummary, ev *evaluation) model.MetricOutput {
	before := out.Confidence()

	rule, ok := e.rules.Dependency(out.MetricID)
	if !ok {
		next := applyFallback(out, rules.MissingRuleFallback)
		after := next.Confidence()
		ev.constraint("dependency_rule", model.ConstraintSoftFail, "no dependency rule; restricted to exploratory")
		ev.adjust(model.StageDependencyGating, before, after, "no dependency rule")
		ev.stage(model.StageDependencyGating, before, after, false, "no dependency rule; conservative fallback applied")
		gatingFallbacks.WithLabelValues("missing_rule").Inc()
		return next
	}

	ev.trace.DerivedFeaturesUsed = append([]string(nil), rule.DerivedInputs...)

	var failed []string
	for _, req := range rule.RequiredInputs {
		usage := inputUsage(req, cov)
		ev.trace.InputsUsed = append(ev.trace.InputsUsed, usage)
		if !usage.MeetsRequirements {
			failed = append(failed, req.Stream)
		}
	}

	if len(failed) == 0 {
		note := fmt.Sprintf("%d required input(s) meet requirements", len(rule.RequiredInputs))
		ev.constraint("dependency_gating", model.ConstraintPass, note)
		ev.stage(model.StageDependencyGating, before, before, false, note)
		return out
	}

	next := applyFallback(out, rule.FallbackBehavior)
	after := next.Confidence()
	reason := "required inputs not met: " + strings.Join(failed, ", ")
	ev.constraint("dependency_gating", model.ConstraintSoftFail, reason)
	ev.adjust(model.StageDependencyGating, before, after, reason)
	ev.stage(model.StageDependencyGating, before, after, false, reason)
	gatingFallbacks.WithLabelValues("inputs_not_met").Inc()
	return next
}

func inputUsage(req rules.RequiredInput, cov model.CoverageSummary) model.InputUsage {
	u := model.InputUsage{Stream: req.Stream}
	sc, ok := cov.Stream(req.Stream)
	if !ok {
		u.Notes = "stream absent from coverage summary"
		return u
	}

	u.Present = true
	u.DaysCovered = sc.DaysCovered
	u.MissingRate = sc.MissingRate
	u.QualityScore = sc.QualityScore
	u.MeetsRequirements = req.Meets(sc)

	var notes []string
	if sc.DaysCovered < req.MinDaysCovered {
		notes = append(notes, fmt.Sprintf("days_covered %.1f < %.1f", sc.DaysCovered, req.MinDaysCovered))
	}
	if sc.MissingRate > req.MaxMissingRate {
		notes = append(notes, fmt.Sprintf("missing_rate %.2f > %.2f", sc.MissingRate, req.MaxMissingRate))
	}
	if sc.QualityScore < req.MinQualityScore {
		notes = append(notes, fmt.Sprintf("quality_score %.2f < %.2f", sc.QualityScore, req.MinQualityScore))
	}
	if len(notes) == 0 {
		u.Notes = "meets requirements"
	} else {
		u.Notes = strings.Join(notes, "; ")
	}
	return u
}

// applyFallback lowers confidence by the fallback penalty but never below
// its floor, attaches the fallback flags and the display override.
func applyFallback(out model.MetricOutput, fb rules.FallbackBehavior) model.MetricOutput {
	next := out.Clone()
	conf := math.Max(fb.ConfidenceFloor*100, out.Confidence()-fb.ConfidencePenalty*100)
	next.ConfidencePercent = &conf
	next.ExplainabilityFlags = appendFlags(next.ExplainabilityFlags, fb.ExplainabilityFlags...)
	if fb.DisplayStrategy != "" {
		next.DisplayStrategyOverride = fb.DisplayStrategy
	}
	return next
}
