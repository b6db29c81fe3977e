package guardrails

import (
	"fmt"
	"math"

	"github.com/sells-group/metric-guardrails/internal/model"
	"github.com/sells-group/metric-guardrails/internal/rules"
)

// checkTemporal bounds the change versus the prior run. At most one
// violation is recorded; the correction is written back into the payload
// representation the current value was read from.
func (e *Engine) checkTemporal(out model.MetricOutput, prior *model.MetricOutput, ev *evaluation) model.MetricOutput {
	conf := out.Confidence()
	skip := func(note string) model.MetricOutput {
		ev.constraint("temporal_sanity", model.ConstraintSkipped, note)
		ev.stage(model.StageTemporal, conf, conf, true, note)
		return out
	}

	if prior == nil {
		return skip("no prior output")
	}
	rule, ok := e.rules.Temporal(out.MetricID)
	if !ok {
		return skip("no temporal rule")
	}
	cur, curOK := extractNumeric(out.Payload)
	prev, prevOK := extractNumeric(prior.Payload)
	if !curOK || !prevOK {
		return skip("no comparable numeric value")
	}

	ev.trace.TemporalSanity.Checked = true
	maxDelta := rule.MaxDelta()
	delta := math.Abs(cur.value - prev.value)
	if maxDelta <= 0 || delta <= maxDelta {
		note := fmt.Sprintf("delta %.2f within max %g %s", delta, maxDelta, rule.DeltaUnits)
		ev.constraint("temporal_sanity", model.ConstraintPass, note)
		ev.stage(model.StageTemporal, conf, conf, true, note)
		return out
	}

	vb := rule.ViolationBehavior
	adjusted := correctDelta(prev.value, cur.value, maxDelta, vb)
	details := fmt.Sprintf("delta %.2f exceeds max %g %s", delta, maxDelta, rule.DeltaUnits)

	next := out.Clone()
	next.Payload = cur.write(out.Payload, adjusted)
	after := conf - vb.ConfidencePenalty*100
	next.ConfidencePercent = &after
	if vb.RangeWidenMultiplier > 0 && next.RangeWidth != nil {
		w := *next.RangeWidth * vb.RangeWidenMultiplier
		next.RangeWidth = &w
	}
	next.ExplainabilityFlags = appendFlags(next.ExplainabilityFlags, vb.FlagCode)

	ev.trace.TemporalSanity.Violations = []model.TemporalViolation{{
		FlagCode:      vb.FlagCode,
		Details:       details,
		Action:        string(vb.CapStrategy),
		PriorValue:    prev.value,
		CurrentValue:  cur.value,
		AdjustedValue: adjusted,
		Delta:         delta,
		MaxDelta:      maxDelta,
	}}
	ev.constraint("temporal_sanity", model.ConstraintSoftFail, details)
	ev.adjust(model.StageTemporal, conf, after, vb.FlagCode+": "+details)
	ev.stage(model.StageTemporal, conf, after, false, fmt.Sprintf("%s; %s %.2f -> %.2f", details, vb.CapStrategy, cur.value, adjusted))
	temporalViolations.WithLabelValues(string(out.MetricID), string(vb.CapStrategy)).Inc()
	return next
}

// correctDelta moves current back toward prior. cap_to_max_delta lands on
// prior ± maxDelta; dampen_by_factor keeps the direction but scales the
// whole delta by the dampening factor.
func correctDelta(prior, current, maxDelta float64, vb rules.ViolationBehavior) float64 {
	dir := 1.0
	if current < prior {
		dir = -1
	}
	switch vb.CapStrategy {
	case rules.DampenByFactor:
		return prior + dir*math.Abs(current-prior)*vb.DampenFactor
	default:
		return prior + dir*maxDelta
	}
}
