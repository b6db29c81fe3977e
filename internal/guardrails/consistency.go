package guardrails

import (
	"fmt"
	"strings"

	"github.com/sells-group/metric-guardrails/internal/model"
	"github.com/sells-group/metric-guardrails/internal/rules"
)

// checkConsistency evaluates every consistency rule against the whole run.
// Rules whose conditions all hold and that list this metric contribute a flag
// and their penalty; the summed penalty is subtracted once.
func (e *Engine) checkConsistency(out model.MetricOutput, all []model.MetricOutput, ev *evaluation) model.MetricOutput {
	conf := out.Confidence()
	ruleset := e.rules.ConsistencyRules()
	result := model.ConsistencyResult{Checked: len(ruleset) > 0}

	byID := make(map[model.MetricID]model.MetricOutput, len(all))
	for _, o := range all {
		if _, seen := byID[o.MetricID]; !seen {
			byID[o.MetricID] = o
		}
	}

	var penalty float64
	for _, r := range ruleset {
		if !r.Affects(out.MetricID) || !conditionsHold(r.If, byID) {
			continue
		}
		result.Flags = append(result.Flags, model.ConsistencyFlag{
			RuleID:            r.ID,
			FlagCode:          r.Then.FlagCode,
			Details:           r.Then.FlagMessage,
			ConfidencePenalty: r.Then.ConfidencePenalty,
		})
		penalty += r.Then.ConfidencePenalty
	}
	result.TotalPenalty = penalty * 100
	ev.trace.CrossMetricConsistency = result

	if len(result.Flags) == 0 {
		note := fmt.Sprintf("%d rule(s) evaluated; none apply", len(ruleset))
		ev.constraint("cross_metric_consistency", model.ConstraintPass, note)
		ev.stage(model.StageConsistency, conf, conf, true, note)
		return out
	}

	codes := make([]string, len(result.Flags))
	for i, f := range result.Flags {
		codes[i] = f.FlagCode
		consistencyFlags.WithLabelValues(f.FlagCode).Inc()
	}

	next := out.Clone()
	after := conf - result.TotalPenalty
	next.ConfidencePercent = &after
	next.ExplainabilityFlags = appendFlags(next.ExplainabilityFlags, codes...)

	reason := "consistency flags: " + strings.Join(codes, ", ")
	ev.constraint("cross_metric_consistency", model.ConstraintSoftFail, reason)
	ev.adjust(model.StageConsistency, conf, after, reason)
	ev.stage(model.StageConsistency, conf, after, false, fmt.Sprintf("%s; penalty %.1f points", reason, result.TotalPenalty))
	return next
}

func conditionsHold(conds []rules.Condition, byID map[model.MetricID]model.MetricOutput) bool {
	for _, c := range conds {
		target, ok := byID[c.MetricID]
		if !ok || !evaluate(c, target.Payload) {
			return false
		}
	}
	return true
}

// evaluate applies one comparator. Above comparators are inclusive, below
// comparators strict.
func evaluate(c rules.Condition, p model.Payload) bool {
	if c.ThresholdType == rules.ClassMatch {
		label, ok := extractLabel(p)
		return ok && c.Threshold.IsLabel && label == strings.ToLower(strings.TrimSpace(c.Threshold.Label))
	}
	if !c.ThresholdType.Numeric() || c.Threshold.IsLabel {
		return false
	}

	var (
		v  float64
		ok bool
	)
	switch c.ThresholdType {
	case rules.RangeMidpointAbove, rules.RangeMidpointBelow:
		var src numericSource
		src, ok = rangeSource(p)
		v = src.value
	default:
		var src numericSource
		src, ok = extractNumeric(p)
		v = src.value
	}
	if !ok {
		return false
	}
	if c.ThresholdType.Above() {
		return v >= c.Threshold.Number
	}
	return v < c.Threshold.Number
}
