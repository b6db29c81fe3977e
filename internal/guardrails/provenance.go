package guardrails

import (
	"fmt"

	"github.com/sells-group/metric-guardrails/internal/model"
)

// label attaches the metric's provenance badge. No confidence effect.
func (e *Engine) label(out model.MetricOutput, ev *evaluation) model.MetricOutput {
	conf := out.Confidence()
	badge := e.rules.Badge(out.MetricID)

	next := out.Clone()
	next.ProvenanceBadge = &badge
	ev.trace.Provenance = badge

	note := fmt.Sprintf("%s (%s)", badge.Label, badge.MeasuredVsInferred)
	if !e.rules.HasProvenance(out.MetricID) {
		note = "no provenance entry; labeled UNKNOWN"
	}
	ev.stage(model.StageProvenance, conf, conf, false, note)
	return next
}
