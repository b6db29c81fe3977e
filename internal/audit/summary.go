package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/metric-guardrails/internal/model"
)

// Summary renders a trace as markdown for reviewers.
func Summary(t model.AuditTrace) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Audit Trace: %s\n\n", t.MetricID)
	fmt.Fprintf(&b, "**Key:** `%s`\n", t.Key())
	fmt.Fprintf(&b, "**Created:** %s\n", t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "**Rules:** %s\n", t.RulesVersion)
	fmt.Fprintf(&b, "**Confidence:** %.1f%% -> %.1f%%\n\n", t.InitialConfidence, t.FinalConfidence)

	b.WriteString("## Inputs Used\n")
	if len(t.InputsUsed) == 0 {
		b.WriteString("- none\n")
	}
	for _, in := range t.InputsUsed {
		status := "FAIL"
		if in.MeetsRequirements {
			status = "OK"
		}
		fmt.Fprintf(&b, "- %s [%s]: %.0f days, %.1f%% missing, quality %.2f (%s)\n",
			in.Stream, status, in.DaysCovered, in.MissingRate*100, in.QualityScore, in.Notes)
	}

	b.WriteString("\n## Stages\n")
	for i, s := range t.Stages {
		marker := ""
		if s.NoOp {
			marker = " (no-op)"
		}
		fmt.Fprintf(&b, "%d. %s%s: %.1f -> %.1f; %s\n", i+1, s.Stage, marker, s.Before, s.After, s.Note)
	}

	b.WriteString("\n## Confidence Adjustments\n")
	if len(t.ConfidenceAdjustments) == 0 {
		b.WriteString("- none\n")
	}
	for _, a := range t.ConfidenceAdjustments {
		fmt.Fprintf(&b, "- %s: %.1f -> %.1f (%s)\n", a.Stage, a.Before, a.After, a.Reason)
	}

	fmt.Fprintf(&b, "\n## Degradation\n- tier: %s (x%.2f confidence, x%.2f range)\n",
		t.Degradation.Tier, t.Degradation.ConfidenceMultiplier, t.Degradation.RangeUncertaintyMultiplier)
	if len(t.Degradation.RulesTriggered) > 0 {
		fmt.Fprintf(&b, "- forced rules: %s\n", strings.Join(t.Degradation.RulesTriggered, ", "))
	}

	fmt.Fprintf(&b, "\n## Provenance\n- %s (%s, %s)\n",
		t.Provenance.Label, t.Provenance.MeasuredVsInferred, t.Provenance.BadgeColor)

	b.WriteString("\n## Temporal Sanity\n")
	switch {
	case !t.TemporalSanity.Checked:
		b.WriteString("- not checked\n")
	case len(t.TemporalSanity.Violations) == 0:
		b.WriteString("- no violations\n")
	}
	for _, v := range t.TemporalSanity.Violations {
		fmt.Fprintf(&b, "- %s: %s (%s, %.2f -> %.2f)\n", v.FlagCode, v.Details, v.Action, v.CurrentValue, v.AdjustedValue)
	}

	b.WriteString("\n## Cross-Metric Consistency\n")
	if len(t.CrossMetricConsistency.Flags) == 0 {
		b.WriteString("- no flags\n")
	}
	for _, f := range t.CrossMetricConsistency.Flags {
		fmt.Fprintf(&b, "- %s: %s (-%.0f%%)\n", f.FlagCode, f.Details, f.ConfidencePenalty*100)
	}

	fmt.Fprintf(&b, "\n## Representation\n- mode: %s (render %s)\n", t.Resolution.Mode, t.Resolution.RenderMode)
	if t.Resolution.IsDefect {
		b.WriteString("- DEFECT: positive confidence with no valid representation\n")
	}
	for _, w := range t.Resolution.Warnings {
		fmt.Fprintf(&b, "- warning: %s\n", w)
	}
	return b.String()
}

// Export writes every retained trace as an indented JSON array.
func Export(ctx context.Context, st Store, w io.Writer) error {
	all, err := st.All(ctx)
	if err != nil {
		return eris.Wrap(err, "audit: export")
	}
	if all == nil {
		all = []model.AuditTrace{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(all), "audit: encode export")
}
