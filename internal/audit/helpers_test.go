package audit

import (
	"fmt"
	"time"

	"github.com/sells-group/metric-guardrails/internal/model"
)

func testTrace(run string, metric model.MetricID) model.AuditTrace {
	return model.AuditTrace{
		ID:                fmt.Sprintf("%s-%s", run, metric),
		UserID:            "u1",
		SubmissionID:      "s1",
		RunID:             run,
		MetricID:          metric,
		CreatedAt:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		RulesVersion:      "dependency=v1",
		InitialConfidence: 75,
		FinalConfidence:   60,
		ConfidenceAdjustments: []model.ConfidenceAdjustment{
			{Stage: model.StageDegradation, Before: 75, After: 60, Reason: "tier moderate"},
		},
		Degradation: model.DegradationRecord{Tier: "moderate_degradation", ConfidenceMultiplier: 0.8, RangeUncertaintyMultiplier: 1.2},
		Provenance:  model.ProvenanceBadge{Label: "INFERRED", MeasuredVsInferred: "inferred", BadgeColor: "amber"},
	}
}
