package audit

import (
	"github.com/sells-group/metric-guardrails/internal/model"
)

// Stats aggregates a set of traces.
type Stats struct {
	TotalTraces            int            `json:"total_traces"`
	DistinctRuns           int            `json:"distinct_runs"`
	DistinctMetrics        int            `json:"distinct_metrics"`
	MeanAdjustments        float64        `json:"mean_adjustments"`
	TierDistribution       map[string]int `json:"tier_distribution"`
	ProvenanceDistribution map[string]int `json:"provenance_distribution"`
	TemporalViolations     int            `json:"temporal_violations"`
	ConsistencyFlags       int            `json:"consistency_flags"`
	Defects                int            `json:"defects"`
}

// TierShare returns the fraction of traces that selected tier.
func (s Stats) TierShare(tier string) float64 {
	if s.TotalTraces == 0 {
		return 0
	}
	return float64(s.TierDistribution[tier]) / float64(s.TotalTraces)
}

// TemporalViolationRate returns temporal violations per trace.
func (s Stats) TemporalViolationRate() float64 {
	if s.TotalTraces == 0 {
		return 0
	}
	return float64(s.TemporalViolations) / float64(s.TotalTraces)
}

// ComputeStats derives Stats from traces. Runs are distinguished by
// (user, submission, run) so that equal run IDs from different submissions
// are not merged.
func ComputeStats(traces []model.AuditTrace) Stats {
	s := Stats{
		TotalTraces:            len(traces),
		TierDistribution:       map[string]int{},
		ProvenanceDistribution: map[string]int{},
	}
	runs := map[[3]string]struct{}{}
	metrics := map[model.MetricID]struct{}{}

	var adjustments int
	for _, t := range traces {
		runs[[3]string{t.UserID, t.SubmissionID, t.RunID}] = struct{}{}
		metrics[t.MetricID] = struct{}{}
		adjustments += len(t.ConfidenceAdjustments)

		if t.Degradation.Tier != "" {
			s.TierDistribution[t.Degradation.Tier]++
		}
		if t.Provenance.Label != "" {
			s.ProvenanceDistribution[t.Provenance.Label]++
		}
		s.TemporalViolations += len(t.TemporalSanity.Violations)
		s.ConsistencyFlags += len(t.CrossMetricConsistency.Flags)
		if t.Resolution.IsDefect {
			s.Defects++
		}
	}

	s.DistinctRuns = len(runs)
	s.DistinctMetrics = len(metrics)
	if len(traces) > 0 {
		s.MeanAdjustments = float64(adjustments) / float64(len(traces))
	}
	return s
}
