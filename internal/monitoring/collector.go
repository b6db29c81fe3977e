package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"

	"github.com/sells-group/metric-guardrails/internal/audit"
)

// ExploratoryTier is the ladder tier whose share is watched.
const ExploratoryTier = "exploratory_only"

var integrityGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "guardrails_integrity_signal",
	Help: "Latest integrity signals derived from the audit store.",
}, []string{"signal"})

// Snapshot holds a point-in-time view of metric integrity.
type Snapshot struct {
	TotalTraces           int       `json:"total_traces"`
	DistinctRuns          int       `json:"distinct_runs"`
	Defects               int       `json:"defects"`
	TemporalViolations    int       `json:"temporal_violations"`
	TemporalViolationRate float64   `json:"temporal_violation_rate"`
	ExploratoryShare      float64   `json:"exploratory_share"`
	ConsistencyFlags      int       `json:"consistency_flags"`
	MeanAdjustments       float64   `json:"mean_adjustments"`
	CollectedAt           time.Time `json:"collected_at"`
}

// StatsSource is the part of audit.Store the collector reads.
type StatsSource interface {
	Stats(ctx context.Context) (audit.Stats, error)
}

// Collector turns audit statistics into snapshots.
type Collector struct {
	source StatsSource
	now    func() time.Time
}

// NewCollector creates a collector over src.
func NewCollector(src StatsSource) *Collector {
	return &Collector{source: src, now: time.Now}
}

// Collect reads the current statistics and publishes them as gauges.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	st, err := c.source.Stats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: audit stats")
	}

	snap := &Snapshot{
		TotalTraces:           st.TotalTraces,
		DistinctRuns:          st.DistinctRuns,
		Defects:               st.Defects,
		TemporalViolations:    st.TemporalViolations,
		TemporalViolationRate: st.TemporalViolationRate(),
		ExploratoryShare:      st.TierShare(ExploratoryTier),
		ConsistencyFlags:      st.ConsistencyFlags,
		MeanAdjustments:       st.MeanAdjustments,
		CollectedAt:           c.now().UTC(),
	}

	integrityGauge.WithLabelValues("traces").Set(float64(snap.TotalTraces))
	integrityGauge.WithLabelValues("defects").Set(float64(snap.Defects))
	integrityGauge.WithLabelValues("temporal_violation_rate").Set(snap.TemporalViolationRate)
	integrityGauge.WithLabelValues("exploratory_share").Set(snap.ExploratoryShare)

	return snap, nil
}
