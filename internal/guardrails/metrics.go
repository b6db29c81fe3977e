package guardrails

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/metric-guardrails/internal/model"
)

var (
	// evaluationsTotal counts pipeline evaluations by selected tier.
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardrails_evaluations_total",
		Help: "Total metric evaluations by degradation tier",
	}, []string{"tier"})

	// gatingFallbacks counts dependency gating failures by cause.
	gatingFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardrails_gating_fallbacks_total",
		Help: "Total dependency gating fallbacks by cause",
	}, []string{"cause"})

	temporalViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardrails_temporal_violations_total",
		Help: "Total temporal sanity violations by metric and cap strategy",
	}, []string{"metric_id", "cap_strategy"})

	consistencyFlags = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guardrails_consistency_flags_total",
		Help: "Total cross-metric consistency flags by flag code",
	}, []string{"flag_code"})

	// representationDefects counts NULL-as-bug defects.
	representationDefects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guardrails_representation_defects_total",
		Help: "Total outputs with positive confidence and no valid representation",
	})
)

func recordEvaluation(t model.AuditTrace) {
	evaluationsTotal.WithLabelValues(t.Degradation.Tier).Inc()
	if t.Resolution.IsDefect {
		representationDefects.Inc()
	}
}
