// Package rules holds the versioned guardrail rule tables: metric dependency
// requirements, the degradation ladder, provenance labels, temporal-delta
// limits, cross-metric consistency rules and render priority. A RuleSet is
// validated once at load time and is read-only afterwards.
package rules

import (
	"github.com/sells-group/metric-guardrails/internal/model"
)

// RequiredInput is a raw data stream a metric depends on, with the coverage
// bounds it must meet.
type RequiredInput struct {
	Stream          string  `yaml:"stream" json:"stream" validate:"required"`
	MinDaysCovered  float64 `yaml:"min_days_covered" json:"min_days_covered" validate:"gte=0"`
	MaxMissingRate  float64 `yaml:"max_missing_rate" json:"max_missing_rate" validate:"gte=0,lte=1"`
	MinQualityScore float64 `yaml:"min_quality_score" json:"min_quality_score" validate:"gte=0,lte=1"`
}

// Meets reports whether a stream's coverage satisfies all three bounds.
func (r RequiredInput) Meets(sc model.StreamCoverage) bool {
	return sc.DaysCovered >= r.MinDaysCovered &&
		sc.MissingRate <= r.MaxMissingRate &&
		sc.QualityScore >= r.MinQualityScore
}

// FallbackBehavior is applied when a metric's dependencies are not met.
// Floor and penalty are fractions (0.2 = 20 percentage points).
type FallbackBehavior struct {
	WhenRequiredMissing string   `yaml:"when_required_missing" json:"when_required_missing,omitempty"`
	ConfidenceFloor     float64  `yaml:"confidence_floor" json:"confidence_floor" validate:"gte=0,lte=1"`
	ConfidencePenalty   float64  `yaml:"confidence_penalty" json:"confidence_penalty" validate:"gte=0,lte=1"`
	ExplainabilityFlags []string `yaml:"explainability_flags" json:"explainability_flags,omitempty"`
	DisplayStrategy     string   `yaml:"display_strategy" json:"display_strategy,omitempty"`
}

// MissingRuleFallback is used for metrics with no dependency rule: the
// metric is unverifiable, so it is restricted rather than trusted.
var MissingRuleFallback = FallbackBehavior{
	WhenRequiredMissing: "render_exploratory_only",
	ConfidenceFloor:     0.20,
	ConfidencePenalty:   0.30,
	ExplainabilityFlags: []string{"EXPLORATORY_ONLY", "NO_DEPENDENCY_RULE"},
	DisplayStrategy:     "exploratory_only",
}

// DependencyRule lists a metric's required inputs and its fallback.
type DependencyRule struct {
	RequiredInputs   []RequiredInput  `yaml:"required_inputs" json:"required_inputs" validate:"dive"`
	DerivedInputs    []string         `yaml:"derived_inputs" json:"derived_inputs,omitempty"`
	FallbackBehavior FallbackBehavior `yaml:"fallback_behavior" json:"fallback_behavior"`
}

// DependencyMap is the metric_dependency_map table.
type DependencyMap struct {
	Version string                            `yaml:"version" json:"version"`
	Metrics map[model.MetricID]DependencyRule `yaml:"metrics" json:"metrics" validate:"dive"`
}

// TierCriteria are the bounds a run must satisfy to select a tier. A
// negative ConflictsMax means unbounded.
type TierCriteria struct {
	DataAdequacyMin float64 `yaml:"data_adequacy_min" json:"data_adequacy_min" validate:"gte=0,lte=1"`
	MissingRateMax  float64 `yaml:"missing_rate_max" json:"missing_rate_max" validate:"gte=0,lte=1"`
	ConflictsMax    int     `yaml:"conflicts_max" json:"conflicts_max"`
}

// Matches reports whether the criteria admit the given run characteristics.
func (c TierCriteria) Matches(adequacy, missingRate float64, conflicts int) bool {
	return adequacy >= c.DataAdequacyMin &&
		missingRate <= c.MissingRateMax &&
		(c.ConflictsMax < 0 || conflicts <= c.ConflictsMax)
}

// Unconditional reports whether the criteria admit every possible input.
func (c TierCriteria) Unconditional() bool {
	return c.DataAdequacyMin <= 0 && c.MissingRateMax >= 1 && c.ConflictsMax < 0
}

// DegradationTier is one rung of the degradation ladder.
type DegradationTier struct {
	Tier                       string       `yaml:"tier" json:"tier" validate:"required"`
	Description                string       `yaml:"description" json:"description,omitempty"`
	Criteria                   TierCriteria `yaml:"criteria" json:"criteria"`
	ConfidenceMultiplier       float64      `yaml:"confidence_multiplier" json:"confidence_multiplier" validate:"gt=0"`
	RangeUncertaintyMultiplier float64      `yaml:"range_uncertainty_multiplier" json:"range_uncertainty_multiplier" validate:"gt=0"`
	ForcedRules                []string     `yaml:"forced_rules" json:"forced_rules,omitempty"`
}

// DegradationLadder is the data_degradation_ladder table. Tiers are ordered
// most permissive first; the last tier is the unconditional fallback.
type DegradationLadder struct {
	Version string            `yaml:"version" json:"version"`
	Tiers   []DegradationTier `yaml:"tiers" json:"tiers" validate:"required,min=1,dive"`
}

// Select returns the first tier whose criteria all hold, or the final tier.
func (l DegradationLadder) Select(adequacy, missingRate float64, conflicts int) DegradationTier {
	for _, t := range l.Tiers {
		if t.Criteria.Matches(adequacy, missingRate, conflicts) {
			return t
		}
	}
	return l.Tiers[len(l.Tiers)-1]
}

// ProvenanceEntry labels a metric as measured or inferred.
type ProvenanceEntry struct {
	ProvenanceLabel string `yaml:"provenance_label" json:"provenance_label" validate:"required"`
	Rationale       string `yaml:"rationale" json:"rationale,omitempty"`
}

// BadgeValue describes how a provenance label is displayed.
type BadgeValue struct {
	MeasuredVsInferred string `yaml:"measured_vs_inferred" json:"measured_vs_inferred" validate:"required"`
	BadgeColor         string `yaml:"badge_color" json:"badge_color" validate:"required"`
}

// ProvenanceMap is the metric_provenance_map table.
type ProvenanceMap struct {
	Version     string                             `yaml:"version" json:"version"`
	Metrics     map[model.MetricID]ProvenanceEntry `yaml:"metrics" json:"metrics" validate:"dive"`
	BadgeValues map[string]BadgeValue              `yaml:"provenance_badge_values" json:"provenance_badge_values" validate:"dive"`
}

// UnknownBadge is attached to metrics with no provenance entry.
var UnknownBadge = model.ProvenanceBadge{
	Label:              "UNKNOWN",
	MeasuredVsInferred: "UNKNOWN",
	BadgeColor:         "gray",
}

// CapStrategy is how a temporal violation is corrected.
type CapStrategy string

// Cap strategies.
const (
	CapToMaxDelta  CapStrategy = "cap_to_max_delta"
	DampenByFactor CapStrategy = "dampen_by_factor"
)

// ViolationBehavior describes the correction for a temporal violation.
type ViolationBehavior struct {
	FlagCode             string      `yaml:"flag_code" json:"flag_code" validate:"required"`
	CapStrategy          CapStrategy `yaml:"cap_strategy" json:"cap_strategy" validate:"oneof=cap_to_max_delta dampen_by_factor"`
	DampenFactor         float64     `yaml:"dampen_factor" json:"dampen_factor,omitempty" validate:"gte=0,lte=1"`
	ConfidencePenalty    float64     `yaml:"confidence_penalty" json:"confidence_penalty" validate:"gte=0,lte=1"`
	RangeWidenMultiplier float64     `yaml:"range_widen_multiplier" json:"range_widen_multiplier,omitempty" validate:"gte=0"`
}

// TemporalRule bounds how much a metric may change versus the prior run.
type TemporalRule struct {
	MaxDailyDelta     float64           `yaml:"max_daily_delta" json:"max_daily_delta,omitempty" validate:"gte=0"`
	MaxWeeklyDelta    float64           `yaml:"max_weekly_delta" json:"max_weekly_delta,omitempty" validate:"gte=0"`
	DeltaUnits        string            `yaml:"delta_units" json:"delta_units,omitempty"`
	ViolationBehavior ViolationBehavior `yaml:"violation_behavior" json:"violation_behavior"`
}

// MaxDelta returns the daily bound if set, else the weekly bound.
func (r TemporalRule) MaxDelta() float64 {
	if r.MaxDailyDelta > 0 {
		return r.MaxDailyDelta
	}
	return r.MaxWeeklyDelta
}

// TemporalRules is the temporal_sanity_rules table.
type TemporalRules struct {
	Version string                          `yaml:"version" json:"version"`
	Metrics map[model.MetricID]TemporalRule `yaml:"metrics" json:"metrics" validate:"dive"`
}

// Condition is one clause of a consistency rule, evaluated against another
// metric in the same run.
type Condition struct {
	MetricID      model.MetricID `yaml:"metric_id" json:"metric_id" validate:"required"`
	ThresholdType Comparator     `yaml:"threshold_type" json:"threshold_type" validate:"required"`
	Threshold     Threshold      `yaml:"threshold" json:"threshold"`
}

// Consequence is applied to affected metrics when every condition holds.
type Consequence struct {
	FlagCode          string           `yaml:"flag_code" json:"flag_code" validate:"required"`
	FlagMessage       string           `yaml:"flag_message" json:"flag_message"`
	ConfidencePenalty float64          `yaml:"confidence_penalty" json:"confidence_penalty" validate:"gte=0,lte=1"`
	AffectedMetrics   []model.MetricID `yaml:"affected_metrics" json:"affected_metrics" validate:"required,min=1"`
}

// ConsistencyRule flags contradictions between metrics of the same run.
type ConsistencyRule struct {
	ID   string      `yaml:"rule_id" json:"rule_id"`
	If   []Condition `yaml:"if" json:"if" validate:"required,min=1,dive"`
	Then Consequence `yaml:"then" json:"then"`
}

// Affects reports whether id is among the rule's affected metrics.
func (r ConsistencyRule) Affects(id model.MetricID) bool {
	for _, m := range r.Then.AffectedMetrics {
		if m == id {
			return true
		}
	}
	return false
}

// ConsistencyRules is the cross_metric_consistency_rules table.
type ConsistencyRules struct {
	Version string            `yaml:"version" json:"version"`
	Rules   []ConsistencyRule `yaml:"rules" json:"rules" validate:"dive"`
}

// PriorityLevel is one entry of the render priority order.
type PriorityLevel struct {
	Priority         int                      `yaml:"priority" json:"priority" validate:"gte=1"`
	Mode             model.RepresentationMode `yaml:"mode" json:"mode" validate:"required"`
	TemplateCategory string                   `yaml:"template_category" json:"template_category,omitempty"`
}

// RenderPriority is the render_priority_rules table.
type RenderPriority struct {
	Version       string          `yaml:"version" json:"version"`
	PriorityOrder []PriorityLevel `yaml:"priority_order" json:"priority_order" validate:"dive"`
}

// Tables is the raw, unvalidated content of the rule files.
type Tables struct {
	Dependencies DependencyMap
	Degradation  DegradationLadder
	Provenance   ProvenanceMap
	Temporal     TemporalRules
	Consistency  ConsistencyRules
	Render       RenderPriority
}
