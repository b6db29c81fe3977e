package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/metric-guardrails/internal/model"
)

var validate = validator.New()

// RuleSet is the validated, immutable rule store consulted by the pipeline.
// It is safe for concurrent use; nothing mutates it after New returns.
type RuleSet struct {
	dependencies map[model.MetricID]DependencyRule
	ladder       []DegradationTier
	provenance   map[model.MetricID]ProvenanceEntry
	badges       map[string]BadgeValue
	temporal     map[model.MetricID]TemporalRule
	consistency  []ConsistencyRule
	priority     []model.RepresentationMode
	version      string
}

// New validates the raw tables and builds a RuleSet. Structurally invalid
// tables fail here rather than on every evaluation.
func New(t Tables) (*RuleSet, error) {
	if err := Validate(t); err != nil {
		return nil, err
	}

	rs := &RuleSet{
		dependencies: make(map[model.MetricID]DependencyRule, len(t.Dependencies.Metrics)),
		ladder:       append([]DegradationTier(nil), t.Degradation.Tiers...),
		provenance:   make(map[model.MetricID]ProvenanceEntry, len(t.Provenance.Metrics)),
		badges:       make(map[string]BadgeValue, len(t.Provenance.BadgeValues)),
		temporal:     make(map[model.MetricID]TemporalRule, len(t.Temporal.Metrics)),
		consistency:  append([]ConsistencyRule(nil), t.Consistency.Rules...),
		priority:     priorityOrder(t.Render),
		version:      versionOf(t),
	}
	for id, d := range t.Dependencies.Metrics {
		rs.dependencies[id] = d
	}
	for id, p := range t.Provenance.Metrics {
		rs.provenance[id] = p
	}
	for label, b := range t.Provenance.BadgeValues {
		rs.badges[label] = b
	}
	for id, r := range t.Temporal.Metrics {
		rs.temporal[id] = r
	}
	return rs, nil
}

// MustNew is New for statically known tables; it panics on invalid input.
func MustNew(t Tables) *RuleSet {
	rs, err := New(t)
	if err != nil {
		panic(err)
	}
	return rs
}

// Validate checks the rule tables for structural and semantic errors.
func Validate(t Tables) error {
	for name, v := range map[string]any{
		"dependency map":     t.Dependencies,
		"degradation ladder": t.Degradation,
		"provenance map":     t.Provenance,
		"temporal rules":     t.Temporal,
		"consistency rules":  t.Consistency,
		"render priority":    t.Render,
	} {
		if err := validate.Struct(v); err != nil {
			return eris.Wrapf(err, "rules: invalid %s", name)
		}
	}

	var errs []string

	tiers := t.Degradation.Tiers
	if !tiers[len(tiers)-1].Criteria.Unconditional() {
		errs = append(errs, fmt.Sprintf("degradation ladder: last tier %q must be unconditional (data_adequacy_min 0, missing_rate_max 1, conflicts_max -1)", tiers[len(tiers)-1].Tier))
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].ConfidenceMultiplier > tiers[i-1].ConfidenceMultiplier {
			errs = append(errs, fmt.Sprintf("degradation ladder: tier %q multiplier %.2f exceeds preceding tier %q", tiers[i].Tier, tiers[i].ConfidenceMultiplier, tiers[i-1].Tier))
		}
	}

	for id, p := range t.Provenance.Metrics {
		if _, ok := t.Provenance.BadgeValues[p.ProvenanceLabel]; !ok {
			errs = append(errs, fmt.Sprintf("provenance map: metric %s references undefined label %q", id, p.ProvenanceLabel))
		}
	}

	for id, r := range t.Temporal.Metrics {
		if r.MaxDelta() <= 0 {
			errs = append(errs, fmt.Sprintf("temporal rules: metric %s needs max_daily_delta or max_weekly_delta", id))
		}
		if r.ViolationBehavior.CapStrategy == DampenByFactor && r.ViolationBehavior.DampenFactor <= 0 {
			errs = append(errs, fmt.Sprintf("temporal rules: metric %s uses dampen_by_factor without dampen_factor", id))
		}
	}

	for i, r := range t.Consistency.Rules {
		for _, c := range r.If {
			switch {
			case !c.ThresholdType.Valid():
				errs = append(errs, fmt.Sprintf("consistency rule %d (%s): unknown threshold_type %q", i, r.ID, c.ThresholdType))
			case c.ThresholdType == ClassMatch && !c.Threshold.IsLabel:
				errs = append(errs, fmt.Sprintf("consistency rule %d (%s): class_match needs a label threshold", i, r.ID))
			case c.ThresholdType.Numeric() && c.Threshold.IsLabel:
				errs = append(errs, fmt.Sprintf("consistency rule %d (%s): %s needs a numeric threshold", i, r.ID, c.ThresholdType))
			}
		}
	}

	if len(t.Render.PriorityOrder) > 0 {
		seen := make(map[model.RepresentationMode]bool)
		for _, p := range t.Render.PriorityOrder {
			if !p.Mode.Valid() {
				errs = append(errs, fmt.Sprintf("render priority: unknown mode %q", p.Mode))
				continue
			}
			seen[p.Mode] = true
		}
		if len(seen) != len(model.AllModes) || len(t.Render.PriorityOrder) != len(model.AllModes) {
			errs = append(errs, "render priority: must list each of range, score, probability, classification, trend exactly once")
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("rules: invalid rule set: %s", strings.Join(errs, "; "))
	}
	return nil
}

func priorityOrder(r RenderPriority) []model.RepresentationMode {
	if len(r.PriorityOrder) == 0 {
		return append([]model.RepresentationMode(nil), model.AllModes...)
	}
	levels := append([]PriorityLevel(nil), r.PriorityOrder...)
	sort.SliceStable(levels, func(i, j int) bool { return levels[i].Priority < levels[j].Priority })
	out := make([]model.RepresentationMode, 0, len(levels))
	for _, l := range levels {
		out = append(out, l.Mode)
	}
	return out
}

func versionOf(t Tables) string {
	parts := []string{
		"dependency=" + t.Dependencies.Version,
		"degradation=" + t.Degradation.Version,
		"provenance=" + t.Provenance.Version,
		"temporal=" + t.Temporal.Version,
		"consistency=" + t.Consistency.Version,
	}
	if t.Render.Version != "" {
		parts = append(parts, "render="+t.Render.Version)
	}
	return strings.Join(parts, ";")
}

// Version identifies the loaded rule files; it is recorded on every trace.
func (rs *RuleSet) Version() string { return rs.version }

// Dependency returns the dependency rule for a metric.
func (rs *RuleSet) Dependency(id model.MetricID) (DependencyRule, bool) {
	d, ok := rs.dependencies[id]
	return d, ok
}

// Ladder returns the degradation ladder, most permissive tier first.
func (rs *RuleSet) Ladder() DegradationLadder {
	return DegradationLadder{Tiers: rs.ladder}
}

// Badge returns the provenance badge for a metric, or UnknownBadge.
func (rs *RuleSet) Badge(id model.MetricID) model.ProvenanceBadge {
	p, ok := rs.provenance[id]
	if !ok {
		return UnknownBadge
	}
	b := rs.badges[p.ProvenanceLabel]
	return model.ProvenanceBadge{
		Label:              p.ProvenanceLabel,
		MeasuredVsInferred: b.MeasuredVsInferred,
		BadgeColor:         b.BadgeColor,
		Rationale:          p.Rationale,
	}
}

// HasProvenance reports whether a metric has a provenance entry.
func (rs *RuleSet) HasProvenance(id model.MetricID) bool {
	_, ok := rs.provenance[id]
	return ok
}

// Temporal returns the temporal rule for a metric.
func (rs *RuleSet) Temporal(id model.MetricID) (TemporalRule, bool) {
	r, ok := rs.temporal[id]
	return r, ok
}

// ConsistencyRules returns the cross-metric consistency rules in file order.
func (rs *RuleSet) ConsistencyRules() []ConsistencyRule {
	return rs.consistency
}

// Priority returns the render priority order.
func (rs *RuleSet) Priority() []model.RepresentationMode {
	return append([]model.RepresentationMode(nil), rs.priority...)
}

// MetricIDs returns every metric referenced by any table, sorted.
func (rs *RuleSet) MetricIDs() []model.MetricID {
	seen := make(map[model.MetricID]bool)
	for id := range rs.dependencies {
		seen[id] = true
	}
	for id := range rs.provenance {
		seen[id] = true
	}
	for id := range rs.temporal {
		seen[id] = true
	}
	for _, r := range rs.consistency {
		for _, c := range r.If {
			seen[c.MetricID] = true
		}
		for _, id := range r.Then.AffectedMetrics {
			seen[id] = true
		}
	}
	out := make([]model.MetricID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Coverage reports metrics referenced somewhere in the rule set that lack a
// dependency rule. Such metrics fall back to MissingRuleFallback at runtime.
func (rs *RuleSet) Coverage() (missingDependency []model.MetricID) {
	for _, id := range rs.MetricIDs() {
		if _, ok := rs.dependencies[id]; !ok {
			missingDependency = append(missingDependency, id)
		}
	}
	return missingDependency
}
