package model

import (
	"fmt"
	"time"
)

// StageName identifies a guardrails pipeline stage.
type StageName string

// Pipeline stages, in execution order, plus the final clamp.
const (
	StageDependencyGating StageName = "dependency_gating"
	StageDegradation      StageName = "degradation_ladder"
	StageProvenance       StageName = "provenance"
	StageTemporal         StageName = "temporal_sanity"
	StageConsistency      StageName = "cross_metric_consistency"
	StageFinalClamp       StageName = "final_clamp"
)

// PipelineStages lists the five adjustment stages in order.
var PipelineStages = []StageName{
	StageDependencyGating,
	StageDegradation,
	StageProvenance,
	StageTemporal,
	StageConsistency,
}

// ConstraintOutcome is the pass/fail note recorded for an applied constraint.
type ConstraintOutcome string

// Constraint outcomes.
const (
	ConstraintPass     ConstraintOutcome = "pass"
	ConstraintSoftFail ConstraintOutcome = "soft_fail"
	ConstraintSkipped  ConstraintOutcome = "skipped"
)

// TraceKey identifies one audit trace. It is derived from the trace itself.
type TraceKey struct {
	UserID       string   `json:"user_id"`
	SubmissionID string   `json:"submission_id"`
	RunID        string   `json:"run_id"`
	MetricID     MetricID `json:"metric_id"`
}

// String renders the key as user_submission_run_metric. The rendering is
// for display; distinct keys can render alike when IDs contain underscores.
func (k TraceKey) String() string {
	return fmt.Sprintf("%s_%s_%s_%s", k.UserID, k.SubmissionID, k.RunID, k.MetricID)
}

// InputUsage records one required stream consulted during gating.
type InputUsage struct {
	Stream            string  `json:"stream"`
	Present           bool    `json:"present"`
	DaysCovered       float64 `json:"days_covered"`
	MissingRate       float64 `json:"missing_rate"`
	QualityScore      float64 `json:"quality_score"`
	MeetsRequirements bool    `json:"meets_requirements"`
	Notes             string  `json:"notes"`
}

// ConstraintResult records a constraint applied to the metric.
type ConstraintResult struct {
	Name   string            `json:"name"`
	Result ConstraintOutcome `json:"result"`
	Notes  string            `json:"notes,omitempty"`
}

// StageRecord is the per-stage entry every pipeline run leaves in its trace.
type StageRecord struct {
	Stage  StageName `json:"stage"`
	Before float64   `json:"before"`
	After  float64   `json:"after"`
	NoOp   bool      `json:"no_op"`
	Note   string    `json:"note"`
}

// ConfidenceAdjustment records a change applied to confidence.
type ConfidenceAdjustment struct {
	Stage  StageName `json:"stage"`
	Before float64   `json:"before"`
	After  float64   `json:"after"`
	Reason string    `json:"reason"`
}

// DegradationRecord records the selected degradation tier.
type DegradationRecord struct {
	Tier                       string   `json:"tier"`
	ConfidenceMultiplier       float64  `json:"confidence_multiplier"`
	RangeUncertaintyMultiplier float64  `json:"range_uncertainty_multiplier"`
	DataAdequacy               float64  `json:"data_adequacy"`
	MaxMissingRate             float64  `json:"max_missing_rate"`
	Conflicts                  int      `json:"conflicts"`
	RulesTriggered             []string `json:"rules_triggered"`
}

// ProvenanceBadge distinguishes measured values from inferred ones.
type ProvenanceBadge struct {
	Label              string `json:"provenance_label"`
	MeasuredVsInferred string `json:"measured_vs_inferred"`
	BadgeColor         string `json:"badge_color"`
	Rationale          string `json:"rationale,omitempty"`
}

// TemporalViolation is a too-large change versus the prior run.
type TemporalViolation struct {
	FlagCode      string  `json:"flag_code"`
	Details       string  `json:"details"`
	Action        string  `json:"action"`
	PriorValue    float64 `json:"prior_value"`
	CurrentValue  float64 `json:"current_value"`
	AdjustedValue float64 `json:"adjusted_value"`
	Delta         float64 `json:"delta"`
	MaxDelta      float64 `json:"max_delta"`
}

// TemporalResult is the outcome of the temporal sanity stage.
type TemporalResult struct {
	Checked    bool                `json:"checked"`
	Violations []TemporalViolation `json:"violations"`
}

// ConsistencyFlag is a satisfied cross-metric consistency rule.
type ConsistencyFlag struct {
	RuleID            string  `json:"rule_id,omitempty"`
	FlagCode          string  `json:"flag_code"`
	Details           string  `json:"details"`
	ConfidencePenalty float64 `json:"confidence_penalty"`
}

// ConsistencyResult is the outcome of the cross-metric consistency stage.
type ConsistencyResult struct {
	Checked bool              `json:"checked"`
	Flags   []ConsistencyFlag `json:"flags"`
	// TotalPenalty is in percentage points.
	TotalPenalty float64 `json:"total_penalty"`
}

// ResolutionRecord is the representation check run on the final output.
type ResolutionRecord struct {
	Mode              RepresentationMode   `json:"mode"`
	RenderMode        RepresentationMode   `json:"render_mode"`
	AvailableModes    []RepresentationMode `json:"available_modes"`
	IsDefect          bool                 `json:"is_defect"`
	MustForceFallback bool                 `json:"must_force_fallback"`
	Warnings          []string             `json:"warnings,omitempty"`
}

// AuditTrace is the immutable record of one pipeline invocation.
type AuditTrace struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	SubmissionID string    `json:"submission_id"`
	RunID        string    `json:"run_id"`
	MetricID     MetricID  `json:"metric_id"`
	CreatedAt    time.Time `json:"created_at"`
	RulesVersion string    `json:"rules_version"`

	InitialConfidence float64 `json:"initial_confidence"`
	FinalConfidence   float64 `json:"final_confidence"`

	InputsUsed             []InputUsage           `json:"inputs_used"`
	DerivedFeaturesUsed    []string               `json:"derived_features_used"`
	ConstraintsApplied     []ConstraintResult     `json:"constraints_applied"`
	Stages                 []StageRecord          `json:"stages"`
	ConfidenceAdjustments  []ConfidenceAdjustment `json:"confidence_adjustments"`
	Degradation            DegradationRecord      `json:"degradation"`
	Provenance             ProvenanceBadge        `json:"provenance"`
	TemporalSanity         TemporalResult         `json:"temporal_sanity"`
	CrossMetricConsistency ConsistencyResult      `json:"cross_metric_consistency"`
	Resolution             ResolutionRecord       `json:"resolution"`
}

// Key returns the trace's identifying key.
func (t AuditTrace) Key() TraceKey {
	return TraceKey{
		UserID:       t.UserID,
		SubmissionID: t.SubmissionID,
		RunID:        t.RunID,
		MetricID:     t.MetricID,
	}
}

// Stage returns the record for the named stage.
func (t AuditTrace) Stage(name StageName) (StageRecord, bool) {
	for _, s := range t.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageRecord{}, false
}

// Clone returns a deep copy so stored traces cannot be mutated by callers.
func (t AuditTrace) Clone() AuditTrace {
	out := t
	out.InputsUsed = append([]InputUsage(nil), t.InputsUsed...)
	out.DerivedFeaturesUsed = append([]string(nil), t.DerivedFeaturesUsed...)
	out.ConstraintsApplied = append([]ConstraintResult(nil), t.ConstraintsApplied...)
	out.Stages = append([]StageRecord(nil), t.Stages...)
	out.ConfidenceAdjustments = append([]ConfidenceAdjustment(nil), t.ConfidenceAdjustments...)
	out.Degradation.RulesTriggered = append([]string(nil), t.Degradation.RulesTriggered...)
	out.TemporalSanity.Violations = append([]TemporalViolation(nil), t.TemporalSanity.Violations...)
	out.CrossMetricConsistency.Flags = append([]ConsistencyFlag(nil), t.CrossMetricConsistency.Flags...)
	out.Resolution.AvailableModes = append([]RepresentationMode(nil), t.Resolution.AvailableModes...)
	out.Resolution.Warnings = append([]string(nil), t.Resolution.Warnings...)
	return out
}
