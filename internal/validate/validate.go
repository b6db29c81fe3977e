// Package validate enforces the NULL-as-bug invariant: a metric carrying
// positive confidence must resolve to a representation mode.
package validate

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/metric-guardrails/internal/model"
	"github.com/sells-group/metric-guardrails/internal/resolve"
)

// Explainability flags attached by ForceInsufficientFallback.
const (
	FlagForcedFallback    = "FORCED_INSUFFICIENT_FALLBACK_RENDERING"
	FlagValidationFailure = "VALIDATION_FAILURE_DETECTED"
)

// ForcedFallbackMaxConfidence caps the confidence of a forced fallback.
const ForcedFallbackMaxConfidence = 30.0

// Result is the verdict for one metric.
type Result struct {
	MetricID          model.MetricID             `json:"metric_id,omitempty"`
	Mode              model.RepresentationMode   `json:"mode"`
	Available         []model.RepresentationMode `json:"available,omitempty"`
	IsSuccess         bool                       `json:"is_success"`
	IsDefect          bool                       `json:"is_defect"`
	MustForceFallback bool                       `json:"must_force_fallback"`
	FailureReasons    []string                   `json:"failure_reasons,omitempty"`
	Warnings          []string                   `json:"warnings,omitempty"`
}

// Validator checks payloads with a fixed resolver.
type Validator struct {
	resolver *resolve.Resolver
}

// New creates a validator. A nil resolver uses the default priority order.
func New(r *resolve.Resolver) *Validator {
	if r == nil {
		r = resolve.New(nil)
	}
	return &Validator{resolver: r}
}

var defaultValidator = New(nil)

// Validate uses the default priority order.
func Validate(confidence *float64, payload model.Payload) Result {
	return defaultValidator.Validate(confidence, payload)
}

// Validate reports the resolved mode and whether the output is a defect.
// Only the sign of confidence matters, so either fractions or percentages
// may be passed. A nil confidence is treated as 1.0.
func (v *Validator) Validate(confidence *float64, payload model.Payload) Result {
	return v.check("", confidence, payload)
}

func (v *Validator) check(metricID model.MetricID, confidence *float64, payload model.Payload) Result {
	conf := 1.0
	if confidence != nil {
		conf = *confidence
	}

	res := v.resolver.Resolve(metricID, payload)
	out := Result{
		MetricID:  metricID,
		Mode:      res.Mode,
		Available: res.Available,
		IsSuccess: res.Resolved(),
		Warnings:  append([]string(nil), res.Warnings...),
	}
	if out.IsSuccess {
		return out
	}

	out.MustForceFallback = true
	out.FailureReasons = append(out.FailureReasons, "no valid primary representation found")
	for _, c := range res.Checks {
		reason := c.Reason
		if reason == "" {
			reason = "invalid"
		}
		out.FailureReasons = append(out.FailureReasons, fmt.Sprintf("%s: %s", c.Mode, reason))
	}

	if conf > 0 {
		out.IsDefect = true
		out.Warnings = append(out.Warnings, "confidence > 0 but no valid representation")
	} else {
		out.Warnings = append(out.Warnings, "zero confidence with no representation; rendering insufficient_fallback")
	}
	return out
}

// ForceInsufficientFallback returns a copy of out prepared for the
// insufficient-data renderer: confidence capped at 30, a qualitative class
// label when none usable exists, and the forced-fallback flags appended.
func ForceInsufficientFallback(out model.MetricOutput) model.MetricOutput {
	forced := out.Clone()
	forced.ConfidencePercent = model.Float(min(out.Confidence(), ForcedFallbackMaxConfidence))
	forced.RenderMode = model.ModeInsufficientFallback

	if forced.Payload == nil {
		forced.Payload = model.Payload{}
	}
	if label, ok := forced.Payload["class_label"].(string); !ok || strings.TrimSpace(label) == "" || resolve.IsForbiddenLabel(label) {
		name := strings.ReplaceAll(string(out.MetricID), "_", " ")
		forced.Payload["class_label"] = name + " - Insufficient data for precise estimate"
	}
	forced.ExplainabilityFlags = append(forced.ExplainabilityFlags, FlagForcedFallback, FlagValidationFailure)
	return forced
}

// Report summarises validation of every output in a run.
type Report struct {
	Total           int      `json:"total_metrics"`
	Successful      int      `json:"successful"`
	Failed          int      `json:"failed"`
	Defects         int      `json:"defects"`
	Results         []Result `json:"results"`
	DefectDetails   []Result `json:"defect_details,omitempty"`
	ShouldFailCheck bool     `json:"should_fail_check"`
}

// ValidateRun validates all outputs with the default priority order.
func ValidateRun(outputs []model.MetricOutput) Report {
	return defaultValidator.ValidateRun(outputs)
}

// ValidateRun validates all outputs. ShouldFailCheck is set when any output
// is a defect.
func (v *Validator) ValidateRun(outputs []model.MetricOutput) Report {
	rep := Report{Total: len(outputs)}
	for _, o := range outputs {
		r := v.check(o.MetricID, o.ConfidencePercent, o.Payload)
		rep.Results = append(rep.Results, r)
		if r.IsSuccess {
			rep.Successful++
		} else {
			rep.Failed++
		}
		if r.IsDefect {
			rep.Defects++
			rep.DefectDetails = append(rep.DefectDetails, r)
			zap.L().Warn("validate: metric has confidence but no representation",
				zap.String("metric_id", string(o.MetricID)),
				zap.Float64("confidence", o.Confidence()),
				zap.Strings("reasons", r.FailureReasons),
			)
		}
	}
	rep.ShouldFailCheck = rep.Defects > 0
	return rep
}
