package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// MetricID identifies a metric across runs (e.g. "hydration_status").
type MetricID string

// DefaultConfidencePercent is used when an upstream output carries no confidence.
const DefaultConfidencePercent = 50.0

// RepresentationMode is the shape a metric's value takes for display.
type RepresentationMode string

// Representation modes in default render priority order.
const (
	ModeRange          RepresentationMode = "range"
	ModeScore          RepresentationMode = "score"
	ModeProbability    RepresentationMode = "probability"
	ModeClassification RepresentationMode = "classification"
	ModeTrend          RepresentationMode = "trend"
	ModeNone           RepresentationMode = "none"

	// ModeInsufficientFallback is the render mode used when no representation is valid.
	ModeInsufficientFallback RepresentationMode = "insufficient_fallback"
)

// AllModes lists the five representable modes in default priority order.
var AllModes = []RepresentationMode{ModeRange, ModeScore, ModeProbability, ModeClassification, ModeTrend}

// Valid reports whether m is one of the five representable modes.
func (m RepresentationMode) Valid() bool {
	for _, v := range AllModes {
		if m == v {
			return true
		}
	}
	return false
}

// RenderMode maps ModeNone to the insufficient-data fallback renderer.
func (m RepresentationMode) RenderMode() RepresentationMode {
	if m == ModeNone || m == "" {
		return ModeInsufficientFallback
	}
	return m
}

// Payload is the loosely-typed value carried by a metric output. It usually
// arrives as decoded JSON, so callers must not assume field types.
type Payload map[string]any

// Payload field names, including the synonyms accepted from upstream.
var (
	RangeLowKeys       = []string{"range_low", "value_range_low"}
	RangeHighKeys      = []string{"range_high", "value_range_high"}
	ScoreKeys          = []string{"score_value", "index_score", "composite_score", "score"}
	ProbLowKey         = "prob_low"
	ProbHighKey        = "prob_high"
	ProbabilityKeys    = []string{"probability_value", "probability"}
	ClassificationKeys = []string{"class_label", "classification", "phenotype_label", "pattern_label"}
	TrendKeys          = []string{"trend_label", "trend", "trajectory_label", "trajectory"}
	ValueKey           = "value"
)

// Lookup returns the first non-nil value among keys, in order.
func (p Payload) Lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Number returns the first non-nil value among keys as a float64. present is
// true when some key held a value; ok is false when that value is not a finite
// number.
func (p Payload) Number(keys ...string) (value float64, present bool, ok bool) {
	v, present := p.Lookup(keys...)
	if !present {
		return 0, false, false
	}
	value, ok = AsNumber(v)
	return value, true, ok
}

// String returns the first non-nil value among keys as a string.
func (p Payload) String(keys ...string) (value string, present bool, ok bool) {
	v, present := p.Lookup(keys...)
	if !present {
		return "", false, false
	}
	s, ok := v.(string)
	return s, true, ok
}

// Clone returns a shallow copy of the payload map. Values are scalars in
// practice; nested values are shared.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// AsNumber converts numeric scalars to float64. Strings, booleans, NaN and
// infinities are rejected.
func AsNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := strconv.ParseFloat(string(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// MetricOutput is one computed result for one metric in one run. Values are
// treated as immutable: pipeline stages derive new outputs with Clone.
type MetricOutput struct {
	MetricID                MetricID           `json:"metric_id"`
	ConfidencePercent       *float64           `json:"confidence_percent,omitempty"`
	Payload                 Payload            `json:"payload,omitempty"`
	RangeWidth              *float64           `json:"range_width,omitempty"`
	ExplainabilityFlags     []string           `json:"explainability_flags,omitempty"`
	ProvenanceBadge         *ProvenanceBadge   `json:"provenance_badge,omitempty"`
	DisplayStrategyOverride string             `json:"display_strategy_override,omitempty"`
	RenderMode              RepresentationMode `json:"render_mode,omitempty"`
}

// Confidence returns the confidence percent, or DefaultConfidencePercent when absent.
func (m MetricOutput) Confidence() float64 {
	if m.ConfidencePercent == nil {
		return DefaultConfidencePercent
	}
	return *m.ConfidencePercent
}

// WithConfidence returns a copy with the confidence replaced.
func (m MetricOutput) WithConfidence(c float64) MetricOutput {
	out := m.Clone()
	out.ConfidencePercent = &c
	return out
}

// HasFlag reports whether the output carries the given explainability flag.
func (m MetricOutput) HasFlag(flag string) bool {
	for _, f := range m.ExplainabilityFlags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the output.
func (m MetricOutput) Clone() MetricOutput {
	out := m
	if m.ConfidencePercent != nil {
		c := *m.ConfidencePercent
		out.ConfidencePercent = &c
	}
	if m.RangeWidth != nil {
		w := *m.RangeWidth
		out.RangeWidth = &w
	}
	out.Payload = m.Payload.Clone()
	if m.ExplainabilityFlags != nil {
		out.ExplainabilityFlags = append([]string(nil), m.ExplainabilityFlags...)
	}
	if m.ProvenanceBadge != nil {
		b := *m.ProvenanceBadge
		out.ProvenanceBadge = &b
	}
	return out
}

// Float returns a pointer to f. Convenience for optional numeric fields.
func Float(f float64) *float64 {
	return &f
}
