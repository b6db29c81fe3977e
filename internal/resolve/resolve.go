// Package resolve decides which representation mode a metric payload
// supports. Each mode has its own validity check; when several are valid the
// highest-priority one wins.
package resolve

import (
	"fmt"
	"strings"

	"github.com/sells-group/metric-guardrails/internal/model"
)

// ForbiddenLabels are classification labels that mean "no value".
var ForbiddenLabels = []string{"null", "n/a", "unknown", "error", "undefined", "none"}

// TrendVocabulary lists the tokens a trend label must contain.
var TrendVocabulary = []string{"improving", "stable", "worsening", "insufficient_data"}

// ModeCheck is the validity verdict for one representation mode.
type ModeCheck struct {
	Mode    model.RepresentationMode `json:"mode"`
	Present bool                     `json:"present"`
	Valid   bool                     `json:"valid"`
	Reason  string                   `json:"reason,omitempty"`
}

// Resolution is the result of resolving a payload.
type Resolution struct {
	MetricID   model.MetricID             `json:"metric_id"`
	Mode       model.RepresentationMode   `json:"mode"`
	RenderMode model.RepresentationMode   `json:"render_mode"`
	Available  []model.RepresentationMode `json:"available"`
	Checks     []ModeCheck                `json:"checks"`
	Path       []string                   `json:"resolution_path"`
	Warnings   []string                   `json:"warnings,omitempty"`
}

// Resolved reports whether some representation mode was satisfied.
func (r Resolution) Resolved() bool {
	return r.Mode != model.ModeNone
}

// Multiple reports whether more than one mode was valid.
func (r Resolution) Multiple() bool {
	return len(r.Available) > 1
}

// Resolver resolves payloads against a fixed priority order.
type Resolver struct {
	priority []model.RepresentationMode
}

// New creates a resolver. An empty priority uses the default order
// range > score > probability > classification > trend.
func New(priority []model.RepresentationMode) *Resolver {
	if len(priority) == 0 {
		priority = model.AllModes
	}
	return &Resolver{priority: append([]model.RepresentationMode(nil), priority...)}
}

var defaultResolver = New(nil)

// Resolve uses the default priority order.
func Resolve(metricID model.MetricID, payload model.Payload) Resolution {
	return defaultResolver.Resolve(metricID, payload)
}

// Resolve checks every mode independently and selects the first valid mode
// in priority order. It never mutates the payload.
func (r *Resolver) Resolve(metricID model.MetricID, payload model.Payload) Resolution {
	res := Resolution{
		MetricID: metricID,
		Mode:     model.ModeNone,
	}

	for _, mode := range r.priority {
		c := CheckMode(mode, payload)
		res.Checks = append(res.Checks, c)
		if c.Valid {
			res.Available = append(res.Available, mode)
		}
	}

	if len(res.Available) > 0 {
		res.Mode = res.Available[0]
		res.Path = append(res.Path, fmt.Sprintf("selected %s by priority", res.Mode))
	} else {
		res.Path = append(res.Path, "no valid representation")
	}
	for _, c := range res.Checks {
		if c.Present && !c.Valid {
			res.Path = append(res.Path, fmt.Sprintf("rejected %s: %s", c.Mode, c.Reason))
		}
	}
	res.RenderMode = res.Mode.RenderMode()

	if res.Multiple() {
		names := make([]string, len(res.Available))
		for i, m := range res.Available {
			names[i] = string(m)
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"multiple representations available (%s); %s selected by priority",
			strings.Join(names, ", "), res.Mode,
		))
	}
	return res
}

// CheckMode runs the validity rule for a single mode.
func CheckMode(mode model.RepresentationMode, p model.Payload) ModeCheck {
	switch mode {
	case model.ModeRange:
		return checkRange(p)
	case model.ModeScore:
		return checkScore(p)
	case model.ModeProbability:
		return checkProbability(p)
	case model.ModeClassification:
		return checkClassification(p)
	case model.ModeTrend:
		return checkTrend(p)
	default:
		return ModeCheck{Mode: mode, Reason: "unknown mode"}
	}
}

func checkRange(p model.Payload) ModeCheck {
	c := ModeCheck{Mode: model.ModeRange}
	low, lowPresent, lowOK := p.Number(model.RangeLowKeys...)
	high, highPresent, highOK := p.Number(model.RangeHighKeys...)
	c.Present = lowPresent || highPresent
	switch {
	case !lowPresent || !highPresent:
		c.Reason = "range_low and range_high both required"
	case !lowOK || !highOK:
		c.Reason = "range bounds must be numeric"
	case low == high:
		c.Reason = "equal bounds are false precision"
	case low > high:
		c.Reason = "range_low exceeds range_high"
	default:
		c.Valid = true
	}
	return c
}

func checkScore(p model.Payload) ModeCheck {
	c := ModeCheck{Mode: model.ModeScore}
	v, present, ok := p.Number(model.ScoreKeys...)
	c.Present = present
	switch {
	case !present:
		c.Reason = "no score value"
	case !ok:
		c.Reason = "score must be numeric"
	case !inPercent(v):
		c.Reason = fmt.Sprintf("score %.2f outside [0,100]", v)
	default:
		c.Valid = true
	}
	return c
}

func checkProbability(p model.Payload) ModeCheck {
	c := ModeCheck{Mode: model.ModeProbability}

	low, lowPresent, lowOK := p.Number(model.ProbLowKey)
	high, highPresent, highOK := p.Number(model.ProbHighKey)
	var pairReason string
	if lowPresent && highPresent {
		c.Present = true
		switch {
		case !lowOK || !highOK:
			pairReason = "probability bounds must be numeric"
		case !inPercent(low) || !inPercent(high):
			pairReason = "probability bounds outside [0,100]"
		case low >= high:
			pairReason = "prob_low must be below prob_high"
		default:
			c.Valid = true
			return c
		}
	}

	v, present, ok := p.Number(model.ProbabilityKeys...)
	if present {
		c.Present = true
	}
	switch {
	case !present && pairReason != "":
		c.Reason = pairReason
	case !present:
		c.Reason = "no probability pair or value"
	case !ok:
		c.Reason = "probability must be numeric"
	case !inPercent(v):
		c.Reason = fmt.Sprintf("probability %.2f outside [0,100]", v)
	default:
		c.Valid = true
	}
	return c
}

func checkClassification(p model.Payload) ModeCheck {
	c := ModeCheck{Mode: model.ModeClassification}
	label, present, ok := p.String(model.ClassificationKeys...)
	c.Present = present
	normalized := strings.ToLower(strings.TrimSpace(label))
	switch {
	case !present:
		c.Reason = "no class label"
	case !ok:
		c.Reason = "class label must be a string"
	case normalized == "":
		c.Reason = "class label is empty"
	case IsForbiddenLabel(normalized):
		c.Reason = fmt.Sprintf("class label %q is a placeholder", label)
	default:
		c.Valid = true
	}
	return c
}

func checkTrend(p model.Payload) ModeCheck {
	c := ModeCheck{Mode: model.ModeTrend}
	label, present, ok := p.String(model.TrendKeys...)
	c.Present = present
	normalized := strings.ToLower(strings.TrimSpace(label))
	switch {
	case !present:
		c.Reason = "no trend label"
	case !ok:
		c.Reason = "trend label must be a string"
	case normalized == "":
		c.Reason = "trend label is empty"
	case !containsTrendToken(normalized):
		c.Reason = fmt.Sprintf("trend label %q has no recognised direction", label)
	default:
		c.Valid = true
	}
	return c
}

// IsForbiddenLabel reports whether a label is a placeholder for "no value".
func IsForbiddenLabel(label string) bool {
	normalized := strings.ToLower(strings.TrimSpace(label))
	for _, f := range ForbiddenLabels {
		if normalized == f {
			return true
		}
	}
	return false
}

func containsTrendToken(normalized string) bool {
	for _, tok := range TrendVocabulary {
		if strings.Contains(normalized, tok) {
			return true
		}
	}
	return false
}

func inPercent(v float64) bool {
	return v >= 0 && v <= 100
}
