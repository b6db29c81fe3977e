package guardrails

import (
	"math"
	"strings"

	"github.com/sells-group/metric-guardrails/internal/model"
)

type sourceKind int

const (
	sourceScalar sourceKind = iota
	sourceScore
	sourceProbability
	sourceProbabilityPair
	sourceRange
)

// numericSource remembers where a comparable value was read from so that a
// corrected value can be written back into the same representation.
type numericSource struct {
	kind  sourceKind
	key   string
	low   string
	high  string
	value float64
}

// extractNumeric returns a single comparable value for a payload, preferring
// an explicit scalar, then a score, then a probability, then a range
// midpoint.
func extractNumeric(p model.Payload) (numericSource, bool) {
	if v, ok := model.AsNumber(p[model.ValueKey]); ok {
		return numericSource{kind: sourceScalar, key: model.ValueKey, value: v}, true
	}
	for _, k := range model.ScoreKeys {
		if v, ok := model.AsNumber(p[k]); ok {
			return numericSource{kind: sourceScore, key: k, value: v}, true
		}
	}
	for _, k := range model.ProbabilityKeys {
		if v, ok := model.AsNumber(p[k]); ok {
			return numericSource{kind: sourceProbability, key: k, value: v}, true
		}
	}
	if mid, ok := pairMidpoint(p, model.ProbLowKey, model.ProbHighKey); ok {
		return numericSource{kind: sourceProbabilityPair, low: model.ProbLowKey, high: model.ProbHighKey, value: mid}, true
	}
	if src, ok := rangeSource(p); ok {
		return src, true
	}
	return numericSource{}, false
}

func rangeSource(p model.Payload) (numericSource, bool) {
	for i := range model.RangeLowKeys {
		lowKey, highKey := model.RangeLowKeys[i], model.RangeHighKeys[i]
		if mid, ok := pairMidpoint(p, lowKey, highKey); ok {
			return numericSource{kind: sourceRange, low: lowKey, high: highKey, value: mid}, true
		}
	}
	return numericSource{}, false
}

func pairMidpoint(p model.Payload, lowKey, highKey string) (float64, bool) {
	low, _, lowOK := p.Number(lowKey)
	high, _, highOK := p.Number(highKey)
	if !lowOK || !highOK {
		return 0, false
	}
	return (low + high) / 2, true
}

// write stores v into a copy of p at the location src was read from. Pair
// representations are shifted so their midpoint becomes v. A probability
// pair that cannot stay inside [0,100] collapses to probability_value.
func (src numericSource) write(p model.Payload, v float64) model.Payload {
	out := p.Clone()
	if out == nil {
		out = model.Payload{}
	}
	switch src.kind {
	case sourceProbabilityPair:
		low, _, _ := out.Number(src.low)
		high, _, _ := out.Number(src.high)
		// Keep the pair inside [0,100], narrowing it around v when a full
		// shift would cross a bound.
		half := math.Min((high-low)/2, math.Min(v, 100-v))
		if half <= 0 {
			delete(out, src.low)
			delete(out, src.high)
			out[model.ProbabilityKeys[0]] = math.Max(0, math.Min(100, v))
			break
		}
		out[src.low] = v - half
		out[src.high] = v + half
	case sourceRange:
		shift := v - src.value
		low, _, _ := out.Number(src.low)
		high, _, _ := out.Number(src.high)
		out[src.low] = low + shift
		out[src.high] = high + shift
	default:
		out[src.key] = v
	}
	return out
}

// extractLabel returns the lower-cased label used by class_match conditions.
func extractLabel(p model.Payload) (string, bool) {
	for _, keys := range [][]string{model.ClassificationKeys, model.TrendKeys, {model.ValueKey}} {
		if s, _, ok := p.String(keys...); ok && strings.TrimSpace(s) != "" {
			return strings.ToLower(strings.TrimSpace(s)), true
		}
	}
	return "", false
}
