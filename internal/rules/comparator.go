package rules

import (
	"strconv"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Comparator is the enumerated condition type used by consistency rules.
type Comparator string

// Comparators.
const (
	ScoreOrIndexAbove  Comparator = "score_or_index_above"
	ScoreOrIndexBelow  Comparator = "score_or_index_below"
	ProbabilityAbove   Comparator = "probability_above"
	ProbabilityBelow   Comparator = "probability_below"
	RangeMidpointAbove Comparator = "range_midpoint_above"
	RangeMidpointBelow Comparator = "range_midpoint_below"
	ClassMatch         Comparator = "class_match"
)

var comparators = map[Comparator]bool{
	ScoreOrIndexAbove:  true,
	ScoreOrIndexBelow:  true,
	ProbabilityAbove:   true,
	ProbabilityBelow:   true,
	RangeMidpointAbove: true,
	RangeMidpointBelow: true,
	ClassMatch:         true,
}

// Valid reports whether c is a known comparator.
func (c Comparator) Valid() bool {
	return comparators[c]
}

// Numeric reports whether the comparator takes a numeric threshold.
func (c Comparator) Numeric() bool {
	return c.Valid() && c != ClassMatch
}

// Above reports whether the comparator is an "at or above" test.
func (c Comparator) Above() bool {
	return c == ScoreOrIndexAbove || c == ProbabilityAbove || c == RangeMidpointAbove
}

// Threshold is a consistency-rule threshold: a number for numeric
// comparators, a label for class_match.
type Threshold struct {
	Number  float64
	Label   string
	IsLabel bool
}

// NumberThreshold builds a numeric threshold.
func NumberThreshold(f float64) Threshold {
	return Threshold{Number: f}
}

// LabelThreshold builds a label threshold.
func LabelThreshold(s string) Threshold {
	return Threshold{Label: s, IsLabel: true}
}

// UnmarshalYAML accepts either a scalar number or a string.
func (t *Threshold) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return eris.Errorf("rules: threshold must be a scalar (line %d)", node.Line)
	}
	if node.Tag == "!!int" || node.Tag == "!!float" {
		f, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return eris.Wrapf(err, "rules: parse threshold %q", node.Value)
		}
		*t = NumberThreshold(f)
		return nil
	}
	*t = LabelThreshold(node.Value)
	return nil
}

// MarshalYAML writes the threshold back as its scalar value.
func (t Threshold) MarshalYAML() (any, error) {
	if t.IsLabel {
		return t.Label, nil
	}
	return t.Number, nil
}
