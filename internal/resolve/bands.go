package resolve

import "math"

// ProbabilityBand widens a single probability into a ±5 point band clipped
// to [0,100], for renderers that always draw an interval.
func ProbabilityBand(v float64) (low, high float64) {
	return math.Max(0, v-5), math.Min(100, v+5)
}

// ScoreBand labels an index score.
func ScoreBand(score *float64) string {
	if score == nil {
		return "Unknown"
	}
	s := *score
	switch {
	case s < 0 || s > 100:
		return "Out of Range"
	case s < 25:
		return "Low"
	case s < 50:
		return "Moderate-Low"
	case s < 75:
		return "Moderate-High"
	default:
		return "High"
	}
}
