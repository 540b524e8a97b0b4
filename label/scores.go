package label

import "fmt"

// ScoreVector holds one raw score per label, in label order. Scores are not
// normalized.
type ScoreVector [Count]float32

// FromScores copies a model output into a ScoreVector.
func FromScores(s []float32) (ScoreVector, error) {
	var v ScoreVector
	if len(s) != Count {
		return v, fmt.Errorf("score vector has %d values, want %d", len(s), Count)
	}
	copy(v[:], s)
	return v, nil
}

// MapToLabel picks the label with the highest score. Ties go to the lowest
// index. NaN scores never win.
func MapToLabel(scores ScoreVector) Label {
	best := 0
	for i := 1; i < Count; i++ {
		if scores[i] > scores[best] || (isNaN(scores[best]) && !isNaN(scores[i])) {
			best = i
		}
	}
	return Label(best)
}

func isNaN(f float32) bool { return f != f }

// Map returns the scores keyed by display name.
func (v ScoreVector) Map() map[string]float32 {
	m := make(map[string]float32, Count)
	for i, s := range v {
		m[names[i]] = s
	}
	return m
}
