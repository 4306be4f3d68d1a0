package affect

import (
	"fmt"
	"math"
)

// #region validate

// Validate rejects NaN and out-of-range scalars.
func (s State) Validate() error {
	fields := []struct {
		name   string
		value  float64
		lo, hi float64
	}{
		{"valence", s.Valence, -1, 1},
		{"arousal", s.Arousal, 0, 1},
		{"engagement", s.Engagement, 0, 1},
		{"satisfaction", s.Satisfaction, 0, 1},
		{"trust", s.Trust, 0, 1},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || f.value < f.lo || f.value > f.hi {
			return fmt.Errorf("%w: %s %v outside [%g,%g]", ErrInvalidInput, f.name, f.value, f.lo, f.hi)
		}
	}
	return nil
}

// #endregion validate

// #region clamp

// Clamp pulls every scalar back into its declared range. NaN maps to the lower bound.
func (s State) Clamp() State {
	return State{
		Valence:      Clamp(s.Valence, -1, 1),
		Arousal:      Clamp(s.Arousal, 0, 1),
		Engagement:   Clamp(s.Engagement, 0, 1),
		Satisfaction: Clamp(s.Satisfaction, 0, 1),
		Trust:        Clamp(s.Trust, 0, 1),
	}
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion clamp

// #region diff

// Diff returns post - pre for all five scalars.
func Diff(pre, post State) Delta {
	return Delta{
		Valence:      post.Valence - pre.Valence,
		Arousal:      post.Arousal - pre.Arousal,
		Engagement:   post.Engagement - pre.Engagement,
		Satisfaction: post.Satisfaction - pre.Satisfaction,
		Trust:        post.Trust - pre.Trust,
	}
}

// Improvement is the mean of the satisfaction, engagement and valence deltas.
func Improvement(d Delta) float64 {
	return (d.Satisfaction + d.Engagement + d.Valence) / 3
}

// Vector flattens the delta in field order (valence, arousal, engagement, satisfaction, trust).
func (d Delta) Vector() []float64 {
	return []float64{d.Valence, d.Arousal, d.Engagement, d.Satisfaction, d.Trust}
}

// #endregion diff
