package affect

import "errors"

// #region errors

// ErrInvalidInput marks caller-supplied values outside their declared domain.
var ErrInvalidInput = errors.New("invalid input")

// #endregion errors

// #region state

// State is a five-scalar snapshot of caller mood and risk posture.
// Valence lies in [-1,1]; every other field lies in [0,1].
type State struct {
	Valence      float64 `json:"valence" yaml:"valence"`
	Arousal      float64 `json:"arousal" yaml:"arousal"`
	Engagement   float64 `json:"engagement" yaml:"engagement"`
	Satisfaction float64 `json:"satisfaction" yaml:"satisfaction"`
	Trust        float64 `json:"trust" yaml:"trust"`
}

// Neutral returns the zero-valence, mid-range state.
func Neutral() State {
	return State{
		Valence:      0,
		Arousal:      0.5,
		Engagement:   0.5,
		Satisfaction: 0.5,
		Trust:        0.5,
	}
}

// #endregion state

// #region delta

// Delta is the component-wise difference post - pre of two states.
// Deltas are differences, not states, so they are never clamped.
type Delta struct {
	Valence      float64 `json:"valence"`
	Arousal      float64 `json:"arousal"`
	Engagement   float64 `json:"engagement"`
	Satisfaction float64 `json:"satisfaction"`
	Trust        float64 `json:"trust"`
}

// #endregion delta
