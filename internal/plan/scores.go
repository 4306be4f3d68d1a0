package plan

import (
	"math/rand/v2"
	"sync"

	"github.com/danielpatrickdp/plancore/internal/affect"
)

// #region score-source

// ScoreSource assigns the base quality score of a freshly generated plan.
type ScoreSource interface {
	BaseScore(t Template, index int) float64
}

// #endregion

// #region seeded

// SeededScores draws reproducible pseudo-random scores in [Min, Min+Span).
type SeededScores struct {
	Min  float64
	Span float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededScores returns a source over [0.5, 0.9) seeded with seed.
func NewSeededScores(seed uint64) *SeededScores {
	return &SeededScores{
		Min:  0.5,
		Span: 0.4,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// BaseScore returns the next draw from the sequence.
func (s *SeededScores) BaseScore(Template, int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return affect.Clamp(s.Min+s.rng.Float64()*s.Span, 0, 1)
}

// #endregion

// #region fixed

// FixedScores assigns a pinned score per strategy. Strategies not listed get Default.
type FixedScores struct {
	Scores  map[Strategy]float64
	Default float64
}

// BaseScore looks up the pinned score for t.Strategy.
func (f FixedScores) BaseScore(t Template, _ int) float64 {
	if v, ok := f.Scores[t.Strategy]; ok {
		return affect.Clamp(v, 0, 1)
	}
	return affect.Clamp(f.Default, 0, 1)
}

// #endregion
