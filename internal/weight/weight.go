package weight

// #region imports
import (
	"cmp"
	"fmt"
	"slices"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/danielpatrickdp/plancore/internal/plan"
)

// #endregion

// #region config

// Config holds bonus magnitudes and the state thresholds that trigger them.
type Config struct {
	HighRiskArousalBonus     float64 `yaml:"high_risk_arousal_bonus"`
	ArousalThreshold         float64 `yaml:"arousal_threshold"` // strict >
	LowRiskSatisfactionBonus float64 `yaml:"low_risk_satisfaction_bonus"`
	SatisfactionThreshold    float64 `yaml:"satisfaction_threshold"` // strict <
	TrustBonus               float64 `yaml:"trust_bonus"`
	TrustThreshold           float64 `yaml:"trust_threshold"` // strict >
	ValenceFactor            float64 `yaml:"valence_factor"`  // applied only to positive valence
}

// DefaultConfig returns the reference bonus table.
func DefaultConfig() Config {
	return Config{
		HighRiskArousalBonus:     0.15,
		ArousalThreshold:         0.7,
		LowRiskSatisfactionBonus: 0.20,
		SatisfactionThreshold:    0.6,
		TrustBonus:               0.10,
		TrustThreshold:           0.8,
		ValenceFactor:            0.10,
	}
}

// #endregion

// #region reweighter

// Reweighter adjusts base plan scores for the caller's affective state.
type Reweighter struct {
	config Config
}

// NewReweighter creates a reweighter with the given bonus table.
func NewReweighter(config Config) *Reweighter {
	return &Reweighter{config: config}
}

// Weight returns plan ID -> adjusted score in [0,1]. Base scores are not modified.
func (r *Reweighter) Weight(plans []plan.CandidatePlan, state affect.State) (map[string]float64, error) {
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("weight: %w", err)
	}
	scores := make(map[string]float64, len(plans))
	for _, p := range plans {
		scores[p.ID] = r.Adjusted(p, state)
	}
	return scores, nil
}

// Adjusted computes one plan's clamped score. state is assumed valid.
func (r *Reweighter) Adjusted(p plan.CandidatePlan, state affect.State) float64 {
	var bonus float64

	if p.Risk == plan.RiskHigh && state.Arousal > r.config.ArousalThreshold {
		bonus += r.config.HighRiskArousalBonus
	}
	if p.Risk == plan.RiskLow && state.Satisfaction < r.config.SatisfactionThreshold {
		bonus += r.config.LowRiskSatisfactionBonus
	}
	if state.Trust > r.config.TrustThreshold {
		bonus += r.config.TrustBonus
	}
	if state.Valence > 0 {
		bonus += state.Valence * r.config.ValenceFactor
	}

	return affect.Clamp(p.BaseScore+bonus, 0, 1)
}

// #endregion

// #region rank

// Ranked pairs a plan with its adjusted score and its position in the input.
type Ranked struct {
	Plan  plan.CandidatePlan
	Score float64
	Index int
}

// Rank orders plans by adjusted score, highest first. Ties keep input order.
// Plans missing from scores rank as 0.
func Rank(plans []plan.CandidatePlan, scores map[string]float64) []Ranked {
	ranked := make([]Ranked, len(plans))
	for i, p := range plans {
		ranked[i] = Ranked{Plan: p, Score: scores[p.ID], Index: i}
	}
	slices.SortStableFunc(ranked, func(a, b Ranked) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return ranked
}

// Plans strips the scores from a ranking.
func Plans(ranked []Ranked) []plan.CandidatePlan {
	out := make([]plan.CandidatePlan, len(ranked))
	for i, r := range ranked {
		out[i] = r.Plan
	}
	return out
}

// #endregion
