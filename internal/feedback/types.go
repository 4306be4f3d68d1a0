package feedback

import (
	"time"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/danielpatrickdp/plancore/internal/plan"
)

// #region outcome

// Outcome holds the execution metrics reported for a selected plan.
type Outcome struct {
	Success       bool          `json:"success"`
	ExecutionTime time.Duration `json:"execution_time"`
	ResourcesUsed float64       `json:"resources_used"`
	ErrorCount    int           `json:"error_count"`
}

// #endregion outcome

// #region record

// Record is an append-only log entry of one plan's execution outcome.
type Record struct {
	ID        string        `json:"id"`
	PlanID    string        `json:"plan_id"`
	Strategy  plan.Strategy `json:"strategy,omitempty"`
	Pre       affect.State  `json:"pre"`
	Post      affect.State  `json:"post"`
	Delta     affect.Delta  `json:"delta"`
	Outcome   Outcome       `json:"outcome"`
	CreatedAt time.Time     `json:"created_at"`
}

// #endregion record

// #region reward-config

// RewardConfig holds the reward weights and the execution-time normalizer.
type RewardConfig struct {
	AffectWeight     float64       `yaml:"affect_weight"`
	EfficiencyWeight float64       `yaml:"efficiency_weight"`
	SafetyWeight     float64       `yaml:"safety_weight"`
	Normalization    time.Duration `yaml:"normalization"` // execution time that zeroes the efficiency term
	ErrorPenalty     float64       `yaml:"error_penalty"` // safety term when ErrorCount > 0
}

// DefaultRewardConfig returns 0.5/0.3/0.2 weights over a 5s normalizer.
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		AffectWeight:     0.5,
		EfficiencyWeight: 0.3,
		SafetyWeight:     0.2,
		Normalization:    5000 * time.Millisecond,
		ErrorPenalty:     0.5,
	}
}

// #endregion reward-config
