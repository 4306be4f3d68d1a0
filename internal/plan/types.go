package plan

import "time"

// #region strategy

// Strategy names a plan-shaping template.
type Strategy string

const (
	StrategyDirect       Strategy = "Direct"
	StrategyIterative    Strategy = "Iterative"
	StrategyExploratory  Strategy = "Exploratory"
	StrategyConservative Strategy = "Conservative"
	StrategyAggressive   Strategy = "Aggressive"
)

// #endregion

// #region risk

// Risk is the coarse risk tier of a candidate plan.
type Risk string

const (
	RiskLow    Risk = "LOW"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH"
)

// Valid reports whether r is one of the declared tiers.
func (r Risk) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// #endregion

// #region tool-id

// ToolID identifies an atomic tool invocation.
type ToolID string

const (
	ToolAnalyze  ToolID = "analyze"
	ToolGenerate ToolID = "generate"
	ToolValidate ToolID = "validate"
	ToolExecute  ToolID = "execute"
	ToolReport   ToolID = "report"
)

// DefaultTools is the pool steps are drawn from, in cycling order.
func DefaultTools() []ToolID {
	return []ToolID{ToolAnalyze, ToolGenerate, ToolValidate, ToolExecute, ToolReport}
}

// #endregion

// #region template

// Template describes one strategy the generator can instantiate.
type Template struct {
	Strategy Strategy      `yaml:"strategy"`
	Risk     Risk          `yaml:"risk"`
	Steps    int           `yaml:"steps"`
	Cost     time.Duration `yaml:"cost"` // estimated execution time
}

// DefaultTemplates returns the five built-in strategies in generation order.
func DefaultTemplates() []Template {
	return []Template{
		{Strategy: StrategyDirect, Risk: RiskLow, Steps: 2, Cost: 1000 * time.Millisecond},
		{Strategy: StrategyIterative, Risk: RiskMedium, Steps: 3, Cost: 2000 * time.Millisecond},
		{Strategy: StrategyExploratory, Risk: RiskHigh, Steps: 5, Cost: 3000 * time.Millisecond},
		{Strategy: StrategyConservative, Risk: RiskLow, Steps: 2, Cost: 1500 * time.Millisecond},
		{Strategy: StrategyAggressive, Risk: RiskHigh, Steps: 2, Cost: 1000 * time.Millisecond},
	}
}

// #endregion

// #region tool-step

// ToolStep is one atomic invocation within a plan.
type ToolStep struct {
	ID       string
	Tool     ToolID
	Params   Params
	Priority int
	Timeout  time.Duration // executor metadata, not enforced here
}

// #endregion

// #region candidate-plan

// CandidatePlan is one proposed course of action. Treat as immutable once generated.
type CandidatePlan struct {
	ID        string        `json:"id"`
	Strategy  Strategy      `json:"strategy"`
	Risk      Risk          `json:"risk"`
	Steps     []ToolStep    `json:"steps"`
	Cost      time.Duration `json:"cost"`
	BaseScore float64       `json:"base_score"`
	Reasoning string        `json:"reasoning"`
}

// #endregion
