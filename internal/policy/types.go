package policy

import "github.com/danielpatrickdp/plancore/internal/plan"

// #region category

// Category groups compliance rules by concern.
type Category string

const (
	CategorySafety         Category = "SAFETY"
	CategoryPrivacy        Category = "PRIVACY"
	CategoryFairness       Category = "FAIRNESS"
	CategoryTransparency   Category = "TRANSPARENCY"
	CategoryAccountability Category = "ACCOUNTABILITY"
)

// #endregion category

// #region severity

// Severity ranks how serious a violation is. Only CRITICAL blocks approval.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is a declared severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// #endregion severity

// #region rule

// Rule is one named compliance constraint.
// Expr is an optional CEL predicate over `plan`; true means the plan violates the rule.
// When Expr is empty the category default applies.
type Rule struct {
	ID       string   `json:"id" yaml:"id"`
	Category Category `json:"category" yaml:"category"`
	Text     string   `json:"rule" yaml:"rule"`
	Severity Severity `json:"severity" yaml:"severity"`
	Active   bool     `json:"active" yaml:"active"`
	Expr     string   `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// #endregion rule

// #region verdict

// Verdict is the result of checking one plan against the active rules.
type Verdict struct {
	PlanID          string  `json:"plan_id"`
	Violated        []Rule  `json:"violated"`
	ComplianceScore float64 `json:"compliance_score"`
	Approved        bool    `json:"approved"`
	Reason          string  `json:"reason"`
}

// CriticalCount returns the number of CRITICAL violations.
func (v Verdict) CriticalCount() int {
	n := 0
	for _, r := range v.Violated {
		if r.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// #endregion verdict

// #region selection

// Selection is the outcome of walking a ranked list through the filter.
type Selection struct {
	Plan     plan.CandidatePlan
	Verdict  Verdict   // verdict of the selected plan
	Verdicts []Verdict // one per candidate, rank order
	Index    int       // rank position of the selected plan
	Fallback bool      // true when no candidate was approved
}

// #endregion selection
