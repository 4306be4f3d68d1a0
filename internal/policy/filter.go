package policy

// #region imports
import (
	"fmt"

	"github.com/danielpatrickdp/plancore/internal/plan"
	"go.uber.org/zap"
)

// #endregion imports

// violationPenalty is subtracted from the compliance score per violated rule.
const violationPenalty = 0.2

// #region filter

// Filter applies compliance rules to candidate plans.
type Filter struct {
	eval   *Evaluator
	logger *zap.Logger
}

// NewFilter creates a filter with its own CEL evaluator.
func NewFilter(logger *zap.Logger) (*Filter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	eval, err := NewEvaluator()
	if err != nil {
		return nil, err
	}
	return &Filter{eval: eval, logger: logger.Named("policy")}, nil
}

// Compile validates and precompiles rule predicates.
func (f *Filter) Compile(rules []Rule) error {
	return f.eval.Compile(rules)
}

// #endregion filter

// #region collapse

// Collapse checks p against every active rule. A predicate that fails to
// evaluate counts as a violation.
func (f *Filter) Collapse(p plan.CandidatePlan, rules []Rule) Verdict {
	var violated []Rule
	for _, r := range rules {
		if !r.Active {
			continue
		}
		hit, err := f.eval.Violates(r, p)
		if err != nil {
			f.logger.Warn("rule evaluation failed, treating as violated",
				zap.String("rule", r.ID), zap.String("plan", p.ID), zap.Error(err))
			hit = true
		}
		if hit {
			violated = append(violated, r)
		}
	}
	return newVerdict(p.ID, violated)
}

func newVerdict(planID string, violated []Rule) Verdict {
	v := Verdict{
		PlanID:          planID,
		Violated:        violated,
		ComplianceScore: complianceScore(len(violated)),
	}
	critical := v.CriticalCount()
	v.Approved = critical == 0

	switch {
	case critical > 0:
		v.Reason = fmt.Sprintf("plan violates %d critical constraint(s)", critical)
	case len(violated) > 0:
		v.Reason = fmt.Sprintf("plan complies with critical constraints; %d non-critical violation(s)", len(violated))
	default:
		v.Reason = "plan complies with all constraints"
	}
	return v
}

func complianceScore(violations int) float64 {
	score := 1 - violationPenalty*float64(violations)
	if score < 0 {
		return 0
	}
	return score
}

// #endregion collapse

// #region select

// Select walks ranked in order and picks the first approved plan. If none is
// approved it falls back to ranked[0]. Every candidate gets a verdict.
// ok is false only when ranked is empty.
func (f *Filter) Select(ranked []plan.CandidatePlan, rules []Rule) (Selection, bool) {
	if len(ranked) == 0 {
		return Selection{}, false
	}

	verdicts := make([]Verdict, len(ranked))
	selected := -1
	for i, p := range ranked {
		verdicts[i] = f.Collapse(p, rules)
		if selected < 0 && verdicts[i].Approved {
			selected = i
		}
	}

	sel := Selection{Verdicts: verdicts}
	if selected < 0 {
		selected = 0
		sel.Fallback = true
	}
	sel.Index = selected
	sel.Plan = ranked[selected]
	sel.Verdict = verdicts[selected]
	return sel, true
}

// #endregion select
