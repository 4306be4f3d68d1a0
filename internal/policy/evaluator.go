package policy

// #region imports
import (
	"fmt"
	"sync"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/danielpatrickdp/plancore/internal/plan"
	"github.com/google/cel-go/cel"
)

// #endregion imports

// #region evaluator

// Evaluator compiles rule predicates to CEL programs and caches them by expression.
type Evaluator struct {
	env      *cel.Env
	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

// NewEvaluator builds the CEL environment. Predicates see one variable, `plan`,
// a map with keys id, strategy, risk, steps, tools, cost_ms and base_score.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("plan", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &Evaluator{
		env:      env,
		prgCache: make(map[string]cel.Program),
	}, nil
}

// #endregion evaluator

// #region compile

// Compile checks every rule's predicate up front. Severity and ID are validated too.
func (e *Evaluator) Compile(rules []Rule) error {
	for _, r := range rules {
		if r.ID == "" {
			return fmt.Errorf("%w: rule without id", affect.ErrInvalidInput)
		}
		if !r.Severity.Valid() {
			return fmt.Errorf("%w: rule %s has severity %q", affect.ErrInvalidInput, r.ID, r.Severity)
		}
		expr := PredicateFor(r)
		if expr == "" {
			continue
		}
		if _, err := e.program(expr); err != nil {
			return fmt.Errorf("%w: rule %s: %v", affect.ErrInvalidInput, r.ID, err)
		}
	}
	return nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.prgCache[expr]; hit {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := e.env.Program(ast, cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	e.prgCache[expr] = prg
	return prg, nil
}

// #endregion compile

// #region violates

// Violates reports whether p violates r. Rules with no predicate are never violated.
func (e *Evaluator) Violates(r Rule, p plan.CandidatePlan) (bool, error) {
	expr := PredicateFor(r)
	if expr == "" {
		return false, nil
	}
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{"plan": planInput(p)})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %s: result is %T, not bool", r.ID, out.Value())
	}
	return val, nil
}

func planInput(p plan.CandidatePlan) map[string]any {
	tools := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		tools[i] = string(s.Tool)
	}
	return map[string]any{
		"id":         p.ID,
		"strategy":   string(p.Strategy),
		"risk":       string(p.Risk),
		"steps":      int64(len(p.Steps)),
		"tools":      tools,
		"cost_ms":    p.Cost.Milliseconds(),
		"base_score": p.BaseScore,
	}
}

// #endregion violates
