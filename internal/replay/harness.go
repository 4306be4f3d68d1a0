// Package replay runs recorded planning sessions through a fresh engine with
// pinned base scores and compares the selections against expectations.
package replay

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/plancore/internal/config"
	"github.com/danielpatrickdp/plancore/internal/orchestrator"
	"github.com/danielpatrickdp/plancore/internal/plan"
	"go.uber.org/zap"
)

// #region types

// ReplayResult captures the outcome of replaying one interaction.
type ReplayResult struct {
	TurnID        string
	PlanID        string
	Strategy      plan.Strategy
	Approved      bool
	Fallback      bool
	AdjustedScore float64
	Reason        string
	Ranking       []plan.Strategy

	// Feedback stage, set only when the interaction carried feedback.
	RecordID string
	Reward   *float64
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalTurns int
	Approved   int
	Fallbacks  int
	Feedback   int
	MeanReward float64
	ByStrategy map[plan.Strategy]int
}

// Mismatch is one difference between a replay result and its expectation.
type Mismatch struct {
	TurnID string
	Field  string
	Want   string
	Got    string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: %s want=%s got=%s", m.TurnID, m.Field, m.Want, m.Got)
}

// #endregion types

// #region replay

// Replay builds a fresh orchestrator from base (nil for defaults) with the
// fixture's scores and rules, then runs each interaction in order.
func Replay(ctx context.Context, f *Fixture, base *config.Config, logger *zap.Logger) ([]ReplayResult, error) {
	o, err := orchestrator.New(f.ToConfig(base), orchestrator.Deps{
		Scores: f.ScoreSource(),
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	results := make([]ReplayResult, 0, len(f.Interactions))
	for _, inter := range f.Interactions {
		res, err := o.Plan(ctx, inter.ToRequest())
		if err != nil {
			return results, fmt.Errorf("replay %s: %w", inter.TurnID, err)
		}

		r := ReplayResult{
			TurnID:        inter.TurnID,
			PlanID:        res.Selected.ID,
			Strategy:      res.Selected.Strategy,
			Approved:      res.Verdict.Approved,
			Fallback:      res.Fallback,
			AdjustedScore: res.AdjustedScore,
			Reason:        res.Verdict.Reason,
			Ranking:       rankedStrategies(res),
		}

		if fb := inter.Feedback; fb != nil {
			rec, reward, err := o.RecordFeedback(ctx, res.Selected.ID, inter.State, fb.Post, fb.ToOutcome())
			if err != nil {
				return results, fmt.Errorf("replay %s feedback: %w", inter.TurnID, err)
			}
			r.RecordID = rec.ID
			r.Reward = &reward
		}
		results = append(results, r)
	}
	return results, nil
}

func rankedStrategies(res orchestrator.Result) []plan.Strategy {
	out := make([]plan.Strategy, 0, len(res.Ranking))
	for _, id := range res.Ranking {
		if p, ok := res.Contains(id); ok {
			out = append(out, p.Strategy)
		}
	}
	return out
}

// #endregion replay

// #region check

// Check compares results against the fixture's expectations, in order.
func Check(f *Fixture, results []ReplayResult) []Mismatch {
	var out []Mismatch
	if len(results) != len(f.ExpectedResults) {
		out = append(out, Mismatch{
			Field: "turns",
			Want:  fmt.Sprint(len(f.ExpectedResults)),
			Got:   fmt.Sprint(len(results)),
		})
	}
	n := min(len(results), len(f.ExpectedResults))
	for i := 0; i < n; i++ {
		want, got := f.ExpectedResults[i], results[i]
		add := func(field string, w, g any) {
			out = append(out, Mismatch{TurnID: want.TurnID, Field: field, Want: fmt.Sprint(w), Got: fmt.Sprint(g)})
		}
		if got.TurnID != want.TurnID {
			add("turn_id", want.TurnID, got.TurnID)
		}
		if got.Strategy != want.Strategy {
			add("strategy", want.Strategy, got.Strategy)
		}
		if got.Approved != want.Approved {
			add("approved", want.Approved, got.Approved)
		}
		if got.Fallback != want.Fallback {
			add("fallback", want.Fallback, got.Fallback)
		}
	}
	return out
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{
		TotalTurns: len(results),
		ByStrategy: make(map[plan.Strategy]int),
	}
	var rewardSum float64
	for _, r := range results {
		s.ByStrategy[r.Strategy]++
		if r.Approved {
			s.Approved++
		}
		if r.Fallback {
			s.Fallbacks++
		}
		if r.Reward != nil {
			s.Feedback++
			rewardSum += *r.Reward
		}
	}
	if s.Feedback > 0 {
		s.MeanReward = rewardSum / float64(s.Feedback)
	}
	return s
}

// #endregion check
