package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/danielpatrickdp/plancore/internal/config"
	"github.com/danielpatrickdp/plancore/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// #region fixture-tests

// TestFixture_Session is the regression baseline: if bonus, rule or ranking
// behavior changes, the selections drift and this fails.
func TestFixture_Session(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "session.json"))
	require.NoError(t, err)
	require.Len(t, f.Rules, 6)

	results, err := Replay(context.Background(), f, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, results, len(f.ExpectedResults))

	for _, m := range Check(f, results) {
		t.Error(m.String())
	}

	assert.Equal(t, []plan.Strategy{
		plan.StrategyExploratory,
		plan.StrategyDirect,
		plan.StrategyConservative,
		plan.StrategyIterative,
		plan.StrategyAggressive,
	}, results[1].Ranking)
	assert.Equal(t, "plan violates 1 critical constraint(s)", results[2].Reason)

	assert.NotNil(t, results[0].Reward)
	assert.Nil(t, results[2].Reward)
	assert.Empty(t, results[2].RecordID)

	s := Summarize(results)
	assert.Equal(t, 4, s.TotalTurns)
	assert.Equal(t, 3, s.Approved)
	assert.Equal(t, 1, s.Fallbacks)
	assert.Equal(t, 3, s.Feedback)
	assert.Equal(t, 2, s.ByStrategy[plan.StrategyIterative])
	assert.InDelta(t, 0.3405556, s.MeanReward, 1e-6)
}

func TestLoadFixture_NotFound(t *testing.T) {
	_, err := LoadFixture("testdata/nonexistent.json")
	require.Error(t, err)
}

func TestLoadFixture_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json}"), 0o644))
	_, err := LoadFixture(path)
	require.Error(t, err)
}

func TestToConfig_DoesNotMutateBase(t *testing.T) {
	base := config.Default()
	f := &Fixture{Rules: nil}
	assert.Equal(t, base.Policy.Rules, f.ToConfig(base).Policy.Rules)

	f.Rules = base.Policy.Rules[:1]
	got := f.ToConfig(base)
	assert.Len(t, got.Policy.Rules, 1)
	assert.Len(t, base.Policy.Rules, 5)
}

// #endregion fixture-tests

// #region harness-tests

func TestReplay_InvalidStateStops(t *testing.T) {
	f := &Fixture{
		Scores: map[plan.Strategy]float64{plan.StrategyDirect: 0.8},
		Interactions: []FixtureInteraction{
			{TurnID: "ok", Intent: "x", State: affect.Neutral()},
			{TurnID: "bad", Intent: "x", State: affect.State{Arousal: 4}},
			{TurnID: "never", Intent: "x", State: affect.Neutral()},
		},
	}
	results, err := Replay(context.Background(), f, nil, nil)
	require.ErrorIs(t, err, affect.ErrInvalidInput)
	require.Len(t, results, 1)
	assert.Equal(t, "ok", results[0].TurnID)
}

func TestReplay_BadRuleRejected(t *testing.T) {
	base := config.Default()
	f := &Fixture{Rules: append(base.Policy.Rules[:0:0], base.Policy.Rules[0])}
	f.Rules[0].Expr = "plan.risk =="
	_, err := Replay(context.Background(), f, base, nil)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestCheck_ReportsMismatches(t *testing.T) {
	f := &Fixture{ExpectedResults: []FixtureExpectedResult{
		{TurnID: "t1", Strategy: plan.StrategyDirect, Approved: true},
		{TurnID: "t2", Strategy: plan.StrategyIterative, Approved: true},
	}}
	results := []ReplayResult{
		{TurnID: "t1", Strategy: plan.StrategyDirect, Approved: true},
		{TurnID: "t2", Strategy: plan.StrategyAggressive, Approved: false, Fallback: true},
	}
	got := Check(f, results)
	require.Len(t, got, 3)
	assert.Equal(t, "strategy", got[0].Field)
	assert.Equal(t, "approved", got[1].Field)
	assert.Equal(t, "fallback", got[2].Field)

	got = Check(f, results[:1])
	require.Len(t, got, 1)
	assert.Equal(t, "turns", got[0].Field)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.TotalTurns)
	assert.Equal(t, 0.0, s.MeanReward)
	assert.Empty(t, s.ByStrategy)
}

// #endregion harness-tests
