package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/danielpatrickdp/plancore/internal/config"
	"github.com/danielpatrickdp/plancore/internal/feedback"
	"github.com/danielpatrickdp/plancore/internal/history"
	"github.com/danielpatrickdp/plancore/internal/logging"
	"github.com/danielpatrickdp/plancore/internal/plan"
	"github.com/danielpatrickdp/plancore/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// #region helpers

// scenarioScores pins base scores so ranking is fully determined.
var scenarioScores = plan.FixedScores{Scores: map[plan.Strategy]float64{
	plan.StrategyExploratory:  0.9,
	plan.StrategyIterative:    0.8,
	plan.StrategyDirect:       0.7,
	plan.StrategyConservative: 0.6,
	plan.StrategyAggressive:   0.5,
}}

var scenarioState = affect.State{Valence: 0.5, Arousal: 0.8, Engagement: 0.5, Satisfaction: 0.7, Trust: 0.9}

type fakeClock struct {
	mu sync.Mutex
	ts time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{ts: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ts
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ts = c.ts.Add(d)
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, deps Deps) *Orchestrator {
	t.Helper()
	if deps.Scores == nil {
		deps.Scores = scenarioScores
	}
	if deps.Logger == nil {
		deps.Logger = zaptest.NewLogger(t)
	}
	o, err := New(cfg, deps)
	require.NoError(t, err)
	return o
}

func newTestStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strategies(res Result) []plan.Strategy {
	byID := make(map[string]plan.Strategy, len(res.Candidates))
	for _, p := range res.Candidates {
		byID[p.ID] = p.Strategy
	}
	out := make([]plan.Strategy, len(res.Ranking))
	for i, id := range res.Ranking {
		out[i] = byID[id]
	}
	return out
}

var goodOutcome = feedback.Outcome{Success: true, ExecutionTime: time.Second, ResourcesUsed: 0.3}

// #endregion

// #region plan-tests

func TestPlan_Scenario(t *testing.T) {
	o := newTestOrchestrator(t, nil, Deps{})

	res, err := o.Plan(context.Background(), Request{Intent: "summarize the report", Context: "quarterly", State: scenarioState})
	require.NoError(t, err)

	assert.Equal(t, []plan.Strategy{
		plan.StrategyExploratory,
		plan.StrategyIterative,
		plan.StrategyDirect,
		plan.StrategyAggressive,
		plan.StrategyConservative,
	}, strategies(res))

	// Exploratory is HIGH risk and trips the critical safety rule.
	assert.Equal(t, plan.StrategyIterative, res.Selected.Strategy)
	assert.False(t, res.Fallback)
	assert.True(t, res.Verdict.Approved)
	assert.InDelta(t, 0.95, res.AdjustedScore, 1e-9)

	require.Len(t, res.Verdicts, 5)
	assert.False(t, res.Verdicts[0].Approved)
	assert.Equal(t, 1, res.Verdicts[0].CriticalCount())
	assert.Equal(t, "plan violates 1 critical constraint(s)", res.Verdicts[0].Reason)
	assert.Equal(t, "plan complies with all constraints", res.Verdict.Reason)

	assert.Len(t, res.Candidates, 5)
	assert.Len(t, res.Scores, 5)
	assert.NotEmpty(t, res.CycleID)
	assert.Equal(t, scenarioState, res.State)
}

func TestPlan_Deterministic(t *testing.T) {
	o := newTestOrchestrator(t, nil, Deps{})
	a, err := o.Plan(context.Background(), Request{Intent: "x", State: scenarioState})
	require.NoError(t, err)
	b, err := o.Plan(context.Background(), Request{Intent: "x", State: scenarioState})
	require.NoError(t, err)
	assert.Equal(t, strategies(a), strategies(b))
	assert.Equal(t, a.Selected.Strategy, b.Selected.Strategy)
}

func TestPlan_FallbackWhenNothingApproved(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := config.Default()
	cfg.Policy.Rules = []policy.Rule{{
		ID: "freeze-1", Category: policy.CategoryAccountability, Text: "Change freeze",
		Severity: policy.SeverityCritical, Active: true, Expr: "true",
	}}
	o := newTestOrchestrator(t, cfg, Deps{Logger: zap.New(core)})

	res, err := o.Plan(context.Background(), Request{Intent: "deploy", State: scenarioState})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, plan.StrategyExploratory, res.Selected.Strategy, "falls back to the top-ranked plan")
	assert.False(t, res.Verdict.Approved)
	require.Len(t, res.Verdicts, 5)
	for _, v := range res.Verdicts {
		assert.False(t, v.Approved)
	}

	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.Equal(t, "orch", warns[0].LoggerName)
	assert.Equal(t, true, warns[0].ContextMap()["fallback"])
}

func TestPlan_Count(t *testing.T) {
	o := newTestOrchestrator(t, nil, Deps{})

	res, err := o.Plan(context.Background(), Request{Intent: "x", State: affect.Neutral(), Count: 2})
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 2)

	res, err = o.Plan(context.Background(), Request{Intent: "x", State: affect.Neutral(), Count: 50})
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 5)

	_, err = o.Plan(context.Background(), Request{Intent: "x", State: affect.Neutral(), Count: -1})
	require.ErrorIs(t, err, affect.ErrInvalidInput)
}

func TestPlan_InvalidState(t *testing.T) {
	o := newTestOrchestrator(t, nil, Deps{})
	_, err := o.Plan(context.Background(), Request{Intent: "x", State: affect.State{Valence: -2}})
	require.ErrorIs(t, err, affect.ErrInvalidInput)
	assert.Empty(t, o.Executions(0))
}

func TestPlan_CanceledContext(t *testing.T) {
	o := newTestOrchestrator(t, nil, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Plan(ctx, Request{Intent: "x", State: affect.Neutral()})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPlan_ExecutionHistoryBounded(t *testing.T) {
	cfg := config.Default()
	cfg.History.Executions = 3
	o := newTestOrchestrator(t, cfg, Deps{})

	var ids []string
	for i := 0; i < 5; i++ {
		res, err := o.Plan(context.Background(), Request{Intent: "x", State: affect.Neutral()})
		require.NoError(t, err)
		ids = append(ids, res.CycleID)
	}
	got := o.Executions(0)
	require.Len(t, got, 3)
	assert.Equal(t, ids[2], got[0].CycleID)
	assert.Equal(t, ids[4], got[2].CycleID)

	last := o.Executions(1)
	require.Len(t, last, 1)
	assert.Equal(t, ids[4], last[0].CycleID)
}

func TestPlan_AuditRowArchived(t *testing.T) {
	store := newTestStore(t)
	o := newTestOrchestrator(t, nil, Deps{Store: store})

	res, err := o.Plan(context.Background(), Request{Intent: "x", State: scenarioState})
	require.NoError(t, err)

	entries, err := logging.ListCycles(store.DB(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, res.CycleID, entries[0].CycleID)
	assert.Equal(t, res.Selected.ID, entries[0].PlanID)
	assert.Equal(t, "Iterative", entries[0].Strategy)
	assert.True(t, entries[0].Approved)
	assert.False(t, entries[0].Fallback)
	assert.Contains(t, entries[0].VerdictsJSON, res.Ranking[0])
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.History.Capacity = 0
	_, err := New(cfg, Deps{})
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

// #endregion

// #region feedback-tests

func TestRecordFeedback_LooksUpStrategy(t *testing.T) {
	o := newTestOrchestrator(t, nil, Deps{})
	res, err := o.Plan(context.Background(), Request{Intent: "x", State: scenarioState})
	require.NoError(t, err)

	post := scenarioState
	post.Satisfaction = 0.9
	rec, reward, err := o.RecordFeedback(context.Background(), res.Selected.ID, scenarioState, post, goodOutcome)
	require.NoError(t, err)

	assert.Equal(t, res.Selected.ID, rec.PlanID)
	assert.Equal(t, plan.StrategyIterative, rec.Strategy)
	assert.InDelta(t, 0.2, rec.Delta.Satisfaction, 1e-9)
	assert.InDelta(t, feedback.Reward(rec, feedback.DefaultRewardConfig()), reward, 1e-12)
	assert.Len(t, o.History().Records, 1)
}

func TestRecordFeedback_UnknownPlan(t *testing.T) {
	o := newTestOrchestrator(t, nil, Deps{})
	rec, _, err := o.RecordFeedback(context.Background(), "plan-elsewhere", affect.Neutral(), affect.Neutral(), goodOutcome)
	require.NoError(t, err)
	assert.Empty(t, rec.Strategy)
	assert.Len(t, o.Window(time.Hour), 1)
}

func TestRecordFeedback_LinksPrecedingRecords(t *testing.T) {
	cfg := config.Default()
	cfg.History.RelatedDepth = 2
	o := newTestOrchestrator(t, cfg, Deps{})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		rec, _, err := o.RecordFeedback(ctx, "p", affect.Neutral(), affect.Neutral(), goodOutcome)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	snap := o.History()
	assert.Empty(t, snap.Links[ids[0]])
	assert.Equal(t, []string{ids[0]}, snap.Links[ids[1]])
	assert.Equal(t, []string{ids[1], ids[2]}, snap.Links[ids[3]])
}

func TestRecordFeedback_LinksNeverReachEvictedRecords(t *testing.T) {
	cfg := config.Default()
	cfg.History.Capacity = 3
	cfg.History.RelatedDepth = 5
	store := newTestStore(t)
	o := newTestOrchestrator(t, cfg, Deps{Store: store})
	ctx := context.Background()

	assertLinksLive := func(snap history.Snapshot) {
		t.Helper()
		live := make(map[string]bool, len(snap.Records))
		for _, r := range snap.Records {
			live[r.ID] = true
		}
		for id, related := range snap.Links {
			for _, r := range related {
				assert.True(t, live[r], "link %s -> %s references an evicted record", id, r)
			}
		}
	}

	for i := 0; i < 5; i++ {
		res, err := o.Plan(ctx, Request{Intent: "x", State: scenarioState})
		require.NoError(t, err)
		_, _, err = o.RecordFeedback(ctx, res.Selected.ID, affect.Neutral(), affect.Neutral(), goodOutcome)
		require.NoError(t, err)
	}

	snap := o.History()
	require.Len(t, snap.Records, 3)
	assert.Len(t, snap.Links[snap.Records[2].ID], 2)
	assertLinksLive(snap)

	restored := newTestOrchestrator(t, cfg, Deps{Store: store})
	assertLinksLive(restored.History())
	assert.Equal(t, snap.Links, restored.History().Links)
}

func TestRecordFeedback_ConcurrentAtCapacityKeepsLinksLive(t *testing.T) {
	cfg := config.Default()
	cfg.History.Capacity = 4
	o := newTestOrchestrator(t, cfg, Deps{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, _, err := o.RecordFeedback(ctx, "p", affect.Neutral(), affect.Neutral(), goodOutcome)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	snap := o.History()
	require.Len(t, snap.Records, 4)
	live := make(map[string]bool)
	for _, r := range snap.Records {
		live[r.ID] = true
	}
	for id, related := range snap.Links {
		assert.True(t, live[id], "link key %s was evicted", id)
		for _, r := range related {
			assert.True(t, live[r], "link %s -> %s references an evicted record", id, r)
		}
	}
}

func TestRecordFeedback_InvalidInput(t *testing.T) {
	o := newTestOrchestrator(t, nil, Deps{})
	ctx := context.Background()

	_, _, err := o.RecordFeedback(ctx, "p", affect.State{Trust: 2}, affect.Neutral(), goodOutcome)
	require.ErrorIs(t, err, affect.ErrInvalidInput)

	_, _, err = o.RecordFeedback(ctx, "p", affect.Neutral(), affect.Neutral(), feedback.Outcome{ErrorCount: -1})
	require.ErrorIs(t, err, affect.ErrInvalidInput)

	assert.Empty(t, o.History().Records)
}

func TestRecordFeedback_ArchivesAndRestores(t *testing.T) {
	store := newTestStore(t)
	o := newTestOrchestrator(t, nil, Deps{Store: store})
	ctx := context.Background()

	res, err := o.Plan(ctx, Request{Intent: "x", State: scenarioState})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, _, err := o.RecordFeedback(ctx, res.Selected.ID, affect.Neutral(), affect.Neutral(), goodOutcome)
		require.NoError(t, err)
	}

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	best, _, err := o.BestStrategy()
	require.NoError(t, err)
	assert.Equal(t, plan.StrategyIterative, best)

	// A second engine over the same archive starts with the same history.
	warm := newTestOrchestrator(t, nil, Deps{Store: store})
	want, got := o.History(), warm.History()
	require.Len(t, got.Records, len(want.Records))
	for i := range want.Records {
		assert.Equal(t, want.Records[i].ID, got.Records[i].ID)
		assert.Equal(t, want.Records[i].Strategy, got.Records[i].Strategy)
	}
	assert.Equal(t, want.Links, got.Links)
}

func TestBestStrategy_NoArchive(t *testing.T) {
	o := newTestOrchestrator(t, nil, Deps{})
	_, _, err := o.BestStrategy()
	require.ErrorIs(t, err, ErrNoArchive)
}

func TestWindow_UsesClock(t *testing.T) {
	clock := newFakeClock()
	o := newTestOrchestrator(t, nil, Deps{Clock: clock.Now})
	ctx := context.Background()

	old, _, err := o.RecordFeedback(ctx, "p1", affect.Neutral(), affect.Neutral(), goodOutcome)
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	fresh, _, err := o.RecordFeedback(ctx, "p2", affect.Neutral(), affect.Neutral(), goodOutcome)
	require.NoError(t, err)
	clock.Advance(time.Minute)

	got := o.Window(5 * time.Minute)
	require.Len(t, got, 1)
	assert.Equal(t, fresh.ID, got[0].ID)

	got = o.Window(time.Hour)
	require.Len(t, got, 2)
	assert.Equal(t, old.ID, got[0].ID)

	assert.Empty(t, o.Window(time.Minute), "boundary is exclusive")
}

func TestOrchestrator_Concurrent(t *testing.T) {
	o := newTestOrchestrator(t, nil, Deps{Logger: zap.NewNop()})
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				res, err := o.Plan(ctx, Request{Intent: "x", State: affect.Neutral()})
				if !assert.NoError(t, err) {
					return
				}
				_, _, err = o.RecordFeedback(ctx, res.Selected.ID, affect.Neutral(), affect.Neutral(), goodOutcome)
				assert.NoError(t, err)
				_ = o.Window(time.Hour)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, o.History().Records, 100)
	assert.Len(t, o.Executions(0), 100)
}

func TestRules_ActiveOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Policy.Rules[1].Active = false
	o := newTestOrchestrator(t, cfg, Deps{})
	assert.Len(t, o.Rules(), 4)
}

// #endregion
