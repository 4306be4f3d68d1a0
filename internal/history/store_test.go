package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/danielpatrickdp/plancore/internal/feedback"
	"github.com/danielpatrickdp/plancore/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func storedRecord(i int, strategy plan.Strategy, at time.Time) feedback.Record {
	pre := affect.State{Valence: 0.1, Arousal: 0.5, Engagement: 0.5, Satisfaction: 0.4, Trust: 0.6}
	post := affect.State{Valence: 0.3, Arousal: 0.4, Engagement: 0.7, Satisfaction: 0.8, Trust: 0.6}
	return feedback.Record{
		ID:       fmt.Sprintf("rec-%03d", i),
		PlanID:   fmt.Sprintf("plan-%03d", i),
		Strategy: strategy,
		Pre:      pre,
		Post:     post,
		Delta:    affect.Diff(pre, post),
		Outcome: feedback.Outcome{
			Success:       i%2 == 0,
			ExecutionTime: 1200 * time.Millisecond,
			ResourcesUsed: 2.5,
			ErrorCount:    i % 3,
		},
		CreatedAt: at,
	}
}

func TestStore_SaveAndLoadRecent(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		r := storedRecord(i, plan.StrategyDirect, epoch.Add(time.Duration(i)*time.Second))
		var related []string
		if i > 0 {
			related = []string{fmt.Sprintf("rec-%03d", i-1)}
		}
		require.NoError(t, s.SaveRecord(r, 0.1*float64(i), related))
	}

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got, err := s.LoadRecent(3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"rec-002", "rec-003", "rec-004"}, []string{got[0].ID, got[1].ID, got[2].ID})

	want := storedRecord(4, plan.StrategyDirect, epoch.Add(4*time.Second))
	last := got[2]
	assert.Equal(t, want.PlanID, last.PlanID)
	assert.Equal(t, want.Strategy, last.Strategy)
	assert.Equal(t, want.Pre, last.Pre)
	assert.Equal(t, want.Post, last.Post)
	assert.Equal(t, want.Delta, last.Delta)
	assert.Equal(t, want.Outcome, last.Outcome)
	assert.True(t, want.CreatedAt.Equal(last.CreatedAt))
	assert.InDelta(t, 0.4, last.Reward, 1e-12)
	assert.Equal(t, []string{"rec-003"}, last.Related)
}

func TestStore_DuplicateIDRejected(t *testing.T) {
	s := newTestStore(t)
	r := storedRecord(1, plan.StrategyDirect, epoch)
	require.NoError(t, s.SaveRecord(r, 0.5, []string{"a", "b"}))
	require.Error(t, s.SaveRecord(r, 0.5, nil))

	got, err := s.LoadRecent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"a", "b"}, got[0].Related)
}

func TestStore_RestoreLattice(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 8; i++ {
		related := []string{"rec-000"}
		if i > 0 {
			related = append(related, fmt.Sprintf("rec-%03d", i-1))
		}
		require.NoError(t, s.SaveRecord(storedRecord(i, plan.StrategyIterative, epoch.Add(time.Duration(i)*time.Minute)), 0, related))
	}

	l, err := NewLattice(5)
	require.NoError(t, err)
	n, err := s.Restore(l)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []string{"rec-003", "rec-004", "rec-005", "rec-006", "rec-007"}, recordIDs(l.All()))

	// rec-000 and rec-002 were not restored, so their ids are dropped from links
	assert.Equal(t, []string{"rec-006"}, l.Related("rec-007"))
	assert.Equal(t, []string{"rec-003"}, l.Related("rec-004"))
	assert.Nil(t, l.Related("rec-003"))

	live := make(map[string]bool)
	for _, r := range l.All() {
		live[r.ID] = true
	}
	for id, related := range l.Snapshot().Links {
		for _, r := range related {
			assert.True(t, live[r], "%s links to %s", id, r)
		}
	}
}

func TestStore_BestStrategy(t *testing.T) {
	s := newTestStore(t)
	now := epoch.Add(24 * time.Hour)

	sid, _, err := s.BestStrategy(now)
	require.NoError(t, err)
	assert.Empty(t, sid)

	i := 0
	save := func(strategy plan.Strategy, reward float64, n int) {
		for k := 0; k < n; k++ {
			require.NoError(t, s.SaveRecord(storedRecord(i, strategy, epoch), reward, nil))
			i++
		}
	}

	save(plan.StrategyDirect, 0.4, 4)
	save(plan.StrategyIterative, 0.9, 4)
	save(plan.StrategyAggressive, 1.5, 2) // below sample threshold

	sid, score, err := s.BestStrategy(now)
	require.NoError(t, err)
	assert.Equal(t, plan.StrategyIterative, sid)
	assert.InDelta(t, 0.9, score, 1e-9)

	rewards, err := s.StrategyRewards(now)
	require.NoError(t, err)
	assert.Len(t, rewards, 3)
}

func TestStore_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plancore.db")
	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveRecord(storedRecord(1, plan.StrategyDirect, epoch), 0.5, nil))
	require.NoError(t, s.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
