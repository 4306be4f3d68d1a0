// Package orchestrator runs planning cycles end to end: generate, weight,
// rank, filter, and record outcome feedback into history.
package orchestrator

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/danielpatrickdp/plancore/internal/config"
	"github.com/danielpatrickdp/plancore/internal/feedback"
	"github.com/danielpatrickdp/plancore/internal/history"
	"github.com/danielpatrickdp/plancore/internal/logging"
	"github.com/danielpatrickdp/plancore/internal/plan"
	"github.com/danielpatrickdp/plancore/internal/policy"
	"github.com/danielpatrickdp/plancore/internal/telemetry"
	"github.com/danielpatrickdp/plancore/internal/weight"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// #endregion

// #region orchestrator-struct

// Orchestrator is the top-level coordinator for a planning engine instance.
// Safe for concurrent use.
type Orchestrator struct {
	generator  *plan.Generator
	reweighter *weight.Reweighter
	filter     *policy.Filter
	rules      []policy.Rule
	recorder   *feedback.Recorder
	lattice    *history.Lattice
	store      *history.Store
	monitor    *telemetry.Monitor
	logger     *zap.Logger
	now        func() time.Time

	reward        feedback.RewardConfig
	count         int
	relatedDepth  int
	maxExecutions int

	mu         sync.RWMutex
	executions []Result // newest last
}

// #endregion

// #region constructor

// New validates cfg and wires every component. With a store, the lattice is
// warmed from the archive.
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	scores := deps.Scores
	if scores == nil {
		scores = plan.NewSeededScores(cfg.Planner.Seed)
	}

	gen, err := plan.NewGenerator(cfg.GeneratorConfig(), scores)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	filter, err := policy.NewFilter(logger)
	if err != nil {
		return nil, fmt.Errorf("policy filter: %w", err)
	}
	rules := append([]policy.Rule(nil), cfg.Policy.Rules...)
	if err := filter.Compile(rules); err != nil {
		return nil, fmt.Errorf("policy rules: %w", err)
	}
	lattice, err := history.NewLatticeWithClock(cfg.History.Capacity, now)
	if err != nil {
		return nil, fmt.Errorf("lattice: %w", err)
	}
	monitor, err := telemetry.NewMonitor(deps.Meter)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	count := cfg.Planner.Count
	if count == 0 {
		count = gen.StrategyCount()
	}

	o := &Orchestrator{
		generator:     gen,
		reweighter:    weight.NewReweighter(cfg.Weights),
		filter:        filter,
		rules:         rules,
		recorder:      feedback.NewRecorderWithClock(now),
		lattice:       lattice,
		store:         deps.Store,
		monitor:       monitor,
		logger:        logger.Named("orch"),
		now:           now,
		reward:        cfg.Feedback,
		count:         count,
		relatedDepth:  cfg.History.RelatedDepth,
		maxExecutions: cfg.History.Executions,
	}

	if o.store != nil {
		n, err := o.store.Restore(lattice)
		if err != nil {
			return nil, fmt.Errorf("restore history: %w", err)
		}
		o.logger.Info("history restored", zap.Int("records", n))
	}
	return o, nil
}

// #endregion

// #region plan

// Plan runs one planning cycle. A cycle where no candidate is approved is not
// an error: the top-ranked plan is returned with Fallback set.
func (o *Orchestrator) Plan(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()

	if err := req.State.Validate(); err != nil {
		return Result{}, fmt.Errorf("plan: %w", err)
	}
	count := req.Count
	switch {
	case count < 0:
		return Result{}, fmt.Errorf("plan: %w: count %d", affect.ErrInvalidInput, count)
	case count == 0:
		count = o.count
	}

	candidates := o.generator.Generate(req.Intent, req.Context, count)

	scores, err := o.reweighter.Weight(candidates, req.State)
	if err != nil {
		return Result{}, fmt.Errorf("plan: %w", err)
	}
	ranked := weight.Rank(candidates, scores)
	sel, _ := o.filter.Select(weight.Plans(ranked), o.rules)

	ranking := make([]string, len(ranked))
	for i, r := range ranked {
		ranking[i] = r.Plan.ID
	}

	res := Result{
		CycleID:       "cycle-" + uuid.New().String(),
		Selected:      sel.Plan,
		Verdict:       sel.Verdict,
		AdjustedScore: scores[sel.Plan.ID],
		Fallback:      sel.Fallback,
		Candidates:    candidates,
		Scores:        scores,
		Ranking:       ranking,
		Verdicts:      sel.Verdicts,
		State:         req.State,
		CreatedAt:     o.now().UTC(),
	}
	res.Latency = time.Since(start)

	o.monitor.RecordCycle(ctx, string(res.Selected.Strategy), len(candidates), res.Fallback, res.Latency)
	o.audit(res)
	o.remember(res)

	o.logger.Debug("cycle complete",
		zap.String("cycle_id", res.CycleID),
		zap.Int("candidates", len(candidates)),
		zap.Strings("ranking", ranking),
		zap.Duration("latency", res.Latency),
	)
	return res, nil
}

// audit emits the cycle's audit line and, with an archive, its audit row.
// Archive failures are logged, never returned: the cycle already happened.
func (o *Orchestrator) audit(res Result) {
	entry := logging.AuditEntry{
		CycleID:       res.CycleID,
		PlanID:        res.Selected.ID,
		Strategy:      string(res.Selected.Strategy),
		Approved:      res.Verdict.Approved,
		Fallback:      res.Fallback,
		AdjustedScore: res.AdjustedScore,
		Reason:        res.Verdict.Reason,
		CreatedAt:     res.CreatedAt,
	}
	if b, err := json.Marshal(res.Verdicts); err == nil {
		entry.VerdictsJSON = string(b)
	}

	logging.Emit(o.logger, entry)
	if o.store == nil {
		return
	}
	if err := logging.LogCycle(o.store.DB(), entry); err != nil {
		o.logger.Warn("failed to archive audit entry", zap.String("cycle_id", res.CycleID), zap.Error(err))
	}
}

func (o *Orchestrator) remember(res Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.executions = append(o.executions, res)
	if over := len(o.executions) - o.maxExecutions; over > 0 {
		o.executions = append(o.executions[:0:0], o.executions[over:]...)
	}
}

// #endregion

// #region record-feedback

// RecordFeedback records the outcome of an externally executed plan, links it
// to the most recent history records, and archives it. Returns the record and
// its reward.
func (o *Orchestrator) RecordFeedback(
	ctx context.Context,
	planID string,
	pre, post affect.State,
	outcome feedback.Outcome,
) (feedback.Record, float64, error) {
	if err := ctx.Err(); err != nil {
		return feedback.Record{}, 0, err
	}

	rec, err := o.recorder.Record(planID, pre, post, outcome)
	if err != nil {
		return feedback.Record{}, 0, fmt.Errorf("record feedback: %w", err)
	}

	p, known := o.lookup(planID)
	if known {
		rec.Strategy = p.Strategy
	} else {
		o.logger.Debug("feedback for plan outside execution history", zap.String("plan_id", planID))
	}
	reward := feedback.Reward(rec, o.reward)

	// The archive write runs before the append under the lattice lock, so a
	// failed write leaves memory and disk consistent.
	var archive func([]string) error
	if o.store != nil {
		archive = func(related []string) error {
			return o.store.SaveRecord(rec, reward, related)
		}
	}
	related, err := o.lattice.AppendLinked(rec, o.relatedDepth, archive)
	if err != nil {
		return feedback.Record{}, 0, fmt.Errorf("record feedback: %w", err)
	}

	o.monitor.RecordOutcome(ctx, string(rec.Strategy), len(p.Steps), outcome.Success,
		outcome.ExecutionTime, outcome.ResourcesUsed)

	o.logger.Info("feedback recorded",
		zap.String("record_id", rec.ID),
		zap.String("plan_id", planID),
		zap.String("strategy", string(rec.Strategy)),
		zap.Float64("reward", reward),
		zap.Float64("improvement", affect.Improvement(rec.Delta)),
		zap.Int("related", len(related)),
	)
	return rec, reward, nil
}

// lookup finds planID among remembered cycles, newest first.
func (o *Orchestrator) lookup(planID string) (plan.CandidatePlan, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for i := len(o.executions) - 1; i >= 0; i-- {
		if p, ok := o.executions[i].Contains(planID); ok {
			return p, true
		}
	}
	return plan.CandidatePlan{}, false
}

// #endregion

// #region reads

// Window returns history records younger than d, oldest first.
func (o *Orchestrator) Window(d time.Duration) []feedback.Record {
	return o.lattice.Window(d)
}

// History returns a copy of the full lattice, records and links.
func (o *Orchestrator) History() history.Snapshot {
	return o.lattice.Snapshot()
}

// Executions returns up to n of the most recent cycles, oldest first.
// n <= 0 returns all of them.
func (o *Orchestrator) Executions(n int) []Result {
	o.mu.RLock()
	defer o.mu.RUnlock()
	start := 0
	if n > 0 && n < len(o.executions) {
		start = len(o.executions) - n
	}
	out := make([]Result, len(o.executions)-start)
	copy(out, o.executions[start:])
	return out
}

// Rules returns the active compliance rules.
func (o *Orchestrator) Rules() []policy.Rule {
	return policy.ActiveRules(o.rules)
}

// Performance summarizes recent cycle and outcome metrics.
func (o *Orchestrator) Performance() telemetry.Summary {
	return o.monitor.Bottlenecks()
}

// AverageLatency averages the last n recorded latencies.
func (o *Orchestrator) AverageLatency(n int) time.Duration {
	return o.monitor.AverageLatency(n)
}

// BestStrategy reports the archived strategy with the highest decayed mean reward.
func (o *Orchestrator) BestStrategy() (plan.Strategy, float64, error) {
	if o.store == nil {
		return "", 0, ErrNoArchive
	}
	return o.store.BestStrategy(o.now())
}

// #endregion
