package feedback

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/google/uuid"
)

// #region recorder

// Recorder turns pre/post states and outcome metrics into Records.
// Timestamps never go backwards within one Recorder.
type Recorder struct {
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewRecorder creates a recorder on the wall clock.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// NewRecorderWithClock creates a recorder with an injected clock (tests, replay).
func NewRecorderWithClock(now func() time.Time) *Recorder {
	return &Recorder{now: now}
}

// #endregion recorder

// #region record

// Record validates inputs and builds a new Record with a fresh id.
func (r *Recorder) Record(planID string, pre, post affect.State, outcome Outcome) (Record, error) {
	if err := pre.Validate(); err != nil {
		return Record{}, fmt.Errorf("pre state: %w", err)
	}
	if err := post.Validate(); err != nil {
		return Record{}, fmt.Errorf("post state: %w", err)
	}
	if err := validateOutcome(outcome); err != nil {
		return Record{}, err
	}

	return Record{
		ID:        "feedback-" + uuid.New().String(),
		PlanID:    planID,
		Pre:       pre,
		Post:      post,
		Delta:     affect.Diff(pre, post),
		Outcome:   outcome,
		CreatedAt: r.stamp(),
	}, nil
}

func (r *Recorder) stamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.now()
	if t.Before(r.last) {
		t = r.last
	}
	r.last = t
	return t
}

func validateOutcome(o Outcome) error {
	if o.ExecutionTime < 0 {
		return fmt.Errorf("%w: negative execution time %s", affect.ErrInvalidInput, o.ExecutionTime)
	}
	if math.IsNaN(o.ResourcesUsed) || o.ResourcesUsed < 0 {
		return fmt.Errorf("%w: resources used %v", affect.ErrInvalidInput, o.ResourcesUsed)
	}
	if o.ErrorCount < 0 {
		return fmt.Errorf("%w: negative error count %d", affect.ErrInvalidInput, o.ErrorCount)
	}
	return nil
}

// #endregion record

// #region reward

// Reward combines mood improvement, efficiency and error-freedom into one scalar:
// Affect*mean(dSat, dEng, dVal) + Efficiency*(1 - t/Normalization) + Safety*(errors == 0 ? 1 : ErrorPenalty).
// A non-positive Normalization drops the efficiency term.
func Reward(rec Record, cfg RewardConfig) float64 {
	affective := affect.Improvement(rec.Delta)

	var efficiency float64
	if cfg.Normalization > 0 {
		efficiency = 1 - float64(rec.Outcome.ExecutionTime)/float64(cfg.Normalization)
	}

	safety := 1.0
	if rec.Outcome.ErrorCount > 0 {
		safety = cfg.ErrorPenalty
	}

	return cfg.AffectWeight*affective + cfg.EfficiencyWeight*efficiency + cfg.SafetyWeight*safety
}

// #endregion reward
