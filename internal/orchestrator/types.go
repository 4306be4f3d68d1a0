package orchestrator

// #region imports
import (
	"errors"
	"time"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/danielpatrickdp/plancore/internal/history"
	"github.com/danielpatrickdp/plancore/internal/plan"
	"github.com/danielpatrickdp/plancore/internal/policy"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// #endregion

// #region errors

// ErrNoArchive means the operation needs the SQLite archive and none is configured.
var ErrNoArchive = errors.New("no archive configured")

// #endregion

// #region request

// Request is one planning cycle's input.
type Request struct {
	Intent  string       `json:"intent"`
	Context string       `json:"context,omitempty"`
	State   affect.State `json:"state"`
	Count   int          `json:"count,omitempty"` // 0 uses the configured default
}

// #endregion

// #region result

// Result is the selected plan plus the full audit trail of the cycle.
type Result struct {
	CycleID       string               `json:"cycle_id"`
	Selected      plan.CandidatePlan   `json:"selected"`
	Verdict       policy.Verdict       `json:"verdict"`
	AdjustedScore float64              `json:"adjusted_score"`
	Fallback      bool                 `json:"fallback"`
	Candidates    []plan.CandidatePlan `json:"candidates"` // generation order
	Scores        map[string]float64   `json:"scores"`     // plan id -> adjusted score
	Ranking       []string             `json:"ranking"`    // plan ids, best first
	Verdicts      []policy.Verdict     `json:"verdicts"`   // rank order
	State         affect.State         `json:"state"`
	Latency       time.Duration        `json:"latency"`
	CreatedAt     time.Time            `json:"created_at"`
}

// Contains reports whether planID was one of the cycle's candidates.
func (r Result) Contains(planID string) (plan.CandidatePlan, bool) {
	for _, p := range r.Candidates {
		if p.ID == planID {
			return p, true
		}
	}
	return plan.CandidatePlan{}, false
}

// #endregion

// #region deps

// Deps carries the collaborators New does not build from config.
// Every field is optional.
type Deps struct {
	Scores plan.ScoreSource // nil: seeded from config
	Store  *history.Store   // nil: no archive, no audit rows
	Meter  metric.Meter     // nil: instruments are no-ops
	Logger *zap.Logger      // nil: zap.NewNop()
	Clock  func() time.Time // nil: time.Now
}

// #endregion
