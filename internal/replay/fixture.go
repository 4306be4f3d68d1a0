package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/danielpatrickdp/plancore/internal/config"
	"github.com/danielpatrickdp/plancore/internal/feedback"
	"github.com/danielpatrickdp/plancore/internal/orchestrator"
	"github.com/danielpatrickdp/plancore/internal/plan"
	"github.com/danielpatrickdp/plancore/internal/policy"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                    `json:"description"`
	Scores          map[plan.Strategy]float64 `json:"scores"`
	DefaultScore    float64                   `json:"default_score"`
	Rules           []policy.Rule             `json:"rules,omitempty"` // empty keeps the default registry
	Interactions    []FixtureInteraction      `json:"interactions"`
	ExpectedResults []FixtureExpectedResult   `json:"expected_results"`
}

// FixtureInteraction is one planning request, optionally followed by feedback
// on whichever plan gets selected.
type FixtureInteraction struct {
	TurnID   string           `json:"turn_id"`
	Intent   string           `json:"intent"`
	Context  string           `json:"context,omitempty"`
	State    affect.State     `json:"state"`
	Count    int              `json:"count,omitempty"`
	Feedback *FixtureFeedback `json:"feedback,omitempty"`
}

// FixtureFeedback is the post-execution state and metrics for the selected plan.
type FixtureFeedback struct {
	Post          affect.State `json:"post"`
	Success       bool         `json:"success"`
	ExecutionMs   int64        `json:"execution_ms"`
	ResourcesUsed float64      `json:"resources_used"`
	ErrorCount    int          `json:"error_count"`
}

// FixtureExpectedResult captures the expected selection per turn.
type FixtureExpectedResult struct {
	TurnID   string        `json:"turn_id"`
	Strategy plan.Strategy `json:"strategy"`
	Approved bool          `json:"approved"`
	Fallback bool          `json:"fallback"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ScoreSource pins base scores to the fixture's table.
func (f *Fixture) ScoreSource() plan.ScoreSource {
	return plan.FixedScores{Scores: f.Scores, Default: f.DefaultScore}
}

// ToConfig overlays the fixture's rules on base. base is not modified.
func (f *Fixture) ToConfig(base *config.Config) *config.Config {
	if base == nil {
		base = config.Default()
	}
	cfg := *base
	if len(f.Rules) > 0 {
		cfg.Policy.Rules = append([]policy.Rule(nil), f.Rules...)
	}
	return &cfg
}

// ToRequest converts an interaction to a planning request.
func (fi *FixtureInteraction) ToRequest() orchestrator.Request {
	return orchestrator.Request{
		Intent:  fi.Intent,
		Context: fi.Context,
		State:   fi.State,
		Count:   fi.Count,
	}
}

// ToOutcome converts fixture feedback metrics to an outcome.
func (ff *FixtureFeedback) ToOutcome() feedback.Outcome {
	return feedback.Outcome{
		Success:       ff.Success,
		ExecutionTime: time.Duration(ff.ExecutionMs) * time.Millisecond,
		ResourcesUsed: ff.ResourcesUsed,
		ErrorCount:    ff.ErrorCount,
	}
}

// #endregion fixture-loader
