package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/google/uuid"
)

// #region config

// GeneratorConfig holds the templates and tool pool used to build plans.
type GeneratorConfig struct {
	Templates   []Template
	Tools       []ToolID
	StepTimeout time.Duration
}

// DefaultGeneratorConfig returns the five built-in templates, the full tool pool
// and a 5s per-step timeout.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Templates:   DefaultTemplates(),
		Tools:       DefaultTools(),
		StepTimeout: 5 * time.Second,
	}
}

// Validate checks templates and tools for shapes the generator cannot build.
func (c GeneratorConfig) Validate() error {
	if len(c.Templates) == 0 {
		return fmt.Errorf("%w: no strategy templates", affect.ErrInvalidInput)
	}
	if len(c.Tools) == 0 {
		return fmt.Errorf("%w: empty tool pool", affect.ErrInvalidInput)
	}
	for _, tool := range c.Tools {
		if _, err := NewParams(tool, Provenance{}, ""); err != nil {
			return err
		}
	}
	seen := make(map[Strategy]bool, len(c.Templates))
	for _, t := range c.Templates {
		if t.Strategy == "" {
			return fmt.Errorf("%w: template without strategy name", affect.ErrInvalidInput)
		}
		if seen[t.Strategy] {
			return fmt.Errorf("%w: duplicate strategy %q", affect.ErrInvalidInput, t.Strategy)
		}
		seen[t.Strategy] = true
		if !t.Risk.Valid() {
			return fmt.Errorf("%w: strategy %q has risk %q", affect.ErrInvalidInput, t.Strategy, t.Risk)
		}
		if t.Steps < 1 {
			return fmt.Errorf("%w: strategy %q needs at least one step", affect.ErrInvalidInput, t.Strategy)
		}
		if t.Cost < 0 {
			return fmt.Errorf("%w: strategy %q has negative cost", affect.ErrInvalidInput, t.Strategy)
		}
	}
	if c.StepTimeout < 0 {
		return fmt.Errorf("%w: negative step timeout", affect.ErrInvalidInput)
	}
	return nil
}

// #endregion

// #region generator

// Generator instantiates strategy templates into candidate plans.
type Generator struct {
	config GeneratorConfig
	scores ScoreSource
}

// NewGenerator validates config and returns a generator. A nil scores source
// falls back to a seed-0 SeededScores.
func NewGenerator(config GeneratorConfig, scores ScoreSource) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if scores == nil {
		scores = NewSeededScores(0)
	}
	return &Generator{config: config, scores: scores}, nil
}

// StrategyCount is the number of templates available.
func (g *Generator) StrategyCount() int {
	return len(g.config.Templates)
}

// #endregion

// #region generate

// Generate builds up to count plans, one per template in configured order.
// Intent and context only travel as step parameters. count <= 0 yields nil.
func (g *Generator) Generate(intent, context string, count int) []CandidatePlan {
	if count <= 0 {
		return nil
	}
	if count > len(g.config.Templates) {
		count = len(g.config.Templates)
	}

	plans := make([]CandidatePlan, 0, count)
	for idx, t := range g.config.Templates[:count] {
		plans = append(plans, CandidatePlan{
			ID:        fmt.Sprintf("plan-%s-%s", strings.ToLower(string(t.Strategy)), uuid.New().String()),
			Strategy:  t.Strategy,
			Risk:      t.Risk,
			Steps:     g.buildSteps(intent, context, t),
			Cost:      t.Cost,
			BaseScore: g.scores.BaseScore(t, idx),
			Reasoning: fmt.Sprintf("%s strategy for: %s", t.Strategy, intent),
		})
	}
	return plans
}

// buildSteps cycles the tool pool; step i of n gets priority n-i.
func (g *Generator) buildSteps(intent, context string, t Template) []ToolStep {
	steps := make([]ToolStep, 0, t.Steps)
	for i := 0; i < t.Steps; i++ {
		tool := g.config.Tools[i%len(g.config.Tools)]
		// tools were checked in Validate
		params, _ := NewParams(tool, Provenance{Intent: intent, Context: context, Step: i + 1}, t.Strategy)
		steps = append(steps, ToolStep{
			ID:       fmt.Sprintf("step-%d", i+1),
			Tool:     tool,
			Params:   params,
			Priority: t.Steps - i,
			Timeout:  g.config.StepTimeout,
		})
	}
	return steps
}

// #endregion
