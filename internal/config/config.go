// Package config loads plancore settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/danielpatrickdp/plancore/internal/feedback"
	"github.com/danielpatrickdp/plancore/internal/plan"
	"github.com/danielpatrickdp/plancore/internal/policy"
	"github.com/danielpatrickdp/plancore/internal/weight"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// #region types
// Config is the full engine configuration.
type Config struct {
	Planner  PlannerConfig         `yaml:"planner"`
	Weights  weight.Config         `yaml:"weights"`
	Policy   PolicyConfig          `yaml:"policy"`
	Feedback feedback.RewardConfig `yaml:"feedback"`
	History  HistoryConfig         `yaml:"history"`
	Server   ServerConfig          `yaml:"server"`
	Logging  LoggingConfig         `yaml:"logging"`
}

// PlannerConfig configures candidate generation.
type PlannerConfig struct {
	Templates   []plan.Template `yaml:"templates"`
	Tools       []plan.ToolID   `yaml:"tools"`
	StepTimeout time.Duration   `yaml:"step_timeout"`
	Seed        uint64          `yaml:"seed"`  // base-score seed
	Count       int             `yaml:"count"` // candidates per cycle when the request gives none
}

// PolicyConfig holds the compliance rule registry. Rules are fixed at construction.
type PolicyConfig struct {
	Rules []policy.Rule `yaml:"rules"`
}

// HistoryConfig bounds the in-memory history and locates the archive.
type HistoryConfig struct {
	Capacity     int    `yaml:"capacity"`
	RelatedDepth int    `yaml:"related_depth"` // preceding records linked to each new one
	Executions   int    `yaml:"executions"`    // planning results kept for feedback lookup
	DBPath       string `yaml:"db_path"`       // empty disables the SQLite archive
}

// ServerConfig configures the gRPC listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// #endregion types

// #region defaults
// Default returns the reference configuration.
func Default() *Config {
	gen := plan.DefaultGeneratorConfig()
	return &Config{
		Planner: PlannerConfig{
			Templates:   gen.Templates,
			Tools:       gen.Tools,
			StepTimeout: gen.StepTimeout,
			Count:       len(gen.Templates),
		},
		Weights:  weight.DefaultConfig(),
		Policy:   PolicyConfig{Rules: policy.DefaultRules()},
		Feedback: feedback.DefaultRewardConfig(),
		History: HistoryConfig{
			Capacity:     100,
			RelatedDepth: 5,
			Executions:   100,
		},
		Server:  ServerConfig{Addr: "localhost:50061"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// GeneratorConfig projects the planner section onto the generator's config.
func (c *Config) GeneratorConfig() plan.GeneratorConfig {
	return plan.GeneratorConfig{
		Templates:   c.Planner.Templates,
		Tools:       c.Planner.Tools,
		StepTimeout: c.Planner.StepTimeout,
	}
}

// #endregion defaults

// #region load-save
// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	c.History.DBPath = envOr("PLANCORE_DB", c.History.DBPath)
	c.Server.Addr = envOr("PLANCORE_ADDR", c.Server.Addr)
	c.Logging.Level = envOr("PLANCORE_LOG_LEVEL", c.Logging.Level)
	if v := os.Getenv("PLANCORE_HISTORY_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PLANCORE_HISTORY_CAPACITY=%q: %v", ErrInvalidConfig, v, err)
		}
		c.History.Capacity = n
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion load-save

// #region validate
// Validate checks every section. Rule predicates are compiled here so a bad
// expression fails at startup rather than on the first cycle.
func (c *Config) Validate() error {
	if err := c.GeneratorConfig().Validate(); err != nil {
		return fmt.Errorf("%w: planner: %v", ErrInvalidConfig, err)
	}
	if c.Planner.Count < 0 {
		return fmt.Errorf("%w: planner.count must be >= 0", ErrInvalidConfig)
	}

	w := c.Weights
	for name, v := range map[string]float64{
		"high_risk_arousal_bonus":     w.HighRiskArousalBonus,
		"low_risk_satisfaction_bonus": w.LowRiskSatisfactionBonus,
		"trust_bonus":                 w.TrustBonus,
		"valence_factor":              w.ValenceFactor,
	} {
		if v < 0 {
			return fmt.Errorf("%w: weights.%s is negative", ErrInvalidConfig, name)
		}
	}

	seen := make(map[string]bool, len(c.Policy.Rules))
	for _, r := range c.Policy.Rules {
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate rule id %q", ErrInvalidConfig, r.ID)
		}
		seen[r.ID] = true
	}
	eval, err := policy.NewEvaluator()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := eval.Compile(c.Policy.Rules); err != nil {
		return fmt.Errorf("%w: policy: %v", ErrInvalidConfig, err)
	}

	f := c.Feedback
	if f.AffectWeight < 0 || f.EfficiencyWeight < 0 || f.SafetyWeight < 0 || f.ErrorPenalty < 0 {
		return fmt.Errorf("%w: feedback weights must be non-negative", ErrInvalidConfig)
	}

	h := c.History
	if h.Capacity < 1 {
		return fmt.Errorf("%w: history.capacity must be >= 1, got %d", ErrInvalidConfig, h.Capacity)
	}
	if h.RelatedDepth < 0 {
		return fmt.Errorf("%w: history.related_depth must be >= 0", ErrInvalidConfig)
	}
	if h.Executions < 1 {
		return fmt.Errorf("%w: history.executions must be >= 1", ErrInvalidConfig)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrInvalidConfig, err)
	}
	return nil
}

// #endregion validate
