package main

import (
	"fmt"
	"os"

	"github.com/danielpatrickdp/plancore/internal/config"
	"github.com/danielpatrickdp/plancore/internal/history"
	"github.com/danielpatrickdp/plancore/internal/orchestrator"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// #region globals

var (
	verbose    bool
	configPath string
	jsonOut    bool

	cfg    *config.Config
	logger *zap.Logger
)

// #endregion globals

// #region root

var rootCmd = &cobra.Command{
	Use:   "plancore",
	Short: "Plan generation, affective ranking and compliance selection",
	Long: `plancore generates candidate plans for a request, re-weights them for the
caller's affective state, filters them through compliance rules, and records
execution feedback into a bounded history.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("%w: logging.level: %v", config.ErrInvalidConfig, err)
		}
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(level)
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "plancore.yaml", "path to YAML config (missing file uses defaults)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON instead of a table")

	rootCmd.AddCommand(serveCmd, planCmd, feedbackCmd, historyCmd, replayCmd)
}

// #endregion root

// #region main

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// #endregion main

// #region wiring

// openStore opens the archive when a db path is configured. The returned
// close func is always safe to call.
func openStore() (*history.Store, func(), error) {
	if cfg.History.DBPath == "" {
		return nil, func() {}, nil
	}
	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	return store, func() { store.Close() }, nil
}

// newOrchestrator wires a local engine over the configured archive.
func newOrchestrator(store *history.Store) (*orchestrator.Orchestrator, error) {
	return orchestrator.New(cfg, orchestrator.Deps{
		Store:  store,
		Meter:  otel.GetMeterProvider().Meter("github.com/danielpatrickdp/plancore"),
		Logger: logger,
	})
}

// #endregion wiring
