package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/plancore/internal/history"
	"github.com/danielpatrickdp/plancore/internal/logging"
	"github.com/spf13/cobra"
)

var historyLast int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the archive: recent cycles, feedback records and strategy rewards",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLast, "last", 20, "show N most recent entries")
	historyCmd.Flags().String("db", "", "archive path (overrides history.db_path)")
}

type historyReport struct {
	Cycles   []logging.AuditEntry     `json:"cycles"`
	Records  []history.StoredRecord   `json:"records"`
	Rewards  []history.StrategyReward `json:"rewards"`
	Best     string                   `json:"best_strategy,omitempty"`
	BestMean float64                  `json:"best_mean,omitempty"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.History.DBPath = db
	}
	if cfg.History.DBPath == "" {
		return errors.New("no archive: set history.db_path, PLANCORE_DB or --db")
	}
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	var rep historyReport
	if rep.Cycles, err = logging.ListCycles(store.DB(), historyLast); err != nil {
		return err
	}
	if rep.Records, err = store.LoadRecent(historyLast); err != nil {
		return err
	}
	now := time.Now()
	if rep.Rewards, err = store.StrategyRewards(now); err != nil {
		return err
	}
	best, mean, err := store.BestStrategy(now)
	if err != nil {
		return err
	}
	rep.Best, rep.BestMean = string(best), mean

	if jsonOut {
		return writeJSON(rep)
	}

	fmt.Printf("%-20s  %-13s  %8s  %-8s  %-8s  %s\n", "CREATED", "STRATEGY", "SCORE", "APPROVED", "FALLBACK", "CYCLE")
	for _, c := range rep.Cycles {
		fmt.Printf("%-20s  %-13s  %8.4f  %-8v  %-8v  %s\n",
			c.CreatedAt.Format(time.DateTime), c.Strategy, c.AdjustedScore, c.Approved, c.Fallback, c.CycleID)
	}
	if len(rep.Cycles) == 0 {
		fmt.Println("no cycles archived")
	}

	fmt.Printf("\n%-20s  %-13s  %8s  %7s  %6s  %s\n", "CREATED", "STRATEGY", "REWARD", "SUCCESS", "LINKS", "RECORD")
	for _, r := range rep.Records {
		fmt.Printf("%-20s  %-13s  %8.4f  %-7v  %6d  %s\n",
			r.CreatedAt.Format(time.DateTime), r.Strategy, r.Reward, r.Outcome.Success, len(r.Related), r.ID)
	}
	if len(rep.Records) == 0 {
		fmt.Println("no feedback archived")
	}

	fmt.Println()
	for _, sr := range rep.Rewards {
		fmt.Printf("  %-13s mean=%.4f samples=%d\n", sr.Strategy, sr.Mean, sr.Samples)
	}
	if rep.Best != "" {
		fmt.Printf("best strategy: %s (%.4f)\n", rep.Best, rep.BestMean)
	}
	return nil
}
