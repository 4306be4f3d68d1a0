package main

import (
	"fmt"

	"github.com/danielpatrickdp/plancore/internal/replay"
	"github.com/spf13/cobra"
)

var replayFixture string

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a JSON fixture through a fresh engine and check the selections",
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayFixture, "fixture", "", "path to fixture JSON")
	_ = replayCmd.MarkFlagRequired("fixture")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := replay.LoadFixture(replayFixture)
	if err != nil {
		return err
	}
	results, err := replay.Replay(cmd.Context(), f, cfg, logger)
	if err != nil {
		return err
	}
	mismatches := replay.Check(f, results)
	summary := replay.Summarize(results)

	if jsonOut {
		if err := writeJSON(map[string]any{"results": results, "summary": summary, "mismatches": mismatches}); err != nil {
			return err
		}
	} else {
		if f.Description != "" {
			fmt.Println(f.Description)
		}
		fmt.Printf("%-12s  %-13s  %8s  %-8s  %-8s  %s\n", "TURN", "STRATEGY", "SCORE", "APPROVED", "FALLBACK", "REWARD")
		for _, r := range results {
			reward := "-"
			if r.Reward != nil {
				reward = fmt.Sprintf("%.4f", *r.Reward)
			}
			fmt.Printf("%-12s  %-13s  %8.4f  %-8v  %-8v  %s\n", r.TurnID, r.Strategy, r.AdjustedScore, r.Approved, r.Fallback, reward)
		}
		fmt.Printf("\nturns=%d approved=%d fallbacks=%d mean_reward=%.4f\n",
			summary.TotalTurns, summary.Approved, summary.Fallbacks, summary.MeanReward)
		for _, m := range mismatches {
			fmt.Printf("MISMATCH %s\n", m)
		}
	}

	if len(mismatches) > 0 {
		return fmt.Errorf("%d mismatch(es) against expected results", len(mismatches))
	}
	return nil
}
