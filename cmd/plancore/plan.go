package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danielpatrickdp/plancore/internal/affect"
	"github.com/danielpatrickdp/plancore/internal/feedback"
	"github.com/danielpatrickdp/plancore/internal/orchestrator"
	"github.com/danielpatrickdp/plancore/internal/rpc"
	"github.com/spf13/cobra"
)

// #region flags

var (
	planIntent  string
	planContext string
	planCount   int
	remoteAddr  string
	stateFlags  affect.State

	fbPlanID  string
	fbPost    affect.State
	fbSuccess bool
	fbExecMs  int64
	fbRes     float64
	fbErrors  int
)

func addStateFlags(cmd *cobra.Command, s *affect.State, prefix string) {
	n := affect.Neutral()
	cmd.Flags().Float64Var(&s.Valence, prefix+"valence", n.Valence, "valence in [-1,1]")
	cmd.Flags().Float64Var(&s.Arousal, prefix+"arousal", n.Arousal, "arousal in [0,1]")
	cmd.Flags().Float64Var(&s.Engagement, prefix+"engagement", n.Engagement, "engagement in [0,1]")
	cmd.Flags().Float64Var(&s.Satisfaction, prefix+"satisfaction", n.Satisfaction, "satisfaction in [0,1]")
	cmd.Flags().Float64Var(&s.Trust, prefix+"trust", n.Trust, "trust in [0,1]")
}

// #endregion flags

// #region plan-cmd

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run one planning cycle and print the selection and audit trail",
	Example: `  plancore plan --intent "summarize the report" --arousal 0.8 --trust 0.9
  plancore plan --intent "deploy" --remote localhost:50061 --json`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planIntent, "intent", "", "what the caller wants done")
	planCmd.Flags().StringVar(&planContext, "context", "", "project context carried into step params")
	planCmd.Flags().IntVar(&planCount, "count", 0, "candidates to generate (0 = configured default)")
	planCmd.Flags().StringVar(&remoteAddr, "remote", "", "plan against a running server instead of locally")
	addStateFlags(planCmd, &stateFlags, "")
	_ = planCmd.MarkFlagRequired("intent")
}

func runPlan(cmd *cobra.Command, args []string) error {
	req := orchestrator.Request{Intent: planIntent, Context: planContext, State: stateFlags, Count: planCount}

	var res orchestrator.Result
	if remoteAddr != "" {
		client, err := rpc.NewClient(remoteAddr)
		if err != nil {
			return err
		}
		defer client.Close()
		if res, err = client.Plan(cmd.Context(), req); err != nil {
			return err
		}
	} else {
		store, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()
		o, err := newOrchestrator(store)
		if err != nil {
			return err
		}
		if res, err = o.Plan(cmd.Context(), req); err != nil {
			return err
		}
	}

	if jsonOut {
		return writeJSON(res)
	}
	printResult(res)
	return nil
}

func printResult(res orchestrator.Result) {
	fmt.Printf("cycle     %s\n", res.CycleID)
	fmt.Printf("selected  %s (%s)  score=%.4f  approved=%v  fallback=%v\n",
		res.Selected.ID, res.Selected.Strategy, res.AdjustedScore, res.Verdict.Approved, res.Fallback)
	fmt.Printf("reason    %s\n\n", res.Verdict.Reason)

	fmt.Printf("%-4s  %-13s  %-6s  %6s  %8s  %10s  %s\n", "RANK", "STRATEGY", "RISK", "BASE", "ADJUSTED", "COMPLIANCE", "VIOLATED")
	fmt.Printf("%-4s+-%-13s+-%-6s+-%6s+-%8s+-%10s+-%s\n",
		"----", strings.Repeat("-", 13), "------", "------", "--------", "----------", "--------")
	for i, id := range res.Ranking {
		p, _ := res.Contains(id)
		v := res.Verdicts[i]
		violated := make([]string, len(v.Violated))
		for j, r := range v.Violated {
			violated[j] = r.ID
		}
		marker := ""
		if id == res.Selected.ID {
			marker = " *"
		}
		fmt.Printf("%-4d  %-13s  %-6s  %6.3f  %8.3f  %10.2f  %s%s\n",
			i+1, p.Strategy, p.Risk, p.BaseScore, res.Scores[id], v.ComplianceScore, strings.Join(violated, ","), marker)
	}

	fmt.Println()
	for _, s := range res.Selected.Steps {
		fmt.Printf("  %-7s %-9s priority=%d timeout=%s params=%v\n", s.ID, s.Tool, s.Priority, s.Timeout, s.Params.Fields())
	}
}

// #endregion plan-cmd

// #region feedback-cmd

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record execution feedback for a plan on a running server",
	RunE:  runFeedback,
}

func init() {
	feedbackCmd.Flags().StringVar(&fbPlanID, "plan", "", "plan id returned by plan")
	feedbackCmd.Flags().StringVar(&remoteAddr, "remote", "", "server address (defaults to server.addr)")
	feedbackCmd.Flags().BoolVar(&fbSuccess, "success", true, "execution succeeded")
	feedbackCmd.Flags().Int64Var(&fbExecMs, "execution-ms", 0, "execution time in milliseconds")
	feedbackCmd.Flags().Float64Var(&fbRes, "resources", 0, "resources used")
	feedbackCmd.Flags().IntVar(&fbErrors, "errors", 0, "error count")
	addStateFlags(feedbackCmd, &stateFlags, "pre-")
	addStateFlags(feedbackCmd, &fbPost, "post-")
	_ = feedbackCmd.MarkFlagRequired("plan")
}

func runFeedback(cmd *cobra.Command, args []string) error {
	addr := remoteAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	client, err := rpc.NewClient(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	outcome := feedback.Outcome{
		Success:       fbSuccess,
		ExecutionTime: time.Duration(fbExecMs) * time.Millisecond,
		ResourcesUsed: fbRes,
		ErrorCount:    fbErrors,
	}
	rec, reward, err := client.RecordFeedback(cmd.Context(), fbPlanID, stateFlags, fbPost, outcome)
	if err != nil {
		return err
	}

	if jsonOut {
		return writeJSON(map[string]any{"record": rec, "reward": reward})
	}
	fmt.Printf("record    %s\n", rec.ID)
	fmt.Printf("plan      %s (%s)\n", rec.PlanID, rec.Strategy)
	fmt.Printf("reward    %.4f\n", reward)
	fmt.Printf("delta     sat=%+.3f eng=%+.3f val=%+.3f\n", rec.Delta.Satisfaction, rec.Delta.Engagement, rec.Delta.Valence)
	return nil
}

// #endregion feedback-cmd

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
