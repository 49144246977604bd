package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/evaluation"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/ui"
)

var evalCmd = &cobra.Command{
	Use:     "eval",
	GroupID: "evaluation",
	Short:   "Score features and the system",
}

var evalFeatureCmd = &cobra.Command{
	Use:   "feature <feature-id>",
	Short: "Score a feature and raise alerts",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := api.ComputeFeatureEval(rootCtx, args[0], actor)
		if err != nil {
			fatal(err)
		}
		emit(e, func() { printFeatureEval(e) })
	},
}

func printFeatureEval(e *types.FeatureEval) {
	fmt.Printf("%s  %.2f %s\n", ui.RenderAccent(e.FeatureID), e.Overall, ui.RenderHealth(e.Health))
	fmt.Printf("  Efficiency %.2f  (%s actual vs %s expected)\n", e.Efficiency,
		ui.FormatDuration(minutes(e.ActualMinutes)), ui.FormatDuration(minutes(e.ExpectedMinutes)))
	fmt.Printf("  Quality    %.2f  (%d/%d gates approved, %d backward moves, %d blockers)\n",
		e.Quality, e.GatesApproved, e.GatesTotal, e.BackwardCount, e.BlockerCount)
	if len(e.ThrashingPhases) > 0 {
		phases := make([]string, len(e.ThrashingPhases))
		for i, p := range e.ThrashingPhases {
			phases[i] = p.Label()
		}
		fmt.Printf("  Thrashing in %s\n", strings.Join(phases, ", "))
	}
	printAlerts(e.Alerts)
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

var evalListCmd = &cobra.Command{
	Use:   "list <feature-id>",
	Short: "List past scores of a feature",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		evals, err := api.ListFeatureEvals(rootCtx, args[0])
		if err != nil {
			fatal(err)
		}
		emit(evals, func() {
			if len(evals) == 0 {
				fmt.Println("Not scored yet.")
				return
			}
			rows := make([][]string, 0, len(evals))
			for _, e := range evals {
				rows = append(rows, []string{e.ComputedAt.Format("2006-01-02 15:04"), fmt.Sprintf("%.2f", e.Overall),
					ui.RenderHealth(e.Health), fmt.Sprintf("%.2f", e.Efficiency), fmt.Sprintf("%.2f", e.Quality)})
			}
			fmt.Println(ui.NewTable([]string{"When", "Overall", "Health", "Efficiency", "Quality"}, rows))
		})
	},
}

var evalSystemCmd = &cobra.Command{
	Use:   "system",
	Short: "Snapshot system health over a rolling window",
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		var evals []*types.SystemHealthEval
		if all {
			var err error
			if evals, err = api.ComputeAllWindows(rootCtx, actor); err != nil {
				fatal(err)
			}
		} else {
			window, _ := cmd.Flags().GetInt("window")
			e, err := api.ComputeSystemHealth(rootCtx, window, actor)
			if err != nil {
				fatal(err)
			}
			evals = []*types.SystemHealthEval{e}
		}
		emit(evals, func() {
			for _, e := range evals {
				fmt.Printf("%dd  %.2f %s  (efficiency %.2f, quality %.2f; %d done, %d blocked, %d active)\n",
					e.WindowDays, e.Overall, ui.RenderHealth(e.Health), e.Efficiency, e.Quality, e.Completed, e.Blocked, e.InProgress)
				printAlerts(e.Alerts)
			}
		})
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	GroupID: "evaluation",
	Short:   "Show the latest system health report and open alerts",
	Run: func(cmd *cobra.Command, args []string) {
		compute, _ := cmd.Flags().GetBool("compute")
		var evals []*types.SystemHealthEval
		if compute {
			var err error
			if evals, err = api.ComputeAllWindows(rootCtx, actor); err != nil {
				fatal(err)
			}
		} else {
			for _, w := range evaluation.DefaultWindows {
				e, err := api.GetLatestSystemEval(rootCtx, w)
				if storage.IsNotFound(err) {
					continue
				}
				if err != nil {
					fatal(err)
				}
				evals = append(evals, e)
			}
		}
		alerts, err := api.ListAlerts(rootCtx, types.AlertFilter{UnresolvedOnly: true})
		if err != nil {
			fatal(err)
		}

		emit(map[string]interface{}{"windows": evals, "alerts": alerts}, func() {
			if len(evals) == 0 {
				fmt.Println("No health snapshots yet (run 'flow health --compute').")
				return
			}
			fmt.Print(ui.RenderMarkdown(ui.HealthReportMarkdown(evals, alerts)))
		})
	},
}

func init() {
	evalSystemCmd.Flags().Int("window", evaluation.DefaultWindows[0], "Window in days")
	evalSystemCmd.Flags().Bool("all", false, "Compute every default window (7, 30 and 90 days)")
	healthCmd.Flags().Bool("compute", false, "Take fresh snapshots before reporting")

	evalCmd.AddCommand(evalFeatureCmd, evalListCmd, evalSystemCmd)
	rootCmd.AddCommand(evalCmd, healthCmd)
}
