package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/ui"
)

var phaseCmd = &cobra.Command{
	Use:     "phase <feature-id> <phase>",
	GroupID: "features",
	Short:   "Move a feature to another phase",
	Long: `Move a feature to another phase.

Forward moves advance one phase at a time. Any earlier phase may be reentered
for rework. Phase 8 is reached with 'flow complete'.

Examples:
  flow phase feat-1 1
  flow phase feat-1 implementation --note "design approved"
  flow phase feat-1 architecture --note "API shape was wrong"`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		target, err := types.ParsePhase(args[1])
		if err != nil {
			fatal(err)
		}
		note, _ := cmd.Flags().GetString("note")

		t, err := api.TransitionPhase(rootCtx, args[0], target, actor, note)
		if err != nil {
			fatal(err)
		}
		emit(t, func() {
			printDone("%s: %s → %s (%s)", args[0], t.FromPhase.Label(), t.ToPhase.Label(), t.Kind)
		})
	},
}

var completeCmd = &cobra.Command{
	Use:     "complete <feature-id>",
	GroupID: "features",
	Short:   "Complete a feature, release its locks and score it",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		note, _ := cmd.Flags().GetString("note")
		res, err := api.CompleteFeature(rootCtx, args[0], actor, note)
		if err != nil {
			fatal(err)
		}
		emit(res, func() {
			printDone("Completed %s", ui.RenderAccent(res.Feature.ID))
			if res.ReleasedLocks > 0 {
				fmt.Printf("  Released %d lock(s)\n", res.ReleasedLocks)
			}
			if e := res.Eval; e != nil {
				fmt.Printf("  Score: %.2f %s (efficiency %.2f, quality %.2f)\n", e.Overall, ui.RenderHealth(e.Health), e.Efficiency, e.Quality)
				for _, a := range e.Alerts {
					fmt.Printf("  %s %s: %s\n", ui.RenderAlertLevel(a.Level), a.Type, a.Message)
				}
			}
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:     "cancel <feature-id>",
	GroupID: "features",
	Short:   "Cancel a feature and release its locks",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !jsonOutput && !ui.ConfirmDestructive(fmt.Sprintf("Cancel feature %s?", args[0])) {
			fmt.Println("Aborted.")
			return
		}

		f, err := api.CancelFeature(rootCtx, args[0], actor, reason)
		if err != nil {
			fatal(err)
		}
		emit(f, func() {
			printDone("Cancelled %s", ui.RenderAccent(f.ID))
		})
	},
}

func init() {
	phaseCmd.Flags().String("note", "", "Why the feature is moving")
	completeCmd.Flags().String("note", "", "Completion note")
	cancelCmd.Flags().String("reason", "", "Why the feature is cancelled")
	cancelCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	rootCmd.AddCommand(phaseCmd, completeCmd, cancelCmd)
}
