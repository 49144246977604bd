package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/ui"
)

var learningConflictCmd = &cobra.Command{
	Use:   "conflict",
	Short: "Find and settle conflicting learnings",
	Long: `Find and settle conflicting learnings.

A learning with an OPEN or INVESTIGATING conflict cannot be propagated.`,
}

var learningConflictDetectCmd = &cobra.Command{
	Use:   "detect <learning-id>",
	Short: "Compare a learning against every other current learning",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conflicts, err := api.DetectLearningConflicts(rootCtx, args[0], actor)
		if err != nil {
			fatal(err)
		}
		emit(conflicts, func() {
			if len(conflicts) == 0 {
				printDone("No conflicts for %s", args[0])
				return
			}
			for _, c := range conflicts {
				fmt.Printf("%s #%d %s %s / %s (similarity %.2f)\n", ui.RenderWarn(ui.IconWarn), c.ID, c.Kind, c.LearningA, c.LearningB, c.Similarity)
			}
		})
	},
}

var learningConflictFlagCmd = &cobra.Command{
	Use:   "flag <learning-a> <learning-b>",
	Short: "Record a conflict found by hand",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		k, _ := cmd.Flags().GetString("kind")
		description, _ := cmd.Flags().GetString("description")
		c, err := api.FlagLearningConflict(rootCtx, args[0], args[1], types.LearningConflictKind(strings.ToUpper(k)), description, actor)
		if err != nil {
			fatal(err)
		}
		emit(c, func() {
			printDone("Flagged conflict #%d (%s) between %s and %s", c.ID, c.Kind, c.LearningA, c.LearningB)
		})
	},
}

var learningConflictResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Settle a conflict (RESOLVED, DEFERRED or INVESTIGATING)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, _ := cmd.Flags().GetString("status")
		winner, _ := cmd.Flags().GetString("winner")
		notes, _ := cmd.Flags().GetString("notes")
		c, err := api.ResolveLearningConflict(rootCtx, parseRowID(args[0]), types.LearningConflictStatus(strings.ToUpper(s)), winner, actor, notes)
		if err != nil {
			fatal(err)
		}
		emit(c, func() {
			printDone("Conflict #%d is %s", c.ID, c.Status)
		})
	},
}

var learningConflictListCmd = &cobra.Command{
	Use:   "list [learning-id]",
	Short: "List learning conflicts",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		learningID := ""
		if len(args) == 1 {
			learningID = args[0]
		}
		unresolved, _ := cmd.Flags().GetBool("unresolved")
		conflicts, err := api.ListLearningConflicts(rootCtx, learningID, unresolved)
		if err != nil {
			fatal(err)
		}
		emit(conflicts, func() {
			if len(conflicts) == 0 {
				fmt.Println("No learning conflicts.")
				return
			}
			rows := make([][]string, 0, len(conflicts))
			for _, c := range conflicts {
				rows = append(rows, []string{fmt.Sprint(c.ID), c.LearningA, c.LearningB, string(c.Kind), string(c.Status), c.WinnerID})
			}
			fmt.Println(ui.NewTable([]string{"ID", "A", "B", "Kind", "Status", "Winner"}, rows))
		})
	},
}

func init() {
	learningConflictFlagCmd.Flags().String("kind", string(types.LearningContradiction), "CONTRADICTION, SCOPE_OVERLAP or VERSION_DRIFT")
	learningConflictFlagCmd.Flags().String("description", "", "What conflicts")
	learningConflictResolveCmd.Flags().String("status", string(types.LearningConflictResolved), "RESOLVED, DEFERRED or INVESTIGATING")
	learningConflictResolveCmd.Flags().String("winner", "", "Learning that prevails")
	learningConflictResolveCmd.Flags().String("notes", "", "Resolution notes")
	learningConflictListCmd.Flags().Bool("unresolved", false, "Only OPEN and INVESTIGATING conflicts")

	learningConflictCmd.AddCommand(learningConflictDetectCmd, learningConflictFlagCmd, learningConflictResolveCmd, learningConflictListCmd)
}
