package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/ui"
)

var conflictCmd = &cobra.Command{
	Use:     "conflict",
	GroupID: "coordination",
	Short:   "Detect and resolve file overlap between active features",
}

var conflictDetectCmd = &cobra.Command{
	Use:   "detect <feature-id> <path>...",
	Short: "Record the files a feature touches and report overlaps",
	Long: `Record the files a feature touches and report overlaps with other
active features. Overlaps in implementation or testing are HIGH risk.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		conflicts, err := api.DetectFileConflicts(rootCtx, args[0], args[1:], actor)
		if err != nil {
			fatal(err)
		}
		emit(conflicts, func() {
			if len(conflicts) == 0 {
				printDone("No overlaps for %s", args[0])
				return
			}
			for _, c := range conflicts {
				fmt.Printf("%s #%d %s overlaps %s on %s (%s risk)\n", ui.RenderWarn(ui.IconWarn), c.ID,
					args[0], c.Other(args[0]), strings.Join(c.Resources, ", "), c.Risk)
			}
		})
	},
}

var conflictResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Resolve a file conflict with a strategy",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s, _ := cmd.Flags().GetString("strategy")
		strategy := types.ResolutionStrategy(strings.ToUpper(s))
		notes, _ := cmd.Flags().GetString("notes")

		c, err := api.ResolveFileConflict(rootCtx, parseRowID(args[0]), strategy, actor, notes)
		if err != nil {
			fatal(err)
		}
		emit(c, func() {
			printDone("Conflict #%d is %s (%s)", c.ID, c.Status, c.Strategy)
		})
	},
}

var conflictListCmd = &cobra.Command{
	Use:   "list [feature-id]",
	Short: "List file conflicts",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		featureID := ""
		if len(args) == 1 {
			featureID = args[0]
		}
		unresolved, _ := cmd.Flags().GetBool("unresolved")
		conflicts, err := api.ListFileConflicts(rootCtx, featureID, unresolved)
		if err != nil {
			fatal(err)
		}
		emit(conflicts, func() {
			if len(conflicts) == 0 {
				fmt.Println("No file conflicts.")
				return
			}
			rows := make([][]string, 0, len(conflicts))
			for _, c := range conflicts {
				rows = append(rows, []string{fmt.Sprint(c.ID), c.FeatureA, c.FeatureB, strings.Join(c.Resources, ", "), string(c.Risk), string(c.Status)})
			}
			fmt.Println(ui.NewTable([]string{"ID", "Feature A", "Feature B", "Files", "Risk", "Status"}, rows))
		})
	},
}

func init() {
	conflictResolveCmd.Flags().String("strategy", string(types.StrategySerialize), "SERIALIZE, COORDINATE or ALLOW_PARALLEL")
	conflictResolveCmd.Flags().String("notes", "", "Resolution notes")
	conflictListCmd.Flags().Bool("unresolved", false, "Only conflicts not yet resolved")

	conflictCmd.AddCommand(conflictDetectCmd, conflictResolveCmd, conflictListCmd)
	rootCmd.AddCommand(conflictCmd)
}
