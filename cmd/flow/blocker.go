package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/ui"
	"github.com/untoldecay/flowctl/internal/workflow"
)

var blockerCmd = &cobra.Command{
	Use:     "blocker",
	GroupID: "features",
	Short:   "Open, escalate and resolve blockers",
	Long: `Open, escalate and resolve blockers.

A feature with any unresolved blocker is BLOCKED and cannot move forward.
Resolving the last one returns it to IN_PROGRESS.`,
}

var blockerCreateCmd = &cobra.Command{
	Use:   "create <feature-id> <title>",
	Short: "Open a blocker on a feature",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		p := workflow.BlockerParams{FeatureID: args[0], Title: args[1]}
		typ, _ := cmd.Flags().GetString("type")
		p.Type = types.BlockerType(strings.ToUpper(typ))
		sev, _ := cmd.Flags().GetString("severity")
		p.Severity = types.Severity(strings.ToUpper(sev))
		p.Description, _ = cmd.Flags().GetString("description")
		if s, _ := cmd.Flags().GetString("phase"); s != "" {
			phase, err := types.ParsePhase(s)
			if err != nil {
				fatal(err)
			}
			p.Phase = phase
		}

		res, err := api.CreateBlocker(rootCtx, p, actor)
		if err != nil {
			fatal(err)
		}
		emit(res, func() {
			printDone("Opened blocker #%d on %s (%s)", res.Blocker.ID, res.Blocker.FeatureID, res.Blocker.Type)
			printBlockerOutcome(res)
		})
	},
}

var blockerResolveCmd = &cobra.Command{
	Use:   "resolve <blocker-id>",
	Short: "Resolve a blocker",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resolution, _ := cmd.Flags().GetString("resolution")
		res, err := api.ResolveBlocker(rootCtx, parseRowID(args[0]), actor, resolution)
		if err != nil {
			fatal(err)
		}
		emit(res, func() {
			printDone("Resolved blocker #%d", res.Blocker.ID)
			printBlockerOutcome(res)
		})
	},
}

var blockerEscalateCmd = &cobra.Command{
	Use:   "escalate <blocker-id>",
	Short: "Escalate a blocker",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		note, _ := cmd.Flags().GetString("note")
		res, err := api.EscalateBlocker(rootCtx, parseRowID(args[0]), actor, note)
		if err != nil {
			fatal(err)
		}
		emit(res, func() {
			printDone("Escalated blocker #%d", res.Blocker.ID)
			printBlockerOutcome(res)
		})
	},
}

var blockerStartCmd = &cobra.Command{
	Use:   "start <blocker-id>",
	Short: "Mark a blocker as being worked on",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		b, err := api.MarkBlockerInProgress(rootCtx, parseRowID(args[0]), actor)
		if err != nil {
			fatal(err)
		}
		emit(b, func() {
			printDone("Blocker #%d is %s", b.ID, b.Status)
		})
	},
}

var blockerListCmd = &cobra.Command{
	Use:   "list [feature-id]",
	Short: "List blockers",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		featureID := ""
		if len(args) == 1 {
			featureID = args[0]
		}
		openOnly, _ := cmd.Flags().GetBool("open")
		blockers, err := api.ListBlockers(rootCtx, featureID, openOnly)
		if err != nil {
			fatal(err)
		}
		emit(blockers, func() {
			if len(blockers) == 0 {
				fmt.Println("No blockers.")
				return
			}
			rows := make([][]string, 0, len(blockers))
			for _, b := range blockers {
				status := string(b.Status)
				if b.Status.IsOpen() {
					status = ui.RenderFail(status)
				}
				rows = append(rows, []string{fmt.Sprint(b.ID), b.FeatureID, string(b.Phase), string(b.Type), string(b.Severity), status, b.Title})
			}
			fmt.Println(ui.NewTable([]string{"ID", "Feature", "Phase", "Type", "Severity", "Status", "Title"}, rows))
		})
	},
}

func printBlockerOutcome(res *workflow.BlockerResult) {
	fmt.Printf("  Feature is %s with %d open blocker(s)\n", ui.RenderFeatureStatus(res.FeatureStatus), res.OpenBlockers)
}

func init() {
	blockerCreateCmd.Flags().StringP("type", "t", string(types.BlockerTechnical), "Blocker type (DEPENDENCY, TECHNICAL, REQUIREMENTS, RESOURCE, EXTERNAL, QUALITY, CONFLICT)")
	blockerCreateCmd.Flags().StringP("severity", "s", string(types.SeverityMedium), "Severity (LOW, MEDIUM, HIGH, CRITICAL)")
	blockerCreateCmd.Flags().StringP("description", "d", "", "Details")
	blockerCreateCmd.Flags().String("phase", "", "Phase the blocker arose in (default: current phase)")
	blockerResolveCmd.Flags().String("resolution", "", "How the blocker was resolved")
	blockerEscalateCmd.Flags().String("note", "", "Escalation note")
	blockerListCmd.Flags().Bool("open", false, "Only unresolved blockers")

	blockerCmd.AddCommand(blockerCreateCmd, blockerResolveCmd, blockerEscalateCmd, blockerStartCmd, blockerListCmd)
	rootCmd.AddCommand(blockerCmd)
}
