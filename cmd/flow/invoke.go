package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/tracker"
	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/ui"
)

var invokeCmd = &cobra.Command{
	Use:     "invoke",
	GroupID: "coordination",
	Short:   "Track agent invocations and phase durations",
}

var invokeStartCmd = &cobra.Command{
	Use:   "start <feature-id>",
	Short: "Start timing an agent invocation; prints its handle",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := tracker.StartParams{FeatureID: args[0], Actor: actor}
		p.Operation, _ = cmd.Flags().GetString("operation")
		p.Aids, _ = cmd.Flags().GetStringSlice("aid")
		if s, _ := cmd.Flags().GetString("phase"); s != "" {
			phase, err := types.ParsePhase(s)
			if err != nil {
				fatal(err)
			}
			p.Phase = phase
		}

		inv, err := api.StartInvocation(rootCtx, p)
		if err != nil {
			fatal(err)
		}
		emit(inv, func() {
			if quietFlag {
				fmt.Println(inv.ID)
				return
			}
			printDone("Started invocation %d on %s in phase %s", inv.ID, inv.FeatureID, inv.Phase.Label())
		})
	},
}

var invokeEndCmd = &cobra.Command{
	Use:   "end <invocation-id>",
	Short: "Stop timing an invocation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		inv, err := api.EndInvocation(rootCtx, parseRowID(args[0]), actor)
		if err != nil {
			fatal(err)
		}
		emit(inv, func() {
			printDone("Invocation %d took %s", inv.ID, ui.FormatDuration(inv.Duration()))
		})
	},
}

var invokeListCmd = &cobra.Command{
	Use:   "list <feature-id>",
	Short: "List invocations of a feature",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		invs, err := api.ListInvocations(rootCtx, args[0])
		if err != nil {
			fatal(err)
		}
		emit(invs, func() {
			if len(invs) == 0 {
				fmt.Println("No invocations.")
				return
			}
			rows := make([][]string, 0, len(invs))
			for _, inv := range invs {
				took := ui.RenderMuted("running")
				if inv.EndedAt != nil {
					took = ui.FormatDuration(inv.Duration())
				}
				rows = append(rows, []string{fmt.Sprint(inv.ID), inv.Phase.Label(), inv.Actor, inv.Operation, inv.StartedAt.Format(time.RFC3339), took})
			}
			fmt.Println(ui.NewTable([]string{"ID", "Phase", "Actor", "Operation", "Started", "Took"}, rows))
		})
	},
}

var invokeDurationsCmd = &cobra.Command{
	Use:   "durations <feature-id>",
	Short: "Show time spent per phase",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ds, err := api.PhaseDurations(rootCtx, args[0])
		if err != nil {
			fatal(err)
		}
		emit(ds, func() {
			if len(ds) == 0 {
				fmt.Println("No time recorded.")
				return
			}
			rows := make([][]string, 0, len(ds))
			for _, d := range ds {
				rows = append(rows, []string{d.Phase.Label(), fmt.Sprint(d.Visits), ui.FormatDuration(d.WallTime), ui.FormatDuration(d.InvocationTime), fmt.Sprint(d.Invocations)})
			}
			fmt.Println(ui.NewTable([]string{"Phase", "Visits", "Wall", "Agent", "Runs"}, rows))
		})
	},
}

func init() {
	invokeStartCmd.Flags().String("operation", "", "What the agent is doing")
	invokeStartCmd.Flags().StringSlice("aid", nil, "Learnings or tools used (repeatable)")
	invokeStartCmd.Flags().String("phase", "", "Phase of the work (default: current phase)")

	invokeCmd.AddCommand(invokeStartCmd, invokeEndCmd, invokeListCmd, invokeDurationsCmd)
	rootCmd.AddCommand(invokeCmd)
}
