package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/ui"
	"github.com/untoldecay/flowctl/internal/workflow"
)

var gateCmd = &cobra.Command{
	Use:     "gate",
	GroupID: "features",
	Short:   "Record quality gate decisions",
}

func gateDecisionCmd(use string, status types.GateStatus) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <feature-id> <gate-name>",
		Short: fmt.Sprintf("Record the gate as %s in the current phase", status),
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			approver, _ := cmd.Flags().GetString("approver")
			if approver == "" {
				approver = actor
			}
			notes, _ := cmd.Flags().GetString("notes")
			g, err := api.EvaluateGate(rootCtx, workflow.GateParams{
				FeatureID: args[0],
				Name:      args[1],
				Status:    status,
				Approver:  approver,
				Notes:     notes,
			})
			if err != nil {
				fatal(err)
			}
			emit(g, func() {
				printDone("Gate %q %s for %s (phase %s, attempt %d)", g.Name, strings.ToLower(string(g.Status)), g.FeatureID, g.Phase.Label(), g.Attempt)
			})
		},
	}
	cmd.Flags().String("approver", "", "Who decided (default: the actor)")
	cmd.Flags().String("notes", "", "Decision notes")
	return cmd
}

var gateListCmd = &cobra.Command{
	Use:   "list <feature-id>",
	Short: "List gate decisions of a feature",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		gates, err := api.ListGates(rootCtx, args[0])
		if err != nil {
			fatal(err)
		}
		emit(gates, func() {
			if len(gates) == 0 {
				fmt.Println("No gates recorded.")
				return
			}
			rows := make([][]string, 0, len(gates))
			for _, g := range gates {
				status := string(g.Status)
				switch g.Status {
				case types.GateApproved:
					status = ui.RenderPass(status)
				case types.GateRejected:
					status = ui.RenderFail(status)
				}
				rows = append(rows, []string{g.Name, g.Phase.Label(), fmt.Sprint(g.Attempt), status, g.Approver, g.Notes})
			}
			fmt.Println(ui.NewTable([]string{"Gate", "Phase", "Attempt", "Status", "Approver", "Notes"}, rows))
		})
	},
}

func init() {
	gateCmd.AddCommand(
		gateDecisionCmd("approve", types.GateApproved),
		gateDecisionCmd("reject", types.GateRejected),
		gateDecisionCmd("pending", types.GatePending),
		gateListCmd,
	)
	rootCmd.AddCommand(gateCmd)
}
