package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/ui"
)

var alertCmd = &cobra.Command{
	Use:     "alert",
	GroupID: "evaluation",
	Short:   "List, acknowledge and resolve alerts",
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		var filter types.AlertFilter
		filter.FeatureID, _ = cmd.Flags().GetString("feature")
		typ, _ := cmd.Flags().GetString("type")
		filter.Type = types.AlertType(strings.ToUpper(typ))
		filter.UnresolvedOnly, _ = cmd.Flags().GetBool("unresolved")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		alerts, err := api.ListAlerts(rootCtx, filter)
		if err != nil {
			fatal(err)
		}
		emit(alerts, func() {
			if len(alerts) == 0 {
				fmt.Println("No alerts.")
				return
			}
			rows := make([][]string, 0, len(alerts))
			for _, a := range alerts {
				scope := a.FeatureID
				if scope == "" {
					scope = "system"
				}
				state := "open"
				switch {
				case a.ResolvedAt != nil:
					state = "resolved"
				case a.AcknowledgedAt != nil:
					state = "acknowledged"
				}
				rows = append(rows, []string{fmt.Sprint(a.ID), ui.RenderAlertLevel(a.Level), string(a.Type), scope, state, a.Message})
			}
			fmt.Println(ui.NewTable([]string{"ID", "Level", "Type", "Scope", "State", "Message"}, rows))
		})
	},
}

var alertAckCmd = &cobra.Command{
	Use:     "ack <alert-id>",
	Aliases: []string{"acknowledge"},
	Short:   "Acknowledge an alert",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := api.AcknowledgeAlert(rootCtx, parseRowID(args[0]), actor)
		if err != nil {
			fatal(err)
		}
		emit(a, func() {
			printDone("Acknowledged alert #%d", a.ID)
		})
	},
}

var alertResolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>",
	Short: "Resolve an alert",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		note, _ := cmd.Flags().GetString("note")
		a, err := api.ResolveAlert(rootCtx, parseRowID(args[0]), actor, note)
		if err != nil {
			fatal(err)
		}
		emit(a, func() {
			printDone("Resolved alert #%d", a.ID)
		})
	},
}

func printAlerts(alerts []*types.Alert) {
	for _, a := range alerts {
		fmt.Printf("  %s %s: %s\n", ui.RenderAlertLevel(a.Level), a.Type, a.Message)
	}
}

func init() {
	alertListCmd.Flags().String("feature", "", "Only alerts of this feature")
	alertListCmd.Flags().String("type", "", "HEALTH_DEGRADED, DURATION_OVERRUN, THRASHING or SYSTEM_DEGRADED")
	alertListCmd.Flags().Bool("unresolved", false, "Only unresolved alerts")
	alertListCmd.Flags().Int("limit", 0, "Maximum number of alerts")
	alertResolveCmd.Flags().String("note", "", "Resolution note")

	alertCmd.AddCommand(alertListCmd, alertAckCmd, alertResolveCmd)
	rootCmd.AddCommand(alertCmd)
}
