package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/timeparsing"
	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/ui"
)

var eventsCmd = &cobra.Command{
	Use:     "events <entity-id>",
	GroupID: "features",
	Short:   "Show the audit trail of a feature, learning or alert",
	Long: `Show the audit trail of a feature, learning or alert, newest first.

Examples:
  flow events feat-1
  flow events learn-3 --type learning --since 7d
  flow events 30d --type system --since "last monday"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		entityType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetString("since")

		var cutoff time.Time
		if since != "" {
			t, err := timeparsing.ParseSince(since, time.Now())
			if err != nil {
				fatal(err)
			}
			cutoff = t
		}

		events, err := api.ListEvents(rootCtx, entityType, args[0], limit)
		if err != nil {
			fatal(err)
		}
		events = eventsSince(events, cutoff)

		emit(events, func() {
			if len(events) == 0 {
				fmt.Println("No events.")
				return
			}
			for _, e := range events {
				fmt.Printf("%s %s %s by %s%s\n", ui.RenderMuted(e.CreatedAt.Local().Format("2006-01-02 15:04:05")),
					ui.RenderAccent(string(e.EventType)), e.EntityID, e.Actor, eventDetail(e))
			}
		})
	},
}

// eventsSince drops events older than cutoff; a zero cutoff keeps all.
func eventsSince(events []*types.Event, cutoff time.Time) []*types.Event {
	if cutoff.IsZero() {
		return events
	}
	kept := events[:0:0]
	for _, e := range events {
		if !e.CreatedAt.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}

func eventDetail(e *types.Event) string {
	var s string
	switch {
	case e.OldValue != nil && e.NewValue != nil:
		s = fmt.Sprintf(": %s → %s", *e.OldValue, *e.NewValue)
	case e.NewValue != nil:
		s = ": " + *e.NewValue
	}
	if e.Comment != nil && *e.Comment != "" {
		s += fmt.Sprintf(" (%s)", *e.Comment)
	}
	return s
}

func init() {
	eventsCmd.Flags().String("type", types.EntityFeature, "Entity type: feature, learning, conflict, alert or system")
	eventsCmd.Flags().Int("limit", 50, "Maximum number of events")
	eventsCmd.Flags().String("since", "", "Only events after this time (7d, yesterday, 2026-01-02)")
	rootCmd.AddCommand(eventsCmd)
}
