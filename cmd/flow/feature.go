package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/ui"
	"github.com/untoldecay/flowctl/internal/utils"
	"github.com/untoldecay/flowctl/internal/workflow"
)

var featureCmd = &cobra.Command{
	Use:     "feature",
	GroupID: "features",
	Short:   "Create and inspect features",
}

var featureCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Register a new feature in phase 0 (Planning)",
	Long: `Register a new feature in phase 0 (Planning).

Examples:
  flow feature create "Rate limiting" --complexity 3 --severity HIGH
  flow feature create --form`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		useForm, _ := cmd.Flags().GetBool("form")

		var p workflow.CreateParams
		if useForm {
			fv, err := runFeatureForm()
			if err != nil {
				fatal(err)
			}
			p = fv.params()
		} else {
			if len(args) == 0 {
				FatalError("a feature name is required (or use --form)")
			}
			p.Name = args[0]
			p.ID, _ = cmd.Flags().GetString("id")
			p.Description, _ = cmd.Flags().GetString("description")
			p.EpicID, _ = cmd.Flags().GetString("epic")
			complexity, _ := cmd.Flags().GetInt("complexity")
			p.Complexity = types.Complexity(complexity)
			severity, _ := cmd.Flags().GetString("severity")
			p.Severity = types.Severity(strings.ToUpper(severity))
		}

		f, err := api.CreateFeature(rootCtx, p, actor)
		if err != nil {
			fatal(err)
		}
		emit(f, func() {
			printDone("Created feature %s: %s", ui.RenderAccent(f.ID), f.Name)
			fmt.Printf("  Phase: %s  Complexity: %d  Severity: %s\n", f.CurrentPhase.Label(), f.Complexity, f.Severity)
		})
	},
}

var featureGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one feature",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := api.GetFeature(rootCtx, args[0])
		if err != nil {
			fatal(err)
		}
		emit(f, func() {
			fmt.Printf("%s %s  %s\n", ui.RenderAccent(f.ID), f.Name, ui.RenderFeatureStatus(f.Status))
			fmt.Println(ui.RenderPhaseTrack(f.CurrentPhase))
			fmt.Printf("Phase: %s\nComplexity: %d\nSeverity: %s\n", f.CurrentPhase.Label(), f.Complexity, f.Severity)
			if f.EpicID != "" {
				fmt.Printf("Epic: %s\n", f.EpicID)
			}
			if f.Description != "" {
				fmt.Printf("\n%s\n", f.Description)
			}
			fmt.Printf("\nCreated %s by %s\n", f.CreatedAt.Format(time.RFC3339), f.CreatedBy)
		})
	},
}

var featureListCmd = &cobra.Command{
	Use:   "list",
	Short: "List features",
	Long: `List features, newest first.

Examples:
  flow feature list --status IN_PROGRESS
  flow feature list --phase implementation
  flow feature list --match ratelim`,
	Run: func(cmd *cobra.Command, args []string) {
		var filter types.FeatureFilter
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			status := types.FeatureStatus(strings.ToUpper(s))
			if !status.IsValid() {
				FatalError("invalid status %q", s)
			}
			filter.Status = &status
		}
		if s, _ := cmd.Flags().GetString("phase"); s != "" {
			phase, err := types.ParsePhase(s)
			if err != nil {
				fatal(err)
			}
			filter.Phase = &phase
		}
		filter.EpicID, _ = cmd.Flags().GetString("epic")
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		match, _ := cmd.Flags().GetString("match")

		features, err := api.ListFeatures(rootCtx, filter)
		if err != nil {
			fatal(err)
		}
		features = matchFeatures(features, match)

		emit(features, func() {
			if len(features) == 0 {
				fmt.Println("No features found.")
				return
			}
			rows := make([][]string, 0, len(features))
			for _, f := range features {
				rows = append(rows, []string{f.ID, f.Name, f.CurrentPhase.Label(), ui.RenderFeatureStatus(f.Status), fmt.Sprint(f.Complexity)})
			}
			fmt.Println(ui.NewTable([]string{"ID", "Name", "Phase", "Status", "Cx"}, rows))
		})
	},
}

// matchFeatures keeps features whose ID or name fuzzy-matches pattern.
func matchFeatures(features []*types.Feature, pattern string) []*types.Feature {
	if pattern == "" {
		return features
	}
	out := features[:0:0]
	for _, f := range features {
		if utils.FuzzyMatch(pattern, f.ID) || utils.FuzzyMatch(pattern, f.Name) {
			out = append(out, f)
		}
	}
	return out
}

var featureStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show phase, blockers, gates, locks, conflicts and timing of a feature",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		report, err := api.GetFeatureStatus(rootCtx, args[0])
		if err != nil {
			fatal(err)
		}
		emit(report, func() {
			fmt.Print(ui.RenderStatusReport(report))
		})
	},
}

var featureTransitionsCmd = &cobra.Command{
	Use:   "transitions <id>",
	Short: "Show the phase history of a feature",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		transitions, err := api.GetTransitions(rootCtx, args[0])
		if err != nil {
			fatal(err)
		}
		emit(transitions, func() {
			if len(transitions) == 0 {
				fmt.Println("No transitions yet.")
				return
			}
			rows := make([][]string, 0, len(transitions))
			for _, t := range transitions {
				rows = append(rows, []string{
					t.CreatedAt.Format("2006-01-02 15:04"),
					t.FromPhase.Label() + " → " + t.ToPhase.Label(),
					string(t.Kind), t.Actor, t.Note,
				})
			}
			fmt.Println(ui.NewTable([]string{"When", "Move", "Kind", "Actor", "Note"}, rows))
		})
	},
}

func init() {
	featureCreateCmd.Flags().String("id", "", "Feature ID (default: generated)")
	featureCreateCmd.Flags().StringP("description", "d", "", "Feature description")
	featureCreateCmd.Flags().IntP("complexity", "c", int(types.ComplexityStandard), "Complexity tier (1-3)")
	featureCreateCmd.Flags().StringP("severity", "s", string(types.SeverityMedium), "Severity (LOW, MEDIUM, HIGH, CRITICAL)")
	featureCreateCmd.Flags().String("epic", "", "Parent epic ID")
	featureCreateCmd.Flags().Bool("form", false, "Fill the feature in with an interactive form")

	featureListCmd.Flags().String("status", "", "Filter by status")
	featureListCmd.Flags().String("phase", "", "Filter by phase (number or name)")
	featureListCmd.Flags().String("epic", "", "Filter by epic")
	featureListCmd.Flags().Int("limit", 0, "Maximum number of features")
	featureListCmd.Flags().String("match", "", "Fuzzy match on ID or name")

	featureCmd.AddCommand(featureCreateCmd, featureGetCmd, featureListCmd, featureStatusCmd, featureTransitionsCmd)
	rootCmd.AddCommand(featureCmd)
}
