package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/knowledge"
	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/ui"
	"github.com/untoldecay/flowctl/internal/utils"
)

var learningCmd = &cobra.Command{
	Use:     "learning",
	Aliases: []string{"learn"},
	GroupID: "knowledge",
	Short:   "Record, evolve and validate learnings",
}

var learningCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Record a new learning",
	Long: `Record a new learning. Confidence starts at 0.50 unless given.

Examples:
  flow learning create "Retry busy writers" --category PATTERN \
      --content "Use BEGIN IMMEDIATE with backoff" --tag sqlite --feature feat-1`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := knowledge.CreateParams{Title: args[0]}
		p.ID, _ = cmd.Flags().GetString("id")
		category, _ := cmd.Flags().GetString("category")
		p.Category = types.LearningCategory(strings.ToUpper(category))
		p.Content, _ = cmd.Flags().GetString("content")
		importance, _ := cmd.Flags().GetString("importance")
		p.Importance = types.Severity(strings.ToUpper(importance))
		p.Tags, _ = cmd.Flags().GetStringSlice("tag")
		p.FeatureID, _ = cmd.Flags().GetString("feature")
		if cmd.Flags().Changed("confidence") {
			c, _ := cmd.Flags().GetFloat64("confidence")
			p.Confidence = &c
		}
		if s, _ := cmd.Flags().GetString("phase"); s != "" {
			phase, err := types.ParsePhase(s)
			if err != nil {
				fatal(err)
			}
			p.Phase = phase
		}

		l, err := api.CreateLearning(rootCtx, p, actor)
		if err != nil {
			fatal(err)
		}
		emit(l, func() {
			printDone("Recorded learning %s (%s, confidence %.2f)", ui.RenderAccent(l.ID), l.Category, l.Confidence)
		})
	},
}

var learningGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one learning",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		l, err := api.GetLearning(rootCtx, args[0])
		if err != nil {
			fatal(err)
		}
		emit(l, func() { printLearning(l) })
	},
}

func printLearning(l *types.Learning) {
	fmt.Printf("%s %s  %s\n", ui.RenderAccent(l.ID), l.Title, ui.RenderCategory(string(l.Category)))
	fmt.Printf("Confidence: %.2f (%d validations, %d references)\n", l.Confidence, l.ValidationCount, l.ReferenceCount)
	fmt.Printf("Importance: %s  Iteration: %d\n", l.Importance, l.IterationNumber)
	if l.IsSuperseded {
		fmt.Printf("Superseded by %s\n", l.SuccessorID)
	}
	if len(l.Tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(l.Tags, ", "))
	}
	if l.FeatureID != "" {
		fmt.Printf("Feature: %s\n", l.FeatureID)
	}
	fmt.Printf("\n%s\n", l.Content)
}

var learningListCmd = &cobra.Command{
	Use:   "list",
	Short: "List current learnings",
	Run: func(cmd *cobra.Command, args []string) {
		var filter types.LearningFilter
		if s, _ := cmd.Flags().GetString("category"); s != "" {
			c := types.LearningCategory(strings.ToUpper(s))
			if !c.IsValid() {
				FatalError("invalid category %q", s)
			}
			filter.Category = &c
		}
		filter.FeatureID, _ = cmd.Flags().GetString("feature")
		filter.Tag, _ = cmd.Flags().GetString("tag")
		filter.MinConfidence, _ = cmd.Flags().GetFloat64("min-confidence")
		filter.IncludeSuperseded, _ = cmd.Flags().GetBool("all")
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		match, _ := cmd.Flags().GetString("match")

		learnings, err := api.ListLearnings(rootCtx, filter)
		if err != nil {
			fatal(err)
		}
		if match != "" {
			kept := learnings[:0:0]
			for _, l := range learnings {
				if utils.FuzzyMatch(match, l.Title) || utils.FuzzyMatch(match, l.ID) {
					kept = append(kept, l)
				}
			}
			learnings = kept
		}

		emit(learnings, func() {
			if len(learnings) == 0 {
				fmt.Println("No learnings found.")
				return
			}
			rows := make([][]string, 0, len(learnings))
			for _, l := range learnings {
				rows = append(rows, []string{l.ID, string(l.Category), l.Title, fmt.Sprintf("%.2f", l.Confidence), fmt.Sprint(l.IterationNumber)})
			}
			fmt.Println(ui.NewTable([]string{"ID", "Category", "Title", "Confidence", "Iter"}, rows))
		})
	},
}

var learningChainCmd = &cobra.Command{
	Use:   "chain <id>",
	Short: "Show every iteration of a learning, oldest first",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		chain, err := api.Chain(rootCtx, args[0])
		if err != nil {
			fatal(err)
		}
		emit(chain, func() {
			for _, l := range chain {
				marker := ui.RenderPass("current")
				if l.IsSuperseded {
					marker = ui.RenderMuted("superseded")
				}
				fmt.Printf("%d. %s %s [%s]\n", l.IterationNumber, l.ID, l.Title, marker)
				if l.DeltaSummary != "" {
					fmt.Printf("   %s\n", l.DeltaSummary)
				}
			}
		})
	},
}

var learningEvolveCmd = &cobra.Command{
	Use:   "evolve <id>",
	Short: "Append a new iteration to a learning",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := knowledge.EvolveParams{PredecessorID: args[0]}
		p.Title, _ = cmd.Flags().GetString("title")
		p.Content, _ = cmd.Flags().GetString("content")
		p.DeltaSummary, _ = cmd.Flags().GetString("delta")
		if cmd.Flags().Changed("tag") {
			p.Tags, _ = cmd.Flags().GetStringSlice("tag")
		}
		l, err := api.Evolve(rootCtx, p, actor)
		if err != nil {
			fatal(err)
		}
		emit(l, func() {
			printDone("Evolved %s into %s (iteration %d)", args[0], ui.RenderAccent(l.ID), l.IterationNumber)
		})
	},
}

var learningValidateCmd = &cobra.Command{
	Use:   "validate <id>",
	Short: "Confirm a learning held up (+0.15 confidence per validation, capped at 1.00)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		l, err := api.ValidateLearning(rootCtx, args[0], actor)
		if err != nil {
			fatal(err)
		}
		emit(l, func() {
			printDone("Validated %s, confidence now %.2f", l.ID, l.Confidence)
		})
	},
}

var learningReferenceCmd = &cobra.Command{
	Use:   "reference <id>",
	Short: "Record that a learning was used (+0.10 confidence)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		l, err := api.ReferenceLearning(rootCtx, args[0], actor)
		if err != nil {
			fatal(err)
		}
		emit(l, func() {
			printDone("Referenced %s, confidence now %.2f", l.ID, l.Confidence)
		})
	},
}

func init() {
	learningCreateCmd.Flags().String("id", "", "Learning ID (default: generated)")
	learningCreateCmd.Flags().String("category", string(types.CategoryPattern), "PATTERN, ANTI_PATTERN, DECISION, GOTCHA, PERFORMANCE, SECURITY, TESTING, TOOLING or PROCESS")
	learningCreateCmd.Flags().String("content", "", "What was learned (required)")
	learningCreateCmd.Flags().Float64("confidence", types.DefaultConfidence, "Initial confidence (0-1)")
	learningCreateCmd.Flags().String("importance", string(types.SeverityMedium), "LOW, MEDIUM, HIGH or CRITICAL")
	learningCreateCmd.Flags().StringSlice("tag", nil, "Tag (repeatable)")
	learningCreateCmd.Flags().String("feature", "", "Feature the learning came from")
	learningCreateCmd.Flags().String("phase", "", "Phase the learning came from")

	learningListCmd.Flags().String("category", "", "Filter by category")
	learningListCmd.Flags().String("feature", "", "Filter by source feature")
	learningListCmd.Flags().String("tag", "", "Filter by tag")
	learningListCmd.Flags().Float64("min-confidence", 0, "Minimum confidence")
	learningListCmd.Flags().Bool("all", false, "Include superseded iterations")
	learningListCmd.Flags().Int("limit", 0, "Maximum number of learnings")
	learningListCmd.Flags().String("match", "", "Fuzzy match on ID or title")

	learningEvolveCmd.Flags().String("title", "", "New title (default: keep)")
	learningEvolveCmd.Flags().String("content", "", "New content (required)")
	learningEvolveCmd.Flags().String("delta", "", "What changed since the previous iteration")
	learningEvolveCmd.Flags().StringSlice("tag", nil, "Replace the tags (repeatable)")

	learningCmd.AddCommand(learningCreateCmd, learningGetCmd, learningListCmd, learningChainCmd,
		learningEvolveCmd, learningValidateCmd, learningReferenceCmd, learningConflictCmd)
	rootCmd.AddCommand(learningCmd)
}
