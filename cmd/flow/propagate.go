package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/knowledge"
	"github.com/untoldecay/flowctl/internal/manifest"
	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/ui"
)

var propagateCmd = &cobra.Command{
	Use:     "propagate",
	GroupID: "knowledge",
	Short:   "Push trusted learnings into docs, skills and agent configs",
	Long: `Push trusted learnings into docs, skills and agent configs.

A learning is eligible once its confidence reaches 0.80 and it has no
unresolved conflicts. Targets below 0.60 relevance are never propagated.`,
}

var propagateCheckCmd = &cobra.Command{
	Use:   "check <learning-id>",
	Short: "Report whether a learning may be propagated",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := api.CheckEligibility(rootCtx, args[0])
		if err != nil {
			fatal(err)
		}
		emit(e, func() { printEligibility(e) })
	},
}

func printEligibility(e *types.Eligibility) {
	if e.Eligible {
		fmt.Printf("%s %s is eligible (confidence %.2f)\n", ui.RenderPass(ui.IconPass), e.LearningID, e.Confidence)
		return
	}
	fmt.Printf("%s %s is not eligible (confidence %.2f)\n", ui.RenderFail(ui.IconFail), e.LearningID, e.Confidence)
	for _, r := range e.Reasons {
		fmt.Printf("  - %s\n", r)
	}
}

var propagateDeclareCmd = &cobra.Command{
	Use:   "declare <learning-id> <kind> [path]",
	Short: "Declare where a learning should be propagated",
	Long: `Declare where a learning should be propagated.

Kinds: GLOBAL_NOTE (no path), PROJECT_DOC, SKILL, AGENT_CONFIG, TEMPLATE.`,
	Args: cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		kind, path := propagationTarget(args)
		relevance, _ := cmd.Flags().GetFloat64("relevance")
		res, err := api.DeclarePropagationTarget(rootCtx, args[0], kind, path, relevance, actor)
		if err != nil {
			fatal(err)
		}
		emit(res, func() { printDeclared(res) })
	},
}

func printDeclared(res *types.DeclareTargetResult) {
	t := res.Target
	if res.Created {
		printDone("Declared %s %s for %s (relevance %.2f)", t.Kind, t.Path, t.LearningID, t.Relevance)
	} else {
		fmt.Printf("Already declared: %s %s for %s\n", t.Kind, t.Path, t.LearningID)
	}
}

var propagateImportCmd = &cobra.Command{
	Use:   "import <manifest>",
	Short: "Declare targets listed in a TOML or YAML manifest",
	Long: `Declare targets listed in a TOML or YAML manifest.

Example flow-targets.toml:

  learning = "learn-1"

  [[target]]
  kind = "PROJECT_DOC"
  path = "docs/storage.md"
  relevance = 0.9

  [[target]]
  kind = "GLOBAL_NOTE"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m, err := manifest.Load(args[0])
		if err != nil {
			fatal(err)
		}
		results, err := manifest.Apply(rootCtx, api, m, actor)
		if err != nil {
			for _, res := range results {
				printDeclared(res)
			}
			fatal(err)
		}
		emit(results, func() {
			for _, res := range results {
				printDeclared(res)
			}
		})
	},
}

var propagateQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List eligible learnings with targets still to propagate",
	Run: func(cmd *cobra.Command, args []string) {
		queue, err := api.GetPropagationQueue(rootCtx)
		if err != nil {
			fatal(err)
		}
		emit(queue, func() {
			if len(queue) == 0 {
				fmt.Println("Nothing to propagate.")
				return
			}
			rows := make([][]string, 0, len(queue))
			for _, q := range queue {
				rows = append(rows, []string{q.LearningID, q.Title, fmt.Sprintf("%.2f", q.Confidence), string(q.Kind), q.Path, fmt.Sprintf("%.2f", q.Relevance)})
			}
			fmt.Println(ui.NewTable([]string{"Learning", "Title", "Confidence", "Kind", "Path", "Relevance"}, rows))
		})
	},
}

var propagateRecordCmd = &cobra.Command{
	Use:   "record <learning-id> <kind> [path]",
	Short: "Record that a learning was written into a target",
	Args:  cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		kind, path := propagationTarget(args)
		section, _ := cmd.Flags().GetString("section")
		res, err := api.RecordPropagation(rootCtx, knowledge.RecordParams{
			LearningID: args[0],
			Kind:       kind,
			Path:       path,
			Actor:      actor,
			Section:    section,
		})
		if err != nil {
			fatal(err)
		}
		emit(res, func() {
			switch {
			case res.AlreadyRecorded:
				fmt.Printf("Already recorded: %s %s\n", kind, path)
			case res.Recorded:
				printDone("Recorded %s %s for %s", kind, path, args[0])
			default:
				fmt.Println("Not recorded.")
				if res.Eligibility != nil {
					printEligibility(res.Eligibility)
				}
			}
			if res.FullyPropagated {
				fmt.Printf("  %s is fully propagated\n", args[0])
			}
		})
	},
}

var propagateStatusCmd = &cobra.Command{
	Use:   "status <learning-id>",
	Short: "Show declared, completed and pending targets of a learning",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		st, err := api.GetPropagationStatus(rootCtx, args[0])
		if err != nil {
			fatal(err)
		}
		emit(st, func() {
			fmt.Printf("%s: %d declared, %d completed, %d pending\n", st.LearningID, len(st.Declared), len(st.Completed), len(st.Pending))
			for _, r := range st.Completed {
				fmt.Printf("  %s %s %s\n", ui.RenderPass(ui.IconPass), r.Kind, r.Path)
			}
			for _, t := range st.Pending {
				fmt.Printf("  %s %s %s\n", ui.RenderMuted(ui.IconSkip), t.Kind, t.Path)
			}
			if st.FullyPropagated {
				fmt.Println(ui.RenderPass("fully propagated"))
			}
		})
	},
}

var propagateSyncsCmd = &cobra.Command{
	Use:   "syncs",
	Short: "List targets holding a superseded iteration of a learning",
	Run: func(cmd *cobra.Command, args []string) {
		items, err := api.GetPendingEvolutionSyncs(rootCtx)
		if err != nil {
			fatal(err)
		}
		emit(items, func() {
			if len(items) == 0 {
				fmt.Println("All propagated learnings are current.")
				return
			}
			rows := make([][]string, 0, len(items))
			for _, it := range items {
				rows = append(rows, []string{string(it.Kind), it.Path,
					fmt.Sprintf("%s (#%d)", it.StaleLearningID, it.StaleIteration),
					fmt.Sprintf("%s (#%d)", it.CurrentLearningID, it.CurrentIteration)})
			}
			fmt.Println(ui.NewTable([]string{"Kind", "Path", "Stale", "Current"}, rows))
		})
	},
}

func propagationTarget(args []string) (types.TargetKind, string) {
	kind := types.TargetKind(strings.ToUpper(args[1]))
	path := ""
	if len(args) > 2 {
		path = args[2]
	}
	return kind, path
}

func init() {
	propagateDeclareCmd.Flags().Float64("relevance", manifest.DefaultRelevance, "How relevant the target is (0-1)")
	propagateRecordCmd.Flags().String("section", "", "Section of the target that was updated")

	propagateCmd.AddCommand(propagateCheckCmd, propagateDeclareCmd, propagateImportCmd, propagateQueueCmd,
		propagateRecordCmd, propagateStatusCmd, propagateSyncsCmd)
	rootCmd.AddCommand(propagateCmd)
}
