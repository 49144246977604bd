package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/ui"
)

var lockCmd = &cobra.Command{
	Use:     "lock",
	GroupID: "coordination",
	Short:   "Claim and release feature and file locks",
	Long: `Claim and release feature and file locks.

Without a path the whole feature is locked. Locks are advisory; a held lock
cannot be claimed by anyone else until its holder releases it or the feature
completes or is cancelled.`,
}

var lockAcquireCmd = &cobra.Command{
	Use:   "acquire <feature-id> [path]",
	Short: "Claim a file, or the whole feature when no path is given",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		kind, resource := lockTarget(args)
		l, err := api.AcquireLock(rootCtx, args[0], resource, kind, actor)
		if err != nil {
			fatal(err)
		}
		emit(l, func() {
			printDone("Locked %s %s for %s", l.FeatureID, l.Resource, l.Holder)
		})
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release <feature-id> [path]",
	Short: "Release a file lock, or the feature lock when no path is given",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		_, resource := lockTarget(args)
		released, err := api.ReleaseLock(rootCtx, args[0], resource, actor)
		if err != nil {
			fatal(err)
		}
		emit(map[string]bool{"released": released}, func() {
			if released {
				printDone("Released %s %s", args[0], resource)
			} else {
				fmt.Printf("No lock on %s %s\n", args[0], resource)
			}
		})
	},
}

var lockListCmd = &cobra.Command{
	Use:   "list [feature-id]",
	Short: "List held locks",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		featureID := ""
		if len(args) == 1 {
			featureID = args[0]
		}
		locks, err := api.ListLocks(rootCtx, featureID)
		if err != nil {
			fatal(err)
		}
		emit(locks, func() {
			if len(locks) == 0 {
				fmt.Println("No locks held.")
				return
			}
			rows := make([][]string, 0, len(locks))
			for _, l := range locks {
				rows = append(rows, []string{l.FeatureID, string(l.Kind), l.Resource, l.Holder, ui.FormatDuration(time.Since(l.AcquiredAt)) + " ago"})
			}
			fmt.Println(ui.NewTable([]string{"Feature", "Kind", "Resource", "Holder", "Held"}, rows))
		})
	},
}

func lockTarget(args []string) (types.LockKind, string) {
	if len(args) < 2 {
		return types.LockFeature, types.FeatureLockResource
	}
	return types.LockFile, args[1]
}

func init() {
	lockCmd.AddCommand(lockAcquireCmd, lockReleaseCmd, lockListCmd)
	rootCmd.AddCommand(lockCmd)
}
