package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/rpc"
)

var (
	// Version is the current version of flow (overridden by ldflags at build time)
	Version = "0.9.0"
	// Build can be set via ldflags at compile time
	Build = "dev"
	// Commit is the git revision the binary was built from (optional ldflag)
	Commit = ""
)

var versionCmd = &cobra.Command{
	Use:         "version",
	GroupID:     "setup",
	Short:       "Print version information",
	Annotations: map[string]string{annotationNoBackend: ""},
	Run: func(cmd *cobra.Command, args []string) {
		checkDaemon, _ := cmd.Flags().GetBool("daemon")
		if checkDaemon {
			showDaemonVersion()
			return
		}

		commit := resolveCommitHash()
		result := map[string]string{"version": Version, "build": Build}
		if commit != "" {
			result["commit"] = commit
		}
		emit(result, func() {
			if commit != "" {
				fmt.Printf("flow version %s (%s: %s)\n", Version, Build, shortCommit(commit))
			} else {
				fmt.Printf("flow version %s (%s)\n", Version, Build)
			}
		})
	},
}

func showDaemonVersion() {
	client, err := rpc.TryConnect(socketPath(), flowDir())
	if err != nil {
		fatal(err)
	}
	if client == nil {
		FatalError("daemon is not running (start it with 'flow serve')")
	}
	defer func() { _ = client.Close() }()

	health, err := client.Health(rootCtx)
	if err != nil {
		fatal(err)
	}
	emit(map[string]interface{}{
		"daemon_version": health.Version,
		"client_version": Version,
		"compatible":     health.Compatible,
	}, func() {
		fmt.Printf("Daemon version: %s\n", health.Version)
		fmt.Printf("Client version: %s\n", Version)
		if !health.Compatible {
			fmt.Println("Warning: daemon and client versions are incompatible")
		}
	})
}

func resolveCommitHash() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return ""
}

func shortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func init() {
	versionCmd.Flags().Bool("daemon", false, "Check daemon version and compatibility")
	rootCmd.AddCommand(versionCmd)
}
