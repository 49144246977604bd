package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/config"
	"github.com/untoldecay/flowctl/internal/debug"
	"github.com/untoldecay/flowctl/internal/knowledge"
	"github.com/untoldecay/flowctl/internal/logging"
	"github.com/untoldecay/flowctl/internal/rpc"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/storage/sqlite"
)

var (
	dbPath      string
	actor       string
	jsonOutput  bool
	yamlOutput  bool
	noDaemon    bool
	verboseFlag bool
	quietFlag   bool

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc

	// api is the daemon client when one answers, the in-process backend otherwise
	api          rpc.API
	daemonClient *rpc.Client
	directStore  storage.Storage
)

// annotationNoBackend marks commands that never open the database.
const annotationNoBackend = "flow.no-backend"

var rootCmd = &cobra.Command{
	Use:   "flow",
	Short: "flow - workflow control plane for agent-driven development",
	Long: `Tracks features through nine phases, coordinates agents working on them,
curates what they learn and scores how the process is going.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug.SetVerbose(verboseFlag)
		debug.SetQuiet(quietFlag)

		if err := config.Initialize(); err != nil {
			FatalError("%v", err)
		}
		if !cmd.Flags().Changed("json") && config.GetBool(config.KeyJSON) {
			jsonOutput = true
		}
		if !cmd.Flags().Changed("no-daemon") {
			noDaemon = config.GetBool(config.KeyNoDaemon)
		}
		actor = config.GetIdentity(actor)
		if dbPath == "" {
			dbPath = config.DefaultDBPath()
		}
		if abs, err := filepath.Abs(dbPath); err == nil {
			dbPath = abs
		}

		if skipsBackend(cmd) {
			return
		}
		if err := connectBackend(rootCtx); err != nil {
			fatal(err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeBackend()
	},
}

func skipsBackend(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[annotationNoBackend]; ok {
			return true
		}
	}
	return cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete"
}

// flowDir is the directory holding the database, the daemon lock and,
// unless configured otherwise, the daemon socket.
func flowDir() string {
	return filepath.Dir(dbPath)
}

func socketPath() string {
	if p := config.GetString(config.KeyDaemonSocket); p != "" {
		return p
	}
	return rpc.SocketPath(flowDir())
}

// connectBackend routes commands through a running daemon, falling back to
// opening the database directly.
func connectBackend(ctx context.Context) error {
	if !noDaemon {
		client, err := rpc.TryConnect(socketPath(), flowDir())
		switch {
		case err != nil:
			WarnError("%v; using the database directly", err)
		case client != nil:
			daemonClient = client
			api = client
			debug.Logf("Debug: using daemon at %s\n", socketPath())
			return nil
		}
	}
	return ensureDirectMode(ctx)
}

// ensureDirectMode opens the SQLite store and wires the services over it.
func ensureDirectMode(ctx context.Context) error {
	if directStore != nil {
		return nil
	}
	if err := os.MkdirAll(flowDir(), 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", flowDir(), err)
	}
	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	debug.Logf("Debug: direct mode on %s\n", dbPath)
	directStore = store
	api = rpc.NewBackend(store, cliLogger(), knowledge.WithSimilarityThreshold(config.SimilarityThreshold))
	return nil
}

// cliLogger surfaces service logs on stderr only with --verbose.
func cliLogger() *slog.Logger {
	log, _, err := logging.New(logging.Options{Level: "debug", Quiet: !verboseFlag})
	if err != nil {
		return slog.New(slog.DiscardHandler)
	}
	return log
}

func closeBackend() {
	if daemonClient != nil {
		_ = daemonClient.Close()
		daemonClient = nil
	}
	if directStore != nil {
		if err := directStore.Close(); err != nil {
			WarnError("failed to close database: %v", err)
		}
		directStore = nil
	}
	api = nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: .flow/flow.db in the current project)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor recorded on changes (default: $FLOW_ACTOR, git user.name, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&yamlOutput, "yaml", false, "Output in YAML format")
	rootCmd.PersistentFlags().BoolVar(&noDaemon, "no-daemon", false, "Open the database directly even if a daemon is running")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "features", Title: "Features:"},
		&cobra.Group{ID: "coordination", Title: "Coordination:"},
		&cobra.Group{ID: "knowledge", Title: "Knowledge:"},
		&cobra.Group{ID: "evaluation", Title: "Evaluation:"},
		&cobra.Group{ID: "setup", Title: "Setup & Daemon:"},
	)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	rpc.ClientVersion = Version
	rpc.ServerVersion = Version

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.ExecuteContext(rootCtx); err != nil {
		closeBackend()
		reportError(err)
		return 1
	}
	return 0
}
