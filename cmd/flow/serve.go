package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/flowctl/internal/config"
	"github.com/untoldecay/flowctl/internal/knowledge"
	"github.com/untoldecay/flowctl/internal/lockfile"
	"github.com/untoldecay/flowctl/internal/logging"
	"github.com/untoldecay/flowctl/internal/rpc"
	"github.com/untoldecay/flowctl/internal/storage/sqlite"
	"github.com/untoldecay/flowctl/internal/telemetry"
)

// daemonActor is recorded on snapshots the daemon takes on its own.
const daemonActor = "flow-daemon"

var serveCmd = &cobra.Command{
	Use:         "serve",
	GroupID:     "setup",
	Short:       "Run the flow daemon for this project",
	Annotations: map[string]string{annotationNoBackend: ""},
	Long: `Run the flow daemon for this project in the foreground.

Commands in the same project talk to the daemon over a Unix socket instead
of opening the database themselves. Only one daemon runs per database.

Configuration (config.yaml or FLOW_* environment variables):
  daemon.log-file             log path (default: .flow/daemon.log)
  daemon.log-level            debug, info, warn or error
  daemon.log-max-size-mb      rotate the log at this size
  daemon.request-timeout      per-request deadline
  daemon.max-conns            concurrent connections
  daemon.health-interval      take system health snapshots this often (0 = never)
  knowledge.similarity-threshold  reloaded when config.yaml changes`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := serveOptions{
			logLevel:       config.GetString(config.KeyDaemonLogLevel),
			healthInterval: config.GetDuration(config.KeyHealthInterval),
		}
		if cmd.Flags().Changed("log-level") {
			opts.logLevel, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("health-interval") {
			opts.healthInterval, _ = cmd.Flags().GetDuration("health-interval")
		}
		if err := runDaemon(rootCtx, opts); err != nil {
			fatal(err)
		}
	},
}

type serveOptions struct {
	logLevel       string
	healthInterval time.Duration
}

func daemonLogPath() string {
	if p := config.GetString(config.KeyDaemonLogFile); p != "" {
		return p
	}
	return filepath.Join(flowDir(), "daemon.log")
}

// runDaemon serves the project database until ctx is cancelled or a client
// asks for shutdown.
func runDaemon(ctx context.Context, opts serveOptions) error {
	sock := socketPath()
	lock, err := lockfile.Acquire(flowDir(), lockfile.LockInfo{Database: dbPath, Socket: sock, Version: Version})
	if errors.Is(err, lockfile.ErrLocked) {
		if info, infoErr := lockfile.ReadLockInfo(flowDir()); infoErr == nil {
			return fmt.Errorf("daemon already running (pid %d, socket %s)", info.PID, info.Socket)
		}
		return err
	}
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	log, closer, err := logging.New(logging.Options{
		Path:       daemonLogPath(),
		MaxSizeMB:  config.GetInt(config.KeyDaemonLogMaxSizeMB),
		MaxBackups: config.GetInt(config.KeyDaemonLogMaxBackups),
		MaxAgeDays: config.GetInt(config.KeyDaemonLogMaxAgeDays),
		Compress:   config.GetBool(config.KeyDaemonLogCompress),
		Level:      opts.logLevel,
		Quiet:      quietFlag,
	})
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	if err := telemetry.Init(ctx, "flow", Version); err != nil {
		log.Warn("telemetry disabled", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("closing database", "error", err)
		}
	}()

	backend := rpc.NewBackend(store, log, knowledge.WithSimilarityThreshold(config.SimilarityThreshold))
	server := rpc.NewServer(sock, backend, log.With("component", "rpc"),
		rpc.WithMaxConns(config.GetInt(config.KeyDaemonMaxConns)),
		rpc.WithRequestTimeout(config.GetDuration(config.KeyDaemonReqTimeout)),
	)

	if config.Watch(func() {
		log.Info("config reloaded", "similarity_threshold", config.SimilarityThreshold())
	}) {
		log.Info("watching config", "path", config.ConfigFileUsed())
	}

	log.Info("daemon starting", "version", Version, "database", dbPath, "socket", sock)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		// a shutdown request ends Start without cancelling gctx
		defer stop()
		return server.Start(gctx)
	})
	if opts.healthInterval > 0 {
		g.Go(func() error {
			runHealthSnapshots(gctx, backend, opts.healthInterval, log)
			return nil
		})
	}
	err = g.Wait()
	log.Info("daemon stopped")
	return err
}

// runHealthSnapshots takes system health snapshots every interval until ctx
// is done.
func runHealthSnapshots(ctx context.Context, api rpc.API, every time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evals, err := api.ComputeAllWindows(ctx, daemonActor)
			if err != nil {
				if ctx.Err() == nil {
					log.Error("health snapshot failed", "error", err)
				}
				continue
			}
			for _, e := range evals {
				log.Info("health snapshot", "window_days", e.WindowDays, "overall", e.Overall, "health", e.Health, "alerts", len(e.Alerts))
			}
		}
	}
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the running daemon to shut down",
	Run: func(cmd *cobra.Command, args []string) {
		client := connectDaemon()
		defer func() { _ = client.Close() }()
		if err := client.Shutdown(rootCtx); err != nil {
			fatal(err)
		}
		emit(map[string]bool{"stopped": true}, func() {
			printDone("Daemon stopped")
		})
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and request metrics",
	Run: func(cmd *cobra.Command, args []string) {
		client, err := rpc.TryConnect(socketPath(), flowDir())
		if err != nil {
			fatal(err)
		}
		if client == nil {
			emit(map[string]bool{"running": false}, func() {
				fmt.Println("Daemon is not running.")
			})
			return
		}
		defer func() { _ = client.Close() }()

		status, err := client.Status(rootCtx)
		if err != nil {
			fatal(err)
		}
		metrics, err := client.Metrics(rootCtx)
		if err != nil {
			fatal(err)
		}
		emit(map[string]interface{}{"running": true, "status": status, "metrics": metrics}, func() {
			fmt.Printf("Daemon %s (pid %d) up %.0fs\n", status.Version, status.PID, status.UptimeSeconds)
			fmt.Printf("  Database: %s\n  Socket: %s\n", status.DatabasePath, status.SocketPath)
			fmt.Printf("  Connections: %d active of %d\n", status.ActiveConns, status.MaxConns)
			for _, op := range metrics.Operations {
				fmt.Printf("  %-28s %6d calls %4d errors  p95 %.1fms\n", op.Operation, op.TotalCount, op.ErrorCount, op.Latency.P95MS)
			}
		})
	},
}

func connectDaemon() *rpc.Client {
	client, err := rpc.TryConnect(socketPath(), flowDir())
	if err != nil {
		fatal(err)
	}
	if client == nil {
		FatalError("daemon is not running")
	}
	return client
}

func init() {
	serveCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().Duration("health-interval", 0, "Take system health snapshots this often (0 = never)")

	serveCmd.AddCommand(serveStopCmd, serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}
