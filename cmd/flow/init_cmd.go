package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/config"
	"github.com/untoldecay/flowctl/internal/storage/sqlite"
)

const configTemplate = `# flow configuration
# Every key can be overridden with a FLOW_* environment variable.

# actor: alice
# no-daemon: false

knowledge:
  similarity-threshold: 0.70

daemon:
  log-level: info
  request-timeout: 30s
  max-conns: 100
  health-interval: 0s
`

var initCmd = &cobra.Command{
	Use:         "init",
	GroupID:     "setup",
	Short:       "Create a .flow directory with a config file and database",
	Annotations: map[string]string{annotationNoBackend: ""},
	Args:        cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fatal(err)
		}
		dir := filepath.Join(cwd, config.DirName)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			fatal(fmt.Errorf("failed to create %s: %w", dir, err))
		}

		configPath := filepath.Join(dir, "config.yaml")
		wroteConfig := false
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			if err := os.WriteFile(configPath, []byte(configTemplate), 0o600); err != nil {
				fatal(fmt.Errorf("failed to write config.yaml: %w", err))
			}
			wroteConfig = true
		}

		path := dbPath
		if !cmd.Flags().Changed("db") && config.GetString(config.KeyDB) == "" {
			path = filepath.Join(dir, "flow.db")
		}
		store, err := sqlite.New(rootCtx, path)
		if err != nil {
			fatal(fmt.Errorf("failed to create database: %w", err))
		}
		if err := store.Close(); err != nil {
			fatal(err)
		}

		emit(map[string]interface{}{"dir": dir, "database": path, "config_created": wroteConfig}, func() {
			printDone("Initialized flow in %s", dir)
			fmt.Printf("  Database: %s\n", path)
			if wroteConfig {
				fmt.Printf("  Config: %s\n", configPath)
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
