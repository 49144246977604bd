package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/untoldecay/flowctl/internal/config"
	"github.com/untoldecay/flowctl/internal/ui"
)

var configCmd = &cobra.Command{
	Use:         "config",
	GroupID:     "setup",
	Short:       "Inspect and change configuration",
	Annotations: map[string]string{annotationNoBackend: ""},
	Long: `Inspect and change configuration.

Settings come from .flow/config.yaml, then ~/.config/flow/config.yaml, and
can be overridden with FLOW_* environment variables (dots and dashes become
underscores, e.g. FLOW_KNOWLEDGE_SIMILARITY_THRESHOLD).

Examples:
  flow config show
  flow config get knowledge.similarity-threshold
  flow config set daemon.health-interval 15m`,
}

type configEntry struct {
	Key    string              `json:"key"`
	Value  interface{}         `json:"value"`
	Source config.ConfigSource `json:"source"`
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show every setting and where it came from",
	Run: func(cmd *cobra.Command, args []string) {
		entries := configEntries()
		emit(entries, func() {
			if used := config.ConfigFileUsed(); used != "" {
				fmt.Printf("Config file: %s\n", used)
			} else {
				fmt.Println("Config file: none")
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				source := string(e.Source)
				if e.Source == config.SourceDefault {
					source = ui.RenderMuted(source)
				}
				rows = append(rows, []string{e.Key, fmt.Sprint(e.Value), source})
			}
			fmt.Println(ui.NewTable([]string{"Key", "Value", "Source"}, rows))
		})
	},
}

// configEntries flattens the settings into sorted dotted keys.
func configEntries() []configEntry {
	var entries []configEntry
	var walk func(prefix string, m map[string]interface{})
	walk = func(prefix string, m map[string]interface{}) {
		for k, v := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := v.(map[string]interface{}); ok {
				walk(key, sub)
				continue
			}
			entries = append(entries, configEntry{Key: key, Value: v, Source: config.GetValueSource(key)})
		}
	}
	walk("", config.AllSettings())
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show one setting",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		entry := configEntry{Key: key, Value: config.GetString(key), Source: config.GetValueSource(key)}
		emit(entry, func() {
			fmt.Printf("%s = %v (%s)\n", entry.Key, entry.Value, entry.Source)
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a setting to the project config.yaml",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		path, err := config.SetProjectValue(args[0], args[1])
		if err != nil {
			fatal(err)
		}
		emit(map[string]string{"key": args[0], "value": args[1], "location": path}, func() {
			printDone("Set %s = %s (in %s)", args[0], args[1], path)
		})
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
