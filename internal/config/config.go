package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/untoldecay/flowctl/internal/debug"
)

// DirName is the per-project directory holding config.yaml, the database,
// the daemon socket and its log.
const DirName = ".flow"

// Keys read by more than one package
const (
	KeyDB                  = "db"
	KeyActor               = "actor"
	KeyJSON                = "json"
	KeyNoDaemon            = "no-daemon"
	KeySimilarityThreshold = "knowledge.similarity-threshold"
	KeyDaemonSocket        = "daemon.socket"
	KeyDaemonLogFile       = "daemon.log-file"
	KeyDaemonLogMaxSizeMB  = "daemon.log-max-size-mb"
	KeyDaemonLogMaxBackups = "daemon.log-max-backups"
	KeyDaemonLogMaxAgeDays = "daemon.log-max-age-days"
	KeyDaemonLogCompress   = "daemon.log-compress"
	KeyDaemonLogLevel      = "daemon.log-level"
	KeyDaemonReqTimeout    = "daemon.request-timeout"
	KeyDaemonMaxConns      = "daemon.max-conns"
	KeyHealthInterval      = "daemon.health-interval"
)

var (
	v          *viper.Viper
	projectDir string
	watchMu    sync.Mutex
)

// Initialize sets up the viper configuration singleton
// Should be called once at application startup
func Initialize() error {
	v = viper.New()
	projectDir = ""

	v.SetConfigType("yaml")

	// Precedence: project .flow/config.yaml > ~/.config/flow/config.yaml
	configFileSet := false

	// Walk up from CWD so commands work from subdirectories
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			flowDir := filepath.Join(dir, DirName)
			if info, err := os.Stat(flowDir); err != nil || !info.IsDir() {
				continue
			}
			projectDir = flowDir
			configPath := filepath.Join(flowDir, "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
			break
		}
	}

	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "flow", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// E.g., FLOW_JSON, FLOW_ACTOR, FLOW_DB, FLOW_KNOWLEDGE_SIMILARITY_THRESHOLD
	v.SetEnvPrefix("FLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("Debug: loaded config from %s\n", v.ConfigFileUsed())
	} else {
		debug.Logf("Debug: no config.yaml found; using defaults and environment variables\n")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyJSON, false)
	v.SetDefault(KeyNoDaemon, false)
	v.SetDefault(KeyDB, "")
	v.SetDefault(KeyActor, "")

	v.SetDefault(KeySimilarityThreshold, 0.70)

	v.SetDefault(KeyDaemonSocket, "")
	v.SetDefault(KeyDaemonLogFile, "")
	v.SetDefault(KeyDaemonLogMaxSizeMB, 10)
	v.SetDefault(KeyDaemonLogMaxBackups, 3)
	v.SetDefault(KeyDaemonLogMaxAgeDays, 7)
	v.SetDefault(KeyDaemonLogCompress, true)
	v.SetDefault(KeyDaemonLogLevel, "info")
	v.SetDefault(KeyDaemonReqTimeout, "30s")
	v.SetDefault(KeyDaemonMaxConns, 100)
	v.SetDefault(KeyHealthInterval, "0s")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.stdout", false)
}

// ProjectDir returns the .flow directory found by Initialize, or "" when
// the working directory is not inside a flow project.
func ProjectDir() string {
	return projectDir
}

// DefaultDBPath returns the database path used when neither --db nor
// FLOW_DB is given: .flow/flow.db in the current project, or in the
// working directory when there is none.
func DefaultDBPath() string {
	if p := GetString(KeyDB); p != "" {
		return p
	}
	if projectDir != "" {
		return filepath.Join(projectDir, "flow.db")
	}
	return filepath.Join(DirName, "flow.db")
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault    ConfigSource = "default"
	SourceConfigFile ConfigSource = "config_file"
	SourceEnvVar     ConfigSource = "env_var"
	SourceFlag       ConfigSource = "flag"
)

// EnvKey returns the environment variable that overrides key.
func EnvKey(key string) string {
	return "FLOW_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// GetValueSource returns the source of a configuration value.
// Priority (highest to lowest): env var > config file > default
// Flags are handled by the CLI since viper doesn't know about cobra flags.
func GetValueSource(key string) ConfigSource {
	if v == nil {
		return SourceDefault
	}
	if os.Getenv(EnvKey(key)) != "" {
		return SourceEnvVar
	}
	if v.InConfig(key) {
		return SourceConfigFile
	}
	return SourceDefault
}

// Watch reloads the config file whenever it changes and calls onChange
// after each reload. It is a no-op when no config file was loaded.
func Watch(onChange func()) bool {
	watchMu.Lock()
	defer watchMu.Unlock()
	if v == nil || v.ConfigFileUsed() == "" {
		return false
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		debug.Logf("Debug: config %s changed (%s)\n", e.Name, e.Op)
		if onChange != nil {
			onChange()
		}
	})
	v.WatchConfig()
	return true
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetFloat64 retrieves a float configuration value
func GetFloat64(key string) float64 {
	if v == nil {
		return 0
	}
	return v.GetFloat64(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// SimilarityThreshold returns the knowledge similarity threshold, or 0 when
// it is unset so callers fall back to their own default.
func SimilarityThreshold() float64 {
	if v == nil || !v.IsSet(KeySimilarityThreshold) {
		return 0
	}
	return v.GetFloat64(KeySimilarityThreshold)
}

// Set sets a configuration value
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns all configuration settings as a map
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// GetIdentity resolves the actor recorded on mutations.
// Priority chain:
//  1. flagValue (from --actor)
//  2. FLOW_ACTOR env var / config.yaml actor (via viper)
//  3. git config user.name
//  4. $USER
//  5. "unknown"
func GetIdentity(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if actor := GetString(KeyActor); actor != "" {
		return actor
	}
	cmd := exec.Command("git", "config", "user.name")
	if output, err := cmd.Output(); err == nil {
		if gitUser := strings.TrimSpace(string(output)); gitUser != "" {
			return gitUser
		}
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}
