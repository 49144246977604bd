package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// inProject runs the test from a fresh directory holding .flow/config.yaml
// with the given contents (no file when contents is empty).
func inProject(t *testing.T, contents string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if contents != "" {
		if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	t.Chdir(root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "xdg"))
	return dir
}

func TestDefaults(t *testing.T) {
	inProject(t, "")
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	tests := []struct {
		key      string
		expected interface{}
		getter   func(string) interface{}
	}{
		{KeyJSON, false, func(k string) interface{} { return GetBool(k) }},
		{KeyDB, "", func(k string) interface{} { return GetString(k) }},
		{KeyActor, "", func(k string) interface{} { return GetString(k) }},
		{KeySimilarityThreshold, 0.70, func(k string) interface{} { return GetFloat64(k) }},
		{KeyDaemonReqTimeout, 30 * time.Second, func(k string) interface{} { return GetDuration(k) }},
		{KeyDaemonMaxConns, 100, func(k string) interface{} { return GetInt(k) }},
		{KeyDaemonLogCompress, true, func(k string) interface{} { return GetBool(k) }},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := tt.getter(tt.key); got != tt.expected {
				t.Errorf("GetXXX(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestProjectConfigFile(t *testing.T) {
	dir := inProject(t, "actor: alice\nknowledge:\n  similarity-threshold: 0.85\n")
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	if got := GetString(KeyActor); got != "alice" {
		t.Errorf("actor = %q, want alice", got)
	}
	if got := SimilarityThreshold(); got != 0.85 {
		t.Errorf("SimilarityThreshold() = %v, want 0.85", got)
	}
	if got := GetValueSource(KeyActor); got != SourceConfigFile {
		t.Errorf("GetValueSource(actor) = %v, want %v", got, SourceConfigFile)
	}
	if got := DefaultDBPath(); got != filepath.Join(dir, "flow.db") {
		t.Errorf("DefaultDBPath() = %q", got)
	}
	if ConfigFileUsed() == "" {
		t.Error("expected a config file to be in use")
	}
}

func TestSubdirectoryFindsProject(t *testing.T) {
	dir := inProject(t, "actor: bob\n")
	sub := filepath.Join(filepath.Dir(dir), "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(sub)
	if err := Initialize(); err != nil {
		t.Fatal(err)
	}
	if got := ProjectDir(); got != dir {
		t.Errorf("ProjectDir() = %q, want %q", got, dir)
	}
	if got := GetIdentity(""); got != "bob" {
		t.Errorf("GetIdentity() = %q, want bob", got)
	}
	if got := GetIdentity("carol"); got != "carol" {
		t.Errorf("flag should win, got %q", got)
	}
}

func TestEnvironmentBinding(t *testing.T) {
	inProject(t, "actor: alice\n")
	t.Setenv("FLOW_ACTOR", "envuser")
	t.Setenv("FLOW_KNOWLEDGE_SIMILARITY_THRESHOLD", "0.9")
	t.Setenv("FLOW_DAEMON_MAX_CONNS", "5")
	if err := Initialize(); err != nil {
		t.Fatal(err)
	}

	if got := GetString(KeyActor); got != "envuser" {
		t.Errorf("actor = %q, want envuser", got)
	}
	if got := GetValueSource(KeyActor); got != SourceEnvVar {
		t.Errorf("GetValueSource(actor) = %v, want %v", got, SourceEnvVar)
	}
	if got := SimilarityThreshold(); got != 0.9 {
		t.Errorf("SimilarityThreshold() = %v, want 0.9", got)
	}
	if got := GetInt(KeyDaemonMaxConns); got != 5 {
		t.Errorf("max conns = %d, want 5", got)
	}
}

func TestEnvKey(t *testing.T) {
	if got := EnvKey("knowledge.similarity-threshold"); got != "FLOW_KNOWLEDGE_SIMILARITY_THRESHOLD" {
		t.Errorf("EnvKey() = %q", got)
	}
}

func TestWatchReloads(t *testing.T) {
	dir := inProject(t, "actor: alice\n")
	if err := Initialize(); err != nil {
		t.Fatal(err)
	}
	changed := make(chan struct{}, 1)
	if !Watch(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}) {
		t.Fatal("Watch() returned false with a config file loaded")
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("actor: dave\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
	if got := GetString(KeyActor); got != "dave" {
		t.Errorf("actor after reload = %q, want dave", got)
	}
}

func TestWatchWithoutFile(t *testing.T) {
	inProject(t, "")
	if err := Initialize(); err != nil {
		t.Fatal(err)
	}
	if Watch(nil) {
		t.Error("Watch() should be a no-op without a config file")
	}
}
