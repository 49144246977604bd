package rpc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSocketPathShort(t *testing.T) {
	dir := "/home/dev/project/.flow"
	if got := SocketPath(dir); got != filepath.Join(dir, SocketName) {
		t.Errorf("SocketPath(%q) = %q", dir, got)
	}
}

func TestSocketPathLong(t *testing.T) {
	dir := "/" + strings.Repeat("deeply-nested/", 10) + ".flow"
	got := SocketPath(dir)
	if !strings.HasPrefix(got, filepath.Join(tmpDir, "flow-")) {
		t.Fatalf("expected /tmp fallback, got %q", got)
	}
	if len(got) > MaxUnixSocketPath {
		t.Errorf("fallback path too long: %d", len(got))
	}
	if again := SocketPath(dir); again != got {
		t.Errorf("SocketPath is not deterministic: %q vs %q", got, again)
	}
	if other := SocketPath(dir + "2"); other == got {
		t.Error("different directories should not share a socket")
	}
}

func TestEnsureAndCleanupSocketDir(t *testing.T) {
	sock := shortSocketPath(t.TempDir())
	t.Cleanup(func() { _ = os.RemoveAll(filepath.Dir(sock)) })

	if err := EnsureSocketDir(sock); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(sock, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := CleanupSocketDir(sock); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Dir(sock)); !os.IsNotExist(err) {
		t.Errorf("socket dir should be removed, stat err = %v", err)
	}
}
