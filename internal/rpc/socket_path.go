package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// SocketName is the socket file created inside the .flow directory.
const SocketName = "flow.sock"

// MaxUnixSocketPath is the maximum length for Unix socket paths.
// macOS has a 104-byte limit (including null terminator), Linux has 108.
const MaxUnixSocketPath = 103

// tmpDir is always /tmp: $TMPDIR on macOS is too long for socket paths.
const tmpDir = "/tmp"

// SocketPath returns the daemon socket for a .flow directory. When
// .flow/flow.sock would exceed the socket length limit it returns
// /tmp/flow-{hash}/flow.sock, where the hash is derived from the resolved
// directory so symlinked spellings share one socket.
func SocketPath(flowDir string) string {
	naturalPath := filepath.Join(flowDir, SocketName)
	if len(naturalPath) <= MaxUnixSocketPath {
		return naturalPath
	}
	return shortSocketPath(canonicalDir(flowDir))
}

func canonicalDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	return filepath.Clean(dir)
}

func shortSocketPath(canonicalPath string) string {
	hash := sha256.Sum256([]byte(canonicalPath))
	hashStr := hex.EncodeToString(hash[:4])
	return filepath.Join(tmpDir, "flow-"+hashStr, SocketName)
}

func isShortSocketDir(dir string) bool {
	return strings.HasPrefix(dir, filepath.Join(tmpDir, "flow-"))
}

// EnsureSocketDir creates the socket directory if it is one of the
// /tmp/flow-* fallbacks. The .flow directory itself must already exist.
func EnsureSocketDir(socketPath string) error {
	dir := filepath.Dir(socketPath)
	if !isShortSocketDir(dir) {
		return nil
	}
	return os.MkdirAll(dir, 0o700)
}

// CleanupSocketDir removes the socket, and its directory when it is a
// /tmp/flow-* fallback.
func CleanupSocketDir(socketPath string) error {
	dir := filepath.Dir(socketPath)
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	if isShortSocketDir(dir) {
		// Fails when not empty, which is fine
		_ = os.Remove(dir)
	}
	return nil
}
