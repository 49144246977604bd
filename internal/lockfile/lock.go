// Package lockfile guards the per-project daemon so only one instance
// serves a database at a time.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockName = "daemon.lock"
	infoName = "daemon.pid"
)

// ErrLocked is returned by Acquire when another live process holds the lock.
var ErrLocked = errors.New("daemon lock already held by another process")

// LockInfo describes the process holding the daemon lock.
type LockInfo struct {
	PID       int       `json:"pid"`
	Database  string    `json:"database"`
	Socket    string    `json:"socket"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// DaemonLock is a held daemon lock.
type DaemonLock struct {
	dir  string
	lock *flock.Flock
}

// Acquire takes the daemon lock in dir and records info next to it.
func Acquire(dir string, info LockInfo) (*DaemonLock, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	l := flock.New(filepath.Join(dir, lockName))
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring daemon lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	if info.PID == 0 {
		info.PID = os.Getpid()
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now().UTC()
	}
	data, err := json.Marshal(info)
	if err != nil {
		_ = l.Unlock()
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, infoName), data, 0o600); err != nil {
		_ = l.Unlock()
		return nil, fmt.Errorf("failed to write lock info: %w", err)
	}
	return &DaemonLock{dir: dir, lock: l}, nil
}

// Release drops the lock and removes the info file.
func (d *DaemonLock) Release() error {
	_ = os.Remove(filepath.Join(d.dir, infoName))
	return d.lock.Unlock()
}

// ReadLockInfo reads the info file written by Acquire. A bare PID is
// accepted too.
func ReadLockInfo(dir string) (*LockInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, infoName))
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err == nil {
		return &info, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid lock info: %w", err)
	}
	return &LockInfo{PID: pid}, nil
}

// TryDaemonLock reports whether a daemon holds the lock in dir, and its PID
// when known. The flock is authoritative; the info file is only a hint.
func TryDaemonLock(dir string) (running bool, pid int) {
	l := flock.New(filepath.Join(dir, lockName))
	ok, err := l.TryLock()
	if err == nil && ok {
		_ = l.Unlock()
		return false, 0
	}
	if info, err := ReadLockInfo(dir); err == nil && isProcessRunning(info.PID) {
		return true, info.PID
	}
	return err == nil, 0
}
