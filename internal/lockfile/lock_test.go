package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	if running, _ := TryDaemonLock(dir); running {
		t.Fatal("no daemon should be running yet")
	}

	l, err := Acquire(dir, LockInfo{Database: "/tmp/flow.db", Version: "0.3.0"})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	info, err := ReadLockInfo(dir)
	if err != nil {
		t.Fatalf("ReadLockInfo: %v", err)
	}
	if info.PID != os.Getpid() || info.Database != "/tmp/flow.db" {
		t.Errorf("unexpected info %+v", info)
	}

	if _, err := Acquire(dir, LockInfo{}); !errors.Is(err, ErrLocked) {
		t.Errorf("second Acquire: got %v, want ErrLocked", err)
	}
	if running, pid := TryDaemonLock(dir); !running || pid != os.Getpid() {
		t.Errorf("TryDaemonLock = %v, %d", running, pid)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if running, _ := TryDaemonLock(dir); running {
		t.Error("lock still reported after release")
	}
	if _, err := ReadLockInfo(dir); !os.IsNotExist(err) {
		t.Errorf("info file should be gone, got %v", err)
	}
}

func TestReadLockInfoPlainPID(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, infoName), []byte("98765\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	info, err := ReadLockInfo(dir)
	if err != nil {
		t.Fatalf("ReadLockInfo: %v", err)
	}
	if info.PID != 98765 {
		t.Errorf("PID = %d, want 98765", info.PID)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("current process should be running")
	}
	if isProcessRunning(0) || isProcessRunning(-1) {
		t.Error("non-positive PIDs are never running")
	}
}
