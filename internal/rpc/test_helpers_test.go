package rpc

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/untoldecay/flowctl/internal/storage/sqlite"
)

func newTestSocketPath(t *testing.T) string {
	t.Helper()

	// AF_UNIX socket paths have small length limits (notably on darwin)
	if runtime.GOOS != "windows" {
		d, err := os.MkdirTemp("/tmp", "flow-sock-")
		if err == nil {
			t.Cleanup(func() { _ = os.RemoveAll(d) })
			return filepath.Join(d, "rpc.sock")
		}
	}
	return filepath.Join(t.TempDir(), "rpc.sock")
}

type testServer struct {
	server  *Server
	client  *Client
	backend *Backend
	socket  string
	done    chan error
}

// startTestServer serves a fresh database and returns a connected client.
// Everything is torn down when the test ends.
func startTestServer(t *testing.T, opts ...ServerOption) *testServer {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "flow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	backend := NewBackend(store, nil)
	clock := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	backend.SetClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})

	ts := &testServer{
		backend: backend,
		socket:  newTestSocketPath(t),
		done:    make(chan error, 1),
	}
	ts.server = NewServer(ts.socket, backend, nil, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { ts.done <- ts.server.Start(ctx) }()
	select {
	case <-ts.server.WaitReady():
	case err := <-ts.done:
		cancel()
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not become ready")
	}
	t.Cleanup(func() {
		cancel()
		_ = ts.server.Stop()
		select {
		case <-ts.done:
		case <-time.After(5 * time.Second):
			t.Error("server did not exit")
		}
	})

	ts.client, err = TryConnect(ts.socket, "")
	require.NoError(t, err)
	require.NotNil(t, ts.client, "expected a live daemon")
	t.Cleanup(func() { _ = ts.client.Close() })
	return ts
}
