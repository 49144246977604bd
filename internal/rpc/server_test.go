package rpc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untoldecay/flowctl/internal/knowledge"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/tracker"
	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/workflow"
)

func TestFeatureLifecycleOverSocket(t *testing.T) {
	ts := startTestServer(t)
	c := ts.client
	ctx := context.Background()

	f, err := c.CreateFeature(ctx, workflow.CreateParams{ID: "feat-rpc", Name: "RPC feature", Complexity: types.ComplexitySimple}, "lead")
	require.NoError(t, err)
	assert.Equal(t, types.PhasePlanning, f.CurrentPhase)
	assert.Equal(t, types.FeatureInProgress, f.Status)

	tr, err := c.TransitionPhase(ctx, "feat-rpc", types.PhaseDiscovery, "dev", "scoped")
	require.NoError(t, err)
	assert.Equal(t, types.TransitionForward, tr.Kind)

	inv, err := c.StartInvocation(ctx, tracker.StartParams{FeatureID: "feat-rpc", Actor: "agent", Operation: "explore"})
	require.NoError(t, err)
	inv, err = c.EndInvocation(ctx, inv.ID, "agent")
	require.NoError(t, err)
	assert.NotNil(t, inv.EndedAt)

	status, err := c.GetFeatureStatus(ctx, "feat-rpc")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseDiscovery, status.Feature.CurrentPhase)

	res, err := c.CompleteFeature(ctx, "feat-rpc", "lead", "shipped")
	require.NoError(t, err)
	assert.Equal(t, types.FeatureCompleted, res.Feature.Status)
	require.NotNil(t, res.Eval, "completion over the socket is scored by the daemon")

	completed := types.FeatureCompleted
	list, err := c.ListFeatures(ctx, types.FeatureFilter{Status: &completed})
	require.NoError(t, err)
	require.Len(t, list, 1)

	events, err := c.ListEvents(ctx, types.EntityFeature, "feat-rpc", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestKnowledgeOverSocket(t *testing.T) {
	ts := startTestServer(t)
	c := ts.client
	ctx := context.Background()

	conf := 0.9
	l, err := c.CreateLearning(ctx, knowledge.CreateParams{
		ID:         "learn-rpc",
		Category:   types.CategoryPattern,
		Title:      "Retry busy writers",
		Content:    "BEGIN IMMEDIATE with backoff",
		Confidence: &conf,
	}, "agent")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, l.Confidence, 1e-9)

	decl, err := c.DeclarePropagationTarget(ctx, l.ID, types.TargetProjectDoc, "docs/storage.md", 0.8, "agent")
	require.NoError(t, err)
	assert.True(t, decl.Created)

	queue, err := c.GetPropagationQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "docs/storage.md", queue[0].Path)

	rec, err := c.RecordPropagation(ctx, knowledge.RecordParams{LearningID: l.ID, Kind: types.TargetProjectDoc, Path: "docs/storage.md", Actor: "agent"})
	require.NoError(t, err)
	assert.True(t, rec.Recorded)
	assert.True(t, rec.FullyPropagated)

	st, err := c.GetPropagationStatus(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, st.FullyPropagated)
	assert.Empty(t, st.Pending)
}

func TestErrorsKeepTheirKind(t *testing.T) {
	ts := startTestServer(t)
	c := ts.client
	ctx := context.Background()

	_, err := c.GetFeature(ctx, "missing")
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err), "got %v", err)

	_, err = c.CreateFeature(ctx, workflow.CreateParams{ID: "feat-err", Name: "Errors"}, "lead")
	require.NoError(t, err)

	_, err = c.TransitionPhase(ctx, "feat-err", types.PhaseImplementation, "dev", "")
	require.Error(t, err)
	var rule *storage.RuleError
	require.True(t, errors.As(err, &rule), "got %T: %v", err, err)
	assert.Equal(t, "phase skip", rule.Rule)
	assert.True(t, storage.IsInvariant(err))

	_, err = c.AcquireLock(ctx, "feat-err", "internal/api.go", types.LockFile, "alice")
	require.NoError(t, err)
	_, err = c.AcquireLock(ctx, "feat-err", "internal/api.go", types.LockFile, "bob")
	require.Error(t, err)
	var coll *storage.CollisionError
	require.True(t, errors.As(err, &coll), "got %T: %v", err, err)
	assert.Equal(t, "alice", coll.Holder)
	assert.True(t, storage.IsCollision(err))

	released, err := c.ReleaseLock(ctx, "feat-err", "internal/api.go", "alice")
	require.NoError(t, err)
	assert.True(t, released)
	released, err = c.ReleaseLock(ctx, "feat-err", "internal/api.go", "alice")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestInvalidArgsRejected(t *testing.T) {
	ts := startTestServer(t)
	ctx := context.Background()

	resp, err := ts.client.Execute(ctx, OpFeatureCreate, "lead", &FeatureCreateArgs{Complexity: 7})
	require.ErrorIs(t, err, ErrInvalidArgs)
	assert.Equal(t, CodeInvalidArgs, resp.Code)

	_, err = ts.client.ComputeSystemHealth(ctx, 0, "ops")
	assert.ErrorIs(t, err, ErrInvalidArgs)

	_, err = ts.client.Execute(ctx, "no_such_op", "", nil)
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestVersionMismatchRejected(t *testing.T) {
	ts := startTestServer(t, WithVersion("1.4.0"))
	ctx := context.Background()
	ts.client.version = "2.0.0"

	_, err := ts.client.ListFeatures(ctx, types.FeatureFilter{})
	require.ErrorIs(t, err, ErrVersionMismatch)

	// ping and health still answer so the client can report the mismatch
	pong, err := ts.client.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.4.0", pong.Version)
	health, err := ts.client.Health(ctx)
	require.NoError(t, err)
	assert.False(t, health.Compatible)
}

func TestCheckVersionCompatibility(t *testing.T) {
	tests := []struct {
		server, client string
		ok             bool
	}{
		{"1.2.0", "", true},
		{"1.2.0", "1.2.0", true},
		{"1.2.0", "1.1.9", true},
		{"v1.2.0", "1.0.0", true},
		{"1.2.0", "1.3.0", false},
		{"1.2.0", "1.2.1", false},
		{"2.0.0", "1.9.0", false},
		{"1.9.0", "2.0.0", false},
		{"dev", "1.0.0", true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.server, tt.client), func(t *testing.T) {
			err := checkVersionCompatibility(tt.server, tt.client)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrVersionMismatch)
			}
		})
	}
}

func TestStatusAndMetrics(t *testing.T) {
	ts := startTestServer(t)
	ctx := context.Background()

	_, err := ts.client.GetFeature(ctx, "missing")
	require.Error(t, err)

	status, err := ts.client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, ts.socket, status.SocketPath)
	assert.Equal(t, ts.backend.Store().Path(), status.DatabasePath)
	assert.Equal(t, os.Getpid(), status.PID)

	snap, err := ts.client.Metrics(ctx)
	require.NoError(t, err)
	var found bool
	for _, op := range snap.Operations {
		if op.Operation == OpFeatureGet {
			found = true
			assert.EqualValues(t, 1, op.ErrorCount)
		}
	}
	assert.True(t, found, "feature_get should appear in metrics")
}

func TestConcurrentClients(t *testing.T) {
	ts := startTestServer(t)
	ctx := context.Background()
	_, err := ts.client.CreateFeature(ctx, workflow.CreateParams{ID: "feat-race", Name: "Race"}, "lead")
	require.NoError(t, err)

	const agents = 6
	var wg sync.WaitGroup
	results := make(chan error, agents)
	for i := 0; i < agents; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := TryConnect(ts.socket, "")
			if err != nil || c == nil {
				results <- fmt.Errorf("connect: %v", err)
				return
			}
			defer c.Close()
			_, err = c.AcquireLock(ctx, "feat-race", "shared.go", types.LockFile, fmt.Sprintf("agent-%d", i))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var won, collided int
	for err := range results {
		switch {
		case err == nil:
			won++
		case storage.IsCollision(err):
			collided++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, agents-1, collided)
}

func TestShutdownOperation(t *testing.T) {
	ts := startTestServer(t)
	require.NoError(t, ts.client.Shutdown(context.Background()))

	select {
	case err := <-ts.done:
		assert.NoError(t, err)
		ts.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after shutdown")
	}
	assert.False(t, endpointExists(ts.socket), "socket should be removed")
}

func TestTryConnectWithoutDaemon(t *testing.T) {
	dir := t.TempDir()
	c, err := TryConnect(filepath.Join(dir, SocketName), dir)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestErrorResponseRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(t *testing.T, err error)
	}{
		{"rule", fmt.Errorf("transition feat-1: %w", storage.Violation("feature blocked", "%d open", 2)), func(t *testing.T, err error) {
			var rule *storage.RuleError
			require.True(t, errors.As(err, &rule))
			assert.Equal(t, "feature blocked", rule.Rule)
			assert.Equal(t, "2 open", rule.Detail)
		}},
		{"collision", &storage.CollisionError{What: "lock f:a.go", Holder: "alice"}, func(t *testing.T, err error) {
			var coll *storage.CollisionError
			require.True(t, errors.As(err, &coll))
			assert.Equal(t, "alice", coll.Holder)
		}},
		{"not found", fmt.Errorf("feature x: %w", storage.ErrNotFound), func(t *testing.T, err error) {
			assert.True(t, storage.IsNotFound(err))
		}},
		{"plain", errors.New("actor is required"), func(t *testing.T, err error) {
			assert.False(t, storage.IsInvariant(err))
			assert.Contains(t, err.Error(), "actor is required")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := errorResponse(tt.err)
			err := decodeError(&resp)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err.Error())
			tt.check(t, err)
		})
	}
}
