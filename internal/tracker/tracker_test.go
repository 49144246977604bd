package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/storage/sqlite"
	"github.com/untoldecay/flowctl/internal/types"
)

func newTestTracker(t *testing.T) (*Service, *sqlite.SQLiteStorage, *time.Time) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "flow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	svc := New(store, nil)
	svc.SetClock(func() time.Time { return clock })
	return svc, store, &clock
}

func createFeature(t *testing.T, store storage.Storage, id string) {
	t.Helper()
	err := store.RunInTransaction(context.Background(), func(tx storage.Transaction) error {
		return tx.CreateFeature(context.Background(), &types.Feature{
			ID: id, Name: id, Complexity: types.ComplexitySimple, Severity: types.SeverityLow,
			CurrentPhase: types.PhasePlanning, Status: types.FeatureInProgress,
		})
	})
	require.NoError(t, err)
}

func TestStartAndEndInvocation(t *testing.T) {
	svc, store, clock := newTestTracker(t)
	ctx := context.Background()
	createFeature(t, store, "feat-1")

	inv, err := svc.StartInvocation(ctx, StartParams{
		FeatureID: "feat-1", Actor: "planner", Operation: "draft plan", Aids: []string{"adr-7"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.PhasePlanning, inv.Phase, "phase defaults to the current phase")

	*clock = clock.Add(25 * time.Minute)
	ended, err := svc.EndInvocation(ctx, inv.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 25*time.Minute, ended.Duration())

	_, err = svc.EndInvocation(ctx, inv.ID, "planner")
	assert.True(t, storage.IsInvariant(err), "second end must be rejected, got %v", err)

	events, err := store.GetEvents(ctx, types.EntityFeature, "feat-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, types.EventInvocationEnded, events[0].EventType)
	assert.Equal(t, "planner", events[0].Actor, "actor falls back to the invocation's actor")
}

func TestStartInvocationRejects(t *testing.T) {
	svc, store, _ := newTestTracker(t)
	ctx := context.Background()
	createFeature(t, store, "feat-1")

	_, err := svc.StartInvocation(ctx, StartParams{FeatureID: "feat-missing", Actor: "a"})
	assert.True(t, storage.IsNotFound(err))

	_, err = svc.StartInvocation(ctx, StartParams{FeatureID: "feat-1"})
	assert.Error(t, err, "actor is required")

	_, err = svc.StartInvocation(ctx, StartParams{FeatureID: "feat-1", Actor: "a", Phase: "12"})
	assert.Error(t, err)

	require.NoError(t, store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.SetFeatureStatus(ctx, "feat-1", types.FeatureCancelled, time.Time{})
	}))
	_, err = svc.StartInvocation(ctx, StartParams{FeatureID: "feat-1", Actor: "a"})
	assert.True(t, storage.IsInvariant(err))
}

func TestComputePhaseDurations(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	completed := t0.Add(5 * time.Hour)
	f := &types.Feature{ID: "feat-1", CreatedAt: t0, CompletedAt: &completed}

	ms := func(d time.Duration) *int64 { v := d.Milliseconds(); return &v }
	transitions := []*types.PhaseTransition{
		{FromPhase: "0", ToPhase: "1", Kind: types.TransitionForward, CreatedAt: t0.Add(30 * time.Minute)},
		{FromPhase: "1", ToPhase: "2", Kind: types.TransitionForward, CreatedAt: t0.Add(90 * time.Minute)},
		{FromPhase: "2", ToPhase: "2", Kind: types.TransitionEscalation, CreatedAt: t0.Add(100 * time.Minute)},
		{FromPhase: "2", ToPhase: "1", Kind: types.TransitionBackward, CreatedAt: t0.Add(2 * time.Hour)},
		{FromPhase: "1", ToPhase: "2", Kind: types.TransitionForward, CreatedAt: t0.Add(3 * time.Hour)},
		{FromPhase: "2", ToPhase: "8", Kind: types.TransitionForward, CreatedAt: completed},
	}
	invocations := []*types.AgentInvocation{
		{Phase: "1", DurationMS: ms(20 * time.Minute)},
		{Phase: "1", DurationMS: ms(10 * time.Minute)},
		{Phase: "2"}, // still running
	}

	got := ComputePhaseDurations(f, transitions, invocations, t0.Add(24*time.Hour))
	require.Len(t, got, types.PhaseCount)

	assert.Equal(t, 30*time.Minute, got[0].WallTime)
	assert.Equal(t, 1, got[0].Visits)

	assert.Equal(t, 2, got[1].Visits)
	assert.Equal(t, 60*time.Minute+60*time.Minute, got[1].WallTime)
	assert.Equal(t, 30*time.Minute, got[1].InvocationTime)
	assert.Equal(t, 2, got[1].Invocations)

	assert.Equal(t, 2, got[2].Visits)
	assert.Equal(t, 30*time.Minute+2*time.Hour, got[2].WallTime, "escalation does not split the visit")
	assert.Zero(t, got[2].Invocations)

	assert.Equal(t, 1, got[8].Visits)
	assert.Zero(t, got[8].WallTime)

	assert.Equal(t, 5*time.Hour, TotalWallTime(got))
	assert.Equal(t, 30*time.Minute, TotalInvocationTime(invocations))
}

func TestComputePhaseDurationsInFlight(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	f := &types.Feature{ID: "feat-1", CreatedAt: t0}

	got := ComputePhaseDurations(f, nil, nil, t0.Add(45*time.Minute))
	assert.Equal(t, 45*time.Minute, got[0].WallTime)
}

func TestPhaseDurationsFromStore(t *testing.T) {
	svc, store, clock := newTestTracker(t)
	ctx := context.Background()
	createFeature(t, store, "feat-1")

	inv, err := svc.StartInvocation(ctx, StartParams{FeatureID: "feat-1", Actor: "a"})
	require.NoError(t, err)
	*clock = clock.Add(time.Minute)
	_, err = svc.EndInvocation(ctx, inv.ID, "a")
	require.NoError(t, err)

	durations, err := svc.PhaseDurations(ctx, "feat-1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, durations[0].InvocationTime)

	_, err = svc.PhaseDurations(ctx, "feat-nope")
	assert.True(t, storage.IsNotFound(err))
}
