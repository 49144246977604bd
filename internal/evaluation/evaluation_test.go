package evaluation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/storage/sqlite"
	"github.com/untoldecay/flowctl/internal/tracker"
	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/workflow"
)

type harness struct {
	store *sqlite.SQLiteStorage
	eval  *Service
	flow  *workflow.Service
	track *tracker.Service
	clock time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "flow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{store: store, clock: time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC)}
	now := func() time.Time { return h.clock }
	h.eval = New(store, nil)
	h.eval.SetClock(now)
	h.flow = workflow.New(store, nil, workflow.WithEvaluator(h.eval))
	h.flow.SetClock(now)
	h.track = tracker.New(store, nil)
	h.track.SetClock(now)
	return h
}

func (h *harness) tick(d time.Duration) { h.clock = h.clock.Add(d) }

func (h *harness) feature(t *testing.T, id string, c types.Complexity) {
	t.Helper()
	_, err := h.flow.CreateFeature(context.Background(), workflow.CreateParams{ID: id, Name: id, Complexity: c}, "lead")
	require.NoError(t, err)
}

func (h *harness) move(t *testing.T, id string, phases ...types.Phase) {
	t.Helper()
	for _, p := range phases {
		h.tick(time.Minute)
		_, err := h.flow.TransitionPhase(context.Background(), id, p, "dev", "")
		require.NoError(t, err)
	}
}

func (h *harness) invoke(t *testing.T, id string, d time.Duration) {
	t.Helper()
	ctx := context.Background()
	inv, err := h.track.StartInvocation(ctx, tracker.StartParams{FeatureID: id, Actor: "agent"})
	require.NoError(t, err)
	h.tick(d)
	_, err = h.track.EndInvocation(ctx, inv.ID, "")
	require.NoError(t, err)
}

func (h *harness) gate(t *testing.T, id, name string, status types.GateStatus) {
	t.Helper()
	_, err := h.flow.EvaluateGate(context.Background(), workflow.GateParams{
		FeatureID: id, Name: name, Status: status, Approver: "qa",
	})
	require.NoError(t, err)
}

func TestHealthyCompletionScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.feature(t, "feat-ok", types.ComplexitySimple)

	h.gate(t, "feat-ok", "plan-approved", types.GateApproved)
	h.move(t, "feat-ok", types.PhaseDiscovery)
	h.invoke(t, "feat-ok", 30*time.Minute)
	h.gate(t, "feat-ok", "scope-approved", types.GateApproved)

	res, err := h.flow.CompleteFeature(ctx, "feat-ok", "dev", "done")
	require.NoError(t, err)
	require.NotNil(t, res.Eval)

	e := res.Eval
	assert.InDelta(t, 30, e.ActualMinutes, 0.01)
	assert.Equal(t, 60.0, e.ExpectedMinutes)
	assert.Equal(t, 2, e.GatesApproved)
	assert.Equal(t, 2, e.GatesTotal)
	assert.InDelta(t, 100, e.Efficiency, 0.01)
	assert.GreaterOrEqual(t, e.Overall, 70.0)
	assert.Equal(t, types.HealthHealthy, e.Health)
	assert.Empty(t, e.Alerts)

	latest, err := h.store.GetLatestFeatureEval(ctx, "feat-ok")
	require.NoError(t, err)
	assert.Equal(t, e.ID, latest.ID)
}

func TestWallTimeFallback(t *testing.T) {
	h := newHarness(t)
	h.feature(t, "feat-w", types.ComplexitySimple)
	h.tick(40 * time.Minute)
	h.move(t, "feat-w", types.PhaseDiscovery)
	h.tick(20 * time.Minute)

	e, err := h.eval.ComputeFeatureEval(context.Background(), "feat-w", "")
	require.NoError(t, err)
	assert.InDelta(t, 61, e.ActualMinutes, 0.01, "no invocations, so wall time is used")
}

func TestDegradationAlerts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.feature(t, "feat-d", types.ComplexitySimple)
	h.move(t, "feat-d", types.PhaseDiscovery)

	h.gate(t, "feat-d", "review", types.GateRejected)
	for i := 0; i < 5; i++ {
		res, err := h.flow.CreateBlocker(ctx, workflow.BlockerParams{
			FeatureID: "feat-d", Type: types.BlockerTechnical, Title: "issue",
		}, "dev")
		require.NoError(t, err)
		_, err = h.flow.ResolveBlocker(ctx, res.Blocker.ID, "dev", "fixed")
		require.NoError(t, err)
	}

	// gate 0, blockers 0, thrash 100 -> quality 20; efficiency 100 -> 52
	first, err := h.eval.ComputeFeatureEval(ctx, "feat-d", "monitor")
	require.NoError(t, err)
	assert.InDelta(t, 52, first.Overall, 0.01)
	assert.Equal(t, types.HealthConcerning, first.Health)
	require.Len(t, first.Alerts, 1)
	assert.Equal(t, types.AlertHealthDegraded, first.Alerts[0].Type)
	assert.Equal(t, types.AlertWarning, first.Alerts[0].Level)

	// two returns to Planning; rework 33.33 -> efficiency 80, quality 0 -> 32
	h.move(t, "feat-d", types.PhasePlanning, types.PhaseDiscovery, types.PhasePlanning)

	second, err := h.eval.ComputeFeatureEval(ctx, "feat-d", "monitor")
	require.NoError(t, err)
	assert.InDelta(t, 32, second.Overall, 0.01)
	assert.Equal(t, []types.Phase{types.PhasePlanning}, second.ThrashingPhases)
	assert.Equal(t, types.HealthCritical, second.Health)
	kinds := map[types.AlertType]types.AlertLevel{}
	for _, a := range second.Alerts {
		kinds[a.Type] = a.Level
	}
	assert.Equal(t, map[types.AlertType]types.AlertLevel{
		types.AlertHealthDegraded: types.AlertCritical,
		types.AlertThrashing:      types.AlertWarning,
	}, kinds)

	third, err := h.eval.ComputeFeatureEval(ctx, "feat-d", "monitor")
	require.NoError(t, err)
	assert.Empty(t, third.Alerts, "no new crossing and thrashing is already alerted")

	var thrashing *types.Alert
	for _, a := range second.Alerts {
		if a.Type == types.AlertThrashing {
			thrashing = a
		}
	}
	require.NotNil(t, thrashing)
	_, err = h.eval.ResolveAlert(ctx, thrashing.ID, "lead", "retro held")
	require.NoError(t, err)

	fourth, err := h.eval.ComputeFeatureEval(ctx, "feat-d", "monitor")
	require.NoError(t, err)
	require.Len(t, fourth.Alerts, 1, "a resolved alert can be raised again")
	assert.Equal(t, types.AlertThrashing, fourth.Alerts[0].Type)

	evals, err := h.eval.ListFeatureEvals(ctx, "feat-d")
	require.NoError(t, err)
	assert.Len(t, evals, 4)
}

func TestDurationOverrun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.feature(t, "feat-slow", types.ComplexitySimple)
	h.invoke(t, "feat-slow", 150*time.Minute)

	e, err := h.eval.ComputeFeatureEval(ctx, "feat-slow", "monitor")
	require.NoError(t, err)
	// time 0, rework 100 -> efficiency 30; quality 100 -> overall 72
	assert.InDelta(t, 72, e.Overall, 0.01)
	require.Len(t, e.Alerts, 1)
	assert.Equal(t, types.AlertDurationOverrun, e.Alerts[0].Type)

	again, err := h.eval.ComputeFeatureEval(ctx, "feat-slow", "monitor")
	require.NoError(t, err)
	assert.Empty(t, again.Alerts, "overrun alerts are not duplicated")
}

func TestAlertLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.feature(t, "feat-a", types.ComplexitySimple)
	h.invoke(t, "feat-a", 200*time.Minute)
	e, err := h.eval.ComputeFeatureEval(ctx, "feat-a", "monitor")
	require.NoError(t, err)
	require.NotEmpty(t, e.Alerts)
	id := e.Alerts[0].ID

	a, err := h.eval.AcknowledgeAlert(ctx, id, "oncall")
	require.NoError(t, err)
	assert.Equal(t, "oncall", a.AcknowledgedBy)
	_, err = h.eval.AcknowledgeAlert(ctx, id, "oncall")
	assert.True(t, storage.IsInvariant(err), "second acknowledge: %v", err)

	a, err = h.eval.ResolveAlert(ctx, id, "oncall", "rescoped")
	require.NoError(t, err)
	assert.Equal(t, "rescoped", a.ResolutionNote)
	_, err = h.eval.ResolveAlert(ctx, id, "oncall", "")
	assert.True(t, storage.IsInvariant(err), "second resolve: %v", err)

	_, err = h.eval.AcknowledgeAlert(ctx, 9999, "oncall")
	assert.True(t, storage.IsNotFound(err))

	open, err := h.eval.ListAlerts(ctx, types.AlertFilter{FeatureID: "feat-a", UnresolvedOnly: true})
	require.NoError(t, err)
	for _, o := range open {
		assert.NotEqual(t, id, o.ID)
	}
}

func TestSystemHealth(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"feat-1", "feat-2", "feat-3", "feat-4"} {
		h.feature(t, id, types.ComplexityStandard)
	}
	h.move(t, "feat-1", types.PhaseDiscovery)
	h.tick(30 * time.Minute)
	_, err := h.flow.CompleteFeature(ctx, "feat-1", "dev", "")
	require.NoError(t, err)
	h.tick(30 * time.Minute)
	_, err = h.flow.CompleteFeature(ctx, "feat-2", "dev", "")
	require.NoError(t, err)
	_, err = h.flow.CreateBlocker(ctx, workflow.BlockerParams{FeatureID: "feat-3", Type: types.BlockerResource, Title: "no runner"}, "dev")
	require.NoError(t, err)

	evals, err := h.eval.ComputeAllWindows(ctx, "monitor")
	require.NoError(t, err)
	require.Len(t, evals, 3)
	for i, e := range evals {
		assert.Equal(t, DefaultWindows[i], e.WindowDays)
		assert.Equal(t, 2, e.Completed)
		assert.Equal(t, 1, e.Blocked)
		assert.Equal(t, 1, e.InProgress)
		assert.Equal(t, 0, e.OpenKnowledgeConf)
		assert.Equal(t, types.HealthHealthy, e.Health)
		assert.Empty(t, e.Alerts)
	}

	h.tick(10 * 24 * time.Hour)
	week, err := h.eval.ComputeSystemHealth(ctx, 7, "monitor")
	require.NoError(t, err)
	assert.Equal(t, 0, week.Completed, "completions fell out of the 7 day window")

	latest, err := h.eval.GetLatestSystemEval(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, week.ID, latest.ID)

	_, err = h.eval.ComputeSystemHealth(ctx, 0, "monitor")
	assert.Error(t, err)
}
