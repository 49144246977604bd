package sqlite

import (
	"testing"
	"time"

	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

func TestFeatureEvalSnapshots(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("scored")

	if _, err := env.Store.GetLatestFeatureEval(env.Ctx, f.ID); !storage.IsNotFound(err) {
		t.Fatalf("expected not found before any eval, got %v", err)
	}

	for _, overall := range []float64{82, 64} {
		e := &types.FeatureEval{FeatureID: f.ID, Efficiency: overall, Quality: overall, Overall: overall,
			Health: types.HealthFor(overall), ThrashingPhases: []types.Phase{types.PhaseTesting}}
		env.Tx(func(tx storage.Transaction) error { return tx.AddFeatureEval(env.Ctx, e) })
	}

	latest, err := env.Store.GetLatestFeatureEval(env.Ctx, f.ID)
	if err != nil {
		t.Fatalf("GetLatestFeatureEval failed: %v", err)
	}
	if latest.Overall != 64 || latest.Health != types.HealthConcerning {
		t.Errorf("latest = %.1f %s, want 64 CONCERNING", latest.Overall, latest.Health)
	}
	if len(latest.ThrashingPhases) != 1 || latest.ThrashingPhases[0] != types.PhaseTesting {
		t.Errorf("ThrashingPhases = %v", latest.ThrashingPhases)
	}

	all, err := env.Store.ListFeatureEvals(env.Ctx, f.ID)
	if err != nil {
		t.Fatalf("ListFeatureEvals failed: %v", err)
	}
	if len(all) != 2 || all[0].Overall != 82 {
		t.Errorf("history = %+v", all)
	}
}

func TestSystemEvalPerWindow(t *testing.T) {
	env := newTestEnv(t)
	env.Tx(func(tx storage.Transaction) error {
		for _, w := range []int{7, 30} {
			if err := tx.AddSystemEval(env.Ctx, &types.SystemHealthEval{
				WindowDays: w, Completed: w, Overall: 75, Health: types.HealthHealthy,
			}); err != nil {
				return err
			}
		}
		return nil
	})

	got, err := env.Store.GetLatestSystemEval(env.Ctx, 30)
	if err != nil {
		t.Fatalf("GetLatestSystemEval failed: %v", err)
	}
	if got.Completed != 30 {
		t.Errorf("Completed = %d, want 30", got.Completed)
	}
	if _, err := env.Store.GetLatestSystemEval(env.Ctx, 90); !storage.IsNotFound(err) {
		t.Errorf("expected not found for window 90, got %v", err)
	}
}

func TestCountFeaturesAndCycleStats(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()

	done := env.CreateFeature("done")
	old := env.CreateFeature("old")
	env.CreateFeature("running")
	stuck := env.CreateFeature("stuck")

	env.Tx(func(tx storage.Transaction) error {
		if err := tx.AddTransition(env.Ctx, &types.PhaseTransition{FeatureID: done.ID,
			FromPhase: types.PhaseTesting, ToPhase: types.PhaseImplementation, Actor: "qa",
			Kind: types.TransitionBackward}); err != nil {
			return err
		}
		if err := tx.SetFeatureStatus(env.Ctx, done.ID, types.FeatureCompleted, time.Now().UTC()); err != nil {
			return err
		}
		if err := tx.SetFeatureStatus(env.Ctx, old.ID, types.FeatureCompleted, now.AddDate(0, 0, -60)); err != nil {
			return err
		}
		return tx.SetFeatureStatus(env.Ctx, stuck.ID, types.FeatureBlocked, now)
	})

	since := now.AddDate(0, 0, -7)
	for status, want := range map[types.FeatureStatus]int{
		types.FeatureCompleted:  1,
		types.FeatureInProgress: 1,
		types.FeatureBlocked:    1,
		types.FeatureCancelled:  0,
	} {
		n, err := env.Store.CountFeatures(env.Ctx, status, since)
		if err != nil {
			t.Fatalf("CountFeatures(%s) failed: %v", status, err)
		}
		if n != want {
			t.Errorf("CountFeatures(%s) = %d, want %d", status, n, want)
		}
	}

	avgMinutes, avgRework, err := env.Store.CycleStats(env.Ctx, since)
	if err != nil {
		t.Fatalf("CycleStats failed: %v", err)
	}
	if avgRework != 1 {
		t.Errorf("avgRework = %v, want 1", avgRework)
	}
	if avgMinutes < 0 || avgMinutes > 5 {
		t.Errorf("avgMinutes = %v, want a few seconds' worth", avgMinutes)
	}

	avgMinutes, avgRework, err = env.Store.CycleStats(env.Ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("CycleStats failed: %v", err)
	}
	if avgMinutes != 0 || avgRework != 0 {
		t.Errorf("empty window stats = %v, %v", avgMinutes, avgRework)
	}
}

func TestAlertLifecycle(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("alerting")
	score := 45.0

	a := &types.Alert{FeatureID: f.ID, Type: types.AlertHealthDegraded, Level: types.AlertCritical,
		Message: "overall 45.0", Score: &score}
	sys := &types.Alert{Type: types.AlertSystemDegraded, Level: types.AlertWarning, Message: "system"}
	env.Tx(func(tx storage.Transaction) error {
		if err := tx.CreateAlert(env.Ctx, a); err != nil {
			return err
		}
		return tx.CreateAlert(env.Ctx, sys)
	})

	has, err := env.Store.HasUnresolvedAlert(env.Ctx, f.ID, types.AlertHealthDegraded)
	if err != nil {
		t.Fatalf("HasUnresolvedAlert failed: %v", err)
	}
	if !has {
		t.Errorf("expected an unresolved feature alert")
	}
	has, err = env.Store.HasUnresolvedAlert(env.Ctx, "", types.AlertSystemDegraded)
	if err != nil {
		t.Fatalf("HasUnresolvedAlert failed: %v", err)
	}
	if !has {
		t.Errorf("expected an unresolved system alert")
	}

	env.Tx(func(tx storage.Transaction) error { return tx.AcknowledgeAlert(env.Ctx, a.ID, "oncall") })
	err = env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
		return tx.AcknowledgeAlert(env.Ctx, a.ID, "oncall")
	})
	if !storage.IsInvariant(err) {
		t.Errorf("second acknowledge: expected invariant violation, got %v", err)
	}

	env.Tx(func(tx storage.Transaction) error { return tx.ResolveAlert(env.Ctx, a.ID, "oncall", "fixed") })
	err = env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
		return tx.ResolveAlert(env.Ctx, a.ID, "oncall", "again")
	})
	if !storage.IsInvariant(err) {
		t.Errorf("second resolve: expected invariant violation, got %v", err)
	}

	err = env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
		return tx.ResolveAlert(env.Ctx, 4242, "oncall", "")
	})
	if !storage.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	got, err := env.Store.GetAlert(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAlert failed: %v", err)
	}
	if got.Score == nil || *got.Score != 45 || got.ResolutionNote != "fixed" {
		t.Errorf("alert = %+v", got)
	}

	open, err := env.Store.ListAlerts(env.Ctx, types.AlertFilter{UnresolvedOnly: true})
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(open) != 1 || open[0].ID != sys.ID || open[0].FeatureID != "" {
		t.Errorf("unresolved alerts = %+v", open)
	}
}

func TestEventsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("audited")
	before := time.Now().UTC().Add(-time.Second)

	oldPhase, newPhase, note := "0", "1", "kickoff"
	env.Tx(func(tx storage.Transaction) error {
		if err := tx.AddEvent(env.Ctx, &types.Event{EntityType: types.EntityFeature, EntityID: f.ID,
			EventType: types.EventCreated, Actor: "alice"}); err != nil {
			return err
		}
		return tx.AddEvent(env.Ctx, &types.Event{EntityType: types.EntityFeature, EntityID: f.ID,
			EventType: types.EventPhaseChanged, Actor: "alice",
			OldValue: &oldPhase, NewValue: &newPhase, Comment: &note})
	})

	events, err := env.Store.GetEvents(env.Ctx, types.EntityFeature, f.ID, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	latest := events[0]
	if latest.EventType != types.EventPhaseChanged || latest.OldValue == nil || *latest.NewValue != "1" {
		t.Errorf("latest event = %+v", latest)
	}
	if events[1].OldValue != nil || events[1].Comment != nil {
		t.Errorf("created event should have no values: %+v", events[1])
	}

	limited, err := env.Store.GetEvents(env.Ctx, types.EntityFeature, f.ID, 1)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("len(limited) = %d, want 1", len(limited))
	}

	since, err := env.Store.GetEventsSince(env.Ctx, before, 0)
	if err != nil {
		t.Fatalf("GetEventsSince failed: %v", err)
	}
	if len(since) != 2 || since[0].EventType != types.EventCreated {
		t.Errorf("events since = %+v", since)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	v, err := env.Store.GetConfig(env.Ctx, "knowledge.similarity-threshold")
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if v != "" {
		t.Errorf("unset config = %q, want empty", v)
	}

	env.Tx(func(tx storage.Transaction) error {
		if err := tx.SetConfig(env.Ctx, "knowledge.similarity-threshold", "0.7"); err != nil {
			return err
		}
		return tx.SetConfig(env.Ctx, "knowledge.similarity-threshold", "0.8")
	})

	v, err = env.Store.GetConfig(env.Ctx, "knowledge.similarity-threshold")
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if v != "0.8" {
		t.Errorf("config = %q, want 0.8", v)
	}
}
