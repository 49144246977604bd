package sqlite

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

func TestAcquireLockCollisionNamesHolder(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("locked")

	env.Tx(func(tx storage.Transaction) error {
		return tx.AcquireLock(env.Ctx, &types.Lock{
			FeatureID: f.ID, Resource: "internal/api/handler.go", Kind: types.LockFile, Holder: "agent-a",
		})
	})

	err := env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
		return tx.AcquireLock(env.Ctx, &types.Lock{
			FeatureID: f.ID, Resource: "internal/api/handler.go", Kind: types.LockFile, Holder: "agent-b",
		})
	})
	var collision *storage.CollisionError
	if !errors.As(err, &collision) {
		t.Fatalf("expected CollisionError, got %v", err)
	}
	if collision.Holder != "agent-a" {
		t.Errorf("Holder = %q, want agent-a", collision.Holder)
	}

	// The same path in another feature is a separate lock.
	other := env.CreateFeature("other")
	env.Tx(func(tx storage.Transaction) error {
		return tx.AcquireLock(env.Ctx, &types.Lock{
			FeatureID: other.ID, Resource: "internal/api/handler.go", Kind: types.LockFile, Holder: "agent-b",
		})
	})
}

func TestReleaseLocks(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("releases")

	env.Tx(func(tx storage.Transaction) error {
		for _, res := range []string{types.FeatureLockResource, "a.go", "b.go"} {
			kind := types.LockFile
			if res == types.FeatureLockResource {
				kind = types.LockFeature
			}
			if err := tx.AcquireLock(env.Ctx, &types.Lock{FeatureID: f.ID, Resource: res, Kind: kind, Holder: "agent"}); err != nil {
				return err
			}
		}
		return nil
	})

	env.Tx(func(tx storage.Transaction) error {
		released, err := tx.ReleaseLock(env.Ctx, f.ID, "a.go")
		if err != nil {
			return err
		}
		if !released {
			t.Errorf("expected a.go to be released")
		}
		released, err = tx.ReleaseLock(env.Ctx, f.ID, "a.go")
		if err != nil {
			return err
		}
		if released {
			t.Errorf("releasing an unheld lock reported a release")
		}
		return nil
	})

	locks, err := env.Store.GetLocks(env.Ctx, f.ID)
	if err != nil {
		t.Fatalf("GetLocks failed: %v", err)
	}
	if len(locks) != 2 {
		t.Fatalf("len(locks) = %d, want 2", len(locks))
	}

	active, err := env.Store.ListActiveFileLocks(env.Ctx)
	if err != nil {
		t.Fatalf("ListActiveFileLocks failed: %v", err)
	}
	if len(active) != 1 || active[0].Resource != "b.go" {
		t.Errorf("active file locks = %+v", active)
	}

	env.Tx(func(tx storage.Transaction) error {
		n, err := tx.ReleaseAllLocks(env.Ctx, f.ID)
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("ReleaseAllLocks = %d, want 2", n)
		}
		return nil
	})
}

func TestActiveFileLocksSkipTerminalFeatures(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("done soon")
	env.Tx(func(tx storage.Transaction) error {
		if err := tx.AcquireLock(env.Ctx, &types.Lock{FeatureID: f.ID, Resource: "x.go", Kind: types.LockFile, Holder: "agent"}); err != nil {
			return err
		}
		return tx.SetFeatureStatus(env.Ctx, f.ID, types.FeatureCancelled, time.Time{})
	})

	active, err := env.Store.ListActiveFileLocks(env.Ctx)
	if err != nil {
		t.Fatalf("ListActiveFileLocks failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active locks for a cancelled feature, got %+v", active)
	}
}

func TestUpsertFileConflictMergesPaths(t *testing.T) {
	env := newTestEnv(t)
	a := env.CreateFeature("a")
	b := env.CreateFeature("b")

	var first types.FileConflict
	env.Tx(func(tx storage.Transaction) error {
		// Reversed order on purpose: storage canonicalizes the pair.
		first = types.FileConflict{
			FeatureA: b.ID, FeatureB: a.ID, Resources: []string{"z.go", "m.go"},
			Risk: types.RiskMedium, DetectedPhase: types.PhasePlanning, DetectedBy: "agent",
		}
		created, err := tx.UpsertFileConflict(env.Ctx, &first)
		if err != nil {
			return err
		}
		if !created {
			t.Errorf("expected a new conflict row")
		}
		return nil
	})
	if first.FeatureA != a.ID || first.FeatureB != b.ID {
		t.Errorf("pair = (%s, %s), want (%s, %s)", first.FeatureA, first.FeatureB, a.ID, b.ID)
	}

	env.Tx(func(tx storage.Transaction) error {
		again := types.FileConflict{
			FeatureA: a.ID, FeatureB: b.ID, Resources: []string{"m.go", "a.go"},
			Risk: types.RiskHigh, DetectedPhase: types.PhaseImplementation,
		}
		created, err := tx.UpsertFileConflict(env.Ctx, &again)
		if err != nil {
			return err
		}
		if created {
			t.Errorf("expected the existing row to be updated")
		}
		if again.ID != first.ID {
			t.Errorf("ID = %d, want %d", again.ID, first.ID)
		}
		return nil
	})

	got, err := env.Store.GetFileConflict(env.Ctx, first.ID)
	if err != nil {
		t.Fatalf("GetFileConflict failed: %v", err)
	}
	want := []string{"a.go", "m.go", "z.go"}
	if !reflect.DeepEqual(got.Resources, want) {
		t.Errorf("Resources = %v, want %v", got.Resources, want)
	}
	if got.Risk != types.RiskHigh {
		t.Errorf("Risk = %s, want HIGH", got.Risk)
	}

	// Risk never drops on re-detection.
	env.Tx(func(tx storage.Transaction) error {
		_, err := tx.UpsertFileConflict(env.Ctx, &types.FileConflict{
			FeatureA: a.ID, FeatureB: b.ID, Resources: []string{"a.go"}, Risk: types.RiskLow,
			DetectedPhase: types.PhaseImplementation,
		})
		return err
	})
	got, err = env.Store.GetFileConflict(env.Ctx, first.ID)
	if err != nil {
		t.Fatalf("GetFileConflict failed: %v", err)
	}
	if got.Risk != types.RiskHigh {
		t.Errorf("Risk after low re-detection = %s, want HIGH", got.Risk)
	}
}

func TestResolveFileConflict(t *testing.T) {
	env := newTestEnv(t)
	a := env.CreateFeature("a")
	b := env.CreateFeature("b")
	c := &types.FileConflict{FeatureA: a.ID, FeatureB: b.ID, Resources: []string{"shared.go"},
		Risk: types.RiskMedium, DetectedPhase: types.PhasePlanning}
	env.Tx(func(tx storage.Transaction) error {
		_, err := tx.UpsertFileConflict(env.Ctx, c)
		return err
	})

	unresolved, err := env.Store.ListFileConflicts(env.Ctx, b.ID, true)
	if err != nil {
		t.Fatalf("ListFileConflicts failed: %v", err)
	}
	if len(unresolved) != 1 || unresolved[0].Other(b.ID) != a.ID {
		t.Fatalf("unresolved = %+v", unresolved)
	}

	env.Tx(func(tx storage.Transaction) error {
		return tx.ResolveFileConflict(env.Ctx, c.ID, types.StrategySerialize, "lead", "a goes first")
	})

	got, err := env.Store.GetFileConflict(env.Ctx, c.ID)
	if err != nil {
		t.Fatalf("GetFileConflict failed: %v", err)
	}
	if got.Status != types.ConflictSerialized || got.Strategy != types.StrategySerialize {
		t.Errorf("resolved conflict = status %s strategy %s", got.Status, got.Strategy)
	}

	unresolved, err = env.Store.ListFileConflicts(env.Ctx, "", true)
	if err != nil {
		t.Fatalf("ListFileConflicts failed: %v", err)
	}
	if len(unresolved) != 0 {
		t.Errorf("expected no unresolved conflicts, got %d", len(unresolved))
	}
}

func TestInvocationEndsOnce(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("timed")
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	inv := &types.AgentInvocation{FeatureID: f.ID, Phase: f.CurrentPhase, Actor: "agent",
		Operation: "plan", Aids: []string{"docs"}, StartedAt: start}
	env.Tx(func(tx storage.Transaction) error { return tx.StartInvocation(env.Ctx, inv) })

	env.Tx(func(tx storage.Transaction) error {
		ended, err := tx.EndInvocation(env.Ctx, inv.ID, start.Add(90*time.Second))
		if err != nil {
			return err
		}
		if ended.DurationMS == nil || *ended.DurationMS != 90000 {
			t.Errorf("DurationMS = %v, want 90000", ended.DurationMS)
		}
		return nil
	})

	err := env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
		_, err := tx.EndInvocation(env.Ctx, inv.ID, time.Time{})
		return err
	})
	if !storage.IsInvariant(err) {
		t.Fatalf("expected invariant violation ending twice, got %v", err)
	}

	invs, err := env.Store.ListInvocations(env.Ctx, f.ID)
	if err != nil {
		t.Fatalf("ListInvocations failed: %v", err)
	}
	if len(invs) != 1 || invs[0].Duration() != 90*time.Second {
		t.Errorf("invocations = %+v", invs)
	}
	if !reflect.DeepEqual(invs[0].Aids, []string{"docs"}) {
		t.Errorf("Aids = %v", invs[0].Aids)
	}
}

func TestInvocationDurationClampedAtZero(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("skewed clock")
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	inv := &types.AgentInvocation{FeatureID: f.ID, Phase: f.CurrentPhase, Actor: "agent", StartedAt: start}
	env.Tx(func(tx storage.Transaction) error { return tx.StartInvocation(env.Ctx, inv) })

	env.Tx(func(tx storage.Transaction) error {
		ended, err := tx.EndInvocation(env.Ctx, inv.ID, start.Add(-time.Minute))
		if err != nil {
			return err
		}
		if *ended.DurationMS != 0 {
			t.Errorf("DurationMS = %d, want 0", *ended.DurationMS)
		}
		return nil
	})
}

func TestUpsertFileConflictReopensOnNewPaths(t *testing.T) {
	env := newTestEnv(t)
	a := env.CreateFeature("a")
	b := env.CreateFeature("b")

	detect := func(paths ...string) *types.FileConflict {
		c := &types.FileConflict{
			FeatureA: a.ID, FeatureB: b.ID, Resources: paths,
			Risk: types.RiskHigh, DetectedPhase: types.PhaseImplementation, DetectedBy: "agent",
		}
		env.Tx(func(tx storage.Transaction) error {
			_, err := tx.UpsertFileConflict(env.Ctx, c)
			return err
		})
		return c
	}

	first := detect("a.go")
	env.Tx(func(tx storage.Transaction) error {
		return tx.ResolveFileConflict(env.Ctx, first.ID, types.StrategySerialize, "lead", "a first")
	})

	same := detect("a.go")
	if same.Status != types.ConflictSerialized {
		t.Errorf("status after re-detecting the same path = %s, want SERIALIZED", same.Status)
	}

	grown := detect("a.go", "b.go")
	if grown.ID != first.ID {
		t.Errorf("ID = %d, want %d", grown.ID, first.ID)
	}
	got, err := env.Store.GetFileConflict(env.Ctx, first.ID)
	if err != nil {
		t.Fatalf("GetFileConflict failed: %v", err)
	}
	if got.Status != types.ConflictDetected {
		t.Errorf("status = %s, want DETECTED after new paths", got.Status)
	}
	if got.Strategy != "" || got.ResolvedBy != "" || got.ResolvedAt != nil {
		t.Errorf("resolution not cleared: %+v", got)
	}
	if !reflect.DeepEqual(got.Resources, []string{"a.go", "b.go"}) {
		t.Errorf("Resources = %v", got.Resources)
	}

	unresolved, err := env.Store.ListFileConflicts(env.Ctx, "", true)
	if err != nil {
		t.Fatalf("ListFileConflicts failed: %v", err)
	}
	if len(unresolved) != 1 || unresolved[0].ID != first.ID {
		t.Errorf("unresolved conflicts = %v, want the reopened one", unresolved)
	}
}
