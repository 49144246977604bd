package sqlite

import (
	"testing"
	"time"

	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

func TestCreateAndGetFeature(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("login flow")

	got, err := env.Store.GetFeature(env.Ctx, f.ID)
	if err != nil {
		t.Fatalf("GetFeature failed: %v", err)
	}
	if got.Name != "login flow" {
		t.Errorf("Name = %q, want %q", got.Name, "login flow")
	}
	if got.CurrentPhase != types.PhasePlanning {
		t.Errorf("CurrentPhase = %s, want 0", got.CurrentPhase)
	}
	if got.Status != types.FeatureInProgress {
		t.Errorf("Status = %s, want IN_PROGRESS", got.Status)
	}
	if got.CreatedAt.IsZero() || got.CompletedAt != nil {
		t.Errorf("unexpected timestamps: created=%v completed=%v", got.CreatedAt, got.CompletedAt)
	}
}

func TestCreateFeatureDuplicateID(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("first")

	err := env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
		dup := *f
		return tx.CreateFeature(env.Ctx, &dup)
	})
	if !storage.IsCollision(err) {
		t.Fatalf("expected collision for duplicate id, got %v", err)
	}
}

func TestGetFeatureNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Store.GetFeature(env.Ctx, "feat-missing"); !storage.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCompletedFeatureMustBeInCompletePhase(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("half done")

	// Bypass SetFeatureStatus to prove the table CHECK holds on its own.
	_, err := env.Store.UnderlyingDB().ExecContext(env.Ctx,
		`UPDATE features SET status = 'COMPLETED', completed_at = ? WHERE id = ?`, time.Now().UTC(), f.ID)
	if err == nil {
		t.Fatalf("expected CHECK failure completing a feature outside phase 8")
	}

	env.Tx(func(tx storage.Transaction) error {
		return tx.SetFeatureStatus(env.Ctx, f.ID, types.FeatureCompleted, time.Time{})
	})
	got, err := env.Store.GetFeature(env.Ctx, f.ID)
	if err != nil {
		t.Fatalf("GetFeature failed: %v", err)
	}
	if got.CurrentPhase != types.PhaseComplete || got.CompletedAt == nil {
		t.Errorf("completed feature = phase %s completed_at %v", got.CurrentPhase, got.CompletedAt)
	}
}

func TestListFeaturesFilters(t *testing.T) {
	env := newTestEnv(t)
	a := env.CreateFeature("a")
	env.CreateFeature("b")
	c := env.CreateFeature("c")
	env.MoveTo(a, types.PhaseDiscovery)
	env.Tx(func(tx storage.Transaction) error {
		return tx.SetFeatureStatus(env.Ctx, c.ID, types.FeatureCancelled, time.Time{})
	})

	all, err := env.Store.ListFeatures(env.Ctx, types.FeatureFilter{})
	if err != nil {
		t.Fatalf("ListFeatures failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}

	phase := types.PhaseDiscovery
	inDiscovery, err := env.Store.ListFeatures(env.Ctx, types.FeatureFilter{Phase: &phase})
	if err != nil {
		t.Fatalf("ListFeatures failed: %v", err)
	}
	if len(inDiscovery) != 1 || inDiscovery[0].ID != a.ID {
		t.Errorf("phase filter returned %v", inDiscovery)
	}

	cancelled := types.FeatureCancelled
	gone, err := env.Store.ListFeatures(env.Ctx, types.FeatureFilter{Status: &cancelled})
	if err != nil {
		t.Fatalf("ListFeatures failed: %v", err)
	}
	if len(gone) != 1 || gone[0].CancelledAt == nil {
		t.Errorf("status filter returned %v", gone)
	}

	limited, err := env.Store.ListFeatures(env.Ctx, types.FeatureFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListFeatures failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(limited) = %d, want 2", len(limited))
	}
}

func TestCountPhaseEntries(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("revisits")

	n, err := env.Store.CountPhaseEntries(env.Ctx, f.ID, types.PhasePlanning)
	if err != nil {
		t.Fatalf("CountPhaseEntries failed: %v", err)
	}
	if n != 1 {
		t.Errorf("initial planning entries = %d, want 1", n)
	}

	env.MoveTo(f, types.PhaseDiscovery)
	env.MoveTo(f, types.PhaseArchitecture)
	env.Tx(func(tx storage.Transaction) error {
		if err := tx.SetFeaturePhase(env.Ctx, f.ID, types.PhaseDiscovery, time.Time{}); err != nil {
			return err
		}
		return tx.AddTransition(env.Ctx, &types.PhaseTransition{
			FeatureID: f.ID, FromPhase: types.PhaseArchitecture, ToPhase: types.PhaseDiscovery,
			Actor: "reviewer", Kind: types.TransitionBackward,
		})
	})
	// Escalations stay in place and do not start a new visit.
	env.Tx(func(tx storage.Transaction) error {
		return tx.AddTransition(env.Ctx, &types.PhaseTransition{
			FeatureID: f.ID, FromPhase: types.PhaseDiscovery, ToPhase: types.PhaseDiscovery,
			Actor: "lead", Kind: types.TransitionEscalation,
		})
	})

	n, err = env.Store.CountPhaseEntries(env.Ctx, f.ID, types.PhaseDiscovery)
	if err != nil {
		t.Fatalf("CountPhaseEntries failed: %v", err)
	}
	if n != 2 {
		t.Errorf("discovery entries = %d, want 2", n)
	}

	transitions, err := env.Store.GetTransitions(env.Ctx, f.ID)
	if err != nil {
		t.Fatalf("GetTransitions failed: %v", err)
	}
	if len(transitions) != 4 {
		t.Fatalf("len(transitions) = %d, want 4", len(transitions))
	}
	if transitions[2].Kind != types.TransitionBackward {
		t.Errorf("transitions[2].Kind = %s, want BACKWARD", transitions[2].Kind)
	}
}

func TestBlockersDriveFeatureStatus(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("blocked work")

	var b1, b2 types.Blocker
	env.Tx(func(tx storage.Transaction) error {
		b1 = types.Blocker{FeatureID: f.ID, Phase: f.CurrentPhase, Type: types.BlockerTechnical,
			Severity: types.SeverityHigh, Title: "flaky build"}
		b2 = types.Blocker{FeatureID: f.ID, Phase: f.CurrentPhase, Type: types.BlockerExternal,
			Severity: types.SeverityLow, Title: "vendor api"}
		if err := tx.CreateBlocker(env.Ctx, &b1); err != nil {
			return err
		}
		if err := tx.CreateBlocker(env.Ctx, &b2); err != nil {
			return err
		}
		status, err := tx.RecomputeFeatureStatus(env.Ctx, f.ID)
		if err != nil {
			return err
		}
		if status != types.FeatureBlocked {
			t.Errorf("status with open blockers = %s, want BLOCKED", status)
		}
		return nil
	})

	env.Tx(func(tx storage.Transaction) error {
		if err := tx.UpdateBlockerStatus(env.Ctx, b1.ID, types.BlockerResolved, "dev", "pinned deps"); err != nil {
			return err
		}
		if err := tx.UpdateBlockerStatus(env.Ctx, b2.ID, types.BlockerEscalated, "dev", ""); err != nil {
			return err
		}
		status, err := tx.RecomputeFeatureStatus(env.Ctx, f.ID)
		if err != nil {
			return err
		}
		if status != types.FeatureBlocked {
			t.Errorf("status with escalated blocker = %s, want BLOCKED", status)
		}
		return nil
	})

	open, err := env.Store.CountOpenBlockers(env.Ctx, f.ID)
	if err != nil {
		t.Fatalf("CountOpenBlockers failed: %v", err)
	}
	if open != 1 {
		t.Errorf("open blockers = %d, want 1", open)
	}

	env.Tx(func(tx storage.Transaction) error {
		if err := tx.UpdateBlockerStatus(env.Ctx, b2.ID, types.BlockerResolved, "lead", "contract signed"); err != nil {
			return err
		}
		status, err := tx.RecomputeFeatureStatus(env.Ctx, f.ID)
		if err != nil {
			return err
		}
		if status != types.FeatureInProgress {
			t.Errorf("status after resolving all = %s, want IN_PROGRESS", status)
		}
		return nil
	})

	got, err := env.Store.GetBlocker(env.Ctx, b2.ID)
	if err != nil {
		t.Fatalf("GetBlocker failed: %v", err)
	}
	if got.ResolvedAt == nil || got.EscalatedAt == nil || got.ResolvedBy != "lead" {
		t.Errorf("resolved blocker = %+v", got)
	}
}

func TestResolveBlockerTwice(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("once")
	b := &types.Blocker{FeatureID: f.ID, Phase: f.CurrentPhase, Type: types.BlockerResource,
		Severity: types.SeverityMedium, Title: "no reviewer"}
	env.Tx(func(tx storage.Transaction) error { return tx.CreateBlocker(env.Ctx, b) })
	env.Tx(func(tx storage.Transaction) error {
		return tx.UpdateBlockerStatus(env.Ctx, b.ID, types.BlockerResolved, "dev", "found one")
	})

	err := env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
		return tx.UpdateBlockerStatus(env.Ctx, b.ID, types.BlockerResolved, "dev", "again")
	})
	if !storage.IsInvariant(err) {
		t.Fatalf("expected invariant violation, got %v", err)
	}

	err = env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
		return tx.UpdateBlockerStatus(env.Ctx, 9999, types.BlockerResolved, "dev", "")
	})
	if !storage.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecomputeLeavesTerminalFeatures(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("cancelled")
	env.Tx(func(tx storage.Transaction) error {
		if err := tx.CreateBlocker(env.Ctx, &types.Blocker{FeatureID: f.ID, Phase: f.CurrentPhase,
			Type: types.BlockerDependency, Severity: types.SeverityLow, Title: "dep"}); err != nil {
			return err
		}
		return tx.SetFeatureStatus(env.Ctx, f.ID, types.FeatureCancelled, time.Time{})
	})

	env.Tx(func(tx storage.Transaction) error {
		status, err := tx.RecomputeFeatureStatus(env.Ctx, f.ID)
		if err != nil {
			return err
		}
		if status != types.FeatureCancelled {
			t.Errorf("status = %s, want CANCELLED", status)
		}
		return nil
	})
}

func TestGateUniquePerVisit(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("gated")

	gate := func(attempt int, status types.GateStatus) error {
		return env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
			return tx.CreateGate(env.Ctx, &types.QualityGate{
				FeatureID: f.ID, Name: "design-review", Phase: types.PhasePlanning,
				Attempt: attempt, Status: status, Approver: "lead",
			})
		})
	}

	if err := gate(1, types.GateRejected); err != nil {
		t.Fatalf("first gate failed: %v", err)
	}
	if err := gate(1, types.GateApproved); !storage.IsCollision(err) {
		t.Fatalf("expected collision for same visit, got %v", err)
	}
	if err := gate(2, types.GateApproved); err != nil {
		t.Fatalf("gate on second visit failed: %v", err)
	}

	gates, err := env.Store.ListGates(env.Ctx, f.ID)
	if err != nil {
		t.Fatalf("ListGates failed: %v", err)
	}
	if len(gates) != 2 || gates[1].Attempt != 2 || gates[1].Status != types.GateApproved {
		t.Errorf("gates = %+v", gates)
	}
}
