package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/storage/sqlite/migrations"
	"github.com/untoldecay/flowctl/internal/types"
)

func TestNewRunsMigrations(t *testing.T) {
	store := newTestStore(t, "")

	version, err := store.GetMetadata(context.Background(), "schema_version")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if version != migrations.SchemaVersion {
		t.Errorf("schema_version = %q, want %q", version, migrations.SchemaVersion)
	}

	// Migrations are idempotent: running them again must not fail.
	if err := RunMigrations(store.UnderlyingDB()); err != nil {
		t.Fatalf("second RunMigrations failed: %v", err)
	}
}

func TestReopenExistingDatabase(t *testing.T) {
	path := t.TempDir() + "/reopen.db"
	ctx := context.Background()

	first, err := New(ctx, path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	env := &testEnv{t: t, Store: first, Ctx: ctx}
	f := env.CreateFeature("persisted")
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second := newTestStore(t, path)
	got, err := second.GetFeature(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetFeature after reopen failed: %v", err)
	}
	if got.Name != "persisted" {
		t.Errorf("Name = %q, want persisted", got.Name)
	}
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	env := newTestEnv(t)
	boom := errors.New("boom")

	err := env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
		f := &types.Feature{
			ID: "feat-rollback", Name: "rollback", Complexity: 1, Severity: types.SeverityLow,
			CurrentPhase: types.PhasePlanning, Status: types.FeatureInProgress,
		}
		if err := tx.CreateFeature(env.Ctx, f); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := env.Store.GetFeature(env.Ctx, "feat-rollback"); !storage.IsNotFound(err) {
		t.Errorf("expected not found after rollback, got %v", err)
	}
}

func TestRunInTransactionRollsBackOnPanic(t *testing.T) {
	env := newTestEnv(t)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
			f := &types.Feature{
				ID: "feat-panic", Name: "panic", Complexity: 1, Severity: types.SeverityLow,
				CurrentPhase: types.PhasePlanning, Status: types.FeatureInProgress,
			}
			if err := tx.CreateFeature(env.Ctx, f); err != nil {
				return err
			}
			panic("callback exploded")
		})
	}()

	if _, err := env.Store.GetFeature(env.Ctx, "feat-panic"); !storage.IsNotFound(err) {
		t.Errorf("expected not found after panic rollback, got %v", err)
	}
}

func TestTransactionReadsItsOwnWrites(t *testing.T) {
	env := newTestEnv(t)
	f := env.CreateFeature("read-your-writes")

	env.Tx(func(tx storage.Transaction) error {
		if err := tx.SetFeaturePhase(env.Ctx, f.ID, types.PhaseDiscovery, time.Time{}); err != nil {
			return err
		}
		got, err := tx.GetFeature(env.Ctx, f.ID)
		if err != nil {
			return err
		}
		if got.CurrentPhase != types.PhaseDiscovery {
			t.Errorf("phase inside tx = %s, want 1", got.CurrentPhase)
		}
		return nil
	})
}

func TestConcurrentValidationsAreNotLost(t *testing.T) {
	env := newTestEnv(t)
	l := env.CreateLearning("concurrent", 0.10)

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- env.Store.RunInTransaction(env.Ctx, func(tx storage.Transaction) error {
				return tx.ValidateLearning(env.Ctx, l.ID, "validator")
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("validation failed: %v", err)
		}
	}

	got, err := env.Store.GetLearning(env.Ctx, l.ID)
	if err != nil {
		t.Fatalf("GetLearning failed: %v", err)
	}
	if got.ValidationCount != workers {
		t.Errorf("ValidationCount = %d, want %d", got.ValidationCount, workers)
	}
	if got.Confidence != 0.70 {
		t.Errorf("Confidence = %.2f, want 0.70", got.Confidence)
	}
	if len(got.Validators) != workers {
		t.Errorf("Validators = %v, want %d entries", got.Validators, workers)
	}
}

func TestClosedStoreRejectsTransactions(t *testing.T) {
	store, err := New(context.Background(), t.TempDir()+"/closed.db")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !store.IsClosed() {
		t.Fatalf("IsClosed = false after Close")
	}
	err = store.RunInTransaction(context.Background(), func(tx storage.Transaction) error { return nil })
	if err == nil {
		t.Fatalf("expected error from closed store")
	}
	// Close is idempotent
	if err := store.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
}

func TestListMigrationsDescribesEveryMigration(t *testing.T) {
	for _, m := range ListMigrations() {
		if m.Description == "Unknown migration" {
			t.Errorf("migration %s has no description", m.Name)
		}
	}
}
