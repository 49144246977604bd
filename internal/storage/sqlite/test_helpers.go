package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

// testEnv provides a test environment with common setup and helpers.
// Use newTestEnv(t) to create a test environment with automatic cleanup.
type testEnv struct {
	t     *testing.T
	Store *SQLiteStorage
	Ctx   context.Context
	seq   int
}

// newTestEnv creates a new test environment with a configured store.
// The store is automatically cleaned up when the test completes.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{
		t:     t,
		Store: newTestStore(t, ""),
		Ctx:   context.Background(),
	}
}

// Tx runs fn in a transaction and fails the test on error.
func (e *testEnv) Tx(fn func(tx storage.Transaction) error) {
	e.t.Helper()
	if err := e.Store.RunInTransaction(e.Ctx, fn); err != nil {
		e.t.Fatalf("transaction failed: %v", err)
	}
}

// CreateFeature creates an in-progress feature in Planning.
func (e *testEnv) CreateFeature(name string) *types.Feature {
	e.t.Helper()
	e.seq++
	f := &types.Feature{
		ID:           fmt.Sprintf("feat-%03d", e.seq),
		Name:         name,
		Complexity:   types.ComplexityStandard,
		Severity:     types.SeverityMedium,
		CurrentPhase: types.PhasePlanning,
		Status:       types.FeatureInProgress,
		CreatedBy:    "test-user",
	}
	e.Tx(func(tx storage.Transaction) error { return tx.CreateFeature(e.Ctx, f) })
	return f
}

// MoveTo sets the feature phase directly, recording a forward transition.
func (e *testEnv) MoveTo(f *types.Feature, phase types.Phase) {
	e.t.Helper()
	e.Tx(func(tx storage.Transaction) error {
		if err := tx.SetFeaturePhase(e.Ctx, f.ID, phase, time.Time{}); err != nil {
			return err
		}
		return tx.AddTransition(e.Ctx, &types.PhaseTransition{
			FeatureID: f.ID, FromPhase: f.CurrentPhase, ToPhase: phase,
			Actor: "test-user", Kind: types.TransitionForward,
		})
	})
	f.CurrentPhase = phase
}

// CreateLearning creates a root learning with the given confidence.
func (e *testEnv) CreateLearning(title string, confidence float64, tags ...string) *types.Learning {
	e.t.Helper()
	e.seq++
	l := &types.Learning{
		ID:         fmt.Sprintf("lrn-%03d", e.seq),
		Category:   types.CategoryPattern,
		Title:      title,
		Content:    "content for " + title,
		Confidence: confidence,
		Importance: types.SeverityMedium,
		Tags:       tags,
	}
	e.Tx(func(tx storage.Transaction) error { return tx.CreateLearning(e.Ctx, l) })
	return l
}

// newTestStore creates a SQLiteStorage backed by a temp file.
// File-based databases behave like production for connection pool scenarios.
func newTestStore(t *testing.T, dbPath string) *SQLiteStorage {
	t.Helper()

	if dbPath == "" {
		dbPath = t.TempDir() + "/test.db"
	}

	store, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})

	return store
}
