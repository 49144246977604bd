// Package storage defines the interface for workflow storage backends.
package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/untoldecay/flowctl/internal/types"
)

// Reader holds the read operations shared by Storage and Transaction.
// Reads through a Transaction see the transaction's own writes.
type Reader interface {
	// Features
	GetFeature(ctx context.Context, id string) (*types.Feature, error)
	ListFeatures(ctx context.Context, filter types.FeatureFilter) ([]*types.Feature, error)
	GetTransitions(ctx context.Context, featureID string) ([]*types.PhaseTransition, error)
	CountPhaseEntries(ctx context.Context, featureID string, phase types.Phase) (int, error)

	// Gating
	GetBlocker(ctx context.Context, id int64) (*types.Blocker, error)
	ListBlockers(ctx context.Context, featureID string, openOnly bool) ([]*types.Blocker, error)
	CountOpenBlockers(ctx context.Context, featureID string) (int, error)
	ListGates(ctx context.Context, featureID string) ([]*types.QualityGate, error)

	// Coordination
	GetLocks(ctx context.Context, featureID string) ([]*types.Lock, error)
	ListActiveFileLocks(ctx context.Context) ([]*types.Lock, error)
	GetFileConflict(ctx context.Context, id int64) (*types.FileConflict, error)
	ListFileConflicts(ctx context.Context, featureID string, unresolvedOnly bool) ([]*types.FileConflict, error)

	// Durations
	GetInvocation(ctx context.Context, id int64) (*types.AgentInvocation, error)
	ListInvocations(ctx context.Context, featureID string) ([]*types.AgentInvocation, error)

	// Knowledge
	GetLearning(ctx context.Context, id string) (*types.Learning, error)
	ListLearnings(ctx context.Context, filter types.LearningFilter) ([]*types.Learning, error)
	GetLearningConflict(ctx context.Context, id int64) (*types.LearningConflict, error)
	ListLearningConflicts(ctx context.Context, learningID string, unresolvedOnly bool) ([]*types.LearningConflict, error)
	HasLearningConflict(ctx context.Context, a, b string) (bool, error)

	// Propagation
	ListPropagationTargets(ctx context.Context, learningID string) ([]*types.PropagationTarget, error)
	ListPropagationRecords(ctx context.Context, learningID string) ([]*types.PropagationRecord, error)
	GetPropagationQueue(ctx context.Context) ([]*types.QueueItem, error)
	ListSupersededRecords(ctx context.Context) ([]*types.PropagationRecord, error)

	// Evaluation
	GetLatestFeatureEval(ctx context.Context, featureID string) (*types.FeatureEval, error)
	ListFeatureEvals(ctx context.Context, featureID string) ([]*types.FeatureEval, error)
	GetLatestSystemEval(ctx context.Context, windowDays int) (*types.SystemHealthEval, error)
	GetAlert(ctx context.Context, id int64) (*types.Alert, error)
	ListAlerts(ctx context.Context, filter types.AlertFilter) ([]*types.Alert, error)
	HasUnresolvedAlert(ctx context.Context, featureID string, alertType types.AlertType) (bool, error)
	CountFeatures(ctx context.Context, status types.FeatureStatus, since time.Time) (int, error)
	CycleStats(ctx context.Context, since time.Time) (avgMinutes, avgRework float64, err error)
	CountUnresolvedLearningConflicts(ctx context.Context) (int, error)

	// Events
	GetEvents(ctx context.Context, entityType, entityID string, limit int) ([]*types.Event, error)
	GetEventsSince(ctx context.Context, since time.Time, limit int) ([]*types.Event, error)

	// Config
	GetConfig(ctx context.Context, key string) (string, error)
}

// Transaction provides atomic multi-operation support within a single database transaction.
//
// Every mutation of the workflow store happens through a Transaction so that
// precondition checks and the writes they guard observe the same snapshot.
//
// # Transaction Semantics
//
//   - All operations within the transaction share the same database connection
//   - Changes are not visible to other connections until commit
//   - If any operation returns an error, the transaction is rolled back
//   - If the callback function panics, the transaction is rolled back
//   - On successful return from the callback, the transaction is committed
//
// # SQLite Specifics
//
//   - Uses BEGIN IMMEDIATE mode to acquire the write lock before the first read
//   - Concurrent writers are serialized rather than failing on lock upgrade
//
// # Example Usage
//
//	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
//	    f, err := tx.GetFeature(ctx, id)
//	    if err != nil {
//	        return err // Triggers rollback
//	    }
//	    if err := tx.SetFeaturePhase(ctx, f.ID, next, now); err != nil {
//	        return err // Triggers rollback
//	    }
//	    return tx.AddTransition(ctx, transition) // nil triggers commit
//	})
type Transaction interface {
	Reader

	// Features
	CreateFeature(ctx context.Context, feature *types.Feature) error
	SetFeaturePhase(ctx context.Context, id string, phase types.Phase, at time.Time) error
	SetFeatureStatus(ctx context.Context, id string, status types.FeatureStatus, at time.Time) error
	RecomputeFeatureStatus(ctx context.Context, id string) (types.FeatureStatus, error)
	AddTransition(ctx context.Context, t *types.PhaseTransition) error

	// Gating
	CreateBlocker(ctx context.Context, blocker *types.Blocker) error
	UpdateBlockerStatus(ctx context.Context, id int64, status types.BlockerStatus, actor, resolution string) error
	CreateGate(ctx context.Context, gate *types.QualityGate) error

	// Coordination
	AcquireLock(ctx context.Context, lock *types.Lock) error
	ReleaseLock(ctx context.Context, featureID, resource string) (bool, error)
	ReleaseAllLocks(ctx context.Context, featureID string) (int, error)
	UpsertFileConflict(ctx context.Context, conflict *types.FileConflict) (bool, error)
	ResolveFileConflict(ctx context.Context, id int64, strategy types.ResolutionStrategy, actor, notes string) error

	// Durations
	StartInvocation(ctx context.Context, inv *types.AgentInvocation) error
	EndInvocation(ctx context.Context, id int64, endedAt time.Time) (*types.AgentInvocation, error)

	// Knowledge
	CreateLearning(ctx context.Context, learning *types.Learning) error
	SupersedeLearning(ctx context.Context, predecessorID, successorID string) error
	ValidateLearning(ctx context.Context, id, actor string) error
	ReferenceLearning(ctx context.Context, id string) error
	MarkLearningPropagated(ctx context.Context, id string) error
	ClearLearningPropagated(ctx context.Context, id string) error
	CreateLearningConflict(ctx context.Context, conflict *types.LearningConflict) error
	UpdateLearningConflict(ctx context.Context, id int64, status types.LearningConflictStatus, winnerID, actor, notes string) error

	// Propagation
	DeclarePropagationTarget(ctx context.Context, target *types.PropagationTarget) (bool, error)
	AddPropagationRecord(ctx context.Context, record *types.PropagationRecord) (bool, error)

	// Evaluation
	AddFeatureEval(ctx context.Context, eval *types.FeatureEval) error
	AddSystemEval(ctx context.Context, eval *types.SystemHealthEval) error
	CreateAlert(ctx context.Context, alert *types.Alert) error
	AcknowledgeAlert(ctx context.Context, id int64, actor string) error
	ResolveAlert(ctx context.Context, id int64, actor, note string) error

	// Events
	AddEvent(ctx context.Context, event *types.Event) error

	// Config
	SetConfig(ctx context.Context, key, value string) error
}

// Storage defines the interface for workflow storage backends
type Storage interface {
	Reader

	// Transactions
	//
	// RunInTransaction executes a function within a database transaction.
	//
	// Transaction behavior:
	//   - If fn returns nil, the transaction is committed
	//   - If fn returns an error, the transaction is rolled back
	//   - If fn panics, the transaction is rolled back and the panic is re-raised
	//   - Uses BEGIN IMMEDIATE for SQLite to acquire write lock early
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Close() error

	// Database path (for daemon validation)
	Path() string

	// UnderlyingDB returns the underlying *sql.DB connection.
	// WARNING: Direct database access bypasses the storage layer.
	UnderlyingDB() *sql.DB
}
