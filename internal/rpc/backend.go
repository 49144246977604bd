package rpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/untoldecay/flowctl/internal/evaluation"
	"github.com/untoldecay/flowctl/internal/knowledge"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/tracker"
	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/workflow"
)

// API is the full set of operations served by the daemon. Backend answers
// them in-process and Client forwards them over the socket, so commands are
// written once against API.
type API interface {
	CreateFeature(ctx context.Context, p workflow.CreateParams, actor string) (*types.Feature, error)
	GetFeature(ctx context.Context, id string) (*types.Feature, error)
	ListFeatures(ctx context.Context, filter types.FeatureFilter) ([]*types.Feature, error)
	GetFeatureStatus(ctx context.Context, featureID string) (*types.FeatureStatusReport, error)
	GetTransitions(ctx context.Context, featureID string) ([]*types.PhaseTransition, error)
	TransitionPhase(ctx context.Context, featureID string, target types.Phase, actor, note string) (*types.PhaseTransition, error)
	CompleteFeature(ctx context.Context, featureID, actor, note string) (*workflow.CompletionResult, error)
	CancelFeature(ctx context.Context, featureID, actor, reason string) (*types.Feature, error)
	ListEvents(ctx context.Context, entityType, entityID string, limit int) ([]*types.Event, error)

	CreateBlocker(ctx context.Context, p workflow.BlockerParams, actor string) (*workflow.BlockerResult, error)
	ResolveBlocker(ctx context.Context, id int64, actor, resolution string) (*workflow.BlockerResult, error)
	EscalateBlocker(ctx context.Context, id int64, actor, note string) (*workflow.BlockerResult, error)
	MarkBlockerInProgress(ctx context.Context, id int64, actor string) (*types.Blocker, error)
	ListBlockers(ctx context.Context, featureID string, openOnly bool) ([]*types.Blocker, error)

	EvaluateGate(ctx context.Context, p workflow.GateParams) (*types.QualityGate, error)
	ListGates(ctx context.Context, featureID string) ([]*types.QualityGate, error)

	AcquireLock(ctx context.Context, featureID, resource string, kind types.LockKind, holder string) (*types.Lock, error)
	ReleaseLock(ctx context.Context, featureID, resource, actor string) (bool, error)
	ListLocks(ctx context.Context, featureID string) ([]*types.Lock, error)

	DetectFileConflicts(ctx context.Context, featureID string, paths []string, actor string) ([]*types.FileConflict, error)
	ResolveFileConflict(ctx context.Context, id int64, strategy types.ResolutionStrategy, actor, notes string) (*types.FileConflict, error)
	ListFileConflicts(ctx context.Context, featureID string, unresolvedOnly bool) ([]*types.FileConflict, error)

	StartInvocation(ctx context.Context, p tracker.StartParams) (*types.AgentInvocation, error)
	EndInvocation(ctx context.Context, id int64, actor string) (*types.AgentInvocation, error)
	ListInvocations(ctx context.Context, featureID string) ([]*types.AgentInvocation, error)
	PhaseDurations(ctx context.Context, featureID string) ([]*types.PhaseDuration, error)

	CreateLearning(ctx context.Context, p knowledge.CreateParams, actor string) (*types.Learning, error)
	GetLearning(ctx context.Context, id string) (*types.Learning, error)
	ListLearnings(ctx context.Context, filter types.LearningFilter) ([]*types.Learning, error)
	Chain(ctx context.Context, id string) ([]*types.Learning, error)
	Evolve(ctx context.Context, p knowledge.EvolveParams, actor string) (*types.Learning, error)
	ValidateLearning(ctx context.Context, id, actor string) (*types.Learning, error)
	ReferenceLearning(ctx context.Context, id, actor string) (*types.Learning, error)

	DetectLearningConflicts(ctx context.Context, id, actor string) ([]*types.LearningConflict, error)
	FlagLearningConflict(ctx context.Context, a, b string, kind types.LearningConflictKind, description, actor string) (*types.LearningConflict, error)
	ResolveLearningConflict(ctx context.Context, id int64, status types.LearningConflictStatus, winnerID, actor, notes string) (*types.LearningConflict, error)
	ListLearningConflicts(ctx context.Context, learningID string, unresolvedOnly bool) ([]*types.LearningConflict, error)

	CheckEligibility(ctx context.Context, id string) (*types.Eligibility, error)
	DeclarePropagationTarget(ctx context.Context, learningID string, kind types.TargetKind, path string, relevance float64, actor string) (*types.DeclareTargetResult, error)
	GetPropagationQueue(ctx context.Context) ([]*types.QueueItem, error)
	RecordPropagation(ctx context.Context, p knowledge.RecordParams) (*types.PropagationResult, error)
	GetPropagationStatus(ctx context.Context, id string) (*types.PropagationStatus, error)
	GetPendingEvolutionSyncs(ctx context.Context) ([]*types.EvolutionSyncItem, error)

	ComputeFeatureEval(ctx context.Context, featureID, actor string) (*types.FeatureEval, error)
	ListFeatureEvals(ctx context.Context, featureID string) ([]*types.FeatureEval, error)
	ComputeSystemHealth(ctx context.Context, windowDays int, actor string) (*types.SystemHealthEval, error)
	ComputeAllWindows(ctx context.Context, actor string) ([]*types.SystemHealthEval, error)
	GetLatestSystemEval(ctx context.Context, windowDays int) (*types.SystemHealthEval, error)

	AcknowledgeAlert(ctx context.Context, id int64, actor string) (*types.Alert, error)
	ResolveAlert(ctx context.Context, id int64, actor, note string) (*types.Alert, error)
	ListAlerts(ctx context.Context, filter types.AlertFilter) ([]*types.Alert, error)
}

// Aliases give the embedded services distinct field names in Backend.
type (
	Workflow  = workflow.Service
	Tracker   = tracker.Service
	Knowledge = knowledge.Service
	Evaluator = evaluation.Service
)

// Backend wires the four services over one store.
type Backend struct {
	*Workflow
	*Tracker
	*Knowledge
	*Evaluator

	store storage.Storage
}

var (
	_ API = (*Backend)(nil)
	_ API = (*Client)(nil)
)

// NewBackend builds the services over store. Completions are scored by the
// evaluator; opts configure the knowledge service.
func NewBackend(store storage.Storage, log *slog.Logger, opts ...knowledge.Option) *Backend {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	eval := evaluation.New(store, log.With("component", "evaluation"))
	return &Backend{
		Workflow:  workflow.New(store, log.With("component", "workflow"), workflow.WithEvaluator(eval)),
		Tracker:   tracker.New(store, log.With("component", "tracker")),
		Knowledge: knowledge.New(store, log.With("component", "knowledge"), opts...),
		Evaluator: eval,
		store:     store,
	}
}

// Store returns the storage the services share.
func (b *Backend) Store() storage.Storage { return b.store }

// SetClock overrides the time source of every service. Tests only.
func (b *Backend) SetClock(now func() time.Time) {
	b.Workflow.SetClock(now)
	b.Tracker.SetClock(now)
	b.Knowledge.SetClock(now)
	b.Evaluator.SetClock(now)
}
