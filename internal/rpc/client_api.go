package rpc

import (
	"context"

	"github.com/untoldecay/flowctl/internal/knowledge"
	"github.com/untoldecay/flowctl/internal/tracker"
	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/workflow"
)

func (c *Client) CreateFeature(ctx context.Context, p workflow.CreateParams, actor string) (*types.Feature, error) {
	return call[*types.Feature](ctx, c, OpFeatureCreate, actor, &FeatureCreateArgs{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Complexity:  p.Complexity,
		Severity:    p.Severity,
		EpicID:      p.EpicID,
	})
}

func (c *Client) GetFeature(ctx context.Context, id string) (*types.Feature, error) {
	return call[*types.Feature](ctx, c, OpFeatureGet, "", &IDArgs{ID: id})
}

func (c *Client) ListFeatures(ctx context.Context, filter types.FeatureFilter) ([]*types.Feature, error) {
	return call[[]*types.Feature](ctx, c, OpFeatureList, "", &FeatureListArgs{
		Status: filter.Status,
		Phase:  filter.Phase,
		EpicID: filter.EpicID,
		Limit:  filter.Limit,
	})
}

func (c *Client) GetFeatureStatus(ctx context.Context, featureID string) (*types.FeatureStatusReport, error) {
	return call[*types.FeatureStatusReport](ctx, c, OpFeatureStatus, "", &IDArgs{ID: featureID})
}

func (c *Client) GetTransitions(ctx context.Context, featureID string) ([]*types.PhaseTransition, error) {
	return call[[]*types.PhaseTransition](ctx, c, OpFeatureTransitions, "", &IDArgs{ID: featureID})
}

func (c *Client) TransitionPhase(ctx context.Context, featureID string, target types.Phase, actor, note string) (*types.PhaseTransition, error) {
	return call[*types.PhaseTransition](ctx, c, OpPhaseTransition, actor, &PhaseTransitionArgs{
		FeatureID: featureID,
		Target:    target,
		Note:      note,
	})
}

func (c *Client) CompleteFeature(ctx context.Context, featureID, actor, note string) (*workflow.CompletionResult, error) {
	return call[*workflow.CompletionResult](ctx, c, OpFeatureComplete, actor, &FeatureCloseArgs{FeatureID: featureID, Note: note})
}

func (c *Client) CancelFeature(ctx context.Context, featureID, actor, reason string) (*types.Feature, error) {
	return call[*types.Feature](ctx, c, OpFeatureCancel, actor, &FeatureCloseArgs{FeatureID: featureID, Note: reason})
}

func (c *Client) ListEvents(ctx context.Context, entityType, entityID string, limit int) ([]*types.Event, error) {
	return call[[]*types.Event](ctx, c, OpEventList, "", &EventListArgs{
		EntityType: entityType,
		EntityID:   entityID,
		Limit:      limit,
	})
}

func (c *Client) CreateBlocker(ctx context.Context, p workflow.BlockerParams, actor string) (*workflow.BlockerResult, error) {
	return call[*workflow.BlockerResult](ctx, c, OpBlockerCreate, actor, &BlockerCreateArgs{
		FeatureID:   p.FeatureID,
		Phase:       p.Phase,
		Type:        p.Type,
		Severity:    p.Severity,
		Title:       p.Title,
		Description: p.Description,
	})
}

func (c *Client) ResolveBlocker(ctx context.Context, id int64, actor, resolution string) (*workflow.BlockerResult, error) {
	return call[*workflow.BlockerResult](ctx, c, OpBlockerResolve, actor, &BlockerNoteArgs{ID: id, Note: resolution})
}

func (c *Client) EscalateBlocker(ctx context.Context, id int64, actor, note string) (*workflow.BlockerResult, error) {
	return call[*workflow.BlockerResult](ctx, c, OpBlockerEscalate, actor, &BlockerNoteArgs{ID: id, Note: note})
}

func (c *Client) MarkBlockerInProgress(ctx context.Context, id int64, actor string) (*types.Blocker, error) {
	return call[*types.Blocker](ctx, c, OpBlockerInProgress, actor, &RowIDArgs{ID: id})
}

func (c *Client) ListBlockers(ctx context.Context, featureID string, openOnly bool) ([]*types.Blocker, error) {
	return call[[]*types.Blocker](ctx, c, OpBlockerList, "", &BlockerListArgs{FeatureID: featureID, OpenOnly: openOnly})
}

func (c *Client) EvaluateGate(ctx context.Context, p workflow.GateParams) (*types.QualityGate, error) {
	return call[*types.QualityGate](ctx, c, OpGateEvaluate, p.Approver, &GateEvaluateArgs{
		FeatureID: p.FeatureID,
		Name:      p.Name,
		Status:    p.Status,
		Approver:  p.Approver,
		Notes:     p.Notes,
	})
}

func (c *Client) ListGates(ctx context.Context, featureID string) ([]*types.QualityGate, error) {
	return call[[]*types.QualityGate](ctx, c, OpGateList, "", &IDArgs{ID: featureID})
}

func (c *Client) AcquireLock(ctx context.Context, featureID, resource string, kind types.LockKind, holder string) (*types.Lock, error) {
	return call[*types.Lock](ctx, c, OpLockAcquire, holder, &LockArgs{FeatureID: featureID, Resource: resource, Kind: kind})
}

func (c *Client) ReleaseLock(ctx context.Context, featureID, resource, actor string) (bool, error) {
	res, err := call[ReleaseLockResult](ctx, c, OpLockRelease, actor, &LockArgs{FeatureID: featureID, Resource: resource})
	return res.Released, err
}

func (c *Client) ListLocks(ctx context.Context, featureID string) ([]*types.Lock, error) {
	return call[[]*types.Lock](ctx, c, OpLockList, "", &IDArgs{ID: featureID})
}

func (c *Client) DetectFileConflicts(ctx context.Context, featureID string, paths []string, actor string) ([]*types.FileConflict, error) {
	return call[[]*types.FileConflict](ctx, c, OpConflictDetect, actor, &ConflictDetectArgs{FeatureID: featureID, Paths: paths})
}

func (c *Client) ResolveFileConflict(ctx context.Context, id int64, strategy types.ResolutionStrategy, actor, notes string) (*types.FileConflict, error) {
	return call[*types.FileConflict](ctx, c, OpConflictResolve, actor, &ConflictResolveArgs{ID: id, Strategy: strategy, Notes: notes})
}

func (c *Client) ListFileConflicts(ctx context.Context, featureID string, unresolvedOnly bool) ([]*types.FileConflict, error) {
	return call[[]*types.FileConflict](ctx, c, OpConflictList, "", &ConflictListArgs{ID: featureID, UnresolvedOnly: unresolvedOnly})
}

func (c *Client) StartInvocation(ctx context.Context, p tracker.StartParams) (*types.AgentInvocation, error) {
	return call[*types.AgentInvocation](ctx, c, OpInvocationStart, p.Actor, &InvocationStartArgs{
		FeatureID: p.FeatureID,
		Phase:     p.Phase,
		Operation: p.Operation,
		Aids:      p.Aids,
	})
}

func (c *Client) EndInvocation(ctx context.Context, id int64, actor string) (*types.AgentInvocation, error) {
	return call[*types.AgentInvocation](ctx, c, OpInvocationEnd, actor, &RowIDArgs{ID: id})
}

func (c *Client) ListInvocations(ctx context.Context, featureID string) ([]*types.AgentInvocation, error) {
	return call[[]*types.AgentInvocation](ctx, c, OpInvocationList, "", &IDArgs{ID: featureID})
}

func (c *Client) PhaseDurations(ctx context.Context, featureID string) ([]*types.PhaseDuration, error) {
	return call[[]*types.PhaseDuration](ctx, c, OpPhaseDurations, "", &IDArgs{ID: featureID})
}

func (c *Client) CreateLearning(ctx context.Context, p knowledge.CreateParams, actor string) (*types.Learning, error) {
	return call[*types.Learning](ctx, c, OpLearningCreate, actor, &LearningCreateArgs{
		ID:         p.ID,
		Category:   p.Category,
		Title:      p.Title,
		Content:    p.Content,
		Confidence: p.Confidence,
		Importance: p.Importance,
		Tags:       p.Tags,
		FeatureID:  p.FeatureID,
		Phase:      p.Phase,
	})
}

func (c *Client) GetLearning(ctx context.Context, id string) (*types.Learning, error) {
	return call[*types.Learning](ctx, c, OpLearningGet, "", &IDArgs{ID: id})
}

func (c *Client) ListLearnings(ctx context.Context, filter types.LearningFilter) ([]*types.Learning, error) {
	return call[[]*types.Learning](ctx, c, OpLearningList, "", &LearningListArgs{
		Category:          filter.Category,
		FeatureID:         filter.FeatureID,
		Tag:               filter.Tag,
		MinConfidence:     filter.MinConfidence,
		IncludeSuperseded: filter.IncludeSuperseded,
		Limit:             filter.Limit,
	})
}

func (c *Client) Chain(ctx context.Context, id string) ([]*types.Learning, error) {
	return call[[]*types.Learning](ctx, c, OpLearningChain, "", &IDArgs{ID: id})
}

func (c *Client) Evolve(ctx context.Context, p knowledge.EvolveParams, actor string) (*types.Learning, error) {
	return call[*types.Learning](ctx, c, OpLearningEvolve, actor, &LearningEvolveArgs{
		PredecessorID: p.PredecessorID,
		Title:         p.Title,
		Content:       p.Content,
		DeltaSummary:  p.DeltaSummary,
		Tags:          p.Tags,
	})
}

func (c *Client) ValidateLearning(ctx context.Context, id, actor string) (*types.Learning, error) {
	return call[*types.Learning](ctx, c, OpLearningValidate, actor, &IDArgs{ID: id})
}

func (c *Client) ReferenceLearning(ctx context.Context, id, actor string) (*types.Learning, error) {
	return call[*types.Learning](ctx, c, OpLearningReference, actor, &IDArgs{ID: id})
}

func (c *Client) DetectLearningConflicts(ctx context.Context, id, actor string) ([]*types.LearningConflict, error) {
	return call[[]*types.LearningConflict](ctx, c, OpLearningConflictDetect, actor, &IDArgs{ID: id})
}

func (c *Client) FlagLearningConflict(ctx context.Context, a, b string, kind types.LearningConflictKind, description, actor string) (*types.LearningConflict, error) {
	return call[*types.LearningConflict](ctx, c, OpLearningConflictFlag, actor, &LearningConflictFlagArgs{
		LearningA:   a,
		LearningB:   b,
		Kind:        kind,
		Description: description,
	})
}

func (c *Client) ResolveLearningConflict(ctx context.Context, id int64, status types.LearningConflictStatus, winnerID, actor, notes string) (*types.LearningConflict, error) {
	return call[*types.LearningConflict](ctx, c, OpLearningConflictResolve, actor, &LearningConflictResolveArgs{
		ID:       id,
		Status:   status,
		WinnerID: winnerID,
		Notes:    notes,
	})
}

func (c *Client) ListLearningConflicts(ctx context.Context, learningID string, unresolvedOnly bool) ([]*types.LearningConflict, error) {
	return call[[]*types.LearningConflict](ctx, c, OpLearningConflictList, "", &ConflictListArgs{ID: learningID, UnresolvedOnly: unresolvedOnly})
}

func (c *Client) CheckEligibility(ctx context.Context, id string) (*types.Eligibility, error) {
	return call[*types.Eligibility](ctx, c, OpPropagationEligibility, "", &IDArgs{ID: id})
}

func (c *Client) DeclarePropagationTarget(ctx context.Context, learningID string, kind types.TargetKind, path string, relevance float64, actor string) (*types.DeclareTargetResult, error) {
	return call[*types.DeclareTargetResult](ctx, c, OpPropagationDeclare, actor, &PropagationDeclareArgs{
		LearningID: learningID,
		Kind:       kind,
		Path:       path,
		Relevance:  relevance,
	})
}

func (c *Client) GetPropagationQueue(ctx context.Context) ([]*types.QueueItem, error) {
	return call[[]*types.QueueItem](ctx, c, OpPropagationQueue, "", nil)
}

func (c *Client) RecordPropagation(ctx context.Context, p knowledge.RecordParams) (*types.PropagationResult, error) {
	return call[*types.PropagationResult](ctx, c, OpPropagationRecord, p.Actor, &PropagationRecordArgs{
		LearningID: p.LearningID,
		Kind:       p.Kind,
		Path:       p.Path,
		Section:    p.Section,
	})
}

func (c *Client) GetPropagationStatus(ctx context.Context, id string) (*types.PropagationStatus, error) {
	return call[*types.PropagationStatus](ctx, c, OpPropagationStatus, "", &IDArgs{ID: id})
}

func (c *Client) GetPendingEvolutionSyncs(ctx context.Context) ([]*types.EvolutionSyncItem, error) {
	return call[[]*types.EvolutionSyncItem](ctx, c, OpPropagationPendingSyncs, "", nil)
}

func (c *Client) ComputeFeatureEval(ctx context.Context, featureID, actor string) (*types.FeatureEval, error) {
	return call[*types.FeatureEval](ctx, c, OpEvalFeature, actor, &IDArgs{ID: featureID})
}

func (c *Client) ListFeatureEvals(ctx context.Context, featureID string) ([]*types.FeatureEval, error) {
	return call[[]*types.FeatureEval](ctx, c, OpEvalFeatureList, "", &IDArgs{ID: featureID})
}

func (c *Client) ComputeSystemHealth(ctx context.Context, windowDays int, actor string) (*types.SystemHealthEval, error) {
	return call[*types.SystemHealthEval](ctx, c, OpEvalSystem, actor, &SystemEvalArgs{WindowDays: windowDays})
}

func (c *Client) ComputeAllWindows(ctx context.Context, actor string) ([]*types.SystemHealthEval, error) {
	return call[[]*types.SystemHealthEval](ctx, c, OpEvalAllWindows, actor, nil)
}

func (c *Client) GetLatestSystemEval(ctx context.Context, windowDays int) (*types.SystemHealthEval, error) {
	return call[*types.SystemHealthEval](ctx, c, OpEvalSystemLatest, "", &SystemEvalArgs{WindowDays: windowDays})
}

func (c *Client) AcknowledgeAlert(ctx context.Context, id int64, actor string) (*types.Alert, error) {
	return call[*types.Alert](ctx, c, OpAlertAcknowledge, actor, &RowIDArgs{ID: id})
}

func (c *Client) ResolveAlert(ctx context.Context, id int64, actor, note string) (*types.Alert, error) {
	return call[*types.Alert](ctx, c, OpAlertResolve, actor, &AlertResolveArgs{ID: id, Note: note})
}

func (c *Client) ListAlerts(ctx context.Context, filter types.AlertFilter) ([]*types.Alert, error) {
	return call[[]*types.Alert](ctx, c, OpAlertList, "", &AlertListArgs{
		FeatureID:      filter.FeatureID,
		Type:           filter.Type,
		UnresolvedOnly: filter.UnresolvedOnly,
		Limit:          filter.Limit,
	})
}
