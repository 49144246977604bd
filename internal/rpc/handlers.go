package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/untoldecay/flowctl/internal/knowledge"
	"github.com/untoldecay/flowctl/internal/tracker"
	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/workflow"
)

type handlerFunc func(ctx context.Context, req *Request) (any, error)

// bind decodes and validates the request args into A before calling fn.
func bind[A any](v *validator.Validate, fn func(ctx context.Context, actor string, args *A) (any, error)) handlerFunc {
	return func(ctx context.Context, req *Request) (any, error) {
		var args A
		if len(req.Args) > 0 && string(req.Args) != "null" {
			if err := json.Unmarshal(req.Args, &args); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, req.Operation, err)
			}
		}
		if err := v.Struct(&args); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, req.Operation, err)
		}
		return fn(ctx, req.Actor, &args)
	}
}

// noArgs is the argument type of operations that take none.
type noArgs struct{}

func (s *Server) routes() map[string]handlerFunc {
	b := s.backend
	v := s.validate
	return map[string]handlerFunc{
		// Features
		OpFeatureCreate: bind(v, func(ctx context.Context, actor string, a *FeatureCreateArgs) (any, error) {
			return b.CreateFeature(ctx, workflow.CreateParams{
				ID:          a.ID,
				Name:        a.Name,
				Description: a.Description,
				Complexity:  a.Complexity,
				Severity:    a.Severity,
				EpicID:      a.EpicID,
			}, actor)
		}),
		OpFeatureGet: bind(v, func(ctx context.Context, _ string, a *IDArgs) (any, error) {
			return b.GetFeature(ctx, a.ID)
		}),
		OpFeatureList: bind(v, func(ctx context.Context, _ string, a *FeatureListArgs) (any, error) {
			return b.ListFeatures(ctx, types.FeatureFilter{Status: a.Status, Phase: a.Phase, EpicID: a.EpicID, Limit: a.Limit})
		}),
		OpFeatureStatus: bind(v, func(ctx context.Context, _ string, a *IDArgs) (any, error) {
			return b.GetFeatureStatus(ctx, a.ID)
		}),
		OpFeatureTransitions: bind(v, func(ctx context.Context, _ string, a *IDArgs) (any, error) {
			return b.GetTransitions(ctx, a.ID)
		}),
		OpPhaseTransition: bind(v, func(ctx context.Context, actor string, a *PhaseTransitionArgs) (any, error) {
			return b.TransitionPhase(ctx, a.FeatureID, a.Target, actor, a.Note)
		}),
		OpFeatureComplete: bind(v, func(ctx context.Context, actor string, a *FeatureCloseArgs) (any, error) {
			return b.CompleteFeature(ctx, a.FeatureID, actor, a.Note)
		}),
		OpFeatureCancel: bind(v, func(ctx context.Context, actor string, a *FeatureCloseArgs) (any, error) {
			return b.CancelFeature(ctx, a.FeatureID, actor, a.Note)
		}),
		OpEventList: bind(v, func(ctx context.Context, _ string, a *EventListArgs) (any, error) {
			return b.ListEvents(ctx, a.EntityType, a.EntityID, a.Limit)
		}),

		// Blockers
		OpBlockerCreate: bind(v, func(ctx context.Context, actor string, a *BlockerCreateArgs) (any, error) {
			return b.CreateBlocker(ctx, workflow.BlockerParams{
				FeatureID:   a.FeatureID,
				Phase:       a.Phase,
				Type:        a.Type,
				Severity:    a.Severity,
				Title:       a.Title,
				Description: a.Description,
			}, actor)
		}),
		OpBlockerResolve: bind(v, func(ctx context.Context, actor string, a *BlockerNoteArgs) (any, error) {
			return b.ResolveBlocker(ctx, a.ID, actor, a.Note)
		}),
		OpBlockerEscalate: bind(v, func(ctx context.Context, actor string, a *BlockerNoteArgs) (any, error) {
			return b.EscalateBlocker(ctx, a.ID, actor, a.Note)
		}),
		OpBlockerInProgress: bind(v, func(ctx context.Context, actor string, a *RowIDArgs) (any, error) {
			return b.MarkBlockerInProgress(ctx, a.ID, actor)
		}),
		OpBlockerList: bind(v, func(ctx context.Context, _ string, a *BlockerListArgs) (any, error) {
			return b.ListBlockers(ctx, a.FeatureID, a.OpenOnly)
		}),

		// Gates
		OpGateEvaluate: bind(v, func(ctx context.Context, actor string, a *GateEvaluateArgs) (any, error) {
			approver := a.Approver
			if approver == "" {
				approver = actor
			}
			return b.EvaluateGate(ctx, workflow.GateParams{
				FeatureID: a.FeatureID,
				Name:      a.Name,
				Status:    a.Status,
				Approver:  approver,
				Notes:     a.Notes,
			})
		}),
		OpGateList: bind(v, func(ctx context.Context, _ string, a *IDArgs) (any, error) {
			return b.ListGates(ctx, a.ID)
		}),

		// Locks and file conflicts
		OpLockAcquire: bind(v, func(ctx context.Context, actor string, a *LockArgs) (any, error) {
			return b.AcquireLock(ctx, a.FeatureID, a.Resource, a.Kind, actor)
		}),
		OpLockRelease: bind(v, func(ctx context.Context, actor string, a *LockArgs) (any, error) {
			released, err := b.ReleaseLock(ctx, a.FeatureID, a.Resource, actor)
			if err != nil {
				return nil, err
			}
			return ReleaseLockResult{Released: released}, nil
		}),
		OpLockList: bind(v, func(ctx context.Context, _ string, a *IDArgs) (any, error) {
			return b.ListLocks(ctx, a.ID)
		}),
		OpConflictDetect: bind(v, func(ctx context.Context, actor string, a *ConflictDetectArgs) (any, error) {
			return b.DetectFileConflicts(ctx, a.FeatureID, a.Paths, actor)
		}),
		OpConflictResolve: bind(v, func(ctx context.Context, actor string, a *ConflictResolveArgs) (any, error) {
			return b.ResolveFileConflict(ctx, a.ID, a.Strategy, actor, a.Notes)
		}),
		OpConflictList: bind(v, func(ctx context.Context, _ string, a *ConflictListArgs) (any, error) {
			return b.ListFileConflicts(ctx, a.ID, a.UnresolvedOnly)
		}),

		// Invocations
		OpInvocationStart: bind(v, func(ctx context.Context, actor string, a *InvocationStartArgs) (any, error) {
			return b.StartInvocation(ctx, tracker.StartParams{
				FeatureID: a.FeatureID,
				Phase:     a.Phase,
				Actor:     actor,
				Operation: a.Operation,
				Aids:      a.Aids,
			})
		}),
		OpInvocationEnd: bind(v, func(ctx context.Context, actor string, a *RowIDArgs) (any, error) {
			return b.EndInvocation(ctx, a.ID, actor)
		}),
		OpInvocationList: bind(v, func(ctx context.Context, _ string, a *IDArgs) (any, error) {
			return b.ListInvocations(ctx, a.ID)
		}),
		OpPhaseDurations: bind(v, func(ctx context.Context, _ string, a *IDArgs) (any, error) {
			return b.PhaseDurations(ctx, a.ID)
		}),

		// Learnings
		OpLearningCreate: bind(v, func(ctx context.Context, actor string, a *LearningCreateArgs) (any, error) {
			return b.CreateLearning(ctx, knowledge.CreateParams{
				ID:         a.ID,
				Category:   a.Category,
				Title:      a.Title,
				Content:    a.Content,
				Confidence: a.Confidence,
				Importance: a.Importance,
				Tags:       a.Tags,
				FeatureID:  a.FeatureID,
				Phase:      a.Phase,
			}, actor)
		}),
		OpLearningGet: bind(v, func(ctx context.Context, _ string, a *IDArgs) (any, error) {
			return b.GetLearning(ctx, a.ID)
		}),
		OpLearningList: bind(v, func(ctx context.Context, _ string, a *LearningListArgs) (any, error) {
			return b.ListLearnings(ctx, types.LearningFilter{
				Category:          a.Category,
				FeatureID:         a.FeatureID,
				Tag:               a.Tag,
				MinConfidence:     a.MinConfidence,
				IncludeSuperseded: a.IncludeSuperseded,
				Limit:             a.Limit,
			})
		}),
		OpLearningChain: bind(v, func(ctx context.Context, _ string, a *IDArgs) (any, error) {
			return b.Chain(ctx, a.ID)
		}),
		OpLearningEvolve: bind(v, func(ctx context.Context, actor string, a *LearningEvolveArgs) (any, error) {
			return b.Evolve(ctx, knowledge.EvolveParams{
				PredecessorID: a.PredecessorID,
				Title:         a.Title,
				Content:       a.Content,
				DeltaSummary:  a.DeltaSummary,
				Tags:          a.Tags,
			}, actor)
		}),
		OpLearningValidate: bind(v, func(ctx context.Context, actor string, a *IDArgs) (any, error) {
			return b.ValidateLearning(ctx, a.ID, actor)
		}),
		OpLearningReference: bind(v, func(ctx context.Context, actor string, a *IDArgs) (any, error) {
			return b.ReferenceLearning(ctx, a.ID, actor)
		}),

		// Knowledge conflicts
		OpLearningConflictDetect: bind(v, func(ctx context.Context, actor string, a *IDArgs) (any, error) {
			return b.DetectLearningConflicts(ctx, a.ID, actor)
		}),
		OpLearningConflictFlag: bind(v, func(ctx context.Context, actor string, a *LearningConflictFlagArgs) (any, error) {
			return b.FlagLearningConflict(ctx, a.LearningA, a.LearningB, a.Kind, a.Description, actor)
		}),
		OpLearningConflictResolve: bind(v, func(ctx context.Context, actor string, a *LearningConflictResolveArgs) (any, error) {
			return b.ResolveLearningConflict(ctx, a.ID, a.Status, a.WinnerID, actor, a.Notes)
		}),
		OpLearningConflictList: bind(v, func(ctx context.Context, _ string, a *ConflictListArgs) (any, error) {
			return b.ListLearningConflicts(ctx, a.ID, a.UnresolvedOnly)
		}),

		// Propagation
		OpPropagationEligibility: bind(v, func(ctx context.Context, _ string, a *IDArgs) (any, error) {
			return b.CheckEligibility(ctx, a.ID)
		}),
		OpPropagationDeclare: bind(v, func(ctx context.Context, actor string, a *PropagationDeclareArgs) (any, error) {
			return b.DeclarePropagationTarget(ctx, a.LearningID, a.Kind, a.Path, a.Relevance, actor)
		}),
		OpPropagationQueue: bind(v, func(ctx context.Context, _ string, _ *noArgs) (any, error) {
			return b.GetPropagationQueue(ctx)
		}),
		OpPropagationRecord: bind(v, func(ctx context.Context, actor string, a *PropagationRecordArgs) (any, error) {
			return b.RecordPropagation(ctx, knowledge.RecordParams{
				LearningID: a.LearningID,
				Kind:       a.Kind,
				Path:       a.Path,
				Actor:      actor,
				Section:    a.Section,
			})
		}),
		OpPropagationStatus: bind(v, func(ctx context.Context, _ string, a *IDArgs) (any, error) {
			return b.GetPropagationStatus(ctx, a.ID)
		}),
		OpPropagationPendingSyncs: bind(v, func(ctx context.Context, _ string, _ *noArgs) (any, error) {
			return b.GetPendingEvolutionSyncs(ctx)
		}),

		// Evaluation
		OpEvalFeature: bind(v, func(ctx context.Context, actor string, a *IDArgs) (any, error) {
			return b.ComputeFeatureEval(ctx, a.ID, actor)
		}),
		OpEvalFeatureList: bind(v, func(ctx context.Context, _ string, a *IDArgs) (any, error) {
			return b.ListFeatureEvals(ctx, a.ID)
		}),
		OpEvalSystem: bind(v, func(ctx context.Context, actor string, a *SystemEvalArgs) (any, error) {
			return b.ComputeSystemHealth(ctx, a.WindowDays, actor)
		}),
		OpEvalAllWindows: bind(v, func(ctx context.Context, actor string, _ *noArgs) (any, error) {
			return b.ComputeAllWindows(ctx, actor)
		}),
		OpEvalSystemLatest: bind(v, func(ctx context.Context, _ string, a *SystemEvalArgs) (any, error) {
			return b.GetLatestSystemEval(ctx, a.WindowDays)
		}),
		OpAlertAcknowledge: bind(v, func(ctx context.Context, actor string, a *RowIDArgs) (any, error) {
			return b.AcknowledgeAlert(ctx, a.ID, actor)
		}),
		OpAlertResolve: bind(v, func(ctx context.Context, actor string, a *AlertResolveArgs) (any, error) {
			return b.ResolveAlert(ctx, a.ID, actor, a.Note)
		}),
		OpAlertList: bind(v, func(ctx context.Context, _ string, a *AlertListArgs) (any, error) {
			return b.ListAlerts(ctx, types.AlertFilter{
				FeatureID:      a.FeatureID,
				Type:           a.Type,
				UnresolvedOnly: a.UnresolvedOnly,
				Limit:          a.Limit,
			})
		}),
	}
}
