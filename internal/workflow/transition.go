package workflow

import (
	"context"
	"fmt"

	"github.com/untoldecay/flowctl/internal/audit"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/telemetry"
	"github.com/untoldecay/flowctl/internal/types"
)

// TransitionPhase moves a feature to target and appends the transition.
//
// Moving to the current phase or the next one is FORWARD, moving to any
// earlier phase is BACKWARD, and skipping a phase is always rejected. An
// advance to the next phase is also refused while the feature is blocked or
// a gate rejected the current visit. Phase 8 is reached only through
// CompleteFeature.
func (s *Service) TransitionPhase(ctx context.Context, featureID string, target types.Phase, actor, note string) (*types.PhaseTransition, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !target.IsValid() {
		return nil, fmt.Errorf("invalid phase: %s", target)
	}
	if target.IsTerminal() {
		return nil, storage.Violation("completion required",
			"phase %s is reached only by completing the feature", target.Label())
	}

	var tr *types.PhaseTransition
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		f, err := activeFeature(ctx, tx, featureID, "transition")
		if err != nil {
			return err
		}
		from := f.CurrentPhase
		kind, ok := types.ClassifyTransition(from, target)
		if !ok {
			return storage.Violation("phase skip",
				"cannot move %s from phase %s to phase %s: every phase must execute "+
					"(complexity changes the depth of work within a phase, never which phases run)",
				f.ID, from.Label(), target.Label())
		}
		if target.Index() == from.Index()+1 {
			if err := checkAdvance(ctx, tx, f); err != nil {
				return err
			}
		}

		now := s.timestamp()
		if err := tx.SetFeaturePhase(ctx, f.ID, target, now); err != nil {
			return err
		}
		tr = &types.PhaseTransition{
			FeatureID: f.ID,
			FromPhase: from,
			ToPhase:   target,
			Actor:     actor,
			Kind:      kind,
			Note:      note,
			CreatedAt: now,
		}
		if err := tx.AddTransition(ctx, tr); err != nil {
			return err
		}
		return audit.Record(ctx, tx, types.EntityFeature, f.ID, types.EventPhaseChanged, actor,
			audit.Change{Old: string(from), New: string(target), Comment: note})
	})
	if err != nil {
		return nil, s.rejected("transition", featureID, err)
	}

	telemetry.RecordTransition(ctx, string(tr.Kind))
	s.log.Info("phase changed", "feature", featureID, "from", tr.FromPhase, "to", tr.ToPhase,
		"kind", tr.Kind, "actor", actor)
	return tr, nil
}

// checkAdvance refuses to leave the current phase while it is blocked or
// its latest visit carries a rejected gate.
func checkAdvance(ctx context.Context, tx storage.Transaction, f *types.Feature) error {
	if f.Status == types.FeatureBlocked {
		n, err := tx.CountOpenBlockers(ctx, f.ID)
		if err != nil {
			return err
		}
		return storage.Violation("feature blocked",
			"%s has %d open blocker(s); resolve them before advancing past phase %s",
			f.ID, n, f.CurrentPhase.Label())
	}

	attempt, err := visitNumber(ctx, tx, f)
	if err != nil {
		return err
	}
	gates, err := tx.ListGates(ctx, f.ID)
	if err != nil {
		return err
	}
	for _, g := range gates {
		if g.Phase == f.CurrentPhase && g.Attempt == attempt && g.Status == types.GateRejected {
			return storage.Violation("gate rejected",
				"gate %q rejected phase %s; rework the phase before advancing", g.Name, f.CurrentPhase.Label())
		}
	}
	return nil
}

// visitNumber returns how many times the feature has entered its current phase.
func visitNumber(ctx context.Context, r storage.Reader, f *types.Feature) (int, error) {
	n, err := r.CountPhaseEntries(ctx, f.ID, f.CurrentPhase)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		n = 1
	}
	return n, nil
}

// CompletionResult is returned by CompleteFeature.
type CompletionResult struct {
	Feature       *types.Feature         `json:"feature"`
	Transition    *types.PhaseTransition `json:"transition"`
	ReleasedLocks int                    `json:"released_locks"`
	Eval          *types.FeatureEval     `json:"eval,omitempty"`
}

// CompleteFeature closes a feature with no open blockers: it moves to phase
// 8, becomes COMPLETED, and drops its locks. When an evaluator is configured
// the feature is scored after commit.
func (s *Service) CompleteFeature(ctx context.Context, featureID, actor, note string) (*CompletionResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	res := &CompletionResult{}
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		f, err := activeFeature(ctx, tx, featureID, "complete")
		if err != nil {
			return err
		}
		open, err := tx.CountOpenBlockers(ctx, f.ID)
		if err != nil {
			return err
		}
		if open > 0 {
			return storage.Violation("open blockers",
				"cannot complete %s: %d blocker(s) still open", f.ID, open)
		}

		now := s.timestamp()
		if err := tx.SetFeatureStatus(ctx, f.ID, types.FeatureCompleted, now); err != nil {
			return err
		}
		res.Transition = &types.PhaseTransition{
			FeatureID: f.ID,
			FromPhase: f.CurrentPhase,
			ToPhase:   types.PhaseComplete,
			Actor:     actor,
			Kind:      types.TransitionForward,
			Note:      note,
			CreatedAt: now,
		}
		if err := tx.AddTransition(ctx, res.Transition); err != nil {
			return err
		}
		if res.ReleasedLocks, err = tx.ReleaseAllLocks(ctx, f.ID); err != nil {
			return err
		}
		if err := audit.Record(ctx, tx, types.EntityFeature, f.ID, types.EventCompleted, actor,
			audit.Change{Old: string(f.CurrentPhase), New: string(types.PhaseComplete), Comment: note}); err != nil {
			return err
		}
		res.Feature, err = tx.GetFeature(ctx, f.ID)
		return err
	})
	if err != nil {
		return nil, s.rejected("complete", featureID, err)
	}

	telemetry.RecordTransition(ctx, string(types.TransitionForward))
	s.log.Info("feature completed", "feature", featureID, "actor", actor, "released_locks", res.ReleasedLocks)

	if s.evaluator != nil {
		eval, err := s.evaluator.ComputeFeatureEval(ctx, featureID, actor)
		if err != nil {
			return res, fmt.Errorf("feature %s completed but evaluation failed: %w", featureID, err)
		}
		res.Eval = eval
	}
	return res, nil
}

// CancelFeature abandons a feature. Its phase is kept and its locks dropped.
func (s *Service) CancelFeature(ctx context.Context, featureID, actor, reason string) (*types.Feature, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var f *types.Feature
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		cur, err := activeFeature(ctx, tx, featureID, "cancel")
		if err != nil {
			return err
		}
		if err := tx.SetFeatureStatus(ctx, cur.ID, types.FeatureCancelled, s.timestamp()); err != nil {
			return err
		}
		if _, err := tx.ReleaseAllLocks(ctx, cur.ID); err != nil {
			return err
		}
		if err := audit.Record(ctx, tx, types.EntityFeature, cur.ID, types.EventCancelled, actor,
			audit.Change{Old: string(cur.Status), New: string(types.FeatureCancelled), Comment: reason}); err != nil {
			return err
		}
		f, err = tx.GetFeature(ctx, cur.ID)
		return err
	})
	if err != nil {
		return nil, s.rejected("cancel", featureID, err)
	}
	s.log.Info("feature cancelled", "feature", featureID, "actor", actor)
	return f, nil
}
