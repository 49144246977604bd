package knowledge

import (
	"context"
	"fmt"
	"sort"

	"github.com/untoldecay/flowctl/internal/audit"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/telemetry"
	"github.com/untoldecay/flowctl/internal/types"
)

// eligibility evaluates the learning-level conditions every target
// propagation needs. Every failing condition is listed.
func eligibility(ctx context.Context, r storage.Reader, l *types.Learning) (*types.Eligibility, error) {
	e := &types.Eligibility{LearningID: l.ID, Confidence: l.Confidence}
	if l.IsSuperseded {
		e.Reasons = append(e.Reasons, fmt.Sprintf("superseded by %s", l.SuccessorID))
	}
	if l.Confidence < types.PropagationConfidence {
		e.Reasons = append(e.Reasons, fmt.Sprintf("confidence %.2f is below %.2f",
			l.Confidence, types.PropagationConfidence))
	}
	open, err := r.ListLearningConflicts(ctx, l.ID, true)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		e.Reasons = append(e.Reasons, fmt.Sprintf("%d unresolved conflict(s)", len(open)))
	}
	e.Eligible = len(e.Reasons) == 0
	return e, nil
}

// CheckEligibility reports whether a learning may be propagated as a whole.
// Besides the per-target conditions, a learning already marked fully
// propagated is not eligible. An ineligible learning is a normal result,
// not an error.
func (s *Service) CheckEligibility(ctx context.Context, id string) (*types.Eligibility, error) {
	l, err := s.store.GetLearning(ctx, id)
	if err != nil {
		return nil, err
	}
	e, err := eligibility(ctx, s.store, l)
	if err != nil {
		return nil, err
	}
	if l.PropagatedAt != nil {
		e.Reasons = append(e.Reasons, "already fully propagated")
		e.Eligible = false
	}
	return e, nil
}

// DeclarePropagationTarget registers a downstream consumer of a learning.
// Declaring the same (kind, path) again returns the stored row unchanged. A
// new target clears the learning's fully-propagated marker.
func (s *Service) DeclarePropagationTarget(ctx context.Context, learningID string, kind types.TargetKind, path string, relevance float64, actor string) (*types.DeclareTargetResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := types.ValidateTarget(kind, path); err != nil {
		return nil, err
	}
	res := &types.DeclareTargetResult{}
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if _, err := tx.GetLearning(ctx, learningID); err != nil {
			return err
		}
		pt := &types.PropagationTarget{
			LearningID: learningID,
			Kind:       kind,
			Path:       path,
			Relevance:  relevance,
			DeclaredBy: actor,
			CreatedAt:  s.timestamp(),
		}
		created, err := tx.DeclarePropagationTarget(ctx, pt)
		if err != nil {
			return err
		}
		res.Target, res.Created = pt, created
		if !created {
			return nil
		}
		if err := tx.ClearLearningPropagated(ctx, learningID); err != nil {
			return err
		}
		return audit.Record(ctx, tx, types.EntityLearning, learningID, types.EventTargetDeclared, actor,
			audit.Change{New: pt.Key(), Comment: fmt.Sprintf("relevance %.2f", relevance)})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetPropagationQueue lists every (learning, target) pair ready to propagate.
func (s *Service) GetPropagationQueue(ctx context.Context) ([]*types.QueueItem, error) {
	return s.store.GetPropagationQueue(ctx)
}

// RecordParams describes one completed propagation.
type RecordParams struct {
	LearningID string
	Kind       types.TargetKind
	Path       string
	Actor      string
	Section    string
}

// RecordPropagation records that a learning was written into a target.
//
// Recording the same target twice returns the first record. A learning or
// declared target below the thresholds yields an ineligible result and no
// write. When every declared target has a record the learning is marked
// fully propagated.
func (s *Service) RecordPropagation(ctx context.Context, p RecordParams) (*types.PropagationResult, error) {
	if err := requireActor(p.Actor); err != nil {
		return nil, err
	}
	if err := types.ValidateTarget(p.Kind, p.Path); err != nil {
		return nil, err
	}
	res := &types.PropagationResult{}
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		l, err := tx.GetLearning(ctx, p.LearningID)
		if err != nil {
			return err
		}
		records, err := tx.ListPropagationRecords(ctx, l.ID)
		if err != nil {
			return err
		}
		key := string(p.Kind) + ":" + p.Path
		for _, r := range records {
			if r.Key() == key {
				res.AlreadyRecorded = true
				res.Record = r
				res.FullyPropagated = l.PropagatedAt != nil
				return nil
			}
		}

		elig, err := eligibility(ctx, tx, l)
		if err != nil {
			return err
		}
		targets, err := tx.ListPropagationTargets(ctx, l.ID)
		if err != nil {
			return err
		}
		for _, t := range targets {
			if t.Key() == key && t.Relevance < types.MinTargetRelevance {
				elig.Eligible = false
				elig.Reasons = append(elig.Reasons, fmt.Sprintf("target relevance %.2f is below %.2f",
					t.Relevance, types.MinTargetRelevance))
			}
		}
		res.Eligibility = elig
		if !elig.Eligible {
			return nil
		}

		rec := &types.PropagationRecord{
			LearningID:   l.ID,
			Kind:         p.Kind,
			Path:         p.Path,
			Actor:        p.Actor,
			Section:      p.Section,
			PropagatedAt: s.timestamp(),
		}
		if res.Recorded, err = tx.AddPropagationRecord(ctx, rec); err != nil {
			return err
		}
		res.Record = rec
		if err := audit.Record(ctx, tx, types.EntityLearning, l.ID, types.EventPropagated, p.Actor,
			audit.Change{New: rec.Key(), Comment: p.Section}); err != nil {
			return err
		}

		if pending := pendingTargets(targets, append(records, rec)); len(targets) > 0 && len(pending) == 0 {
			if err := tx.MarkLearningPropagated(ctx, l.ID); err != nil {
				return err
			}
			res.FullyPropagated = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Recorded {
		telemetry.RecordPropagation(ctx, string(p.Kind))
		s.log.Info("learning propagated", "learning", p.LearningID, "target", res.Record.Key(),
			"fully_propagated", res.FullyPropagated)
	}
	return res, nil
}

// pendingTargets returns declared targets with no record.
func pendingTargets(targets []*types.PropagationTarget, records []*types.PropagationRecord) []*types.PropagationTarget {
	done := make(map[string]bool, len(records))
	for _, r := range records {
		done[r.Key()] = true
	}
	var pending []*types.PropagationTarget
	for _, t := range targets {
		if !done[t.Key()] {
			pending = append(pending, t)
		}
	}
	return pending
}

// GetPropagationStatus compares a learning's declared targets with its
// completed records.
func (s *Service) GetPropagationStatus(ctx context.Context, id string) (*types.PropagationStatus, error) {
	l, err := s.store.GetLearning(ctx, id)
	if err != nil {
		return nil, err
	}
	st := &types.PropagationStatus{LearningID: l.ID}
	if st.Declared, err = s.store.ListPropagationTargets(ctx, l.ID); err != nil {
		return nil, err
	}
	if st.Completed, err = s.store.ListPropagationRecords(ctx, l.ID); err != nil {
		return nil, err
	}
	st.Pending = pendingTargets(st.Declared, st.Completed)

	declared := make(map[string]bool, len(st.Declared))
	for _, t := range st.Declared {
		declared[t.Key()] = true
	}
	for _, r := range st.Completed {
		if !declared[r.Key()] {
			st.Undeclared = append(st.Undeclared, r)
		}
	}
	st.FullyPropagated = len(st.Declared) > 0 && len(st.Pending) == 0
	return st, nil
}

// GetPendingEvolutionSyncs lists targets that received a superseded
// iteration of a learning but not the current head of its chain.
func (s *Service) GetPendingEvolutionSyncs(ctx context.Context) ([]*types.EvolutionSyncItem, error) {
	stale, err := s.store.ListSupersededRecords(ctx)
	if err != nil {
		return nil, err
	}

	learnings := make(map[string]*types.Learning)
	load := func(id string) (*types.Learning, error) {
		if l, ok := learnings[id]; ok {
			return l, nil
		}
		l, err := s.store.GetLearning(ctx, id)
		if err != nil {
			return nil, err
		}
		learnings[id] = l
		return l, nil
	}
	headRecords := make(map[string]map[string]bool)

	var items []*types.EvolutionSyncItem
	for _, r := range stale {
		old, err := load(r.LearningID)
		if err != nil {
			return nil, err
		}
		head, err := s.chainHead(old, load)
		if err != nil {
			return nil, err
		}
		done, ok := headRecords[head.ID]
		if !ok {
			recs, err := s.store.ListPropagationRecords(ctx, head.ID)
			if err != nil {
				return nil, err
			}
			done = make(map[string]bool, len(recs))
			for _, hr := range recs {
				done[hr.Key()] = true
			}
			headRecords[head.ID] = done
		}
		if done[r.Key()] {
			continue
		}
		items = append(items, &types.EvolutionSyncItem{
			StaleLearningID:   old.ID,
			StaleIteration:    old.IterationNumber,
			CurrentLearningID: head.ID,
			CurrentIteration:  head.IterationNumber,
			Kind:              r.Kind,
			Path:              r.Path,
			PropagatedAt:      r.PropagatedAt,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CurrentLearningID != items[j].CurrentLearningID {
			return items[i].CurrentLearningID < items[j].CurrentLearningID
		}
		return items[i].StaleIteration < items[j].StaleIteration
	})
	return items, nil
}

// chainHead follows successor links to the current iteration.
func (s *Service) chainHead(l *types.Learning, load func(string) (*types.Learning, error)) (*types.Learning, error) {
	seen := map[string]bool{l.ID: true}
	for l.SuccessorID != "" {
		if seen[l.SuccessorID] {
			return nil, fmt.Errorf("learning chain loops at %s", l.SuccessorID)
		}
		seen[l.SuccessorID] = true
		next, err := load(l.SuccessorID)
		if err != nil {
			return nil, err
		}
		l = next
	}
	return l, nil
}
