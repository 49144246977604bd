package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/untoldecay/flowctl/internal/audit"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
	"github.com/untoldecay/flowctl/internal/utils"
)

// DetectLearningConflicts compares a learning against every other current
// learning of the same category. A title similarity above the threshold is
// a CONTRADICTION; otherwise shared tags are a SCOPE_OVERLAP. Pairs that
// already have a conflict record of any status are skipped.
func (s *Service) DetectLearningConflicts(ctx context.Context, id, actor string) ([]*types.LearningConflict, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var found []*types.LearningConflict
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		l, err := tx.GetLearning(ctx, id)
		if err != nil {
			return err
		}
		if l.IsSuperseded {
			return storage.Violation("learning is superseded",
				"cannot detect conflicts for %s: superseded by %s", l.ID, l.SuccessorID)
		}
		threshold, err := s.similarityThreshold(ctx, tx)
		if err != nil {
			return err
		}
		category := l.Category
		peers, err := tx.ListLearnings(ctx, types.LearningFilter{Category: &category})
		if err != nil {
			return err
		}

		for _, other := range peers {
			if other.ID == l.ID {
				continue
			}
			exists, err := tx.HasLearningConflict(ctx, l.ID, other.ID)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			c := classify(l, other, threshold)
			if c == nil {
				continue
			}
			c.DetectedBy = actor
			c.CreatedAt = s.timestamp()
			if err := tx.CreateLearningConflict(ctx, c); err != nil {
				return err
			}
			if err := recordConflictEvent(ctx, tx, c, types.EventConflictDetected, actor, "", c.Description); err != nil {
				return err
			}
			found = append(found, c)
		}
		return nil
	})
	if err != nil {
		return nil, s.rejected("detect learning conflicts", id, err)
	}
	if len(found) > 0 {
		s.log.Info("learning conflicts detected", "learning", id, "count", len(found))
	}
	return found, nil
}

// classify returns the conflict between two learnings, or nil.
func classify(a, b *types.Learning, threshold float64) *types.LearningConflict {
	sim := utils.Similarity(a.Title, b.Title)
	if sim > threshold {
		return &types.LearningConflict{
			LearningA:   a.ID,
			LearningB:   b.ID,
			Kind:        types.LearningContradiction,
			Similarity:  sim,
			Description: fmt.Sprintf("titles are %.0f%% similar", sim*100),
		}
	}
	if shared := sharedTags(a.Tags, b.Tags); len(shared) > 0 {
		return &types.LearningConflict{
			LearningA:   a.ID,
			LearningB:   b.ID,
			Kind:        types.LearningScopeOverlap,
			Similarity:  sim,
			Description: "shared tags: " + strings.Join(shared, ", "),
		}
	}
	return nil
}

func sharedTags(a, b []string) []string {
	in := make(map[string]bool, len(a))
	for _, t := range a {
		in[t] = true
	}
	var out []string
	for _, t := range b {
		if in[t] {
			out = append(out, t)
			in[t] = false
		}
	}
	return out
}

// recordConflictEvent writes the same event on both learnings of a conflict.
func recordConflictEvent(ctx context.Context, tx storage.Transaction, c *types.LearningConflict, event types.EventType, actor, oldValue, comment string) error {
	for _, id := range []string{c.LearningA, c.LearningB} {
		if err := audit.Record(ctx, tx, types.EntityLearning, id, event, actor, audit.Change{
			Old:     oldValue,
			New:     string(c.Kind) + " #" + strconv.FormatInt(c.ID, 10) + " " + string(c.Status),
			Comment: comment,
		}); err != nil {
			return err
		}
	}
	return nil
}

// FlagLearningConflict records a conflict by hand, for example VERSION_DRIFT
// between two chains. A pair can only be flagged once.
func (s *Service) FlagLearningConflict(ctx context.Context, a, b string, kind types.LearningConflictKind, description, actor string) (*types.LearningConflict, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("invalid conflict kind: %s", kind)
	}
	c := &types.LearningConflict{
		LearningA:   a,
		LearningB:   b,
		Kind:        kind,
		Description: description,
		DetectedBy:  actor,
		CreatedAt:   s.timestamp(),
	}
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		la, err := tx.GetLearning(ctx, a)
		if err != nil {
			return err
		}
		lb, err := tx.GetLearning(ctx, b)
		if err != nil {
			return err
		}
		c.Similarity = utils.Similarity(la.Title, lb.Title)
		if err := tx.CreateLearningConflict(ctx, c); err != nil {
			return err
		}
		return recordConflictEvent(ctx, tx, c, types.EventConflictDetected, actor, "", description)
	})
	if err != nil {
		return nil, s.rejected("flag learning conflict", a+"/"+b, err)
	}
	return c, nil
}

// ResolveLearningConflict moves a conflict to status. A winner, when given,
// must be one of the two learnings. Resolved conflicts are final.
func (s *Service) ResolveLearningConflict(ctx context.Context, id int64, status types.LearningConflictStatus, winnerID, actor, notes string) (*types.LearningConflict, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid conflict status: %s", status)
	}
	var c *types.LearningConflict
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		cur, err := tx.GetLearningConflict(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status == types.LearningConflictResolved {
			return storage.Violation("conflict already resolved", "learning conflict %d was resolved by %s", id, cur.ResolvedBy)
		}
		if winnerID != "" && winnerID != cur.LearningA && winnerID != cur.LearningB {
			return storage.Violation("winner not in conflict",
				"%s is neither %s nor %s", winnerID, cur.LearningA, cur.LearningB)
		}
		if err := tx.UpdateLearningConflict(ctx, id, status, winnerID, actor, notes); err != nil {
			return err
		}
		if c, err = tx.GetLearningConflict(ctx, id); err != nil {
			return err
		}
		return recordConflictEvent(ctx, tx, c, types.EventConflictResolved, actor, string(cur.Status), notes)
	})
	if err != nil {
		return nil, s.rejected("resolve learning conflict", strconv.FormatInt(id, 10), err)
	}
	s.log.Info("learning conflict updated", "conflict", id, "status", status, "winner", winnerID)
	return c, nil
}

// ListLearningConflicts lists conflicts involving a learning, or all of them
// when learningID is empty.
func (s *Service) ListLearningConflicts(ctx context.Context, learningID string, unresolvedOnly bool) ([]*types.LearningConflict, error) {
	if learningID != "" {
		if _, err := s.store.GetLearning(ctx, learningID); err != nil {
			return nil, err
		}
	}
	return s.store.ListLearningConflicts(ctx, learningID, unresolvedOnly)
}
