package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/untoldecay/flowctl/internal/audit"
	"github.com/untoldecay/flowctl/internal/idgen"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/telemetry"
	"github.com/untoldecay/flowctl/internal/types"
)

// CreateParams describes a root learning. Confidence defaults to 0.50 and
// Importance to MEDIUM.
type CreateParams struct {
	ID         string
	Category   types.LearningCategory
	Title      string
	Content    string
	Confidence *float64
	Importance types.Severity
	Tags       []string
	FeatureID  string
	Phase      types.Phase
}

// CreateLearning records the first iteration of a new learning.
func (s *Service) CreateLearning(ctx context.Context, p CreateParams, actor string) (*types.Learning, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	l := &types.Learning{
		ID:              p.ID,
		Category:        p.Category,
		Title:           p.Title,
		Content:         p.Content,
		Confidence:      types.DefaultConfidence,
		Importance:      p.Importance,
		Tags:            normalizeTags(p.Tags),
		FeatureID:       p.FeatureID,
		Phase:           p.Phase,
		SourceActor:     actor,
		IterationNumber: 1,
		CreatedAt:       s.timestamp(),
	}
	if l.ID == "" {
		l.ID = idgen.NewLearningID()
	}
	if p.Confidence != nil {
		l.Confidence = *p.Confidence
	}
	if l.Importance == "" {
		l.Importance = types.SeverityMedium
	}

	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if l.FeatureID != "" {
			f, err := tx.GetFeature(ctx, l.FeatureID)
			if err != nil {
				return err
			}
			if l.Phase == "" {
				l.Phase = f.CurrentPhase
			}
		}
		if err := tx.CreateLearning(ctx, l); err != nil {
			return err
		}
		return audit.Record(ctx, tx, types.EntityLearning, l.ID, types.EventCreated, actor,
			audit.Change{New: formatConfidence(l.Confidence), Comment: l.Title})
	})
	if err != nil {
		return nil, s.rejected("create learning", l.ID, err)
	}
	s.log.Info("learning created", "learning", l.ID, "category", l.Category, "actor", actor)
	return s.store.GetLearning(ctx, l.ID)
}

// normalizeTags lowercases, trims, and de-duplicates tags, keeping order.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// GetLearning returns a learning by ID.
func (s *Service) GetLearning(ctx context.Context, id string) (*types.Learning, error) {
	return s.store.GetLearning(ctx, id)
}

// ListLearnings returns learnings matching filter.
func (s *Service) ListLearnings(ctx context.Context, filter types.LearningFilter) ([]*types.Learning, error) {
	return s.store.ListLearnings(ctx, filter)
}

// Chain returns every iteration of the learning's chain, root first.
func (s *Service) Chain(ctx context.Context, id string) ([]*types.Learning, error) {
	start, err := s.store.GetLearning(ctx, id)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{start.ID: true}

	var back []*types.Learning
	for cur := start; cur.PredecessorID != ""; {
		if seen[cur.PredecessorID] {
			return nil, fmt.Errorf("learning chain of %s loops at %s", id, cur.PredecessorID)
		}
		seen[cur.PredecessorID] = true
		if cur, err = s.store.GetLearning(ctx, cur.PredecessorID); err != nil {
			return nil, err
		}
		back = append(back, cur)
	}

	chain := make([]*types.Learning, 0, len(back)+1)
	for i := len(back) - 1; i >= 0; i-- {
		chain = append(chain, back[i])
	}
	chain = append(chain, start)

	for cur := start; cur.SuccessorID != ""; {
		if seen[cur.SuccessorID] {
			return nil, fmt.Errorf("learning chain of %s loops at %s", id, cur.SuccessorID)
		}
		seen[cur.SuccessorID] = true
		if cur, err = s.store.GetLearning(ctx, cur.SuccessorID); err != nil {
			return nil, err
		}
		chain = append(chain, cur)
	}
	return chain, nil
}

// EvolveParams describes the next iteration of a learning. Empty Title keeps
// the predecessor's title; nil Tags keeps its tags.
type EvolveParams struct {
	PredecessorID string
	Title         string
	Content       string
	DeltaSummary  string
	Tags          []string
}

// Evolve appends a new iteration to a learning's chain and supersedes the
// predecessor in the same transaction. The successor inherits the
// predecessor's confidence and validation history. Only the current head of
// a chain can evolve.
func (s *Service) Evolve(ctx context.Context, p EvolveParams, actor string) (*types.Learning, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var succID string
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		pred, err := tx.GetLearning(ctx, p.PredecessorID)
		if err != nil {
			return err
		}
		if pred.IsSuperseded {
			return storage.Violation("learning is superseded",
				"cannot evolve %s: superseded by %s; evolve the chain head instead", pred.ID, pred.SuccessorID)
		}

		succ := &types.Learning{
			ID:              idgen.NewLearningID(),
			Category:        pred.Category,
			Title:           pred.Title,
			Content:         p.Content,
			Confidence:      pred.Confidence,
			ValidationCount: pred.ValidationCount,
			Validators:      pred.Validators,
			Importance:      pred.Importance,
			Tags:            pred.Tags,
			FeatureID:       pred.FeatureID,
			Phase:           pred.Phase,
			SourceActor:     actor,
			PredecessorID:   pred.ID,
			IterationNumber: pred.IterationNumber + 1,
			DeltaSummary:    p.DeltaSummary,
			ReferenceCount:  pred.ReferenceCount,
			CreatedAt:       s.timestamp(),
			LastValidatedAt: pred.LastValidatedAt,
		}
		if p.Title != "" {
			succ.Title = p.Title
		}
		if p.Tags != nil {
			succ.Tags = normalizeTags(p.Tags)
		}
		if err := tx.CreateLearning(ctx, succ); err != nil {
			return err
		}
		if err := tx.SupersedeLearning(ctx, pred.ID, succ.ID); err != nil {
			return err
		}
		if err := audit.Record(ctx, tx, types.EntityLearning, pred.ID, types.EventEvolved, actor,
			audit.Change{Old: pred.ID, New: succ.ID, Comment: p.DeltaSummary}); err != nil {
			return err
		}
		succID = succ.ID
		return audit.Record(ctx, tx, types.EntityLearning, succ.ID, types.EventCreated, actor,
			audit.Change{Old: pred.ID, New: formatConfidence(succ.Confidence), Comment: p.DeltaSummary})
	})
	if err != nil {
		return nil, s.rejected("evolve", p.PredecessorID, err)
	}
	s.log.Info("learning evolved", "predecessor", p.PredecessorID, "successor", succID, "actor", actor)
	return s.store.GetLearning(ctx, succID)
}

// ValidateLearning records an independent confirmation: confidence rises by
// 0.15, capped at 1.00.
func (s *Service) ValidateLearning(ctx context.Context, id, actor string) (*types.Learning, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.bump(ctx, id, actor, "validation", types.EventValidated, func(tx storage.Transaction) error {
		return tx.ValidateLearning(ctx, id, actor)
	})
}

// ReferenceLearning records that a learning was used: confidence rises by
// 0.10, capped at 1.00.
func (s *Service) ReferenceLearning(ctx context.Context, id, actor string) (*types.Learning, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.bump(ctx, id, actor, "reference", types.EventReferenced, func(tx storage.Transaction) error {
		return tx.ReferenceLearning(ctx, id)
	})
}

// bump applies a single-statement confidence update and audits the change.
func (s *Service) bump(ctx context.Context, id, actor, source string, event types.EventType, apply func(storage.Transaction) error) (*types.Learning, error) {
	var l *types.Learning
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		before, err := tx.GetLearning(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(tx); err != nil {
			return err
		}
		if l, err = tx.GetLearning(ctx, id); err != nil {
			return err
		}
		return audit.Record(ctx, tx, types.EntityLearning, id, event, actor,
			audit.Change{Old: formatConfidence(before.Confidence), New: formatConfidence(l.Confidence)})
	})
	if err != nil {
		return nil, s.rejected(source, id, err)
	}
	telemetry.RecordConfidenceBump(ctx, source)
	s.log.Debug("confidence raised", "learning", id, "source", source, "confidence", l.Confidence)
	return l, nil
}
