package workflow

import (
	"context"
	"strconv"

	"github.com/untoldecay/flowctl/internal/audit"
	"github.com/untoldecay/flowctl/internal/idgen"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

// CreateParams describes a new feature. ID is generated when empty;
// Severity defaults to MEDIUM and Complexity to 2.
type CreateParams struct {
	ID          string
	Name        string
	Description string
	Complexity  types.Complexity
	Severity    types.Severity
	EpicID      string
}

// CreateFeature registers a feature in phase 0 with status IN_PROGRESS.
func (s *Service) CreateFeature(ctx context.Context, p CreateParams, actor string) (*types.Feature, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	f := &types.Feature{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Complexity:   p.Complexity,
		Severity:     p.Severity,
		CurrentPhase: types.PhasePlanning,
		Status:       types.FeatureInProgress,
		EpicID:       p.EpicID,
		CreatedBy:    actor,
		CreatedAt:    s.timestamp(),
	}
	if f.ID == "" {
		f.ID = idgen.NewFeatureID()
	}
	if f.Complexity == 0 {
		f.Complexity = types.ComplexityStandard
	}
	if f.Severity == "" {
		f.Severity = types.SeverityMedium
	}

	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if f.EpicID != "" {
			if _, err := tx.GetFeature(ctx, f.EpicID); err != nil {
				return err
			}
		}
		if err := tx.CreateFeature(ctx, f); err != nil {
			return err
		}
		return audit.Record(ctx, tx, types.EntityFeature, f.ID, types.EventCreated, actor,
			audit.Change{New: f.Name, Comment: "complexity " + strconv.Itoa(int(f.Complexity))})
	})
	if err != nil {
		return nil, s.rejected("create feature", f.ID, err)
	}
	s.log.Info("feature created", "feature", f.ID, "complexity", f.Complexity, "actor", actor)
	return f, nil
}

// GetFeature returns a feature by ID.
func (s *Service) GetFeature(ctx context.Context, id string) (*types.Feature, error) {
	return s.store.GetFeature(ctx, id)
}

// ListFeatures returns features matching filter, newest first.
func (s *Service) ListFeatures(ctx context.Context, filter types.FeatureFilter) ([]*types.Feature, error) {
	return s.store.ListFeatures(ctx, filter)
}

// GetTransitions returns the phase transition log of a feature, oldest first.
func (s *Service) GetTransitions(ctx context.Context, featureID string) ([]*types.PhaseTransition, error) {
	if _, err := s.store.GetFeature(ctx, featureID); err != nil {
		return nil, err
	}
	return s.store.GetTransitions(ctx, featureID)
}

// ListEvents returns the audit trail of one entity, newest first.
func (s *Service) ListEvents(ctx context.Context, entityType, entityID string, limit int) ([]*types.Event, error) {
	return s.store.GetEvents(ctx, entityType, entityID, limit)
}
