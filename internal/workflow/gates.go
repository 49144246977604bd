package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/untoldecay/flowctl/internal/audit"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

// GateParams describes one gate decision.
type GateParams struct {
	FeatureID string
	Name      string
	Status    types.GateStatus
	Approver  string
	Notes     string
}

// EvaluateGate records a gate decision against the feature's current phase
// visit. Gates are never updated: deciding the same gate twice in one visit
// is a collision, while a later visit after rework gets a fresh attempt.
func (s *Service) EvaluateGate(ctx context.Context, p GateParams) (*types.QualityGate, error) {
	if err := requireActor(p.Approver); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("gate name is required")
	}
	if !p.Status.IsValid() {
		return nil, fmt.Errorf("invalid gate status: %s", p.Status)
	}

	var g *types.QualityGate
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		f, err := activeFeature(ctx, tx, p.FeatureID, "evaluate a gate on")
		if err != nil {
			return err
		}
		attempt, err := visitNumber(ctx, tx, f)
		if err != nil {
			return err
		}
		g = &types.QualityGate{
			FeatureID: f.ID,
			Name:      p.Name,
			Phase:     f.CurrentPhase,
			Attempt:   attempt,
			Status:    p.Status,
			Approver:  p.Approver,
			Notes:     p.Notes,
			CreatedAt: s.timestamp(),
		}
		if err := tx.CreateGate(ctx, g); err != nil {
			return err
		}
		return audit.Record(ctx, tx, types.EntityFeature, f.ID, types.EventGateEvaluated, p.Approver,
			audit.Change{New: string(g.Status), Comment: fmt.Sprintf("%s (phase %s, attempt %d)", g.Name, g.Phase, g.Attempt)})
	})
	if err != nil {
		return nil, s.rejected("evaluate gate", p.FeatureID, err)
	}
	s.log.Info("gate evaluated", "feature", g.FeatureID, "gate", g.Name, "phase", g.Phase,
		"attempt", g.Attempt, "status", g.Status)
	return g, nil
}

// ListGates returns every gate decision recorded for a feature.
func (s *Service) ListGates(ctx context.Context, featureID string) ([]*types.QualityGate, error) {
	if _, err := s.store.GetFeature(ctx, featureID); err != nil {
		return nil, err
	}
	return s.store.ListGates(ctx, featureID)
}
