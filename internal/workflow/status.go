package workflow

import (
	"context"

	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/tracker"
	"github.com/untoldecay/flowctl/internal/types"
)

// GetFeatureStatus gathers everything known about a feature into one report.
// A missing evaluation is not an error.
func (s *Service) GetFeatureStatus(ctx context.Context, featureID string) (*types.FeatureStatusReport, error) {
	f, err := s.store.GetFeature(ctx, featureID)
	if err != nil {
		return nil, err
	}
	r := &types.FeatureStatusReport{Feature: f}
	if r.OpenBlockers, err = s.store.ListBlockers(ctx, f.ID, true); err != nil {
		return nil, err
	}
	if r.Gates, err = s.store.ListGates(ctx, f.ID); err != nil {
		return nil, err
	}
	if r.Locks, err = s.store.GetLocks(ctx, f.ID); err != nil {
		return nil, err
	}
	if r.Conflicts, err = s.store.ListFileConflicts(ctx, f.ID, false); err != nil {
		return nil, err
	}
	if r.Transitions, err = s.store.GetTransitions(ctx, f.ID); err != nil {
		return nil, err
	}
	invocations, err := s.store.ListInvocations(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	r.Durations = tracker.ComputePhaseDurations(f, r.Transitions, invocations, s.now())

	r.LatestEval, err = s.store.GetLatestFeatureEval(ctx, f.ID)
	if err != nil && !storage.IsNotFound(err) {
		return nil, err
	}
	return r, nil
}
