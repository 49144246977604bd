package workflow

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/untoldecay/flowctl/internal/audit"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

// DetectFileConflicts compares the paths a feature proposes to touch with
// the file locks of every other in-flight feature. Each overlapping feature
// yields one conflict row for the pair; repeated detections merge their
// paths into that row. Detection is advisory and never blocks the caller.
func (s *Service) DetectFileConflicts(ctx context.Context, featureID string, paths []string, actor string) ([]*types.FileConflict, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	proposed := make(map[string]bool, len(paths))
	for _, p := range paths {
		if p = normalizePath(p); p != "" {
			proposed[p] = true
		}
	}

	var conflicts []*types.FileConflict
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		f, err := activeFeature(ctx, tx, featureID, "detect conflicts for")
		if err != nil {
			return err
		}
		if len(proposed) == 0 {
			return nil
		}

		locks, err := tx.ListActiveFileLocks(ctx)
		if err != nil {
			return err
		}
		overlaps := make(map[string][]string)
		for _, l := range locks {
			if l.FeatureID != f.ID && proposed[l.Resource] {
				overlaps[l.FeatureID] = append(overlaps[l.FeatureID], l.Resource)
			}
		}
		others := make([]string, 0, len(overlaps))
		for id := range overlaps {
			others = append(others, id)
		}
		sort.Strings(others)

		for _, otherID := range others {
			other, err := tx.GetFeature(ctx, otherID)
			if err != nil {
				return err
			}
			c := &types.FileConflict{
				FeatureA:      f.ID,
				FeatureB:      other.ID,
				Resources:     overlaps[otherID],
				Risk:          conflictRisk(f, other),
				DetectedPhase: f.CurrentPhase,
				DetectedBy:    actor,
				DetectedAt:    s.timestamp(),
			}
			created, err := tx.UpsertFileConflict(ctx, c)
			if err != nil {
				return err
			}
			comment := fmt.Sprintf("%s and %s share %d path(s), risk %s", c.FeatureA, c.FeatureB, len(c.Resources), c.Risk)
			if !created {
				comment += " (merged)"
			}
			if err := audit.Record(ctx, tx, types.EntityConflict, strconv.FormatInt(c.ID, 10), types.EventConflictDetected, actor,
				audit.Change{New: strings.Join(c.Resources, ","), Comment: comment}); err != nil {
				return err
			}
			conflicts = append(conflicts, c)
		}
		return nil
	})
	if err != nil {
		return nil, s.rejected("detect conflicts", featureID, err)
	}
	if len(conflicts) > 0 {
		s.log.Info("file conflicts detected", "feature", featureID, "count", len(conflicts))
	}
	return conflicts, nil
}

// conflictRisk is HIGH when both features are in non-terminal phases.
// Planning counts: a feature in phase 0 already owns its proposed paths.
func conflictRisk(a, b *types.Feature) types.RiskLevel {
	if !a.CurrentPhase.IsTerminal() && !b.CurrentPhase.IsTerminal() {
		return types.RiskHigh
	}
	return types.RiskMedium
}

// ResolveFileConflict applies a resolution strategy to a conflict.
func (s *Service) ResolveFileConflict(ctx context.Context, id int64, strategy types.ResolutionStrategy, actor, notes string) (*types.FileConflict, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !strategy.IsValid() {
		return nil, fmt.Errorf("invalid strategy: %s (expected SERIALIZE, COORDINATE, or ALLOW_PARALLEL)", strategy)
	}
	var c *types.FileConflict
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		cur, err := tx.GetFileConflict(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.ResolveFileConflict(ctx, id, strategy, actor, notes); err != nil {
			return err
		}
		if err := audit.Record(ctx, tx, types.EntityConflict, strconv.FormatInt(id, 10), types.EventConflictResolved, actor,
			audit.Change{Old: string(cur.Status), New: string(strategy.ResultStatus()), Comment: notes}); err != nil {
			return err
		}
		c, err = tx.GetFileConflict(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.rejected("resolve conflict", strconv.FormatInt(id, 10), err)
	}
	s.log.Info("file conflict resolved", "conflict", id, "strategy", strategy, "status", c.Status)
	return c, nil
}

// ListFileConflicts lists conflicts involving a feature, or all of them when
// featureID is empty.
func (s *Service) ListFileConflicts(ctx context.Context, featureID string, unresolvedOnly bool) ([]*types.FileConflict, error) {
	if featureID != "" {
		if _, err := s.store.GetFeature(ctx, featureID); err != nil {
			return nil, err
		}
	}
	return s.store.ListFileConflicts(ctx, featureID, unresolvedOnly)
}
