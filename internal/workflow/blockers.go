package workflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/untoldecay/flowctl/internal/audit"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/telemetry"
	"github.com/untoldecay/flowctl/internal/types"
)

// BlockerParams describes a new blocker. Phase defaults to the feature's
// current phase and Severity to MEDIUM.
type BlockerParams struct {
	FeatureID   string
	Phase       types.Phase
	Type        types.BlockerType
	Severity    types.Severity
	Title       string
	Description string
}

// BlockerResult pairs a blocker with the status of its feature after the change.
type BlockerResult struct {
	Blocker       *types.Blocker      `json:"blocker"`
	FeatureStatus types.FeatureStatus `json:"feature_status"`
	OpenBlockers  int                 `json:"open_blockers"`
}

// CreateBlocker opens a blocker and forces the feature to BLOCKED.
func (s *Service) CreateBlocker(ctx context.Context, p BlockerParams, actor string) (*BlockerResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	res := &BlockerResult{}
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		f, err := activeFeature(ctx, tx, p.FeatureID, "raise a blocker on")
		if err != nil {
			return err
		}
		b := &types.Blocker{
			FeatureID:   f.ID,
			Phase:       p.Phase,
			Type:        p.Type,
			Severity:    p.Severity,
			Status:      types.BlockerOpen,
			Title:       p.Title,
			Description: p.Description,
			CreatedBy:   actor,
			CreatedAt:   s.timestamp(),
		}
		if b.Phase == "" {
			b.Phase = f.CurrentPhase
		}
		if !b.Phase.IsValid() {
			return fmt.Errorf("invalid phase: %s", b.Phase)
		}
		if b.Severity == "" {
			b.Severity = types.SeverityMedium
		}
		if err := tx.CreateBlocker(ctx, b); err != nil {
			return err
		}
		if err := tx.SetFeatureStatus(ctx, f.ID, types.FeatureBlocked, b.CreatedAt); err != nil {
			return err
		}
		if err := audit.Record(ctx, tx, types.EntityFeature, f.ID, types.EventBlockerCreated, actor,
			audit.Change{Old: string(f.Status), New: strconv.FormatInt(b.ID, 10), Comment: b.Title}); err != nil {
			return err
		}
		res.Blocker = b
		res.FeatureStatus = types.FeatureBlocked
		res.OpenBlockers, err = tx.CountOpenBlockers(ctx, f.ID)
		return err
	})
	if err != nil {
		return nil, s.rejected("create blocker", p.FeatureID, err)
	}
	telemetry.RecordBlocker(ctx, "created", string(res.Blocker.Type))
	s.log.Info("blocker created", "feature", p.FeatureID, "blocker", res.Blocker.ID,
		"type", res.Blocker.Type, "severity", res.Blocker.Severity)
	return res, nil
}

// ResolveBlocker closes a blocker. The feature's status is recomputed from
// the open blocker count by the store in the same transaction, so two
// concurrent resolutions cannot both observe a stale count.
func (s *Service) ResolveBlocker(ctx context.Context, id int64, actor, resolution string) (*BlockerResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	res := &BlockerResult{}
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		b, err := tx.GetBlocker(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.UpdateBlockerStatus(ctx, id, types.BlockerResolved, actor, resolution); err != nil {
			return err
		}
		if res.FeatureStatus, err = tx.RecomputeFeatureStatus(ctx, b.FeatureID); err != nil {
			return err
		}
		if res.OpenBlockers, err = tx.CountOpenBlockers(ctx, b.FeatureID); err != nil {
			return err
		}
		if err := audit.Record(ctx, tx, types.EntityFeature, b.FeatureID, types.EventBlockerResolved, actor,
			audit.Change{Old: strconv.FormatInt(b.ID, 10), New: string(res.FeatureStatus), Comment: resolution}); err != nil {
			return err
		}
		res.Blocker, err = tx.GetBlocker(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.rejected("resolve blocker", strconv.FormatInt(id, 10), err)
	}
	telemetry.RecordBlocker(ctx, "resolved", string(res.Blocker.Type))
	s.log.Info("blocker resolved", "feature", res.Blocker.FeatureID, "blocker", id,
		"open", res.OpenBlockers, "status", res.FeatureStatus)
	return res, nil
}

// EscalateBlocker marks a blocker ESCALATED and appends an ESCALATION
// transition that leaves the phase unchanged. The blocker stays open.
func (s *Service) EscalateBlocker(ctx context.Context, id int64, actor, note string) (*BlockerResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	res := &BlockerResult{}
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		b, err := tx.GetBlocker(ctx, id)
		if err != nil {
			return err
		}
		f, err := activeFeature(ctx, tx, b.FeatureID, "escalate a blocker on")
		if err != nil {
			return err
		}
		if err := tx.UpdateBlockerStatus(ctx, id, types.BlockerEscalated, actor, ""); err != nil {
			return err
		}
		trNote := fmt.Sprintf("blocker %d: %s", b.ID, b.Title)
		if note != "" {
			trNote += " (" + note + ")"
		}
		if err := tx.AddTransition(ctx, &types.PhaseTransition{
			FeatureID: f.ID,
			FromPhase: f.CurrentPhase,
			ToPhase:   f.CurrentPhase,
			Actor:     actor,
			Kind:      types.TransitionEscalation,
			Note:      trNote,
			CreatedAt: s.timestamp(),
		}); err != nil {
			return err
		}
		if err := audit.Record(ctx, tx, types.EntityFeature, f.ID, types.EventBlockerEscalated, actor,
			audit.Change{Old: string(b.Status), New: strconv.FormatInt(b.ID, 10), Comment: note}); err != nil {
			return err
		}
		if res.OpenBlockers, err = tx.CountOpenBlockers(ctx, f.ID); err != nil {
			return err
		}
		res.FeatureStatus = f.Status
		res.Blocker, err = tx.GetBlocker(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.rejected("escalate blocker", strconv.FormatInt(id, 10), err)
	}
	telemetry.RecordBlocker(ctx, "escalated", string(res.Blocker.Type))
	telemetry.RecordTransition(ctx, string(types.TransitionEscalation))
	s.log.Info("blocker escalated", "feature", res.Blocker.FeatureID, "blocker", id, "actor", actor)
	return res, nil
}

// MarkBlockerInProgress records that someone is working on a blocker.
func (s *Service) MarkBlockerInProgress(ctx context.Context, id int64, actor string) (*types.Blocker, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var b *types.Blocker
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		cur, err := tx.GetBlocker(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.UpdateBlockerStatus(ctx, id, types.BlockerInProgress, actor, ""); err != nil {
			return err
		}
		if err := audit.Record(ctx, tx, types.EntityFeature, cur.FeatureID, types.EventStatusChanged, actor,
			audit.Change{Old: string(cur.Status), New: string(types.BlockerInProgress),
				Comment: "blocker " + strconv.FormatInt(id, 10)}); err != nil {
			return err
		}
		b, err = tx.GetBlocker(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.rejected("start blocker", strconv.FormatInt(id, 10), err)
	}
	return b, nil
}

// ListBlockers returns a feature's blockers, oldest first.
func (s *Service) ListBlockers(ctx context.Context, featureID string, openOnly bool) ([]*types.Blocker, error) {
	if _, err := s.store.GetFeature(ctx, featureID); err != nil {
		return nil, err
	}
	return s.store.ListBlockers(ctx, featureID, openOnly)
}
