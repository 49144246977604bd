// Package tracker records timed agent invocations and derives how long a
// feature spent in each phase.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/untoldecay/flowctl/internal/audit"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/telemetry"
	"github.com/untoldecay/flowctl/internal/types"
)

// Service owns the invocation lifecycle.
type Service struct {
	store storage.Storage
	log   *slog.Logger
	now   func() time.Time
}

// New creates a tracker over store. A nil logger discards output.
func New(store storage.Storage, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{store: store, log: log, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// StartParams describes a new invocation. Phase defaults to the feature's
// current phase.
type StartParams struct {
	FeatureID string
	Phase     types.Phase
	Actor     string
	Operation string
	Aids      []string
}

// StartInvocation opens an invocation and returns it; its ID is the handle
// passed to EndInvocation.
func (s *Service) StartInvocation(ctx context.Context, p StartParams) (*types.AgentInvocation, error) {
	if strings.TrimSpace(p.Actor) == "" {
		return nil, fmt.Errorf("actor is required")
	}
	var inv *types.AgentInvocation
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		f, err := tx.GetFeature(ctx, p.FeatureID)
		if err != nil {
			return err
		}
		if f.Status.IsTerminal() {
			return storage.Violation("terminal feature", "%s is %s; no further work can be recorded", f.ID, f.Status)
		}
		phase := p.Phase
		if phase == "" {
			phase = f.CurrentPhase
		}
		if !phase.IsValid() {
			return fmt.Errorf("invalid phase: %s", phase)
		}

		inv = &types.AgentInvocation{
			FeatureID: f.ID,
			Phase:     phase,
			Actor:     p.Actor,
			Operation: p.Operation,
			Aids:      p.Aids,
			StartedAt: s.now().UTC(),
		}
		if err := tx.StartInvocation(ctx, inv); err != nil {
			return err
		}
		return audit.Record(ctx, tx, types.EntityFeature, f.ID, types.EventInvocationStarted, p.Actor,
			audit.Change{New: strconv.FormatInt(inv.ID, 10), Comment: p.Operation})
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("invocation started", "feature", inv.FeatureID, "invocation", inv.ID, "phase", inv.Phase)
	return inv, nil
}

// EndInvocation stamps the end of an invocation and returns it with its
// duration. Ending twice is an invariant violation.
func (s *Service) EndInvocation(ctx context.Context, id int64, actor string) (*types.AgentInvocation, error) {
	var inv *types.AgentInvocation
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		inv, err = tx.EndInvocation(ctx, id, s.now().UTC())
		if err != nil {
			return err
		}
		if actor == "" {
			actor = inv.Actor
		}
		return audit.Record(ctx, tx, types.EntityFeature, inv.FeatureID, types.EventInvocationEnded, actor,
			audit.Change{Old: strconv.FormatInt(inv.ID, 10), New: inv.Duration().String()})
	})
	if err != nil {
		return nil, err
	}
	telemetry.RecordInvocation(ctx, string(inv.Phase), *inv.DurationMS)
	s.log.Debug("invocation ended", "feature", inv.FeatureID, "invocation", inv.ID, "duration", inv.Duration())
	return inv, nil
}

// ListInvocations returns a feature's invocations in start order.
func (s *Service) ListInvocations(ctx context.Context, featureID string) ([]*types.AgentInvocation, error) {
	if _, err := s.store.GetFeature(ctx, featureID); err != nil {
		return nil, err
	}
	return s.store.ListInvocations(ctx, featureID)
}

// PhaseDurations loads a feature's history and summarizes time per phase.
func (s *Service) PhaseDurations(ctx context.Context, featureID string) ([]*types.PhaseDuration, error) {
	f, err := s.store.GetFeature(ctx, featureID)
	if err != nil {
		return nil, err
	}
	transitions, err := s.store.GetTransitions(ctx, featureID)
	if err != nil {
		return nil, err
	}
	invocations, err := s.store.ListInvocations(ctx, featureID)
	if err != nil {
		return nil, err
	}
	return ComputePhaseDurations(f, transitions, invocations, s.now()), nil
}
