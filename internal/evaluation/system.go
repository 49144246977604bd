package evaluation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/flowctl/internal/audit"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/telemetry"
	"github.com/untoldecay/flowctl/internal/types"
)

// ComputeSystemHealth scores the whole system over a rolling window of
// windowDays and appends the snapshot. A SYSTEM_DEGRADED alert is raised
// when the score crosses below a health threshold relative to the previous
// snapshot of the same window.
func (s *Service) ComputeSystemHealth(ctx context.Context, windowDays int, actor string) (*types.SystemHealthEval, error) {
	if windowDays <= 0 {
		return nil, fmt.Errorf("window must be a positive number of days (got %d)", windowDays)
	}
	if actor == "" {
		actor = "system"
	}
	now := s.now().UTC()
	since := now.AddDate(0, 0, -windowDays)

	in, err := s.gather(ctx, since)
	if err != nil {
		return nil, err
	}
	eval := ScoreSystem(in)
	eval.WindowDays = windowDays
	eval.ComputedAt = now

	err = s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var previous *float64
		if prev, err := tx.GetLatestSystemEval(ctx, windowDays); err == nil {
			previous = &prev.Overall
		} else if !storage.IsNotFound(err) {
			return err
		}
		if err := tx.AddSystemEval(ctx, eval); err != nil {
			return err
		}
		if err := audit.Record(ctx, tx, types.EntitySystem, strconv.Itoa(windowDays)+"d", types.EventEvaluated, actor,
			audit.Change{New: strconv.FormatFloat(eval.Overall, 'f', 2, 64), Comment: string(eval.Health)}); err != nil {
			return err
		}

		level, ok := crossing(previous, eval.Overall)
		if !ok {
			return nil
		}
		score := eval.Overall
		a := &types.Alert{
			Type:      types.AlertSystemDegraded,
			Level:     level,
			Message:   fmt.Sprintf("system health over %d days dropped to %s (overall %.2f)", windowDays, eval.Health, eval.Overall),
			Score:     &score,
			CreatedAt: now,
		}
		if err := tx.CreateAlert(ctx, a); err != nil {
			return err
		}
		eval.Alerts = append(eval.Alerts, a)
		return audit.Record(ctx, tx, types.EntityAlert, strconv.FormatInt(a.ID, 10), types.EventAlertRaised, actor,
			audit.Change{New: string(a.Level), Comment: a.Message})
	})
	if err != nil {
		return nil, err
	}

	telemetry.RecordEvalScore(ctx, "system", eval.Overall)
	for _, a := range eval.Alerts {
		telemetry.RecordAlert(ctx, string(a.Type), string(a.Level))
	}
	s.log.Info("system evaluated", "window_days", windowDays, "overall", eval.Overall, "health", eval.Health)
	return eval, nil
}

// gather reads the window aggregates concurrently.
func (s *Service) gather(ctx context.Context, since time.Time) (SystemInput, error) {
	var in SystemInput
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.Completed, err = s.store.CountFeatures(gctx, types.FeatureCompleted, since)
		return err
	})
	g.Go(func() (err error) {
		in.Blocked, err = s.store.CountFeatures(gctx, types.FeatureBlocked, since)
		return err
	})
	g.Go(func() (err error) {
		in.InProgress, err = s.store.CountFeatures(gctx, types.FeatureInProgress, since)
		return err
	})
	g.Go(func() (err error) {
		in.AvgCycleMinutes, in.AvgRework, err = s.store.CycleStats(gctx, since)
		return err
	})
	g.Go(func() (err error) {
		in.OpenKnowledgeConf, err = s.store.CountUnresolvedLearningConflicts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return SystemInput{}, fmt.Errorf("failed to gather system health: %w", err)
	}
	return in, nil
}

// ComputeAllWindows computes system health for each of DefaultWindows.
func (s *Service) ComputeAllWindows(ctx context.Context, actor string) ([]*types.SystemHealthEval, error) {
	out := make([]*types.SystemHealthEval, 0, len(DefaultWindows))
	for _, w := range DefaultWindows {
		e, err := s.ComputeSystemHealth(ctx, w, actor)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// GetLatestSystemEval returns the newest snapshot for a window.
func (s *Service) GetLatestSystemEval(ctx context.Context, windowDays int) (*types.SystemHealthEval, error) {
	return s.store.GetLatestSystemEval(ctx, windowDays)
}
