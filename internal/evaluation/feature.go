package evaluation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/untoldecay/flowctl/internal/audit"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/telemetry"
	"github.com/untoldecay/flowctl/internal/tracker"
	"github.com/untoldecay/flowctl/internal/types"
)

// ComputeFeatureEval scores a feature, appends the snapshot, and raises any
// alerts it triggers, all in one transaction.
//
// Actual time is the total of completed invocations, or the wall-clock time
// spent in phases when no invocation finished.
func (s *Service) ComputeFeatureEval(ctx context.Context, featureID, actor string) (*types.FeatureEval, error) {
	if actor == "" {
		actor = "system"
	}
	var eval *types.FeatureEval
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		f, err := tx.GetFeature(ctx, featureID)
		if err != nil {
			return err
		}
		transitions, err := tx.GetTransitions(ctx, f.ID)
		if err != nil {
			return err
		}
		invocations, err := tx.ListInvocations(ctx, f.ID)
		if err != nil {
			return err
		}
		gates, err := tx.ListGates(ctx, f.ID)
		if err != nil {
			return err
		}
		blockers, err := tx.ListBlockers(ctx, f.ID, false)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		actual := tracker.TotalInvocationTime(invocations)
		if actual == 0 {
			actual = tracker.TotalWallTime(tracker.ComputePhaseDurations(f, transitions, invocations, now))
		}
		approved := 0
		for _, g := range gates {
			if g.Status == types.GateApproved {
				approved++
			}
		}

		eval = ScoreFeature(FeatureInput{
			Complexity:    f.Complexity,
			ActualMinutes: actual.Minutes(),
			Transitions:   transitions,
			GatesApproved: approved,
			GatesTotal:    len(gates),
			BlockersEver:  len(blockers),
		})
		eval.FeatureID = f.ID
		eval.ComputedAt = now

		var previous *float64
		if prev, err := tx.GetLatestFeatureEval(ctx, f.ID); err == nil {
			previous = &prev.Overall
		} else if !storage.IsNotFound(err) {
			return err
		}

		if err := tx.AddFeatureEval(ctx, eval); err != nil {
			return err
		}
		if err := audit.Record(ctx, tx, types.EntityFeature, f.ID, types.EventEvaluated, actor, audit.Change{
			New:     strconv.FormatFloat(eval.Overall, 'f', 2, 64),
			Comment: string(eval.Health),
		}); err != nil {
			return err
		}

		eval.Alerts, err = s.featureAlerts(ctx, tx, f, eval, previous, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	telemetry.RecordEvalScore(ctx, "feature", eval.Overall)
	for _, a := range eval.Alerts {
		telemetry.RecordAlert(ctx, string(a.Type), string(a.Level))
	}
	s.log.Info("feature evaluated", "feature", featureID, "overall", eval.Overall,
		"health", eval.Health, "alerts", len(eval.Alerts))
	return eval, nil
}

// featureAlerts raises the alerts a new snapshot triggers. Duration and
// thrashing alerts are not repeated while one of the same type is unresolved.
func (s *Service) featureAlerts(ctx context.Context, tx storage.Transaction, f *types.Feature, e *types.FeatureEval, previous *float64, actor string) ([]*types.Alert, error) {
	var alerts []*types.Alert
	score := e.Overall

	if level, ok := crossing(previous, e.Overall); ok {
		alerts = append(alerts, &types.Alert{
			FeatureID: f.ID,
			Type:      types.AlertHealthDegraded,
			Level:     level,
			Message:   fmt.Sprintf("%s health dropped to %s (overall %.2f)", f.ID, e.Health, e.Overall),
			Score:     &score,
		})
	}

	if e.ActualMinutes > 2*e.ExpectedMinutes {
		dup, err := tx.HasUnresolvedAlert(ctx, f.ID, types.AlertDurationOverrun)
		if err != nil {
			return nil, err
		}
		if !dup {
			alerts = append(alerts, &types.Alert{
				FeatureID: f.ID,
				Type:      types.AlertDurationOverrun,
				Level:     types.AlertWarning,
				Message: fmt.Sprintf("%s took %.0f minutes, more than twice the %.0f expected",
					f.ID, e.ActualMinutes, e.ExpectedMinutes),
				Score: &score,
			})
		}
	}

	if len(e.ThrashingPhases) > 0 {
		dup, err := tx.HasUnresolvedAlert(ctx, f.ID, types.AlertThrashing)
		if err != nil {
			return nil, err
		}
		if !dup {
			phases := make([]string, len(e.ThrashingPhases))
			for i, p := range e.ThrashingPhases {
				phases[i] = p.Label()
			}
			alerts = append(alerts, &types.Alert{
				FeatureID: f.ID,
				Type:      types.AlertThrashing,
				Level:     types.AlertWarning,
				Message:   fmt.Sprintf("%s reworked repeatedly in phase %s", f.ID, strings.Join(phases, ", ")),
				Score:     &score,
			})
		}
	}

	for _, a := range alerts {
		a.CreatedAt = e.ComputedAt
		if err := tx.CreateAlert(ctx, a); err != nil {
			return nil, err
		}
		if err := audit.Record(ctx, tx, types.EntityAlert, strconv.FormatInt(a.ID, 10), types.EventAlertRaised, actor,
			audit.Change{New: string(a.Level), Comment: a.Message}); err != nil {
			return nil, err
		}
	}
	return alerts, nil
}

// crossing reports whether overall fell below a health threshold that the
// previous score was at or above. With no previous score the feature is
// treated as starting healthy.
func crossing(previous *float64, overall float64) (types.AlertLevel, bool) {
	prev := 100.0
	if previous != nil {
		prev = *previous
	}
	switch {
	case overall < types.ConcerningThreshold && prev >= types.ConcerningThreshold:
		return types.AlertCritical, true
	case overall < types.HealthyThreshold && prev >= types.HealthyThreshold:
		return types.AlertWarning, true
	}
	return "", false
}

// ListFeatureEvals returns every snapshot of a feature, oldest first.
func (s *Service) ListFeatureEvals(ctx context.Context, featureID string) ([]*types.FeatureEval, error) {
	if _, err := s.store.GetFeature(ctx, featureID); err != nil {
		return nil, err
	}
	return s.store.ListFeatureEvals(ctx, featureID)
}
