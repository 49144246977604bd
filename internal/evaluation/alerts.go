package evaluation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/untoldecay/flowctl/internal/audit"
	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

// AcknowledgeAlert records that a human has seen an alert. It can happen
// only once per alert.
func (s *Service) AcknowledgeAlert(ctx context.Context, id int64, actor string) (*types.Alert, error) {
	return s.updateAlert(ctx, id, actor, types.EventAlertAcknowledged, "", func(tx storage.Transaction) error {
		return tx.AcknowledgeAlert(ctx, id, actor)
	})
}

// ResolveAlert closes an alert with a note. It can happen only once per alert.
func (s *Service) ResolveAlert(ctx context.Context, id int64, actor, note string) (*types.Alert, error) {
	return s.updateAlert(ctx, id, actor, types.EventAlertResolved, note, func(tx storage.Transaction) error {
		return tx.ResolveAlert(ctx, id, actor, note)
	})
}

func (s *Service) updateAlert(ctx context.Context, id int64, actor string, event types.EventType, note string, apply func(storage.Transaction) error) (*types.Alert, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, fmt.Errorf("actor is required")
	}
	var a *types.Alert
	err := s.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := apply(tx); err != nil {
			return err
		}
		var err error
		if a, err = tx.GetAlert(ctx, id); err != nil {
			return err
		}
		return audit.Record(ctx, tx, types.EntityAlert, strconv.FormatInt(id, 10), event, actor,
			audit.Change{Old: string(a.Type), Comment: note})
	})
	if err != nil {
		if storage.IsInvariant(err) {
			s.log.Debug("rejected", "op", string(event), "alert", id, "error", err)
		}
		return nil, err
	}
	s.log.Info("alert updated", "alert", id, "event", event, "actor", actor)
	return a, nil
}

// ListAlerts returns alerts matching filter, newest first.
func (s *Service) ListAlerts(ctx context.Context, filter types.AlertFilter) ([]*types.Alert, error) {
	return s.store.ListAlerts(ctx, filter)
}
