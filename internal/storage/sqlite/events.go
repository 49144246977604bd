package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/untoldecay/flowctl/internal/types"
)

const limitClause = " LIMIT ?"

// AddEvent appends to the audit trail inside the caller's transaction
func (t *sqliteTx) AddEvent(ctx context.Context, e *types.Event) error {
	e.CreatedAt = orNow(e.CreatedAt)
	res, err := t.conn.ExecContext(ctx, `
		INSERT INTO events (entity_type, entity_id, event_type, actor, old_value, new_value, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EntityType, e.EntityID, e.EventType, e.Actor, e.OldValue, e.NewValue, e.Comment, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get event id: %w", err)
	}
	return nil
}

// GetEvents returns the event history for an entity, newest first
func (q *queries) GetEvents(ctx context.Context, entityType, entityID string, limit int) ([]*types.Event, error) {
	args := []any{entityType, entityID}
	limitSQL := ""
	if limit > 0 {
		limitSQL = limitClause
		args = append(args, limit)
	}

	// #nosec G201 - safe SQL with controlled formatting
	query := fmt.Sprintf(`
		SELECT id, entity_type, entity_id, event_type, actor, old_value, new_value, comment, created_at
		FROM events
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY id DESC
		%s
	`, limitSQL)

	return q.queryEvents(ctx, query, args...)
}

// GetEventsSince returns events at or after since, oldest first
func (q *queries) GetEventsSince(ctx context.Context, since time.Time, limit int) ([]*types.Event, error) {
	args := []any{since.UTC()}
	limitSQL := ""
	if limit > 0 {
		limitSQL = limitClause
		args = append(args, limit)
	}

	// #nosec G201 - safe SQL with controlled formatting
	query := fmt.Sprintf(`
		SELECT id, entity_type, entity_id, event_type, actor, old_value, new_value, comment, created_at
		FROM events
		WHERE created_at >= ?
		ORDER BY id
		%s
	`, limitSQL)

	return q.queryEvents(ctx, query, args...)
}

func (q *queries) queryEvents(ctx context.Context, query string, args ...any) ([]*types.Event, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.Event
	for rows.Next() {
		var event types.Event
		var oldValue, newValue, comment sql.NullString

		err := rows.Scan(
			&event.ID, &event.EntityType, &event.EntityID, &event.EventType, &event.Actor,
			&oldValue, &newValue, &comment, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		if oldValue.Valid {
			event.OldValue = &oldValue.String
		}
		if newValue.Valid {
			event.NewValue = &newValue.String
		}
		if comment.Valid {
			event.Comment = &comment.String
		}

		events = append(events, &event)
	}

	return events, rows.Err()
}
