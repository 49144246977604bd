package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/untoldecay/flowctl/internal/types"
)

const featureColumns = `id, name, description, complexity, severity, current_phase, status,
	epic_id, created_by, created_at, updated_at, completed_at, cancelled_at`

func scanFeature(row rowScanner) (*types.Feature, error) {
	var f types.Feature
	var epicID sql.NullString
	var completedAt, cancelledAt sql.NullTime
	err := row.Scan(&f.ID, &f.Name, &f.Description, &f.Complexity, &f.Severity,
		&f.CurrentPhase, &f.Status, &epicID, &f.CreatedBy, &f.CreatedAt, &f.UpdatedAt,
		&completedAt, &cancelledAt)
	if err != nil {
		return nil, err
	}
	f.EpicID = epicID.String
	f.CompletedAt = timePtr(completedAt)
	f.CancelledAt = timePtr(cancelledAt)
	return &f, nil
}

// GetFeature retrieves a feature by ID
func (q *queries) GetFeature(ctx context.Context, id string) (*types.Feature, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+featureColumns+` FROM features WHERE id = ?`, id)
	f, err := scanFeature(row)
	if err == sql.ErrNoRows {
		return nil, notFound("feature", id)
	}
	if err != nil {
		return nil, wrapDBErrorf(err, "get feature %s", id)
	}
	return f, nil
}

// ListFeatures returns features matching the filter, newest first
func (q *queries) ListFeatures(ctx context.Context, filter types.FeatureFilter) ([]*types.Feature, error) {
	var where []string
	var args []any
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Phase != nil {
		where = append(where, "current_phase = ?")
		args = append(args, *filter.Phase)
	}
	if filter.EpicID != "" {
		where = append(where, "epic_id = ?")
		args = append(args, filter.EpicID)
	}

	query := `SELECT ` + featureColumns + ` FROM features`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += limitClause
		args = append(args, filter.Limit)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var features []*types.Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

// GetTransitions returns the transition history of a feature in order
func (q *queries) GetTransitions(ctx context.Context, featureID string) ([]*types.PhaseTransition, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, feature_id, from_phase, to_phase, actor, kind, note, created_at
		FROM phase_transitions
		WHERE feature_id = ?
		ORDER BY id
	`, featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transitions []*types.PhaseTransition
	for rows.Next() {
		var t types.PhaseTransition
		if err := rows.Scan(&t.ID, &t.FeatureID, &t.FromPhase, &t.ToPhase, &t.Actor, &t.Kind, &t.Note, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		transitions = append(transitions, &t)
	}
	return transitions, rows.Err()
}

// CountPhaseEntries counts visits to a phase: every non-escalation transition
// landing on it, plus the initial visit for the Planning phase.
func (q *queries) CountPhaseEntries(ctx context.Context, featureID string, phase types.Phase) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM phase_transitions
		WHERE feature_id = ? AND to_phase = ? AND kind != 'ESCALATION'
	`, featureID, phase).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count phase entries: %w", err)
	}
	if phase == types.PhasePlanning {
		n++
	}
	return n, nil
}

// CreateFeature inserts a new feature. Timestamps default to now.
func (t *sqliteTx) CreateFeature(ctx context.Context, f *types.Feature) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	f.CreatedAt = orNow(f.CreatedAt)
	f.UpdatedAt = f.CreatedAt

	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO features (id, name, description, complexity, severity, current_phase,
			status, epic_id, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.Name, f.Description, f.Complexity, f.Severity, f.CurrentPhase,
		f.Status, nullIfEmpty(f.EpicID), f.CreatedBy, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return wrapDBErrorf(err, "feature %s", f.ID)
	}
	return nil
}

// SetFeaturePhase moves a feature to a new phase
func (t *sqliteTx) SetFeaturePhase(ctx context.Context, id string, phase types.Phase, at time.Time) error {
	res, err := t.conn.ExecContext(ctx, `
		UPDATE features SET current_phase = ?, updated_at = ? WHERE id = ?
	`, phase, orNow(at), id)
	if err != nil {
		return fmt.Errorf("failed to set phase: %w", err)
	}
	return requireOneRow(res, "feature", id)
}

// SetFeatureStatus sets the status and the matching terminal timestamp.
// Completing a feature also moves it to the Complete phase.
func (t *sqliteTx) SetFeatureStatus(ctx context.Context, id string, status types.FeatureStatus, at time.Time) error {
	at = orNow(at)
	var res sql.Result
	var err error
	switch status {
	case types.FeatureCompleted:
		res, err = t.conn.ExecContext(ctx, `
			UPDATE features SET status = ?, current_phase = ?, completed_at = ?, updated_at = ?
			WHERE id = ?
		`, status, types.PhaseComplete, at, at, id)
	case types.FeatureCancelled:
		res, err = t.conn.ExecContext(ctx, `
			UPDATE features SET status = ?, cancelled_at = ?, updated_at = ? WHERE id = ?
		`, status, at, at, id)
	default:
		res, err = t.conn.ExecContext(ctx, `
			UPDATE features SET status = ?, updated_at = ? WHERE id = ?
		`, status, at, id)
	}
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return requireOneRow(res, "feature", id)
}

// RecomputeFeatureStatus derives IN_PROGRESS or BLOCKED from the open
// blocker count in a single statement. Terminal features are left alone.
func (t *sqliteTx) RecomputeFeatureStatus(ctx context.Context, id string) (types.FeatureStatus, error) {
	_, err := t.conn.ExecContext(ctx, `
		UPDATE features
		SET status = CASE
				WHEN (SELECT COUNT(*) FROM blockers
				      WHERE feature_id = features.id
				        AND status IN ('OPEN', 'IN_PROGRESS', 'ESCALATED')) = 0
				THEN 'IN_PROGRESS'
				ELSE 'BLOCKED'
			END,
			updated_at = ?
		WHERE id = ? AND status IN ('IN_PROGRESS', 'BLOCKED')
	`, nowUTC(), id)
	if err != nil {
		return "", fmt.Errorf("failed to recompute status: %w", err)
	}

	var status types.FeatureStatus
	if err := t.conn.QueryRowContext(ctx, `SELECT status FROM features WHERE id = ?`, id).Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return "", notFound("feature", id)
		}
		return "", fmt.Errorf("failed to read status: %w", err)
	}
	return status, nil
}

// AddTransition appends to the transition log
func (t *sqliteTx) AddTransition(ctx context.Context, tr *types.PhaseTransition) error {
	if !tr.Kind.IsValid() {
		return fmt.Errorf("invalid transition kind: %s", tr.Kind)
	}
	tr.CreatedAt = orNow(tr.CreatedAt)
	res, err := t.conn.ExecContext(ctx, `
		INSERT INTO phase_transitions (feature_id, from_phase, to_phase, actor, kind, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, tr.FeatureID, tr.FromPhase, tr.ToPhase, tr.Actor, tr.Kind, tr.Note, tr.CreatedAt)
	if err != nil {
		return wrapDBError("add transition", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get transition id: %w", err)
	}
	tr.ID = id
	return nil
}

func requireOneRow(res sql.Result, kind string, id any) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound(kind, id)
	}
	return nil
}
