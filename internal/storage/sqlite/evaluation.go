package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

const featureEvalColumns = `id, feature_id, efficiency, quality, overall, health, actual_minutes,
	expected_minutes, backward_count, gates_approved, gates_total, blocker_count,
	thrashing_phases, computed_at`

func scanFeatureEval(row rowScanner) (*types.FeatureEval, error) {
	var e types.FeatureEval
	var thrashing string
	err := row.Scan(&e.ID, &e.FeatureID, &e.Efficiency, &e.Quality, &e.Overall, &e.Health,
		&e.ActualMinutes, &e.ExpectedMinutes, &e.BackwardCount, &e.GatesApproved, &e.GatesTotal,
		&e.BlockerCount, &thrashing, &e.ComputedAt)
	if err != nil {
		return nil, err
	}
	for _, p := range decodeList(thrashing) {
		e.ThrashingPhases = append(e.ThrashingPhases, types.Phase(p))
	}
	return &e, nil
}

// GetLatestFeatureEval returns the newest snapshot for a feature
func (q *queries) GetLatestFeatureEval(ctx context.Context, featureID string) (*types.FeatureEval, error) {
	e, err := scanFeatureEval(q.q.QueryRowContext(ctx, `
		SELECT `+featureEvalColumns+` FROM feature_evals
		WHERE feature_id = ? ORDER BY id DESC LIMIT 1
	`, featureID))
	if err == sql.ErrNoRows {
		return nil, notFound("evaluation for feature", featureID)
	}
	if err != nil {
		return nil, wrapDBErrorf(err, "get eval for %s", featureID)
	}
	return e, nil
}

// ListFeatureEvals returns every snapshot for a feature, oldest first
func (q *queries) ListFeatureEvals(ctx context.Context, featureID string) ([]*types.FeatureEval, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+featureEvalColumns+` FROM feature_evals WHERE feature_id = ? ORDER BY id
	`, featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var evals []*types.FeatureEval
	for rows.Next() {
		e, err := scanFeatureEval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan eval: %w", err)
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}

// GetLatestSystemEval returns the newest system snapshot for a window
func (q *queries) GetLatestSystemEval(ctx context.Context, windowDays int) (*types.SystemHealthEval, error) {
	var e types.SystemHealthEval
	err := q.q.QueryRowContext(ctx, `
		SELECT id, window_days, completed, blocked, in_progress, avg_cycle_minutes, avg_rework,
			open_knowledge_conflicts, efficiency, quality, overall, health, computed_at
		FROM system_evals WHERE window_days = ? ORDER BY id DESC LIMIT 1
	`, windowDays).Scan(&e.ID, &e.WindowDays, &e.Completed, &e.Blocked, &e.InProgress,
		&e.AvgCycleMinutes, &e.AvgRework, &e.OpenKnowledgeConf, &e.Efficiency, &e.Quality,
		&e.Overall, &e.Health, &e.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, notFound("system evaluation for window", windowDays)
	}
	if err != nil {
		return nil, wrapDBError("get system eval", err)
	}
	return &e, nil
}

// CountFeatures counts features by status. For COMPLETED and CANCELLED only
// features that reached the status at or after since are counted; for the
// in-flight statuses the current population is returned.
func (q *queries) CountFeatures(ctx context.Context, status types.FeatureStatus, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM features WHERE status = ?`
	args := []any{status}
	switch status {
	case types.FeatureCompleted:
		query += ` AND completed_at >= ?`
		args = append(args, since.UTC())
	case types.FeatureCancelled:
		query += ` AND cancelled_at >= ?`
		args = append(args, since.UTC())
	}

	var n int
	if err := q.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count features: %w", err)
	}
	return n, nil
}

// CycleStats averages cycle time and backward transitions over features
// completed at or after since.
func (q *queries) CycleStats(ctx context.Context, since time.Time) (float64, float64, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT f.created_at, f.completed_at,
			(SELECT COUNT(*) FROM phase_transitions t
			 WHERE t.feature_id = f.id AND t.kind = 'BACKWARD')
		FROM features f
		WHERE f.status = 'COMPLETED' AND f.completed_at >= ?
	`, since.UTC())
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query cycle stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var n int
	var totalMinutes, totalRework float64
	for rows.Next() {
		var created time.Time
		var completed sql.NullTime
		var backward int
		if err := rows.Scan(&created, &completed, &backward); err != nil {
			return 0, 0, fmt.Errorf("failed to scan cycle stats: %w", err)
		}
		if !completed.Valid {
			continue
		}
		n++
		totalMinutes += completed.Time.Sub(created).Minutes()
		totalRework += float64(backward)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	if n == 0 {
		return 0, 0, nil
	}
	return totalMinutes / float64(n), totalRework / float64(n), nil
}

// CountUnresolvedLearningConflicts counts OPEN and INVESTIGATING knowledge conflicts
func (q *queries) CountUnresolvedLearningConflicts(ctx context.Context) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM learning_conflicts WHERE status IN ('OPEN', 'INVESTIGATING')
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count learning conflicts: %w", err)
	}
	return n, nil
}

// AddFeatureEval appends a feature snapshot
func (t *sqliteTx) AddFeatureEval(ctx context.Context, e *types.FeatureEval) error {
	e.ComputedAt = orNow(e.ComputedAt)
	phases := make([]string, len(e.ThrashingPhases))
	for i, p := range e.ThrashingPhases {
		phases[i] = string(p)
	}
	res, err := t.conn.ExecContext(ctx, `
		INSERT INTO feature_evals (feature_id, efficiency, quality, overall, health, actual_minutes,
			expected_minutes, backward_count, gates_approved, gates_total, blocker_count,
			thrashing_phases, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.FeatureID, e.Efficiency, e.Quality, e.Overall, e.Health, e.ActualMinutes,
		e.ExpectedMinutes, e.BackwardCount, e.GatesApproved, e.GatesTotal, e.BlockerCount,
		encodeList(phases), e.ComputedAt)
	if err != nil {
		return wrapDBError("add feature eval", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get eval id: %w", err)
	}
	return nil
}

// AddSystemEval appends a system snapshot
func (t *sqliteTx) AddSystemEval(ctx context.Context, e *types.SystemHealthEval) error {
	e.ComputedAt = orNow(e.ComputedAt)
	res, err := t.conn.ExecContext(ctx, `
		INSERT INTO system_evals (window_days, completed, blocked, in_progress, avg_cycle_minutes,
			avg_rework, open_knowledge_conflicts, efficiency, quality, overall, health, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.WindowDays, e.Completed, e.Blocked, e.InProgress, e.AvgCycleMinutes, e.AvgRework,
		e.OpenKnowledgeConf, e.Efficiency, e.Quality, e.Overall, e.Health, e.ComputedAt)
	if err != nil {
		return wrapDBError("add system eval", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get system eval id: %w", err)
	}
	return nil
}

const alertColumns = `id, feature_id, type, level, message, score, created_at, acknowledged_by,
	acknowledged_at, resolved_by, resolved_at, resolution_note`

func scanAlert(row rowScanner) (*types.Alert, error) {
	var a types.Alert
	var featureID sql.NullString
	var score sql.NullFloat64
	var ackAt, resolvedAt sql.NullTime
	err := row.Scan(&a.ID, &featureID, &a.Type, &a.Level, &a.Message, &score, &a.CreatedAt,
		&a.AcknowledgedBy, &ackAt, &a.ResolvedBy, &resolvedAt, &a.ResolutionNote)
	if err != nil {
		return nil, err
	}
	a.FeatureID = featureID.String
	if score.Valid {
		s := score.Float64
		a.Score = &s
	}
	a.AcknowledgedAt = timePtr(ackAt)
	a.ResolvedAt = timePtr(resolvedAt)
	return &a, nil
}

// GetAlert retrieves an alert by ID
func (q *queries) GetAlert(ctx context.Context, id int64) (*types.Alert, error) {
	a, err := scanAlert(q.q.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, notFound("alert", id)
	}
	if err != nil {
		return nil, wrapDBErrorf(err, "get alert %d", id)
	}
	return a, nil
}

// ListAlerts returns alerts matching the filter, newest first
func (q *queries) ListAlerts(ctx context.Context, filter types.AlertFilter) ([]*types.Alert, error) {
	var where []string
	var args []any
	if filter.FeatureID != "" {
		where = append(where, "feature_id = ?")
		args = append(args, filter.FeatureID)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.UnresolvedOnly {
		where = append(where, "resolved_at IS NULL")
	}
	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += limitClause
		args = append(args, filter.Limit)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []*types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// HasUnresolvedAlert reports whether an unresolved alert of the type exists.
// An empty featureID matches system-wide alerts.
func (q *queries) HasUnresolvedAlert(ctx context.Context, featureID string, alertType types.AlertType) (bool, error) {
	var exists bool
	err := q.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alerts WHERE feature_id IS ? AND type = ? AND resolved_at IS NULL
		)
	`, nullIfEmpty(featureID), alertType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check alerts: %w", err)
	}
	return exists, nil
}

// CreateAlert inserts an alert
func (t *sqliteTx) CreateAlert(ctx context.Context, a *types.Alert) error {
	a.CreatedAt = orNow(a.CreatedAt)
	res, err := t.conn.ExecContext(ctx, `
		INSERT INTO alerts (feature_id, type, level, message, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, nullIfEmpty(a.FeatureID), a.Type, a.Level, a.Message, a.Score, a.CreatedAt)
	if err != nil {
		return wrapDBError("create alert", err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get alert id: %w", err)
	}
	return nil
}

// AcknowledgeAlert marks an alert acknowledged. It can happen only once.
func (t *sqliteTx) AcknowledgeAlert(ctx context.Context, id int64, actor string) error {
	res, err := t.conn.ExecContext(ctx, `
		UPDATE alerts SET acknowledged_by = ?, acknowledged_at = ?
		WHERE id = ? AND acknowledged_at IS NULL
	`, actor, nowUTC(), id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	return t.requireAlertChange(ctx, res, id, "acknowledged")
}

// ResolveAlert marks an alert resolved. It can happen only once.
func (t *sqliteTx) ResolveAlert(ctx context.Context, id int64, actor, note string) error {
	res, err := t.conn.ExecContext(ctx, `
		UPDATE alerts SET resolved_by = ?, resolved_at = ?, resolution_note = ?
		WHERE id = ? AND resolved_at IS NULL
	`, actor, nowUTC(), note, id)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	return t.requireAlertChange(ctx, res, id, "resolved")
}

func (t *sqliteTx) requireAlertChange(ctx context.Context, res sql.Result, id int64, state string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := t.GetAlert(ctx, id); err != nil {
		return err
	}
	return storage.Violation("alert already "+state, "alert %d", id)
}
