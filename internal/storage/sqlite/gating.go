package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

// openBlockerStatuses is the SQL set of statuses that keep a feature blocked
const openBlockerStatuses = `('OPEN', 'IN_PROGRESS', 'ESCALATED')`

const blockerColumns = `id, feature_id, phase, type, severity, status, title, description,
	resolution, created_by, created_at, resolved_by, resolved_at, escalated_at`

func scanBlocker(row rowScanner) (*types.Blocker, error) {
	var b types.Blocker
	var resolvedAt, escalatedAt sql.NullTime
	err := row.Scan(&b.ID, &b.FeatureID, &b.Phase, &b.Type, &b.Severity, &b.Status,
		&b.Title, &b.Description, &b.Resolution, &b.CreatedBy, &b.CreatedAt,
		&b.ResolvedBy, &resolvedAt, &escalatedAt)
	if err != nil {
		return nil, err
	}
	b.ResolvedAt = timePtr(resolvedAt)
	b.EscalatedAt = timePtr(escalatedAt)
	return &b, nil
}

// GetBlocker retrieves a blocker by ID
func (q *queries) GetBlocker(ctx context.Context, id int64) (*types.Blocker, error) {
	b, err := scanBlocker(q.q.QueryRowContext(ctx, `SELECT `+blockerColumns+` FROM blockers WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, notFound("blocker", id)
	}
	if err != nil {
		return nil, wrapDBErrorf(err, "get blocker %d", id)
	}
	return b, nil
}

// ListBlockers returns the blockers of a feature, oldest first
func (q *queries) ListBlockers(ctx context.Context, featureID string, openOnly bool) ([]*types.Blocker, error) {
	query := `SELECT ` + blockerColumns + ` FROM blockers WHERE feature_id = ?`
	if openOnly {
		query += ` AND status IN ` + openBlockerStatuses
	}
	query += ` ORDER BY id`

	rows, err := q.q.QueryContext(ctx, query, featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blockers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var blockers []*types.Blocker
	for rows.Next() {
		b, err := scanBlocker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blocker: %w", err)
		}
		blockers = append(blockers, b)
	}
	return blockers, rows.Err()
}

// CountOpenBlockers counts blockers that still block the feature
func (q *queries) CountOpenBlockers(ctx context.Context, featureID string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM blockers WHERE feature_id = ? AND status IN `+openBlockerStatuses,
		featureID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count open blockers: %w", err)
	}
	return n, nil
}

// ListGates returns every gate row recorded for a feature
func (q *queries) ListGates(ctx context.Context, featureID string) ([]*types.QualityGate, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, feature_id, name, phase, attempt, status, approver, notes, created_at
		FROM quality_gates
		WHERE feature_id = ?
		ORDER BY id
	`, featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to list gates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var gates []*types.QualityGate
	for rows.Next() {
		var g types.QualityGate
		if err := rows.Scan(&g.ID, &g.FeatureID, &g.Name, &g.Phase, &g.Attempt, &g.Status,
			&g.Approver, &g.Notes, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan gate: %w", err)
		}
		gates = append(gates, &g)
	}
	return gates, rows.Err()
}

// CreateBlocker inserts a blocker in OPEN status
func (t *sqliteTx) CreateBlocker(ctx context.Context, b *types.Blocker) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if b.Status == "" {
		b.Status = types.BlockerOpen
	}
	b.CreatedAt = orNow(b.CreatedAt)

	res, err := t.conn.ExecContext(ctx, `
		INSERT INTO blockers (feature_id, phase, type, severity, status, title, description,
			created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.FeatureID, b.Phase, b.Type, b.Severity, b.Status, b.Title, b.Description,
		b.CreatedBy, b.CreatedAt)
	if err != nil {
		return wrapDBError("create blocker", err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get blocker id: %w", err)
	}
	return nil
}

// UpdateBlockerStatus moves an open blocker to a new status.
// A resolved blocker cannot change again.
func (t *sqliteTx) UpdateBlockerStatus(ctx context.Context, id int64, status types.BlockerStatus, actor, resolution string) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid blocker status: %s", status)
	}
	now := nowUTC()

	var res sql.Result
	var err error
	switch status {
	case types.BlockerResolved:
		res, err = t.conn.ExecContext(ctx, `
			UPDATE blockers SET status = ?, resolution = ?, resolved_by = ?, resolved_at = ?
			WHERE id = ? AND status IN `+openBlockerStatuses,
			status, resolution, actor, now, id)
	case types.BlockerEscalated:
		res, err = t.conn.ExecContext(ctx, `
			UPDATE blockers SET status = ?, escalated_at = ?
			WHERE id = ? AND status IN `+openBlockerStatuses,
			status, now, id)
	default:
		res, err = t.conn.ExecContext(ctx, `
			UPDATE blockers SET status = ? WHERE id = ? AND status IN `+openBlockerStatuses,
			status, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update blocker: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := t.GetBlocker(ctx, id); err != nil {
			return err
		}
		return storage.Violation("blocker already resolved", "blocker %d cannot move to %s", id, status)
	}
	return nil
}

// CreateGate records a gate decision for one phase visit
func (t *sqliteTx) CreateGate(ctx context.Context, g *types.QualityGate) error {
	if !g.Status.IsValid() {
		return fmt.Errorf("invalid gate status: %s", g.Status)
	}
	g.CreatedAt = orNow(g.CreatedAt)

	res, err := t.conn.ExecContext(ctx, `
		INSERT INTO quality_gates (feature_id, name, phase, attempt, status, approver, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, g.FeatureID, g.Name, g.Phase, g.Attempt, g.Status, g.Approver, g.Notes, g.CreatedAt)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return &storage.CollisionError{
				What: fmt.Sprintf("gate %q for phase %s attempt %d", g.Name, g.Phase, g.Attempt),
			}
		}
		return fmt.Errorf("failed to create gate: %w", err)
	}
	if g.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get gate id: %w", err)
	}
	return nil
}
