package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

// GetLocks returns the locks held within a feature
func (q *queries) GetLocks(ctx context.Context, featureID string) ([]*types.Lock, error) {
	return q.queryLocks(ctx, `
		SELECT feature_id, resource, kind, holder, acquired_at
		FROM locks WHERE feature_id = ?
		ORDER BY resource
	`, featureID)
}

// ListActiveFileLocks returns file locks held by features that are still in flight
func (q *queries) ListActiveFileLocks(ctx context.Context) ([]*types.Lock, error) {
	return q.queryLocks(ctx, `
		SELECT l.feature_id, l.resource, l.kind, l.holder, l.acquired_at
		FROM locks l
		JOIN features f ON f.id = l.feature_id
		WHERE l.kind = 'FILE' AND f.status IN ('IN_PROGRESS', 'BLOCKED')
		ORDER BY l.feature_id, l.resource
	`)
}

func (q *queries) queryLocks(ctx context.Context, query string, args ...any) ([]*types.Lock, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query locks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var locks []*types.Lock
	for rows.Next() {
		var l types.Lock
		if err := rows.Scan(&l.FeatureID, &l.Resource, &l.Kind, &l.Holder, &l.AcquiredAt); err != nil {
			return nil, fmt.Errorf("failed to scan lock: %w", err)
		}
		locks = append(locks, &l)
	}
	return locks, rows.Err()
}

// AcquireLock claims (feature, resource). A held lock is a collision naming its holder.
func (t *sqliteTx) AcquireLock(ctx context.Context, l *types.Lock) error {
	if !l.Kind.IsValid() {
		return fmt.Errorf("invalid lock kind: %s", l.Kind)
	}
	l.AcquiredAt = orNow(l.AcquiredAt)

	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO locks (feature_id, resource, kind, holder, acquired_at)
		VALUES (?, ?, ?, ?, ?)
	`, l.FeatureID, l.Resource, l.Kind, l.Holder, l.AcquiredAt)
	if err == nil {
		return nil
	}
	if !IsUniqueConstraintError(err) {
		return wrapDBError("acquire lock", err)
	}

	var holder string
	if qerr := t.conn.QueryRowContext(ctx, `
		SELECT holder FROM locks WHERE feature_id = ? AND resource = ?
	`, l.FeatureID, l.Resource).Scan(&holder); qerr != nil {
		return fmt.Errorf("failed to read lock holder: %w", qerr)
	}
	return &storage.CollisionError{
		What:   fmt.Sprintf("lock %s:%s", l.FeatureID, l.Resource),
		Holder: holder,
	}
}

// ReleaseLock drops a lock. Releasing an unheld lock is not an error.
func (t *sqliteTx) ReleaseLock(ctx context.Context, featureID, resource string) (bool, error) {
	res, err := t.conn.ExecContext(ctx, `DELETE FROM locks WHERE feature_id = ? AND resource = ?`, featureID, resource)
	if err != nil {
		return false, fmt.Errorf("failed to release lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ReleaseAllLocks drops every lock held within a feature
func (t *sqliteTx) ReleaseAllLocks(ctx context.Context, featureID string) (int, error) {
	res, err := t.conn.ExecContext(ctx, `DELETE FROM locks WHERE feature_id = ?`, featureID)
	if err != nil {
		return 0, fmt.Errorf("failed to release locks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

const fileConflictColumns = `id, feature_a, feature_b, resources, risk, detected_phase, status,
	strategy, detected_by, detected_at, resolved_by, resolved_at, notes`

func scanFileConflict(row rowScanner) (*types.FileConflict, error) {
	var c types.FileConflict
	var resources string
	var resolvedAt sql.NullTime
	err := row.Scan(&c.ID, &c.FeatureA, &c.FeatureB, &resources, &c.Risk, &c.DetectedPhase,
		&c.Status, &c.Strategy, &c.DetectedBy, &c.DetectedAt, &c.ResolvedBy, &resolvedAt, &c.Notes)
	if err != nil {
		return nil, err
	}
	c.Resources = decodeList(resources)
	c.ResolvedAt = timePtr(resolvedAt)
	return &c, nil
}

// GetFileConflict retrieves a file conflict by ID
func (q *queries) GetFileConflict(ctx context.Context, id int64) (*types.FileConflict, error) {
	c, err := scanFileConflict(q.q.QueryRowContext(ctx,
		`SELECT `+fileConflictColumns+` FROM file_conflicts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, notFound("conflict", id)
	}
	if err != nil {
		return nil, wrapDBErrorf(err, "get conflict %d", id)
	}
	return c, nil
}

// ListFileConflicts lists conflicts involving featureID, or all conflicts
// when featureID is empty.
func (q *queries) ListFileConflicts(ctx context.Context, featureID string, unresolvedOnly bool) ([]*types.FileConflict, error) {
	var where []string
	var args []any
	if featureID != "" {
		where = append(where, "(feature_a = ? OR feature_b = ?)")
		args = append(args, featureID, featureID)
	}
	if unresolvedOnly {
		where = append(where, "status = 'DETECTED'")
	}
	query := `SELECT ` + fileConflictColumns + ` FROM file_conflicts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conflicts []*types.FileConflict
	for rows.Next() {
		c, err := scanFileConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

var riskRank = map[types.RiskLevel]int{types.RiskLow: 0, types.RiskMedium: 1, types.RiskHigh: 2}

// UpsertFileConflict records a conflict for the canonical pair. When the pair
// already has a row its paths are merged and its risk raised if needed. A
// closed conflict that gains new paths is reopened as DETECTED; the same
// paths again leave it closed. The returned bool reports whether a new row
// was created.
func (t *sqliteTx) UpsertFileConflict(ctx context.Context, c *types.FileConflict) (bool, error) {
	c.FeatureA, c.FeatureB = types.CanonicalPair(c.FeatureA, c.FeatureB)
	if c.FeatureA == c.FeatureB {
		return false, fmt.Errorf("a feature cannot conflict with itself")
	}

	existing, err := scanFileConflict(t.conn.QueryRowContext(ctx, `
		SELECT `+fileConflictColumns+` FROM file_conflicts WHERE feature_a = ? AND feature_b = ?
	`, c.FeatureA, c.FeatureB))
	switch {
	case err == sql.ErrNoRows:
		c.DetectedAt = orNow(c.DetectedAt)
		if c.Status == "" {
			c.Status = types.ConflictDetected
		}
		c.Resources = mergePaths(nil, c.Resources)
		res, err := t.conn.ExecContext(ctx, `
			INSERT INTO file_conflicts (feature_a, feature_b, resources, risk, detected_phase,
				status, detected_by, detected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, c.FeatureA, c.FeatureB, encodeList(c.Resources), c.Risk, c.DetectedPhase,
			c.Status, c.DetectedBy, c.DetectedAt)
		if err != nil {
			return false, wrapDBError("create conflict", err)
		}
		if c.ID, err = res.LastInsertId(); err != nil {
			return false, fmt.Errorf("failed to get conflict id: %w", err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("failed to look up conflict: %w", err)
	}

	merged := mergePaths(existing.Resources, c.Resources)
	risk := existing.Risk
	if riskRank[c.Risk] > riskRank[risk] {
		risk = c.Risk
	}
	if len(merged) > len(existing.Resources) && existing.Status != types.ConflictDetected {
		// new overlaps were never covered by the earlier resolution
		if _, err := t.conn.ExecContext(ctx, `
			UPDATE file_conflicts
			SET resources = ?, risk = ?, detected_phase = ?, status = ?, strategy = '',
				resolved_by = '', resolved_at = NULL
			WHERE id = ?
		`, encodeList(merged), risk, c.DetectedPhase, types.ConflictDetected, existing.ID); err != nil {
			return false, fmt.Errorf("failed to reopen conflict: %w", err)
		}
		existing.DetectedPhase = c.DetectedPhase
		existing.Status = types.ConflictDetected
		existing.Strategy = ""
		existing.ResolvedBy = ""
		existing.ResolvedAt = nil
	} else if _, err := t.conn.ExecContext(ctx, `
		UPDATE file_conflicts SET resources = ?, risk = ? WHERE id = ?
	`, encodeList(merged), risk, existing.ID); err != nil {
		return false, fmt.Errorf("failed to update conflict: %w", err)
	}
	existing.Resources = merged
	existing.Risk = risk
	*c = *existing
	return false, nil
}

// ResolveFileConflict applies a resolution strategy
func (t *sqliteTx) ResolveFileConflict(ctx context.Context, id int64, strategy types.ResolutionStrategy, actor, notes string) error {
	if !strategy.IsValid() {
		return fmt.Errorf("invalid strategy: %s", strategy)
	}
	res, err := t.conn.ExecContext(ctx, `
		UPDATE file_conflicts
		SET status = ?, strategy = ?, resolved_by = ?, resolved_at = ?, notes = ?
		WHERE id = ?
	`, strategy.ResultStatus(), strategy, actor, nowUTC(), notes, id)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}
	return requireOneRow(res, "conflict", id)
}

func mergePaths(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, p := range list {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

const invocationColumns = `id, feature_id, phase, actor, operation, aids, started_at, ended_at, duration_ms`

func scanInvocation(row rowScanner) (*types.AgentInvocation, error) {
	var inv types.AgentInvocation
	var aids string
	var endedAt sql.NullTime
	var duration sql.NullInt64
	err := row.Scan(&inv.ID, &inv.FeatureID, &inv.Phase, &inv.Actor, &inv.Operation, &aids,
		&inv.StartedAt, &endedAt, &duration)
	if err != nil {
		return nil, err
	}
	inv.Aids = decodeList(aids)
	inv.EndedAt = timePtr(endedAt)
	if duration.Valid {
		ms := duration.Int64
		inv.DurationMS = &ms
	}
	return &inv, nil
}

// GetInvocation retrieves an agent invocation by ID
func (q *queries) GetInvocation(ctx context.Context, id int64) (*types.AgentInvocation, error) {
	inv, err := scanInvocation(q.q.QueryRowContext(ctx,
		`SELECT `+invocationColumns+` FROM agent_invocations WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, notFound("invocation", id)
	}
	if err != nil {
		return nil, wrapDBErrorf(err, "get invocation %d", id)
	}
	return inv, nil
}

// ListInvocations returns a feature's invocations in start order
func (q *queries) ListInvocations(ctx context.Context, featureID string) ([]*types.AgentInvocation, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+invocationColumns+` FROM agent_invocations WHERE feature_id = ? ORDER BY id`, featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var invs []*types.AgentInvocation
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invocation: %w", err)
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

// StartInvocation opens a new invocation
func (t *sqliteTx) StartInvocation(ctx context.Context, inv *types.AgentInvocation) error {
	inv.StartedAt = orNow(inv.StartedAt)
	res, err := t.conn.ExecContext(ctx, `
		INSERT INTO agent_invocations (feature_id, phase, actor, operation, aids, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, inv.FeatureID, inv.Phase, inv.Actor, inv.Operation, encodeList(inv.Aids), inv.StartedAt)
	if err != nil {
		return wrapDBError("start invocation", err)
	}
	if inv.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get invocation id: %w", err)
	}
	return nil
}

// EndInvocation stamps the end time and duration exactly once.
func (t *sqliteTx) EndInvocation(ctx context.Context, id int64, endedAt time.Time) (*types.AgentInvocation, error) {
	inv, err := t.GetInvocation(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.EndedAt != nil {
		return nil, storage.Violation("invocation already ended", "invocation %d ended at %s",
			id, inv.EndedAt.Format(time.RFC3339))
	}

	endedAt = orNow(endedAt)
	ms := endedAt.Sub(inv.StartedAt).Milliseconds()
	if ms < 0 {
		ms = 0
	}

	res, err := t.conn.ExecContext(ctx, `
		UPDATE agent_invocations SET ended_at = ?, duration_ms = ?
		WHERE id = ? AND ended_at IS NULL
	`, endedAt, ms, id)
	if err != nil {
		return nil, fmt.Errorf("failed to end invocation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, storage.Violation("invocation already ended", "invocation %d", id)
	}

	inv.EndedAt = &endedAt
	inv.DurationMS = &ms
	return inv, nil
}
