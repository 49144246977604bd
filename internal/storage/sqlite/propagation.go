package sqlite

import (
	"context"
	"fmt"

	"github.com/untoldecay/flowctl/internal/types"
)

const targetColumns = `id, learning_id, target_kind, target_path, relevance, declared_by, created_at`

const recordColumns = `id, learning_id, target_kind, target_path, actor, section, propagated_at`

func scanTarget(row rowScanner) (*types.PropagationTarget, error) {
	var pt types.PropagationTarget
	if err := row.Scan(&pt.ID, &pt.LearningID, &pt.Kind, &pt.Path, &pt.Relevance, &pt.DeclaredBy, &pt.CreatedAt); err != nil {
		return nil, err
	}
	return &pt, nil
}

func scanRecord(row rowScanner) (*types.PropagationRecord, error) {
	var r types.PropagationRecord
	if err := row.Scan(&r.ID, &r.LearningID, &r.Kind, &r.Path, &r.Actor, &r.Section, &r.PropagatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListPropagationTargets returns the targets declared for a learning
func (q *queries) ListPropagationTargets(ctx context.Context, learningID string) ([]*types.PropagationTarget, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+targetColumns+` FROM propagation_targets
		WHERE learning_id = ? ORDER BY target_kind, target_path
	`, learningID)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var targets []*types.PropagationTarget
	for rows.Next() {
		pt, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, pt)
	}
	return targets, rows.Err()
}

// ListPropagationRecords returns the completed propagations of a learning
func (q *queries) ListPropagationRecords(ctx context.Context, learningID string) ([]*types.PropagationRecord, error) {
	return q.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM propagation_records
		WHERE learning_id = ? ORDER BY target_kind, target_path
	`, learningID)
}

// ListSupersededRecords returns propagations of learnings that have since
// been superseded.
func (q *queries) ListSupersededRecords(ctx context.Context) ([]*types.PropagationRecord, error) {
	return q.queryRecords(ctx, `
		SELECT r.id, r.learning_id, r.target_kind, r.target_path, r.actor, r.section, r.propagated_at
		FROM propagation_records r
		JOIN learnings l ON l.id = r.learning_id
		WHERE l.is_superseded = 1
		ORDER BY r.id
	`)
}

func (q *queries) queryRecords(ctx context.Context, query string, args ...any) ([]*types.PropagationRecord, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query propagation records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.PropagationRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan propagation record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetPropagationQueue lists every (learning, target) pair that passes the
// learning's eligibility checks and the target relevance threshold and has
// no record yet. The learning-level fully-propagated marker is not consulted.
func (q *queries) GetPropagationQueue(ctx context.Context) ([]*types.QueueItem, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT l.id, l.title, l.confidence, t.target_kind, t.target_path, t.relevance
		FROM propagation_targets t
		JOIN learnings l ON l.id = t.learning_id
		WHERE l.is_superseded = 0
		  AND l.confidence >= ?
		  AND t.relevance >= ?
		  AND NOT EXISTS (
			SELECT 1 FROM learning_conflicts c
			WHERE (c.learning_a = l.id OR c.learning_b = l.id)
			  AND c.status IN ('OPEN', 'INVESTIGATING')
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM propagation_records r
			WHERE r.learning_id = l.id
			  AND r.target_kind = t.target_kind
			  AND r.target_path = t.target_path
		  )
		ORDER BY t.relevance DESC, l.confidence DESC, l.id, t.target_kind, t.target_path
	`, types.PropagationConfidence, types.MinTargetRelevance)
	if err != nil {
		return nil, fmt.Errorf("failed to get propagation queue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*types.QueueItem
	for rows.Next() {
		var it types.QueueItem
		if err := rows.Scan(&it.LearningID, &it.Title, &it.Confidence, &it.Kind, &it.Path, &it.Relevance); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

// DeclarePropagationTarget inserts a target if it is new. When the triple
// already exists the stored row is loaded into pt and false is returned.
func (t *sqliteTx) DeclarePropagationTarget(ctx context.Context, pt *types.PropagationTarget) (bool, error) {
	if err := types.ValidateTarget(pt.Kind, pt.Path); err != nil {
		return false, err
	}
	if pt.Relevance < 0 || pt.Relevance > 1 {
		return false, fmt.Errorf("relevance must be between 0 and 1 (got %.2f)", pt.Relevance)
	}
	pt.CreatedAt = orNow(pt.CreatedAt)

	res, err := t.conn.ExecContext(ctx, `
		INSERT INTO propagation_targets (learning_id, target_kind, target_path, relevance, declared_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (learning_id, target_kind, target_path) DO NOTHING
	`, pt.LearningID, pt.Kind, pt.Path, pt.Relevance, pt.DeclaredBy, pt.CreatedAt)
	if err != nil {
		return false, wrapDBError("declare target", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		pt.ID, err = res.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("failed to get target id: %w", err)
		}
		return true, nil
	}

	existing, err := scanTarget(t.conn.QueryRowContext(ctx, `
		SELECT `+targetColumns+` FROM propagation_targets
		WHERE learning_id = ? AND target_kind = ? AND target_path = ?
	`, pt.LearningID, pt.Kind, pt.Path))
	if err != nil {
		return false, wrapDBError("load existing target", err)
	}
	*pt = *existing
	return false, nil
}

// AddPropagationRecord inserts a record if the triple is new. When it
// already exists the stored row is loaded into r and false is returned.
func (t *sqliteTx) AddPropagationRecord(ctx context.Context, r *types.PropagationRecord) (bool, error) {
	if err := types.ValidateTarget(r.Kind, r.Path); err != nil {
		return false, err
	}
	r.PropagatedAt = orNow(r.PropagatedAt)

	res, err := t.conn.ExecContext(ctx, `
		INSERT INTO propagation_records (learning_id, target_kind, target_path, actor, section, propagated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (learning_id, target_kind, target_path) DO NOTHING
	`, r.LearningID, r.Kind, r.Path, r.Actor, r.Section, r.PropagatedAt)
	if err != nil {
		return false, wrapDBError("record propagation", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		r.ID, err = res.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("failed to get record id: %w", err)
		}
		return true, nil
	}

	existing, err := scanRecord(t.conn.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM propagation_records
		WHERE learning_id = ? AND target_kind = ? AND target_path = ?
	`, r.LearningID, r.Kind, r.Path))
	if err != nil {
		return false, wrapDBError("load existing record", err)
	}
	*r = *existing
	return false, nil
}
