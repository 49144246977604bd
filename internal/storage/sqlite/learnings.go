package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/untoldecay/flowctl/internal/storage"
	"github.com/untoldecay/flowctl/internal/types"
)

const learningColumns = `id, category, title, content, confidence, validation_count, validators,
	importance, tags, feature_id, phase, source_actor, predecessor_id, successor_id,
	iteration_number, is_superseded, delta_summary, reference_count, propagated_at,
	created_at, updated_at, last_validated_at, last_referenced_at, superseded_at`

func scanLearning(row rowScanner) (*types.Learning, error) {
	var l types.Learning
	var validators, tags string
	var featureID, predecessorID, successorID sql.NullString
	var propagatedAt, lastValidated, lastReferenced, supersededAt sql.NullTime
	err := row.Scan(&l.ID, &l.Category, &l.Title, &l.Content, &l.Confidence, &l.ValidationCount,
		&validators, &l.Importance, &tags, &featureID, &l.Phase, &l.SourceActor, &predecessorID,
		&successorID, &l.IterationNumber, &l.IsSuperseded, &l.DeltaSummary, &l.ReferenceCount,
		&propagatedAt, &l.CreatedAt, &l.UpdatedAt, &lastValidated, &lastReferenced, &supersededAt)
	if err != nil {
		return nil, err
	}
	l.Validators = decodeList(validators)
	l.Tags = decodeList(tags)
	l.FeatureID = featureID.String
	l.PredecessorID = predecessorID.String
	l.SuccessorID = successorID.String
	l.PropagatedAt = timePtr(propagatedAt)
	l.LastValidatedAt = timePtr(lastValidated)
	l.LastReferencedAt = timePtr(lastReferenced)
	l.SupersededAt = timePtr(supersededAt)
	return &l, nil
}

// GetLearning retrieves a learning by ID
func (q *queries) GetLearning(ctx context.Context, id string) (*types.Learning, error) {
	l, err := scanLearning(q.q.QueryRowContext(ctx, `SELECT `+learningColumns+` FROM learnings WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, notFound("learning", id)
	}
	if err != nil {
		return nil, wrapDBErrorf(err, "get learning %s", id)
	}
	return l, nil
}

// ListLearnings returns learnings matching the filter, most confident first
func (q *queries) ListLearnings(ctx context.Context, filter types.LearningFilter) ([]*types.Learning, error) {
	var where []string
	var args []any
	if !filter.IncludeSuperseded {
		where = append(where, "is_superseded = 0")
	}
	if filter.Category != nil {
		where = append(where, "category = ?")
		args = append(args, *filter.Category)
	}
	if filter.FeatureID != "" {
		where = append(where, "feature_id = ?")
		args = append(args, filter.FeatureID)
	}
	if filter.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(learnings.tags) WHERE json_each.value = ?)")
		args = append(args, filter.Tag)
	}
	if filter.MinConfidence > 0 {
		where = append(where, "confidence >= ?")
		args = append(args, filter.MinConfidence)
	}

	query := `SELECT ` + learningColumns + ` FROM learnings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY confidence DESC, created_at, id"
	if filter.Limit > 0 {
		query += limitClause
		args = append(args, filter.Limit)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list learnings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var learnings []*types.Learning
	for rows.Next() {
		l, err := scanLearning(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learning: %w", err)
		}
		learnings = append(learnings, l)
	}
	return learnings, rows.Err()
}

// CreateLearning inserts a learning. A second successor for the same
// predecessor is rejected by the UNIQUE predecessor_id column.
func (t *sqliteTx) CreateLearning(ctx context.Context, l *types.Learning) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if l.IterationNumber == 0 {
		l.IterationNumber = 1
	}
	l.CreatedAt = orNow(l.CreatedAt)
	l.UpdatedAt = l.CreatedAt

	_, err := t.conn.ExecContext(ctx, `
		INSERT INTO learnings (id, category, title, content, confidence, validation_count,
			validators, importance, tags, feature_id, phase, source_actor, predecessor_id,
			iteration_number, delta_summary, reference_count, created_at, updated_at,
			last_validated_at)
		VALUES (?, ?, ?, ?, ROUND(?, 2), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.Category, l.Title, l.Content, l.Confidence, l.ValidationCount,
		encodeList(l.Validators), l.Importance, encodeList(l.Tags), nullIfEmpty(l.FeatureID),
		l.Phase, l.SourceActor, nullIfEmpty(l.PredecessorID), l.IterationNumber,
		l.DeltaSummary, l.ReferenceCount, l.CreatedAt, l.UpdatedAt, l.LastValidatedAt)
	if err != nil {
		if IsUniqueConstraintError(err) && l.PredecessorID != "" {
			return &storage.CollisionError{What: fmt.Sprintf("successor of learning %s", l.PredecessorID)}
		}
		return wrapDBErrorf(err, "learning %s", l.ID)
	}
	return nil
}

// SupersedeLearning marks the predecessor as replaced by the successor.
// Only a chain head can be superseded.
func (t *sqliteTx) SupersedeLearning(ctx context.Context, predecessorID, successorID string) error {
	now := nowUTC()
	res, err := t.conn.ExecContext(ctx, `
		UPDATE learnings
		SET is_superseded = 1, successor_id = ?, superseded_at = ?, updated_at = ?
		WHERE id = ? AND is_superseded = 0
	`, successorID, now, now, predecessorID)
	if err != nil {
		return fmt.Errorf("failed to supersede learning: %w", err)
	}
	return t.requireActiveLearning(ctx, res, predecessorID, "supersede")
}

// ValidateLearning raises confidence by the validation increment, capped at 1,
// and appends the validator, in one statement.
func (t *sqliteTx) ValidateLearning(ctx context.Context, id, actor string) error {
	now := nowUTC()
	res, err := t.conn.ExecContext(ctx, `
		UPDATE learnings
		SET confidence = MIN(1.0, ROUND(confidence + ?, 2)),
			validation_count = validation_count + 1,
			validators = json_insert(validators, '$[#]', ?),
			last_validated_at = ?,
			updated_at = ?
		WHERE id = ? AND is_superseded = 0
	`, types.ValidationIncrement, actor, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to validate learning: %w", err)
	}
	return t.requireActiveLearning(ctx, res, id, "validate")
}

// ReferenceLearning raises confidence by the reference increment, capped at 1.
func (t *sqliteTx) ReferenceLearning(ctx context.Context, id string) error {
	now := nowUTC()
	res, err := t.conn.ExecContext(ctx, `
		UPDATE learnings
		SET confidence = MIN(1.0, ROUND(confidence + ?, 2)),
			reference_count = reference_count + 1,
			last_referenced_at = ?,
			updated_at = ?
		WHERE id = ? AND is_superseded = 0
	`, types.ReferenceIncrement, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to reference learning: %w", err)
	}
	return t.requireActiveLearning(ctx, res, id, "reference")
}

// MarkLearningPropagated sets the fully-propagated marker once.
func (t *sqliteTx) MarkLearningPropagated(ctx context.Context, id string) error {
	_, err := t.conn.ExecContext(ctx, `
		UPDATE learnings SET propagated_at = ?, updated_at = ?
		WHERE id = ? AND propagated_at IS NULL
	`, nowUTC(), nowUTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark learning propagated: %w", err)
	}
	return nil
}

// ClearLearningPropagated drops the fully-propagated marker, e.g. when a new
// target is declared after every earlier one was recorded.
func (t *sqliteTx) ClearLearningPropagated(ctx context.Context, id string) error {
	_, err := t.conn.ExecContext(ctx, `
		UPDATE learnings SET propagated_at = NULL, updated_at = ?
		WHERE id = ? AND propagated_at IS NOT NULL
	`, nowUTC(), id)
	if err != nil {
		return fmt.Errorf("failed to clear learning propagated marker: %w", err)
	}
	return nil
}

// requireActiveLearning turns a zero-row update into NotFound or a
// superseded-learning violation.
func (t *sqliteTx) requireActiveLearning(ctx context.Context, res sql.Result, id, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	l, err := t.GetLearning(ctx, id)
	if err != nil {
		return err
	}
	return storage.Violation("learning is superseded",
		"cannot %s %s: superseded by %s", op, id, l.SuccessorID)
}

const learningConflictColumns = `id, learning_a, learning_b, kind, description, status, winner_id,
	similarity, detected_by, created_at, resolved_by, resolved_at, resolution_notes`

func scanLearningConflict(row rowScanner) (*types.LearningConflict, error) {
	var c types.LearningConflict
	var winner sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&c.ID, &c.LearningA, &c.LearningB, &c.Kind, &c.Description, &c.Status,
		&winner, &c.Similarity, &c.DetectedBy, &c.CreatedAt, &c.ResolvedBy, &resolvedAt,
		&c.ResolutionNotes)
	if err != nil {
		return nil, err
	}
	c.WinnerID = winner.String
	c.ResolvedAt = timePtr(resolvedAt)
	return &c, nil
}

// GetLearningConflict retrieves a knowledge conflict by ID
func (q *queries) GetLearningConflict(ctx context.Context, id int64) (*types.LearningConflict, error) {
	c, err := scanLearningConflict(q.q.QueryRowContext(ctx,
		`SELECT `+learningConflictColumns+` FROM learning_conflicts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, notFound("learning conflict", id)
	}
	if err != nil {
		return nil, wrapDBErrorf(err, "get learning conflict %d", id)
	}
	return c, nil
}

// ListLearningConflicts lists conflicts involving learningID, or all
// conflicts when learningID is empty.
func (q *queries) ListLearningConflicts(ctx context.Context, learningID string, unresolvedOnly bool) ([]*types.LearningConflict, error) {
	var where []string
	var args []any
	if learningID != "" {
		where = append(where, "(learning_a = ? OR learning_b = ?)")
		args = append(args, learningID, learningID)
	}
	if unresolvedOnly {
		where = append(where, "status IN ('OPEN', 'INVESTIGATING')")
	}
	query := `SELECT ` + learningConflictColumns + ` FROM learning_conflicts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list learning conflicts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conflicts []*types.LearningConflict
	for rows.Next() {
		c, err := scanLearningConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learning conflict: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// HasLearningConflict reports whether the pair has any conflict record
func (q *queries) HasLearningConflict(ctx context.Context, a, b string) (bool, error) {
	a, b = types.CanonicalPair(a, b)
	var exists bool
	err := q.q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM learning_conflicts WHERE learning_a = ? AND learning_b = ?)
	`, a, b).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check learning conflict: %w", err)
	}
	return exists, nil
}

// CreateLearningConflict records a conflict for the canonical pair
func (t *sqliteTx) CreateLearningConflict(ctx context.Context, c *types.LearningConflict) error {
	c.LearningA, c.LearningB = types.CanonicalPair(c.LearningA, c.LearningB)
	if c.LearningA == c.LearningB {
		return fmt.Errorf("a learning cannot conflict with itself")
	}
	if c.Status == "" {
		c.Status = types.LearningConflictOpen
	}
	c.CreatedAt = orNow(c.CreatedAt)

	res, err := t.conn.ExecContext(ctx, `
		INSERT INTO learning_conflicts (learning_a, learning_b, kind, description, status,
			similarity, detected_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.LearningA, c.LearningB, c.Kind, c.Description, c.Status, c.Similarity, c.DetectedBy, c.CreatedAt)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return &storage.CollisionError{What: fmt.Sprintf("conflict between %s and %s", c.LearningA, c.LearningB)}
		}
		return wrapDBError("create learning conflict", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get learning conflict id: %w", err)
	}
	return nil
}

// UpdateLearningConflict moves a conflict to a new status. Terminal statuses
// stamp the resolver.
func (t *sqliteTx) UpdateLearningConflict(ctx context.Context, id int64, status types.LearningConflictStatus, winnerID, actor, notes string) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid learning conflict status: %s", status)
	}
	var resolvedAt any
	resolvedBy := ""
	if !status.IsUnresolved() {
		resolvedAt = nowUTC()
		resolvedBy = actor
	}
	res, err := t.conn.ExecContext(ctx, `
		UPDATE learning_conflicts
		SET status = ?, winner_id = ?, resolved_by = ?, resolved_at = ?, resolution_notes = ?
		WHERE id = ?
	`, status, nullIfEmpty(winnerID), resolvedBy, resolvedAt, notes, id)
	if err != nil {
		return wrapDBError("update learning conflict", err)
	}
	return requireOneRow(res, "learning conflict", id)
}
