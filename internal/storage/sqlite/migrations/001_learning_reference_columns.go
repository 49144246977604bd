package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateLearningReferenceColumns adds reference tracking to learnings
// created before references were counted separately from validations.
func MigrateLearningReferenceColumns(db *sql.DB) error {
	var hasRefCount bool
	err := db.QueryRow("SELECT COUNT(*) > 0 FROM pragma_table_info('learnings') WHERE name='reference_count'").Scan(&hasRefCount)
	if err != nil {
		return fmt.Errorf("failed to check for reference_count column: %w", err)
	}
	if !hasRefCount {
		_, err = db.Exec("ALTER TABLE learnings ADD COLUMN reference_count INTEGER NOT NULL DEFAULT 0")
		if err != nil {
			return fmt.Errorf("failed to add reference_count column: %w", err)
		}
	}

	var hasRefAt bool
	err = db.QueryRow("SELECT COUNT(*) > 0 FROM pragma_table_info('learnings') WHERE name='last_referenced_at'").Scan(&hasRefAt)
	if err != nil {
		return fmt.Errorf("failed to check for last_referenced_at column: %w", err)
	}
	if !hasRefAt {
		_, err = db.Exec("ALTER TABLE learnings ADD COLUMN last_referenced_at DATETIME")
		if err != nil {
			return fmt.Errorf("failed to add last_referenced_at column: %w", err)
		}
	}

	return nil
}
