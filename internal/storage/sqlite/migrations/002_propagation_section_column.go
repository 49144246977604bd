package migrations

import (
	"database/sql"
	"fmt"
)

// MigratePropagationSectionColumn records which section of a target
// received the learning.
func MigratePropagationSectionColumn(db *sql.DB) error {
	var colName string
	err := db.QueryRow(`
		SELECT name FROM pragma_table_info('propagation_records')
		WHERE name = 'section'
	`).Scan(&colName)

	if err == sql.ErrNoRows {
		_, err := db.Exec(`ALTER TABLE propagation_records ADD COLUMN section TEXT NOT NULL DEFAULT ''`)
		if err != nil {
			return fmt.Errorf("failed to add section column: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check section column: %w", err)
	}
	return nil
}
