package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateAlertScoreColumn stores the score that triggered an alert.
func MigrateAlertScoreColumn(db *sql.DB) error {
	var hasScore bool
	err := db.QueryRow("SELECT COUNT(*) > 0 FROM pragma_table_info('alerts') WHERE name='score'").Scan(&hasScore)
	if err != nil {
		return fmt.Errorf("failed to check for score column: %w", err)
	}
	if hasScore {
		return nil
	}
	if _, err := db.Exec("ALTER TABLE alerts ADD COLUMN score REAL"); err != nil {
		return fmt.Errorf("failed to add score column: %w", err)
	}
	return nil
}
