package migrations

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is bumped whenever a migration is appended.
const SchemaVersion = "5"

// MigrateSchemaVersion stamps the metadata table with the current schema version.
func MigrateSchemaVersion(db *sql.DB) error {
	_, err := db.Exec(`
		INSERT INTO metadata (key, value) VALUES ('schema_version', ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, SchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}
