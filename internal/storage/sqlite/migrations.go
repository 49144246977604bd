// Package sqlite - database migrations
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/untoldecay/flowctl/internal/storage/sqlite/migrations"
)

// Migration represents a single database migration
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList is the ordered list of all migrations to run.
// Every migration must be idempotent: they all run on every open.
var migrationsList = []Migration{
	{"learning_reference_columns", migrations.MigrateLearningReferenceColumns},
	{"propagation_section_column", migrations.MigratePropagationSectionColumn},
	{"alert_score_column", migrations.MigrateAlertScoreColumn},
	{"additional_indexes", migrations.MigrateAdditionalIndexes},
	{"schema_version", migrations.MigrateSchemaVersion},
}

// MigrationInfo contains metadata about a migration for inspection
type MigrationInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListMigrations returns list of all registered migrations with descriptions
func ListMigrations() []MigrationInfo {
	result := make([]MigrationInfo, len(migrationsList))
	for i, m := range migrationsList {
		result[i] = MigrationInfo{
			Name:        m.Name,
			Description: getMigrationDescription(m.Name),
		}
	}
	return result
}

func getMigrationDescription(name string) string {
	descriptions := map[string]string{
		"learning_reference_columns": "Adds reference_count and last_referenced_at columns to learnings",
		"propagation_section_column": "Adds section column to propagation_records",
		"alert_score_column":         "Adds score column to alerts",
		"additional_indexes":         "Adds indexes for propagation queue and conflict lookups",
		"schema_version":             "Records the schema version in metadata",
	}

	if desc, ok := descriptions[name]; ok {
		return desc
	}
	return "Unknown migration"
}

// RunMigrations executes all registered migrations in order.
// Uses an EXCLUSIVE transaction so parallel processes opening the same
// database cannot race on check-then-alter steps. The caller must limit the
// pool to a single connection while this runs.
func RunMigrations(db *sql.DB) error {
	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, migration := range migrationsList {
		if err := migration.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true

	return nil
}
