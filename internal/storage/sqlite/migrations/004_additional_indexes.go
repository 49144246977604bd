package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateAdditionalIndexes adds indexes for the propagation queue and
// conflict lookups.
func MigrateAdditionalIndexes(db *sql.DB) error {
	indexes := []struct {
		name string
		sql  string
	}{
		{"idx_targets_learning", "CREATE INDEX IF NOT EXISTS idx_targets_learning ON propagation_targets(learning_id)"},
		{"idx_records_learning", "CREATE INDEX IF NOT EXISTS idx_records_learning ON propagation_records(learning_id)"},
		{"idx_learning_conflicts_status", "CREATE INDEX IF NOT EXISTS idx_learning_conflicts_status ON learning_conflicts(status)"},
		{"idx_file_conflicts_status", "CREATE INDEX IF NOT EXISTS idx_file_conflicts_status ON file_conflicts(status)"},
		{"idx_gates_feature_phase", "CREATE INDEX IF NOT EXISTS idx_gates_feature_phase ON quality_gates(feature_id, phase)"},
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx.sql); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	return nil
}
