// Package sqlite - database migrations
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/untoldecay/DocLoom/internal/storage/sqlite/migrations"
)

// Migration is a single ordered schema change. IDs increase monotonically;
// schema_version records the highest applied id.
type Migration struct {
	ID   int
	Name string
	Func func(*sql.Tx) error
}

// migrationsList is the ordered list of all migrations. Append only.
var migrationsList = []Migration{
	{1, "topic_editorial_columns", migrations.MigrateTopicEditorialColumns},
	{2, "article_timing_columns", migrations.MigrateArticleTimingColumns},
	{3, "article_rating_columns", migrations.MigrateArticleRatingColumns},
	{4, "rebuild_fts", migrations.MigrateRebuildFTS},
	{5, "topic_entity_metadata", migrations.MigrateTopicEntityMetadata},
}

// MigrationInfo describes a registered migration for inspection.
type MigrationInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ListMigrations returns every registered migration in order.
func ListMigrations() []MigrationInfo {
	out := make([]MigrationInfo, len(migrationsList))
	for i, m := range migrationsList {
		out[i] = MigrationInfo{ID: m.ID, Name: m.Name}
	}
	return out
}

// RunMigrations applies every migration with id greater than the stored
// schema version, each inside its own transaction, advancing the version
// as it goes. Migrations are additive and idempotent, so a crash between
// transactions is recovered by simply re-running.
func RunMigrations(db *sql.DB) error {
	var current int
	if err := db.QueryRow(`SELECT version FROM schema_version WHERE id = 1`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrationsList {
		if m.ID <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d (%s): %w", m.ID, m.Name, err)
		}
		if err := m.Func(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.ID, m.Name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version = ? WHERE id = 1`, m.ID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to advance schema version to %d: %w", m.ID, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d (%s): %w", m.ID, m.Name, err)
		}
	}
	return nil
}
