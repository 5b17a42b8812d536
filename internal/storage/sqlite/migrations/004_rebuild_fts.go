package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateRebuildFTS rebuilds the external-content FTS index when documents
// already exist. Databases created before the triggers were in place would
// otherwise have live rows missing from the index.
func MigrateRebuildFTS(tx *sql.Tx) error {
	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM documents WHERE is_deleted = 0`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}
	if count == 0 {
		return nil
	}
	if _, err := tx.Exec(`INSERT INTO documents_fts(documents_fts) VALUES('rebuild')`); err != nil {
		return fmt.Errorf("failed to rebuild documents_fts: %w", err)
	}
	// Rebuild indexes every content row; evict the soft-deleted ones again.
	_, err := tx.Exec(`
		INSERT INTO documents_fts(documents_fts, rowid, title, content, project)
		SELECT 'delete', id, title, content, project FROM documents WHERE is_deleted = 1`)
	if err != nil {
		return fmt.Errorf("failed to drop deleted rows from documents_fts: %w", err)
	}
	return nil
}
