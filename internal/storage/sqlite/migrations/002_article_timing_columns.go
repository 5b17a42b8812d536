package migrations

import "database/sql"

// MigrateArticleTimingColumns adds per-step pipeline timings (milliseconds)
// to wiki_articles: prepare, route, outline, write, validate, save.
func MigrateArticleTimingColumns(tx *sql.Tx) error {
	for _, col := range []string{"prepare_ms", "route_ms", "outline_ms", "write_ms", "validate_ms", "save_ms"} {
		if err := addColumnIfMissing(tx, "wiki_articles", col, `INTEGER NOT NULL DEFAULT 0`); err != nil {
			return err
		}
	}
	return nil
}
