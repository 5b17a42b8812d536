package migrations

import "database/sql"

// MigrateArticleRatingColumns adds the optional 1-5 star rating.
func MigrateArticleRatingColumns(tx *sql.Tx) error {
	if err := addColumnIfMissing(tx, "wiki_articles", "rating", `INTEGER`); err != nil {
		return err
	}
	return addColumnIfMissing(tx, "wiki_articles", "rated_at", `DATETIME`)
}
