package migrations

import "database/sql"

// MigrateTopicEditorialColumns adds the per-topic editorial controls:
// a model override and a freeform editorial prompt appended to synthesis.
func MigrateTopicEditorialColumns(tx *sql.Tx) error {
	if err := addColumnIfMissing(tx, "wiki_topics", "model_override", `TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}
	return addColumnIfMissing(tx, "wiki_topics", "editorial_prompt", `TEXT NOT NULL DEFAULT ''`)
}
