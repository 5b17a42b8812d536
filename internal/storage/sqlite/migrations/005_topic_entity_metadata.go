package migrations

import "database/sql"

// MigrateTopicEntityMetadata adds the clusterer's top-entity list to each
// topic, stored as a JSON array of strings.
func MigrateTopicEntityMetadata(tx *sql.Tx) error {
	return addColumnIfMissing(tx, "wiki_topics", "entities", `TEXT NOT NULL DEFAULT '[]'`)
}
