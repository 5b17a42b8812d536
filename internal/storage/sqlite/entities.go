package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/untoldecay/DocLoom/internal/types"
)

// SaveEntities persists extracted entities for a document. Duplicate
// (document, entity) rows are ignored, so extraction is idempotent.
// Returns the number of rows actually inserted.
func (s *Store) SaveEntities(ctx context.Context, docID int64, entities []types.DocumentEntity) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO document_entities (document_id, entity, entity_type, confidence)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare entity insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, e := range entities {
			res, err := stmt.ExecContext(ctx, docID, e.Entity, e.Type, e.Confidence)
			if err != nil {
				if isUniqueConstraintError(err) {
					continue
				}
				return fmt.Errorf("failed to insert entity %q: %w", e.Entity, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// SaveEntityRelationships persists typed entity edges (LLM path only).
func (s *Store) SaveEntityRelationships(ctx context.Context, docID int64, rels []types.EntityRelationship) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rels {
			res, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO entity_relationships
					(document_id, source_entity, target_entity, relationship_type, confidence)
				VALUES (?, ?, ?, ?, ?)`,
				docID, r.Source, r.Target, r.Type, r.Confidence)
			if err != nil {
				if isUniqueConstraintError(err) {
					continue
				}
				return fmt.Errorf("failed to insert relationship %q->%q: %w", r.Source, r.Target, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetEntities returns a document's entities, highest confidence first.
func (s *Store) GetEntities(ctx context.Context, docID int64) ([]types.DocumentEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, entity, entity_type, confidence
		FROM document_entities WHERE document_id = ?
		ORDER BY confidence DESC, entity`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to get entities for %d: %w", docID, err)
	}
	return scanEntities(rows)
}

// GetAllEntities returns entities for every live document. This feeds the
// topic clusterer and the glossary.
func (s *Store) GetAllEntities(ctx context.Context) ([]types.DocumentEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.document_id, e.entity, e.entity_type, e.confidence
		FROM document_entities e
		JOIN documents d ON d.id = e.document_id AND d.is_deleted = 0
		ORDER BY e.document_id, e.entity`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all entities: %w", err)
	}
	return scanEntities(rows)
}

func scanEntities(rows *sql.Rows) ([]types.DocumentEntity, error) {
	defer func() { _ = rows.Close() }()
	out := []types.DocumentEntity{}
	for rows.Next() {
		var e types.DocumentEntity
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Entity, &e.Type, &e.Confidence); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindDocsWithEntity returns ids of live documents sharing an entity string,
// optionally scoped to one project.
func (s *Store) FindDocsWithEntity(ctx context.Context, entity string, project string) ([]int64, error) {
	query := `
		SELECT e.document_id FROM document_entities e
		JOIN documents d ON d.id = e.document_id AND d.is_deleted = 0
		WHERE e.entity = ?`
	args := []any{entity}
	if project != "" {
		query += ` AND d.project = ?`
		args = append(args, project)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find docs with entity %q: %w", entity, err)
	}
	defer func() { _ = rows.Close() }()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteEntities removes all entities for a document (pre-re-extraction).
func (s *Store) DeleteEntities(ctx context.Context, docID int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM document_entities WHERE document_id = ?`, docID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entities for %d: %w", docID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
