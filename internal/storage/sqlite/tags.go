package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/untoldecay/DocLoom/internal/types"
)

// normalizeTag lowercases and trims a tag name.
func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

func addTagsTx(ctx context.Context, tx *sql.Tx, docID int64, tags []string) error {
	for _, raw := range tags {
		tag := normalizeTag(raw)
		if tag == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, tag); err != nil {
			return fmt.Errorf("failed to intern tag %q: %w", tag, err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO document_tags (document_id, tag_id)
			SELECT ?, id FROM tags WHERE name = ?`, docID, tag)
		if err != nil {
			return fmt.Errorf("failed to attach tag %q: %w", tag, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			if _, err := tx.ExecContext(ctx, `UPDATE tags SET use_count = use_count + 1 WHERE name = ?`, tag); err != nil {
				return fmt.Errorf("failed to bump tag count for %q: %w", tag, err)
			}
		}
	}
	return nil
}

// AddTags attaches tags to a document, interning new names.
func (s *Store) AddTags(ctx context.Context, docID int64, tags []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return addTagsTx(ctx, tx, docID, tags)
	})
}

// RemoveTags detaches tags from a document. Unknown tags are ignored.
func (s *Store) RemoveTags(ctx context.Context, docID int64, tags []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, raw := range tags {
			tag := normalizeTag(raw)
			res, err := tx.ExecContext(ctx, `
				DELETE FROM document_tags WHERE document_id = ?
				AND tag_id = (SELECT id FROM tags WHERE name = ?)`, docID, tag)
			if err != nil {
				return fmt.Errorf("failed to remove tag %q: %w", tag, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				if _, err := tx.ExecContext(ctx,
					`UPDATE tags SET use_count = MAX(use_count - 1, 0) WHERE name = ?`, tag); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GetTags returns the document's tag names sorted alphabetically.
func (s *Store) GetTags(ctx context.Context, docID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN document_tags dt ON dt.tag_id = t.id
		WHERE dt.document_id = ?
		ORDER BY t.name`, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tags for %d: %w", docID, err)
	}
	defer func() { _ = rows.Close() }()

	tags := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// ListTags returns every tag with its usage count, most used first.
func (s *Store) ListTags(ctx context.Context) ([]types.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, use_count FROM tags ORDER BY use_count DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tags := []types.Tag{}
	for rows.Next() {
		var t types.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.UseCount); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// GetTagsForDocs fetches tag names for a batch of documents in one query.
func (s *Store) GetTagsForDocs(ctx context.Context, docIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(docIDs))
	if len(docIDs) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(docIDs))
	args := make([]any, len(docIDs))
	for i, id := range docIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT dt.document_id, t.name FROM document_tags dt
		JOIN tags t ON t.id = dt.tag_id
		WHERE dt.document_id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to batch-get tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = append(out[id], name)
	}
	return out, rows.Err()
}
