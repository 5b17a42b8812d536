package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/types"
)

// SaveDocument inserts a new document and attaches any tags, returning the
// new id. doc_type defaults to "user".
func (s *Store) SaveDocument(ctx context.Context, title, content string, opts storage.SaveOptions) (int64, error) {
	kind := opts.Kind
	if kind == "" {
		kind = types.KindUser
	}
	now := formatTime(utcNow())

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO documents (title, content, project, doc_type, parent_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			title, content, nullString(opts.Project), string(kind), opts.ParentID, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		return addTagsTx(ctx, tx, id, opts.Tags)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

const docColumns = `id, title, content, COALESCE(project, ''), doc_type, parent_id,
	created_at, updated_at, COALESCE(accessed_at, ''), access_count, is_deleted, COALESCE(deleted_at, '')`

func scanDocument(row interface{ Scan(...any) error }) (*types.Document, error) {
	var d types.Document
	var createdAt, updatedAt, accessedAt, deletedAt string
	var isDeleted int
	err := row.Scan(&d.ID, &d.Title, &d.Content, &d.Project, &d.Kind, &d.ParentID,
		&createdAt, &updatedAt, &accessedAt, &d.AccessCount, &isDeleted, &deletedAt)
	if err != nil {
		return nil, err
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	if accessedAt != "" {
		t := parseTime(accessedAt)
		d.AccessedAt = &t
	}
	d.IsDeleted = isDeleted != 0
	if deletedAt != "" {
		t := parseTime(deletedAt)
		d.DeletedAt = &t
	}
	return &d, nil
}

// GetDocument returns the document by id, or nil when unknown or deleted.
// Access counting is deferred to the cache layer's write-behind buffer.
func (s *Store) GetDocument(ctx context.Context, id int64) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+docColumns+` FROM documents WHERE id = ? AND is_deleted = 0`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %d: %w", id, err)
	}
	return d, nil
}

// GetDocumentByTitle returns the most recently created live document with
// an exact title match, or nil.
func (s *Store) GetDocumentByTitle(ctx context.Context, title string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+docColumns+` FROM documents WHERE title = ? AND is_deleted = 0 ORDER BY id DESC LIMIT 1`, title)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %q: %w", title, err)
	}
	return d, nil
}

// UpdateDocument replaces title and content. Returns false for unknown ids.
func (s *Store) UpdateDocument(ctx context.Context, id int64, title, content string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET title = ?, content = ?, updated_at = ? WHERE id = ? AND is_deleted = 0`,
		title, content, formatTime(utcNow()), id)
	if err != nil {
		return false, fmt.Errorf("failed to update document %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpdateDocumentTitle renames a document without touching its content.
// Used by wiki retitle/rename so article regeneration is not implied.
func (s *Store) UpdateDocumentTitle(ctx context.Context, id int64, title string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET title = ?, updated_at = ? WHERE id = ? AND is_deleted = 0`,
		title, formatTime(utcNow()), id)
	if err != nil {
		return false, fmt.Errorf("failed to retitle document %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteDocument soft-deletes by default. Hard delete removes the row; the
// schema cascades through links, entities, tag joins, members and article
// sources. Soft-deleting an already-deleted row returns false.
func (s *Store) DeleteDocument(ctx context.Context, id int64, hard bool) (bool, error) {
	if hard {
		res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
		if err != nil {
			return false, fmt.Errorf("failed to hard-delete document %d: %w", id, err)
		}
		n, _ := res.RowsAffected()
		return n > 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET is_deleted = 1, deleted_at = ? WHERE id = ? AND is_deleted = 0`,
		formatTime(utcNow()), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete document %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListDocuments returns live documents, newest first. Empty project means
// all projects; limit <= 0 means no limit. No doc_type filter applies here;
// only search defaults to user documents.
func (s *Store) ListDocuments(ctx context.Context, project string, limit int) ([]types.DocumentListItem, error) {
	query := `SELECT id, title, COALESCE(project, ''), doc_type, created_at, updated_at, access_count
		FROM documents WHERE is_deleted = 0`
	args := []any{}
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryListItems(ctx, query, args...)
}

// ListDeleted returns soft-deleted documents, optionally only those deleted
// within the last N days.
func (s *Store) ListDeleted(ctx context.Context, days int, limit int) ([]types.DocumentListItem, error) {
	query := `SELECT id, title, COALESCE(project, ''), doc_type, created_at, updated_at, access_count
		FROM documents WHERE is_deleted = 1`
	args := []any{}
	if days > 0 {
		query += ` AND deleted_at >= ?`
		args = append(args, formatTime(utcNow().AddDate(0, 0, -days)))
	}
	query += ` ORDER BY deleted_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryListItems(ctx, query, args...)
}

func (s *Store) queryListItems(ctx context.Context, query string, args ...any) ([]types.DocumentListItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := []types.DocumentListItem{}
	for rows.Next() {
		var it types.DocumentListItem
		var createdAt, updatedAt string
		if err := rows.Scan(&it.ID, &it.Title, &it.Project, &it.Kind, &createdAt, &updatedAt, &it.AccessCount); err != nil {
			return nil, err
		}
		it.CreatedAt = parseTime(createdAt)
		it.UpdatedAt = parseTime(updatedAt)
		items = append(items, it)
	}
	return items, rows.Err()
}

// RestoreDocument clears the soft-delete flag. The FTS update trigger
// re-indexes the row. Returns false when the id is not a deleted document.
func (s *Store) RestoreDocument(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET is_deleted = 0, deleted_at = NULL, updated_at = ? WHERE id = ? AND is_deleted = 1`,
		formatTime(utcNow()), id)
	if err != nil {
		return false, fmt.Errorf("failed to restore document %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// PurgeDeleted hard-deletes soft-deleted documents, optionally only those
// deleted more than N days ago. Returns the number of rows removed.
func (s *Store) PurgeDeleted(ctx context.Context, olderThanDays int) (int, error) {
	query := `DELETE FROM documents WHERE is_deleted = 1`
	args := []any{}
	if olderThanDays > 0 {
		query += ` AND deleted_at <= ?`
		args = append(args, formatTime(utcNow().AddDate(0, 0, -olderThanDays)))
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge deleted documents: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// FlushAccessCounts applies buffered view counts in one transaction:
// each document's access_count grows by its buffered counter and
// accessed_at is bumped.
func (s *Store) FlushAccessCounts(ctx context.Context, counts map[int64]int64) error {
	if len(counts) == 0 {
		return nil
	}
	now := formatTime(utcNow())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE documents SET access_count = access_count + ?, accessed_at = ? WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare access flush: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for id, n := range counts {
			if _, err := stmt.ExecContext(ctx, n, now, id); err != nil {
				return fmt.Errorf("failed to flush access count for %d: %w", id, err)
			}
		}
		return nil
	})
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
