package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/untoldecay/DocLoom/internal/types"
)

// linkExistsTx checks both directions.
func linkExistsTx(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, a, b int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `
		SELECT 1 FROM document_links
		WHERE (source_id = ? AND target_id = ?) OR (source_id = ? AND target_id = ?)
		LIMIT 1`, a, b, b, a).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check link %d<->%d: %w", a, b, err)
	}
	return true, nil
}

// CreateLink inserts a directed link. Self-links and duplicates in either
// direction are rejected by returning a nil id; they never raise.
func (s *Store) CreateLink(ctx context.Context, src, dst int64, score float64, method types.LinkMethod) (*int64, error) {
	if src == dst {
		return nil, nil
	}
	var id *int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := linkExistsTx(ctx, tx, src, dst)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO document_links (source_id, target_id, score, method, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			src, dst, score, string(method), formatTime(utcNow()))
		if err != nil {
			if isUniqueConstraintError(err) {
				return nil
			}
			return fmt.Errorf("failed to create link %d->%d: %w", src, dst, err)
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		id = &newID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return id, nil
}

// CreateLinksBatch inserts many links in one transaction, silently skipping
// self-links and duplicates in either direction. Returns the count inserted.
func (s *Store) CreateLinksBatch(ctx context.Context, links []types.Link) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(utcNow())
		for _, l := range links {
			if l.SourceID == l.TargetID {
				continue
			}
			exists, err := linkExistsTx(ctx, tx, l.SourceID, l.TargetID)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO document_links (source_id, target_id, score, method, created_at)
				VALUES (?, ?, ?, ?, ?)`,
				l.SourceID, l.TargetID, l.Score, string(l.Method), now)
			if err != nil {
				if isUniqueConstraintError(err) {
					continue
				}
				return fmt.Errorf("failed to insert link %d->%d: %w", l.SourceID, l.TargetID, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// LinkExists treats the relation as undirected.
func (s *Store) LinkExists(ctx context.Context, a, b int64) (bool, error) {
	return linkExistsTx(ctx, s.db, a, b)
}

// DeleteLink removes the edge between a and b regardless of direction.
func (s *Store) DeleteLink(ctx context.Context, a, b int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM document_links
		WHERE (source_id = ? AND target_id = ?) OR (source_id = ? AND target_id = ?)`,
		a, b, b, a)
	if err != nil {
		return false, fmt.Errorf("failed to delete link %d<->%d: %w", a, b, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteLinksForDocument removes every edge touching the document.
func (s *Store) DeleteLinksForDocument(ctx context.Context, docID int64) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM document_links WHERE source_id = ? OR target_id = ?`, docID, docID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete links for %d: %w", docID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteLinksByMethod removes all links created by one discovery method.
// Used by the rebuild variants of the wikifiers.
func (s *Store) DeleteLinksByMethod(ctx context.Context, method types.LinkMethod) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM document_links WHERE method = ?`, string(method))
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s links: %w", method, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GetLinksForDocument returns every edge touching the document, joined with
// both endpoint titles. Edges whose endpoints are soft-deleted are excluded.
func (s *Store) GetLinksForDocument(ctx context.Context, docID int64) ([]types.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.source_id, l.target_id, l.score, l.method, l.created_at,
			src.title, dst.title
		FROM document_links l
		JOIN documents src ON src.id = l.source_id AND src.is_deleted = 0
		JOIN documents dst ON dst.id = l.target_id AND dst.is_deleted = 0
		WHERE l.source_id = ? OR l.target_id = ?
		ORDER BY l.score DESC, l.id`, docID, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to get links for %d: %w", docID, err)
	}
	defer func() { _ = rows.Close() }()

	links := []types.Link{}
	for rows.Next() {
		var l types.Link
		var createdAt string
		if err := rows.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.Score, &l.Method,
			&createdAt, &l.SourceTitle, &l.TargetTitle); err != nil {
			return nil, err
		}
		l.CreatedAt = parseTime(createdAt)
		links = append(links, l)
	}
	return links, rows.Err()
}

// GetLinkedDocIDs returns the bare neighbor id list (live endpoints only).
func (s *Store) GetLinkedDocIDs(ctx context.Context, docID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CASE WHEN l.source_id = ? THEN l.target_id ELSE l.source_id END AS neighbor
		FROM document_links l
		JOIN documents n ON n.id = (CASE WHEN l.source_id = ? THEN l.target_id ELSE l.source_id END)
			AND n.is_deleted = 0
		WHERE l.source_id = ? OR l.target_id = ?`, docID, docID, docID, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to get neighbors of %d: %w", docID, err)
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

// GetLinkCount counts edges touching the document.
func (s *Store) GetLinkCount(ctx context.Context, docID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_links WHERE source_id = ? OR target_id = ?`,
		docID, docID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count links for %d: %w", docID, err)
	}
	return n, nil
}

// BatchGetLinkCounts returns a count per requested id, including zeros.
func (s *Store) BatchGetLinkCounts(ctx context.Context, docIDs []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(docIDs))
	for _, id := range docIDs {
		out[id] = 0
	}
	if len(docIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(docIDs))
	args := make([]any, 0, len(docIDs)*2)
	for i, id := range docIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	in := strings.Join(placeholders, ",")
	args = append(args, args[:len(docIDs)]...)

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, COUNT(*) FROM (
			SELECT source_id AS doc_id FROM document_links WHERE source_id IN (`+in+`)
			UNION ALL
			SELECT target_id AS doc_id FROM document_links WHERE target_id IN (`+in+`)
		) GROUP BY doc_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to batch-count links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}
