package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/untoldecay/DocLoom/internal/types"
)

// WildcardQuery matches all non-deleted documents without touching the
// full-text index.
const WildcardQuery = "*"

// EscapeFTSQuery neutralizes FTS5 operator syntax in user queries. Hyphens,
// punctuation, and reserved tokens (AND, OR, NEAR, ...) would otherwise
// change the query's meaning or raise a syntax error, so every
// whitespace-separated token is wrapped in double quotes (implicit AND,
// all terms literal). Inputs that are already a single quoted literal pass
// through unchanged, which makes escaping idempotent.
func EscapeFTSQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return `""`
	}
	// Already a single quoted literal: "foo bar"
	if len(query) >= 2 && strings.HasPrefix(query, `"`) && strings.HasSuffix(query, `"`) &&
		!strings.Contains(query[1:len(query)-1], `"`) {
		return query
	}
	tokens := strings.Fields(query)
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(tok, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

// SearchDocuments runs a full-text query with optional filters. The "*"
// sentinel bypasses FTS and returns all live documents ordered by id
// descending with no snippet or rank. Soft-deleted documents never appear.
func (s *Store) SearchDocuments(ctx context.Context, query string, opts types.SearchOptions) ([]types.SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	var sb strings.Builder
	args := []any{}

	wildcard := strings.TrimSpace(query) == WildcardQuery
	if wildcard {
		sb.WriteString(`
			SELECT d.id, d.title, COALESCE(d.project, ''), d.created_at, d.updated_at, '' AS snippet, NULL AS rank
			FROM documents d
			WHERE d.is_deleted = 0`)
	} else {
		sb.WriteString(`
			SELECT d.id, d.title, COALESCE(d.project, ''), d.created_at, d.updated_at,
				snippet(documents_fts, 1, '<b>', '</b>', '...', 16) AS snippet,
				documents_fts.rank AS rank
			FROM documents_fts
			JOIN documents d ON d.id = documents_fts.rowid
			WHERE documents_fts MATCH ? AND d.is_deleted = 0`)
		args = append(args, EscapeFTSQuery(query))
	}

	if opts.Project != nil {
		sb.WriteString(` AND d.project = ?`)
		args = append(args, *opts.Project)
	}
	if opts.CreatedAfter != nil {
		sb.WriteString(` AND d.created_at >= ?`)
		args = append(args, formatTime(*opts.CreatedAfter))
	}
	if opts.CreatedBefore != nil {
		sb.WriteString(` AND d.created_at <= ?`)
		args = append(args, formatTime(*opts.CreatedBefore))
	}
	if opts.UpdatedAfter != nil {
		sb.WriteString(` AND d.updated_at >= ?`)
		args = append(args, formatTime(*opts.UpdatedAfter))
	}
	if opts.UpdatedBefore != nil {
		sb.WriteString(` AND d.updated_at <= ?`)
		args = append(args, formatTime(*opts.UpdatedBefore))
	}

	// Kind filter: explicit kinds win; otherwise default to user documents
	// unless AllKinds lifts the filter.
	kinds := opts.Kinds
	if kinds == nil && !opts.AllKinds {
		kinds = []types.DocKind{types.KindUser}
	}
	if len(kinds) > 0 {
		placeholders := make([]string, len(kinds))
		for i, k := range kinds {
			placeholders[i] = "?"
			args = append(args, string(k))
		}
		sb.WriteString(` AND d.doc_type IN (` + strings.Join(placeholders, ",") + `)`)
	}

	if wildcard {
		sb.WriteString(` ORDER BY d.id DESC`)
	} else {
		sb.WriteString(` ORDER BY rank`)
	}
	sb.WriteString(` LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []types.SearchResult{}
	for rows.Next() {
		var r types.SearchResult
		var createdAt, updatedAt string
		if err := rows.Scan(&r.ID, &r.Title, &r.Project, &createdAt, &updatedAt, &r.Snippet, &r.Rank); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)
		results = append(results, r)
	}
	return results, rows.Err()
}
