package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/types"
)

const topicColumns = `t.id, t.slug, t.label, t.entities, t.fingerprint, t.coherence_score, t.status,
	t.model_override, t.editorial_prompt, t.created_at`

func scanTopic(row interface{ Scan(...any) error }, withCount bool) (*types.WikiTopic, error) {
	var t types.WikiTopic
	var createdAt, entitiesJSON string
	dest := []any{&t.ID, &t.Slug, &t.Label, &entitiesJSON, &t.Fingerprint, &t.Coherence, &t.Status,
		&t.ModelOverride, &t.EditorialPrompt, &createdAt}
	if withCount {
		dest = append(dest, &t.MemberCount)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	t.CreatedAt = parseTime(createdAt)
	if entitiesJSON != "" && entitiesJSON != "[]" {
		// Malformed metadata degrades to an empty list rather than failing
		// the read.
		_ = json.Unmarshal([]byte(entitiesJSON), &t.Entities)
	}
	return &t, nil
}

func marshalEntities(entities []string) string {
	if len(entities) == 0 {
		return "[]"
	}
	b, err := json.Marshal(entities)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// ReplaceTopics swaps the whole topic set for a fresh clustering result.
// Existing topics, members (and via cascade, articles) are removed.
func (s *Store) ReplaceTopics(ctx context.Context, topics []types.WikiTopic, members map[int][]types.WikiTopicMember) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM wiki_topic_members`); err != nil {
			return fmt.Errorf("failed to clear topic members: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM wiki_topics`); err != nil {
			return fmt.Errorf("failed to clear topics: %w", err)
		}
		now := formatTime(utcNow())
		for i, t := range topics {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO wiki_topics (slug, label, entities, fingerprint, coherence_score, status, model_override, editorial_prompt, created_at)
				VALUES (?, ?, ?, ?, ?, ?, '', '', ?)`,
				t.Slug, t.Label, marshalEntities(t.Entities), t.Fingerprint, t.Coherence, string(types.TopicActive), now)
			if err != nil {
				return fmt.Errorf("failed to insert topic %q: %w", t.Slug, err)
			}
			topicID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			for _, m := range members[i] {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO wiki_topic_members (topic_id, document_id, relevance_score, is_primary)
					VALUES (?, ?, ?, ?)`,
					topicID, m.DocumentID, m.Relevance, boolInt(m.IsPrimary)); err != nil {
					return fmt.Errorf("failed to insert member %d of topic %q: %w", m.DocumentID, t.Slug, err)
				}
			}
		}
		return nil
	})
}

// GetTopics returns all topics with member counts, largest first.
func (s *Store) GetTopics(ctx context.Context) ([]types.WikiTopic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+topicColumns+`, COUNT(m.document_id) AS member_count
		FROM wiki_topics t
		LEFT JOIN wiki_topic_members m ON m.topic_id = t.id
		GROUP BY t.id
		ORDER BY member_count DESC, t.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get topics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	topics := []types.WikiTopic{}
	for rows.Next() {
		t, err := scanTopic(rows, true)
		if err != nil {
			return nil, err
		}
		topics = append(topics, *t)
	}
	return topics, rows.Err()
}

// GetTopic returns one topic by id, or nil.
func (s *Store) GetTopic(ctx context.Context, id int64) (*types.WikiTopic, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+topicColumns+` FROM wiki_topics t WHERE t.id = ?`, id)
	t, err := scanTopic(row, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get topic %d: %w", id, err)
	}
	return t, nil
}

// GetTopicBySlug returns one topic by slug, or nil.
func (s *Store) GetTopicBySlug(ctx context.Context, slug string) (*types.WikiTopic, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+topicColumns+` FROM wiki_topics t WHERE t.slug = ?`, slug)
	t, err := scanTopic(row, false)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get topic %q: %w", slug, err)
	}
	return t, nil
}

// GetTopicDocs returns primary-member document ids ordered by relevance
// descending. Excluded members and deleted documents are skipped.
func (s *Store) GetTopicDocs(ctx context.Context, topicID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.document_id FROM wiki_topic_members m
		JOIN documents d ON d.id = m.document_id AND d.is_deleted = 0
		WHERE m.topic_id = ? AND m.is_primary = 1
		ORDER BY m.relevance_score DESC, m.document_id`, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to get docs for topic %d: %w", topicID, err)
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

// GetTopicMembers returns all members including excluded ones.
func (s *Store) GetTopicMembers(ctx context.Context, topicID int64) ([]types.WikiTopicMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT topic_id, document_id, relevance_score, is_primary
		FROM wiki_topic_members WHERE topic_id = ?
		ORDER BY relevance_score DESC, document_id`, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members for topic %d: %w", topicID, err)
	}
	defer func() { _ = rows.Close() }()

	members := []types.WikiTopicMember{}
	for rows.Next() {
		var m types.WikiTopicMember
		var primary int
		if err := rows.Scan(&m.TopicID, &m.DocumentID, &m.Relevance, &primary); err != nil {
			return nil, err
		}
		m.IsPrimary = primary != 0
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpdateTopic writes label, slug, status and editorial fields. A slug
// collision with another topic returns ErrDuplicate.
func (s *Store) UpdateTopic(ctx context.Context, topic *types.WikiTopic) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE wiki_topics SET slug = ?, label = ?, entities = ?, fingerprint = ?, coherence_score = ?,
			status = ?, model_override = ?, editorial_prompt = ?
		WHERE id = ?`,
		topic.Slug, topic.Label, marshalEntities(topic.Entities), topic.Fingerprint, topic.Coherence,
		string(topic.Status), topic.ModelOverride, topic.EditorialPrompt, topic.ID)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("slug %q: %w", topic.Slug, storage.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to update topic %d: %w", topic.ID, err)
	}
	return nil
}

// CreateTopic inserts a new topic (used by split). Slug collisions return
// ErrDuplicate.
func (s *Store) CreateTopic(ctx context.Context, topic *types.WikiTopic, members []types.WikiTopicMember) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO wiki_topics (slug, label, entities, fingerprint, coherence_score, status, model_override, editorial_prompt, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			topic.Slug, topic.Label, marshalEntities(topic.Entities), topic.Fingerprint, topic.Coherence,
			string(topic.Status), topic.ModelOverride, topic.EditorialPrompt, formatTime(utcNow()))
		if isUniqueConstraintError(err) {
			return fmt.Errorf("slug %q: %w", topic.Slug, storage.ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("failed to create topic %q: %w", topic.Slug, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		for _, m := range members {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO wiki_topic_members (topic_id, document_id, relevance_score, is_primary)
				VALUES (?, ?, ?, ?)`, id, m.DocumentID, m.Relevance, boolInt(m.IsPrimary)); err != nil {
				return fmt.Errorf("failed to add member %d: %w", m.DocumentID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// DeleteTopic removes a topic; members and its article cascade away.
func (s *Store) DeleteTopic(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM wiki_topics WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete topic %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("topic %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

// SetTopicMember upserts one membership row (weight / exclusion edits).
func (s *Store) SetTopicMember(ctx context.Context, m types.WikiTopicMember) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wiki_topic_members (topic_id, document_id, relevance_score, is_primary)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (topic_id, document_id)
		DO UPDATE SET relevance_score = excluded.relevance_score, is_primary = excluded.is_primary`,
		m.TopicID, m.DocumentID, m.Relevance, boolInt(m.IsPrimary))
	if err != nil {
		return fmt.Errorf("failed to set member %d of topic %d: %w", m.DocumentID, m.TopicID, err)
	}
	return nil
}

// MoveTopicMembers reassigns documents from one topic to another (merge and
// split). Documents already in the destination keep their existing row.
func (s *Store) MoveTopicMembers(ctx context.Context, fromTopic, toTopic int64, docIDs []int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, docID := range docIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO wiki_topic_members (topic_id, document_id, relevance_score, is_primary)
				SELECT ?, document_id, relevance_score, is_primary
				FROM wiki_topic_members WHERE topic_id = ? AND document_id = ?`,
				toTopic, fromTopic, docID); err != nil {
				return fmt.Errorf("failed to move member %d: %w", docID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM wiki_topic_members WHERE topic_id = ? AND document_id = ?`,
				fromTopic, docID); err != nil {
				return err
			}
		}
		return nil
	})
}

const articleColumns = `id, topic_id, document_id, source_hash, model, input_tokens, output_tokens,
	cost_usd, version, is_stale, stale_reason, COALESCE(previous_content, ''), rating, rated_at,
	prepare_ms, route_ms, outline_ms, write_ms, validate_ms, save_ms, created_at, updated_at`

func scanArticle(row interface{ Scan(...any) error }) (*types.WikiArticle, error) {
	var a types.WikiArticle
	var isStale int
	var rating sql.NullInt64
	var ratedAt, createdAt, updatedAt sql.NullString
	err := row.Scan(&a.ID, &a.TopicID, &a.DocumentID, &a.SourceHash, &a.Model,
		&a.InputTokens, &a.OutputTokens, &a.CostUSD, &a.Version, &isStale, &a.StaleReason,
		&a.PreviousContent, &rating, &ratedAt,
		&a.Timing.PrepareMS, &a.Timing.RouteMS, &a.Timing.OutlineMS,
		&a.Timing.WriteMS, &a.Timing.ValidateMS, &a.Timing.SaveMS,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.IsStale = isStale != 0
	if rating.Valid {
		r := int(rating.Int64)
		a.Rating = &r
	}
	a.RatedAt = parseTimePtr(ratedAt)
	a.CreatedAt = parseTime(createdAt.String)
	a.UpdatedAt = parseTime(updatedAt.String)
	return &a, nil
}

// GetArticleByTopic returns the article row for a topic, or nil.
func (s *Store) GetArticleByTopic(ctx context.Context, topicID int64) (*types.WikiArticle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM wiki_articles WHERE topic_id = ?`, topicID)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article for topic %d: %w", topicID, err)
	}
	return a, nil
}

// InsertArticle writes a new article row plus its provenance in one
// transaction.
func (s *Store) InsertArticle(ctx context.Context, a *types.WikiArticle, sources []types.WikiArticleSource) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(utcNow())
		res, err := tx.ExecContext(ctx, `
			INSERT INTO wiki_articles (topic_id, document_id, source_hash, model,
				input_tokens, output_tokens, cost_usd, version, is_stale, stale_reason,
				prepare_ms, route_ms, outline_ms, write_ms, validate_ms, save_ms,
				created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1, 0, '', ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.TopicID, a.DocumentID, a.SourceHash, a.Model,
			a.InputTokens, a.OutputTokens, a.CostUSD,
			a.Timing.PrepareMS, a.Timing.RouteMS, a.Timing.OutlineMS,
			a.Timing.WriteMS, a.Timing.ValidateMS, a.Timing.SaveMS,
			now, now)
		if err != nil {
			return fmt.Errorf("failed to insert article for topic %d: %w", a.TopicID, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		return replaceSourcesTx(ctx, tx, id, sources)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateArticle regenerates an existing article atomically: the attached
// document's content is replaced, the prior content is stashed into
// previous_content, the version increments, staleness resets, and the
// provenance rows are rewritten.
func (s *Store) UpdateArticle(ctx context.Context, a *types.WikiArticle, newContent string, sources []types.WikiArticleSource) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var oldContent string
		err := tx.QueryRowContext(ctx,
			`SELECT content FROM documents WHERE id = ?`, a.DocumentID).Scan(&oldContent)
		if err != nil {
			return fmt.Errorf("failed to read prior article content: %w", err)
		}

		now := formatTime(utcNow())
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET content = ?, updated_at = ? WHERE id = ?`,
			newContent, now, a.DocumentID); err != nil {
			return fmt.Errorf("failed to update article document: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE wiki_articles SET source_hash = ?, model = ?, input_tokens = ?,
				output_tokens = ?, cost_usd = ?, version = version + 1, is_stale = 0,
				stale_reason = '', previous_content = ?,
				prepare_ms = ?, route_ms = ?, outline_ms = ?, write_ms = ?, validate_ms = ?, save_ms = ?,
				updated_at = ?
			WHERE id = ?`,
			a.SourceHash, a.Model, a.InputTokens, a.OutputTokens, a.CostUSD, oldContent,
			a.Timing.PrepareMS, a.Timing.RouteMS, a.Timing.OutlineMS,
			a.Timing.WriteMS, a.Timing.ValidateMS, a.Timing.SaveMS,
			now, a.ID); err != nil {
			return fmt.Errorf("failed to update article %d: %w", a.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM wiki_article_sources WHERE article_id = ?`, a.ID); err != nil {
			return err
		}
		return replaceSourcesTx(ctx, tx, a.ID, sources)
	})
}

func replaceSourcesTx(ctx context.Context, tx *sql.Tx, articleID int64, sources []types.WikiArticleSource) error {
	for _, src := range sources {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO wiki_article_sources (article_id, document_id, content_hash)
			VALUES (?, ?, ?)`, articleID, src.DocumentID, src.ContentHash); err != nil {
			return fmt.Errorf("failed to insert article source %d: %w", src.DocumentID, err)
		}
	}
	return nil
}

// GetArticleSources returns the provenance rows for an article.
func (s *Store) GetArticleSources(ctx context.Context, articleID int64) ([]types.WikiArticleSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT article_id, document_id, content_hash
		FROM wiki_article_sources WHERE article_id = ? ORDER BY document_id`, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources for article %d: %w", articleID, err)
	}
	defer func() { _ = rows.Close() }()

	sources := []types.WikiArticleSource{}
	for rows.Next() {
		var src types.WikiArticleSource
		if err := rows.Scan(&src.ArticleID, &src.DocumentID, &src.ContentHash); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// DeleteArticle removes the article row; provenance cascades.
func (s *Store) DeleteArticle(ctx context.Context, articleID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wiki_articles WHERE id = ?`, articleID)
	if err != nil {
		return fmt.Errorf("failed to delete article %d: %w", articleID, err)
	}
	return nil
}

// MarkArticlesStale flags every article that used the document as a source.
// Called whenever a document is saved or updated so the next generation run
// regenerates dependents.
func (s *Store) MarkArticlesStale(ctx context.Context, docID int64, reason string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE wiki_articles SET is_stale = 1, stale_reason = ?, updated_at = ?
		WHERE id IN (SELECT article_id FROM wiki_article_sources WHERE document_id = ?)
		AND is_stale = 0`,
		reason, formatTime(utcNow()), docID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark articles stale for doc %d: %w", docID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// MarkTopicStale flags one topic's article (merge/split bookkeeping).
func (s *Store) MarkTopicStale(ctx context.Context, topicID int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE wiki_articles SET is_stale = 1, stale_reason = ?, updated_at = ?
		WHERE topic_id = ?`,
		reason, formatTime(utcNow()), topicID)
	if err != nil {
		return fmt.Errorf("failed to mark topic %d stale: %w", topicID, err)
	}
	return nil
}

// RateArticle records a 1-5 star rating with its timestamp.
func (s *Store) RateArticle(ctx context.Context, topicID int64, rating int, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE wiki_articles SET rating = ?, rated_at = ? WHERE topic_id = ?`,
		rating, formatTime(at), topicID)
	if err != nil {
		return fmt.Errorf("failed to rate article for topic %d: %w", topicID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("article for topic %d: %w", topicID, storage.ErrNotFound)
	}
	return nil
}

// CreateWikiRun opens a batch-generation record.
func (s *Store) CreateWikiRun(ctx context.Context, model string, dryRun bool) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO wiki_runs (model, dry_run, started_at) VALUES (?, ?, ?)`,
		model, boolInt(dryRun), formatTime(utcNow()))
	if err != nil {
		return 0, fmt.Errorf("failed to create wiki run: %w", err)
	}
	return res.LastInsertId()
}

// CompleteWikiRun persists the batch summary.
func (s *Store) CompleteWikiRun(ctx context.Context, run *types.WikiRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE wiki_runs SET completed_at = ?, attempted = ?, generated = ?, skipped = ?,
			input_tokens = ?, output_tokens = ?, cost_usd = ?
		WHERE id = ?`,
		formatTime(utcNow()), run.Attempted, run.Generated, run.Skipped,
		run.InputTokens, run.OutputTokens, run.CostUSD, run.ID)
	if err != nil {
		return fmt.Errorf("failed to complete wiki run %d: %w", run.ID, err)
	}
	return nil
}

// ListWikiRuns returns recent runs, newest first.
func (s *Store) ListWikiRuns(ctx context.Context, limit int) ([]types.WikiRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model, dry_run, started_at, completed_at, attempted, generated, skipped,
			input_tokens, output_tokens, cost_usd
		FROM wiki_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list wiki runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := []types.WikiRun{}
	for rows.Next() {
		var r types.WikiRun
		var dryRun int
		var startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&r.ID, &r.Model, &dryRun, &startedAt, &completedAt,
			&r.Attempted, &r.Generated, &r.Skipped,
			&r.InputTokens, &r.OutputTokens, &r.CostUSD); err != nil {
			return nil, err
		}
		r.DryRun = dryRun != 0
		r.StartedAt = parseTime(startedAt)
		r.CompletedAt = parseTimePtr(completedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
