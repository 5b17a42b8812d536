package wiki

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/untoldecay/DocLoom/internal/cluster"
	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/types"
)

// ErrBadInput flags out-of-range weights, ratings, and similar caller
// mistakes.
var ErrBadInput = fmt.Errorf("bad input")

func (e *Engine) getTopic(ctx context.Context, topicID int64) (*types.WikiTopic, error) {
	topic, err := e.store.GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if topic == nil {
		return nil, fmt.Errorf("topic %d: %w", topicID, storage.ErrNotFound)
	}
	return topic, nil
}

// SetStatus moves a topic between active, skipped, and pinned.
func (e *Engine) SetStatus(ctx context.Context, topicID int64, status types.TopicStatus) error {
	topic, err := e.getTopic(ctx, topicID)
	if err != nil {
		return err
	}
	topic.Status = status
	return e.store.UpdateTopic(ctx, topic)
}

// SetModelOverride sets or clears (empty string) the per-topic model.
func (e *Engine) SetModelOverride(ctx context.Context, topicID int64, model string) error {
	topic, err := e.getTopic(ctx, topicID)
	if err != nil {
		return err
	}
	topic.ModelOverride = model
	return e.store.UpdateTopic(ctx, topic)
}

// SetEditorialPrompt sets or clears (empty string) the topic's editorial
// guidance appended to the synthesis prompt.
func (e *Engine) SetEditorialPrompt(ctx context.Context, topicID int64, prompt string) error {
	topic, err := e.getTopic(ctx, topicID)
	if err != nil {
		return err
	}
	topic.EditorialPrompt = prompt
	return e.store.UpdateTopic(ctx, topic)
}

// Rate stores a 1-5 star rating on the topic's article.
func (e *Engine) Rate(ctx context.Context, topicID int64, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be 1-5, got %d", ErrBadInput, rating)
	}
	return e.store.RateArticle(ctx, topicID, rating, time.Now().UTC())
}

// Rename updates a topic's label and slug (uniqueness-checked) and the
// attached article document's title.
func (e *Engine) Rename(ctx context.Context, topicID int64, newLabel string) error {
	topic, err := e.getTopic(ctx, topicID)
	if err != nil {
		return err
	}
	slug := cluster.Slugify(newLabel)
	if slug == "" {
		return fmt.Errorf("%w: label %q produces an empty slug", ErrBadInput, newLabel)
	}
	if other, err := e.store.GetTopicBySlug(ctx, slug); err != nil {
		return err
	} else if other != nil && other.ID != topicID {
		return fmt.Errorf("slug %q already belongs to topic %d: %w", slug, other.ID, storage.ErrDuplicate)
	}

	topic.Label = newLabel
	topic.Slug = slug
	if err := e.store.UpdateTopic(ctx, topic); err != nil {
		return err
	}
	if article, err := e.store.GetArticleByTopic(ctx, topicID); err != nil {
		return err
	} else if article != nil {
		if _, err := e.store.UpdateDocumentTitle(ctx, article.DocumentID, newLabel); err != nil {
			return err
		}
	}
	return nil
}

// RetitleAll sweeps every active topic and adopts its article's H1 as the
// topic label where the slug is free. Returns the number retitled.
func (e *Engine) RetitleAll(ctx context.Context) (int, error) {
	topics, err := e.store.GetTopics(ctx)
	if err != nil {
		return 0, err
	}
	retitled := 0
	for i := range topics {
		topic := &topics[i]
		if topic.Status == types.TopicSkipped {
			continue
		}
		article, err := e.store.GetArticleByTopic(ctx, topic.ID)
		if err != nil {
			return retitled, err
		}
		if article == nil {
			continue
		}
		doc, err := e.store.GetDocument(ctx, article.DocumentID)
		if err != nil {
			return retitled, err
		}
		if doc == nil {
			continue
		}
		before := topic.Label
		if err := e.retitle(ctx, topic, article.DocumentID, doc.Content); err != nil {
			return retitled, err
		}
		if topic.Label != before {
			retitled++
		}
	}
	return retitled, nil
}

// Merge moves the loser topic's members into the winner, concatenates the
// labels, deletes the loser (and its article), and marks the winner stale
// so the next run regenerates it over the combined sources.
func (e *Engine) Merge(ctx context.Context, winnerID, loserID int64) error {
	if winnerID == loserID {
		return fmt.Errorf("%w: cannot merge a topic into itself", ErrBadInput)
	}
	winner, err := e.getTopic(ctx, winnerID)
	if err != nil {
		return err
	}
	loser, err := e.getTopic(ctx, loserID)
	if err != nil {
		return err
	}

	members, err := e.store.GetTopicMembers(ctx, loserID)
	if err != nil {
		return err
	}
	docIDs := make([]int64, 0, len(members))
	for _, m := range members {
		docIDs = append(docIDs, m.DocumentID)
	}
	if err := e.store.MoveTopicMembers(ctx, loserID, winnerID, docIDs); err != nil {
		return err
	}

	if article, err := e.store.GetArticleByTopic(ctx, loserID); err != nil {
		return err
	} else if article != nil {
		if err := e.store.DeleteArticle(ctx, article.ID); err != nil {
			return err
		}
		// The loser's rendered document is superseded, not user content.
		if _, err := e.store.DeleteDocument(ctx, article.DocumentID, false); err != nil {
			return err
		}
	}
	if err := e.store.DeleteTopic(ctx, loserID); err != nil {
		return err
	}

	winner.Label = winner.Label + " & " + loser.Label
	winner.Slug = cluster.Slugify(winner.Label)
	if err := e.store.UpdateTopic(ctx, winner); err != nil {
		return err
	}
	return e.store.MarkTopicStale(ctx, winnerID, fmt.Sprintf("merged with topic %q", loser.Label))
}

// Split moves the members of a topic whose documents mention term into a
// new topic labeled newLabel, and marks the original stale. Returns the new
// topic id and how many members moved.
func (e *Engine) Split(ctx context.Context, topicID int64, term, newLabel string) (int64, int, error) {
	if strings.TrimSpace(term) == "" {
		return 0, 0, fmt.Errorf("%w: split term is required", ErrBadInput)
	}
	topic, err := e.getTopic(ctx, topicID)
	if err != nil {
		return 0, 0, err
	}
	if newLabel == "" {
		newLabel = term
	}
	slug := cluster.Slugify(newLabel)
	if other, err := e.store.GetTopicBySlug(ctx, slug); err != nil {
		return 0, 0, err
	} else if other != nil {
		return 0, 0, fmt.Errorf("slug %q already belongs to topic %d: %w", slug, other.ID, storage.ErrDuplicate)
	}

	members, err := e.store.GetTopicMembers(ctx, topicID)
	if err != nil {
		return 0, 0, err
	}
	needle := strings.ToLower(term)
	var moving []types.WikiTopicMember
	for _, m := range members {
		doc, err := e.store.GetDocument(ctx, m.DocumentID)
		if err != nil {
			return 0, 0, err
		}
		if doc == nil {
			continue
		}
		if strings.Contains(strings.ToLower(doc.Title), needle) ||
			strings.Contains(strings.ToLower(doc.Content), needle) {
			moving = append(moving, m)
		}
	}
	if len(moving) == 0 {
		return 0, 0, fmt.Errorf("no members of topic %d mention %q: %w", topicID, term, storage.ErrNotFound)
	}
	if len(moving) == len(members) {
		return 0, 0, fmt.Errorf("%w: every member mentions %q; nothing would remain", ErrBadInput, term)
	}

	newTopic := &types.WikiTopic{
		Slug:      slug,
		Label:     newLabel,
		Status:    types.TopicActive,
		Coherence: topic.Coherence,
	}
	newMembers := make([]types.WikiTopicMember, len(moving))
	docIDs := make([]int64, len(moving))
	for i, m := range moving {
		newMembers[i] = m
		docIDs[i] = m.DocumentID
	}
	newID, err := e.store.CreateTopic(ctx, newTopic, nil)
	if err != nil {
		return 0, 0, err
	}
	if err := e.store.MoveTopicMembers(ctx, topicID, newID, docIDs); err != nil {
		return 0, 0, err
	}
	if err := e.store.MarkTopicStale(ctx, topicID, fmt.Sprintf("split off topic %q", newLabel)); err != nil {
		return 0, 0, err
	}
	return newID, len(moving), nil
}

// SetMemberWeight adjusts a member's relevance score, which scales its
// content budget during PREPARE.
func (e *Engine) SetMemberWeight(ctx context.Context, topicID, docID int64, weight float64) error {
	if weight < 0 || weight > 1 {
		return fmt.Errorf("%w: weight must be in [0,1], got %g", ErrBadInput, weight)
	}
	m, err := e.findMember(ctx, topicID, docID)
	if err != nil {
		return err
	}
	m.Relevance = weight
	return e.store.SetTopicMember(ctx, *m)
}

// SetMemberIncluded excludes (false) or re-includes (true) a member from
// synthesis while keeping the membership recorded.
func (e *Engine) SetMemberIncluded(ctx context.Context, topicID, docID int64, included bool) error {
	m, err := e.findMember(ctx, topicID, docID)
	if err != nil {
		return err
	}
	m.IsPrimary = included
	return e.store.SetTopicMember(ctx, *m)
}

func (e *Engine) findMember(ctx context.Context, topicID, docID int64) (*types.WikiTopicMember, error) {
	members, err := e.store.GetTopicMembers(ctx, topicID)
	if err != nil {
		return nil, err
	}
	for i := range members {
		if members[i].DocumentID == docID {
			return &members[i], nil
		}
	}
	return nil, fmt.Errorf("document %d is not a member of topic %d: %w", docID, topicID, storage.ErrNotFound)
}

// SourceInfo is one topic member with its document title, for the sources
// listing.
type SourceInfo struct {
	DocumentID int64   `json:"document_id"`
	Title      string  `json:"title"`
	Relevance  float64 `json:"relevance_score"`
	Included   bool    `json:"included"`
}

// Sources lists a topic's members with weights and inclusion flags.
func (e *Engine) Sources(ctx context.Context, topicID int64) ([]SourceInfo, error) {
	if _, err := e.getTopic(ctx, topicID); err != nil {
		return nil, err
	}
	members, err := e.store.GetTopicMembers(ctx, topicID)
	if err != nil {
		return nil, err
	}
	infos := make([]SourceInfo, 0, len(members))
	for _, m := range members {
		info := SourceInfo{DocumentID: m.DocumentID, Relevance: m.Relevance, Included: m.IsPrimary}
		if doc, err := e.store.GetDocument(ctx, m.DocumentID); err == nil && doc != nil {
			info.Title = doc.Title
		}
		infos = append(infos, info)
	}
	return infos, nil
}
