package wiki

import (
	"context"
	"sort"

	"github.com/untoldecay/DocLoom/internal/types"
)

// Status summarizes the wiki's state for the status command.
type Status struct {
	Topics    int `json:"topics"`
	Active    int `json:"active"`
	Skipped   int `json:"skipped"`
	Pinned    int `json:"pinned"`
	Articles  int `json:"articles"`
	Stale     int `json:"stale"`
	Unwritten int `json:"unwritten"` // active topics with no article yet
	Rated     int `json:"rated"`
}

// GetStatus counts topics and articles by state.
func (e *Engine) GetStatus(ctx context.Context) (*Status, error) {
	topics, err := e.store.GetTopics(ctx)
	if err != nil {
		return nil, err
	}
	s := &Status{Topics: len(topics)}
	for _, t := range topics {
		switch t.Status {
		case types.TopicSkipped:
			s.Skipped++
			continue
		case types.TopicPinned:
			s.Pinned++
			s.Active++
		default:
			s.Active++
		}
		article, err := e.store.GetArticleByTopic(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if article == nil {
			s.Unwritten++
			continue
		}
		s.Articles++
		if article.IsStale {
			s.Stale++
		}
		if article.Rating != nil {
			s.Rated++
		}
	}
	return s, nil
}

// TopicCoverage is the per-topic slice of a coverage report.
type TopicCoverage struct {
	TopicID int64  `json:"topic_id"`
	Label   string `json:"label"`
	Docs    int    `json:"docs"`
}

// Coverage reports what fraction of live user documents belong to a topic.
type Coverage struct {
	TotalDocs   int             `json:"total_docs"`
	CoveredDocs int             `json:"covered_docs"`
	Percent     float64         `json:"percent"`
	Topics      []TopicCoverage `json:"topics"`
}

// GetCoverage computes topic coverage over non-deleted user documents.
func (e *Engine) GetCoverage(ctx context.Context) (*Coverage, error) {
	docs, err := e.store.ListDocuments(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	userDocs := map[int64]bool{}
	for _, d := range docs {
		if d.Kind == types.KindUser {
			userDocs[d.ID] = true
		}
	}

	topics, err := e.store.GetTopics(ctx)
	if err != nil {
		return nil, err
	}
	cov := &Coverage{TotalDocs: len(userDocs)}
	covered := map[int64]bool{}
	for _, t := range topics {
		ids, err := e.store.GetTopicDocs(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		count := 0
		for _, id := range ids {
			if userDocs[id] {
				count++
				covered[id] = true
			}
		}
		cov.Topics = append(cov.Topics, TopicCoverage{TopicID: t.ID, Label: t.Label, Docs: count})
	}
	cov.CoveredDocs = len(covered)
	if cov.TotalDocs > 0 {
		cov.Percent = 100 * float64(cov.CoveredDocs) / float64(cov.TotalDocs)
	}
	return cov, nil
}

// TriageItem orders topics by generation priority.
type TriageItem struct {
	TopicID    int64   `json:"topic_id"`
	Label      string  `json:"label"`
	Members    int     `json:"members"`
	Coherence  float64 `json:"coherence_score"`
	HasArticle bool    `json:"has_article"`
	IsStale    bool    `json:"is_stale"`
	Reason     string  `json:"reason"`
}

// Triage lists active topics most in need of generation: stale articles
// first, then never-generated topics, then the rest by coherence.
func (e *Engine) Triage(ctx context.Context) ([]TriageItem, error) {
	topics, err := e.store.GetTopics(ctx)
	if err != nil {
		return nil, err
	}
	var items []TriageItem
	for _, t := range topics {
		if t.Status == types.TopicSkipped {
			continue
		}
		item := TriageItem{TopicID: t.ID, Label: t.Label, Members: t.MemberCount, Coherence: t.Coherence}
		article, err := e.store.GetArticleByTopic(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		switch {
		case article == nil:
			item.Reason = "never generated"
		case article.IsStale:
			item.HasArticle = true
			item.IsStale = true
			item.Reason = article.StaleReason
		default:
			item.HasArticle = true
			item.Reason = "up to date"
		}
		items = append(items, item)
	}
	rank := func(it TriageItem) int {
		switch {
		case it.IsStale:
			return 0
		case !it.HasArticle:
			return 1
		}
		return 2
	}
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := rank(items[i]), rank(items[j])
		if ri != rj {
			return ri < rj
		}
		return items[i].Coherence > items[j].Coherence
	})
	return items, nil
}
