// Package analyze produces read-only reports over the corpus: per-document
// freshness scores, drift in task structures, and coverage gaps.
package analyze

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/DocLoom/internal/storage"
)

// Signal weights sum to 1.0.
const (
	weightAgeDecay      = 0.30
	weightViewRecency   = 0.25
	weightLinkHealth    = 0.15
	weightContentLength = 0.10
	weightTagSignal     = 0.20

	ageHalfLifeDays  = 30.0
	viewHalfLifeDays = 14.0

	// DefaultStaleThreshold marks documents stale below this score.
	DefaultStaleThreshold = 0.3

	// missingTimestampDays stands in for unparseable or absent timestamps.
	missingTimestampDays = 365.0
)

// DocFreshnessScore is one document's combined score with all five signals.
type DocFreshnessScore struct {
	DocumentID    int64   `json:"document_id"`
	Title         string  `json:"title"`
	Score         float64 `json:"score"`
	AgeDecay      float64 `json:"age_decay"`
	ViewRecency   float64 `json:"view_recency"`
	LinkHealth    float64 `json:"link_health"`
	ContentLength float64 `json:"content_length"`
	TagSignal     float64 `json:"tag_signal"`
}

// FreshnessReport covers the whole corpus, sorted stalest first.
type FreshnessReport struct {
	TotalDocs  int                 `json:"total_docs"`
	ScoredDocs int                 `json:"scored_docs"`
	StaleCount int                 `json:"stale_count"`
	Threshold  float64             `json:"threshold"`
	Docs       []DocFreshnessScore `json:"docs"`
}

// FreshnessOptions tunes the report.
type FreshnessOptions struct {
	Threshold float64 // default DefaultStaleThreshold
	StaleOnly bool
	Now       time.Time // zero = time.Now()
}

func halfLifeDecay(days, halfLife float64) float64 {
	if days < 0 {
		days = 0
	}
	return math.Exp(-math.Ln2 * days / halfLife)
}

func daysSince(t time.Time, now time.Time) float64 {
	if t.IsZero() {
		return missingTimestampDays
	}
	return now.Sub(t).Hours() / 24
}

func contentLengthSignal(content string) float64 {
	n := len(strings.TrimSpace(content))
	if n == 0 {
		return 0
	}
	if n >= 100 {
		return 1
	}
	return float64(n) / 100
}

func tagSignal(tags []string) float64 {
	score := 0.5
	for _, tag := range tags {
		switch strings.ToLower(tag) {
		case "active":
			score += 0.2
		case "security", "gameplan", "reference":
			score += 0.1
		case "done":
			score -= 0.3
		case "failed":
			score -= 0.2
		case "archived":
			score -= 0.4
		}
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Freshness scores every non-deleted document.
func Freshness(ctx context.Context, store storage.Storage, opts FreshnessOptions) (*FreshnessReport, error) {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	items, err := store.ListDocuments(ctx, "", 0)
	if err != nil {
		return nil, err
	}

	report := &FreshnessReport{TotalDocs: len(items), Threshold: threshold}
	for _, item := range items {
		doc, err := store.GetDocument(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}

		s := DocFreshnessScore{DocumentID: doc.ID, Title: doc.Title}
		s.AgeDecay = halfLifeDecay(daysSince(doc.CreatedAt, now), ageHalfLifeDays)

		viewedAt := doc.UpdatedAt
		if doc.AccessedAt != nil && doc.AccessedAt.After(viewedAt) {
			viewedAt = *doc.AccessedAt
		}
		s.ViewRecency = halfLifeDecay(daysSince(viewedAt, now), viewHalfLifeDays)

		total, err := store.GetLinkCount(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		if total == 0 {
			s.LinkHealth = 1.0
		} else {
			live, err := store.GetLinkedDocIDs(ctx, doc.ID)
			if err != nil {
				return nil, err
			}
			s.LinkHealth = float64(len(live)) / float64(total)
		}

		s.ContentLength = contentLengthSignal(doc.Content)

		tags, err := store.GetTags(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		s.TagSignal = tagSignal(tags)

		s.Score = weightAgeDecay*s.AgeDecay +
			weightViewRecency*s.ViewRecency +
			weightLinkHealth*s.LinkHealth +
			weightContentLength*s.ContentLength +
			weightTagSignal*s.TagSignal

		report.ScoredDocs++
		if s.Score < threshold {
			report.StaleCount++
		}
		if opts.StaleOnly && s.Score >= threshold {
			continue
		}
		report.Docs = append(report.Docs, s)
	}

	sort.Slice(report.Docs, func(i, j int) bool {
		if report.Docs[i].Score != report.Docs[j].Score {
			return report.Docs[i].Score < report.Docs[j].Score
		}
		return report.Docs[i].DocumentID < report.Docs[j].DocumentID
	})
	return report, nil
}

// Human renders the report as a terminal summary.
func (r *FreshnessReport) Human() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Freshness: %d/%d docs scored, %d stale (threshold %.2f)\n",
		r.ScoredDocs, r.TotalDocs, r.StaleCount, r.Threshold)
	for _, d := range r.Docs {
		marker := " "
		if d.Score < r.Threshold {
			marker = "!"
		}
		fmt.Fprintf(&b, "%s %.3f  #%-4d %s\n", marker, d.Score, d.DocumentID, d.Title)
	}
	return b.String()
}
