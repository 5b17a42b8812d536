// Package glossary scores extracted entities for page-worthiness and
// builds tiered index entries with context snippets and PMI-related terms.
package glossary

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/untoldecay/DocLoom/internal/storage"
)

// Tier buckets entities by how much page they earn.
type Tier string

const (
	TierA Tier = "A" // full page
	TierB Tier = "B" // stub
	TierC Tier = "C" // alphabetic index only
)

const (
	tierAMinDF    = 5
	tierAMinScore = 30.0
	tierBMinDF    = 3
	tierCMinDF    = 2

	snippetWindow    = 250
	snippetDedupeLen = 80
	maxRelated       = 10
)

// Snippet is one in-context mention of an entity.
type Snippet struct {
	DocumentID int64  `json:"document_id"`
	DocTitle   string `json:"doc_title"`
	Heading    string `json:"heading,omitempty"`
	Text       string `json:"text"`
}

// Related is a PMI-scored co-occurring entity.
type Related struct {
	Entity string  `json:"entity"`
	PMI    float64 `json:"pmi"`
	CoDocs int     `json:"co_docs"`
}

// Entry is one glossary entity with everything needed to render its page.
type Entry struct {
	Entity    string    `json:"entity"`
	Type      string    `json:"entity_type"`
	Tier      Tier      `json:"tier"`
	DocFreq   int       `json:"doc_frequency"`
	Score     float64   `json:"score"`
	DocIDs    []int64   `json:"doc_ids"`
	Snippets  []Snippet `json:"snippets,omitempty"`
	RelatedTo []Related `json:"related,omitempty"`
}

// Index is the full tiered glossary.
type Index struct {
	TotalDocs int     `json:"total_docs"`
	Entries   []Entry `json:"entries"`
}

func typeWeight(entityType string) float64 {
	switch entityType {
	case "proper_noun":
		return 1.0
	case "tech_term":
		return 0.9
	case "concept":
		return 0.8
	case "heading":
		return 0.7
	}
	return 0.5
}

type entityStats struct {
	docs     map[int64]bool
	confSum  float64
	confN    int
	bestType string
}

// Build scores every stored entity and assigns tiers. Entities mentioned
// in fewer than two documents are noise and excluded.
func Build(ctx context.Context, store storage.Storage) (*Index, error) {
	all, err := store.GetAllEntities(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := store.ListDocuments(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	totalDocs := len(docs)

	stats := make(map[string]*entityStats)
	for _, e := range all {
		s, ok := stats[e.Entity]
		if !ok {
			s = &entityStats{docs: make(map[int64]bool)}
			stats[e.Entity] = s
		}
		s.docs[e.DocumentID] = true
		s.confSum += e.Confidence
		s.confN++
		if s.bestType == "" || typeWeight(e.Type) > typeWeight(s.bestType) {
			s.bestType = e.Type
		}
	}

	idx := &Index{TotalDocs: totalDocs}
	for name, s := range stats {
		df := len(s.docs)
		if df < tierCMinDF {
			continue
		}
		idf := math.Log(1 + float64(totalDocs)/float64(df))
		meanConf := s.confSum / float64(s.confN)
		score := float64(df) * idf * meanConf * typeWeight(s.bestType)

		tier := TierC
		switch {
		case df >= tierAMinDF && score >= tierAMinScore:
			tier = TierA
		case df >= tierBMinDF:
			tier = TierB
		}

		ids := make([]int64, 0, df)
		for id := range s.docs {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		idx.Entries = append(idx.Entries, Entry{
			Entity:  name,
			Type:    s.bestType,
			Tier:    tier,
			DocFreq: df,
			Score:   score,
			DocIDs:  ids,
		})
	}

	sort.Slice(idx.Entries, func(i, j int) bool {
		if idx.Entries[i].Score != idx.Entries[j].Score {
			return idx.Entries[i].Score > idx.Entries[j].Score
		}
		return idx.Entries[i].Entity < idx.Entries[j].Entity
	})

	// Related entities via PMI over document co-occurrence.
	attachRelated(idx, stats, totalDocs)
	return idx, nil
}

// attachRelated computes PMI = log2(N * co / (df_a * df_b)) for pairs that
// co-occur in at least two documents, keeping positive scores only.
func attachRelated(idx *Index, stats map[string]*entityStats, totalDocs int) {
	if totalDocs == 0 {
		return
	}
	for i := range idx.Entries {
		entry := &idx.Entries[i]
		a := stats[entry.Entity]
		var related []Related
		for _, other := range idx.Entries {
			if other.Entity == entry.Entity {
				continue
			}
			b := stats[other.Entity]
			co := 0
			for id := range a.docs {
				if b.docs[id] {
					co++
				}
			}
			if co < 2 {
				continue
			}
			pmi := math.Log2(float64(totalDocs) * float64(co) / (float64(len(a.docs)) * float64(len(b.docs))))
			if pmi <= 0 {
				continue
			}
			related = append(related, Related{Entity: other.Entity, PMI: pmi, CoDocs: co})
		}
		sort.Slice(related, func(x, y int) bool {
			if related[x].PMI != related[y].PMI {
				return related[x].PMI > related[y].PMI
			}
			return related[x].Entity < related[y].Entity
		})
		if len(related) > maxRelated {
			related = related[:maxRelated]
		}
		entry.RelatedTo = related
	}
}

// GatherSnippets collects one in-context mention per document for an
// entry, deduplicated by the lowercased first 80 characters.
func GatherSnippets(ctx context.Context, store storage.Storage, entry *Entry) error {
	seen := make(map[string]bool)
	for _, id := range entry.DocIDs {
		doc, err := store.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			continue
		}
		text, heading := snippetFor(doc.Content, entry.Entity)
		if text == "" {
			continue
		}
		key := strings.ToLower(text)
		if len(key) > snippetDedupeLen {
			key = key[:snippetDedupeLen]
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		entry.Snippets = append(entry.Snippets, Snippet{
			DocumentID: doc.ID,
			DocTitle:   doc.Title,
			Heading:    heading,
			Text:       text,
		})
	}
	return nil
}

// snippetFor centers a ~250-char window on the first mention and records
// the nearest heading above it.
func snippetFor(content, entity string) (string, string) {
	lower := strings.ToLower(content)
	pos := strings.Index(lower, strings.ToLower(entity))
	if pos < 0 {
		return "", ""
	}

	start := pos - snippetWindow/2
	if start < 0 {
		start = 0
	}
	end := pos + len(entity) + snippetWindow/2
	if end > len(content) {
		end = len(content)
	}
	text := strings.TrimSpace(content[start:end])
	text = strings.ReplaceAll(text, "\n", " ")
	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}

	heading := ""
	for _, line := range strings.Split(content[:pos], "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			heading = strings.TrimSpace(strings.TrimLeft(trimmed, "# "))
		}
	}
	return text, heading
}
