package wikify

import (
	"context"
	"fmt"
	"sort"

	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/types"
)

const (
	// MaxEntityLinks caps new entity-match links per document per run.
	MaxEntityLinks = 15
	// minSharedEntities is the floor below which co-occurrence is noise.
	minSharedEntities = 2
)

// EntityResult summarizes one entity-match linking run.
type EntityResult struct {
	DocumentID      int64 `json:"document_id"`
	LinksCreated    int   `json:"links_created"`
	CandidatesSeen  int   `json:"candidates_seen"`
	ExistingSkipped int   `json:"existing_skipped"`
}

// LinkByEntities links docID to other documents sharing at least
// minSharedEntities extracted entities. Scores scale with the shared count
// relative to the strongest candidate in this batch, landing in (0.5, 1.0].
func LinkByEntities(ctx context.Context, store storage.Storage, docID int64, sameProjectOnly bool) (*EntityResult, error) {
	doc, err := store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %d: %w", docID, storage.ErrNotFound)
	}

	entities, err := store.GetEntities(ctx, docID)
	if err != nil {
		return nil, err
	}

	project := ""
	if sameProjectOnly {
		project = doc.Project
	}

	shared := make(map[int64]int)
	for _, e := range entities {
		ids, err := store.FindDocsWithEntity(ctx, e.Entity, project)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if id != docID {
				shared[id]++
			}
		}
	}

	result := &EntityResult{DocumentID: docID, CandidatesSeen: len(shared)}

	type scored struct {
		id    int64
		count int
	}
	var candidates []scored
	maxShared := 0
	for id, count := range shared {
		if count < minSharedEntities {
			continue
		}
		candidates = append(candidates, scored{id, count})
		if count > maxShared {
			maxShared = count
		}
	}
	if len(candidates) == 0 {
		return result, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].id < candidates[j].id
	})

	var links []types.Link
	for _, c := range candidates {
		if len(links) >= MaxEntityLinks {
			break
		}
		exists, err := store.LinkExists(ctx, docID, c.id)
		if err != nil {
			return nil, err
		}
		if exists {
			result.ExistingSkipped++
			continue
		}
		links = append(links, types.Link{
			SourceID: docID,
			TargetID: c.id,
			Score:    0.5 + 0.5*(float64(c.count)/float64(maxShared)),
			Method:   types.MethodEntityMatch,
		})
	}

	if len(links) > 0 {
		n, err := store.CreateLinksBatch(ctx, links)
		if err != nil {
			return nil, err
		}
		result.LinksCreated = n
	}
	return result, nil
}

// RebuildEntityLinks drops all entity-match links and regenerates them for
// every non-deleted document.
func RebuildEntityLinks(ctx context.Context, store storage.Storage, sameProjectOnly bool) (int, error) {
	if _, err := store.DeleteLinksByMethod(ctx, types.MethodEntityMatch); err != nil {
		return 0, err
	}
	docs, err := store.ListDocuments(ctx, "", 0)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, d := range docs {
		r, err := LinkByEntities(ctx, store, d.ID, sameProjectOnly)
		if err != nil {
			return total, fmt.Errorf("entity-link document %d: %w", d.ID, err)
		}
		total += r.LinksCreated
	}
	return total, nil
}
