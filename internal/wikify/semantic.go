package wikify

import (
	"context"
	"errors"
	"fmt"

	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/types"
)

// ErrNoEmbedder is returned when a semantic pass runs without an embedding
// backend configured.
var ErrNoEmbedder = errors.New("no embedding backend configured; semantic indexing is unavailable")

// SimilarityMatch is one embedding-index hit for a query document.
type SimilarityMatch struct {
	DocumentID int64   `json:"document_id"`
	Score      float64 `json:"score"`
}

// IndexStats summarizes embedding-index coverage of the corpus.
type IndexStats struct {
	IndexedDocs     int     `json:"indexed_docs"`
	IndexedChunks   int     `json:"indexed_chunks"`
	TotalDocs       int     `json:"total_docs"`
	CoveragePercent float64 `json:"coverage_percent"`
}

// Embedder is the capability the semantic pass depends on. Implementations
// own their chunking and on-disk index; this package only consumes matches.
type Embedder interface {
	// Index (re)indexes one document.
	Index(ctx context.Context, doc *types.Document) (chunks int, err error)
	// Similar returns the top-k most similar indexed documents.
	Similar(ctx context.Context, docID int64, k int) ([]SimilarityMatch, error)
	Stats(ctx context.Context) (*IndexStats, error)
}

// LinkBySimilarity queries the embedding index for docID and links matches
// at or above threshold with method auto.
func LinkBySimilarity(ctx context.Context, store storage.Storage, emb Embedder, docID int64, k int, threshold float64) (*Result, error) {
	if emb == nil {
		return nil, ErrNoEmbedder
	}
	if k <= 0 {
		k = 5
	}
	matches, err := emb.Similar(ctx, docID, k)
	if err != nil {
		return nil, fmt.Errorf("similarity query for document %d: %w", docID, err)
	}

	result := &Result{DocumentID: docID}
	var links []types.Link
	for _, m := range matches {
		if m.DocumentID == docID || m.Score < threshold {
			continue
		}
		exists, err := store.LinkExists(ctx, docID, m.DocumentID)
		if err != nil {
			return nil, err
		}
		if exists {
			result.ExistingSkipped++
			continue
		}
		links = append(links, types.Link{
			SourceID: docID,
			TargetID: m.DocumentID,
			Score:    m.Score,
			Method:   types.MethodAuto,
		})
	}

	if len(links) > 0 {
		n, err := store.CreateLinksBatch(ctx, links)
		if err != nil {
			return nil, err
		}
		result.LinksCreated = n
		for _, l := range links {
			result.TargetIDs = append(result.TargetIDs, l.TargetID)
		}
	}
	return result, nil
}

// MaintainIndex reindexes every non-deleted document and reports coverage.
func MaintainIndex(ctx context.Context, store storage.Storage, emb Embedder) (*IndexStats, error) {
	if emb == nil {
		return nil, ErrNoEmbedder
	}
	docs, err := store.ListDocuments(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		doc, err := store.GetDocument(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		if _, err := emb.Index(ctx, doc); err != nil {
			return nil, fmt.Errorf("index document %d: %w", d.ID, err)
		}
	}
	return emb.Stats(ctx)
}
