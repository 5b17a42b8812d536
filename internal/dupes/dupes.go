// Package dupes finds exact and near-duplicate documents. Exact matches
// group by content hash; near matches use MinHash signatures with an LSH
// index so the corpus is not compared pairwise.
package dupes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/untoldecay/DocLoom/internal/storage"
)

// minContentLength excludes stubs that trivially collide.
const minContentLength = 50

// Group is a set of documents sharing identical content.
type Group struct {
	ContentHash string   `json:"content_hash"`
	DocumentIDs []int64  `json:"document_ids"`
	Titles      []string `json:"titles"`
}

// Pair is a near-duplicate candidate with its estimated Jaccard similarity.
type Pair struct {
	A          int64   `json:"a"`
	B          int64   `json:"b"`
	Similarity float64 `json:"similarity"`
}

// byID sorts a group's ids ascending, keeping titles aligned.
type byID struct {
	ids    []int64
	titles []string
}

func (s byID) Len() int           { return len(s.ids) }
func (s byID) Less(i, j int) bool { return s.ids[i] < s.ids[j] }
func (s byID) Swap(i, j int) {
	s.ids[i], s.ids[j] = s.ids[j], s.ids[i]
	s.titles[i], s.titles[j] = s.titles[j], s.titles[i]
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// FindExact groups non-deleted documents by content hash and returns
// groups with more than one member.
func FindExact(ctx context.Context, store storage.Storage) ([]Group, error) {
	docs, err := store.ListDocuments(ctx, "", 0)
	if err != nil {
		return nil, err
	}

	byHash := make(map[string]*Group)
	for _, d := range docs {
		doc, err := store.GetDocument(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		h := hashContent(doc.Content)
		g, ok := byHash[h]
		if !ok {
			g = &Group{ContentHash: h}
			byHash[h] = g
		}
		g.DocumentIDs = append(g.DocumentIDs, doc.ID)
		g.Titles = append(g.Titles, doc.Title)
	}

	var groups []Group
	for _, g := range byHash {
		if len(g.DocumentIDs) > 1 {
			sort.Sort(byID{g.DocumentIDs, g.Titles})
			groups = append(groups, *g)
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].DocumentIDs[0] < groups[j].DocumentIDs[0]
	})
	return groups, nil
}

// NearOptions tunes the MinHash/LSH pass.
type NearOptions struct {
	Permutations int     // default DefaultPermutations
	Threshold    float64 // minimum estimated Jaccard, default 0.7
	MaxDocs      int     // 0 = unlimited
}

// FindNear detects near-duplicate pairs above the similarity threshold.
// Documents shorter than 50 characters are ignored.
func FindNear(ctx context.Context, store storage.Storage, opts NearOptions) ([]Pair, error) {
	perms := opts.Permutations
	if perms <= 0 {
		perms = DefaultPermutations
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}

	docs, err := store.ListDocuments(ctx, "", 0)
	if err != nil {
		return nil, err
	}

	idx := newLSHIndex(perms, threshold)
	sigs := make(map[int64]Signature)
	var pairs []Pair
	processed := 0

	for _, d := range docs {
		if opts.MaxDocs > 0 && processed >= opts.MaxDocs {
			break
		}
		doc, err := store.GetDocument(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		if doc == nil || len(doc.Content) < minContentLength {
			continue
		}
		processed++

		sig := minhash(shingles(doc.Content), perms)
		sigs[doc.ID] = sig

		for _, other := range idx.add(doc.ID, sig) {
			est := estimateJaccard(sig, sigs[other])
			if est >= threshold {
				a, b := other, doc.ID
				if a > b {
					a, b = b, a
				}
				pairs = append(pairs, Pair{A: a, B: b, Similarity: est})
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Similarity != pairs[j].Similarity {
			return pairs[i].Similarity > pairs[j].Similarity
		}
		return pairs[i].A < pairs[j].A
	})
	return pairs, nil
}

// FindNearPairwise is the legacy quadratic check, kept for small corpora
// and for validating the LSH path.
func FindNearPairwise(ctx context.Context, store storage.Storage, opts NearOptions) ([]Pair, error) {
	perms := opts.Permutations
	if perms <= 0 {
		perms = DefaultPermutations
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = 0.7
	}

	docs, err := store.ListDocuments(ctx, "", 0)
	if err != nil {
		return nil, err
	}

	type entry struct {
		id  int64
		sig Signature
	}
	var entries []entry
	for _, d := range docs {
		if opts.MaxDocs > 0 && len(entries) >= opts.MaxDocs {
			break
		}
		doc, err := store.GetDocument(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		if doc == nil || len(doc.Content) < minContentLength {
			continue
		}
		entries = append(entries, entry{doc.ID, minhash(shingles(doc.Content), perms)})
	}

	var pairs []Pair
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			est := estimateJaccard(entries[i].sig, entries[j].sig)
			if est >= threshold {
				a, b := entries[i].id, entries[j].id
				if a > b {
					a, b = b, a
				}
				pairs = append(pairs, Pair{A: a, B: b, Similarity: est})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Similarity != pairs[j].Similarity {
			return pairs[i].Similarity > pairs[j].Similarity
		}
		return pairs[i].A < pairs[j].A
	})
	return pairs, nil
}
