// Package cluster groups documents into wiki topics by community detection
// over an IDF-weighted entity-sharing graph.
package cluster

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/types"
)

// Defaults for the clustering pipeline.
const (
	DefaultMinDF          = 2
	DefaultMaxDFRatio     = 0.15
	maxDFFloor            = 5
	MinEdgeWeight         = 0.05
	DefaultResolution     = 0.05
	DefaultMinClusterSize = 3
	maxSlugLength         = 80
)

// Options tunes the clustering pipeline. Zero values take the defaults.
type Options struct {
	MinDF          int
	MaxDFRatio     float64
	Resolution     float64
	MinClusterSize int
	EntityTypes    []string // empty = all types
}

// Cluster is one detected topic before persistence.
type Cluster struct {
	Label       string   `json:"label"`
	Slug        string   `json:"slug"`
	DocumentIDs []int64  `json:"document_ids"`
	TopEntities []string `json:"top_entities"`
	Coherence   float64  `json:"coherence"`
	Fingerprint string   `json:"fingerprint"`
}

// Result is the output of one clustering run.
type Result struct {
	Clusters      []Cluster `json:"clusters"`
	TotalDocs     int       `json:"total_docs"`
	ClusteredDocs int       `json:"clustered_docs"`
	EntitiesUsed  int       `json:"entities_used"`
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

type edge struct {
	a, b   int
	weight float64
}

// docEntities is {doc: {entity: max_confidence}} plus the per-entity
// document frequency, built from the stored extraction results.
type docEntities struct {
	docs     []int64
	byDoc    map[int64]map[string]float64
	df       map[string]int
	entTypes map[string]string
}

func buildMatrix(entities []types.DocumentEntity, allowedTypes []string) *docEntities {
	allowed := map[string]bool{}
	for _, t := range allowedTypes {
		allowed[t] = true
	}

	m := &docEntities{
		byDoc:    make(map[int64]map[string]float64),
		df:       make(map[string]int),
		entTypes: make(map[string]string),
	}
	for _, e := range entities {
		if len(allowed) > 0 && !allowed[e.Type] {
			continue
		}
		docMap, ok := m.byDoc[e.DocumentID]
		if !ok {
			docMap = make(map[string]float64)
			m.byDoc[e.DocumentID] = docMap
			m.docs = append(m.docs, e.DocumentID)
		}
		if e.Confidence > docMap[e.Entity] {
			if docMap[e.Entity] == 0 {
				m.df[e.Entity]++
			}
			docMap[e.Entity] = e.Confidence
		}
		// Remember the highest-weighted type seen for the entity.
		if prev, ok := m.entTypes[e.Entity]; !ok || typeWeight(e.Type) > typeWeight(prev) {
			m.entTypes[e.Entity] = e.Type
		}
	}
	sort.Slice(m.docs, func(i, j int) bool { return m.docs[i] < m.docs[j] })
	return m
}

// prune drops entities with df below minDF or above the max-df ceiling,
// and returns the idf map for survivors.
func (m *docEntities) prune(minDF int, maxDFRatio float64) map[string]float64 {
	total := len(m.docs)
	maxDF := int(maxDFRatio * float64(total))
	if maxDF < maxDFFloor {
		maxDF = maxDFFloor
	}

	idf := make(map[string]float64)
	for e, df := range m.df {
		if df < minDF || df > maxDF {
			continue
		}
		idf[e] = math.Log(1 + float64(total)/float64(df))
	}

	for _, docMap := range m.byDoc {
		for e := range docMap {
			if _, ok := idf[e]; !ok {
				delete(docMap, e)
			}
		}
	}
	return idf
}

// weightedJaccard computes the IDF-weighted Jaccard between two docs'
// surviving-entity maps.
func weightedJaccard(a, b map[string]float64, idf map[string]float64) float64 {
	var num, den float64
	for e, confA := range a {
		w := idf[e]
		if confB, shared := b[e]; shared {
			num += w * math.Max(confA, confB)
		}
		den += w
	}
	for e := range b {
		if _, shared := a[e]; !shared {
			den += idf[e]
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// Run executes the full pipeline over all stored entities.
func Run(ctx context.Context, store storage.Storage, opts Options) (*Result, error) {
	entities, err := store.GetAllEntities(ctx)
	if err != nil {
		return nil, err
	}
	return cluster(entities, opts), nil
}

func cluster(entities []types.DocumentEntity, opts Options) *Result {
	minDF := opts.MinDF
	if minDF <= 0 {
		minDF = DefaultMinDF
	}
	maxDFRatio := opts.MaxDFRatio
	if maxDFRatio <= 0 {
		maxDFRatio = DefaultMaxDFRatio
	}
	resolution := opts.Resolution
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	minSize := opts.MinClusterSize
	if minSize <= 0 {
		minSize = DefaultMinClusterSize
	}

	m := buildMatrix(entities, opts.EntityTypes)
	idf := m.prune(minDF, maxDFRatio)

	result := &Result{TotalDocs: len(m.docs), EntitiesUsed: len(idf)}
	if len(m.docs) < minSize || len(idf) == 0 {
		return result
	}

	// Dense pairwise pass; corpora here are personal-scale.
	index := make(map[int64]int, len(m.docs))
	for i, id := range m.docs {
		index[id] = i
	}
	var edges []edge
	adjacency := make([]map[int]float64, len(m.docs))
	for i := range adjacency {
		adjacency[i] = make(map[int]float64)
	}
	for i := 0; i < len(m.docs); i++ {
		for j := i + 1; j < len(m.docs); j++ {
			w := weightedJaccard(m.byDoc[m.docs[i]], m.byDoc[m.docs[j]], idf)
			if w < MinEdgeWeight {
				continue
			}
			edges = append(edges, edge{i, j, w})
			adjacency[i][j] = w
			adjacency[j][i] = w
		}
	}
	if len(edges) == 0 {
		return result
	}

	membership := detectCommunities(adjacency, resolution)

	groups := make(map[int][]int)
	for node, comm := range membership {
		groups[comm] = append(groups[comm], node)
	}
	var kept [][]int
	for _, nodes := range groups {
		if len(nodes) >= minSize {
			sort.Ints(nodes)
			kept = append(kept, nodes)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if len(kept[i]) != len(kept[j]) {
			return len(kept[i]) > len(kept[j])
		}
		return kept[i][0] < kept[j][0]
	})

	usedSlugs := make(map[string]bool)
	for _, nodes := range kept {
		docIDs := make([]int64, len(nodes))
		for i, n := range nodes {
			docIDs[i] = m.docs[n]
		}
		top := labelEntities(m, docIDs, idf)
		label := strings.Join(firstN(top, 3), " / ")
		slug := uniqueSlug(Slugify(label), usedSlugs)

		result.Clusters = append(result.Clusters, Cluster{
			Label:       label,
			Slug:        slug,
			DocumentIDs: docIDs,
			TopEntities: firstN(top, 10),
			Coherence:   coherence(m, nodes),
			Fingerprint: fingerprint(m, docIDs),
		})
		result.ClusteredDocs += len(docIDs)
	}
	return result
}

// labelEntities ranks a cluster's entities by class-TF-IDF: in-cluster
// frequency times idf times type weight.
func labelEntities(m *docEntities, docIDs []int64, idf map[string]float64) []string {
	tf := make(map[string]int)
	for _, id := range docIDs {
		for e := range m.byDoc[id] {
			tf[e]++
		}
	}
	type scored struct {
		entity string
		score  float64
	}
	ranked := make([]scored, 0, len(tf))
	for e, n := range tf {
		ranked = append(ranked, scored{e, float64(n) * idf[e] * typeWeight(m.entTypes[e])})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].entity < ranked[j].entity
	})
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.entity
	}
	return out
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// coherence is the average pairwise unweighted Jaccard within the cluster.
func coherence(m *docEntities, nodes []int) float64 {
	if len(nodes) < 2 {
		return 0
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			a := m.byDoc[m.docs[nodes[i]]]
			b := m.byDoc[m.docs[nodes[j]]]
			inter, union := 0, len(a)
			for e := range b {
				if _, ok := a[e]; ok {
					inter++
				} else {
					union++
				}
			}
			if union > 0 {
				sum += float64(inter) / float64(union)
			}
			pairs++
		}
	}
	return sum / float64(pairs)
}

// fingerprint is the first 16 hex chars of the MD5 of the sorted union of
// all member-doc entities. It lets staleness checks spot membership drift.
func fingerprint(m *docEntities, docIDs []int64) string {
	union := make(map[string]bool)
	for _, id := range docIDs {
		for e := range m.byDoc[id] {
			union[e] = true
		}
	}
	names := make([]string, 0, len(union))
	for e := range union {
		names = append(names, e)
	}
	sort.Strings(names)
	sum := md5.Sum([]byte(strings.Join(names, "\n")))
	return hex.EncodeToString(sum[:])[:16]
}

var slugPunct = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases and collapses runs of punctuation and whitespace into
// single hyphens, trimmed to 80 chars.
func Slugify(s string) string {
	slug := slugPunct.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLength {
		slug = strings.Trim(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		slug = "topic"
	}
	return slug
}

func uniqueSlug(base string, used map[string]bool) string {
	slug := base
	for i := 2; used[slug]; i++ {
		slug = fmt.Sprintf("%s-%d", base, i)
	}
	used[slug] = true
	return slug
}

// SaveTopics replaces the persisted topic set with the run's clusters.
func SaveTopics(ctx context.Context, store storage.Storage, result *Result) error {
	topics := make([]types.WikiTopic, len(result.Clusters))
	members := make(map[int][]types.WikiTopicMember, len(result.Clusters))
	for i, c := range result.Clusters {
		topics[i] = types.WikiTopic{
			Slug:        c.Slug,
			Label:       c.Label,
			Entities:    c.TopEntities,
			Coherence:   c.Coherence,
			Fingerprint: c.Fingerprint,
			Status:      types.TopicActive,
		}
		ms := make([]types.WikiTopicMember, len(c.DocumentIDs))
		for j, id := range c.DocumentIDs {
			ms[j] = types.WikiTopicMember{DocumentID: id, Relevance: 1.0, IsPrimary: true}
		}
		members[i] = ms
	}
	return store.ReplaceTopics(ctx, topics, members)
}
