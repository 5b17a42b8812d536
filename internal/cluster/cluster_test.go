package cluster

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/untoldecay/DocLoom/internal/llm"
	"github.com/untoldecay/DocLoom/internal/types"
)

// corpus builds two well-separated groups of documents: docs 1-3 share
// backend entities, docs 4-6 share gamedev entities.
func corpus() []types.DocumentEntity {
	ent := func(doc int64, name, typ string) types.DocumentEntity {
		return types.DocumentEntity{DocumentID: doc, Entity: name, Type: typ, Confidence: 0.9}
	}
	var out []types.DocumentEntity
	for _, doc := range []int64{1, 2, 3} {
		out = append(out,
			ent(doc, "postgres", "tech_term"),
			ent(doc, "query planner", "concept"),
			ent(doc, "connection pool", "tech_term"),
		)
	}
	for _, doc := range []int64{4, 5, 6} {
		out = append(out,
			ent(doc, "unity engine", "proper_noun"),
			ent(doc, "sprite atlas", "tech_term"),
			ent(doc, "game loop", "concept"),
		)
	}
	return out
}

func TestClusterSeparatesGroups(t *testing.T) {
	result := cluster(corpus(), Options{})

	if len(result.Clusters) != 2 {
		t.Fatalf("clusters = %d, want 2: %+v", len(result.Clusters), result.Clusters)
	}
	if result.ClusteredDocs != 6 {
		t.Errorf("clustered docs = %d", result.ClusteredDocs)
	}

	members := make(map[int64]int)
	for i, c := range result.Clusters {
		for _, id := range c.DocumentIDs {
			members[id] = i
		}
	}
	if members[1] != members[2] || members[2] != members[3] {
		t.Errorf("backend docs split across clusters: %v", members)
	}
	if members[4] != members[5] || members[5] != members[6] {
		t.Errorf("gamedev docs split across clusters: %v", members)
	}
	if members[1] == members[4] {
		t.Error("distinct groups merged into one cluster")
	}
}

func TestClusterLabelsAndSlugs(t *testing.T) {
	result := cluster(corpus(), Options{})

	for _, c := range result.Clusters {
		if c.Label == "" || c.Slug == "" {
			t.Errorf("cluster missing label/slug: %+v", c)
		}
		if len(c.TopEntities) == 0 || len(c.TopEntities) > 10 {
			t.Errorf("top entities = %v", c.TopEntities)
		}
		if len(c.Fingerprint) != 16 {
			t.Errorf("fingerprint = %q, want 16 hex chars", c.Fingerprint)
		}
		if c.Coherence <= 0 || c.Coherence > 1 {
			t.Errorf("coherence = %v", c.Coherence)
		}
	}
}

func TestClusterMinSize(t *testing.T) {
	// Only two docs share entities: below the default minimum of 3.
	ents := []types.DocumentEntity{
		{DocumentID: 1, Entity: "alpha", Type: "concept", Confidence: 0.9},
		{DocumentID: 1, Entity: "beta", Type: "concept", Confidence: 0.9},
		{DocumentID: 2, Entity: "alpha", Type: "concept", Confidence: 0.9},
		{DocumentID: 2, Entity: "beta", Type: "concept", Confidence: 0.9},
		{DocumentID: 3, Entity: "gamma", Type: "concept", Confidence: 0.9},
	}
	result := cluster(ents, Options{})
	if len(result.Clusters) != 0 {
		t.Errorf("undersized cluster kept: %+v", result.Clusters)
	}
}

func TestClusterFingerprintStable(t *testing.T) {
	a := cluster(corpus(), Options{})
	b := cluster(corpus(), Options{})
	if len(a.Clusters) != len(b.Clusters) {
		t.Fatal("nondeterministic cluster count")
	}
	for i := range a.Clusters {
		if a.Clusters[i].Fingerprint != b.Clusters[i].Fingerprint {
			t.Errorf("fingerprint changed between identical runs")
		}
	}
}

func TestWeightedJaccard(t *testing.T) {
	idf := map[string]float64{"a": 2.0, "b": 1.0, "c": 1.0}
	x := map[string]float64{"a": 0.9, "b": 0.5}
	y := map[string]float64{"a": 0.7, "c": 0.8}

	// Shared: a. Numerator = 2.0 * max(0.9, 0.7) = 1.8.
	// Union: a, b, c. Denominator = 2.0 + 1.0 + 1.0 = 4.0.
	got := weightedJaccard(x, y, idf)
	if math.Abs(got-0.45) > 1e-9 {
		t.Errorf("weightedJaccard = %v, want 0.45", got)
	}

	// Self comparison: confidence caps the score below 1.0.
	self := weightedJaccard(x, x, idf)
	want := (2.0*0.9 + 1.0*0.5) / 3.0
	if math.Abs(self-want) > 1e-9 {
		t.Errorf("self comparison = %v, want %v", self, want)
	}
}

func TestPruneDropsRareAndUbiquitous(t *testing.T) {
	var ents []types.DocumentEntity
	// 40 docs all mention "everywhere"; docs 1-3 mention "niche"; doc 1
	// mentions "once".
	for i := int64(1); i <= 40; i++ {
		ents = append(ents, types.DocumentEntity{DocumentID: i, Entity: "everywhere", Type: "concept", Confidence: 0.9})
	}
	for i := int64(1); i <= 3; i++ {
		ents = append(ents, types.DocumentEntity{DocumentID: i, Entity: "niche", Type: "concept", Confidence: 0.9})
	}
	ents = append(ents, types.DocumentEntity{DocumentID: 1, Entity: "once", Type: "concept", Confidence: 0.9})

	m := buildMatrix(ents, nil)
	idf := m.prune(DefaultMinDF, DefaultMaxDFRatio)

	if _, ok := idf["once"]; ok {
		t.Error("df=1 entity survived pruning")
	}
	// max_df = 0.15 * 40 = 6, so df=40 is dropped.
	if _, ok := idf["everywhere"]; ok {
		t.Error("ubiquitous entity survived pruning")
	}
	if _, ok := idf["niche"]; !ok {
		t.Error("mid-frequency entity pruned")
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Postgres / Query Planner", "postgres-query-planner"},
		{"  Spaces   everywhere  ", "spaces-everywhere"},
		{"UPPER_case.mixed", "upper-case-mixed"},
		{"", "topic"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	long := Slugify("a very long label that keeps going and going and going and going and going and going and going")
	if len(long) > 80 {
		t.Errorf("slug length %d exceeds 80", len(long))
	}
}

type fakeLabeler struct {
	response string
	err      error
	calls    int
}

func (f *fakeLabeler) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.response, Model: "claude-3-5-haiku-latest"}, nil
}

func (f *fakeLabeler) Name() string { return "fake" }

func TestAutoLabelRelabels(t *testing.T) {
	result := cluster(corpus(), Options{})
	client := &fakeLabeler{response: "Database Internals"}

	n := AutoLabel(context.Background(), client, result, "haiku")
	if n != len(result.Clusters) {
		t.Errorf("relabeled = %d, want %d", n, len(result.Clusters))
	}
	if result.Clusters[0].Label != "Database Internals" {
		t.Errorf("label = %q", result.Clusters[0].Label)
	}
	if result.Clusters[0].Slug != "database-internals" {
		t.Errorf("slug = %q", result.Clusters[0].Slug)
	}
}

func TestAutoLabelFallsBackOnError(t *testing.T) {
	result := cluster(corpus(), Options{})
	original := result.Clusters[0].Label

	client := &fakeLabeler{err: errors.New("CLI not found")}
	n := AutoLabel(context.Background(), client, result, "haiku")
	if n != 0 {
		t.Errorf("relabeled = %d, want 0", n)
	}
	if result.Clusters[0].Label != original {
		t.Error("label changed despite failure")
	}
}
