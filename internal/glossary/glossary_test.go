package glossary

import (
	"context"
	"strings"
	"testing"

	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/storage/sqlite"
	"github.com/untoldecay/DocLoom/internal/types"
)

type testEnv struct {
	t     *testing.T
	Store *sqlite.Store
	Ctx   context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.Open(context.Background(), t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return &testEnv{t: t, Store: store, Ctx: context.Background()}
}

func (e *testEnv) saveDoc(title, content string) int64 {
	e.t.Helper()
	id, err := e.Store.SaveDocument(e.Ctx, title, content, storage.SaveOptions{})
	if err != nil {
		e.t.Fatalf("SaveDocument(%q) failed: %v", title, err)
	}
	return id
}

func (e *testEnv) tag(docID int64, name, typ string, conf float64) {
	e.t.Helper()
	_, err := e.Store.SaveEntities(e.Ctx, docID, []types.DocumentEntity{
		{Entity: name, Type: typ, Confidence: conf},
	})
	if err != nil {
		e.t.Fatalf("SaveEntities failed: %v", err)
	}
}

func TestBuildTiers(t *testing.T) {
	e := newTestEnv(t)

	var ids []int64
	for i := 0; i < 100; i++ {
		ids = append(ids, e.saveDoc("doc", "body text for this document"))
	}

	// "kubernetes" appears in 20 of 100 docs: df and score both clear
	// the tier A bar (20 * ln(6) * 0.95 = 34).
	for _, id := range ids[:20] {
		e.tag(id, "kubernetes", "proper_noun", 0.95)
	}
	// "retry budget" appears in 3 docs: tier B.
	for _, id := range ids[:3] {
		e.tag(id, "retry budget", "concept", 0.8)
	}
	// "side note" appears in 2 docs: tier C.
	for _, id := range ids[:2] {
		e.tag(id, "side note", "concept", 0.6)
	}
	// "one-off" appears once: excluded as noise.
	e.tag(ids[0], "one-off", "concept", 0.9)

	idx, err := Build(e.Ctx, e.Store)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	tiers := map[string]Tier{}
	for _, entry := range idx.Entries {
		tiers[entry.Entity] = entry.Tier
	}
	if tiers["kubernetes"] != TierA {
		t.Errorf("kubernetes tier = %s, want A", tiers["kubernetes"])
	}
	if tiers["retry budget"] != TierB {
		t.Errorf("retry budget tier = %s, want B", tiers["retry budget"])
	}
	if tiers["side note"] != TierC {
		t.Errorf("side note tier = %s, want C", tiers["side note"])
	}
	if _, ok := tiers["one-off"]; ok {
		t.Error("df=1 entity included")
	}

	// Highest score first.
	if idx.Entries[0].Entity != "kubernetes" {
		t.Errorf("top entry = %q", idx.Entries[0].Entity)
	}
}

func TestBuildLowDFStaysOutOfTierA(t *testing.T) {
	e := newTestEnv(t)
	var ids []int64
	for i := 0; i < 4; i++ {
		ids = append(ids, e.saveDoc("doc", "body"))
	}
	// df=4 misses the tier A doc-frequency floor regardless of score.
	for _, id := range ids {
		e.tag(id, "everywhere", "proper_noun", 1.0)
	}

	idx, err := Build(e.Ctx, e.Store)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(idx.Entries) != 1 || idx.Entries[0].Tier == TierA {
		t.Errorf("entries = %+v", idx.Entries)
	}
}

func TestRelatedEntities(t *testing.T) {
	e := newTestEnv(t)
	var ids []int64
	for i := 0; i < 10; i++ {
		ids = append(ids, e.saveDoc("doc", "body"))
	}

	// "grafana" and "prometheus" always co-occur (3 shared docs).
	for _, id := range ids[:3] {
		e.tag(id, "grafana", "tech_term", 0.9)
		e.tag(id, "prometheus", "tech_term", 0.9)
	}
	// "unrelated" lives in disjoint docs.
	for _, id := range ids[5:8] {
		e.tag(id, "unrelated", "tech_term", 0.9)
	}

	idx, err := Build(e.Ctx, e.Store)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	var grafana *Entry
	for i := range idx.Entries {
		if idx.Entries[i].Entity == "grafana" {
			grafana = &idx.Entries[i]
		}
	}
	if grafana == nil {
		t.Fatal("grafana entry missing")
	}
	if len(grafana.RelatedTo) != 1 || grafana.RelatedTo[0].Entity != "prometheus" {
		t.Fatalf("related = %+v", grafana.RelatedTo)
	}
	// PMI = log2(10 * 3 / (3 * 3)) = log2(3.33) > 0.
	if grafana.RelatedTo[0].PMI <= 0 {
		t.Errorf("pmi = %v", grafana.RelatedTo[0].PMI)
	}
	if grafana.RelatedTo[0].CoDocs != 3 {
		t.Errorf("co_docs = %d", grafana.RelatedTo[0].CoDocs)
	}
}

func TestGatherSnippets(t *testing.T) {
	e := newTestEnv(t)
	content := "# Setup\n\nSome intro paragraph.\n\n## Deploying\n\nWe roll out with kubernetes every Friday after the smoke tests pass."
	a := e.saveDoc("Ops Notes", content)
	b := e.saveDoc("More Ops", content) // duplicate context, deduped
	e.tag(a, "kubernetes", "proper_noun", 0.9)
	e.tag(b, "kubernetes", "proper_noun", 0.9)

	entry := &Entry{Entity: "kubernetes", DocIDs: []int64{a, b}}
	if err := GatherSnippets(e.Ctx, e.Store, entry); err != nil {
		t.Fatalf("GatherSnippets failed: %v", err)
	}
	if len(entry.Snippets) != 1 {
		t.Fatalf("snippets = %d, want 1 after dedupe: %+v", len(entry.Snippets), entry.Snippets)
	}
	s := entry.Snippets[0]
	if !strings.Contains(s.Text, "kubernetes") {
		t.Errorf("snippet text = %q", s.Text)
	}
	if s.Heading != "Deploying" {
		t.Errorf("heading = %q, want Deploying", s.Heading)
	}
	if strings.Contains(s.Text, "\n") {
		t.Error("snippet contains newline")
	}
}

func TestSnippetWindowClamps(t *testing.T) {
	long := strings.Repeat("x ", 400) + "kafka" + strings.Repeat(" y", 400)
	text, _ := snippetFor(long, "kafka")
	if len(text) > snippetWindow+len("kafka")+2 {
		t.Errorf("snippet length = %d", len(text))
	}
	if !strings.Contains(text, "kafka") {
		t.Error("mention fell outside window")
	}
}

func TestRenderPage(t *testing.T) {
	entry := &Entry{
		Entity:  "kubernetes",
		Type:    "proper_noun",
		Tier:    TierA,
		DocFreq: 8,
		DocIDs:  []int64{1, 2},
		Snippets: []Snippet{
			{DocumentID: 1, DocTitle: "Ops Notes", Heading: "Deploying", Text: "rolled out with kubernetes"},
		},
		RelatedTo: []Related{{Entity: "helm", PMI: 1.7, CoDocs: 4}},
	}
	page := RenderPage(entry, map[int64]string{1: "Ops Notes", 2: "More Ops"})

	for _, want := range []string{
		"tier: A",
		"entity_type: proper_noun",
		"doc_frequency: 8",
		"# kubernetes",
		"[[Ops Notes]]",
		"[[More Ops]]",
		"## Related Entities",
		"[[helm]]",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q:\n%s", want, page)
		}
	}
}

func TestRenderIndexGroupsByLetter(t *testing.T) {
	idx := &Index{Entries: []Entry{
		{Entity: "zig", Tier: TierC, DocFreq: 2},
		{Entity: "ansible", Tier: TierB, DocFreq: 3},
		{Entity: "argo", Tier: TierA, DocFreq: 6},
	}}
	out := RenderIndex(idx)

	aPos := strings.Index(out, "## A")
	zPos := strings.Index(out, "## Z")
	if aPos < 0 || zPos < 0 || aPos > zPos {
		t.Fatalf("letter groups wrong:\n%s", out)
	}
	// Tier C entries are listed without a wiki link.
	if strings.Contains(out, "[[zig]]") {
		t.Error("tier C entry rendered as link")
	}
	if !strings.Contains(out, "[[argo]]") {
		t.Error("tier A entry not linked")
	}
}
