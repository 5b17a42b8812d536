package sqlite

import (
	"errors"
	"testing"
	"time"

	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/types"
)

func (e *testEnv) seedTopic(label string, docIDs ...int64) int64 {
	e.t.Helper()
	members := make([]types.WikiTopicMember, len(docIDs))
	for i, id := range docIDs {
		members[i] = types.WikiTopicMember{DocumentID: id, Relevance: 1.0, IsPrimary: true}
	}
	id, err := e.Store.CreateTopic(e.Ctx, &types.WikiTopic{
		Slug:   label,
		Label:  label,
		Status: types.TopicActive,
	}, members)
	if err != nil {
		e.t.Fatalf("CreateTopic(%q) failed: %v", label, err)
	}
	return id
}

func TestReplaceTopics(t *testing.T) {
	e := newTestEnv(t)
	a := e.SaveDoc("A", "a")
	b := e.SaveDoc("B", "b")
	e.seedTopic("old-topic", a)

	err := e.Store.ReplaceTopics(e.Ctx,
		[]types.WikiTopic{
			{Slug: "new-one", Label: "new / one", Fingerprint: "abcd", Coherence: 0.4},
		},
		map[int][]types.WikiTopicMember{
			0: {
				{DocumentID: a, Relevance: 1.0, IsPrimary: true},
				{DocumentID: b, Relevance: 1.0, IsPrimary: true},
			},
		})
	if err != nil {
		t.Fatalf("ReplaceTopics failed: %v", err)
	}

	topics, err := e.Store.GetTopics(e.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(topics) != 1 || topics[0].Slug != "new-one" || topics[0].MemberCount != 2 {
		t.Fatalf("topics = %+v", topics)
	}
	if old, _ := e.Store.GetTopicBySlug(e.Ctx, "old-topic"); old != nil {
		t.Error("old topic survived replacement")
	}
}

func TestGetTopicDocsPrimaryOnly(t *testing.T) {
	e := newTestEnv(t)
	a := e.SaveDoc("A", "a")
	b := e.SaveDoc("B", "b")
	c := e.SaveDoc("C", "c")
	topicID := e.seedTopic("t", a, b, c)

	// Exclude b, reweight c
	if err := e.Store.SetTopicMember(e.Ctx, types.WikiTopicMember{
		TopicID: topicID, DocumentID: b, Relevance: 1.0, IsPrimary: false,
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.Store.SetTopicMember(e.Ctx, types.WikiTopicMember{
		TopicID: topicID, DocumentID: c, Relevance: 0.25, IsPrimary: true,
	}); err != nil {
		t.Fatal(err)
	}

	docs, err := e.Store.GetTopicDocs(e.Ctx, topicID)
	if err != nil {
		t.Fatal(err)
	}
	// a (1.0) before c (0.25); b excluded.
	if len(docs) != 2 || docs[0] != a || docs[1] != c {
		t.Fatalf("docs = %v, want [%d %d]", docs, a, c)
	}
}

func TestTopicSlugConflict(t *testing.T) {
	e := newTestEnv(t)
	a := e.SaveDoc("A", "a")
	e.seedTopic("taken", a)

	_, err := e.Store.CreateTopic(e.Ctx, &types.WikiTopic{Slug: "taken", Label: "x", Status: types.TopicActive}, nil)
	if err == nil {
		t.Fatal("expected slug conflict")
	}
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("error = %v, want ErrDuplicate", err)
	}
}

func TestArticleInsertUpdateVersioning(t *testing.T) {
	e := newTestEnv(t)
	src := e.SaveDoc("Source", "source content")
	topicID := e.seedTopic("topic", src)

	artDoc, err := e.Store.SaveDocument(e.Ctx, "Topic Article", "X", storage.SaveOptions{Kind: types.KindWiki})
	if err != nil {
		t.Fatal(err)
	}

	artID, err := e.Store.InsertArticle(e.Ctx, &types.WikiArticle{
		TopicID:    topicID,
		DocumentID: artDoc,
		SourceHash: "hash-v1",
		Model:      "claude-sonnet",
	}, []types.WikiArticleSource{{DocumentID: src, ContentHash: "h1"}})
	if err != nil {
		t.Fatalf("InsertArticle failed: %v", err)
	}

	art, err := e.Store.GetArticleByTopic(e.Ctx, topicID)
	if err != nil || art == nil {
		t.Fatalf("GetArticleByTopic = %+v, %v", art, err)
	}
	if art.Version != 1 || art.IsStale {
		t.Errorf("fresh article: version=%d stale=%v", art.Version, art.IsStale)
	}

	// Regenerate: version bumps, old content stashed, staleness cleared.
	art.SourceHash = "hash-v2"
	if err := e.Store.UpdateArticle(e.Ctx, art, "Y", []types.WikiArticleSource{{DocumentID: src, ContentHash: "h2"}}); err != nil {
		t.Fatalf("UpdateArticle failed: %v", err)
	}

	art2, _ := e.Store.GetArticleByTopic(e.Ctx, topicID)
	if art2.Version != 2 {
		t.Errorf("version = %d, want 2", art2.Version)
	}
	if art2.PreviousContent != "X" {
		t.Errorf("previous_content = %q, want X", art2.PreviousContent)
	}
	if art2.IsStale {
		t.Error("is_stale should reset on regeneration")
	}
	doc, _ := e.Store.GetDocument(e.Ctx, artDoc)
	if doc.Content != "Y" {
		t.Errorf("article document content = %q", doc.Content)
	}

	sources, _ := e.Store.GetArticleSources(e.Ctx, artID)
	if len(sources) != 1 || sources[0].ContentHash != "h2" {
		t.Errorf("sources = %v", sources)
	}
}

func TestMarkArticlesStaleCascade(t *testing.T) {
	e := newTestEnv(t)
	src := e.SaveDoc("Source", "content")
	other := e.SaveDoc("Other", "content")
	topicID := e.seedTopic("topic", src)
	artDoc, _ := e.Store.SaveDocument(e.Ctx, "Article", "body", storage.SaveOptions{Kind: types.KindWiki})
	if _, err := e.Store.InsertArticle(e.Ctx, &types.WikiArticle{
		TopicID: topicID, DocumentID: artDoc, SourceHash: "h",
	}, []types.WikiArticleSource{{DocumentID: src, ContentHash: "h1"}}); err != nil {
		t.Fatal(err)
	}

	// Unrelated doc: no articles marked
	if n, _ := e.Store.MarkArticlesStale(e.Ctx, other, "source updated"); n != 0 {
		t.Errorf("unrelated doc marked %d articles", n)
	}

	n, err := e.Store.MarkArticlesStale(e.Ctx, src, "source updated")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("marked %d, want 1", n)
	}
	art, _ := e.Store.GetArticleByTopic(e.Ctx, topicID)
	if !art.IsStale || art.StaleReason != "source updated" {
		t.Errorf("article = stale:%v reason:%q", art.IsStale, art.StaleReason)
	}
}

func TestRateArticle(t *testing.T) {
	e := newTestEnv(t)
	src := e.SaveDoc("S", "s")
	topicID := e.seedTopic("t", src)
	artDoc, _ := e.Store.SaveDocument(e.Ctx, "A", "body", storage.SaveOptions{Kind: types.KindWiki})
	if _, err := e.Store.InsertArticle(e.Ctx, &types.WikiArticle{TopicID: topicID, DocumentID: artDoc}, nil); err != nil {
		t.Fatal(err)
	}

	if err := e.Store.RateArticle(e.Ctx, topicID, 4, time.Now()); err != nil {
		t.Fatalf("RateArticle failed: %v", err)
	}
	art, _ := e.Store.GetArticleByTopic(e.Ctx, topicID)
	if art.Rating == nil || *art.Rating != 4 || art.RatedAt == nil {
		t.Errorf("rating = %+v", art)
	}

	if err := e.Store.RateArticle(e.Ctx, 9999, 3, time.Now()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown topic rating error = %v", err)
	}
}

func TestWikiRunLifecycle(t *testing.T) {
	e := newTestEnv(t)
	runID, err := e.Store.CreateWikiRun(e.Ctx, "claude-sonnet", false)
	if err != nil {
		t.Fatal(err)
	}
	err = e.Store.CompleteWikiRun(e.Ctx, &types.WikiRun{
		ID: runID, Attempted: 3, Generated: 2, Skipped: 1,
		InputTokens: 1000, OutputTokens: 400, CostUSD: 0.02,
	})
	if err != nil {
		t.Fatal(err)
	}

	runs, err := e.Store.ListWikiRuns(e.Ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %v", runs)
	}
	r := runs[0]
	if r.Attempted != 3 || r.Generated != 2 || r.Skipped != 1 || r.CompletedAt == nil {
		t.Errorf("run = %+v", r)
	}
}

func TestSaveEntitiesIdempotent(t *testing.T) {
	e := newTestEnv(t)
	id := e.SaveDoc("Doc", "content")
	ents := []types.DocumentEntity{
		{Entity: "event loop", Type: "tech_term", Confidence: 0.9},
		{Entity: "task scheduler", Type: "tech_term", Confidence: 0.9},
	}

	n1, err := e.Store.SaveEntities(e.Ctx, id, ents)
	if err != nil || n1 != 2 {
		t.Fatalf("first save = %d, %v", n1, err)
	}
	n2, err := e.Store.SaveEntities(e.Ctx, id, ents)
	if err != nil {
		t.Fatal(err)
	}
	if n2 != 0 {
		t.Errorf("second save inserted %d, want 0", n2)
	}
	got, _ := e.Store.GetEntities(e.Ctx, id)
	if len(got) != 2 {
		t.Errorf("entities = %v", got)
	}
}

