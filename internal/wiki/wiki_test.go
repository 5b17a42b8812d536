package wiki

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/untoldecay/DocLoom/internal/llm"
	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/storage/sqlite"
	"github.com/untoldecay/DocLoom/internal/types"
)

// fakeClient returns canned responses and records calls.
type fakeClient struct {
	responses []string
	calls     int
	prompts   []llm.Request
	err       error
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.prompts = append(f.prompts, req)
	if f.err != nil {
		return nil, f.err
	}
	text := "# Generated Article\n\nBody."
	if f.calls < len(f.responses) {
		text = f.responses[f.calls]
	}
	f.calls++
	return &llm.Response{
		Text:         text,
		Model:        req.Model,
		InputTokens:  len(req.System+req.Prompt) / 4,
		OutputTokens: len(text) / 4,
	}, nil
}

type testEnv struct {
	t      *testing.T
	Store  *sqlite.Store
	Client *fakeClient
	Engine *Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.Open(context.Background(), t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	client := &fakeClient{}
	return &testEnv{
		t:      t,
		Store:  store,
		Client: client,
		Engine: NewEngine(store, client, "sonnet"),
		Ctx:    context.Background(),
	}
}

func (e *testEnv) saveDoc(title, content string) int64 {
	e.t.Helper()
	id, err := e.Store.SaveDocument(e.Ctx, title, content, storage.SaveOptions{})
	if err != nil {
		e.t.Fatalf("SaveDocument(%q) failed: %v", title, err)
	}
	return id
}

// makeTopic creates an active topic whose primary members are the given docs.
func (e *testEnv) makeTopic(slug, label string, docIDs ...int64) int64 {
	e.t.Helper()
	members := make([]types.WikiTopicMember, len(docIDs))
	for i, id := range docIDs {
		members[i] = types.WikiTopicMember{DocumentID: id, Relevance: 1.0, IsPrimary: true}
	}
	id, err := e.Store.CreateTopic(e.Ctx, &types.WikiTopic{
		Slug: slug, Label: label, Status: types.TopicActive,
	}, members)
	if err != nil {
		e.t.Fatalf("CreateTopic(%q) failed: %v", slug, err)
	}
	return id
}

func TestTitleFromLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"event loop", "Event Loop"},
		{"event loop / scheduler", "Event Loop and Scheduler"},
		{"a / b / c", "A, B, and C"},
	}
	for _, tt := range tests {
		if got := titleFromLabel(tt.in); got != tt.want {
			t.Errorf("titleFromLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOutlineSectionsScaleWithSources(t *testing.T) {
	topic := &types.WikiTopic{Label: "caching"}

	small := buildOutline(topic, 3)
	if len(small.Sections) != 3 { // Overview, Key Concepts, Related Topics
		t.Errorf("3 sources: got sections %v", small.Sections)
	}
	mid := buildOutline(topic, 5)
	if !containsStr(mid.Sections, "Architecture & Design Decisions") {
		t.Errorf("5 sources should add architecture section, got %v", mid.Sections)
	}
	large := buildOutline(topic, 8)
	if !containsStr(large.Sections, "Implementation Details") {
		t.Errorf("8 sources should add implementation section, got %v", large.Sections)
	}
}

func containsStr(s []string, want string) bool {
	for _, v := range s {
		if v == want {
			return true
		}
	}
	return false
}

func TestGenerateDryRun(t *testing.T) {
	e := newTestEnv(t)
	content := strings.Repeat("x", 2000)
	a := e.saveDoc("Doc A", content)
	b := e.saveDoc("Doc B", content)
	c := e.saveDoc("Doc C", content)
	topicID := e.makeTopic("test-topic", "test topic", a, b, c)

	r, err := e.Engine.GenerateArticle(e.Ctx, topicID, GenerateOptions{DryRun: true})
	if err != nil {
		t.Fatalf("GenerateArticle failed: %v", err)
	}
	if !r.Skipped || r.SkipReason != "dry run" {
		t.Fatalf("expected dry run skip, got %+v", r)
	}
	// 6000 chars: 6000/4 + 500 = 2000 input, min(1000, 4000) = 1000 output.
	if r.InputTokens != 2000 {
		t.Errorf("input tokens = %d, want 2000", r.InputTokens)
	}
	if r.OutputTokens != 1000 {
		t.Errorf("output tokens = %d, want 1000", r.OutputTokens)
	}
	if r.CostUSD <= 0 {
		t.Errorf("expected a positive cost estimate, got %g", r.CostUSD)
	}
	if r.Timing.WriteMS != 0 || r.Timing.ValidateMS != 0 || r.Timing.SaveMS != 0 {
		t.Errorf("dry run must not record write/validate/save timings: %+v", r.Timing)
	}
	if e.Client.calls != 0 {
		t.Errorf("dry run invoked the LLM %d times", e.Client.calls)
	}
	if article, _ := e.Store.GetArticleByTopic(e.Ctx, topicID); article != nil {
		t.Error("dry run wrote an article")
	}
}

func TestGenerateCreatesAndRegenerates(t *testing.T) {
	e := newTestEnv(t)
	docID := e.saveDoc("Source Doc", "The scheduler coordinates workers.")
	topicID := e.makeTopic("schedulers", "schedulers", docID)

	e.Client.responses = []string{"# Schedulers\n\nFirst version."}
	r1, err := e.Engine.GenerateArticle(e.Ctx, topicID, GenerateOptions{})
	if err != nil {
		t.Fatalf("first generation failed: %v", err)
	}
	if r1.Skipped {
		t.Fatalf("first generation skipped: %s", r1.SkipReason)
	}
	if r1.Version != 1 {
		t.Errorf("version = %d, want 1", r1.Version)
	}

	// Unchanged sources: second call skips.
	r2, err := e.Engine.GenerateArticle(e.Ctx, topicID, GenerateOptions{})
	if err != nil {
		t.Fatalf("second generation failed: %v", err)
	}
	if !r2.Skipped || r2.SkipReason != "Article up to date" {
		t.Fatalf("expected up-to-date skip, got %+v", r2)
	}

	// Change a source; regeneration must bump the version and stash content.
	if _, err := e.Store.UpdateDocument(e.Ctx, docID, "Source Doc", "The scheduler now preempts."); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Engine.MarkStale(e.Ctx, docID); err != nil {
		t.Fatal(err)
	}

	e.Client.responses = append(e.Client.responses, "# Schedulers\n\nSecond version.")
	r3, err := e.Engine.GenerateArticle(e.Ctx, topicID, GenerateOptions{})
	if err != nil {
		t.Fatalf("regeneration failed: %v", err)
	}
	if r3.Skipped {
		t.Fatalf("regeneration skipped: %s", r3.SkipReason)
	}
	if r3.Version != 2 {
		t.Errorf("version = %d, want 2", r3.Version)
	}

	article, err := e.Store.GetArticleByTopic(e.Ctx, topicID)
	if err != nil {
		t.Fatal(err)
	}
	if article.Version != 2 {
		t.Errorf("stored version = %d, want 2", article.Version)
	}
	if article.IsStale {
		t.Error("regenerated article still stale")
	}
	if !strings.Contains(article.PreviousContent, "First version.") {
		t.Errorf("previous_content = %q, want the first version", article.PreviousContent)
	}

	diff, err := e.Engine.ArticleDiff(e.Ctx, topicID)
	if err != nil {
		t.Fatal(err)
	}
	if diff == "" {
		t.Error("expected a non-empty diff after regeneration")
	}
	if !strings.Contains(diff, "-First version.") || !strings.Contains(diff, "+Second version.") {
		t.Errorf("diff missing expected lines:\n%s", diff)
	}
}

func TestGenerateFailureSurfacesError(t *testing.T) {
	e := newTestEnv(t)
	docID := e.saveDoc("Doc", "content here")
	topicID := e.makeTopic("fails", "fails", docID)

	e.Client.err = errors.New("model exploded")
	if _, err := e.Engine.GenerateArticle(e.Ctx, topicID, GenerateOptions{}); err == nil {
		t.Fatal("expected an error from a failing LLM call")
	}
}

func TestGenerateUnknownTopic(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.Engine.GenerateArticle(e.Ctx, 999, GenerateOptions{})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBatchContinuesPastFailures(t *testing.T) {
	e := newTestEnv(t)
	a := e.saveDoc("A", "alpha content")
	b := e.saveDoc("B", "beta content")
	e.makeTopic("topic-a", "topic a", a)
	e.makeTopic("topic-b", "topic b", b)

	run, err := e.Engine.GenerateWiki(e.Ctx, BatchOptions{
		GenerateOptions: GenerateOptions{DryRun: true},
	}, nil)
	if err != nil {
		t.Fatalf("GenerateWiki failed: %v", err)
	}
	if run.Attempted != 2 {
		t.Errorf("attempted = %d, want 2", run.Attempted)
	}
	if run.Skipped != 2 { // dry runs count as skips
		t.Errorf("skipped = %d, want 2", run.Skipped)
	}

	runs, err := e.Store.ListWikiRuns(e.Ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 persisted run, got %d", len(runs))
	}
	if runs[0].CompletedAt == nil {
		t.Error("run was not completed")
	}
}

func TestBatchSkipsSkippedTopics(t *testing.T) {
	e := newTestEnv(t)
	a := e.saveDoc("A", "alpha content")
	topicID := e.makeTopic("topic-a", "topic a", a)
	if err := e.Engine.SetStatus(e.Ctx, topicID, types.TopicSkipped); err != nil {
		t.Fatal(err)
	}

	run, err := e.Engine.GenerateWiki(e.Ctx, BatchOptions{
		GenerateOptions: GenerateOptions{DryRun: true},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if run.Attempted != 0 {
		t.Errorf("skipped topic was attempted: %+v", run)
	}
}

func TestPinnedTopicAlwaysRegenerates(t *testing.T) {
	e := newTestEnv(t)
	docID := e.saveDoc("Doc", "pinned content")
	topicID := e.makeTopic("pinned", "pinned", docID)

	if _, err := e.Engine.GenerateArticle(e.Ctx, topicID, GenerateOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := e.Engine.SetStatus(e.Ctx, topicID, types.TopicPinned); err != nil {
		t.Fatal(err)
	}

	r, err := e.Engine.GenerateArticle(e.Ctx, topicID, GenerateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if r.Skipped {
		t.Errorf("pinned topic skipped the up-to-date check incorrectly: %s", r.SkipReason)
	}
	if r.Version != 2 {
		t.Errorf("version = %d, want 2", r.Version)
	}
}

func TestModelResolutionOrder(t *testing.T) {
	e := newTestEnv(t)
	docID := e.saveDoc("Doc", "content")
	topicID := e.makeTopic("models", "models", docID)

	// Topic override beats engine default.
	if err := e.Engine.SetModelOverride(e.Ctx, topicID, "haiku"); err != nil {
		t.Fatal(err)
	}
	r, err := e.Engine.GenerateArticle(e.Ctx, topicID, GenerateOptions{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if r.Model != llm.ResolveModel("haiku") {
		t.Errorf("model = %q, want haiku resolution", r.Model)
	}

	// Explicit argument beats the topic override.
	r, err = e.Engine.GenerateArticle(e.Ctx, topicID, GenerateOptions{DryRun: true, Model: "opus"})
	if err != nil {
		t.Fatal(err)
	}
	if r.Model != llm.ResolveModel("opus") {
		t.Errorf("model = %q, want opus resolution", r.Model)
	}
}

func TestExcludedMemberSkippedInPrepare(t *testing.T) {
	e := newTestEnv(t)
	a := e.saveDoc("A", "alpha content")
	b := e.saveDoc("B", "beta content")
	topicID := e.makeTopic("excl", "excl", a, b)

	if err := e.Engine.SetMemberIncluded(e.Ctx, topicID, b, false); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Engine.GenerateArticle(e.Ctx, topicID, GenerateOptions{}); err != nil {
		t.Fatal(err)
	}
	if len(e.Client.prompts) == 0 {
		t.Fatal("no LLM call recorded")
	}
	prompt := e.Client.prompts[0].Prompt
	if !strings.Contains(prompt, "alpha content") {
		t.Error("included member missing from prompt")
	}
	if strings.Contains(prompt, "beta content") {
		t.Error("excluded member leaked into prompt")
	}
}

func TestRateValidation(t *testing.T) {
	e := newTestEnv(t)
	docID := e.saveDoc("Doc", "content")
	topicID := e.makeTopic("rated", "rated", docID)

	if err := e.Engine.Rate(e.Ctx, topicID, 0); !errors.Is(err, ErrBadInput) {
		t.Errorf("rating 0 should be rejected, got %v", err)
	}
	if err := e.Engine.Rate(e.Ctx, topicID, 6); !errors.Is(err, ErrBadInput) {
		t.Errorf("rating 6 should be rejected, got %v", err)
	}
	// No article yet: a valid rating reports not found.
	if err := e.Engine.Rate(e.Ctx, topicID, 4); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("rating without an article should be not-found, got %v", err)
	}

	if _, err := e.Engine.GenerateArticle(e.Ctx, topicID, GenerateOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := e.Engine.Rate(e.Ctx, topicID, 4); err != nil {
		t.Errorf("valid rating failed: %v", err)
	}
	article, _ := e.Store.GetArticleByTopic(e.Ctx, topicID)
	if article.Rating == nil || *article.Rating != 4 {
		t.Errorf("rating not persisted: %+v", article.Rating)
	}
}

func TestRenameChecksSlugUniqueness(t *testing.T) {
	e := newTestEnv(t)
	a := e.saveDoc("A", "content a")
	b := e.saveDoc("B", "content b")
	t1 := e.makeTopic("first", "first", a)
	e.makeTopic("second", "second", b)

	err := e.Engine.Rename(e.Ctx, t1, "second")
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected duplicate slug error, got %v", err)
	}
	if err := e.Engine.Rename(e.Ctx, t1, "renamed topic"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	topic, _ := e.Store.GetTopic(e.Ctx, t1)
	if topic.Slug != "renamed-topic" {
		t.Errorf("slug = %q, want renamed-topic", topic.Slug)
	}
}

func TestMergeMovesMembersAndMarksStale(t *testing.T) {
	e := newTestEnv(t)
	a := e.saveDoc("A", "content a")
	b := e.saveDoc("B", "content b")
	winner := e.makeTopic("winner", "winner", a)
	loser := e.makeTopic("loser", "loser", b)

	e.Client.responses = []string{"# winner\n\nBody."}
	if _, err := e.Engine.GenerateArticle(e.Ctx, winner, GenerateOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := e.Engine.Merge(e.Ctx, winner, loser); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	if topic, _ := e.Store.GetTopic(e.Ctx, loser); topic != nil {
		t.Error("loser topic still exists")
	}
	winnerTopic, _ := e.Store.GetTopic(e.Ctx, winner)
	if winnerTopic.Label != "winner & loser" {
		t.Errorf("label = %q, want concatenation", winnerTopic.Label)
	}
	members, _ := e.Store.GetTopicMembers(e.Ctx, winner)
	if len(members) != 2 {
		t.Errorf("winner has %d members, want 2", len(members))
	}
	article, _ := e.Store.GetArticleByTopic(e.Ctx, winner)
	if !article.IsStale {
		t.Error("winner article not marked stale after merge")
	}
}

func TestSplitMovesMatchingDocs(t *testing.T) {
	e := newTestEnv(t)
	a := e.saveDoc("Redis Notes", "redis eviction policy details")
	b := e.saveDoc("Postgres Notes", "btree index details")
	topicID := e.makeTopic("storage", "storage", a, b)

	newID, moved, err := e.Engine.Split(e.Ctx, topicID, "redis", "redis topics")
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if moved != 1 {
		t.Errorf("moved = %d, want 1", moved)
	}
	newDocs, _ := e.Store.GetTopicDocs(e.Ctx, newID)
	if len(newDocs) != 1 || newDocs[0] != a {
		t.Errorf("new topic docs = %v, want [%d]", newDocs, a)
	}
	origDocs, _ := e.Store.GetTopicDocs(e.Ctx, topicID)
	if len(origDocs) != 1 || origDocs[0] != b {
		t.Errorf("original topic docs = %v, want [%d]", origDocs, b)
	}
}

func TestHierarchicalRouting(t *testing.T) {
	e := newTestEnv(t)
	// 7 large docs exceed the stuff threshold; chunks of 5 mean 2 summary
	// calls plus the final merge.
	var ids []int64
	for i := 0; i < 7; i++ {
		ids = append(ids, e.saveDoc(string(rune('A'+i))+" doc", strings.Repeat("word ", 3500)))
	}
	topicID := e.makeTopic("big", "big", ids...)

	if _, err := e.Engine.GenerateArticle(e.Ctx, topicID, GenerateOptions{}); err != nil {
		t.Fatal(err)
	}
	if e.Client.calls != 3 {
		t.Errorf("LLM calls = %d, want 2 summaries + 1 merge", e.Client.calls)
	}
}

func TestUnifiedDiff(t *testing.T) {
	a := "line one\nline two\nline three"
	b := "line one\nline 2\nline three"
	diff := UnifiedDiff("old", "new", a, b)
	if !strings.Contains(diff, "-line two") || !strings.Contains(diff, "+line 2") {
		t.Errorf("diff missing change lines:\n%s", diff)
	}
	if UnifiedDiff("old", "new", a, a) != "" {
		t.Error("identical inputs should produce an empty diff")
	}
}

func TestUnifiedDiffMergesNearbyChanges(t *testing.T) {
	// Two changed lines five unchanged lines apart: their context windows
	// would overlap, so they must land in one hunk with no repeated lines.
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}
	a := strings.Join(lines, "\n")
	changed := append([]string(nil), lines...)
	changed[1] = "line one changed"
	changed[7] = "line seven changed"
	b := strings.Join(changed, "\n")

	diff := UnifiedDiff("old", "new", a, b)
	if got := strings.Count(diff, "@@"); got != 2 { // one header, two markers
		t.Errorf("hunk headers = %d, want 1:\n%s", got/2, diff)
	}
	for i := range lines {
		if n := strings.Count(diff, "\n "+lines[i]+"\n"); n > 1 {
			t.Errorf("context line %q repeated %d times:\n%s", lines[i], n, diff)
		}
	}
	if !strings.Contains(diff, "-line 1\n") || !strings.Contains(diff, "+line one changed") ||
		!strings.Contains(diff, "-line 7\n") || !strings.Contains(diff, "+line seven changed") {
		t.Errorf("diff missing change lines:\n%s", diff)
	}
}

func TestStatusAndCoverage(t *testing.T) {
	e := newTestEnv(t)
	a := e.saveDoc("A", "content a")
	b := e.saveDoc("B", "content b")
	e.saveDoc("C", "uncovered")
	topicID := e.makeTopic("covered", "covered", a, b)

	s, err := e.Engine.GetStatus(e.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.Topics != 1 || s.Unwritten != 1 {
		t.Errorf("status = %+v, want 1 topic, 1 unwritten", s)
	}

	if _, err := e.Engine.GenerateArticle(e.Ctx, topicID, GenerateOptions{}); err != nil {
		t.Fatal(err)
	}
	s, _ = e.Engine.GetStatus(e.Ctx)
	if s.Articles != 1 || s.Unwritten != 0 {
		t.Errorf("status after generate = %+v", s)
	}

	cov, err := e.Engine.GetCoverage(e.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cov.TotalDocs != 3 || cov.CoveredDocs != 2 {
		t.Errorf("coverage = %+v, want 2/3", cov)
	}
}
