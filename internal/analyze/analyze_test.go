package analyze

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/storage/sqlite"
	"github.com/untoldecay/DocLoom/internal/types"
)

// taskStore lets tests inject tasks without a write path, since the task
// table is owned by an external collaborator.
type taskStore struct {
	*sqlite.Store
	tasks []types.Task
}

func (s *taskStore) ListTasks(_ context.Context) ([]types.Task, error) {
	return s.tasks, nil
}

type testEnv struct {
	t     *testing.T
	Store *taskStore
	Ctx   context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.Open(context.Background(), t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return &testEnv{t: t, Store: &taskStore{Store: store}, Ctx: context.Background()}
}

func (e *testEnv) saveDoc(title, content string, tags ...string) int64 {
	e.t.Helper()
	id, err := e.Store.SaveDocument(e.Ctx, title, content, storage.SaveOptions{Tags: tags})
	if err != nil {
		e.t.Fatalf("SaveDocument(%q) failed: %v", title, err)
	}
	return id
}

func TestHalfLifeDecay(t *testing.T) {
	if got := halfLifeDecay(0, 30); got != 1.0 {
		t.Errorf("decay(0) = %v, want 1.0", got)
	}
	if got := halfLifeDecay(30, 30); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("decay at one half-life = %v, want 0.5", got)
	}
	if got := halfLifeDecay(60, 30); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("decay at two half-lives = %v, want 0.25", got)
	}
}

func TestContentLengthSignal(t *testing.T) {
	if got := contentLengthSignal(""); got != 0 {
		t.Errorf("empty = %v", got)
	}
	if got := contentLengthSignal("   "); got != 0 {
		t.Errorf("whitespace only = %v", got)
	}
	if got := contentLengthSignal("1234567890"); got != 0.1 {
		t.Errorf("10 chars = %v, want 0.1", got)
	}
	long := make([]byte, 150)
	for i := range long {
		long[i] = 'x'
	}
	if got := contentLengthSignal(string(long)); got != 1.0 {
		t.Errorf("150 chars = %v, want 1.0", got)
	}
}

func TestTagSignal(t *testing.T) {
	tests := []struct {
		tags []string
		want float64
	}{
		{nil, 0.5},
		{[]string{"active"}, 0.7},
		{[]string{"security", "reference"}, 0.7},
		{[]string{"done"}, 0.2},
		{[]string{"archived", "failed"}, 0.0}, // clamped
		{[]string{"active", "security", "gameplan", "reference"}, 1.0},
	}
	for _, tt := range tests {
		if got := tagSignal(tt.tags); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("tagSignal(%v) = %v, want %v", tt.tags, got, tt.want)
		}
	}
}

func TestFreshnessReport(t *testing.T) {
	e := newTestEnv(t)
	fresh := e.saveDoc("Fresh", "plenty of content here, definitely more than one hundred characters of real prose about the event loop and the scheduler", "active")
	stale := e.saveDoc("Stale", "x", "archived")

	report, err := Freshness(e.Ctx, e.Store, FreshnessOptions{})
	if err != nil {
		t.Fatalf("Freshness failed: %v", err)
	}
	if report.TotalDocs != 2 || report.ScoredDocs != 2 {
		t.Fatalf("report = %+v", report)
	}
	// Ascending by score: the archived one-char doc comes first.
	if report.Docs[0].DocumentID != stale || report.Docs[1].DocumentID != fresh {
		t.Errorf("order = %v, %v", report.Docs[0].DocumentID, report.Docs[1].DocumentID)
	}
	if report.Docs[1].Score <= report.Docs[0].Score {
		t.Errorf("scores not ascending: %v", report.Docs)
	}
	// Both docs were just created, so neither is stale by age alone.
	for _, d := range report.Docs {
		if d.AgeDecay < 0.99 {
			t.Errorf("fresh doc has age decay %v", d.AgeDecay)
		}
	}
}

func TestFreshnessLinkHealth(t *testing.T) {
	e := newTestEnv(t)
	a := e.saveDoc("A", "content")
	b := e.saveDoc("B", "content")
	c := e.saveDoc("C", "content")
	if _, err := e.Store.CreateLink(e.Ctx, a, b, 1.0, types.MethodManual); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Store.CreateLink(e.Ctx, a, c, 1.0, types.MethodManual); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Store.DeleteDocument(e.Ctx, c, false); err != nil {
		t.Fatal(err)
	}

	report, err := Freshness(e.Ctx, e.Store, FreshnessOptions{})
	if err != nil {
		t.Fatal(err)
	}
	var aScore *DocFreshnessScore
	for i := range report.Docs {
		if report.Docs[i].DocumentID == a {
			aScore = &report.Docs[i]
		}
	}
	if aScore == nil {
		t.Fatal("doc a missing from report")
	}
	if aScore.LinkHealth != 0.5 {
		t.Errorf("link health = %v, want 0.5 (one of two neighbors deleted)", aScore.LinkHealth)
	}
}

func TestFreshnessStaleOnly(t *testing.T) {
	e := newTestEnv(t)
	e.saveDoc("Fresh", "plenty of content here, definitely more than one hundred characters of real prose about the event loop and scheduling", "active")

	report, err := Freshness(e.Ctx, e.Store, FreshnessOptions{StaleOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Docs) != 0 {
		t.Errorf("stale_only returned fresh docs: %+v", report.Docs)
	}
	if report.ScoredDocs != 1 {
		t.Errorf("scored = %d", report.ScoredDocs)
	}
}

func daysAgo(now time.Time, d int) time.Time {
	return now.AddDate(0, 0, -d)
}

func TestDriftStaleEpics(t *testing.T) {
	e := newTestEnv(t)
	now := time.Now()
	epicID := int64(1)
	e.Store.tasks = []types.Task{
		{ID: epicID, Title: "Big Epic", Status: "open", Type: "epic", CreatedAt: daysAgo(now, 90), UpdatedAt: daysAgo(now, 90)},
		{ID: 2, Title: "Child", Status: "open", Type: "task", ParentID: &epicID, CreatedAt: daysAgo(now, 60), UpdatedAt: daysAgo(now, 45)},
	}

	report, err := Drift(e.Ctx, e.Store, DriftOptions{StaleDays: 30, Now: now})
	if err != nil {
		t.Fatalf("Drift failed: %v", err)
	}
	if len(report.StaleEpics) != 1 || report.StaleEpics[0].TaskID != epicID {
		t.Errorf("stale epics = %+v", report.StaleEpics)
	}
}

func TestDriftOrphanedActiveTasks(t *testing.T) {
	e := newTestEnv(t)
	now := time.Now()
	docID := e.saveDoc("Plan", "content")
	e.Store.tasks = []types.Task{
		{ID: 1, Title: "Idle active", Status: "active", Type: "task", SourceDocID: &docID, CreatedAt: daysAgo(now, 40), UpdatedAt: daysAgo(now, 20)},
		{ID: 2, Title: "Recently touched", Status: "active", Type: "task", CreatedAt: daysAgo(now, 40), UpdatedAt: daysAgo(now, 2)},
	}

	report, err := Drift(e.Ctx, e.Store, DriftOptions{StaleDays: 30, Now: now})
	if err != nil {
		t.Fatal(err)
	}
	// Orphan threshold is max(30/2, 7) = 15 days.
	if len(report.OrphanedTasks) != 1 || report.OrphanedTasks[0].TaskID != 1 {
		t.Errorf("orphaned = %+v", report.OrphanedTasks)
	}
	if len(report.StaleDocs) != 1 || report.StaleDocs[0].DocumentID != docID {
		t.Errorf("stale docs = %+v", report.StaleDocs)
	}
}

func TestDriftBurstEpics(t *testing.T) {
	e := newTestEnv(t)
	now := time.Now()
	epicID := int64(1)
	e.Store.tasks = []types.Task{
		{ID: epicID, Title: "Burst", Status: "open", Type: "epic", CreatedAt: daysAgo(now, 90), UpdatedAt: daysAgo(now, 90)},
		{ID: 2, Status: "open", Type: "task", ParentID: &epicID, CreatedAt: daysAgo(now, 90), UpdatedAt: daysAgo(now, 88)},
		{ID: 3, Status: "open", Type: "task", ParentID: &epicID, CreatedAt: daysAgo(now, 89), UpdatedAt: daysAgo(now, 85)},
		{ID: 4, Status: "open", Type: "task", ParentID: &epicID, CreatedAt: daysAgo(now, 87), UpdatedAt: daysAgo(now, 84)},
	}

	report, err := Drift(e.Ctx, e.Store, DriftOptions{StaleDays: 30, Now: now})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.BurstEpics) != 1 || report.BurstEpics[0].TaskID != epicID {
		t.Errorf("burst epics = %+v", report.BurstEpics)
	}
}

func TestGapsTagGapsAndOrphans(t *testing.T) {
	e := newTestEnv(t)
	// "common" on 4 docs, "rare" on 1: mean 2.5, rare is below half.
	a := e.saveDoc("A", "content", "common")
	b := e.saveDoc("B", "content", "common")
	e.saveDoc("C", "content", "common")
	e.saveDoc("D", "content", "common", "rare")
	if _, err := e.Store.CreateLink(e.Ctx, a, b, 1.0, types.MethodManual); err != nil {
		t.Fatal(err)
	}

	report, err := Gaps(e.Ctx, e.Store, GapOptions{})
	if err != nil {
		t.Fatalf("Gaps failed: %v", err)
	}
	if len(report.TagGaps) != 1 || report.TagGaps[0].Subject != "rare" {
		t.Errorf("tag gaps = %+v", report.TagGaps)
	}
	if report.TagGaps[0].Severity != "high" {
		t.Errorf("single-doc tag should be high severity: %+v", report.TagGaps[0])
	}
	// C and D have no links.
	if len(report.OrphanDocs) != 2 {
		t.Errorf("orphans = %+v", report.OrphanDocs)
	}
}

func TestGapsLinkSinks(t *testing.T) {
	e := newTestEnv(t)
	sink := e.saveDoc("Sink", "content")
	a := e.saveDoc("A", "content")
	b := e.saveDoc("B", "content")
	if _, err := e.Store.CreateLink(e.Ctx, a, sink, 1.0, types.MethodManual); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Store.CreateLink(e.Ctx, b, sink, 1.0, types.MethodManual); err != nil {
		t.Fatal(err)
	}

	report, err := Gaps(e.Ctx, e.Store, GapOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.LinkSinks) != 1 || report.LinkSinks[0].Subject != "Sink" {
		t.Errorf("link sinks = %+v", report.LinkSinks)
	}
}

func TestGapsProjectImbalance(t *testing.T) {
	e := newTestEnv(t)
	if _, err := e.Store.SaveDocument(e.Ctx, "Doc", "content", storage.SaveOptions{Project: "busy"}); err != nil {
		t.Fatal(err)
	}
	e.Store.tasks = make([]types.Task, 10)
	for i := range e.Store.tasks {
		e.Store.tasks[i] = types.Task{ID: int64(i + 1), Status: "open", Type: "task", Project: "busy"}
	}

	report, err := Gaps(e.Ctx, e.Store, GapOptions{})
	if err != nil {
		t.Fatal(err)
	}
	// 1 doc / 10 tasks = 0.1 < 0.2: high severity.
	if len(report.Imbalances) != 1 || report.Imbalances[0].Severity != "high" {
		t.Errorf("imbalances = %+v", report.Imbalances)
	}
}
