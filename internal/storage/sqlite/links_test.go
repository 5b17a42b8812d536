package sqlite

import (
	"testing"

	"github.com/untoldecay/DocLoom/internal/types"
)

func TestCreateLinkIdempotentBidirectional(t *testing.T) {
	e := newTestEnv(t)
	a := e.SaveDoc("A", "a")
	b := e.SaveDoc("B", "b")

	id := e.Link(a, b, types.MethodManual)
	if id == nil {
		t.Fatal("first link returned nil id")
	}

	// Same direction: no-op
	if dup := e.Link(a, b, types.MethodManual); dup != nil {
		t.Error("duplicate same-direction link inserted")
	}
	// Reverse direction: still a duplicate
	if dup := e.Link(b, a, types.MethodManual); dup != nil {
		t.Error("duplicate reverse-direction link inserted")
	}

	exists, err := e.Store.LinkExists(e.Ctx, b, a)
	if err != nil || !exists {
		t.Errorf("LinkExists(b, a) = %v, %v", exists, err)
	}
	if n, _ := e.Store.GetLinkCount(e.Ctx, a); n != 1 {
		t.Errorf("link count = %d, want 1", n)
	}
}

func TestCreateLinkSelfRejected(t *testing.T) {
	e := newTestEnv(t)
	a := e.SaveDoc("A", "a")
	if id := e.Link(a, a, types.MethodManual); id != nil {
		t.Error("self-link inserted")
	}
	if n, _ := e.Store.GetLinkCount(e.Ctx, a); n != 0 {
		t.Errorf("link count = %d after self-link attempt", n)
	}
}

func TestCreateLinksBatch(t *testing.T) {
	e := newTestEnv(t)
	a := e.SaveDoc("A", "a")
	b := e.SaveDoc("B", "b")
	c := e.SaveDoc("C", "c")
	e.Link(a, b, types.MethodManual)

	n, err := e.Store.CreateLinksBatch(e.Ctx, []types.Link{
		{SourceID: b, TargetID: a, Score: 0.9, Method: types.MethodTitleMatch}, // dup reversed
		{SourceID: a, TargetID: c, Score: 0.8, Method: types.MethodTitleMatch},
		{SourceID: c, TargetID: c, Score: 0.8, Method: types.MethodTitleMatch}, // self
		{SourceID: b, TargetID: c, Score: 0.7, Method: types.MethodTitleMatch},
	})
	if err != nil {
		t.Fatalf("CreateLinksBatch failed: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}
}

func TestGetLinksForDocumentExcludesDeletedEndpoints(t *testing.T) {
	e := newTestEnv(t)
	a := e.SaveDoc("A", "a")
	b := e.SaveDoc("B", "b")
	c := e.SaveDoc("C", "c")
	e.Link(a, b, types.MethodManual)
	e.Link(a, c, types.MethodManual)

	if _, err := e.Store.DeleteDocument(e.Ctx, c, false); err != nil {
		t.Fatal(err)
	}

	links, err := e.Store.GetLinksForDocument(e.Ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("links = %v, want 1", links)
	}
	if links[0].SourceTitle != "A" || links[0].TargetTitle != "B" {
		t.Errorf("titles = %q -> %q", links[0].SourceTitle, links[0].TargetTitle)
	}

	ids, err := e.Store.GetLinkedDocIDs(e.Ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != b {
		t.Errorf("neighbor ids = %v, want [%d]", ids, b)
	}
}

func TestDeleteLinkUndirected(t *testing.T) {
	e := newTestEnv(t)
	a := e.SaveDoc("A", "a")
	b := e.SaveDoc("B", "b")
	e.Link(a, b, types.MethodManual)

	ok, err := e.Store.DeleteLink(e.Ctx, b, a)
	if err != nil || !ok {
		t.Fatalf("DeleteLink reversed = %v, %v", ok, err)
	}
	if exists, _ := e.Store.LinkExists(e.Ctx, a, b); exists {
		t.Error("link still exists after delete")
	}
}

func TestBatchGetLinkCountsIncludesZeros(t *testing.T) {
	e := newTestEnv(t)
	a := e.SaveDoc("A", "a")
	b := e.SaveDoc("B", "b")
	c := e.SaveDoc("C", "c")
	e.Link(a, b, types.MethodManual)

	counts, err := e.Store.BatchGetLinkCounts(e.Ctx, []int64{a, b, c})
	if err != nil {
		t.Fatal(err)
	}
	if counts[a] != 1 || counts[b] != 1 || counts[c] != 0 {
		t.Errorf("counts = %v", counts)
	}
}

func TestDeleteLinksByMethod(t *testing.T) {
	e := newTestEnv(t)
	a := e.SaveDoc("A", "a")
	b := e.SaveDoc("B", "b")
	c := e.SaveDoc("C", "c")
	if _, err := e.Store.CreateLink(e.Ctx, a, b, 0.8, types.MethodEntityMatch); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Store.CreateLink(e.Ctx, a, c, 1.0, types.MethodManual); err != nil {
		t.Fatal(err)
	}

	n, err := e.Store.DeleteLinksByMethod(e.Ctx, types.MethodEntityMatch)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if exists, _ := e.Store.LinkExists(e.Ctx, a, c); !exists {
		t.Error("manual link should survive")
	}
}
