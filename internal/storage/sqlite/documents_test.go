package sqlite

import (
	"testing"

	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/types"
)

func TestSaveAndGetDocument(t *testing.T) {
	e := newTestEnv(t)

	id, err := e.Store.SaveDocument(e.Ctx, "Falcon Scheduler Design", "## Pipeline\n\nDetails.", storage.SaveOptions{
		Project: "falcon",
		Tags:    []string{"design", "Active"},
	})
	if err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}

	doc, err := e.Store.GetDocument(e.Ctx, id)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if doc == nil {
		t.Fatal("expected document, got nil")
	}
	if doc.Title != "Falcon Scheduler Design" {
		t.Errorf("title = %q", doc.Title)
	}
	if doc.Project != "falcon" {
		t.Errorf("project = %q", doc.Project)
	}
	if doc.Kind != types.KindUser {
		t.Errorf("kind = %q, want user", doc.Kind)
	}

	tags, err := e.Store.GetTags(e.Ctx, id)
	if err != nil {
		t.Fatalf("GetTags failed: %v", err)
	}
	if len(tags) != 2 || tags[0] != "active" || tags[1] != "design" {
		t.Errorf("tags = %v, want [active design]", tags)
	}
}

func TestGetDocumentUnknownID(t *testing.T) {
	e := newTestEnv(t)
	doc, err := e.Store.GetDocument(e.Ctx, 9999)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil for unknown id, got %+v", doc)
	}
}

func TestGetDocumentByTitle(t *testing.T) {
	e := newTestEnv(t)
	e.SaveDoc("Alpha", "first")
	id2 := e.SaveDoc("Alpha", "second")

	doc, err := e.Store.GetDocumentByTitle(e.Ctx, "Alpha")
	if err != nil {
		t.Fatalf("GetDocumentByTitle failed: %v", err)
	}
	if doc == nil || doc.ID != id2 {
		t.Errorf("expected newest doc %d, got %+v", id2, doc)
	}
}

func TestUpdateDocument(t *testing.T) {
	e := newTestEnv(t)
	id := e.SaveDoc("Before", "old content")

	ok, err := e.Store.UpdateDocument(e.Ctx, id, "After", "new content")
	if err != nil || !ok {
		t.Fatalf("UpdateDocument = %v, %v", ok, err)
	}
	doc, _ := e.Store.GetDocument(e.Ctx, id)
	if doc.Title != "After" || doc.Content != "new content" {
		t.Errorf("got %q / %q", doc.Title, doc.Content)
	}

	ok, err = e.Store.UpdateDocument(e.Ctx, 9999, "X", "Y")
	if err != nil {
		t.Fatalf("UpdateDocument unknown id errored: %v", err)
	}
	if ok {
		t.Error("expected false for unknown id")
	}
}

func TestSoftDeleteRestoreRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	id := e.SaveDoc("Python Notes", "All about Python testing")

	ok, err := e.Store.DeleteDocument(e.Ctx, id, false)
	if err != nil || !ok {
		t.Fatalf("DeleteDocument = %v, %v", ok, err)
	}

	// Invisible everywhere
	if doc, _ := e.Store.GetDocument(e.Ctx, id); doc != nil {
		t.Error("soft-deleted doc visible via GetDocument")
	}
	if items, _ := e.Store.ListDocuments(e.Ctx, "", 10); len(items) != 0 {
		t.Errorf("soft-deleted doc visible in list: %v", items)
	}
	if results := e.Search("Python"); len(results) != 0 {
		t.Errorf("soft-deleted doc visible in search: %v", results)
	}

	// Double soft delete returns false without error
	ok, err = e.Store.DeleteDocument(e.Ctx, id, false)
	if err != nil {
		t.Fatalf("second delete errored: %v", err)
	}
	if ok {
		t.Error("second soft delete should return false")
	}

	// Restore brings it back with unchanged content
	ok, err = e.Store.RestoreDocument(e.Ctx, id)
	if err != nil || !ok {
		t.Fatalf("RestoreDocument = %v, %v", ok, err)
	}
	doc, _ := e.Store.GetDocument(e.Ctx, id)
	if doc == nil || doc.Content != "All about Python testing" {
		t.Fatalf("restored doc = %+v", doc)
	}
	if results := e.Search("Python"); len(results) != 1 {
		t.Errorf("restored doc missing from search: %v", results)
	}
}

func TestHardDeleteCascades(t *testing.T) {
	e := newTestEnv(t)
	a := e.SaveDoc("Doc A", "content a")
	b := e.SaveDoc("Doc B", "content b")
	e.Link(a, b, types.MethodManual)
	if _, err := e.Store.SaveEntities(e.Ctx, a, []types.DocumentEntity{
		{Entity: "event loop", Type: "tech_term", Confidence: 0.9},
	}); err != nil {
		t.Fatalf("SaveEntities failed: %v", err)
	}

	ok, err := e.Store.DeleteDocument(e.Ctx, a, true)
	if err != nil || !ok {
		t.Fatalf("hard delete = %v, %v", ok, err)
	}

	if n, _ := e.Store.GetLinkCount(e.Ctx, b); n != 0 {
		t.Errorf("links not cascaded, count = %d", n)
	}
	if ents, _ := e.Store.GetEntities(e.Ctx, a); len(ents) != 0 {
		t.Errorf("entities not cascaded: %v", ents)
	}
}

func TestListDeletedAndPurge(t *testing.T) {
	e := newTestEnv(t)
	id := e.SaveDoc("Gone", "bye")
	e.SaveDoc("Kept", "hi")
	if _, err := e.Store.DeleteDocument(e.Ctx, id, false); err != nil {
		t.Fatal(err)
	}

	deleted, err := e.Store.ListDeleted(e.Ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListDeleted failed: %v", err)
	}
	if len(deleted) != 1 || deleted[0].ID != id {
		t.Fatalf("deleted = %v", deleted)
	}

	n, err := e.Store.PurgeDeleted(e.Ctx, 0)
	if err != nil {
		t.Fatalf("PurgeDeleted failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	if deleted, _ := e.Store.ListDeleted(e.Ctx, 0, 10); len(deleted) != 0 {
		t.Errorf("still deleted rows: %v", deleted)
	}
}

func TestFlushAccessCounts(t *testing.T) {
	e := newTestEnv(t)
	a := e.SaveDoc("A", "a")
	b := e.SaveDoc("B", "b")

	err := e.Store.FlushAccessCounts(e.Ctx, map[int64]int64{a: 3, b: 1})
	if err != nil {
		t.Fatalf("FlushAccessCounts failed: %v", err)
	}

	doc, _ := e.Store.GetDocument(e.Ctx, a)
	if doc.AccessCount != 3 {
		t.Errorf("access_count = %d, want 3", doc.AccessCount)
	}
	if doc.AccessedAt == nil {
		t.Error("accessed_at not set")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	// Run twice against the same handle; versions prevent re-execution and
	// the migrations themselves tolerate reapplication.
	if err := RunMigrations(e.Store.db); err != nil {
		t.Fatalf("second RunMigrations failed: %v", err)
	}
	var version int
	if err := e.Store.db.QueryRow(`SELECT version FROM schema_version WHERE id = 1`).Scan(&version); err != nil {
		t.Fatal(err)
	}
	if want := migrationsList[len(migrationsList)-1].ID; version != want {
		t.Errorf("schema version = %d, want %d", version, want)
	}
}
