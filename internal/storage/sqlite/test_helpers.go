package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/types"
)

// testEnv provides a test environment with an ephemeral store and helpers.
type testEnv struct {
	t     *testing.T
	Store *Store
	Ctx   context.Context
}

// newTestEnv creates a store at a temp path with automatic cleanup.
// The process default store is never touched.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loom.db")
	store, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open(%q) failed: %v", path, err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return &testEnv{t: t, Store: store, Ctx: context.Background()}
}

// SaveDoc saves a document with defaults and returns its id.
func (e *testEnv) SaveDoc(title, content string) int64 {
	e.t.Helper()
	id, err := e.Store.SaveDocument(e.Ctx, title, content, storage.SaveOptions{})
	if err != nil {
		e.t.Fatalf("SaveDocument(%q) failed: %v", title, err)
	}
	return id
}

// SaveDocIn saves a document in a project.
func (e *testEnv) SaveDocIn(title, content, project string) int64 {
	e.t.Helper()
	id, err := e.Store.SaveDocument(e.Ctx, title, content, storage.SaveOptions{Project: project})
	if err != nil {
		e.t.Fatalf("SaveDocument(%q) failed: %v", title, err)
	}
	return id
}

// Search runs a search with default options.
func (e *testEnv) Search(query string) []types.SearchResult {
	e.t.Helper()
	results, err := e.Store.SearchDocuments(e.Ctx, query, types.SearchOptions{})
	if err != nil {
		e.t.Fatalf("SearchDocuments(%q) failed: %v", query, err)
	}
	return results
}

// Link creates a link and fails the test on error (not on duplicates).
func (e *testEnv) Link(src, dst int64, method types.LinkMethod) *int64 {
	e.t.Helper()
	id, err := e.Store.CreateLink(e.Ctx, src, dst, 1.0, method)
	if err != nil {
		e.t.Fatalf("CreateLink(%d, %d) failed: %v", src, dst, err)
	}
	return id
}
