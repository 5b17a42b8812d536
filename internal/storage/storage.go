// Package storage defines the interface for document storage backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/untoldecay/DocLoom/internal/types"
)

// ErrNotFound is returned when a document, topic, or article does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert would violate a uniqueness
// constraint that callers are expected to handle (e.g. topic slugs).
// Duplicate link inserts do NOT return this; they return a nil id.
var ErrDuplicate = errors.New("duplicate")

// SaveOptions carries the optional fields of SaveDocument.
type SaveOptions struct {
	Project  string
	Tags     []string
	ParentID *int64
	Kind     types.DocKind // defaults to KindUser
}

// Storage is the contract the engine programs against. The SQLite
// implementation is the only production backend; tests may substitute fakes
// for narrow slices of it.
type Storage interface {
	// Documents
	SaveDocument(ctx context.Context, title, content string, opts SaveOptions) (int64, error)
	GetDocument(ctx context.Context, id int64) (*types.Document, error)
	GetDocumentByTitle(ctx context.Context, title string) (*types.Document, error)
	UpdateDocument(ctx context.Context, id int64, title, content string) (bool, error)
	UpdateDocumentTitle(ctx context.Context, id int64, title string) (bool, error)
	DeleteDocument(ctx context.Context, id int64, hard bool) (bool, error)
	ListDocuments(ctx context.Context, project string, limit int) ([]types.DocumentListItem, error)
	ListDeleted(ctx context.Context, days int, limit int) ([]types.DocumentListItem, error)
	RestoreDocument(ctx context.Context, id int64) (bool, error)
	PurgeDeleted(ctx context.Context, olderThanDays int) (int, error)

	// Full-text search
	SearchDocuments(ctx context.Context, query string, opts types.SearchOptions) ([]types.SearchResult, error)

	// Tags
	AddTags(ctx context.Context, docID int64, tags []string) error
	RemoveTags(ctx context.Context, docID int64, tags []string) error
	GetTags(ctx context.Context, docID int64) ([]string, error)
	ListTags(ctx context.Context) ([]types.Tag, error)

	// Links
	CreateLink(ctx context.Context, src, dst int64, score float64, method types.LinkMethod) (*int64, error)
	CreateLinksBatch(ctx context.Context, links []types.Link) (int, error)
	LinkExists(ctx context.Context, a, b int64) (bool, error)
	DeleteLink(ctx context.Context, a, b int64) (bool, error)
	DeleteLinksForDocument(ctx context.Context, docID int64) (int, error)
	DeleteLinksByMethod(ctx context.Context, method types.LinkMethod) (int, error)
	GetLinksForDocument(ctx context.Context, docID int64) ([]types.Link, error)
	GetLinkedDocIDs(ctx context.Context, docID int64) ([]int64, error)
	GetLinkCount(ctx context.Context, docID int64) (int, error)
	BatchGetLinkCounts(ctx context.Context, docIDs []int64) (map[int64]int, error)

	// Entities
	SaveEntities(ctx context.Context, docID int64, entities []types.DocumentEntity) (int, error)
	SaveEntityRelationships(ctx context.Context, docID int64, rels []types.EntityRelationship) (int, error)
	GetEntities(ctx context.Context, docID int64) ([]types.DocumentEntity, error)
	GetAllEntities(ctx context.Context) ([]types.DocumentEntity, error)
	FindDocsWithEntity(ctx context.Context, entity string, project string) ([]int64, error)
	DeleteEntities(ctx context.Context, docID int64) (int, error)

	// Wiki topics and articles
	ReplaceTopics(ctx context.Context, topics []types.WikiTopic, members map[int][]types.WikiTopicMember) error
	GetTopics(ctx context.Context) ([]types.WikiTopic, error)
	GetTopic(ctx context.Context, id int64) (*types.WikiTopic, error)
	GetTopicBySlug(ctx context.Context, slug string) (*types.WikiTopic, error)
	GetTopicDocs(ctx context.Context, topicID int64) ([]int64, error)
	GetTopicMembers(ctx context.Context, topicID int64) ([]types.WikiTopicMember, error)
	UpdateTopic(ctx context.Context, topic *types.WikiTopic) error
	CreateTopic(ctx context.Context, topic *types.WikiTopic, members []types.WikiTopicMember) (int64, error)
	DeleteTopic(ctx context.Context, id int64) error
	SetTopicMember(ctx context.Context, m types.WikiTopicMember) error
	MoveTopicMembers(ctx context.Context, fromTopic, toTopic int64, docIDs []int64) error

	GetArticleByTopic(ctx context.Context, topicID int64) (*types.WikiArticle, error)
	InsertArticle(ctx context.Context, a *types.WikiArticle, sources []types.WikiArticleSource) (int64, error)
	UpdateArticle(ctx context.Context, a *types.WikiArticle, newContent string, sources []types.WikiArticleSource) error
	GetArticleSources(ctx context.Context, articleID int64) ([]types.WikiArticleSource, error)
	DeleteArticle(ctx context.Context, articleID int64) error
	MarkArticlesStale(ctx context.Context, docID int64, reason string) (int, error)
	MarkTopicStale(ctx context.Context, topicID int64, reason string) error
	RateArticle(ctx context.Context, topicID int64, rating int, at time.Time) error

	CreateWikiRun(ctx context.Context, model string, dryRun bool) (int64, error)
	CompleteWikiRun(ctx context.Context, run *types.WikiRun) error
	ListWikiRuns(ctx context.Context, limit int) ([]types.WikiRun, error)

	// Tasks (read-only, external collaborator)
	ListTasks(ctx context.Context) ([]types.Task, error)

	// Access counting (write-behind flush target)
	FlushAccessCounts(ctx context.Context, counts map[int64]int64) error

	Close() error
}
