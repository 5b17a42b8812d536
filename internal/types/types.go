// Package types defines the core data structures for DocLoom.
package types

import "time"

// DocKind discriminates user-authored documents from generated ones.
type DocKind string

const (
	KindUser      DocKind = "user"
	KindWiki      DocKind = "wiki"
	KindSynthesis DocKind = "synthesis"
)

// LinkMethod records how a document link was discovered.
type LinkMethod string

const (
	MethodTitleMatch  LinkMethod = "title_match"
	MethodEntityMatch LinkMethod = "entity_match"
	MethodAuto        LinkMethod = "auto"
	MethodManual      LinkMethod = "manual"
)

// TopicStatus is the editorial state of a wiki topic.
type TopicStatus string

const (
	TopicActive  TopicStatus = "active"
	TopicSkipped TopicStatus = "skipped"
	TopicPinned  TopicStatus = "pinned"
)

/// Document is the primary unit of storage: one markdown document.
type Document struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Project     string     `json:"project,omitempty"`
	Kind        DocKind    `json:"doc_type"`
	ParentID    *int64     `json:"parent_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	AccessedAt  *time.Time `json:"accessed_at,omitempty"`
	AccessCount int64      `json:"access_count"`
	IsDeleted   bool       `json:"is_deleted,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// DocumentListItem is the lightweight row returned by list queries.
type DocumentListItem struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Project     string    `json:"project,omitempty"`
	Kind        DocKind   `json:"doc_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	AccessCount int64     `json:"access_count"`
}

// Tag is an interned tag name with its usage count.
type Tag struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	UseCount int64  `json:"use_count"`
}

// SearchOptions filters a full-text search. All filters AND together.
// Kinds defaults to user documents only; AllKinds lifts the filter entirely.
type SearchOptions struct {
	Project       *string     `json:"project,omitempty"`
	CreatedAfter  *time.Time  `json:"created_after,omitempty"`
	CreatedBefore *time.Time  `json:"created_before,omitempty"`
	UpdatedAfter  *time.Time  `json:"updated_after,omitempty"`
	UpdatedBefore *time.Time  `json:"updated_before,omitempty"`
	Kinds         []DocKind   `json:"doc_types,omitempty"`
	AllKinds      bool        `json:"all_kinds,omitempty"`
	Limit         int         `json:"limit,omitempty"`
}

// SearchResult is one full-text search hit. Rank is the engine-native
// relevance (lower is better); nil for wildcard results.
type SearchResult struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Project   string    `json:"project,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Snippet   string    `json:"snippet,omitempty"`
	Rank      *float64  `json:"rank,omitempty"`
}

// Link is a directed edge between two documents. The relation is queried
/// bidirectionally: a link exists between a and b if either direction exists.
type Link struct {
	ID          int64      `json:"id"`
	SourceID    int64      `json:"source_id"`
	TargetID    int64      `json:"target_id"`
	Score       float64    `json:"score"`
	Method      LinkMethod `json:"method"`
	CreatedAt   time.Time  `json:"created_at"`
	SourceTitle string     `json:"source_title,omitempty"`
	TargetTitle string     `json:"target_title,omitempty"`
}

// DocumentEntity is a normalized entity string extracted from a document.
type DocumentEntity struct {
	ID         int64   `json:"id"`
	DocumentID int64   `json:"document_id"`
	Entity     string  `json:"entity"`
	Type       string  `json:"entity_type"`
	Confidence float64 `json:"confidence"`
}

// EntityRelationship is a typed edge between two entities found in the same
// document (LLM extraction path only).
type EntityRelationship struct {
	ID         int64   `json:"id"`
	DocumentID int64   `json:"document_id"`
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"relationship_type"`
	Confidence float64 `json:"confidence"`
}

// WikiTopic is a discovered document cluster that backs one wiki article.
type WikiTopic struct {
	ID              int64       `json:"id"`
	Slug            string      `json:"slug"`
	Label           string      `json:"label"`
	Entities        []string    `json:"entities,omitempty"`
	Fingerprint     string      `json:"fingerprint"`
	Coherence       float64     `json:"coherence_score"`
	Status          TopicStatus `json:"status"`
	ModelOverride   string      `json:"model_override,omitempty"`
	EditorialPrompt string      `json:"editorial_prompt,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	MemberCount     int         `json:"member_count,omitempty"`
}

// WikiTopicMember associates a document with a topic. Excluded members
// (IsPrimary false) stay recorded but are skipped during synthesis.
type WikiTopicMember struct {
	TopicID    int64   `json:"topic_id"`
	DocumentID int64   `json:"document_id"`
	Relevance  float64 `json:"relevance_score"`
	IsPrimary  bool    `json:"is_primary"`
}

// WikiArticleTiming holds per-step pipeline timings in milliseconds.
type WikiArticleTiming struct {
	PrepareMS  int64 `json:"prepare_ms"`
	RouteMS    int64 `json:"route_ms"`
	OutlineMS  int64 `json:"outline_ms"`
	WriteMS    int64 `json:"write_ms"`
	ValidateMS int64 `json:"validate_ms"`
	SaveMS     int64 `json:"save_ms"`
}

// WikiArticle is the metadata row for a generated article. The rendered
// content lives in the referenced Document (kind "wiki").
type WikiArticle struct {
	ID              int64             `json:"id"`
	TopicID         int64             `json:"topic_id"`
	DocumentID      int64             `json:"document_id"`
	SourceHash      string            `json:"source_hash"`
	Model           string            `json:"model"`
	InputTokens     int64             `json:"input_tokens"`
	OutputTokens    int64             `json:"output_tokens"`
	CostUSD         float64           `json:"cost_usd"`
	Version         int               `json:"version"`
	IsStale         bool              `json:"is_stale"`
	StaleReason     string            `json:"stale_reason,omitempty"`
	PreviousContent string            `json:"-"`
	Rating          *int              `json:"rating,omitempty"`
	RatedAt         *time.Time        `json:"rated_at,omitempty"`
	Timing          WikiArticleTiming `json:"timing"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// WikiArticleSource is one provenance row: the content hash a contributing
// document had when the article was generated.
type WikiArticleSource struct {
	ArticleID   int64  `json:"article_id"`
	DocumentID  int64  `json:"document_id"`
	ContentHash string `json:"content_hash"`
}

// WikiRun records one batch generation pass.
type WikiRun struct {
	ID           int64      `json:"id"`
	Model        string     `json:"model"`
	DryRun       bool       `json:"dry_run"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Attempted    int        `json:"attempted"`
	Generated    int        `json:"generated"`
	Skipped      int        `json:"skipped"`
	InputTokens  int64      `json:"input_tokens"`
	OutputTokens int64      `json:"output_tokens"`
	CostUSD      float64    `json:"cost_usd"`
}

// Task is the external task row read by the drift and gap analyzers.
// The core never mutates tasks.
type Task struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Status      string    `json:"status"`
	Type        string    `json:"task_type"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	EpicKey     string    `json:"epic_key,omitempty"`
	SourceDocID *int64    `json:"source_doc_id,omitempty"`
	Project     string    `json:"project,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
