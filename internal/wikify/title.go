// Package wikify discovers links between documents: by title mention, by
// shared extracted entities, and by embedding similarity.
package wikify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/types"
)

const minTitleLength = 4

// Titles too generic to ever be a useful link target.
var titleStopwords = map[string]bool{
	"notes": true, "note": true, "todo": true, "todos": true,
	"readme": true, "docs": true, "doc": true, "misc": true,
	"scratch": true, "draft": true, "ideas": true, "untitled": true,
	"index": true, "home": true, "inbox": true, "journal": true,
}

// Options controls a wikify run.
type Options struct {
	DryRun       bool
	CrossProject bool
}

// Match is one title occurrence found during a run.
type Match struct {
	TargetID    int64  `json:"target_id"`
	TargetTitle string `json:"target_title"`
}

// Result summarizes a wikify run for one document.
type Result struct {
	DocumentID      int64   `json:"document_id"`
	LinksCreated    int     `json:"links_created"`
	TargetIDs       []int64 `json:"target_ids,omitempty"`
	ExistingSkipped int     `json:"existing_skipped"`
	Matches         []Match `json:"matches,omitempty"`
}

type candidate struct {
	id      int64
	title   string
	project string
	re      *regexp.Regexp
}

// normalizeTitle lowercases and strips punctuation from the ends, keeping
// internal punctuation and apostrophes.
func normalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	return strings.Trim(t, ".,:;!?\"()[]{}#*_- ")
}

// buildCandidates compiles a word-boundary matcher per eligible title so
// "auth" never matches inside "authorization".
func buildCandidates(docs []types.DocumentListItem) []candidate {
	out := make([]candidate, 0, len(docs))
	for _, d := range docs {
		norm := normalizeTitle(d.Title)
		if len(norm) < minTitleLength || titleStopwords[norm] {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(norm) + `\b`)
		if err != nil {
			continue
		}
		out = append(out, candidate{id: d.ID, title: d.Title, project: d.Project, re: re})
	}
	return out
}

// projectEligible applies the scoping rule: same project only by default,
// any project with crossProject. Documents without a project never
// cross-match unless crossProject is set.
func projectEligible(docProject, candProject string, crossProject bool) bool {
	if crossProject {
		return true
	}
	if docProject == "" || candProject == "" {
		return docProject == candProject
	}
	return docProject == candProject
}

// Wikify scans one document's content for mentions of other documents'
// titles and links each mention with method title_match.
func Wikify(ctx context.Context, store storage.Storage, docID int64, opts Options) (*Result, error) {
	doc, err := store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %d: %w", docID, storage.ErrNotFound)
	}

	all, err := store.ListDocuments(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	candidates := buildCandidates(all)

	result := &Result{DocumentID: docID}
	var links []types.Link
	for _, c := range candidates {
		if c.id == docID {
			continue
		}
		if !projectEligible(doc.Project, c.project, opts.CrossProject) {
			continue
		}
		if !c.re.MatchString(doc.Content) {
			continue
		}
		exists, err := store.LinkExists(ctx, docID, c.id)
		if err != nil {
			return nil, err
		}
		if exists {
			result.ExistingSkipped++
			continue
		}
		result.Matches = append(result.Matches, Match{TargetID: c.id, TargetTitle: c.title})
		links = append(links, types.Link{
			SourceID: docID,
			TargetID: c.id,
			Score:    1.0,
			Method:   types.MethodTitleMatch,
		})
	}

	if opts.DryRun || len(links) == 0 {
		return result, nil
	}

	n, err := store.CreateLinksBatch(ctx, links)
	if err != nil {
		return nil, err
	}
	result.LinksCreated = n
	for _, l := range links {
		result.TargetIDs = append(result.TargetIDs, l.TargetID)
	}
	return result, nil
}

// AllResult aggregates a corpus-wide wikify run.
type AllResult struct {
	Documents       int `json:"documents"`
	LinksCreated    int `json:"links_created"`
	ExistingSkipped int `json:"existing_skipped"`
}

// WikifyAll runs Wikify over every non-deleted document.
func WikifyAll(ctx context.Context, store storage.Storage, opts Options) (*AllResult, error) {
	docs, err := store.ListDocuments(ctx, "", 0)
	if err != nil {
		return nil, err
	}

	agg := &AllResult{}
	for _, d := range docs {
		r, err := Wikify(ctx, store, d.ID, opts)
		if err != nil {
			return nil, fmt.Errorf("wikify document %d: %w", d.ID, err)
		}
		agg.Documents++
		agg.LinksCreated += r.LinksCreated
		agg.ExistingSkipped += r.ExistingSkipped
	}
	return agg, nil
}
