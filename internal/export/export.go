// Package export renders the wiki as a static-site source tree: mkdocs.yml,
// docs/index.md, one file per article under docs/articles/, and one page
// per tier-A glossary entity under docs/entities/.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/untoldecay/DocLoom/internal/cluster"
	"github.com/untoldecay/DocLoom/internal/glossary"
	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/types"
)

// Options configures an export run.
type Options struct {
	Dir     string // output root; docs/ and mkdocs.yml land here
	TopicID int64  // when > 0, export only that article and skip the index/entity/config pass
	Site    string // site name; defaults to "Wiki"
}

// Result reports what was written.
type Result struct {
	Articles int      `json:"articles"`
	Entities int      `json:"entities"`
	Files    []string `json:"files"`
	Dir      string   `json:"dir"`
}

type articlePage struct {
	topic   types.WikiTopic
	article *types.WikiArticle
	content string
	path    string
}

// Run writes the site tree. Articles for skipped topics are omitted.
func Run(ctx context.Context, store storage.Storage, opts Options) (*Result, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("export directory is required")
	}
	if opts.Site == "" {
		opts.Site = "Wiki"
	}
	articlesDir := filepath.Join(opts.Dir, "docs", "articles")
	if err := os.MkdirAll(articlesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	topics, err := store.GetTopics(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{Dir: opts.Dir}
	var pages []articlePage
	for _, topic := range topics {
		if topic.Status == types.TopicSkipped {
			continue
		}
		if opts.TopicID > 0 && topic.ID != opts.TopicID {
			continue
		}
		article, err := store.GetArticleByTopic(ctx, topic.ID)
		if err != nil {
			return nil, err
		}
		if article == nil {
			continue
		}
		doc, err := store.GetDocument(ctx, article.DocumentID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		pages = append(pages, articlePage{
			topic:   topic,
			article: article,
			content: doc.Content,
			path:    filepath.Join(articlesDir, topic.Slug+".md"),
		})
	}
	if opts.TopicID > 0 && len(pages) == 0 {
		return nil, fmt.Errorf("article for topic %d: %w", opts.TopicID, storage.ErrNotFound)
	}

	for _, p := range pages {
		sources, err := store.GetArticleSources(ctx, p.article.ID)
		if err != nil {
			return nil, err
		}
		md, err := renderArticle(p, sources)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(p.path, []byte(md), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", p.path, err)
		}
		result.Articles++
		result.Files = append(result.Files, p.path)
	}

	// Single-article export skips the index, entity, and config pass.
	if opts.TopicID > 0 {
		return result, nil
	}

	entityPages, err := exportEntities(ctx, store, opts.Dir)
	if err != nil {
		return nil, err
	}
	result.Entities = len(entityPages)
	result.Files = append(result.Files, entityPages...)

	indexPath := filepath.Join(opts.Dir, "docs", "index.md")
	if err := os.WriteFile(indexPath, []byte(renderSiteIndex(opts.Site, pages)), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write index: %w", err)
	}
	result.Files = append(result.Files, indexPath)

	configPath := filepath.Join(opts.Dir, "mkdocs.yml")
	cfg, err := renderSiteConfig(opts.Site, pages, result.Entities > 0)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(configPath, cfg, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write site config: %w", err)
	}
	result.Files = append(result.Files, configPath)

	return result, nil
}

// frontMatter marshals the metadata map between --- fences.
func frontMatter(meta map[string]any) (string, error) {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal front matter: %w", err)
	}
	return "---\n" + string(data) + "---\n\n", nil
}

func renderArticle(p articlePage, sources []types.WikiArticleSource) (string, error) {
	ids := make([]int64, len(sources))
	for i, s := range sources {
		ids[i] = s.DocumentID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	meta := map[string]any{
		"title":        p.topic.Label,
		"topic_id":     p.topic.ID,
		"version":      p.article.Version,
		"model":        p.article.Model,
		"sources":      ids,
		"generated_at": p.article.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if p.article.Rating != nil {
		meta["rating"] = *p.article.Rating
	}
	fm, err := frontMatter(meta)
	if err != nil {
		return "", err
	}
	return fm + p.content, nil
}

// exportEntities writes one page per tier-A glossary entry.
func exportEntities(ctx context.Context, store storage.Storage, dir string) ([]string, error) {
	idx, err := glossary.Build(ctx, store)
	if err != nil {
		return nil, err
	}
	var tierA []glossary.Entry
	for _, e := range idx.Entries {
		if e.Tier == glossary.TierA {
			tierA = append(tierA, e)
		}
	}
	if len(tierA) == 0 {
		return nil, nil
	}

	entitiesDir := filepath.Join(dir, "docs", "entities")
	if err := os.MkdirAll(entitiesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create entities directory: %w", err)
	}

	docs, err := store.ListDocuments(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	titles := make(map[int64]string, len(docs))
	for _, d := range docs {
		titles[d.ID] = d.Title
	}

	var files []string
	for i := range tierA {
		entry := &tierA[i]
		if err := glossary.GatherSnippets(ctx, store, entry); err != nil {
			return nil, err
		}
		meta := map[string]any{
			"title":         entry.Entity,
			"entity_type":   entry.Type,
			"tier":          string(entry.Tier),
			"doc_frequency": entry.DocFreq,
		}
		fm, err := frontMatter(meta)
		if err != nil {
			return nil, err
		}
		page := fm + stripOwnFrontMatter(glossary.RenderPage(entry, titles))
		path := filepath.Join(entitiesDir, cluster.Slugify(entry.Entity)+".md")
		if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		files = append(files, path)
	}
	return files, nil
}

// stripOwnFrontMatter drops the front matter RenderPage emits; the export
// writes its own richer block.
func stripOwnFrontMatter(page string) string {
	if !strings.HasPrefix(page, "---\n") {
		return page
	}
	rest := page[4:]
	end := strings.Index(rest, "---\n")
	if end < 0 {
		return page
	}
	return strings.TrimLeft(rest[end+4:], "\n")
}

func renderSiteIndex(site string, pages []articlePage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", site)
	b.WriteString("## Articles\n\n")
	sorted := make([]articlePage, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].topic.Label) < strings.ToLower(sorted[j].topic.Label)
	})
	for _, p := range sorted {
		fmt.Fprintf(&b, "- [%s](articles/%s.md)\n", p.topic.Label, p.topic.Slug)
	}
	b.WriteString("\n")
	return b.String()
}

// renderSiteConfig emits an mkdocs config with the material theme, search
// plugin, and a Home / Articles / Glossary nav tree.
func renderSiteConfig(site string, pages []articlePage, hasEntities bool) ([]byte, error) {
	articles := make([]map[string]string, 0, len(pages))
	sorted := make([]articlePage, len(pages))
	copy(sorted, pages)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].topic.Label) < strings.ToLower(sorted[j].topic.Label)
	})
	for _, p := range sorted {
		articles = append(articles, map[string]string{p.topic.Label: "articles/" + p.topic.Slug + ".md"})
	}

	nav := []any{
		map[string]string{"Home": "index.md"},
		map[string]any{"Articles": articles},
	}
	if hasEntities {
		nav = append(nav, map[string]string{"Glossary": "entities/"})
	}

	cfg := map[string]any{
		"site_name": site,
		"theme":     map[string]any{"name": "material"},
		"plugins":   []string{"search"},
		"nav":       nav,
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal site config: %w", err)
	}
	return data, nil
}
