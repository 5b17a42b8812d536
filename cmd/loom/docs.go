package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/untoldecay/DocLoom/internal/cache"
	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/types"
)

// dateParser accepts ISO dates plus natural language ("last week").
var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	r, err := dateParser.Parse(s, time.Now())
	if err == nil && r != nil {
		return &r.Time, nil
	}
	return nil, fmt.Errorf("cannot parse date %q", s)
}

// resolveDoc finds a document by numeric id or exact title.
func resolveDoc(cmd *cobra.Command, ref string) (*types.Document, error) {
	store, err := getStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		doc, err := store.GetDocument(cmd.Context(), id)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			return doc, nil
		}
	}
	doc, err := store.GetDocumentByTitle(cmd.Context(), ref)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %q: %w", ref, storage.ErrNotFound)
	}
	return doc, nil
}

// readContent resolves document content from --file, a positional argument,
// or stdin.
func readContent(cmd *cobra.Command, arg string) (string, error) {
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("cannot read %s: %w", file, err)
		}
		return string(data), nil
	}
	if arg != "" {
		return arg, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("cannot read stdin: %w", err)
	}
	return string(data), nil
}

// touchDocument runs the invalidation that every document mutation needs:
// search caches drop and dependent wiki articles go stale.
func touchDocument(cmd *cobra.Command, docID int64) {
	store, err := getStore(cmd.Context())
	if err != nil {
		return
	}
	cacheManager.Invalidate(cache.CacheSearch)
	cacheManager.Invalidate(cache.CacheDocuments)
	if n, err := store.MarkArticlesStale(cmd.Context(), docID,
		fmt.Sprintf("source document %d changed", docID)); err == nil && n > 0 && !jsonOutput {
		fmt.Printf("Marked %d wiki article(s) stale\n", n)
	}
}

var saveCmd = &cobra.Command{
	Use:   "save <title> [content]",
	Short: "Save a new document",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		var contentArg string
		if len(args) > 1 {
			contentArg = args[1]
		}
		content, err := readContent(cmd, contentArg)
		if err != nil {
			fail(err)
		}
		project, _ := cmd.Flags().GetString("project")
		tags, _ := cmd.Flags().GetStringSlice("tags")

		id, err := store.SaveDocument(cmd.Context(), args[0], content, storage.SaveOptions{
			Project: project,
			Tags:    tags,
		})
		if err != nil {
			fail(err)
		}
		touchDocument(cmd, id)
		if jsonOutput {
			_ = outputJSON(map[string]any{"id": id, "title": args[0]})
			return
		}
		fmt.Printf("Saved document %d: %s\n", id, args[0])
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over documents",
	Long: `Search documents by any word in title or content. Hyphenated and
punctuated queries are matched literally; "*" lists all documents.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		opts := types.SearchOptions{}
		if project, _ := cmd.Flags().GetString("project"); project != "" {
			opts.Project = &project
		}
		for flag, dst := range map[string]**time.Time{
			"created-after":  &opts.CreatedAfter,
			"created-before": &opts.CreatedBefore,
			"updated-after":  &opts.UpdatedAfter,
			"updated-before": &opts.UpdatedBefore,
		} {
			s, _ := cmd.Flags().GetString(flag)
			t, err := parseDate(s)
			if err != nil {
				fail(err)
			}
			*dst = t
		}
		opts.AllKinds, _ = cmd.Flags().GetBool("all")
		opts.Limit, _ = cmd.Flags().GetInt("limit")

		cacheKey := args[0]
		if b, err := json.Marshal(opts); err == nil {
			cacheKey += "|" + string(b)
		}
		results, err := cache.Wrap(cacheManager, cache.CacheSearch,
			func() string { return cacheKey },
			func() ([]types.SearchResult, error) {
				return store.SearchDocuments(cmd.Context(), args[0], opts)
			})
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"query": args[0], "count": len(results), "results": results})
			return
		}
		if len(results) == 0 {
			fmt.Println("No results.")
			return
		}
		for _, r := range results {
			line := fmt.Sprintf("%4d  %s", r.ID, r.Title)
			if r.Project != "" {
				line += "  [" + r.Project + "]"
			}
			fmt.Println(line)
			if r.Snippet != "" {
				fmt.Printf("      %s\n", r.Snippet)
			}
		}
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		project, _ := cmd.Flags().GetString("project")
		limit, _ := cmd.Flags().GetInt("limit")
		docs, err := store.ListDocuments(cmd.Context(), project, limit)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"count": len(docs), "documents": docs})
			return
		}
		for _, d := range docs {
			line := fmt.Sprintf("%4d  %-8s %s", d.ID, d.Kind, d.Title)
			if d.Project != "" {
				line += "  [" + d.Project + "]"
			}
			fmt.Println(line)
		}
	},
}

var viewCmd = &cobra.Command{
	Use:   "view <id|title>",
	Short: "View a document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := cache.Wrap(cacheManager, cache.CacheDocuments,
			func() string { return args[0] },
			func() (*types.Document, error) { return resolveDoc(cmd, args[0]) })
		if err != nil {
			fail(err)
		}
		if _, err := getStore(cmd.Context()); err == nil && accessBuffer != nil {
			_ = accessBuffer.Record(cmd.Context(), doc.ID)
		}
		if jsonOutput {
			_ = outputJSON(doc)
			return
		}
		fmt.Printf("# %s (id %d)\n\n%s\n", doc.Title, doc.ID, doc.Content)
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id|title>",
	Short: "Replace a document's content (from --file or stdin)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		doc, err := resolveDoc(cmd, args[0])
		if err != nil {
			fail(err)
		}
		content, err := readContent(cmd, "")
		if err != nil {
			fail(err)
		}
		title := doc.Title
		if newTitle, _ := cmd.Flags().GetString("title"); newTitle != "" {
			title = newTitle
		}
		ok, err := store.UpdateDocument(cmd.Context(), doc.ID, title, content)
		if err != nil {
			fail(err)
		}
		if !ok {
			fail(fmt.Errorf("document %d: %w", doc.ID, storage.ErrNotFound))
		}
		touchDocument(cmd, doc.ID)
		if jsonOutput {
			_ = outputJSON(map[string]any{"id": doc.ID, "updated": true})
			return
		}
		fmt.Printf("Updated document %d\n", doc.ID)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id|title>",
	Short: "Delete a document (soft by default)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		doc, err := resolveDoc(cmd, args[0])
		if err != nil {
			fail(err)
		}
		hard, _ := cmd.Flags().GetBool("hard")
		verb := "Delete"
		if hard {
			verb = "Permanently delete"
		}
		if !confirm(fmt.Sprintf("%s %q (id %d)?", verb, doc.Title, doc.ID)) {
			fmt.Println("Cancelled.")
			return
		}
		ok, err := store.DeleteDocument(cmd.Context(), doc.ID, hard)
		if err != nil {
			fail(err)
		}
		if !ok {
			fail(fmt.Errorf("document %d: %w", doc.ID, storage.ErrNotFound))
		}
		cacheManager.ClearAll()
		if jsonOutput {
			_ = outputJSON(map[string]any{"id": doc.ID, "deleted": true, "hard": hard})
			return
		}
		fmt.Printf("Deleted document %d\n", doc.ID)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore a soft-deleted document",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fail(fmt.Errorf("invalid document id %q", args[0]))
		}
		ok, err := store.RestoreDocument(cmd.Context(), id)
		if err != nil {
			fail(err)
		}
		if !ok {
			fail(fmt.Errorf("deleted document %d: %w", id, storage.ErrNotFound))
		}
		cacheManager.ClearAll()
		if jsonOutput {
			_ = outputJSON(map[string]any{"id": id, "restored": true})
			return
		}
		fmt.Printf("Restored document %d\n", id)
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Permanently remove soft-deleted documents",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		days, _ := cmd.Flags().GetInt("days")
		if !confirm("Permanently purge deleted documents?") {
			fmt.Println("Cancelled.")
			return
		}
		n, err := store.PurgeDeleted(cmd.Context(), days)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"purged": n})
			return
		}
		fmt.Printf("Purged %d document(s)\n", n)
	},
}

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "List soft-deleted documents",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		days, _ := cmd.Flags().GetInt("days")
		limit, _ := cmd.Flags().GetInt("limit")
		docs, err := store.ListDeleted(cmd.Context(), days, limit)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"count": len(docs), "documents": docs})
			return
		}
		for _, d := range docs {
			fmt.Printf("%4d  %s\n", d.ID, d.Title)
		}
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Corpus statistics",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		ctx := cmd.Context()
		docs, err := store.ListDocuments(ctx, "", 0)
		if err != nil {
			fail(err)
		}
		byKind := map[types.DocKind]int{}
		byProject := map[string]int{}
		for _, d := range docs {
			byKind[d.Kind]++
			if d.Project != "" {
				byProject[d.Project]++
			}
		}
		tags, err := store.ListTags(ctx)
		if err != nil {
			fail(err)
		}
		entities, err := store.GetAllEntities(ctx)
		if err != nil {
			fail(err)
		}
		topics, err := store.GetTopics(ctx)
		if err != nil {
			fail(err)
		}
		stats := map[string]any{
			"documents":   len(docs),
			"by_kind":     byKind,
			"by_project":  byProject,
			"tags":        len(tags),
			"entity_rows": len(entities),
			"topics":      len(topics),
			"cache":       cacheManager.Stats(),
		}
		if jsonOutput {
			_ = outputJSON(stats)
			return
		}
		fmt.Printf("Documents: %d\n", len(docs))
		for kind, n := range byKind {
			fmt.Printf("  %s: %d\n", kind, n)
		}
		fmt.Printf("Tags: %d\nEntity rows: %d\nTopics: %d\n", len(tags), len(entities), len(topics))
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag <id|title> [tags...]",
	Short: "Add, remove, or list tags on a document",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		doc, err := resolveDoc(cmd, args[0])
		if err != nil {
			fail(err)
		}
		remove, _ := cmd.Flags().GetBool("remove")
		tags := args[1:]
		if len(tags) > 0 {
			if remove {
				err = store.RemoveTags(cmd.Context(), doc.ID, tags)
			} else {
				err = store.AddTags(cmd.Context(), doc.ID, tags)
			}
			if err != nil {
				fail(err)
			}
			cacheManager.Invalidate(cache.CacheTags)
		}
		current, err := store.GetTags(cmd.Context(), doc.ID)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"id": doc.ID, "tags": current})
			return
		}
		fmt.Printf("Tags for %d: %s\n", doc.ID, strings.Join(current, ", "))
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List all tags with usage counts",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		tags, err := store.ListTags(cmd.Context())
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"count": len(tags), "tags": tags})
			return
		}
		for _, tag := range tags {
			fmt.Printf("%4d  %s\n", tag.UseCount, tag.Name)
		}
	},
}

func init() {
	saveCmd.Flags().String("project", "", "project to file the document under")
	saveCmd.Flags().StringSlice("tags", nil, "tags to attach")
	saveCmd.Flags().String("file", "", "read content from file")

	searchCmd.Flags().String("project", "", "restrict to one project")
	searchCmd.Flags().String("created-after", "", "created after (date or natural language)")
	searchCmd.Flags().String("created-before", "", "created before")
	searchCmd.Flags().String("updated-after", "", "updated after")
	searchCmd.Flags().String("updated-before", "", "updated before")
	searchCmd.Flags().Bool("all", false, "include wiki and synthesis documents")
	searchCmd.Flags().IntP("limit", "l", 20, "max results")

	listCmd.Flags().String("project", "", "restrict to one project")
	listCmd.Flags().IntP("limit", "l", 50, "max results")

	editCmd.Flags().String("file", "", "read new content from file")
	editCmd.Flags().String("title", "", "also rename the document")

	deleteCmd.Flags().Bool("hard", false, "hard delete (no restore)")
	purgeCmd.Flags().Int("days", 0, "only purge documents deleted more than N days ago")
	trashCmd.Flags().Int("days", 0, "only show documents deleted in the last N days")
	trashCmd.Flags().IntP("limit", "l", 50, "max results")

	tagCmd.Flags().Bool("remove", false, "remove the listed tags instead of adding")

	rootCmd.AddCommand(saveCmd, searchCmd, listCmd, viewCmd, editCmd,
		deleteCmd, restoreCmd, purgeCmd, trashCmd, statsCmd, tagCmd, tagsCmd)
}
