package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/DocLoom/internal/cache"
	"github.com/untoldecay/DocLoom/internal/cluster"
	"github.com/untoldecay/DocLoom/internal/config"
	"github.com/untoldecay/DocLoom/internal/export"
	"github.com/untoldecay/DocLoom/internal/extractor"
	"github.com/untoldecay/DocLoom/internal/glossary"
	"github.com/untoldecay/DocLoom/internal/llm"
	"github.com/untoldecay/DocLoom/internal/privacy"
	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/types"
	"github.com/untoldecay/DocLoom/internal/wiki"
)

var wikiCmd = &cobra.Command{
	Use:   "wiki",
	Short: "Topic discovery, article synthesis, and editorial control",
}

// getEngine builds the wiki engine. An LLM backend is attached when one is
// available; editorial and dry-run paths work without it.
func getEngine(cmd *cobra.Command, model string) (*wiki.Engine, error) {
	store, err := getStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	client, _ := newLLMClient(model)
	if model == "" {
		model = config.GetString("wiki.model")
	}
	e := wiki.NewEngine(store, client, model)
	e.Recorder = recordLLM
	return e, nil
}

// resolveTopic finds a topic by numeric id or slug.
func resolveTopic(cmd *cobra.Command, ref string) (*types.WikiTopic, error) {
	store, err := getStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		topic, err := store.GetTopic(cmd.Context(), id)
		if err != nil {
			return nil, err
		}
		if topic != nil {
			return topic, nil
		}
	}
	topic, err := store.GetTopicBySlug(cmd.Context(), ref)
	if err != nil {
		return nil, err
	}
	if topic == nil {
		return nil, fmt.Errorf("topic %q: %w", ref, storage.ErrNotFound)
	}
	return topic, nil
}

func audienceFlag(cmd *cobra.Command) privacy.Audience {
	s, _ := cmd.Flags().GetString("audience")
	if s == "" {
		s = config.GetString("wiki.audience")
	}
	aud, err := privacy.ParseAudience(s)
	if err != nil {
		fail(err)
	}
	return aud
}

var wikiTopicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List wiki topics, or rediscover them with --rebuild",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		ctx := cmd.Context()
		if rebuild, _ := cmd.Flags().GetBool("rebuild"); rebuild {
			opts := cluster.Options{}
			opts.MinClusterSize, _ = cmd.Flags().GetInt("min-size")
			opts.Resolution, _ = cmd.Flags().GetFloat64("resolution")
			result, err := cluster.Run(ctx, store, opts)
			if err != nil {
				fail(err)
			}
			relabeled := 0
			if label, _ := cmd.Flags().GetBool("label"); label {
				model, _ := cmd.Flags().GetString("model")
				if client, err := newLLMClient(model); err == nil {
					relabeled = cluster.AutoLabel(ctx, client, result, model)
				}
			}
			if err := cluster.SaveTopics(ctx, store, result); err != nil {
				fail(err)
			}
			cacheManager.Invalidate(cache.CacheAggregations)
			if jsonOutput {
				_ = outputJSON(map[string]any{
					"clusters":       len(result.Clusters),
					"clustered_docs": result.ClusteredDocs,
					"total_docs":     result.TotalDocs,
					"relabeled":      relabeled,
				})
				return
			}
			fmt.Printf("Discovered %d topics covering %d/%d documents\n",
				len(result.Clusters), result.ClusteredDocs, result.TotalDocs)
			return
		}

		topics, err := store.GetTopics(ctx)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"count": len(topics), "topics": topics})
			return
		}
		for _, t := range topics {
			fmt.Printf("%4d  %-8s %-40s %d docs  (%.2f)\n",
				t.ID, t.Status, t.Label, t.MemberCount, t.Coherence)
		}
	},
}

var wikiStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize topic and article state",
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := getEngine(cmd, "")
		if err != nil {
			fail(err)
		}
		status, err := engine.GetStatus(cmd.Context())
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(status)
			return
		}
		fmt.Printf("Topics: %d (%d active, %d skipped, %d pinned)\n",
			status.Topics, status.Active, status.Skipped, status.Pinned)
		fmt.Printf("Articles: %d (%d stale, %d rated), %d topics unwritten\n",
			status.Articles, status.Stale, status.Rated, status.Unwritten)
	},
}

var wikiGenerateCmd = &cobra.Command{
	Use:   "generate [topic]",
	Short: "Synthesize wiki articles from topics",
	Long: `With a topic argument, generates that one article. Without one, runs a
batch over every active topic. Up-to-date articles are skipped unless the
topic is pinned. --dry-run estimates tokens and cost without calling the
LLM.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		model, _ := cmd.Flags().GetString("model")
		engine, err := getEngine(cmd, model)
		if err != nil {
			fail(err)
		}
		gen := wiki.GenerateOptions{Audience: audienceFlag(cmd), Model: model}
		gen.DryRun, _ = cmd.Flags().GetBool("dry-run")

		if len(args) == 1 {
			topic, err := resolveTopic(cmd, args[0])
			if err != nil {
				fail(err)
			}
			result, err := engine.GenerateArticle(cmd.Context(), topic.ID, gen)
			if err != nil {
				fail(err)
			}
			if jsonOutput {
				_ = outputJSON(result)
				return
			}
			printArticleResult(*result)
			return
		}

		opts := wiki.BatchOptions{GenerateOptions: gen}
		opts.Limit, _ = cmd.Flags().GetInt("limit")
		opts.Concurrency, _ = cmd.Flags().GetInt("concurrency")
		if opts.Concurrency == 0 {
			opts.Concurrency = config.GetInt("wiki.concurrency")
		}
		var progress func(wiki.ArticleResult)
		if !jsonOutput {
			progress = printArticleResult
		}
		run, err := engine.GenerateWiki(cmd.Context(), opts, progress)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(run)
			return
		}
		fmt.Printf("\nRun %d: %d generated, %d skipped, %d failed (%d tokens, $%.4f)\n",
			run.RunID, run.Generated, run.Skipped, run.Failed, run.Tokens, run.CostUSD)
	},
}

func printArticleResult(r wiki.ArticleResult) {
	switch {
	case r.Skipped:
		fmt.Printf("  - %s: %s\n", r.TopicLabel, r.SkipReason)
	case r.SkipReason != "":
		fmt.Printf("  x %s: %s\n", r.TopicLabel, r.SkipReason)
	default:
		fmt.Printf("  + %s (v%d, %d tokens, $%.4f)\n",
			r.TopicLabel, r.Version, r.InputTokens+r.OutputTokens, r.CostUSD)
	}
	for _, w := range r.Warnings {
		fmt.Printf("      warning: %s\n", w)
	}
}

var wikiListCmd = &cobra.Command{
	Use:   "list",
	Short: "List generated articles",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		ctx := cmd.Context()
		topics, err := store.GetTopics(ctx)
		if err != nil {
			fail(err)
		}
		type row struct {
			Topic   types.WikiTopic    `json:"topic"`
			Article *types.WikiArticle `json:"article,omitempty"`
		}
		var rows []row
		for _, t := range topics {
			a, err := store.GetArticleByTopic(ctx, t.ID)
			if err != nil {
				fail(err)
			}
			if a != nil {
				rows = append(rows, row{Topic: t, Article: a})
			}
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"count": len(rows), "articles": rows})
			return
		}
		for _, r := range rows {
			mark := " "
			if r.Article.IsStale {
				mark = "*"
			}
			rating := ""
			if r.Article.Rating != nil {
				rating = fmt.Sprintf("  %d/5", *r.Article.Rating)
			}
			fmt.Printf("%4d %s v%-3d %-40s %s%s\n",
				r.Topic.ID, mark, r.Article.Version, r.Topic.Label, r.Article.Model, rating)
		}
	},
}

var wikiRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List generation runs",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := store.ListWikiRuns(cmd.Context(), limit)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"count": len(runs), "runs": runs})
			return
		}
		for _, r := range runs {
			kind := ""
			if r.DryRun {
				kind = " (dry run)"
			}
			fmt.Printf("%4d  %s  %s%s: %d/%d generated, %d skipped, $%.4f\n",
				r.ID, r.StartedAt.Format("2006-01-02 15:04"), r.Model, kind,
				r.Generated, r.Attempted, r.Skipped, r.CostUSD)
		}
	},
}

var wikiProgressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show the most recent generation run",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		runs, err := store.ListWikiRuns(cmd.Context(), 1)
		if err != nil {
			fail(err)
		}
		if len(runs) == 0 {
			if jsonOutput {
				_ = outputJSON(map[string]any{"run": nil})
				return
			}
			fmt.Println("No generation runs yet.")
			return
		}
		run := runs[0]
		if jsonOutput {
			_ = outputJSON(map[string]any{"run": run})
			return
		}
		state := "in progress"
		if run.CompletedAt != nil {
			state = "completed " + run.CompletedAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("Run %d (%s, started %s): %s\n", run.ID, run.Model,
			run.StartedAt.Format("2006-01-02 15:04"), state)
		fmt.Printf("  %d attempted, %d generated, %d skipped, %d+%d tokens, $%.4f\n",
			run.Attempted, run.Generated, run.Skipped,
			run.InputTokens, run.OutputTokens, run.CostUSD)
	},
}

var wikiCoverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Report topic coverage of the corpus",
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := getEngine(cmd, "")
		if err != nil {
			fail(err)
		}
		cov, err := engine.GetCoverage(cmd.Context())
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(cov)
			return
		}
		fmt.Printf("Coverage: %d/%d documents (%.1f%%)\n", cov.CoveredDocs, cov.TotalDocs, cov.Percent)
		for _, t := range cov.Topics {
			fmt.Printf("  %4d  %-40s %d docs\n", t.TopicID, t.Label, t.Docs)
		}
	},
}

var wikiTriageCmd = &cobra.Command{
	Use:   "triage",
	Short: "List topics most in need of generation",
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := getEngine(cmd, "")
		if err != nil {
			fail(err)
		}
		items, err := engine.Triage(cmd.Context())
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"count": len(items), "topics": items})
			return
		}
		for _, it := range items {
			fmt.Printf("%4d  %-40s %s\n", it.TopicID, it.Label, it.Reason)
		}
	},
}

var wikiDiffCmd = &cobra.Command{
	Use:   "diff <topic>",
	Short: "Show the change between the last two article versions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := getEngine(cmd, "")
		if err != nil {
			fail(err)
		}
		topic, err := resolveTopic(cmd, args[0])
		if err != nil {
			fail(err)
		}
		diff, err := engine.ArticleDiff(cmd.Context(), topic.ID)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"topic_id": topic.ID, "diff": diff})
			return
		}
		if diff == "" {
			fmt.Println("No previous version to compare.")
			return
		}
		fmt.Print(diff)
	},
}

var wikiRateCmd = &cobra.Command{
	Use:   "rate <topic> <1-5>",
	Short: "Rate a generated article",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := getEngine(cmd, "")
		if err != nil {
			fail(err)
		}
		topic, err := resolveTopic(cmd, args[0])
		if err != nil {
			fail(err)
		}
		rating, err := strconv.Atoi(args[1])
		if err != nil {
			fail(fmt.Errorf("rating must be a number 1-5"))
		}
		if err := engine.Rate(cmd.Context(), topic.ID, rating); err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"topic_id": topic.ID, "rating": rating})
			return
		}
		fmt.Printf("Rated %q %d/5\n", topic.Label, rating)
	},
}

var wikiRenameCmd = &cobra.Command{
	Use:   "rename <topic> <new label>",
	Short: "Rename a topic and its article",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := getEngine(cmd, "")
		if err != nil {
			fail(err)
		}
		topic, err := resolveTopic(cmd, args[0])
		if err != nil {
			fail(err)
		}
		if err := engine.Rename(cmd.Context(), topic.ID, args[1]); err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"topic_id": topic.ID, "label": args[1]})
			return
		}
		fmt.Printf("Renamed topic %d to %q\n", topic.ID, args[1])
	},
}

var wikiRetitleCmd = &cobra.Command{
	Use:   "retitle",
	Short: "Re-derive every topic label from its article's H1",
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := getEngine(cmd, "")
		if err != nil {
			fail(err)
		}
		n, err := engine.RetitleAll(cmd.Context())
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"retitled": n})
			return
		}
		fmt.Printf("Retitled %d topic(s)\n", n)
	},
}

// setStatusCmd builds the skip/unskip/pin/unpin family.
func setStatusCmd(use, short string, status types.TopicStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <topic>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			engine, err := getEngine(cmd, "")
			if err != nil {
				fail(err)
			}
			topic, err := resolveTopic(cmd, args[0])
			if err != nil {
				fail(err)
			}
			if err := engine.SetStatus(cmd.Context(), topic.ID, status); err != nil {
				fail(err)
			}
			if jsonOutput {
				_ = outputJSON(map[string]any{"topic_id": topic.ID, "status": status})
				return
			}
			fmt.Printf("Topic %q is now %s\n", topic.Label, status)
		},
	}
}

var wikiModelCmd = &cobra.Command{
	Use:   "model <topic> [model]",
	Short: "Set or clear a topic's model override",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := getEngine(cmd, "")
		if err != nil {
			fail(err)
		}
		topic, err := resolveTopic(cmd, args[0])
		if err != nil {
			fail(err)
		}
		model := ""
		if len(args) == 2 {
			model = args[1]
		}
		if err := engine.SetModelOverride(cmd.Context(), topic.ID, model); err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"topic_id": topic.ID, "model": model})
			return
		}
		if model == "" {
			fmt.Printf("Cleared model override for %q\n", topic.Label)
		} else {
			fmt.Printf("Topic %q will use %s\n", topic.Label, llm.ResolveModel(model))
		}
	},
}

var wikiPromptCmd = &cobra.Command{
	Use:   "prompt <topic> [guidance]",
	Short: "Set or clear a topic's editorial guidance",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := getEngine(cmd, "")
		if err != nil {
			fail(err)
		}
		topic, err := resolveTopic(cmd, args[0])
		if err != nil {
			fail(err)
		}
		guidance := strings.Join(args[1:], " ")
		if err := engine.SetEditorialPrompt(cmd.Context(), topic.ID, guidance); err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"topic_id": topic.ID, "prompt": guidance})
			return
		}
		if guidance == "" {
			fmt.Printf("Cleared editorial guidance for %q\n", topic.Label)
		} else {
			fmt.Printf("Set editorial guidance for %q\n", topic.Label)
		}
	},
}

var wikiMergeCmd = &cobra.Command{
	Use:   "merge <winner> <loser>",
	Short: "Merge one topic into another",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := getEngine(cmd, "")
		if err != nil {
			fail(err)
		}
		winner, err := resolveTopic(cmd, args[0])
		if err != nil {
			fail(err)
		}
		loser, err := resolveTopic(cmd, args[1])
		if err != nil {
			fail(err)
		}
		if !confirm(fmt.Sprintf("Merge %q into %q? The losing topic and its article are removed.",
			loser.Label, winner.Label)) {
			fmt.Println("Cancelled.")
			return
		}
		if err := engine.Merge(cmd.Context(), winner.ID, loser.ID); err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"winner_id": winner.ID, "loser_id": loser.ID})
			return
		}
		fmt.Printf("Merged topic %d into %d\n", loser.ID, winner.ID)
	},
}

var wikiSplitCmd = &cobra.Command{
	Use:   "split <topic> <term> <new label>",
	Short: "Split documents matching a term into a new topic",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := getEngine(cmd, "")
		if err != nil {
			fail(err)
		}
		topic, err := resolveTopic(cmd, args[0])
		if err != nil {
			fail(err)
		}
		newID, moved, err := engine.Split(cmd.Context(), topic.ID, args[1], args[2])
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"new_topic_id": newID, "moved": moved})
			return
		}
		fmt.Printf("Moved %d document(s) into new topic %d (%s)\n", moved, newID, args[2])
	},
}

var wikiSourcesCmd = &cobra.Command{
	Use:   "sources <topic>",
	Short: "List a topic's source documents with weights",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := getEngine(cmd, "")
		if err != nil {
			fail(err)
		}
		topic, err := resolveTopic(cmd, args[0])
		if err != nil {
			fail(err)
		}
		sources, err := engine.Sources(cmd.Context(), topic.ID)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"topic_id": topic.ID, "sources": sources})
			return
		}
		for _, s := range sources {
			mark := " "
			if !s.Included {
				mark = "x"
			}
			fmt.Printf("%4d %s %.2f  %s\n", s.DocumentID, mark, s.Relevance, s.Title)
		}
	},
}

var wikiWeightCmd = &cobra.Command{
	Use:   "weight <topic> <doc> <weight>",
	Short: "Set a source document's relevance weight",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		engine, err := getEngine(cmd, "")
		if err != nil {
			fail(err)
		}
		topic, err := resolveTopic(cmd, args[0])
		if err != nil {
			fail(err)
		}
		doc, err := resolveDoc(cmd, args[1])
		if err != nil {
			fail(err)
		}
		weight, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			fail(fmt.Errorf("weight must be a number in [0,1]"))
		}
		if err := engine.SetMemberWeight(cmd.Context(), topic.ID, doc.ID, weight); err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"topic_id": topic.ID, "document_id": doc.ID, "weight": weight})
			return
		}
		fmt.Printf("Set weight %.2f for document %d in %q\n", weight, doc.ID, topic.Label)
	},
}

// setIncludedCmd builds the exclude/include pair.
func setIncludedCmd(use, short string, included bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <topic> <doc>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			engine, err := getEngine(cmd, "")
			if err != nil {
				fail(err)
			}
			topic, err := resolveTopic(cmd, args[0])
			if err != nil {
				fail(err)
			}
			doc, err := resolveDoc(cmd, args[1])
			if err != nil {
				fail(err)
			}
			if err := engine.SetMemberIncluded(cmd.Context(), topic.ID, doc.ID, included); err != nil {
				fail(err)
			}
			if jsonOutput {
				_ = outputJSON(map[string]any{"topic_id": topic.ID, "document_id": doc.ID, "included": included})
				return
			}
			verb := "Excluded"
			if included {
				verb = "Included"
			}
			fmt.Printf("%s document %d in %q\n", verb, doc.ID, topic.Label)
		},
	}
}

var wikiExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the wiki as a static site source tree",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		opts := export.Options{}
		opts.Dir, _ = cmd.Flags().GetString("dir")
		opts.Site, _ = cmd.Flags().GetString("site")
		if ref, _ := cmd.Flags().GetString("topic"); ref != "" {
			topic, err := resolveTopic(cmd, ref)
			if err != nil {
				fail(err)
			}
			opts.TopicID = topic.ID
		}
		result, err := export.Run(cmd.Context(), store, opts)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(result)
			return
		}
		fmt.Printf("Exported %d article(s) and %d entity page(s) to %s\n",
			result.Articles, result.Entities, result.Dir)
	},
}

var wikiEntitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Build the tiered entity glossary",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		ctx := cmd.Context()
		idx, err := glossary.Build(ctx, store)
		if err != nil {
			fail(err)
		}
		if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
			titles := map[int64]string{}
			docs, err := store.ListDocuments(ctx, "", 0)
			if err != nil {
				fail(err)
			}
			for _, d := range docs {
				titles[d.ID] = d.Title
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				fail(err)
			}
			written := 0
			for i := range idx.Entries {
				entry := &idx.Entries[i]
				if entry.Tier != glossary.TierA {
					continue
				}
				if err := glossary.GatherSnippets(ctx, store, entry); err != nil {
					fail(err)
				}
				slug := cluster.Slugify(entry.Entity)
				page := glossary.RenderPage(entry, titles)
				if err := os.WriteFile(filepath.Join(dir, slug+".md"), []byte(page), 0o644); err != nil {
					fail(err)
				}
				written++
			}
			indexPage := glossary.RenderIndex(idx)
			if err := os.WriteFile(filepath.Join(dir, "index.md"), []byte(indexPage), 0o644); err != nil {
				fail(err)
			}
			if jsonOutput {
				_ = outputJSON(map[string]any{"entries": len(idx.Entries), "pages": written, "dir": dir})
				return
			}
			fmt.Printf("Wrote %d entity page(s) to %s\n", written, dir)
			return
		}
		if jsonOutput {
			_ = outputJSON(idx)
			return
		}
		for _, entry := range idx.Entries {
			fmt.Printf("%s  %-30s %-12s df=%d score=%.1f\n",
				entry.Tier, entry.Entity, entry.Type, entry.DocFreq, entry.Score)
		}
	},
}

var wikiSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "One-shot wiki bootstrap: extract entities, discover topics",
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
		extracted := 0
		for _, item := range docs {
			existing, err := store.GetEntities(ctx, item.ID)
			if err != nil {
				fail(err)
			}
			if len(existing) > 0 {
				continue
			}
			doc, err := store.GetDocument(ctx, item.ID)
			if err != nil {
				fail(err)
			}
			if doc == nil {
				continue
			}
			if _, err := extractor.ExtractAndSave(ctx, store, doc); err != nil {
				fail(fmt.Errorf("document %d: %w", item.ID, err))
			}
			extracted++
		}

		result, err := cluster.Run(ctx, store, cluster.Options{})
		if err != nil {
			fail(err)
		}
		relabeled := 0
		if client, err := newLLMClient(""); err == nil {
			relabeled = cluster.AutoLabel(ctx, client, result, "")
		}
		if err := cluster.SaveTopics(ctx, store, result); err != nil {
			fail(err)
		}
		cacheManager.Invalidate(cache.CacheAggregations)

		if jsonOutput {
			_ = outputJSON(map[string]any{
				"documents": len(docs),
				"extracted": extracted,
				"topics":    len(result.Clusters),
				"relabeled": relabeled,
			})
			return
		}
		fmt.Printf("Extracted entities for %d document(s)\n", extracted)
		fmt.Printf("Discovered %d topic(s) covering %d/%d documents\n",
			len(result.Clusters), result.ClusteredDocs, result.TotalDocs)
		fmt.Println("Next: loom wiki generate --dry-run")
	},
}

func init() {
	wikiTopicsCmd.Flags().Bool("rebuild", false, "rediscover topics from entities")
	wikiTopicsCmd.Flags().Int("min-size", 0, "minimum cluster size (default 3)")
	wikiTopicsCmd.Flags().Float64("resolution", 0, "clustering resolution (default 0.05)")
	wikiTopicsCmd.Flags().Bool("label", false, "ask the LLM to name each topic")
	wikiTopicsCmd.Flags().String("model", "", "model for --label")

	wikiGenerateCmd.Flags().String("model", "", "model shorthand or full id")
	wikiGenerateCmd.Flags().String("audience", "", "privacy audience: me, team, public")
	wikiGenerateCmd.Flags().Bool("dry-run", false, "estimate cost without calling the LLM")
	wikiGenerateCmd.Flags().IntP("limit", "l", 0, "max topics in a batch (0 = all)")
	wikiGenerateCmd.Flags().Int("concurrency", 0, "parallel generations (default from config)")

	wikiRunsCmd.Flags().IntP("limit", "l", 20, "max runs listed")

	wikiExportCmd.Flags().String("dir", "site", "output directory")
	wikiExportCmd.Flags().String("site", "", "site name")
	wikiExportCmd.Flags().String("topic", "", "export a single topic")

	wikiEntitiesCmd.Flags().String("dir", "", "write tier-A pages to a directory")

	wikiCmd.AddCommand(wikiTopicsCmd, wikiStatusCmd, wikiGenerateCmd, wikiListCmd,
		wikiRunsCmd, wikiProgressCmd, wikiCoverageCmd, wikiTriageCmd, wikiDiffCmd, wikiRateCmd,
		wikiRenameCmd, wikiRetitleCmd, wikiModelCmd, wikiPromptCmd, wikiMergeCmd,
		wikiSplitCmd, wikiSourcesCmd, wikiWeightCmd, wikiExportCmd, wikiEntitiesCmd,
		wikiSetupCmd,
		setStatusCmd("skip", "Exclude a topic from generation", types.TopicSkipped),
		setStatusCmd("unskip", "Return a topic to active", types.TopicActive),
		setStatusCmd("pin", "Always regenerate a topic", types.TopicPinned),
		setStatusCmd("unpin", "Return a pinned topic to active", types.TopicActive))

	maintainCmd.AddCommand(wikiCmd)
}
