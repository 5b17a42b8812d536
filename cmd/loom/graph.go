package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/DocLoom/internal/analyze"
	"github.com/untoldecay/DocLoom/internal/cache"
	"github.com/untoldecay/DocLoom/internal/dupes"
	"github.com/untoldecay/DocLoom/internal/extractor"
	"github.com/untoldecay/DocLoom/internal/types"
	"github.com/untoldecay/DocLoom/internal/wikify"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Knowledge-graph maintenance: links, entities, analyzers, wiki",
}

var linkCmd = &cobra.Command{
	Use:   "link <source> <target>",
	Short: "Manually link two documents",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		src, err := resolveDoc(cmd, args[0])
		if err != nil {
			fail(err)
		}
		dst, err := resolveDoc(cmd, args[1])
		if err != nil {
			fail(err)
		}
		score, _ := cmd.Flags().GetFloat64("score")
		id, err := store.CreateLink(cmd.Context(), src.ID, dst.ID, score, types.MethodManual)
		if err != nil {
			fail(err)
		}
		if id == nil {
			if jsonOutput {
				_ = outputJSON(map[string]any{"created": false, "reason": "link already exists"})
				return
			}
			fmt.Println("Link already exists.")
			return
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"created": true, "link_id": *id})
			return
		}
		fmt.Printf("Linked %d -> %d\n", src.ID, dst.ID)
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink <a> <b>",
	Short: "Remove the link between two documents",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		a, err := resolveDoc(cmd, args[0])
		if err != nil {
			fail(err)
		}
		b, err := resolveDoc(cmd, args[1])
		if err != nil {
			fail(err)
		}
		removed, err := store.DeleteLink(cmd.Context(), a.ID, b.ID)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"removed": removed})
			return
		}
		if removed {
			fmt.Printf("Unlinked %d and %d\n", a.ID, b.ID)
		} else {
			fmt.Println("No link between those documents.")
		}
	},
}

var linksCmd = &cobra.Command{
	Use:   "links <id|title>",
	Short: "Show links for a document",
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
		links, err := store.GetLinksForDocument(cmd.Context(), doc.ID)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"document_id": doc.ID, "count": len(links), "links": links})
			return
		}
		for _, l := range links {
			other := l.TargetID
			if other == doc.ID {
				other = l.SourceID
			}
			fmt.Printf("%4d  %-14s %.2f\n", other, l.Method, l.Score)
		}
	},
}

var wikifyCmd = &cobra.Command{
	Use:   "wikify [id|title]",
	Short: "Create links from title mentions and shared entities",
	Long: `With a document argument, runs the title-mention pass for that document
(add --entities for the shared-entity pass, or --semantic for embedding
similarity). With --all, runs the title pass over the whole corpus;
--rebuild-entities recomputes every entity link.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		ctx := cmd.Context()
		opts := wikify.Options{}
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
		opts.CrossProject, _ = cmd.Flags().GetBool("cross-project")
		all, _ := cmd.Flags().GetBool("all")
		rebuild, _ := cmd.Flags().GetBool("rebuild-entities")
		withEntities, _ := cmd.Flags().GetBool("entities")
		semantic, _ := cmd.Flags().GetBool("semantic")

		switch {
		case semantic:
			if len(args) != 1 {
				fail(fmt.Errorf("--semantic requires a document argument"))
			}
			doc, err := resolveDoc(cmd, args[0])
			if err != nil {
				fail(err)
			}
			top, _ := cmd.Flags().GetInt("top")
			threshold, _ := cmd.Flags().GetFloat64("threshold")
			result, err := wikify.LinkBySimilarity(ctx, store, activeEmbedder(), doc.ID, top, threshold)
			if err != nil {
				fail(err)
			}
			cacheManager.Invalidate(cache.CacheAggregations)
			if jsonOutput {
				_ = outputJSON(result)
				return
			}
			fmt.Printf("Semantic pass: %d links created, %d already present\n",
				result.LinksCreated, result.ExistingSkipped)
		case rebuild:
			n, err := wikify.RebuildEntityLinks(ctx, store, !opts.CrossProject)
			if err != nil {
				fail(err)
			}
			cacheManager.Invalidate(cache.CacheAggregations)
			if jsonOutput {
				_ = outputJSON(map[string]any{"links_created": n})
				return
			}
			fmt.Printf("Rebuilt entity links: %d created\n", n)
		case all:
			result, err := wikify.WikifyAll(ctx, store, opts)
			if err != nil {
				fail(err)
			}
			cacheManager.Invalidate(cache.CacheAggregations)
			if jsonOutput {
				_ = outputJSON(result)
				return
			}
			fmt.Printf("Wikified %d documents: %d links created, %d already present\n",
				result.Documents, result.LinksCreated, result.ExistingSkipped)
		case len(args) == 1:
			doc, err := resolveDoc(cmd, args[0])
			if err != nil {
				fail(err)
			}
			result, err := wikify.Wikify(ctx, store, doc.ID, opts)
			if err != nil {
				fail(err)
			}
			out := map[string]any{"title": result}
			if withEntities && !opts.DryRun {
				er, err := wikify.LinkByEntities(ctx, store, doc.ID, !opts.CrossProject)
				if err != nil {
					fail(err)
				}
				out["entity"] = er
			}
			cacheManager.Invalidate(cache.CacheAggregations)
			if jsonOutput {
				_ = outputJSON(out)
				return
			}
			fmt.Printf("Title pass: %d links created, %d already present\n",
				result.LinksCreated, result.ExistingSkipped)
			if opts.DryRun {
				for _, m := range result.Matches {
					fmt.Printf("  would link -> %d (%s)\n", m.TargetID, m.TargetTitle)
				}
			}
		default:
			fail(fmt.Errorf("a document argument or --all is required"))
		}
	},
}

var entitiesCmd = &cobra.Command{
	Use:   "entities [id|title]",
	Short: "Extract entities from documents",
	Long: `Runs the heuristic extractor by default; --llm uses the configured LLM
backend and also captures relationships. With --all, processes every
document that has no entities yet.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		ctx := cmd.Context()
		useLLM, _ := cmd.Flags().GetBool("llm")
		model, _ := cmd.Flags().GetString("model")
		all, _ := cmd.Flags().GetBool("all")

		extract := func(doc *types.Document) (any, error) {
			if useLLM {
				client, err := newLLMClient(model)
				if err != nil {
					return nil, err
				}
				return extractor.ExtractAndSaveLLM(ctx, store, client, doc, model)
			}
			n, err := extractor.ExtractAndSave(ctx, store, doc)
			if err != nil {
				return nil, err
			}
			return map[string]any{"entities": n}, nil
		}

		if all {
			docs, err := store.ListDocuments(ctx, "", 0)
			if err != nil {
				fail(err)
			}
			processed := 0
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
				if _, err := extract(doc); err != nil {
					fail(fmt.Errorf("document %d: %w", item.ID, err))
				}
				processed++
			}
			if jsonOutput {
				_ = outputJSON(map[string]any{"processed": processed})
				return
			}
			fmt.Printf("Extracted entities for %d document(s)\n", processed)
			return
		}

		if len(args) != 1 {
			fail(fmt.Errorf("a document argument or --all is required"))
		}
		doc, err := resolveDoc(cmd, args[0])
		if err != nil {
			fail(err)
		}
		result, err := extract(doc)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(result)
			return
		}
		fmt.Printf("Extracted entities for document %d\n", doc.ID)
	},
}

// activeEmbedder returns the configured embedding backend. The semantic
// pass consumes an external embedding service; none ships in this binary,
// so until one is wired in this returns nil and the passes report
// wikify.ErrNoEmbedder.
func activeEmbedder() wikify.Embedder {
	return nil
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the semantic embedding index",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		stats, err := wikify.MaintainIndex(cmd.Context(), store, activeEmbedder())
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(stats)
			return
		}
		fmt.Printf("Indexed %d document(s), %d chunk(s); coverage %.0f%%\n",
			stats.IndexedDocs, stats.IndexedChunks, stats.CoveragePercent)
	},
}

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Detect stale epics, orphaned tasks, and stale linked docs",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		days, _ := cmd.Flags().GetInt("stale-days")
		report, err := analyze.Drift(cmd.Context(), store, analyze.DriftOptions{StaleDays: days})
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(report)
			return
		}
		fmt.Print(report.Human())
	},
}

var freshnessCmd = &cobra.Command{
	Use:   "freshness",
	Short: "Score every document's freshness",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		opts := analyze.FreshnessOptions{}
		opts.Threshold, _ = cmd.Flags().GetFloat64("threshold")
		opts.StaleOnly, _ = cmd.Flags().GetBool("stale-only")
		report, err := analyze.Freshness(cmd.Context(), store, opts)
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(report)
			return
		}
		fmt.Print(report.Human())
	},
}

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "Find coverage gaps in the knowledge graph",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		days, _ := cmd.Flags().GetInt("stale-days")
		report, err := analyze.Gaps(cmd.Context(), store, analyze.GapOptions{StaleDays: days})
		if err != nil {
			fail(err)
		}
		if jsonOutput {
			_ = outputJSON(report)
			return
		}
		fmt.Print(report.Human())
	},
}

var duplicatesCmd = &cobra.Command{
	Use:     "duplicates",
	Aliases: []string{"dupes"},
	Short:   "Find exact and near-duplicate documents",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := getStore(cmd.Context())
		if err != nil {
			fail(err)
		}
		ctx := cmd.Context()
		groups, err := dupes.FindExact(ctx, store)
		if err != nil {
			fail(err)
		}
		var pairs []dupes.Pair
		if near, _ := cmd.Flags().GetBool("near"); near {
			threshold, _ := cmd.Flags().GetFloat64("threshold")
			pairs, err = dupes.FindNear(ctx, store, dupes.NearOptions{Threshold: threshold})
			if err != nil {
				fail(err)
			}
		}
		if jsonOutput {
			_ = outputJSON(map[string]any{"exact": groups, "near": pairs})
			return
		}
		if len(groups) == 0 && len(pairs) == 0 {
			fmt.Println("No duplicates found.")
			return
		}
		for _, g := range groups {
			fmt.Printf("exact: %s\n", strings.Join(g.Titles, " | "))
		}
		for _, p := range pairs {
			fmt.Printf("near:  %d ~ %d (%.0f%%)\n", p.A, p.B, p.Similarity*100)
		}
	},
}

func init() {
	linkCmd.Flags().Float64("score", 1.0, "similarity score for the link")

	wikifyCmd.Flags().Bool("all", false, "run the title pass over every document")
	wikifyCmd.Flags().Bool("dry-run", false, "report matches without writing links")
	wikifyCmd.Flags().Bool("cross-project", false, "allow links across projects")
	wikifyCmd.Flags().Bool("entities", false, "also run the shared-entity pass")
	wikifyCmd.Flags().Bool("rebuild-entities", false, "recompute all entity links")
	wikifyCmd.Flags().Bool("semantic", false, "run the embedding-similarity pass instead")
	wikifyCmd.Flags().Int("top", 5, "similar documents to consider with --semantic")
	wikifyCmd.Flags().Float64("threshold", 0.8, "minimum similarity score with --semantic")

	entitiesCmd.Flags().Bool("llm", false, "use the LLM extractor")
	entitiesCmd.Flags().String("model", "", "model for --llm (default from config)")
	entitiesCmd.Flags().Bool("all", false, "process every document without entities")

	driftCmd.Flags().Int("stale-days", 30, "idle days before an epic counts as stale")
	freshnessCmd.Flags().Float64("threshold", 0.3, "stale threshold")
	freshnessCmd.Flags().Bool("stale-only", false, "only list stale documents")
	gapsCmd.Flags().Int("stale-days", 60, "idle days before a topic counts as stale")
	duplicatesCmd.Flags().Bool("near", false, "also run near-duplicate detection")
	duplicatesCmd.Flags().Float64("threshold", 0.7, "near-duplicate similarity threshold")

	maintainCmd.AddCommand(linkCmd, unlinkCmd, linksCmd, wikifyCmd, entitiesCmd,
		indexCmd, driftCmd, freshnessCmd, gapsCmd, duplicatesCmd)
	rootCmd.AddCommand(maintainCmd)
}
