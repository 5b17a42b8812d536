// Package wiki synthesizes topic articles from clustered documents. The
// pipeline runs six steps per topic (PREPARE, ROUTE, OUTLINE, WRITE,
// VALIDATE, SAVE), invoking the LLM during WRITE and persisting the article
// with provenance and per-step timings.
package wiki

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/DocLoom/internal/llm"
	"github.com/untoldecay/DocLoom/internal/privacy"
	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/types"
)

const (
	// DefaultModel is used when neither the caller nor the topic overrides it.
	DefaultModel = "sonnet"

	// MaxDocChars caps one source document's contribution to the prompt,
	// scaled by its membership relevance.
	MaxDocChars = 20000

	// StuffThresholdChars routes synthesis: below this total the sources fit
	// in one call, above it they are summarized hierarchically first.
	StuffThresholdChars = 80000

	// HierarchicalChunkSize is how many sources each summarization call
	// covers on the hierarchical path.
	HierarchicalChunkSize = 5

	// ArticleTag marks the generated documents.
	ArticleTag = "wiki-article"
)

// Engine runs the synthesis pipeline against one store and LLM backend.
type Engine struct {
	store  storage.Storage
	client llm.Client
	model  string

	// Recorder is called after each LLM invocation when set (audit hook).
	Recorder func(op, model string, resp *llm.Response, dur time.Duration, err error)
}

// NewEngine builds an engine. The client may be nil when only dry runs or
// editorial operations will be performed.
func NewEngine(store storage.Storage, client llm.Client, defaultModel string) *Engine {
	if defaultModel == "" {
		defaultModel = DefaultModel
	}
	return &Engine{store: store, client: client, model: defaultModel}
}

// GenerateOptions configures a single article generation.
type GenerateOptions struct {
	Audience privacy.Audience
	Model    string // overrides topic and default
	DryRun   bool
}

// ArticleResult is the outcome of one topic generation.
type ArticleResult struct {
	TopicID      int64                   `json:"topic_id"`
	TopicLabel   string                  `json:"topic_label"`
	DocumentID   int64                   `json:"document_id,omitempty"`
	Title        string                  `json:"title,omitempty"`
	Model        string                  `json:"model"`
	Version      int                     `json:"version,omitempty"`
	InputTokens  int64                   `json:"input_tokens"`
	OutputTokens int64                   `json:"output_tokens"`
	CostUSD      float64                 `json:"cost_usd"`
	Skipped      bool                    `json:"skipped"`
	SkipReason   string                  `json:"skip_reason,omitempty"`
	Warnings     []string                `json:"warnings,omitempty"`
	Timing       types.WikiArticleTiming `json:"timing"`
}

// source is one prepared input document.
type source struct {
	doc         *types.Document
	filtered    string
	contentHash string
	relevance   float64
}

func shortHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// combinedSourceHash identifies the exact (doc, content) multiset feeding an
// article: sha256 over the sorted id:hash pairs, first 32 hex chars.
func combinedSourceHash(sources []source) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = fmt.Sprintf("%d:%s", s.doc.ID, s.contentHash)
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])[:32]
}

func msSince(start time.Time) int64 {
	ms := time.Since(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

// resolveModel applies the precedence: explicit option > topic override >
// engine default.
func (e *Engine) resolveModel(topic *types.WikiTopic, opt string) string {
	switch {
	case opt != "":
		return llm.ResolveModel(opt)
	case topic.ModelOverride != "":
		return llm.ResolveModel(topic.ModelOverride)
	}
	return llm.ResolveModel(e.model)
}

// GenerateArticle runs the full pipeline for one topic.
func (e *Engine) GenerateArticle(ctx context.Context, topicID int64, opts GenerateOptions) (*ArticleResult, error) {
	topic, err := e.store.GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if topic == nil {
		return nil, fmt.Errorf("topic %d: %w", topicID, storage.ErrNotFound)
	}

	model := e.resolveModel(topic, opts.Model)
	result := &ArticleResult{TopicID: topic.ID, TopicLabel: topic.Label, Model: model}

	// PREPARE
	prepareStart := time.Now()
	sources, err := e.prepare(ctx, topic)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		result.Skipped = true
		result.SkipReason = "no primary source documents"
		result.Timing.PrepareMS = msSince(prepareStart)
		return result, nil
	}

	srcHash := combinedSourceHash(sources)
	existing, err := e.store.GetArticleByTopic(ctx, topic.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.SourceHash == srcHash && !existing.IsStale &&
		topic.Status != types.TopicPinned {
		result.Skipped = true
		result.SkipReason = "Article up to date"
		result.DocumentID = existing.DocumentID
		result.Version = existing.Version
		result.Timing.PrepareMS = msSince(prepareStart)
		return result, nil
	}
	result.Timing.PrepareMS = msSince(prepareStart)

	// ROUTE
	routeStart := time.Now()
	totalChars := 0
	for _, s := range sources {
		totalChars += len(s.filtered)
	}
	hierarchical := totalChars >= StuffThresholdChars
	result.Timing.RouteMS = msSince(routeStart)

	// OUTLINE
	outlineStart := time.Now()
	outline := buildOutline(topic, len(sources))
	result.Timing.OutlineMS = msSince(outlineStart)

	if opts.DryRun {
		inTokens := totalChars/4 + 500
		outTokens := inTokens / 2
		if outTokens > 4000 {
			outTokens = 4000
		}
		result.Skipped = true
		result.SkipReason = "dry run"
		result.InputTokens = int64(inTokens)
		result.OutputTokens = int64(outTokens)
		result.CostUSD = llm.EstimateCost(model, inTokens, outTokens)
		return result, nil
	}

	if e.client == nil {
		return nil, llm.ErrNotAvailable
	}

	// WRITE
	writeStart := time.Now()
	system := buildSystemPrompt(topic, outline, opts.Audience)
	var content string
	var inTok, outTok int
	if hierarchical {
		content, inTok, outTok, err = e.writeHierarchical(ctx, system, model, sources)
	} else {
		content, inTok, outTok, err = e.writeStuff(ctx, system, model, sources)
	}
	if err != nil {
		return nil, fmt.Errorf("synthesis for topic %q failed: %w", topic.Label, err)
	}
	result.InputTokens = int64(inTok)
	result.OutputTokens = int64(outTok)
	result.CostUSD = llm.EstimateCost(model, inTok, outTok)
	result.Timing.WriteMS = msSince(writeStart)

	// VALIDATE
	validateStart := time.Now()
	content, warnings := privacy.Validate(content)
	result.Warnings = warnings
	result.Timing.ValidateMS = msSince(validateStart)

	// SAVE
	saveStart := time.Now()
	provenance := make([]types.WikiArticleSource, len(sources))
	for i, s := range sources {
		provenance[i] = types.WikiArticleSource{DocumentID: s.doc.ID, ContentHash: s.contentHash}
	}
	article := &types.WikiArticle{
		TopicID:      topic.ID,
		SourceHash:   srcHash,
		Model:        model,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		CostUSD:      result.CostUSD,
		Timing:       result.Timing,
	}
	title := outline.Title
	if h1 := firstH1(content); h1 != "" {
		title = h1
	}
	if existing != nil {
		article.ID = existing.ID
		article.DocumentID = existing.DocumentID
		article.Timing.SaveMS = msSince(saveStart)
		if err := e.store.UpdateArticle(ctx, article, content, provenance); err != nil {
			return nil, err
		}
		result.Version = existing.Version + 1
	} else {
		docID, err := e.store.SaveDocument(ctx, title, content, storage.SaveOptions{
			Kind: types.KindWiki,
			Tags: []string{ArticleTag},
		})
		if err != nil {
			return nil, err
		}
		article.DocumentID = docID
		article.Timing.SaveMS = msSince(saveStart)
		if _, err := e.store.InsertArticle(ctx, article, provenance); err != nil {
			return nil, err
		}
		result.Version = 1
	}
	result.DocumentID = article.DocumentID
	result.Title = title
	result.Timing.SaveMS = article.Timing.SaveMS

	// RETITLE: adopt the generated H1 when it is new and its slug is free.
	if err := e.retitle(ctx, topic, article.DocumentID, content); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("retitle failed: %v", err))
	}

	return result, nil
}

// prepare loads primary members, filters them for privacy, and truncates
// each to its relevance-scaled budget.
func (e *Engine) prepare(ctx context.Context, topic *types.WikiTopic) ([]source, error) {
	members, err := e.store.GetTopicMembers(ctx, topic.ID)
	if err != nil {
		return nil, err
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Relevance > members[j].Relevance })

	var sources []source
	for _, m := range members {
		if !m.IsPrimary {
			continue
		}
		budget := int(float64(MaxDocChars) * m.Relevance)
		if budget <= 0 {
			continue
		}
		doc, err := e.store.GetDocument(ctx, m.DocumentID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		filtered, _ := privacy.FilterContent(doc.Content)
		if len(filtered) > budget {
			filtered = filtered[:budget]
		}
		sources = append(sources, source{
			doc:         doc,
			filtered:    filtered,
			contentHash: shortHash(doc.Content),
			relevance:   m.Relevance,
		})
	}
	return sources, nil
}

func (e *Engine) complete(ctx context.Context, op string, req llm.Request) (*llm.Response, error) {
	start := time.Now()
	resp, err := e.client.Complete(ctx, req)
	if e.Recorder != nil {
		e.Recorder(op, req.Model, resp, time.Since(start), err)
	}
	return resp, err
}

// writeStuff generates the article in a single call over all sources.
func (e *Engine) writeStuff(ctx context.Context, system, model string, sources []source) (string, int, int, error) {
	resp, err := e.complete(ctx, "synthesize", llm.Request{
		System: system,
		Prompt: renderSources(sources),
		Model:  model,
	})
	if err != nil {
		return "", 0, 0, err
	}
	return strings.TrimSpace(resp.Text), resp.InputTokens, resp.OutputTokens, nil
}

const summarizeSystem = `You summarize source documents for a wiki article. Write 500-1000 words capturing every fact, decision, and code detail that matters. No preamble, no commentary about the task.`

// writeHierarchical summarizes chunks of sources first, then merges the
// chunk summaries as virtual sources in a final call.
func (e *Engine) writeHierarchical(ctx context.Context, system, model string, sources []source) (string, int, int, error) {
	var inTok, outTok int
	var summaries []source

	for start := 0; start < len(sources); start += HierarchicalChunkSize {
		end := start + HierarchicalChunkSize
		if end > len(sources) {
			end = len(sources)
		}
		chunk := sources[start:end]
		resp, err := e.complete(ctx, "summarize", llm.Request{
			System: summarizeSystem,
			Prompt: renderSources(chunk),
			Model:  model,
		})
		if err != nil {
			return "", inTok, outTok, err
		}
		inTok += resp.InputTokens
		outTok += resp.OutputTokens
		summaries = append(summaries, source{
			doc:      &types.Document{Title: fmt.Sprintf("Summary of sources %d-%d", start+1, end)},
			filtered: strings.TrimSpace(resp.Text),
		})
	}

	content, in2, out2, err := e.writeStuff(ctx, system, model, summaries)
	return content, inTok + in2, outTok + out2, err
}

// renderSources numbers the sources and joins them with --- separators.
func renderSources(sources []source) string {
	var b strings.Builder
	for i, s := range sources {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "## Source %d: %s\n\n%s\n", i+1, s.doc.Title, s.filtered)
	}
	return b.String()
}

// MarkStale cascades a document change to every article that used it.
func (e *Engine) MarkStale(ctx context.Context, docID int64) (int, error) {
	return e.store.MarkArticlesStale(ctx, docID, fmt.Sprintf("source document %d changed", docID))
}
