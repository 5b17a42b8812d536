package wiki

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/DocLoom/internal/debug"
	"github.com/untoldecay/DocLoom/internal/types"
)

// BatchOptions configures a generation run over many topics.
type BatchOptions struct {
	GenerateOptions
	Limit       int // max topics attempted; 0 = all
	Concurrency int // parallel topic generations; <=1 streams serially
}

// RunResult summarizes one batch pass.
type RunResult struct {
	RunID     int64           `json:"run_id"`
	Model     string          `json:"model"`
	DryRun    bool            `json:"dry_run"`
	Attempted int             `json:"attempted"`
	Generated int             `json:"generated"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Tokens    int64           `json:"tokens"`
	CostUSD   float64         `json:"cost_usd"`
	Results   []ArticleResult `json:"results"`
}

// GenerateWiki runs GenerateArticle over every active topic (or the first
// Limit of them, largest first). A single topic failure never aborts the
// batch; it is recorded and the run summary still completes. Progress is
// reported through onResult as topics finish; with Concurrency > 1 the
// completion order is not the topic order.
func (e *Engine) GenerateWiki(ctx context.Context, opts BatchOptions, onResult func(ArticleResult)) (*RunResult, error) {
	topics, err := e.store.GetTopics(ctx)
	if err != nil {
		return nil, err
	}

	var eligible []types.WikiTopic
	for _, t := range topics {
		if t.Status == types.TopicSkipped {
			continue
		}
		eligible = append(eligible, t)
	}
	if opts.Limit > 0 && len(eligible) > opts.Limit {
		eligible = eligible[:opts.Limit]
	}

	model := opts.Model
	if model == "" {
		model = e.model
	}
	runID, err := e.store.CreateWikiRun(ctx, model, opts.DryRun)
	if err != nil {
		return nil, err
	}

	run := &RunResult{RunID: runID, Model: model, DryRun: opts.DryRun}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	record := func(r ArticleResult) {
		mu.Lock()
		run.Attempted++
		if r.Skipped {
			run.Skipped++
		} else if r.SkipReason != "" {
			run.Failed++
		} else {
			run.Generated++
		}
		run.Tokens += r.InputTokens + r.OutputTokens
		run.CostUSD += r.CostUSD
		run.Results = append(run.Results, r)
		mu.Unlock()
		if onResult != nil {
			onResult(r)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, topic := range eligible {
		topic := topic
		g.Go(func() error {
			// Cooperative cancellation: stop dispatching but let the batch
			// complete its run record.
			if gctx.Err() != nil {
				record(ArticleResult{TopicID: topic.ID, TopicLabel: topic.Label,
					Skipped: true, SkipReason: "cancelled"})
				return nil
			}
			r, err := e.GenerateArticle(gctx, topic.ID, opts.GenerateOptions)
			if err != nil {
				debug.Logf("wiki generation for topic %d failed: %v", topic.ID, err)
				record(ArticleResult{TopicID: topic.ID, TopicLabel: topic.Label,
					SkipReason: err.Error()})
				return nil
			}
			record(*r)
			return nil
		})
	}
	_ = g.Wait()

	// Stable summary order regardless of completion order.
	mu.Lock()
	sort.Slice(run.Results, func(i, j int) bool { return run.Results[i].TopicID < run.Results[j].TopicID })
	mu.Unlock()

	summary := &types.WikiRun{
		ID:        runID,
		Model:     model,
		DryRun:    opts.DryRun,
		Attempted: run.Attempted,
		Generated: run.Generated,
		Skipped:   run.Skipped + run.Failed,
	}
	for _, r := range run.Results {
		summary.InputTokens += r.InputTokens
		summary.OutputTokens += r.OutputTokens
	}
	summary.CostUSD = run.CostUSD
	if err := e.store.CompleteWikiRun(ctx, summary); err != nil {
		return run, err
	}
	return run, nil
}
