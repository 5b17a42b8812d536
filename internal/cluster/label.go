package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/untoldecay/DocLoom/internal/llm"
)

const labelSystemPrompt = `You name topic clusters in a personal wiki. Reply with only the name: 2-5 words, title case, no punctuation, no quotes.`

// AutoLabel asks the LLM for a better label per cluster. Failures fall
// back to the computed label, so this step can never break a run.
func AutoLabel(ctx context.Context, client llm.Client, result *Result, model string) int {
	if client == nil {
		return 0
	}
	relabeled := 0
	for i := range result.Clusters {
		c := &result.Clusters[i]
		prompt := fmt.Sprintf(
			"A cluster of %d documents shares these entities: %s.\nCurrent machine label: %q.\nPropose a better short name.",
			len(c.DocumentIDs), strings.Join(c.TopEntities, ", "), c.Label)

		resp, err := client.Complete(ctx, llm.Request{
			System:    labelSystemPrompt,
			Prompt:    prompt,
			Model:     model,
			MaxTokens: 64,
		})
		if err != nil {
			continue
		}
		label := strings.TrimSpace(strings.Trim(llm.StripFences(resp.Text), `"'`))
		if label == "" || strings.ContainsRune(label, '\n') || len(label) > 120 {
			continue
		}
		c.Label = label
		c.Slug = Slugify(label)
		relabeled++
	}
	return relabeled
}
