// Package llm abstracts the language-model backends used for entity
// extraction, topic labeling, and wiki synthesis. Two implementations
// exist: a subprocess client that shells out to a local CLI, and a direct
// Anthropic API client.
package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrNotAvailable is returned when no usable backend can be constructed.
var ErrNotAvailable = errors.New("no LLM backend available")

// Request is a single completion call.
type Request struct {
	System    string
	Prompt    string
	Model     string
	MaxTokens int
}

// Response carries the completion text plus token accounting when the
// backend reports it.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Client is the capability every LLM-backed feature depends on.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	// Name identifies the backend for logging and run records.
	Name() string
}

// Model shorthands accepted everywhere a model can be configured.
var modelAliases = map[string]string{
	"haiku":  "claude-3-5-haiku-latest",
	"sonnet": "claude-sonnet-4-5",
	"opus":   "claude-opus-4-1",
}

// ResolveModel expands a shorthand like "sonnet" to the full model id.
// Full ids pass through unchanged.
func ResolveModel(name string) string {
	if full, ok := modelAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return full
	}
	return name
}

// Per-million-token prices in USD, keyed by model family substring.
type pricing struct {
	inputPerM  float64
	outputPerM float64
}

var priceTable = []struct {
	family string
	pricing
}{
	{"opus", pricing{15.0, 75.0}},
	{"sonnet", pricing{3.0, 15.0}},
	{"haiku", pricing{0.25, 1.25}},
}

// EstimateCost returns the USD cost for a call against the given model.
// Unknown models price as haiku, the cheapest tier.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	p := pricing{0.25, 1.25}
	lower := strings.ToLower(model)
	for _, entry := range priceTable {
		if strings.Contains(lower, entry.family) {
			p = entry.pricing
			break
		}
	}
	return float64(inputTokens)/1e6*p.inputPerM + float64(outputTokens)/1e6*p.outputPerM
}

// EstimateTokens approximates the token count of a prompt (chars/4).
func EstimateTokens(text string) int {
	return len(text) / 4
}

// StripFences removes a surrounding markdown code fence if the whole
// response is wrapped in one. Models often fence JSON output despite
// instructions not to.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop an optional language tag on the opening fence line.
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		first := strings.TrimSpace(trimmed[:idx])
		if first == "" || isFenceTag(first) {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return len(s) <= 16
}
