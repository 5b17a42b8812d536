// Package extractor pulls named entities out of markdown documents, either
// heuristically (headings, code spans, bold text, proper nouns) or through
// an LLM backend that also proposes entity relationships.
package extractor

import (
	"regexp"
	"strings"

	"github.com/untoldecay/DocLoom/internal/types"
)

const minEntityLength = 4

// Generic words that make useless entities on their own.
var entityStopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"will": true, "when": true, "then": true, "than": true, "them": true,
	"what": true, "your": true, "here": true, "there": true, "about": true,
	"should": true, "would": true, "could": true, "these": true, "those": true,
	"into": true, "also": true, "some": true, "only": true, "just": true,
	"like": true, "more": true, "other": true, "after": true, "before": true,
	"notes": true, "note": true, "todo": true, "done": true, "list": true,
	"item": true, "items": true, "misc": true, "stuff": true, "things": true,
}

// Heading words that describe document structure, not subject matter.
var headingStopwords = map[string]bool{
	"summary": true, "overview": true, "introduction": true, "conclusion": true,
	"background": true, "context": true, "details": true, "description": true,
	"usage": true, "examples": true, "example": true, "references": true,
	"appendix": true, "changelog": true, "contents": true, "prerequisites": true,
	"installation": true, "setup": true, "configuration": true, "troubleshooting": true,
	"faq": true, "see also": true, "next steps": true, "resources": true,
}

// Noise words stripped from the tail of proper-noun phrases.
var trailingNoise = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true,
	"for": true, "and": true, "or": true, "to": true, "at": true, "by": true,
}

var (
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	codeSpanRe   = regexp.MustCompile("`([^`\n]+)`")
	boldRe       = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	properNounRe = regexp.MustCompile(`\b(?:[A-Z][a-zA-Z0-9]+\s+)+[A-Z][a-zA-Z0-9]+\b`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// normalizeEntity lowercases, collapses whitespace, and trims punctuation
// from the ends. Returns "" for entities too short or stopworded.
func normalizeEntity(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.Trim(s, ".,:;!?\"'()[]{}#*_-")
	if len(s) < minEntityLength || entityStopwords[s] {
		return ""
	}
	return s
}

// shellCommandLike reports whether a code span looks like a shell
// invocation rather than a term worth indexing.
func shellCommandLike(s string) bool {
	if !strings.Contains(s, " ") {
		return false
	}
	return strings.ContainsAny(s, "/$|>")
}

// stripTrailingNoise drops articles and prepositions left dangling at the
// end of a proper-noun phrase.
func stripTrailingNoise(s string) string {
	words := strings.Fields(s)
	for len(words) > 0 && trailingNoise[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// stripLeadingArticles removes leading articles/prepositions from a
// proper-noun phrase so "The Query Planner" and "Query Planner" collapse.
func stripLeadingArticles(s string) string {
	words := strings.Fields(s)
	for len(words) > 1 && trailingNoise[strings.ToLower(words[0])] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

// ExtractEntities runs the heuristic passes over markdown content. Results
// are deduplicated by normalized name, keeping the highest-confidence type.
func ExtractEntities(title, content string) []types.DocumentEntity {
	ownTitle := normalizeEntity(title)
	seen := make(map[string]bool)
	var out []types.DocumentEntity

	add := func(raw, entityType string, confidence float64) {
		name := normalizeEntity(raw)
		if name == "" || name == ownTitle || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, types.DocumentEntity{
			Entity:     name,
			Type:       entityType,
			Confidence: confidence,
		})
	}

	for _, m := range headingRe.FindAllStringSubmatch(content, -1) {
		heading := strings.TrimSpace(m[1])
		if headingStopwords[strings.ToLower(heading)] {
			continue
		}
		add(heading, "heading", 0.95)
	}

	for _, m := range codeSpanRe.FindAllStringSubmatch(content, -1) {
		span := strings.TrimSpace(m[1])
		if shellCommandLike(span) {
			continue
		}
		add(span, "tech_term", 0.9)
	}

	for _, m := range boldRe.FindAllStringSubmatch(content, -1) {
		bold := strings.TrimSpace(m[1])
		if len(bold) < minEntityLength {
			continue
		}
		add(bold, "concept", 0.85)
	}

	for _, m := range properNounRe.FindAllString(content, -1) {
		phrase := stripTrailingNoise(stripLeadingArticles(m))
		if phrase == "" {
			continue
		}
		add(phrase, "proper_noun", 0.7)
	}

	return out
}
