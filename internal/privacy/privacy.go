// Package privacy filters document content around wiki synthesis. Three
// layers: regex redaction before the LLM sees anything, an audience-specific
// section appended to the synthesis prompt, and a post-generation scan that
// catches whatever the model let through.
package privacy

import (
	"fmt"
	"regexp"
	"strings"
)

// Audience selects filtering intensity for generated articles.
type Audience string

const (
	AudienceMe     Audience = "me"
	AudienceTeam   Audience = "team"
	AudiencePublic Audience = "public"
)

// ParseAudience validates an audience string, defaulting empty to team.
func ParseAudience(s string) (Audience, error) {
	switch Audience(strings.ToLower(strings.TrimSpace(s))) {
	case AudienceMe:
		return AudienceMe, nil
	case AudienceTeam, "":
		return AudienceTeam, nil
	case AudiencePublic:
		return AudiencePublic, nil
	}
	return "", fmt.Errorf("unknown audience %q (expected me, team, or public)", s)
}

var (
	// Known API key prefixes plus generic password/token assignments.
	credentialPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:sk-ant-|sk-|ghp_|gho_|github_pat_|xoxb-|xoxp-|AKIA)[A-Za-z0-9_\-]{8,}\b`),
		regexp.MustCompile(`(?i)\b(?:password|passwd|secret|token|api[_-]?key)\s*[:=]\s*["']?[^\s"']{6,}["']?`),
	}

	userPathPattern = regexp.MustCompile(`(?:/Users/[^/\s]+/|/home/[^/\s]+/|C:\\Users\\[^\\\s]+\\)`)

	// RFC1918 ranges only; public addresses are presumed fine to publish.
	internalIPPattern = regexp.MustCompile(`\b(?:10\.\d{1,3}\.\d{1,3}\.\d{1,3}|192\.168\.\d{1,3}\.\d{1,3}|172\.(?:1[6-9]|2\d|3[01])\.\d{1,3}\.\d{1,3})\b`)

	temporalPattern = regexp.MustCompile(`(?i)\b(today|yesterday|tomorrow|this week|last week|next week|this month|last month|currently|right now|at the moment)\b`)

	delegateBoilerplate = regexp.MustCompile(`(?mi)^.*(?:delegate run|generated with|co-authored-by).*$\n?`)

	tripleBlank = regexp.MustCompile(`\n{3,}`)

	temporalMarker = regexp.MustCompile(`\[TEMPORAL:\s*([^\]]+)\]`)
)

// FilterReport counts what Layer 1 changed in one document.
type FilterReport struct {
	CredentialsRedacted int `json:"credentials_redacted"`
	PathsAnonymized     int `json:"paths_anonymized"`
	IPsRedacted         int `json:"ips_redacted"`
	TemporalMarked      int `json:"temporal_marked"`
	BoilerplateStripped int `json:"boilerplate_stripped"`
}

// Total returns the number of actions taken across all categories.
func (r FilterReport) Total() int {
	return r.CredentialsRedacted + r.PathsAnonymized + r.IPsRedacted +
		r.TemporalMarked + r.BoilerplateStripped
}

// FilterContent is Layer 1: redact credentials and internal addresses,
// anonymize user paths, wrap temporal deictics in [TEMPORAL: ...] markers
// so the model knows to reword them, strip agent boilerplate, and collapse
// runs of blank lines.
func FilterContent(content string) (string, FilterReport) {
	var report FilterReport

	for _, p := range credentialPatterns {
		content = p.ReplaceAllStringFunc(content, func(string) string {
			report.CredentialsRedacted++
			return "[REDACTED]"
		})
	}

	content = userPathPattern.ReplaceAllStringFunc(content, func(string) string {
		report.PathsAnonymized++
		return "~/"
	})

	content = internalIPPattern.ReplaceAllStringFunc(content, func(string) string {
		report.IPsRedacted++
		return "[INTERNAL_IP]"
	})

	content = temporalPattern.ReplaceAllStringFunc(content, func(m string) string {
		report.TemporalMarked++
		return "[TEMPORAL: " + m + "]"
	})

	content = delegateBoilerplate.ReplaceAllStringFunc(content, func(string) string {
		report.BoilerplateStripped++
		return ""
	})

	content = tripleBlank.ReplaceAllString(content, "\n\n")

	return content, report
}

// PromptSection is Layer 2: the content-filtering instructions appended to
// the synthesis system prompt for the given audience.
func PromptSection(audience Audience) string {
	var b strings.Builder
	b.WriteString("## Content Filtering\n\n")
	switch audience {
	case AudienceMe:
		b.WriteString("This article is for the author's own reference.\n")
		b.WriteString("- Drop any [TEMPORAL: ...] markers, rephrasing to absolute dates where the context allows.\n")
		b.WriteString("- Personal references and informal notes may stay.\n")
	case AudiencePublic:
		b.WriteString("This article will be published publicly.\n")
		b.WriteString("- Remove all personal references, names, and attributions.\n")
		b.WriteString("- Remove internal jargon, codenames, and anything revealing internal processes or infrastructure.\n")
		b.WriteString("- Omit any sentence containing a [TEMPORAL: ...] or [REDACTED] marker.\n")
	default: // team
		b.WriteString("This article is shared with the author's team.\n")
		b.WriteString("- Preserve factual attributions and recorded decisions.\n")
		b.WriteString("- Drop casual or personal remarks about individuals.\n")
		b.WriteString("- Omit any sentence containing a [TEMPORAL: ...] or [REDACTED] marker.\n")
	}
	return b.String()
}

// Validate is Layer 3: re-scan generated output for anything that survived.
// Returns the cleaned content and one warning per finding. Surviving
// temporal markers are substituted back bare since the model failed to
// reword them.
func Validate(content string) (string, []string) {
	var warnings []string

	for _, p := range credentialPatterns {
		if p.MatchString(content) {
			warnings = append(warnings, "generated content contained a credential; redacted")
			content = p.ReplaceAllString(content, "[REDACTED]")
		}
	}
	if internalIPPattern.MatchString(content) {
		warnings = append(warnings, "generated content contained an internal IP; redacted")
		content = internalIPPattern.ReplaceAllString(content, "[INTERNAL_IP]")
	}
	if matches := temporalMarker.FindAllStringSubmatch(content, -1); len(matches) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d temporal markers survived generation; unwrapped", len(matches)))
		content = temporalMarker.ReplaceAllString(content, "$1")
	}

	return content, warnings
}
