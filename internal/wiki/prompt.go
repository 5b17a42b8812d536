package wiki

import (
	"context"
	"fmt"
	"strings"

	"github.com/untoldecay/DocLoom/internal/cluster"
	"github.com/untoldecay/DocLoom/internal/privacy"
	"github.com/untoldecay/DocLoom/internal/types"
)

// Outline is the OUTLINE step's product: a suggested title, section hints
// scaled to the source count, and the entity focus list.
type Outline struct {
	Title       string
	Sections    []string
	EntityFocus []string
}

// titleFromLabel recomposes a cluster label like "event loop / scheduler /
// queues" into a human title.
func titleFromLabel(label string) string {
	parts := strings.Split(label, " / ")
	for i, p := range parts {
		parts[i] = titleCase(strings.TrimSpace(p))
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 && r[0] >= 'a' && r[0] <= 'z' {
			r[0] -= 'a' - 'A'
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func buildOutline(topic *types.WikiTopic, sourceCount int) Outline {
	sections := []string{"Overview", "Key Concepts"}
	if sourceCount >= 5 {
		sections = append(sections, "Architecture & Design Decisions")
	}
	if sourceCount >= 8 {
		sections = append(sections, "Implementation Details")
	}
	sections = append(sections, "Related Topics")

	focus := topic.Entities
	if len(focus) > 8 {
		focus = focus[:8]
	}
	return Outline{
		Title:       titleFromLabel(topic.Label),
		Sections:    sections,
		EntityFocus: focus,
	}
}

func buildSystemPrompt(topic *types.WikiTopic, outline Outline, audience privacy.Audience) string {
	var b strings.Builder
	b.WriteString("You write wiki articles that synthesize a person's working notes into durable reference pages.\n\n")
	b.WriteString("## Output Format\n\n")
	b.WriteString("- Markdown, starting with a single `# Title` heading.\n")
	fmt.Fprintf(&b, "- Suggested title: %s\n", outline.Title)
	fmt.Fprintf(&b, "- Suggested sections: %s\n", strings.Join(outline.Sections, ", "))
	if len(outline.EntityFocus) > 0 {
		fmt.Fprintf(&b, "- Focus on these entities where the sources support it: %s\n", strings.Join(outline.EntityFocus, ", "))
	}
	b.WriteString("\n")
	b.WriteString(privacy.PromptSection(audience))
	b.WriteString("\n## Rules\n\n")
	b.WriteString("- No preamble; begin directly with the title.\n")
	b.WriteString("- Preserve code snippets verbatim.\n")
	b.WriteString("- Where sources disagree, note the disagreement rather than picking silently.\n")
	if topic.EditorialPrompt != "" {
		b.WriteString("\n## Editorial Guidance\n\n")
		b.WriteString(topic.EditorialPrompt)
		b.WriteString("\n")
	}
	return b.String()
}

// firstH1 returns the text of the first top-level heading in markdown.
func firstH1(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// retitle adopts the generated article's H1 as the topic label when it
// differs and its slug does not collide with another topic.
func (e *Engine) retitle(ctx context.Context, topic *types.WikiTopic, docID int64, content string) error {
	h1 := firstH1(content)
	if h1 == "" || h1 == topic.Label {
		return nil
	}
	slug := cluster.Slugify(h1)
	if slug == "" {
		return nil
	}
	if other, err := e.store.GetTopicBySlug(ctx, slug); err != nil {
		return err
	} else if other != nil && other.ID != topic.ID {
		return nil // slug taken, keep the computed label
	}
	topic.Label = h1
	topic.Slug = slug
	if err := e.store.UpdateTopic(ctx, topic); err != nil {
		return err
	}
	_, err := e.store.UpdateDocumentTitle(ctx, docID, h1)
	return err
}
