package glossary

import (
	"fmt"
	"sort"
	"strings"
)

// RenderPage produces the markdown page for a tier A or B entry: YAML
// front matter, snippets grouped under their source documents, and a
// related-entities section.
func RenderPage(entry *Entry, titles map[int64]string) string {
	var b strings.Builder

	b.WriteString("---\n")
	fmt.Fprintf(&b, "tier: %s\n", entry.Tier)
	fmt.Fprintf(&b, "entity_type: %s\n", entry.Type)
	fmt.Fprintf(&b, "doc_frequency: %d\n", entry.DocFreq)
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# %s\n\n", entry.Entity)

	if len(entry.Snippets) > 0 {
		b.WriteString("## Mentions\n\n")
		for _, s := range entry.Snippets {
			where := s.DocTitle
			if s.Heading != "" {
				where = fmt.Sprintf("%s > %s", s.DocTitle, s.Heading)
			}
			fmt.Fprintf(&b, "> %s\n>\n> -- %s\n\n", s.Text, where)
		}
	}

	b.WriteString("## Documents\n\n")
	for _, id := range entry.DocIDs {
		title := titles[id]
		if title == "" {
			title = fmt.Sprintf("document %d", id)
		}
		fmt.Fprintf(&b, "- [[%s]]\n", title)
	}
	b.WriteString("\n")

	if len(entry.RelatedTo) > 0 {
		b.WriteString("## Related Entities\n\n")
		for _, r := range entry.RelatedTo {
			fmt.Fprintf(&b, "- [[%s]] (pmi %.2f, %d shared docs)\n", r.Entity, r.PMI, r.CoDocs)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderIndex produces the alphabetic index page covering every tier,
// grouped by first letter.
func RenderIndex(idx *Index) string {
	sorted := make([]Entry, len(idx.Entries))
	copy(sorted, idx.Entries)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Entity) < strings.ToLower(sorted[j].Entity)
	})

	var b strings.Builder
	b.WriteString("# Entity Index\n")

	letter := ""
	for _, e := range sorted {
		first := strings.ToUpper(e.Entity[:1])
		if first < "A" || first > "Z" {
			first = "#"
		}
		if first != letter {
			letter = first
			fmt.Fprintf(&b, "\n## %s\n\n", letter)
		}
		switch e.Tier {
		case TierC:
			fmt.Fprintf(&b, "- %s (%d docs)\n", e.Entity, e.DocFreq)
		default:
			fmt.Fprintf(&b, "- [[%s]] (%d docs, tier %s)\n", e.Entity, e.DocFreq, e.Tier)
		}
	}
	return b.String()
}
