package analyze

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/DocLoom/internal/storage"
)

// GapItem is one flagged coverage gap.
type GapItem struct {
	Kind     string `json:"kind"`
	Subject  string `json:"subject"`
	Detail   string `json:"detail"`
	Severity string `json:"severity"` // low | high
}

// GapReport groups coverage gaps by kind.
type GapReport struct {
	TagGaps     []GapItem `json:"tag_gaps"`
	LinkSinks   []GapItem `json:"link_sinks"`
	OrphanDocs  []GapItem `json:"orphan_docs"`
	StaleTopics []GapItem `json:"stale_topics"`
	Imbalances  []GapItem `json:"project_imbalances"`
}

// GapOptions tunes gap thresholds.
type GapOptions struct {
	StaleDays int       // default 60
	Now       time.Time // zero = time.Now()
}

// Gaps reports undercovered areas of the corpus.
func Gaps(ctx context.Context, store storage.Storage, opts GapOptions) (*GapReport, error) {
	staleDays := opts.StaleDays
	if staleDays <= 0 {
		staleDays = 60
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	docs, err := store.ListDocuments(ctx, "", 0)
	if err != nil {
		return nil, err
	}

	report := &GapReport{}

	// Per-tag doc counts and newest tagged doc, from live docs only.
	tagDocs := make(map[string]int)
	tagNewest := make(map[string]time.Time)
	for _, d := range docs {
		tags, err := store.GetTags(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		for _, tag := range tags {
			tagDocs[tag]++
			if d.UpdatedAt.After(tagNewest[tag]) {
				tagNewest[tag] = d.UpdatedAt
			}
		}
	}

	// Tag gaps: tags below half the mean count, when the mean exceeds 1.
	if len(tagDocs) > 0 {
		total := 0
		for _, n := range tagDocs {
			total += n
		}
		mean := float64(total) / float64(len(tagDocs))
		if mean > 1 {
			for tag, n := range tagDocs {
				if float64(n) < mean/2 {
					severity := "low"
					if n <= 1 {
						severity = "high"
					}
					report.TagGaps = append(report.TagGaps, GapItem{
						Kind:     "tag_gap",
						Subject:  tag,
						Detail:   fmt.Sprintf("%d docs vs mean %.1f", n, mean),
						Severity: severity,
					})
				}
			}
		}
	}

	// Link sinks and orphan docs from the directed edge set.
	for _, d := range docs {
		links, err := store.GetLinksForDocument(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		if len(links) == 0 {
			report.OrphanDocs = append(report.OrphanDocs, GapItem{
				Kind:     "orphan_doc",
				Subject:  d.Title,
				Detail:   fmt.Sprintf("doc #%d has no links", d.ID),
				Severity: "low",
			})
			continue
		}
		incoming, outgoing := 0, 0
		for _, l := range links {
			if l.TargetID == d.ID {
				incoming++
			}
			if l.SourceID == d.ID {
				outgoing++
			}
		}
		if incoming >= 2 && outgoing == 0 {
			severity := "low"
			if incoming >= 5 {
				severity = "high"
			}
			report.LinkSinks = append(report.LinkSinks, GapItem{
				Kind:     "link_sink",
				Subject:  d.Title,
				Detail:   fmt.Sprintf("doc #%d: %d incoming, 0 outgoing", d.ID, incoming),
				Severity: severity,
			})
		}
	}

	// Stale topics: tags whose newest tagged doc is old.
	for tag, newest := range tagNewest {
		age := int(now.Sub(newest).Hours() / 24)
		if age > staleDays {
			severity := "low"
			if age > 120 {
				severity = "high"
			}
			report.StaleTopics = append(report.StaleTopics, GapItem{
				Kind:     "stale_topic",
				Subject:  tag,
				Detail:   fmt.Sprintf("newest doc %d days old", age),
				Severity: severity,
			})
		}
	}

	// Project imbalances: few docs relative to task volume.
	tasks, err := store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	docsPerProject := make(map[string]int)
	for _, d := range docs {
		if d.Project != "" {
			docsPerProject[d.Project]++
		}
	}
	tasksPerProject := make(map[string]int)
	for _, t := range tasks {
		if t.Project != "" {
			tasksPerProject[t.Project]++
		}
	}
	for project, taskCount := range tasksPerProject {
		if taskCount == 0 {
			continue
		}
		ratio := float64(docsPerProject[project]) / float64(taskCount)
		if ratio < 0.5 {
			severity := "low"
			if ratio < 0.2 {
				severity = "high"
			}
			report.Imbalances = append(report.Imbalances, GapItem{
				Kind:     "project_imbalance",
				Subject:  project,
				Detail:   fmt.Sprintf("%d docs for %d tasks (ratio %.2f)", docsPerProject[project], taskCount, ratio),
				Severity: severity,
			})
		}
	}

	for _, items := range [][]GapItem{report.TagGaps, report.LinkSinks, report.OrphanDocs, report.StaleTopics, report.Imbalances} {
		sort.Slice(items, func(i, j int) bool {
			if items[i].Severity != items[j].Severity {
				return items[i].Severity == "high"
			}
			return items[i].Subject < items[j].Subject
		})
	}
	return report, nil
}

// Human renders the gap report as a terminal summary.
func (r *GapReport) Human() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Gaps: %d tag gaps, %d link sinks, %d orphan docs, %d stale topics, %d project imbalances\n",
		len(r.TagGaps), len(r.LinkSinks), len(r.OrphanDocs), len(r.StaleTopics), len(r.Imbalances))
	section := func(name string, items []GapItem) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n", name)
		for _, item := range items {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", item.Severity, item.Subject, item.Detail)
		}
	}
	section("Tag gaps", r.TagGaps)
	section("Link sinks", r.LinkSinks)
	section("Orphan docs", r.OrphanDocs)
	section("Stale topics", r.StaleTopics)
	section("Project imbalances", r.Imbalances)
	return b.String()
}
