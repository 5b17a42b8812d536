package analyze

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/DocLoom/internal/storage"
	"github.com/untoldecay/DocLoom/internal/types"
)

// DriftItem is one flagged task structure.
type DriftItem struct {
	TaskID   int64  `json:"task_id"`
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	IdleDays int    `json:"idle_days"`
}

// StaleDocRef is a document referenced by a task that has gone stale.
type StaleDocRef struct {
	DocumentID int64  `json:"document_id"`
	TaskID     int64  `json:"task_id"`
	TaskTitle  string `json:"task_title"`
}

// DriftReport surfaces abandoned task structures.
type DriftReport struct {
	StaleDays     int           `json:"stale_days"`
	StaleEpics    []DriftItem   `json:"stale_epics"`
	OrphanedTasks []DriftItem   `json:"orphaned_tasks"`
	StaleDocs     []StaleDocRef `json:"stale_docs"`
	BurstEpics    []DriftItem   `json:"burst_epics"`
}

// DriftOptions tunes the drift thresholds.
type DriftOptions struct {
	StaleDays int       // default 30
	Now       time.Time // zero = time.Now()
}

const (
	burstMinChildren = 3
	burstWindowDays  = 7
)

// Drift inspects the task table for structures that have gone quiet.
func Drift(ctx context.Context, store storage.Storage, opts DriftOptions) (*DriftReport, error) {
	staleDays := opts.StaleDays
	if staleDays <= 0 {
		staleDays = 30
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	tasks, err := store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	report := &DriftReport{StaleDays: staleDays}

	byID := make(map[int64]types.Task, len(tasks))
	children := make(map[int64][]types.Task)
	for _, t := range tasks {
		byID[t.ID] = t
		if t.ParentID != nil {
			children[*t.ParentID] = append(children[*t.ParentID], t)
		}
	}

	idleDays := func(t time.Time) int {
		if t.IsZero() {
			return int(missingTimestampDays)
		}
		return int(now.Sub(t).Hours() / 24)
	}

	// Stale epics: open epics whose children's most recent activity is old.
	for _, t := range tasks {
		if t.Type != "epic" || isClosed(t.Status) {
			continue
		}
		kids := children[t.ID]
		if len(kids) == 0 {
			continue
		}
		var newest time.Time
		for _, k := range kids {
			if k.UpdatedAt.After(newest) {
				newest = k.UpdatedAt
			}
		}
		if idle := idleDays(newest); idle > staleDays {
			report.StaleEpics = append(report.StaleEpics, DriftItem{
				TaskID:   t.ID,
				Title:    t.Title,
				Detail:   fmt.Sprintf("%d children, newest activity %d days ago", len(kids), idle),
				IdleDays: idle,
			})
		}
	}

	// Orphaned active tasks: active and idle past max(staleDays/2, 7).
	orphanDays := staleDays / 2
	if orphanDays < 7 {
		orphanDays = 7
	}
	for _, t := range tasks {
		if t.Status != "active" {
			continue
		}
		if idle := idleDays(t.UpdatedAt); idle > orphanDays {
			report.OrphanedTasks = append(report.OrphanedTasks, DriftItem{
				TaskID:   t.ID,
				Title:    t.Title,
				Detail:   fmt.Sprintf("active but idle %d days", idle),
				IdleDays: idle,
			})
		}
	}

	// Stale linked docs: source docs of the tasks flagged above.
	flagged := make(map[int64]bool)
	for _, item := range report.StaleEpics {
		flagged[item.TaskID] = true
	}
	for _, item := range report.OrphanedTasks {
		flagged[item.TaskID] = true
	}
	seenDoc := make(map[int64]bool)
	for _, t := range tasks {
		if t.SourceDocID == nil || !flagged[t.ID] || seenDoc[*t.SourceDocID] {
			continue
		}
		seenDoc[*t.SourceDocID] = true
		report.StaleDocs = append(report.StaleDocs, StaleDocRef{
			DocumentID: *t.SourceDocID,
			TaskID:     t.ID,
			TaskTitle:  t.Title,
		})
	}

	// Burst epics: a quick burst of children followed by silence.
	for _, t := range tasks {
		if t.Type != "epic" {
			continue
		}
		kids := children[t.ID]
		if len(kids) < burstMinChildren {
			continue
		}
		var earliest, latestCreated, newestActivity time.Time
		for i, k := range kids {
			if i == 0 || k.CreatedAt.Before(earliest) {
				earliest = k.CreatedAt
			}
			if k.CreatedAt.After(latestCreated) {
				latestCreated = k.CreatedAt
			}
			if k.UpdatedAt.After(newestActivity) {
				newestActivity = k.UpdatedAt
			}
		}
		window := latestCreated.Sub(earliest).Hours() / 24
		idle := idleDays(newestActivity)
		if window <= burstWindowDays && idle > staleDays {
			report.BurstEpics = append(report.BurstEpics, DriftItem{
				TaskID:   t.ID,
				Title:    t.Title,
				Detail:   fmt.Sprintf("%d children created within %.0f days, silent %d days", len(kids), window, idle),
				IdleDays: idle,
			})
		}
	}

	sortDriftItems(report.StaleEpics)
	sortDriftItems(report.OrphanedTasks)
	sortDriftItems(report.BurstEpics)
	return report, nil
}

func isClosed(status string) bool {
	switch status {
	case "closed", "done", "cancelled":
		return true
	}
	return false
}

func sortDriftItems(items []DriftItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].IdleDays != items[j].IdleDays {
			return items[i].IdleDays > items[j].IdleDays
		}
		return items[i].TaskID < items[j].TaskID
	})
}

// Human renders the drift report as a terminal summary.
func (r *DriftReport) Human() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Drift (stale after %d days): %d stale epics, %d orphaned tasks, %d stale docs, %d burst epics\n",
		r.StaleDays, len(r.StaleEpics), len(r.OrphanedTasks), len(r.StaleDocs), len(r.BurstEpics))
	section := func(name string, items []DriftItem) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n", name)
		for _, item := range items {
			fmt.Fprintf(&b, "  #%-4d %s (%s)\n", item.TaskID, item.Title, item.Detail)
		}
	}
	section("Stale epics", r.StaleEpics)
	section("Orphaned active tasks", r.OrphanedTasks)
	section("Burst epics", r.BurstEpics)
	if len(r.StaleDocs) > 0 {
		b.WriteString("\nStale linked docs:\n")
		for _, d := range r.StaleDocs {
			fmt.Fprintf(&b, "  doc #%d via task #%d %s\n", d.DocumentID, d.TaskID, d.TaskTitle)
		}
	}
	return b.String()
}
