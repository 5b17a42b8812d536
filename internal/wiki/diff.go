package wiki

import (
	"context"
	"fmt"
	"strings"

	"github.com/untoldecay/DocLoom/internal/storage"
)

// ArticleDiff returns a unified diff between an article's previous content
// and its current content, or empty when no previous version exists.
func (e *Engine) ArticleDiff(ctx context.Context, topicID int64) (string, error) {
	article, err := e.store.GetArticleByTopic(ctx, topicID)
	if err != nil {
		return "", err
	}
	if article == nil {
		return "", fmt.Errorf("article for topic %d: %w", topicID, storage.ErrNotFound)
	}
	if article.PreviousContent == "" {
		return "", nil
	}
	doc, err := e.store.GetDocument(ctx, article.DocumentID)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", fmt.Errorf("article document %d: %w", article.DocumentID, storage.ErrNotFound)
	}
	return UnifiedDiff("previous", "current", article.PreviousContent, doc.Content), nil
}

// UnifiedDiff renders a classic unified diff (3 lines of context) between
// two texts. Empty when the texts are equal.
func UnifiedDiff(aName, bName, a, b string) string {
	if a == b {
		return ""
	}
	aLines := strings.Split(a, "\n")
	bLines := strings.Split(b, "\n")
	ops := diffOps(aLines, bLines)

	// Annotate each op with its rendered line and the positions before it
	// applies, so hunk boundaries can be chosen after the full walk.
	type annotated struct {
		kind     opKind
		text     string
		aAt, bAt int
	}
	ann := make([]annotated, len(ops))
	ai, bi := 0, 0
	for i, op := range ops {
		ann[i] = annotated{kind: op.kind, aAt: ai, bAt: bi}
		switch op.kind {
		case opEqual:
			ann[i].text = " " + aLines[ai]
			ai++
			bi++
		case opDelete:
			ann[i].text = "-" + aLines[ai]
			ai++
		case opInsert:
			ann[i].text = "+" + bLines[bi]
			bi++
		}
	}

	const context = 3
	// Change runs separated by at most 2*context equal lines share a hunk,
	// so adjacent context windows never overlap or repeat lines.
	var hunks []hunk
	i := 0
	for i < len(ann) {
		if ann[i].kind == opEqual {
			i++
			continue
		}
		last := i
		j := i
		for j < len(ann) {
			if ann[j].kind != opEqual {
				last = j
				j++
				continue
			}
			run := 0
			for j+run < len(ann) && ann[j+run].kind == opEqual {
				run++
			}
			if j+run == len(ann) || run > 2*context {
				break
			}
			j += run
		}
		start := i - context
		if start < 0 {
			start = 0
		}
		end := last + context + 1
		if end > len(ann) {
			end = len(ann)
		}
		h := hunk{aStart: ann[start].aAt + 1, bStart: ann[start].bAt + 1}
		for k := start; k < end; k++ {
			h.lines = append(h.lines, ann[k].text)
		}
		hunks = append(hunks, h)
		i = end
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", aName, bName)
	for _, h := range hunks {
		aCount, bCount := 0, 0
		for _, l := range h.lines {
			switch l[0] {
			case ' ':
				aCount++
				bCount++
			case '-':
				aCount++
			case '+':
				bCount++
			}
		}
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.aStart, aCount, h.bStart, bCount)
		for _, l := range h.lines {
			sb.WriteString(l)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

type hunk struct {
	aStart, bStart int
	lines          []string
}

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

type diffOp struct {
	kind opKind
}

// diffOps computes an edit script by LCS over lines.
func diffOps(a, b []string) []diffOp {
	n, m := len(a), len(b)
	// lcs[i][j] = LCS length of a[i:], b[j:]
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}
	var ops []diffOp
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, diffOp{opEqual})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, diffOp{opDelete})
			i++
		default:
			ops = append(ops, diffOp{opInsert})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, diffOp{opDelete})
	}
	for ; j < m; j++ {
		ops = append(ops, diffOp{opInsert})
	}
	return ops
}
