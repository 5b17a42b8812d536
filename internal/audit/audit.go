// Package audit keeps an append-only JSONL trail of every LLM call: model,
// prompt/response sizes, duration, cost, and errors. The trail lives next to
// the database so cost questions can be answered after the fact.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileName is the audit log file name stored under the data directory.
const FileName = "llm_audit.jsonl"

// Entry is one recorded LLM call.
type Entry struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Operation    string    `json:"operation"` // extract, label, synthesize, summarize
	Model        string    `json:"model"`
	Backend      string    `json:"backend,omitempty"`
	PromptChars  int       `json:"prompt_chars"`
	OutputChars  int       `json:"output_chars"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
	CostUSD      float64   `json:"cost_usd,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	Error        string    `json:"error,omitempty"`
}

// Log appends entries to a JSONL file. Safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	path string
}

// Open returns a log writing under dataDir. Nothing is created until the
// first Record call.
func Open(dataDir string) *Log {
	return &Log{path: filepath.Join(dataDir, FileName)}
}

// Record appends one entry as a single JSON line, assigning an id and
// timestamp. Callers must not fail the operation being described when the
// audit write itself fails; log and move on.
func (l *Log) Record(e Entry) (string, error) {
	if e.Operation == "" {
		return "", fmt.Errorf("operation is required")
	}
	e.ID = uuid.NewString()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	} else {
		e.CreatedAt = e.CreatedAt.UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&e); err != nil {
		return "", fmt.Errorf("failed to write audit entry: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush audit log: %w", err)
	}
	return e.ID, nil
}

// Tail returns up to n most recent entries, oldest first. A missing file
// is an empty log, not an error.
func (l *Log) Tail(n int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue // tolerate a torn write at the tail
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
