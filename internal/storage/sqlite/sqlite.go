// Package sqlite implements the document store on SQLite with FTS5.
//
// Uses the pure Go ncruces driver (wazero-based) so no CGO is required.
// A process-wide default store is lazily opened at the configured path;
// tests construct explicit instances pointed at temp paths.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// timeLayout is how all timestamps are persisted: UTC RFC3339.
// SQLite's own CURRENT_TIMESTAMP layout is accepted on read for
// rows written by triggers or older versions.
const timeLayout = time.RFC3339Nano

// Store is a SQLite-backed document store. Safe for concurrent use by
// multiple goroutines; writes serialize on SQLite's single-writer lock.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

// Open creates or opens the database at path, acquires the lock file,
// applies the base schema, and runs pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil || !locked {
		return nil, fmt.Errorf("failed to acquire database lock %s: %w", lock.Path(), err)
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: path, lock: lock}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := RunMigrations(s.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close releases the database and its lock file.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	return err
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for read-only diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

// withTx runs fn inside a transaction, committing on nil return.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var (
	defaultMu    sync.Mutex
	defaultStore *Store
	defaultPath  string
)

// SetDefaultPath configures where the process-wide default store lives.
// Must be called before the first Default(); later calls are ignored once
// the store is open.
func SetDefaultPath(path string) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultStore == nil {
		defaultPath = path
	}
}

// Default returns the lazily opened process-wide store.
func Default(ctx context.Context) (*Store, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultStore != nil {
		return defaultStore, nil
	}
	path := defaultPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".loom", "loom.db")
	}
	s, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defaultStore = s
	return s, nil
}

// CloseDefault closes the process-wide store if it was opened.
func CloseDefault() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultStore == nil {
		return nil
	}
	err := defaultStore.Close()
	defaultStore = nil
	return err
}

// utcNow returns the current time truncated for stable round-trips.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts RFC3339 and SQLite's CURRENT_TIMESTAMP layout.
// Returns the zero time when the value is empty or malformed; analyzers
// treat that as "very old" rather than failing the whole report.
func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseTimePtr(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t := parseTime(v.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

// isUniqueConstraintError reports whether err is a UNIQUE violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
