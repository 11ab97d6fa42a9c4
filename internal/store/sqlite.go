// Package store persists jobs and source files in SQLite. All queue state
// lives here so it survives restarts and is shared by the web process and
// the detached job processes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/trobanga/enzflow/internal/lib"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a job or source file does not exist
var ErrNotFound = errors.New("resource not found")

// ErrSlotBusy is returned when another job already holds the running slot
var ErrSlotBusy = errors.New("another job is currently running")

const defaultStuckAfter = 6 * time.Hour

// Store is the SQLite-backed job store
type Store struct {
	db         *sql.DB
	logger     *lib.Logger
	stuckAfter time.Duration
}

// Option configures a Store
type Option func(*Store)

// WithStuckAfter sets how long a running job holds the slot before
// admission ignores it
func WithStuckAfter(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.stuckAfter = d
		}
	}
}

// Open opens (creating if needed) the database at path. Call Migrate before use.
func Open(ctx context.Context, path string, logger *lib.Logger, opts ...Option) (*Store, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	if err := configureSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger, stuckAfter: defaultStuckAfter}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// buildDSN turns a filesystem path into a modernc DSN. busy_timeout and
// foreign_keys are per connection, so they ride on the DSN; transactions
// begin IMMEDIATE so a read-then-write never hits a stale snapshot.
func buildDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("database path is required")
	}
	if err := ensureStoreDir(path); err != nil {
		return "", err
	}
	return "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate", nil
}

func configureSQLite(ctx context.Context, db *sql.DB) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	return nil
}

func ensureStoreDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}

// Times are stored as fixed-width UTC text so they sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// withTx runs fn in a transaction, committing when it returns nil.
// Transactions that lose a lock race are retried with backoff.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var last error
	attempt := 0
	err := lib.ExecuteWithRetry(ctx, func() error {
		attempt++
		last = s.runTx(ctx, fn)
		return last
	}, lib.DefaultRetryConfig, func(err error) bool {
		if !lib.IsBusyError(err) {
			return false
		}
		lib.LogRetry(s.logger, "store transaction", attempt, lib.DefaultRetryConfig.MaxAttempts, err)
		return true
	})
	if err != nil && last != nil && !lib.IsBusyError(last) {
		return last
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
