package kv

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - prefs table
const currentSchemaVersion = 1

// SQLite is a Store backed by a single SQLite file.
//
// Writes are collected in one open transaction and committed by Flush, so a
// batch of Sets is all-or-nothing on disk. Reads go through the same
// transaction while one is open and therefore see pending writes. A write
// that fails discards the whole pending batch.
type SQLite struct {
	mu     sync.Mutex
	db     *sql.DB
	tx     *sql.Tx
	closed bool
}

// OpenSQLite creates or opens a database at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and an in-memory database
	// exists per connection, so keep exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and stamps user_version.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// conn returns the open transaction if any, else the database.
// Caller holds s.mu.
func (s *SQLite) conn() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// begin opens the write transaction if none is open. Caller holds s.mu.
//
// The transaction belongs to the store, not to any one request: it is begun
// with a background context and only individual statements see the caller's
// context.
func (s *SQLite) begin() error {
	if s.tx != nil {
		return nil
	}
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	s.tx = tx
	return nil
}

// abort rolls back and drops the open transaction after a failed write, so
// the next write starts a fresh batch. Caller holds s.mu.
func (s *SQLite) abort() {
	if s.tx == nil {
		return
	}
	_ = s.tx.Rollback()
	s.tx = nil
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}

	if err := ctx.Err(); err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}

	var value string
	err := s.conn().QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if errors.Is(err, sql.ErrTxDone) {
		s.tx = nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	if err := s.begin(); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO prefs (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		s.abort()
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	if err := s.begin(); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}

	if _, err := s.tx.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, key); err != nil {
		s.abort()
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Flush commits pending writes.
func (s *SQLite) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.tx == nil {
		return nil
	}

	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("flush: commit: %w", err)
	}
	return nil
}

// Close rolls back unflushed writes and closes the database.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
