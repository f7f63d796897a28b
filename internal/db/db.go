// Package db provides SQLite database access for funnelbot.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Database errors.
var (
	ErrNotFound = errors.New("record not found")
)

// StorageError marks a repository I/O failure. Callers decide whether to
// retry, log, or abandon the surrounding operation; the repository never
// silently drops a write.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// DB wraps the SQLite connection shared by all repositories.
type DB struct {
	*sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the database file at path.
func Open(path string, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	return open(dsn, logger)
}

// OpenInMemory opens a private in-memory database, used by tests.
func OpenInMemory(logger zerolog.Logger) (*DB, error) {
	return open("file::memory:?_pragma=foreign_keys(1)", logger)
}

func open(dsn string, logger zerolog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer connection sidesteps SQLITE_BUSY between the event
	// path and the two scheduler loops; reads are cheap enough to share it.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: conn, logger: logger.With().Str("component", "db").Logger()}, nil
}

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise. Logical writes that must be atomic (a state change plus a
// timer registration) go through here.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin tx", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.logger.Warn().Err(rbErr).Msg("transaction rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit tx", err)
	}
	return nil
}
