// Package store is the transactional repository behind chasm's canonical
// model: sessions, messages, documents, checkpoints, and the append-only
// event log. All writes flow through Run so every unit of work commits
// atomically with its derived-field updates, full-text rows, and events.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/nervosys/chasm/internal/logging"
)

// Store owns the SQLite database. One writer at a time: SQLite allows a
// single writing connection, and serializing the whole unit of work also
// keeps identity-resolution-then-write sequences from interleaving.
type Store struct {
	db *sql.DB

	// writeMu serializes units of work.
	writeMu sync.Mutex

	// version caches MAX(events.version); updated after each commit.
	version atomic.Int64

	// onCommit receives events appended by a committed unit of work.
	// Set by the sync engine for live broadcast.
	onCommitMu sync.RWMutex
	onCommit   func([]Event)
}

// Open creates or opens the store at path, applying pragmas and the schema.
// Idempotent: safe to call over an existing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// Single connection: SQLite supports one writer, and a lone connection
	// avoids SQLITE_BUSY between our own readers and writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}

	var max sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM events`).Scan(&max); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed version counter: %w", err)
	}
	s.version.Store(max.Int64)

	logging.L().Debugw("store opened", "path", path, "version", max.Int64)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CurrentVersion returns the version of the most recently committed event.
func (s *Store) CurrentVersion() int64 {
	return s.version.Load()
}

// OnCommit registers the callback invoked with the events of each committed
// unit of work, in version order. Called with the write lock held, so the
// callback must return quickly and must not start another unit of work.
func (s *Store) OnCommit(fn func([]Event)) {
	s.onCommitMu.Lock()
	s.onCommit = fn
	s.onCommitMu.Unlock()
}

// Tx is one unit of work. Every method on Tx runs inside the same SQLite
// transaction; either all of its writes commit or none do.
type Tx struct {
	ctx      context.Context
	tx       *sql.Tx
	appended []Event
}

// Run executes fn as one atomic unit of work. On error the transaction is
// rolled back and the error returned wrapped in *TransactionError.
//
// The write lock is held through the version store and the commit
// notification, not just the commit itself: two units of work finishing
// close together must update the cached version and reach the onCommit hook
// in the order their events were versioned.
func (s *Store) Run(ctx context.Context, fn func(*Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	events, err := s.runLocked(ctx, fn)
	if err != nil {
		return err
	}

	if len(events) > 0 {
		s.version.Store(events[len(events)-1].Version)

		s.onCommitMu.RLock()
		notify := s.onCommit
		s.onCommitMu.RUnlock()
		if notify != nil {
			notify(events)
		}
	}
	return nil
}

func (s *Store) runLocked(ctx context.Context, fn func(*Tx) error) ([]Event, error) {
	raw, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &TransactionError{Op: "begin", Err: err, Retryable: isBusy(err)}
	}

	t := &Tx{ctx: ctx, tx: raw}
	if err := fn(t); err != nil {
		_ = raw.Rollback()
		if te, ok := err.(*TransactionError); ok {
			return nil, te
		}
		return nil, &TransactionError{Op: "exec", Err: err, Retryable: isBusy(err)}
	}

	if err := raw.Commit(); err != nil {
		_ = raw.Rollback()
		return nil, &TransactionError{Op: "commit", Err: err, Retryable: isBusy(err)}
	}

	return t.appended, nil
}

// RunWithRetry retries Run up to attempts times on retryable transaction
// errors (lock contention). Non-retryable errors surface immediately.
func (s *Store) RunWithRetry(ctx context.Context, attempts int, fn func(*Tx) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = s.Run(ctx, fn)
		if err == nil {
			return nil
		}
		te, ok := err.(*TransactionError)
		if !ok || !te.Retryable {
			return err
		}
		logging.L().Debugw("retrying unit of work", "attempt", i+1, "error", err)
	}
	return err
}

// View runs fn with read access outside any unit of work. Readers observe
// only committed state.
func (s *Store) View(ctx context.Context, fn func(*Tx) error) error {
	raw, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read: %w", err)
	}
	defer raw.Rollback()

	t := &Tx{ctx: ctx, tx: raw}
	return fn(t)
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}
