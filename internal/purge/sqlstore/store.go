// Package sqlstore implements purge.Gateway on SQLite.
//
// A Store owns the database handle; each purge invocation takes its own
// Session, which lazily begins a transaction on its first statement and
// starts a fresh one after every Commit.
package sqlstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrStoreClosed is returned when the store has been closed.
	ErrStoreClosed = errors.New("sqlstore: store closed")
	// ErrSessionClosed is returned by a session used after Close.
	ErrSessionClosed = errors.New("sqlstore: session closed")
)

// DefaultBusyTimeout bounds how long a statement waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

// StatementRecorder receives per-statement and per-commit outcomes. It keeps
// this package decoupled from the metrics package.
type StatementRecorder interface {
	RecordStatement(statement string, durationSeconds float64, rows int64, success bool)
	RecordCommit(success bool)
}

type options struct {
	busyTimeout time.Duration
	recorder    StatementRecorder
}

// Option configures Open.
type Option func(*options)

// WithBusyTimeout sets the SQLite busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithRecorder sets the statement recorder.
func WithRecorder(r StatementRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// Store is a SQLite database holding the purgeable data.
type Store struct {
	db       *sqlx.DB
	recorder StatementRecorder

	mu     sync.Mutex
	closed bool
}

// Open creates or opens the database at path and applies the schema.
// Foreign keys stay off: the purge cascade orders deletes itself.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = OFF",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, recorder: o.recorder}, nil
}

// DB returns the underlying handle for seeding and inspection. It must not
// be used while a Session holds an open transaction.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Session returns a new session. Sessions are not safe for concurrent use.
func (s *Store) Session() *Session {
	return &Session{store: s}
}

// Session is a unit of purge work against a Store. It implements
// purge.Gateway.
type Session struct {
	store  *Store
	tx     *sqlx.Tx
	closed bool
}

func (s *Session) begin(ctx context.Context) (*sqlx.Tx, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.store.isClosed() {
		return nil, ErrStoreClosed
	}
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.store.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	s.tx = tx
	return tx, nil
}

// Commit persists everything executed since the previous commit. Committing
// with nothing pending succeeds.
func (s *Session) Commit(_ context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if s.store.recorder != nil {
		s.store.recorder.RecordCommit(err == nil)
	}
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards everything executed since the previous commit.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Close rolls back uncommitted work and ends the session.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	err := s.Rollback()
	s.closed = true
	return err
}

func (s *Session) record(name string, start time.Time, rows int64, err error) {
	if s.store.recorder != nil {
		s.store.recorder.RecordStatement(name, time.Since(start).Seconds(), rows, err == nil)
	}
}

// exec runs a mutation inside the session transaction. Slice arguments are
// expanded into IN lists.
func (s *Session) exec(ctx context.Context, name, query string, args ...any) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	start := time.Now()

	query, args, err = sqlx.In(query, args...)
	if err != nil {
		s.record(name, start, 0, err)
		return fmt.Errorf("%s: expand arguments: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		s.record(name, start, 0, err)
		return fmt.Errorf("%s: %w", name, err)
	}
	rows, _ := res.RowsAffected()
	s.record(name, start, rows, nil)
	return nil
}

// selectUUIDs runs a single-column query inside the session transaction so
// it observes the session's own uncommitted deletes.
func (s *Session) selectUUIDs(ctx context.Context, name, query string, args ...any) ([]string, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	query, args, err = sqlx.In(query, args...)
	if err != nil {
		s.record(name, start, 0, err)
		return nil, fmt.Errorf("%s: expand arguments: %w", name, err)
	}
	var out []string
	if err := tx.SelectContext(ctx, &out, tx.Rebind(query), args...); err != nil {
		s.record(name, start, 0, err)
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	s.record(name, start, int64(len(out)), nil)
	return out, nil
}
