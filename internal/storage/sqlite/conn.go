// Package sqlite implements the storage backend on a local SQLite file via
// database/sql and the modernc.org/sqlite driver. It is the zero-setup
// backend for local runs and tests; production imports target postgres.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/KhanhD1nh/export-data/internal/schema"
	"github.com/KhanhD1nh/export-data/internal/storage"
	"github.com/KhanhD1nh/export-data/pkg/records"
)

// Store owns the shared *sql.DB. SQLite serializes writers internally, so
// every pooled Conn is a session on the same database handle.
type Store struct {
	path string

	once sync.Once
	db   *sql.DB
	err  error
}

// NewStore prepares a store for the database file at path. The file is
// created lazily on first dial.
func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) open() (*sql.DB, error) {
	s.once.Do(func() {
		// busy_timeout keeps concurrent flushes waiting instead of failing
		// with SQLITE_BUSY.
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", s.path)
		s.db, s.err = sql.Open("sqlite", dsn)
	})
	return s.db, s.err
}

// Dial implements storage.Dialer: each call checks out one session from the
// shared handle.
func (s *Store) Dial(ctx context.Context) (storage.Conn, error) {
	db, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", s.path, err)
	}
	sc, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: session: %w", err)
	}
	return &Conn{conn: sc}, nil
}

// Close releases the shared handle after the pool has shut down.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Conn is one SQLite session.
type Conn struct {
	conn   *sql.Conn
	tx     *sql.Tx
	closed bool
}

var insertSQL = func() map[schema.Table]string {
	m := make(map[schema.Table]string, len(schema.DependencyOrder()))
	for _, t := range schema.DependencyOrder() {
		cols := schema.Columns(t)
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = `"` + c + `"`
		}
		ph := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
		m[t] = fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s) VALUES (%s)`,
			t, strings.Join(quoted, ", "), ph)
	}
	return m
}()

// InsertBatch writes rows in one transaction with INSERT OR IGNORE, returning
// how many actually landed.
func (c *Conn) InsertBatch(ctx context.Context, table schema.Table, rows []records.Record) (int64, error) {
	if !schema.Known(table) {
		return 0, fmt.Errorf("sqlite: unknown table %q", table)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	c.tx = tx

	stmt, err := tx.PrepareContext(ctx, insertSQL[table])
	if err != nil {
		c.rollback()
		return 0, fmt.Errorf("sqlite: prepare %s: %w", table, err)
	}
	defer stmt.Close()

	cols := schema.Columns(table)
	var inserted int64
	for _, row := range rows {
		args := make([]any, len(cols))
		for i, col := range cols {
			args[i] = row[col]
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			c.rollback()
			return 0, fmt.Errorf("sqlite: insert %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			c.rollback()
			return 0, fmt.Errorf("sqlite: insert %s: %w", table, err)
		}
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		c.rollback()
		return 0, fmt.Errorf("sqlite: commit %s: %w", table, err)
	}
	c.tx = nil
	return inserted, nil
}

// Reset rolls back any in-flight transaction.
func (c *Conn) Reset(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx = nil
	if err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("sqlite: rollback: %w", err)
	}
	return nil
}

// Closed reports whether this session has been returned to the driver.
func (c *Conn) Closed() bool { return c.closed }

// Close returns the session to the shared handle.
func (c *Conn) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Conn) rollback() {
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
}
