// Package storage contains the backend-agnostic pieces of the write path: the
// connection contract, the bounded connection pool, and the ordered batch
// writer. Concrete backends (postgres, sqlite) live in subpackages and plug in
// through the Dialer/Conn pair.
package storage

import (
	"context"

	"github.com/KhanhD1nh/export-data/internal/schema"
	"github.com/KhanhD1nh/export-data/pkg/records"
)

// Conn is one live connection to the relational store.
//
// Implementations are not required to be safe for concurrent use; the pool
// guarantees at most one holder at a time.
type Conn interface {
	// InsertBatch writes rows into table inside a single transaction: all
	// rows commit together or none do. Rows whose primary key already exists
	// (in storage or earlier in the same batch) are skipped, not errors.
	// Returns the number of rows actually inserted.
	InsertBatch(ctx context.Context, table schema.Table, rows []records.Record) (int64, error)

	// Reset discards any uncommitted work so the connection carries no state
	// from one holder into the next. Called by the pool on every release.
	Reset(ctx context.Context) error

	// Closed reports whether the connection is broken or has been closed.
	// The pool replaces closed connections instead of handing them out.
	Closed() bool

	// Close releases the underlying handle. Safe to call more than once.
	Close(ctx context.Context) error
}

// Dialer opens a fresh connection to the store.
type Dialer func(ctx context.Context) (Conn, error)

// SchemaSetup prepares the storage schema before processing starts. It is
// invoked exactly once, single-threaded, with a pooled connection; failure
// aborts the pipeline before any unit is dispatched.
type SchemaSetup interface {
	EnsureTables(ctx context.Context, conn Conn) error
}
