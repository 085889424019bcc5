// Package batch implements the per-table accumulation buffers sitting between
// the parse workers and the batch writer.
//
// Each registered table owns an independent buffer with its own lock, so
// concurrent adds to different tables never contend. Threshold detection and
// buffer drain happen atomically under the table's lock; the flush callback
// runs after the lock is released so a buffer lock is never held across I/O
// or a connection-pool wait.
package batch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/KhanhD1nh/export-data/internal/schema"
	"github.com/KhanhD1nh/export-data/pkg/records"
)

// ErrUnknownTable is returned by Add and Size for tables that were not
// registered at construction. Buffers are never created implicitly; an
// unregistered name would silently escape the fixed dependency order.
var ErrUnknownTable = errors.New("batch: unregistered table")

// OnFull is invoked synchronously with the drained rows each time a table's
// buffer crosses the threshold. Rows handed to the callback are no longer in
// the buffer.
type OnFull func(table schema.Table, rows []records.Record)

type buffer struct {
	mu   sync.Mutex
	rows []records.Record
}

// Accumulator collects rows per table and drains a table's buffer through the
// OnFull callback whenever it reaches the configured threshold.
type Accumulator struct {
	threshold int
	order     []schema.Table
	buffers   map[schema.Table]*buffer
	onFull    OnFull
}

// New creates an Accumulator for the given tables. threshold is the row count
// at which a table's buffer is drained; it must be positive. tables must be
// non-empty; their order is the drain order used by FlushAll.
func New(tables []schema.Table, threshold int, onFull OnFull) (*Accumulator, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("batch: threshold must be > 0, got %d", threshold)
	}
	if len(tables) == 0 {
		return nil, errors.New("batch: at least one table required")
	}
	buffers := make(map[schema.Table]*buffer, len(tables))
	order := make([]schema.Table, 0, len(tables))
	for _, t := range tables {
		if !schema.Known(t) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTable, t)
		}
		if _, dup := buffers[t]; dup {
			return nil, fmt.Errorf("batch: table %q registered twice", t)
		}
		buffers[t] = &buffer{}
		order = append(order, t)
	}
	return &Accumulator{
		threshold: threshold,
		order:     order,
		buffers:   buffers,
		onFull:    onFull,
	}, nil
}

// Add appends rows to the table's buffer. When the buffer reaches the
// threshold, full chunks of exactly threshold rows are drained and passed to
// the OnFull callback (one callback per threshold crossing); any remainder
// stays buffered. Add reports whether a flush was triggered.
//
// An empty rows slice is a no-op. Unregistered tables are rejected.
func (a *Accumulator) Add(table schema.Table, rows []records.Record) (bool, error) {
	buf, ok := a.buffers[table]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	if len(rows) == 0 {
		return false, nil
	}

	var chunks [][]records.Record

	buf.mu.Lock()
	buf.rows = append(buf.rows, rows...)
	for len(buf.rows) >= a.threshold {
		chunk := make([]records.Record, a.threshold)
		copy(chunk, buf.rows[:a.threshold])
		rest := buf.rows[a.threshold:]
		buf.rows = append(make([]records.Record, 0, len(rest)), rest...)
		chunks = append(chunks, chunk)
	}
	buf.mu.Unlock()

	if len(chunks) == 0 {
		return false, nil
	}
	if a.onFull != nil {
		for _, chunk := range chunks {
			a.onFull(table, chunk)
		}
	}
	return true, nil
}

// FlushAll drains every buffer regardless of threshold and returns the rows
// per table, walking tables in the registration (dependency) order. Tables
// with empty buffers are omitted. Safe to call concurrently with Add: a table
// drained between two adds simply starts from an empty buffer again.
func (a *Accumulator) FlushAll() map[schema.Table][]records.Record {
	out := make(map[schema.Table][]records.Record)
	for _, t := range a.order {
		buf := a.buffers[t]
		buf.mu.Lock()
		rows := buf.rows
		buf.rows = nil
		buf.mu.Unlock()
		if len(rows) > 0 {
			out[t] = rows
		}
	}
	return out
}

// Size returns the number of rows currently buffered for table.
func (a *Accumulator) Size(table schema.Table) (int, error) {
	buf, ok := a.buffers[table]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return len(buf.rows), nil
}

// TotalSize returns the number of rows buffered across all tables.
func (a *Accumulator) TotalSize() int {
	n := 0
	for _, t := range a.order {
		buf := a.buffers[t]
		buf.mu.Lock()
		n += len(buf.rows)
		buf.mu.Unlock()
	}
	return n
}

// Tables returns the registered tables in drain order.
func (a *Accumulator) Tables() []schema.Table {
	out := make([]schema.Table, len(a.order))
	copy(out, a.order)
	return out
}
