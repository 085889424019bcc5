// Package stats provides concurrency-safe named counters for pipeline
// observability.
//
// The counter set is fixed at construction; incrementing a name outside that
// set returns ErrUnknownCounter so typos surface immediately instead of
// silently accumulating under a dead key. A Counters value is injected into
// every component that reports progress — there is no package-level instance.
package stats

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownCounter is returned when a counter name was not registered at
// construction.
var ErrUnknownCounter = errors.New("stats: unknown counter")

// Counter names shared across the pipeline. Per-table names are derived with
// Inserted and Skipped.
const (
	FilesProcessed = "files_processed"
	FilesFailed    = "files_failed"
	BatchesFailed  = "batches_failed"
)

// Inserted returns the inserted-rows counter name for a table.
func Inserted(table string) string { return table + "_inserted" }

// Skipped returns the skipped-rows counter name for a table.
func Skipped(table string) string { return table + "_skipped" }

// Counters is a fixed set of named, non-negative counters. All methods are
// safe for concurrent use; a single coarse lock serializes every operation.
type Counters struct {
	mu     sync.Mutex
	counts map[string]int64
}

// New creates a Counters tracking exactly the given names, all starting at 0.
func New(names ...string) *Counters {
	counts := make(map[string]int64, len(names))
	for _, n := range names {
		counts[n] = 0
	}
	return &Counters{counts: counts}
}

// ForTables creates the standard pipeline counter set: file-level counters
// plus inserted/skipped pairs for each table.
func ForTables(tables []string) *Counters {
	names := []string{FilesProcessed, FilesFailed, BatchesFailed}
	for _, t := range tables {
		names = append(names, Inserted(t), Skipped(t))
	}
	return New(names...)
}

// Increment adds 1 to the named counter.
func (c *Counters) Increment(name string) error { return c.Add(name, 1) }

// Add adds delta to the named counter. Unknown names are rejected.
func (c *Counters) Add(name string, delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.counts[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCounter, name)
	}
	c.counts[name] += delta
	return nil
}

// AddAll adds every entry of m to its counter. The first unknown name aborts
// the remaining entries and is returned.
func (c *Counters) AddAll(m map[string]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, delta := range m {
		if _, ok := c.counts[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCounter, name)
		}
		c.counts[name] += delta
	}
	return nil
}

// Get returns the current value of the named counter, 0 for unknown names.
func (c *Counters) Get(name string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// Snapshot returns a point-in-time copy of all counters. The returned map is
// owned by the caller.
func (c *Counters) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Reset sets every counter back to 0, keeping the registered set.
func (c *Counters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.counts {
		c.counts[k] = 0
	}
}
