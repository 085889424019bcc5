package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/KhanhD1nh/export-data/internal/metrics"
	"github.com/KhanhD1nh/export-data/internal/schema"
	"github.com/KhanhD1nh/export-data/internal/stats"
	"github.com/KhanhD1nh/export-data/pkg/records"
)

const (
	defaultAcquireTimeout = 30 * time.Second
	defaultMaxAttempts    = 3
	defaultBackoffBase    = 200 * time.Millisecond
)

// Writer drains table batches to storage in dependency order, one pooled
// connection and one transaction per table batch.
//
// Per-batch failures are absorbed: rows are counted as skipped, the failure
// is reflected in counters and logs, and the pipeline keeps running. For
// every batch, inserted + skipped == len(rows).
type Writer struct {
	pool     *Pool
	counters *stats.Counters
	order    []schema.Table

	acquireTimeout time.Duration
	maxAttempts    int
	backoffBase    time.Duration
	sleep          func(time.Duration) // seam for tests
}

// WriterOption adjusts a Writer at construction.
type WriterOption func(*Writer)

// WithAcquireTimeout sets the per-attempt connection acquire timeout.
func WithAcquireTimeout(d time.Duration) WriterOption {
	return func(w *Writer) { w.acquireTimeout = d }
}

// WithRetry sets the bounded retry policy used when acquiring a connection
// fails: attempts total tries with backoff base*attempt between them.
func WithRetry(attempts int, base time.Duration) WriterOption {
	return func(w *Writer) {
		w.maxAttempts = attempts
		w.backoffBase = base
	}
}

// NewWriter creates a Writer flushing through pool and reporting into
// counters. Writes follow schema.DependencyOrder.
func NewWriter(pool *Pool, counters *stats.Counters, opts ...WriterOption) *Writer {
	w := &Writer{
		pool:           pool,
		counters:       counters,
		order:          schema.DependencyOrder(),
		acquireTimeout: defaultAcquireTimeout,
		maxAttempts:    defaultMaxAttempts,
		backoffBase:    defaultBackoffBase,
		sleep:          time.Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write inserts one batch of rows into table. Duplicate primary keys within
// the batch are collapsed before the insert; duplicates already in storage
// are skipped by the backend. Connection acquisition is retried with
// increasing backoff up to the configured attempt limit.
//
// The returned error reports the batch failure for logging; counters are
// already updated either way, and inserted + skipped == len(rows) always.
func (w *Writer) Write(ctx context.Context, table schema.Table, rows []records.Record) (inserted, skipped int64, err error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}

	total := int64(len(rows))
	unique := dedupeByKey(table, rows)
	fingerprint := batchFingerprint(table, unique)
	start := time.Now()

	conn, err := w.acquireWithRetry(ctx)
	if err != nil {
		w.recordSkipped(table, total)
		_ = w.counters.Increment(stats.BatchesFailed)
		metrics.RecordBatchFailure(table.String())
		return 0, total, fmt.Errorf("write %s batch %016x: %w", table, fingerprint, err)
	}
	defer w.pool.Release(conn)

	n, err := conn.InsertBatch(ctx, table, unique)
	if err != nil {
		// The transaction rolled back; the release above also resets the
		// connection so no partial state survives.
		w.recordSkipped(table, total)
		_ = w.counters.Increment(stats.BatchesFailed)
		metrics.RecordBatchFailure(table.String())
		return 0, total, fmt.Errorf("write %s batch %016x: %w", table, fingerprint, err)
	}

	inserted = n
	skipped = total - n
	_ = w.counters.Add(stats.Inserted(table.String()), inserted)
	_ = w.counters.Add(stats.Skipped(table.String()), skipped)
	metrics.RecordRows(table.String(), inserted, skipped)

	log.Printf("writer: table=%s batch=%016x rows=%d inserted=%d skipped=%d elapsed=%s",
		table, fingerprint, total, inserted, skipped,
		time.Since(start).Truncate(time.Millisecond))
	return inserted, skipped, nil
}

// WriteOrdered flushes a whole unit: every table present is written in
// dependency order, each table waiting for all earlier tables to complete
// (success or failure) before starting. Absent tables do not block later
// ones, and a failed batch does not stop the remaining tables.
func (w *Writer) WriteOrdered(ctx context.Context, unit map[schema.Table][]records.Record) {
	for _, table := range w.order {
		rows := unit[table]
		if len(rows) == 0 {
			continue
		}
		if _, _, err := w.Write(ctx, table, rows); err != nil {
			log.Printf("writer: batch failed: %v", err)
		}
	}
}

func (w *Writer) acquireWithRetry(ctx context.Context) (Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		conn, err := w.pool.Acquire(ctx, w.acquireTimeout)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt < w.maxAttempts {
			delay := w.backoffBase * time.Duration(attempt)
			log.Printf("writer: acquire attempt %d/%d failed, retrying in %s: %v",
				attempt, w.maxAttempts, delay, err)
			w.sleep(delay)
		}
	}
	return nil, fmt.Errorf("acquire failed after %d attempts: %w", w.maxAttempts, lastErr)
}

func (w *Writer) recordSkipped(table schema.Table, n int64) {
	_ = w.counters.Add(stats.Skipped(table.String()), n)
}

// dedupeByKey collapses rows that repeat an earlier row's primary key. The
// first occurrence wins, matching the backend's skip-on-conflict behavior.
// Rows with a nil key are kept as-is; the store decides their fate.
func dedupeByKey(table schema.Table, rows []records.Record) []records.Record {
	key := schema.Key(table)
	seen := make(map[string]struct{}, len(rows))
	out := make([]records.Record, 0, len(rows))
	for _, r := range rows {
		k, ok := r[key].(string)
		if !ok || k == "" {
			out = append(out, r)
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// batchFingerprint hashes the batch's primary keys so one batch can be
// correlated across its success log line and any failure errors.
func batchFingerprint(table schema.Table, rows []records.Record) uint64 {
	key := schema.Key(table)
	h := xxh3.New()
	for _, r := range rows {
		if k, ok := r[key].(string); ok {
			_, _ = h.WriteString(k)
			_, _ = h.Write([]byte{0})
		}
	}
	return h.Sum64()
}
