// Package pipeline drives the whole ingestion run: enumerate XML files, parse
// them on a worker pool, accumulate rows per table, and flush full batches to
// storage while respecting the table dependency order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/KhanhD1nh/export-data/internal/batch"
	"github.com/KhanhD1nh/export-data/internal/metrics"
	"github.com/KhanhD1nh/export-data/internal/scanner"
	"github.com/KhanhD1nh/export-data/internal/schema"
	"github.com/KhanhD1nh/export-data/internal/stats"
	"github.com/KhanhD1nh/export-data/internal/storage"
	"github.com/KhanhD1nh/export-data/pkg/records"
)

// State is the pipeline's lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateProcessing
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateProcessing:
		return "processing"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// FileParser turns one XML file into its per-table row sets.
type FileParser interface {
	Parse(path string) (records.Set, error)
}

// Enumerator lists the XML files under a root directory.
type Enumerator interface {
	Enumerate(ctx context.Context, root string) ([]string, error)
}

// Config describes one pipeline run.
type Config struct {
	// Root is the export directory: commune directories one level below it
	// hold the xml/ subdirectories to ingest.
	Root string

	// Dial opens storage connections; Setup prepares the schema before any
	// unit is dispatched.
	Dial  storage.Dialer
	Setup storage.SchemaSetup

	Parser FileParser

	// Enum overrides the default directory scanner, mainly for tests.
	Enum Enumerator

	// Workers is the parse worker count. Defaults to runtime.NumCPU().
	Workers int

	// BatchSize is the per-table flush threshold. Defaults to 500.
	BatchSize int

	// AcquireTimeout bounds each connection acquire. Zero keeps the writer
	// default.
	AcquireTimeout time.Duration

	// Limit, when positive, caps how many files are processed. Used for
	// test runs against a fresh database.
	Limit int

	// OnUnit, when set, observes every finished file: its path, the parsed
	// rows (nil when parsing failed), and the parse error if any.
	OnUnit func(path string, set records.Set, err error)
}

const defaultBatchSize = 500

// Pipeline executes one ingestion run. A Pipeline is single-use: construct,
// Run, inspect the returned counters.
type Pipeline struct {
	cfg      Config
	pool     *storage.Pool
	counters *stats.Counters
	writer   *storage.Writer
	acc      *batch.Accumulator
	enum     Enumerator

	// writeCtx is detached from the run context so in-flight and draining
	// batches survive cancellation. Set once at the top of Run.
	writeCtx context.Context

	mu          sync.Mutex
	state       State
	interrupted bool
}

// New validates cfg and assembles the pipeline. The pool is sized slightly
// above the worker count so the final ordered drain never waits on a parser
// holding a connection.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Root == "" {
		return nil, errors.New("pipeline: root directory is required")
	}
	if cfg.Dial == nil {
		return nil, errors.New("pipeline: storage dialer is required")
	}
	if cfg.Setup == nil {
		return nil, errors.New("pipeline: schema setup is required")
	}
	if cfg.Parser == nil {
		return nil, errors.New("pipeline: parser is required")
	}
	if cfg.Workers < 0 || cfg.BatchSize < 0 || cfg.Limit < 0 {
		return nil, fmt.Errorf("pipeline: workers, batch size and limit must not be negative")
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Enum == nil {
		cfg.Enum = &scanner.XMLDirScanner{}
	}

	pool, err := storage.NewPool(cfg.Dial, cfg.Workers+2)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	tables := schema.DependencyOrder()
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.String()
	}
	counters := stats.ForTables(names)

	var opts []storage.WriterOption
	if cfg.AcquireTimeout > 0 {
		opts = append(opts, storage.WithAcquireTimeout(cfg.AcquireTimeout))
	}
	writer := storage.NewWriter(pool, counters, opts...)

	p := &Pipeline{
		cfg:      cfg,
		pool:     pool,
		counters: counters,
		writer:   writer,
		enum:     cfg.Enum,
		state:    StateIdle,
	}
	acc, err := batch.New(tables, cfg.BatchSize, p.flushBatch)
	if err != nil {
		pool.Shutdown(context.Background())
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	p.acc = acc
	return p, nil
}

// State returns the current lifecycle phase.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Interrupted reports whether the run context was cancelled before every
// file was dispatched. Dispatched files are still fully drained either way.
func (p *Pipeline) Interrupted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupted
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	log.Printf("pipeline: state=%s", s)
}

// flushBatch is the accumulator's full-batch callback. It runs on whichever
// worker goroutine crossed the threshold; the writer serializes access to
// storage through the pool.
func (p *Pipeline) flushBatch(table schema.Table, rows []records.Record) {
	if _, _, err := p.writer.Write(p.writeCtx, table, rows); err != nil {
		log.Printf("pipeline: flush failed: %v", err)
	}
}

// Run executes the pipeline to completion and returns the final counter
// snapshot. A non-nil error means setup failed before any file was touched;
// per-file and per-batch failures are absorbed into the counters instead.
//
// Cancelling ctx stops dispatching new files. Files already handed to a
// worker are finished, buffered rows are flushed, and storage is shut down
// cleanly before Run returns.
func (p *Pipeline) Run(ctx context.Context) (map[string]int64, error) {
	p.writeCtx = context.WithoutCancel(ctx)

	setupStart := time.Now()
	err := p.setup(ctx)
	metrics.RecordStep("setup", err, time.Since(setupStart))
	if err != nil {
		p.shutdown()
		p.setState(StateClosed)
		return p.counters.Snapshot(), err
	}

	p.setState(StateScanning)
	scanStart := time.Now()
	files, err := p.enum.Enumerate(ctx, p.cfg.Root)
	metrics.RecordStep("scan", err, time.Since(scanStart))
	if err != nil {
		p.shutdown()
		p.setState(StateClosed)
		return p.counters.Snapshot(), fmt.Errorf("pipeline: scan: %w", err)
	}
	if p.cfg.Limit > 0 && len(files) > p.cfg.Limit {
		log.Printf("pipeline: limiting run to first %d of %d files", p.cfg.Limit, len(files))
		files = files[:p.cfg.Limit]
	}

	p.setState(StateProcessing)
	start := time.Now()
	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				p.processFile(path)
			}
		}()
	}

dispatch:
	for _, f := range files {
		select {
		case jobs <- f:
		case <-ctx.Done():
			p.mu.Lock()
			p.interrupted = true
			p.mu.Unlock()
			log.Printf("pipeline: interrupted, draining in-flight work: %v", ctx.Err())
			break dispatch
		}
	}
	close(jobs)

	p.setState(StateDraining)
	drainStart := time.Now()
	wg.Wait()
	p.writer.WriteOrdered(p.writeCtx, p.acc.FlushAll())
	metrics.RecordStep("drain", nil, time.Since(drainStart))

	p.shutdown()
	p.setState(StateClosed)

	snap := p.counters.Snapshot()
	log.Printf("pipeline: done files=%d failed=%d elapsed=%s",
		snap[stats.FilesProcessed], snap[stats.FilesFailed],
		time.Since(start).Truncate(time.Millisecond))
	return snap, nil
}

// setup prepares the schema on a pooled connection. Failure here is fatal:
// nothing has been dispatched yet and nothing will be.
func (p *Pipeline) setup(ctx context.Context) error {
	timeout := p.cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	conn, err := p.pool.Acquire(ctx, timeout)
	if err != nil {
		return fmt.Errorf("pipeline: setup: %w", err)
	}
	defer p.pool.Release(conn)
	if err := p.cfg.Setup.EnsureTables(ctx, conn); err != nil {
		return fmt.Errorf("pipeline: setup: %w", err)
	}
	return nil
}

// processFile parses one file and feeds its rows into the accumulator. Parse
// failures are isolated: the file is counted failed and the worker moves on.
func (p *Pipeline) processFile(path string) {
	start := time.Now()
	set, err := p.cfg.Parser.Parse(path)
	if err != nil {
		_ = p.counters.Increment(stats.FilesFailed)
		metrics.RecordFile(false)
		metrics.RecordStep("parse", err, time.Since(start))
		log.Printf("pipeline: parse failed: %v", err)
		if p.cfg.OnUnit != nil {
			p.cfg.OnUnit(path, nil, err)
		}
		return
	}
	metrics.RecordStep("parse", nil, time.Since(start))

	for name, rows := range set {
		table := schema.Table(name)
		if _, err := p.acc.Add(table, rows); err != nil {
			// Parser and accumulator share the table enum, so this is a
			// programming error, not a data problem.
			log.Printf("pipeline: drop %d rows for %q: %v", len(rows), name, err)
		}
	}
	_ = p.counters.Increment(stats.FilesProcessed)
	metrics.RecordFile(true)
	if p.cfg.OnUnit != nil {
		p.cfg.OnUnit(path, set, nil)
	}
}

func (p *Pipeline) shutdown() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.writeCtx), 30*time.Second)
	defer cancel()
	if err := p.pool.Shutdown(ctx); err != nil {
		log.Printf("pipeline: pool shutdown: %v", err)
	}
	if err := metrics.Flush(); err != nil {
		log.Printf("pipeline: metrics flush: %v", err)
	}
}
