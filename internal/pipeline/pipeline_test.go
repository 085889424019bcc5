package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/KhanhD1nh/export-data/internal/schema"
	"github.com/KhanhD1nh/export-data/internal/stats"
	"github.com/KhanhD1nh/export-data/internal/storage"
	"github.com/KhanhD1nh/export-data/pkg/records"
)

// memStore is an in-memory storage backend shared by all connections of one
// test, keyed per table by primary key so duplicate inserts are skipped like
// the real backends do.
type memStore struct {
	mu     sync.Mutex
	tables map[schema.Table]map[string]records.Record
	opened []*memConn
}

func newMemStore() *memStore {
	tables := make(map[schema.Table]map[string]records.Record)
	for _, t := range schema.DependencyOrder() {
		tables[t] = make(map[string]records.Record)
	}
	return &memStore{tables: tables}
}

func (s *memStore) dial(ctx context.Context) (storage.Conn, error) {
	c := &memConn{store: s}
	s.mu.Lock()
	s.opened = append(s.opened, c)
	s.mu.Unlock()
	return c, nil
}

func (s *memStore) rowCount(t schema.Table) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[t])
}

type memConn struct {
	store  *memStore
	mu     sync.Mutex
	closed bool
}

func (c *memConn) InsertBatch(ctx context.Context, table schema.Table, rows []records.Record) (int64, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	var inserted int64
	key := schema.Key(table)
	for _, r := range rows {
		k, _ := r[key].(string)
		if _, dup := c.store.tables[table][k]; dup {
			continue
		}
		c.store.tables[table][k] = r
		inserted++
	}
	return inserted, nil
}

func (c *memConn) Reset(ctx context.Context) error { return nil }

func (c *memConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *memConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// noopSetup implements storage.SchemaSetup.
type noopSetup struct{ err error }

func (s noopSetup) EnsureTables(ctx context.Context, conn storage.Conn) error { return s.err }

// staticEnum hands out a fixed file list.
type staticEnum struct{ files []string }

func (e staticEnum) Enumerate(ctx context.Context, root string) ([]string, error) {
	return e.files, nil
}

// fakeParser derives one person row per path, plus whatever extra rows and
// failures the test configured.
type fakeParser struct {
	mu      sync.Mutex
	failOn  map[string]error
	onParse func(path string)
}

func (p *fakeParser) Parse(path string) (records.Set, error) {
	if p.onParse != nil {
		p.onParse(path)
	}
	p.mu.Lock()
	err := p.failOn[path]
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return records.Set{
		schema.TableCaNhan.String(): {
			{"caNhanID": "person-" + path},
		},
		schema.TableThuaDat.String(): {
			{"thuaDatID": "parcel-" + path},
		},
	}, nil
}

func paths(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("file-%03d.xml", i)
	}
	return out
}

func newTestPipeline(t *testing.T, store *memStore, cfg Config) *Pipeline {
	t.Helper()
	if cfg.Root == "" {
		cfg.Root = "/data"
	}
	if cfg.Dial == nil {
		cfg.Dial = store.dial
	}
	if cfg.Setup == nil {
		cfg.Setup = noopSetup{}
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	valid := Config{
		Root:   "/data",
		Dial:   store.dial,
		Setup:  noopSetup{},
		Parser: &fakeParser{},
	}

	bad := []func(Config) Config{
		func(c Config) Config { c.Root = ""; return c },
		func(c Config) Config { c.Dial = nil; return c },
		func(c Config) Config { c.Setup = nil; return c },
		func(c Config) Config { c.Parser = nil; return c },
		func(c Config) Config { c.Workers = -1; return c },
		func(c Config) Config { c.BatchSize = -1; return c },
		func(c Config) Config { c.Limit = -1; return c },
	}
	for i, mutate := range bad {
		if _, err := New(mutate(valid)); err == nil {
			t.Errorf("case %d: invalid config accepted", i)
		}
	}

	if _, err := New(valid); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestRunProcessesEveryFile(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	files := paths(25)
	p := newTestPipeline(t, store, Config{
		Parser:    &fakeParser{},
		Enum:      staticEnum{files},
		Workers:   4,
		BatchSize: 7, // forces several mid-run flushes plus a final drain
	})

	snap, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if p.State() != StateClosed {
		t.Errorf("state = %s, want closed", p.State())
	}
	if p.Interrupted() {
		t.Error("run was not cancelled, Interrupted must be false")
	}
	if snap[stats.FilesProcessed] != 25 || snap[stats.FilesFailed] != 0 {
		t.Errorf("files processed/failed = %d/%d, want 25/0",
			snap[stats.FilesProcessed], snap[stats.FilesFailed])
	}
	for _, table := range []schema.Table{schema.TableCaNhan, schema.TableThuaDat} {
		if got := snap[stats.Inserted(table.String())]; got != 25 {
			t.Errorf("%s inserted = %d, want 25", table, got)
		}
		if got := store.rowCount(table); got != 25 {
			t.Errorf("%s rows in store = %d, want 25", table, got)
		}
	}
	for i, c := range store.opened {
		if !c.Closed() {
			t.Errorf("connection %d not closed after run", i)
		}
	}
}

func TestRunParseFailureIsolated(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	files := paths(10)
	parser := &fakeParser{failOn: map[string]error{
		files[3]: errors.New("truncated document"),
		files[7]: errors.New("bad encoding"),
	}}
	p := newTestPipeline(t, store, Config{
		Parser:  parser,
		Enum:    staticEnum{files},
		Workers: 2,
	})

	snap, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap[stats.FilesProcessed] != 8 || snap[stats.FilesFailed] != 2 {
		t.Errorf("files processed/failed = %d/%d, want 8/2",
			snap[stats.FilesProcessed], snap[stats.FilesFailed])
	}
	if got := snap[stats.Inserted("canhan")]; got != 8 {
		t.Errorf("canhan inserted = %d, want 8", got)
	}
}

func TestRunLimit(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p := newTestPipeline(t, store, Config{
		Parser:  &fakeParser{},
		Enum:    staticEnum{paths(50)},
		Workers: 2,
		Limit:   5,
	})

	snap, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap[stats.FilesProcessed] != 5 {
		t.Errorf("files processed = %d, want 5 (limit)", snap[stats.FilesProcessed])
	}
}

func TestRunSetupFailureIsFatal(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	p := newTestPipeline(t, store, Config{
		Parser: &fakeParser{},
		Enum:   staticEnum{paths(5)},
		Setup:  noopSetup{err: errors.New("permission denied for schema public")},
	})

	snap, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected setup failure to abort the run")
	}
	if snap[stats.FilesProcessed] != 0 {
		t.Errorf("files processed = %d, want 0", snap[stats.FilesProcessed])
	}
	if p.State() != StateClosed {
		t.Errorf("state = %s, want closed", p.State())
	}
}

func TestRunCancellationDrainsInFlightWork(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	files := paths(200)
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var finished int
	p := newTestPipeline(t, store, Config{
		Parser:  &fakeParser{},
		Enum:    staticEnum{files},
		Workers: 1,
		OnUnit: func(path string, set records.Set, err error) {
			mu.Lock()
			finished++
			mu.Unlock()
			cancel() // stop dispatching after the first finished file
		},
	})

	snap, err := p.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Interrupted() {
		t.Fatal("pipeline must report the interruption")
	}
	if p.State() != StateClosed {
		t.Errorf("state = %s, want closed", p.State())
	}

	mu.Lock()
	done := finished
	mu.Unlock()
	if done == 0 || done == len(files) {
		t.Fatalf("finished = %d, want partial progress", done)
	}
	// Every dispatched file drains completely even though the run context is
	// cancelled: inserted rows match finished files exactly, nothing is lost
	// in the accumulator.
	if got := snap[stats.FilesProcessed]; got != int64(done) {
		t.Errorf("files processed = %d, want %d", got, done)
	}
	if got := snap[stats.Inserted("canhan")]; got != int64(done) {
		t.Errorf("canhan inserted = %d, want %d", got, done)
	}
	if got := store.rowCount(schema.TableCaNhan); got != done {
		t.Errorf("canhan rows in store = %d, want %d", got, done)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	files := paths(12)
	run := func() map[string]int64 {
		p := newTestPipeline(t, store, Config{
			Parser:  &fakeParser{},
			Enum:    staticEnum{files},
			Workers: 3,
		})
		snap, err := p.Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		return snap
	}

	first := run()
	if first[stats.Inserted("canhan")] != 12 {
		t.Fatalf("first run inserted = %d, want 12", first[stats.Inserted("canhan")])
	}

	second := run()
	if got := second[stats.Inserted("canhan")]; got != 0 {
		t.Errorf("second run inserted = %d, want 0", got)
	}
	if got := second[stats.Skipped("canhan")]; got != 12 {
		t.Errorf("second run skipped = %d, want 12", got)
	}
	if got := store.rowCount(schema.TableCaNhan); got != 12 {
		t.Errorf("store rows = %d, want 12", got)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	want := map[State]string{
		StateIdle:       "idle",
		StateScanning:   "scanning",
		StateProcessing: "processing",
		StateDraining:   "draining",
		StateClosed:     "closed",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), name)
		}
	}
}
