package batch

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/KhanhD1nh/export-data/internal/schema"
	"github.com/KhanhD1nh/export-data/pkg/records"
)

func row(id int) records.Record {
	return records.Record{"caNhanID": fmt.Sprintf("r%d", id)}
}

func rowsN(from, n int) []records.Record {
	out := make([]records.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, row(from+i))
	}
	return out
}

// collector records OnFull invocations.
type collector struct {
	mu      sync.Mutex
	flushes [][]records.Record
	tables  []schema.Table
}

func (c *collector) onFull(t schema.Table, rows []records.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushes = append(c.flushes, rows)
	c.tables = append(c.tables, t)
}

func TestAddFlushesExactlyThresholdRows(t *testing.T) {
	t.Parallel()

	var c collector
	acc, err := New([]schema.Table{schema.TableCaNhan}, 3, c.onFull)
	if err != nil {
		t.Fatal(err)
	}

	// Adds of [r1], [r2], [r3,r4]: the third add crosses the threshold.
	for i, rows := range [][]records.Record{rowsN(1, 1), rowsN(2, 1), rowsN(3, 2)} {
		flushed, err := acc.Add(schema.TableCaNhan, rows)
		if err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
		if want := i == 2; flushed != want {
			t.Fatalf("add %d: flushed=%v, want %v", i, flushed, want)
		}
	}

	if len(c.flushes) != 1 {
		t.Fatalf("expected 1 flush, got %d", len(c.flushes))
	}
	if got := len(c.flushes[0]); got != 3 {
		t.Fatalf("flush size = %d, want 3", got)
	}
	for i, want := range []string{"r1", "r2", "r3"} {
		if got := c.flushes[0][i]["caNhanID"]; got != want {
			t.Errorf("flush[%d] = %v, want %s", i, got, want)
		}
	}

	// r4 stays buffered.
	if n, _ := acc.Size(schema.TableCaNhan); n != 1 {
		t.Fatalf("buffered = %d, want 1", n)
	}
	left := acc.FlushAll()[schema.TableCaNhan]
	if len(left) != 1 || left[0]["caNhanID"] != "r4" {
		t.Fatalf("remainder = %v, want [r4]", left)
	}
}

func TestEmptyAddIsNoOp(t *testing.T) {
	t.Parallel()

	var c collector
	acc, _ := New([]schema.Table{schema.TableCaNhan}, 3, c.onFull)

	// Fill to capacity-1, then add nothing.
	if _, err := acc.Add(schema.TableCaNhan, rowsN(1, 2)); err != nil {
		t.Fatal(err)
	}
	flushed, err := acc.Add(schema.TableCaNhan, nil)
	if err != nil {
		t.Fatal(err)
	}
	if flushed {
		t.Error("empty add reported a flush")
	}
	if len(c.flushes) != 0 {
		t.Errorf("empty add triggered OnFull")
	}
	if n, _ := acc.Size(schema.TableCaNhan); n != 2 {
		t.Errorf("buffered = %d, want 2", n)
	}
}

func TestUnregisteredTableRejected(t *testing.T) {
	t.Parallel()

	acc, _ := New([]schema.Table{schema.TableCaNhan}, 3, nil)
	if _, err := acc.Add(schema.TableHoSo, rowsN(1, 1)); !errors.Is(err, ErrUnknownTable) {
		t.Fatalf("expected ErrUnknownTable, got %v", err)
	}
	if _, err := acc.Size(schema.TableHoSo); !errors.Is(err, ErrUnknownTable) {
		t.Fatalf("expected ErrUnknownTable from Size, got %v", err)
	}
}

func TestConstructionRejectsBadConfig(t *testing.T) {
	t.Parallel()

	if _, err := New([]schema.Table{schema.TableCaNhan}, 0, nil); err == nil {
		t.Error("threshold 0 accepted")
	}
	if _, err := New(nil, 3, nil); err == nil {
		t.Error("empty table set accepted")
	}
	if _, err := New([]schema.Table{schema.Table("bogus")}, 3, nil); !errors.Is(err, ErrUnknownTable) {
		t.Error("unknown table accepted at construction")
	}
	if _, err := New([]schema.Table{schema.TableCaNhan, schema.TableCaNhan}, 3, nil); err == nil {
		t.Error("duplicate table accepted")
	}
}

func TestFlushAllWalksDependencyOrder(t *testing.T) {
	t.Parallel()

	order := schema.DependencyOrder()
	acc, _ := New(order, 100, nil)
	// Fill in reverse order; FlushAll must still return all tables.
	for i := len(order) - 1; i >= 0; i-- {
		if _, err := acc.Add(order[i], []records.Record{{"k": i}}); err != nil {
			t.Fatal(err)
		}
	}
	unit := acc.FlushAll()
	if len(unit) != len(order) {
		t.Fatalf("flushed %d tables, want %d", len(unit), len(order))
	}
	if acc.TotalSize() != 0 {
		t.Errorf("buffers not empty after FlushAll")
	}
}

// TestNoRowLostOrDuplicated drives many concurrent producers and checks that
// rows seen by OnFull plus rows returned by a trailing FlushAll equal exactly
// the rows added.
func TestNoRowLostOrDuplicated(t *testing.T) {
	t.Parallel()

	const (
		producers    = 8
		rowsPerBatch = 7
		batches      = 50
	)

	var c collector
	acc, _ := New([]schema.Table{schema.TableCaNhan, schema.TableThuaDat}, 13, c.onFull)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			tbl := schema.TableCaNhan
			if p%2 == 1 {
				tbl = schema.TableThuaDat
			}
			for b := 0; b < batches; b++ {
				rows := make([]records.Record, rowsPerBatch)
				for i := range rows {
					rows[i] = records.Record{"id": fmt.Sprintf("p%d-b%d-i%d", p, b, i)}
				}
				if _, err := acc.Add(tbl, rows); err != nil {
					t.Errorf("add: %v", err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	seen := map[string]int{}
	c.mu.Lock()
	for _, fl := range c.flushes {
		for _, r := range fl {
			seen[r["id"].(string)]++
		}
	}
	c.mu.Unlock()
	for _, rows := range acc.FlushAll() {
		for _, r := range rows {
			seen[r["id"].(string)]++
		}
	}

	want := producers * rowsPerBatch * batches
	if len(seen) != want {
		t.Fatalf("distinct rows = %d, want %d", len(seen), want)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("row %s seen %d times", id, n)
		}
	}
}
