package stats

import (
	"errors"
	"sync"
	"testing"
)

func TestConcurrentIncrements(t *testing.T) {
	t.Parallel()

	const n = 200
	c := New("files_processed")

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := c.Increment("files_processed"); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := c.Get("files_processed"); got != n {
		t.Fatalf("got %d, want %d", got, n)
	}
}

func TestUnknownCounterRejected(t *testing.T) {
	t.Parallel()

	c := New("known")
	if err := c.Increment("unknwon"); !errors.Is(err, ErrUnknownCounter) {
		t.Fatalf("expected ErrUnknownCounter, got %v", err)
	}
	if err := c.AddAll(map[string]int64{"known": 1, "other": 2}); !errors.Is(err, ErrUnknownCounter) {
		t.Fatalf("expected ErrUnknownCounter from AddAll, got %v", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	c := New("a", "b")
	_ = c.Add("a", 3)

	snap := c.Snapshot()
	snap["a"] = 99
	snap["b"] = 99

	if got := c.Get("a"); got != 3 {
		t.Errorf("counter mutated through snapshot: a=%d", got)
	}
	if got := c.Get("b"); got != 0 {
		t.Errorf("counter mutated through snapshot: b=%d", got)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	c := New("a", "b")
	_ = c.Add("a", 5)
	_ = c.Add("b", 7)
	c.Reset()

	snap := c.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("reset dropped registered names: %v", snap)
	}
	for k, v := range snap {
		if v != 0 {
			t.Errorf("%s = %d after reset", k, v)
		}
	}
}

func TestForTables(t *testing.T) {
	t.Parallel()

	c := ForTables([]string{"canhan", "hoso"})
	for _, name := range []string{
		FilesProcessed, FilesFailed, BatchesFailed,
		Inserted("canhan"), Skipped("canhan"),
		Inserted("hoso"), Skipped("hoso"),
	} {
		if err := c.Increment(name); err != nil {
			t.Errorf("counter %q not registered: %v", name, err)
		}
	}
}
