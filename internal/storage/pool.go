package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrAcquireTimeout is returned by Acquire when no connection became
	// free within the timeout. Callers treat the batch as failed instead of
	// blocking indefinitely.
	ErrAcquireTimeout = errors.New("storage: acquire timed out")

	// ErrPoolClosed is returned by Acquire after Shutdown has begun.
	ErrPoolClosed = errors.New("storage: pool is closed")
)

// resetTimeout bounds the rollback attempt performed on every release.
const resetTimeout = 5 * time.Second

// Pool is a bounded set of live connections. Capacity is fixed at
// construction; connections are opened lazily on first acquire of a slot and
// replaced transparently when found broken.
//
// Slots travel through the free channel: a nil entry is an empty slot (dial
// on demand), a non-nil entry is an idle connection. Every acquire consumes a
// slot and every release returns one, so capacity never drifts even when a
// dial or reset fails.
type Pool struct {
	dial Dialer
	size int
	free chan Conn

	mu     sync.Mutex
	live   map[Conn]struct{}
	closed bool
}

// NewPool creates a pool of the given capacity. No connection is opened until
// the first Acquire.
func NewPool(dial Dialer, size int) (*Pool, error) {
	if dial == nil {
		return nil, errors.New("storage: dialer must not be nil")
	}
	if size <= 0 {
		return nil, fmt.Errorf("storage: pool size must be > 0, got %d", size)
	}
	p := &Pool{
		dial: dial,
		size: size,
		free: make(chan Conn, size),
		live: make(map[Conn]struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.free <- nil
	}
	return p, nil
}

// Size returns the pool capacity.
func (p *Pool) Size() int { return p.size }

// FreeSize returns the number of slots currently not leased.
func (p *Pool) FreeSize() int { return len(p.free) }

// Acquire leases a connection, blocking up to timeout for a free slot. A slot
// holding a broken connection is refreshed through the dialer before being
// handed out; a dial failure returns the slot to the pool and propagates as
// an acquire failure.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var c Conn
	select {
	case c = <-p.free:
	case <-timer.C:
		return nil, fmt.Errorf("%w (after %s)", ErrAcquireTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if c != nil && !c.Closed() {
		return c, nil
	}
	// Empty or broken slot: replace with a fresh connection.
	if c != nil {
		p.closeConn(ctx, c)
	}
	fresh, err := p.dial(ctx)
	if err != nil {
		p.free <- nil // keep capacity
		return nil, fmt.Errorf("storage: open connection: %w", err)
	}
	p.mu.Lock()
	p.live[fresh] = struct{}{}
	p.mu.Unlock()
	return fresh, nil
}

// Release returns a leased connection to the pool. Any uncommitted work is
// rolled back first; if the rollback fails or the connection is broken, it is
// closed and its slot is returned empty.
func (p *Pool) Release(c Conn) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
	defer cancel()

	if err := c.Reset(ctx); err != nil || c.Closed() {
		p.closeConn(ctx, c)
		p.free <- nil
		return
	}
	p.free <- c
}

// Shutdown closes every connection the pool created. It blocks until leased
// connections are released; if ctx expires first, the stragglers are closed
// forcibly so no handle is leaked. Idempotent: later calls return nil
// immediately.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for i := 0; i < p.size; i++ {
		select {
		case c := <-p.free:
			if c != nil {
				p.closeConn(ctx, c)
			}
		case <-ctx.Done():
			p.closeAllLive(ctx)
			return fmt.Errorf("storage: shutdown: %w", ctx.Err())
		}
	}
	// Idle connections all passed through the free channel; anything still
	// tracked was leaked by a caller. Close it anyway.
	p.closeAllLive(ctx)
	return nil
}

func (p *Pool) closeConn(ctx context.Context, c Conn) {
	p.mu.Lock()
	delete(p.live, c)
	p.mu.Unlock()
	_ = c.Close(ctx)
}

func (p *Pool) closeAllLive(ctx context.Context) {
	p.mu.Lock()
	remaining := make([]Conn, 0, len(p.live))
	for c := range p.live {
		remaining = append(remaining, c)
	}
	p.live = make(map[Conn]struct{})
	p.mu.Unlock()
	for _, c := range remaining {
		_ = c.Close(ctx)
	}
}
