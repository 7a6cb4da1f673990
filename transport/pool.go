// Connection pool with explicit acquire/release.
//
// The client session borrows a connection per attempt and returns it on
// success, or discards it on any error or timeout. This keeps socket
// lifetimes scoped: whichever way an attempt ends, the connection is either
// back in the pool or closed — never leaked.
//
// Pool design: a buffered channel as a natural FIFO queue. Buffered channels
// are concurrency-safe, and blocking on empty is built-in.
package transport

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPoolClosed is returned by Get once the pool has been closed.
var ErrPoolClosed = errors.New("connection pool is closed")

// Pool manages reusable framed connections to a single address.
type Pool struct {
	mu       sync.Mutex
	conns    chan *Conn // Buffered channel as pool — FIFO, goroutine-safe
	maxConns int        // Maximum number of live connections
	curConns int        // Currently created connections (may be < maxConns)
	closed   bool
	dial     func() (*Conn, error) // Connection factory
}

// NewPool creates a pool with the given max size. Connections are created
// lazily — the pool starts empty and grows on demand.
func NewPool(maxConns int, dial func() (*Conn, error)) *Pool {
	if maxConns <= 0 {
		maxConns = 1
	}
	return &Pool{
		conns:    make(chan *Conn, maxConns),
		maxConns: maxConns,
		dial:     dial,
	}
}

// Get acquires a connection.
// Strategy:
//  1. Take an idle connection if one is pooled (non-blocking select)
//  2. If the pool is empty but under limit, dial a new connection
//  3. If at the limit, block until a connection is released
func (p *Pool) Get() (*Conn, error) {
	select {
	case conn, ok := <-p.conns:
		if !ok {
			return nil, ErrPoolClosed
		}
		return conn, nil
	default:
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		underLimit := p.curConns < p.maxConns
		if underLimit {
			p.curConns++
		}
		p.mu.Unlock()

		if !underLimit {
			// Close drains and closes the channel, so a Get parked here
			// during shutdown wakes up with ok=false instead of a nil conn.
			conn, ok := <-p.conns
			if !ok {
				return nil, ErrPoolClosed
			}
			return conn, nil
		}

		conn, err := p.dial()
		if err != nil {
			p.mu.Lock()
			p.curConns--
			p.mu.Unlock()
			return nil, err
		}
		return conn, nil
	}
}

// Put releases a healthy connection back to the pool for reuse. After Close,
// released connections are closed instead of pooled.
func (p *Pool) Put(conn *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		conn.Close()
		p.curConns--
		return
	}
	// Never blocks: the buffer holds maxConns and curConns <= maxConns.
	p.conns <- conn
}

// Discard closes a connection that hit an error or timed out mid-exchange.
// A timed-out connection may still carry a late response in flight, so it
// must never be reused for a different logical call.
func (p *Pool) Discard(conn *Conn) {
	conn.Close()
	p.mu.Lock()
	p.curConns--
	p.mu.Unlock()
}

// Close shuts down the pool and closes all idle connections. Connections
// currently borrowed are closed by their borrowers via Put-after-Close
// (which discards) or Discard. Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.conns)
	p.mu.Unlock()

	for conn := range p.conns {
		conn.Close()
	}
	return nil
}

// String describes the pool for logs.
func (p *Pool) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("pool(idle=%d, live=%d, max=%d)", len(p.conns), p.curConns, p.maxConns)
}
