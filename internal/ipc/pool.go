package ipc

import (
	"context"
	"sync"
)

// Pool hands out one shared Conn per socket path, dialing lazily on first
// use. Concurrent queries against the same backend reuse the same
// connection; a connection that has died is replaced on the next request.
type Pool struct {
	mu    sync.Mutex
	conns map[string]*poolEntry
}

// poolEntry serializes dials per path so a slow connect to one backend
// never delays connects to the others.
type poolEntry struct {
	mu   sync.Mutex
	conn *Conn
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{conns: make(map[string]*poolEntry)}
}

// Get returns the shared connection for path, dialing if none exists or the
// previous one is closed. The context bounds only the dial.
func (p *Pool) Get(ctx context.Context, path string) (*Conn, error) {
	p.mu.Lock()
	e, ok := p.conns[path]
	if !ok {
		e = &poolEntry{}
		p.conns[path] = e
	}
	p.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != nil && !e.conn.Closed() {
		return e.conn, nil
	}

	c, err := Dial(ctx, path)
	if err != nil {
		return nil, err
	}
	e.conn = c
	return c, nil
}

// Close closes every pooled connection. The pool remains usable; later
// Gets redial.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for path, e := range p.conns {
		e.mu.Lock()
		if e.conn != nil {
			_ = e.conn.Close()
			e.conn = nil
		}
		e.mu.Unlock()
		delete(p.conns, path)
	}
}
