package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Conn is a client connection to one backend socket. It is safe for
// concurrent use: calls are multiplexed by id and responses are routed back
// to their callers in whatever order the backend produces them.
type Conn struct {
	conn   net.Conn
	nextID atomic.Uint64

	mu      sync.Mutex // guards writes, pending and closeErr
	pending map[uint64]chan response

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the unix socket at path. The context bounds the
// connection attempt only; the returned Conn lives until Close.
func Dial(ctx context.Context, path string) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}

	c := &Conn{
		conn:    nc,
		pending: make(map[uint64]chan response),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Call issues one request and waits for its response. The context bounds
// the whole round trip; on expiry the call is abandoned and a late response
// is silently dropped. A non-nil result receives the unmarshalled response
// payload.
func (c *Conn) Call(ctx context.Context, service, method string, params, result any) error {
	id := c.nextID.Add(1)
	ch := make(chan response, 1)

	c.mu.Lock()
	if c.Closed() {
		c.mu.Unlock()
		return c.closeError()
	}
	c.pending[id] = ch
	err := c.write(ctx, request{ID: id, Service: service, Method: method, Params: params})
	c.mu.Unlock()
	if err != nil {
		c.forget(id)
		return err
	}

	handle := func(resp response) error {
		if resp.Error != "" {
			return &RemoteError{Service: service, Method: method, Message: resp.Error}
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decode %s %s response: %w", service, method, err)
			}
		}
		return nil
	}

	select {
	case resp := <-ch:
		return handle(resp)
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.closed:
		// Prefer a response that squeaked in before the connection died.
		select {
		case resp := <-ch:
			return handle(resp)
		default:
		}
		return c.closeError()
	}
}

// Notify issues one request without waiting for the response. The backend's
// eventual reply, if any, is discarded by the read loop.
func (c *Conn) Notify(ctx context.Context, service, method string, params any) error {
	c.mu.Lock()
	if c.Closed() {
		c.mu.Unlock()
		return c.closeError()
	}
	id := c.nextID.Add(1)
	err := c.write(ctx, request{ID: id, Service: service, Method: method, Params: params})
	c.mu.Unlock()
	return err
}

// write marshals req and sends it as one line. Callers hold c.mu.
func (c *Conn) write(ctx context.Context, req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	data = append(data, '\n')

	// A backend that stopped reading must not wedge the caller.
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// readLoop routes response lines to waiting calls until the connection
// dies, then wakes everything still pending.
func (c *Conn) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, scanBufInitial), scanBufMax)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			// Not our protocol; drop the line, keep the connection.
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}

	err := scanner.Err()
	if err != nil {
		c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
	} else {
		c.shutdown(ErrClosed)
	}
}

// forget drops a pending call whose caller gave up waiting.
func (c *Conn) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Close tears the connection down. In-flight calls fail with ErrClosed.
func (c *Conn) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

// Closed reports whether the connection is no longer usable.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = err
		// Waiters are woken through the closed channel.
		clear(c.pending)
		c.mu.Unlock()
		close(c.closed)
		_ = c.conn.Close()
	})
}

func (c *Conn) closeError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	return ErrClosed
}
