package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer starts a server on a socket in a short-lived temp dir.
// t.TempDir is avoided for sockets: deeply nested test names can push the
// path past the unix socket limit.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	dir, err := os.MkdirTemp("", "glint-ipc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	srv := NewServer(nil)
	path := filepath.Join(dir, "test.sock")
	require.NoError(t, srv.Listen(path))

	go srv.Serve() //nolint:errcheck
	t.Cleanup(func() { srv.Close() })

	return srv, path
}

func dialTest(t *testing.T, path string) *Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCall_RoundTrip(t *testing.T) {
	t.Parallel()

	srv, path := newTestServer(t)
	srv.Handle("/test", "Echo", func(ctx context.Context, params json.RawMessage) (any, error) {
		var in map[string]string
		if err := json.Unmarshal(params, &in); err != nil {
			return nil, err
		}
		return in, nil
	})

	c := dialTest(t, path)

	var out map[string]string
	err := c.Call(context.Background(), "/test", "Echo", map[string]string{"q": "hello"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hello", out["q"])
}

func TestCall_OutOfOrderResponses(t *testing.T) {
	t.Parallel()

	srv, path := newTestServer(t)
	release := make(chan struct{})
	srv.Handle("/test", "Slow", func(ctx context.Context, params json.RawMessage) (any, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return "slow", nil
	})
	srv.Handle("/test", "Fast", func(ctx context.Context, params json.RawMessage) (any, error) {
		return "fast", nil
	})

	c := dialTest(t, path)

	slowDone := make(chan error, 1)
	go func() {
		var s string
		slowDone <- c.Call(context.Background(), "/test", "Slow", nil, &s)
	}()

	// The fast call must complete while the slow one is still parked.
	var s string
	err := c.Call(context.Background(), "/test", "Fast", nil, &s)
	require.NoError(t, err)
	assert.Equal(t, "fast", s)

	select {
	case err := <-slowDone:
		t.Fatalf("slow call finished early: %v", err)
	default:
	}

	close(release)
	require.NoError(t, <-slowDone)
}

func TestCall_ContextTimeout(t *testing.T) {
	t.Parallel()

	srv, path := newTestServer(t)
	srv.Handle("/test", "Hang", func(ctx context.Context, params json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	srv.Handle("/test", "Ping", func(ctx context.Context, params json.RawMessage) (any, error) {
		return "pong", nil
	})

	c := dialTest(t, path)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Call(ctx, "/test", "Hang", nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The connection survives an abandoned call.
	var s string
	require.NoError(t, c.Call(context.Background(), "/test", "Ping", nil, &s))
	assert.Equal(t, "pong", s)
}

func TestCall_RemoteError(t *testing.T) {
	t.Parallel()

	srv, path := newTestServer(t)
	srv.Handle("/test", "Boom", func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, errors.New("kaput")
	})

	c := dialTest(t, path)

	err := c.Call(context.Background(), "/test", "Boom", nil, nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "kaput", remote.Message)
	assert.Equal(t, "Boom", remote.Method)
}

func TestCall_UnknownMethod(t *testing.T) {
	t.Parallel()

	_, path := newTestServer(t)
	c := dialTest(t, path)

	err := c.Call(context.Background(), "/test", "Nope", nil, nil)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "unknown method")
}

func TestCall_ConnectionDrop(t *testing.T) {
	t.Parallel()

	dir, err := os.MkdirTemp("", "glint-ipc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "drop.sock")

	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	// A peer that swallows the request and hangs up without answering.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 1024)
		_, _ = conn.Read(buf)
		conn.Close()
	}()

	c := dialTest(t, path)

	callErr := c.Call(context.Background(), "/test", "Anything", nil, nil)
	require.ErrorIs(t, callErr, ErrClosed)

	assert.True(t, c.Closed())
	callErr = c.Call(context.Background(), "/test", "Anything", nil, nil)
	require.ErrorIs(t, callErr, ErrClosed)
}

func TestNotify_DoesNotWait(t *testing.T) {
	t.Parallel()

	srv, path := newTestServer(t)
	var (
		mu  sync.Mutex
		got []string
	)
	release := make(chan struct{})
	srv.Handle("/test", "Activate", func(ctx context.Context, params json.RawMessage) (any, error) {
		<-release
		var in map[string]string
		_ = json.Unmarshal(params, &in)
		mu.Lock()
		got = append(got, in["id"])
		mu.Unlock()
		return nil, nil
	})

	c := dialTest(t, path)

	// Returns immediately even though the handler is parked.
	start := time.Now()
	require.NoError(t, c.Notify(context.Background(), "/test", "Activate", map[string]string{"id": "r1"}))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(release)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "r1"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDial_NoSocket(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Dial(ctx, "/nonexistent/glint/test.sock")
	require.Error(t, err)
}

func TestPool_SharesConnection(t *testing.T) {
	t.Parallel()

	srv, path := newTestServer(t)
	srv.Handle("/test", "Ping", func(ctx context.Context, params json.RawMessage) (any, error) {
		return "pong", nil
	})

	pool := NewPool()
	defer pool.Close()

	c1, err := pool.Get(context.Background(), path)
	require.NoError(t, err)
	c2, err := pool.Get(context.Background(), path)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
}

func TestPool_RedialsAfterClose(t *testing.T) {
	t.Parallel()

	srv, path := newTestServer(t)
	srv.Handle("/test", "Ping", func(ctx context.Context, params json.RawMessage) (any, error) {
		return "pong", nil
	})

	pool := NewPool()
	defer pool.Close()

	c1, err := pool.Get(context.Background(), path)
	require.NoError(t, err)
	c1.Close()

	c2, err := pool.Get(context.Background(), path)
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)

	var s string
	require.NoError(t, c2.Call(context.Background(), "/test", "Ping", nil, &s))
	assert.Equal(t, "pong", s)
}

func TestPool_ConcurrentGet(t *testing.T) {
	t.Parallel()

	srv, path := newTestServer(t)
	srv.Handle("/test", "Ping", func(ctx context.Context, params json.RawMessage) (any, error) {
		return "pong", nil
	})

	pool := NewPool()
	defer pool.Close()

	const n = 8
	conns := make([]*Conn, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := pool.Get(context.Background(), path)
			assert.NoError(t, err)
			conns[i] = c
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, conns[0], conns[i])
	}
}
