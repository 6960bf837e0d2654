package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("ipc: server closed")

// Handler processes one request. The returned value is marshalled into the
// response; a non-nil error is sent back as the response's error string.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Server answers protocol requests on a unix socket. Backends register one
// handler per (service, method) pair; requests on one connection are
// dispatched concurrently so a slow method never holds up the line.
type Server struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[serviceMethod]Handler

	socketPath string
	listener   net.Listener

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	baseCtx   context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type serviceMethod struct {
	service string
	method  string
}

// NewServer creates a server. A nil logger discards output.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		logger:   logger,
		handlers: make(map[serviceMethod]Handler),
		conns:    make(map[net.Conn]struct{}),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Handle registers h for the given service path and method.
func (s *Server) Handle(service, method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[serviceMethod{service, method}] = h
}

// Listen binds the server to the unix socket at path. The parent directory
// is created with owner-only permissions and a leftover socket from a
// crashed process is removed if nothing answers on it.
func (s *Server) Listen(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	if err := cleanupStaleSocket(path); err != nil {
		return fmt.Errorf("failed to cleanup stale socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		os.Remove(path)
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.socketPath = path
	s.listener = listener
	return nil
}

// cleanupStaleSocket removes a socket file if it exists and nothing is
// listening behind it, which happens after a crash without cleanup.
func cleanupStaleSocket(path string) error {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat socket: %w", err)
	}

	conn, err := net.DialTimeout("unix", path, 100*time.Millisecond)
	if err == nil {
		conn.Close()
		return fmt.Errorf("socket is active (another instance may be running)")
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}
	return nil
}

// Serve accepts connections until Close. Listen must have succeeded first.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("ipc: Serve before Listen")
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.baseCtx.Done():
				return ErrServerClosed
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		s.connMu.Lock()
		s.conns[conn] = struct{}{}
		s.connMu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.connMu.Lock()
				delete(s.conns, conn)
				s.connMu.Unlock()
			}()
			s.serveConn(conn)
		}()
	}
}

// SocketPath returns the bound socket path, empty before Listen.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Close stops accepting, cancels running handlers, waits for in-flight
// connections and removes the socket file.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		if s.listener != nil {
			err = s.listener.Close()
		}
		// Connections parked in a read would keep Serve goroutines alive.
		s.connMu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.connMu.Unlock()
		s.wg.Wait()
		if s.socketPath != "" {
			if rmErr := os.Remove(s.socketPath); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
				err = rmErr
			}
		}
	})
	return err
}

// serveConn reads request lines and dispatches each in its own goroutine,
// serializing response writes.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	var (
		writeMu sync.Mutex
		reqWG   sync.WaitGroup
	)
	respond := func(resp response) {
		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("encode response", "error", err)
			return
		}
		data = append(data, '\n')
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if _, err := conn.Write(data); err != nil {
			s.logger.Debug("write response", "error", err)
		}
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, scanBufInitial), scanBufMax)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Debug("malformed request line", "error", err)
			continue
		}

		s.mu.RLock()
		h, ok := s.handlers[serviceMethod{req.Service, req.Method}]
		s.mu.RUnlock()
		if !ok {
			respond(response{ID: req.ID, Error: fmt.Sprintf("unknown method %s %s", req.Service, req.Method)})
			continue
		}

		params, err := json.Marshal(req.Params)
		if err != nil {
			respond(response{ID: req.ID, Error: "unreadable params"})
			continue
		}

		reqWG.Add(1)
		go func(id uint64, h Handler, params json.RawMessage) {
			defer reqWG.Done()
			result, err := h(s.baseCtx, params)
			if err != nil {
				respond(response{ID: id, Error: err.Error()})
				return
			}
			data, err := json.Marshal(result)
			if err != nil {
				respond(response{ID: id, Error: fmt.Sprintf("encode result: %v", err)})
				return
			}
			respond(response{ID: id, Result: data})
		}(req.ID, h, params)
	}
	reqWG.Wait()
}
