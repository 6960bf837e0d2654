package backend

import (
	"context"
	"log/slog"
	"time"

	"github.com/glint-sh/glint/internal/icon"
	"github.com/glint-sh/glint/internal/ipc"
)

// defaultCallTimeout bounds each individual backend call.
const defaultCallTimeout = 3 * time.Second

// Searcher queries search backends over their sockets. Connections are
// pooled, so repeated queries reuse the link established by the first.
// Safe for concurrent use.
type Searcher struct {
	pool    *ipc.Pool
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithCallTimeout bounds each remote call. Zero or negative keeps the
// default.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Searcher) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger routes diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSearcher creates a Searcher.
func NewSearcher(opts ...Option) *Searcher {
	s := &Searcher{
		pool:    ipc.NewPool(),
		timeout: defaultCallTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close drops every pooled connection.
func (s *Searcher) Close() { s.pool.Close() }

// Query runs the two-call protocol against one backend: fetch the matching
// result ids, then the display fields for the first max of them. Each call
// gets its own timeout, so a backend that answers the first call slowly
// cannot eat the second call's budget too.
func (s *Searcher) Query(ctx context.Context, b Backend, terms []string, max int) ([]Result, error) {
	ids, err := s.initialResultSet(ctx, b, terms)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if max > 0 && len(ids) > max {
		ids = ids[:max]
	}

	metas, err := s.resultMetas(ctx, b, ids)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(metas))
	for _, meta := range metas {
		if r, ok := buildResult(b, meta); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func (s *Searcher) initialResultSet(ctx context.Context, b Backend, terms []string) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.pool.Get(callCtx, b.Socket)
	if err != nil {
		return nil, err
	}

	var ids []string
	err = conn.Call(callCtx, b.Service, "GetInitialResultSet", map[string]any{"terms": terms}, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Searcher) resultMetas(ctx context.Context, b Backend, ids []string) ([]map[string]any, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.pool.Get(callCtx, b.Socket)
	if err != nil {
		return nil, err
	}

	var metas []map[string]any
	err = conn.Call(callCtx, b.Service, "GetResultMetas", map[string]any{"ids": ids}, &metas)
	if err != nil {
		return nil, err
	}
	return metas, nil
}

// buildResult turns one meta map into a Result. A meta without a usable id
// cannot be activated later and is dropped.
func buildResult(b Backend, meta map[string]any) (Result, bool) {
	id := metaString(meta["id"])
	if id == "" {
		return Result{}, false
	}
	name := metaString(meta["name"])
	if name == "" {
		name = id
	}
	return Result{
		ID:          id,
		Name:        name,
		Description: metaString(meta["description"]),
		Icon:        icon.Decode(meta["icon"]),
		Backend:     b,
	}, true
}

// metaString reads a string field, tolerating the {"v": ...} boxing that
// variant-bridging backends wrap around every value.
func metaString(v any) string {
	for {
		switch t := v.(type) {
		case string:
			return t
		case map[string]any:
			inner, ok := t["v"]
			if !ok || len(t) != 1 {
				return ""
			}
			v = inner
		default:
			return ""
		}
	}
}
