package backend

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Search fans one query out to every backend at once and streams each
// non-empty batch as soon as its backend answers, in completion order. A
// backend that errors or times out is logged and skipped; it never delays
// or hides the others. The channel holds one batch per backend, so
// producers finish without waiting on the consumer; it closes once every
// backend has answered or failed.
func (s *Searcher) Search(ctx context.Context, backends []Backend, terms []string, max int) <-chan []Result {
	out := make(chan []Result, len(backends))

	g, ctx := errgroup.WithContext(ctx)
	for _, b := range backends {
		g.Go(func() error {
			results, err := s.Query(ctx, b, terms, max)
			if err != nil {
				s.logger.Warn("backend query failed", "app_id", b.AppID, "error", err)
				return nil
			}
			if len(results) > 0 {
				out <- results
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(out)
	}()

	return out
}
