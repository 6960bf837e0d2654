package backend

import (
	"context"
	"time"
)

// Activate tells a backend that the user chose one of its results. Fire
// and forget: the launcher has already moved on by the time this runs, so
// failures are only logged.
func (s *Searcher) Activate(ctx context.Context, b Backend, id string, terms []string) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.pool.Get(callCtx, b.Socket)
	if err != nil {
		s.logger.Warn("backend activation failed", "app_id", b.AppID, "error", err)
		return
	}

	params := map[string]any{
		"id":        id,
		"terms":     terms,
		"timestamp": time.Now().Unix(),
	}
	if err := conn.Notify(callCtx, b.Service, "ActivateResult", params); err != nil {
		s.logger.Warn("backend activation failed", "app_id", b.AppID, "error", err)
	}
}
