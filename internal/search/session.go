// Package search orchestrates as-you-type queries against the discovered
// backends: debounced scheduling, one generation per input change, streamed
// result batches, and staleness discard at the UI boundary.
//
// A Session is owned by the UI loop. Nothing here locks: concurrency lives
// in the fan-out behind the Streamer seam, and every outcome re-enters the
// loop as a message carrying the generation it belongs to.
package search

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/glint-sh/glint/internal/backend"
)

const (
	defaultQueryDelay   = 120 * time.Millisecond
	defaultCommandDelay = 300 * time.Millisecond
	defaultClearDelay   = 25 * time.Millisecond
	defaultMaxResults   = 64
)

// Streamer starts one fan-out query and streams result batches in
// completion order, closing the channel once every backend has answered.
type Streamer interface {
	Stream(ctx context.Context, terms []string, max int) <-chan []backend.Result
}

// BackendStreamer is the production Streamer: every discovered backend,
// queried through a shared Searcher.
type BackendStreamer struct {
	Searcher *backend.Searcher
	Registry *backend.Registry
}

func (b BackendStreamer) Stream(ctx context.Context, terms []string, max int) <-chan []backend.Result {
	return b.Searcher.Search(ctx, b.Registry.Backends(), terms, max)
}

// BatchMsg carries one backend's results into the UI loop.
type BatchMsg struct {
	Gen     Generation
	Results []backend.Result
	stream  <-chan []backend.Result
}

// DrainedMsg reports that every backend of a generation has answered or
// failed.
type DrainedMsg struct {
	Gen Generation
}

// ClearMsg fires when the pre-results grace timer expires.
type ClearMsg struct {
	seq uint64
}

// Config tunes a Session. Zero values pick the defaults.
type Config struct {
	// QueryDelay debounces backend searches while the user types.
	QueryDelay time.Duration

	// CommandDelay debounces the heavier command-mode actions.
	CommandDelay time.Duration

	// ClearDelay is how long a superseded query's results linger once a
	// new search starts. A first batch faster than this replaces them
	// directly, without a flicker through empty.
	ClearDelay time.Duration

	// MaxResults caps how many ids are fetched per backend.
	MaxResults int
}

func (c Config) withDefaults() Config {
	if c.QueryDelay <= 0 {
		c.QueryDelay = defaultQueryDelay
	}
	if c.CommandDelay <= 0 {
		c.CommandDelay = defaultCommandDelay
	}
	if c.ClearDelay <= 0 {
		c.ClearDelay = defaultClearDelay
	}
	if c.MaxResults <= 0 {
		c.MaxResults = defaultMaxResults
	}
	return c
}

// Session runs consecutive queries against one Streamer. Exactly one
// generation is live at a time; batches from older generations are
// discarded on arrival. Superseded fan-outs are never cancelled — their
// calls are already bounded by per-call timeouts, so they die off on
// their own while the generation gate keeps their output invisible.
type Session struct {
	cfg      Config
	streamer Streamer

	gen      GenCounter
	debounce Debouncer

	results       []backend.Result
	searching     bool
	awaitingFirst bool

	clearSeq   uint64
	clearArmed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession creates a Session over streamer.
func NewSession(streamer Streamer, cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		cfg:      cfg.withDefaults(),
		streamer: streamer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Results returns the accepted results of the live generation, in the
// order their batches arrived. The slice is owned by the Session.
func (s *Session) Results() []backend.Result {
	return s.results
}

// Searching reports whether a fan-out is still in flight.
func (s *Session) Searching() bool {
	return s.searching
}

// Generation returns the live generation.
func (s *Session) Generation() Generation {
	return s.gen.Current()
}

// ScheduleSearch debounces a backend search for terms. The generation
// advances at the keystroke, not at the fire: whatever fan-out is in
// flight turns stale immediately, while its replacement waits out the
// delay. Typing faster than the delay keeps superseding the pending
// fire, so the one search that runs carries the last keystroke's
// generation.
func (s *Session) ScheduleSearch(terms []string) tea.Cmd {
	gen := s.gen.Bump()
	return s.debounce.Schedule(s.cfg.QueryDelay, func() tea.Cmd {
		return s.searchWithGen(terms, gen)
	})
}

// ScheduleCommand debounces an arbitrary action on the slower delay class
// used for command-mode input. It shares the one pending slot with
// ScheduleSearch: scheduling either supersedes the other.
func (s *Session) ScheduleCommand(action func() tea.Cmd) tea.Cmd {
	return s.debounce.Schedule(s.cfg.CommandDelay, action)
}

// Debounce forwards a timer expiry to whichever action is still pending.
func (s *Session) Debounce(msg DebounceMsg) tea.Cmd {
	return s.debounce.Fire(msg)
}

// CancelPending drops any debounced action that has not fired yet.
func (s *Session) CancelPending() {
	s.debounce.Cancel()
}

// Search starts a fan-out for terms immediately, superseding whatever
// generation was live and dropping any debounced action still pending.
// The superseded fan-out keeps running; anything it still delivers is
// stale on arrival. Previous results stay visible until the first batch
// arrives or the grace timer clears them, whichever happens first.
func (s *Session) Search(terms []string) tea.Cmd {
	s.debounce.Cancel()
	return s.searchWithGen(terms, s.gen.Bump())
}

// searchWithGen issues the fan-out under an already-taken generation.
// Debounce fires land here with the generation their keystroke captured,
// which is still the live one: every path that takes a newer generation
// also displaces the pending fire.
func (s *Session) searchWithGen(terms []string, gen Generation) tea.Cmd {
	s.searching = true
	s.awaitingFirst = true

	stream := s.streamer.Stream(s.ctx, terms, s.cfg.MaxResults)

	s.clearSeq++
	s.clearArmed = true
	seq := s.clearSeq

	return tea.Batch(
		awaitBatch(gen, stream),
		tea.Tick(s.cfg.ClearDelay, func(time.Time) tea.Msg {
			return ClearMsg{seq: seq}
		}),
	)
}

// awaitBatch receives the next batch off the stream. Each accepted batch
// re-arms it, so the stream is pumped exactly once at a time.
func awaitBatch(gen Generation, stream <-chan []backend.Result) tea.Cmd {
	return func() tea.Msg {
		batch, ok := <-stream
		if !ok {
			return DrainedMsg{Gen: gen}
		}
		return BatchMsg{Gen: gen, Results: batch, stream: stream}
	}
}

// AcceptBatch folds one batch into the session. It reports whether the
// batch was live; stale batches are dropped and their stream is abandoned.
// The first live batch of a generation replaces the previous generation's
// results; later ones append.
func (s *Session) AcceptBatch(msg BatchMsg) (tea.Cmd, bool) {
	if msg.Gen != s.gen.Current() {
		return nil, false
	}
	if s.awaitingFirst {
		s.results = s.results[:0]
		s.awaitingFirst = false
		s.clearArmed = false
	}
	s.results = append(s.results, msg.Results...)
	return awaitBatch(msg.Gen, msg.stream), true
}

// Clear wipes the previous generation's results when the grace timer beats
// the first batch. Disarmed or superseded timers are ignored.
func (s *Session) Clear(msg ClearMsg) bool {
	if !s.clearArmed || msg.seq != s.clearSeq {
		return false
	}
	s.clearArmed = false
	s.awaitingFirst = false
	s.results = s.results[:0]
	return true
}

// Drained marks the live generation's fan-out finished. Stale drains are
// ignored.
func (s *Session) Drained(msg DrainedMsg) bool {
	if msg.Gen != s.gen.Current() {
		return false
	}
	s.searching = false
	return true
}

// Reset abandons the live generation entirely: pending debounce, in-flight
// fan-out and accepted results. Used when the query is wiped and the UI
// falls back to its resting state.
func (s *Session) Reset() {
	s.debounce.Cancel()
	s.gen.Bump()
	s.results = s.results[:0]
	s.searching = false
	s.awaitingFirst = false
	s.clearArmed = false
}

// Close releases every fan-out still in flight. The session must not be
// used afterwards.
func (s *Session) Close() {
	s.cancel()
}
