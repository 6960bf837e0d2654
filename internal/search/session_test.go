package search

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glint-sh/glint/internal/backend"
)

// fakeStreamer records every Stream call and hands the test direct control
// over the batch channel.
type fakeStreamer struct {
	mu    sync.Mutex
	calls []*streamCall
}

type streamCall struct {
	ctx    context.Context
	terms  []string
	max    int
	stream chan []backend.Result
}

func (f *fakeStreamer) Stream(ctx context.Context, terms []string, max int) <-chan []backend.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := &streamCall{
		ctx:    ctx,
		terms:  terms,
		max:    max,
		stream: make(chan []backend.Result, 8),
	}
	f.calls = append(f.calls, call)
	return call.stream
}

func (f *fakeStreamer) last() *streamCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeStreamer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func results(ids ...string) []backend.Result {
	rs := make([]backend.Result, len(ids))
	for i, id := range ids {
		rs[i] = backend.Result{ID: id, Name: id}
	}
	return rs
}

func ids(rs []backend.Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func newTestSession(fs *fakeStreamer) *Session {
	return NewSession(fs, Config{})
}

func TestSession_DefaultsApplied(t *testing.T) {
	s := newTestSession(&fakeStreamer{})

	assert.Equal(t, 120*time.Millisecond, s.cfg.QueryDelay)
	assert.Equal(t, 300*time.Millisecond, s.cfg.CommandDelay)
	assert.Equal(t, 25*time.Millisecond, s.cfg.ClearDelay)
	assert.Equal(t, 64, s.cfg.MaxResults)
}

func TestSearch_BumpsGenerationAndStartsStream(t *testing.T) {
	fs := &fakeStreamer{}
	s := NewSession(fs, Config{MaxResults: 7})

	cmd := s.Search([]string{"mus"})
	require.NotNil(t, cmd)

	assert.Equal(t, Generation(1), s.Generation())
	assert.True(t, s.Searching())

	call := fs.last()
	assert.Equal(t, []string{"mus"}, call.terms)
	assert.Equal(t, 7, call.max)
	assert.NoError(t, call.ctx.Err())
}

func TestAcceptBatch_AppendsInArrivalOrder(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.Search([]string{"mus"})
	gen := s.Generation()
	stream := fs.last().stream

	_, ok := s.AcceptBatch(BatchMsg{Gen: gen, Results: results("b-1", "b-2"), stream: stream})
	require.True(t, ok)
	_, ok = s.AcceptBatch(BatchMsg{Gen: gen, Results: results("a-1"), stream: stream})
	require.True(t, ok)

	assert.Equal(t, []string{"b-1", "b-2", "a-1"}, ids(s.Results()))
}

func TestAcceptBatch_StaleGenerationDiscarded(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.Search([]string{"mus"})
	oldGen := s.Generation()
	oldStream := fs.last().stream

	s.Search([]string{"musi"})

	cmd, ok := s.AcceptBatch(BatchMsg{Gen: oldGen, Results: results("stale"), stream: oldStream})
	assert.False(t, ok)
	assert.Nil(t, cmd, "a stale stream must not be pumped again")
	assert.Empty(t, s.Results())
}

func TestSearch_PreviousResultsLingerUntilFirstBatch(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.Search([]string{"mus"})
	gen := s.Generation()
	s.AcceptBatch(BatchMsg{Gen: gen, Results: results("old-1", "old-2"), stream: fs.last().stream})

	s.Search([]string{"musi"})
	assert.Equal(t, []string{"old-1", "old-2"}, ids(s.Results()), "old results stay while the new query runs")

	newGen := s.Generation()
	_, ok := s.AcceptBatch(BatchMsg{Gen: newGen, Results: results("new-1"), stream: fs.last().stream})
	require.True(t, ok)
	assert.Equal(t, []string{"new-1"}, ids(s.Results()), "first batch replaces, not appends")
}

func TestClear_WipesWhenTimerBeatsFirstBatch(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.Search([]string{"mus"})
	gen := s.Generation()
	s.AcceptBatch(BatchMsg{Gen: gen, Results: results("old-1"), stream: fs.last().stream})

	s.Search([]string{"musi"})
	require.True(t, s.Clear(ClearMsg{seq: s.clearSeq}))
	assert.Empty(t, s.Results())

	// The first batch after a timer clear appends; the wipe happens once.
	newGen := s.Generation()
	_, ok := s.AcceptBatch(BatchMsg{Gen: newGen, Results: results("new-1"), stream: fs.last().stream})
	require.True(t, ok)
	assert.Equal(t, []string{"new-1"}, ids(s.Results()))
}

func TestClear_DisarmedByFirstBatch(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.Search([]string{"mus"})
	gen := s.Generation()
	seq := s.clearSeq
	s.AcceptBatch(BatchMsg{Gen: gen, Results: results("r-1"), stream: fs.last().stream})

	assert.False(t, s.Clear(ClearMsg{seq: seq}))
	assert.Equal(t, []string{"r-1"}, ids(s.Results()))
}

func TestClear_StaleTimerIgnored(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.Search([]string{"mus"})
	staleSeq := s.clearSeq
	gen := s.Generation()
	s.AcceptBatch(BatchMsg{Gen: gen, Results: results("r-1"), stream: fs.last().stream})

	s.Search([]string{"musi"})

	assert.False(t, s.Clear(ClearMsg{seq: staleSeq}))
	assert.Equal(t, []string{"r-1"}, ids(s.Results()), "only the live timer may clear")
}

func TestAcceptBatch_ReArmsStream(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.Search([]string{"mus"})
	gen := s.Generation()
	stream := fs.last().stream

	cmd, ok := s.AcceptBatch(BatchMsg{Gen: gen, Results: results("r-1"), stream: stream})
	require.True(t, ok)
	require.NotNil(t, cmd)

	// The re-armed command picks up the next batch off the same stream.
	stream <- results("r-2")
	msg, ok := cmd().(BatchMsg)
	require.True(t, ok)
	assert.Equal(t, gen, msg.Gen)

	cmd, ok = s.AcceptBatch(msg)
	require.True(t, ok)
	assert.Equal(t, []string{"r-1", "r-2"}, ids(s.Results()))

	// A closed stream drains the generation.
	close(stream)
	drained, isDrained := cmd().(DrainedMsg)
	require.True(t, isDrained)
	assert.Equal(t, gen, drained.Gen)
	assert.True(t, s.Drained(drained))
	assert.False(t, s.Searching())
}

func TestDrained_StaleGenerationIgnored(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.Search([]string{"mus"})
	oldGen := s.Generation()
	s.Search([]string{"musi"})

	assert.False(t, s.Drained(DrainedMsg{Gen: oldGen}))
	assert.True(t, s.Searching(), "the live fan-out is still running")

	assert.True(t, s.Drained(DrainedMsg{Gen: s.Generation()}))
	assert.False(t, s.Searching())
}

func TestSearch_SupersededFanOutKeepsRunning(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.Search([]string{"mus"})
	first := fs.last()
	require.NoError(t, first.ctx.Err())

	// Supersession abandons the old fan-out rather than aborting it; its
	// calls run out their own timeouts while the generation gate hides
	// whatever they produce.
	s.Search([]string{"musi"})
	assert.NoError(t, first.ctx.Err())
	assert.NoError(t, fs.last().ctx.Err())
}

func TestClose_ReleasesInflightFanOuts(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.Search([]string{"mus"})
	s.Search([]string{"musi"})

	s.Close()
	assert.ErrorIs(t, fs.calls[0].ctx.Err(), context.Canceled)
	assert.ErrorIs(t, fs.calls[1].ctx.Err(), context.Canceled)
}

func TestScheduleSearch_RunsAfterDebounce(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.ScheduleSearch([]string{"m"})
	s.ScheduleSearch([]string{"mu"})
	s.ScheduleSearch([]string{"mus"})
	assert.Zero(t, fs.count(), "nothing runs until a timer fires")
	assert.Equal(t, Generation(3), s.Generation(), "every keystroke bumps, fired or not")

	cmd := s.Debounce(DebounceMsg{id: s.debounce.id})
	require.NotNil(t, cmd)

	require.Equal(t, 1, fs.count(), "coalesced into a single search")
	assert.Equal(t, []string{"mus"}, fs.last().terms)
	assert.Equal(t, Generation(3), s.Generation(), "the fire reuses the last keystroke's generation")
}

func TestScheduleSearch_StaleTimerDoesNothing(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.ScheduleSearch([]string{"m"})
	staleID := s.debounce.id
	s.ScheduleSearch([]string{"mu"})

	assert.Nil(t, s.Debounce(DebounceMsg{id: staleID}))
	assert.Zero(t, fs.count())
}

func TestScheduleSearch_SupersedesInflightImmediately(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.Search([]string{"mus"})
	oldGen := s.Generation()
	oldStream := fs.last().stream
	s.AcceptBatch(BatchMsg{Gen: oldGen, Results: results("old-1"), stream: oldStream})

	// The keystroke alone retires the in-flight query: no new fan-out
	// exists yet, but the old one is already stale.
	s.ScheduleSearch([]string{"musi"})
	require.Equal(t, 1, fs.count(), "the debounced search has not fired")
	assert.NotEqual(t, oldGen, s.Generation())

	cmd, ok := s.AcceptBatch(BatchMsg{Gen: oldGen, Results: results("old-2"), stream: oldStream})
	assert.False(t, ok, "in-flight batches go stale at the keystroke, not at the fire")
	assert.Nil(t, cmd)
	assert.Equal(t, []string{"old-1"}, ids(s.Results()), "already-accepted results linger")

	// The fire fans out under the generation the keystroke took.
	require.NotNil(t, s.Debounce(DebounceMsg{id: s.debounce.id}))
	require.Equal(t, 2, fs.count())
	_, ok = s.AcceptBatch(BatchMsg{Gen: s.Generation(), Results: results("new-1"), stream: fs.last().stream})
	require.True(t, ok)
	assert.Equal(t, []string{"new-1"}, ids(s.Results()))
}

func TestSearch_DropsPendingDebounce(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.ScheduleSearch([]string{"pen"})
	pendingID := s.debounce.id

	s.Search([]string{"mus"})
	assert.False(t, s.debounce.Pending(), "an immediate search displaces the pending fire")

	assert.Nil(t, s.Debounce(DebounceMsg{id: pendingID}))
	assert.Equal(t, 1, fs.count(), "only the immediate search ran")
}

func TestScheduleCommand_SharesPendingSlotWithSearch(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.ScheduleSearch([]string{"mus"})
	searchID := s.debounce.id

	ran := false
	s.ScheduleCommand(func() tea.Cmd {
		ran = true
		return nil
	})

	// The command supersedes the pending search outright.
	assert.Nil(t, s.Debounce(DebounceMsg{id: searchID}))
	assert.Zero(t, fs.count())

	s.Debounce(DebounceMsg{id: s.debounce.id})
	assert.True(t, ran)
}

func TestReset_AbandonsLiveGeneration(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	s.ScheduleSearch([]string{"pending"})
	s.Search([]string{"mus"})
	gen := s.Generation()
	call := fs.last()
	s.AcceptBatch(BatchMsg{Gen: gen, Results: results("r-1"), stream: call.stream})

	s.Reset()

	assert.Empty(t, s.Results())
	assert.False(t, s.Searching())
	assert.False(t, s.debounce.Pending())

	// Whatever the abandoned fan-out still delivers is stale now.
	_, ok := s.AcceptBatch(BatchMsg{Gen: gen, Results: results("late"), stream: call.stream})
	assert.False(t, ok)
}

func TestSession_SupersessionEndToEnd(t *testing.T) {
	fs := &fakeStreamer{}
	s := newTestSession(fs)

	// Generation 1: one batch lands before the user keeps typing.
	s.Search([]string{"mus"})
	gen1 := s.Generation()
	stream1 := fs.last().stream
	s.AcceptBatch(BatchMsg{Gen: gen1, Results: results("old-1", "old-2"), stream: stream1})

	// Generation 2 supersedes; its grace timer beats the first batch.
	s.Search([]string{"musi"})
	gen2 := s.Generation()
	stream2 := fs.last().stream
	require.True(t, s.Clear(ClearMsg{seq: s.clearSeq}))
	assert.Empty(t, s.Results())

	// A straggler from generation 1 shows up late: dropped.
	_, ok := s.AcceptBatch(BatchMsg{Gen: gen1, Results: results("old-3"), stream: stream1})
	assert.False(t, ok)

	// Generation 2 streams two batches, then drains.
	_, ok = s.AcceptBatch(BatchMsg{Gen: gen2, Results: results("new-1", "new-2", "new-3"), stream: stream2})
	require.True(t, ok)
	_, ok = s.AcceptBatch(BatchMsg{Gen: gen2, Results: results("new-4"), stream: stream2})
	require.True(t, ok)
	require.True(t, s.Drained(DrainedMsg{Gen: gen2}))

	assert.Equal(t, []string{"new-1", "new-2", "new-3", "new-4"}, ids(s.Results()))
	assert.False(t, s.Searching())

	// The stale drain from generation 1 changes nothing.
	assert.False(t, s.Drained(DrainedMsg{Gen: gen1}))
}
