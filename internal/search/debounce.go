package search

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// DebounceMsg fires after a scheduled delay expires. Only the message from
// the most recent Schedule call is honored.
type DebounceMsg struct {
	id uint64
}

// Debouncer coalesces bursts of schedule calls: each call supersedes the
// previous one, so only the action armed last runs. A single Debouncer
// serves any number of delay classes; whatever was pending is dropped when
// something else is scheduled, regardless of class.
//
// All methods are called from the UI loop.
type Debouncer struct {
	id     uint64
	action func() tea.Cmd
}

// Schedule arms action to run after delay, cancelling any earlier pending
// action.
func (d *Debouncer) Schedule(delay time.Duration, action func() tea.Cmd) tea.Cmd {
	d.id++
	d.action = action
	id := d.id
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return DebounceMsg{id: id}
	})
}

// Fire runs the scheduled action if msg is still current; stale timer
// messages yield nil. The pending action is cleared before it runs, so an
// action that schedules again does not cancel itself.
func (d *Debouncer) Fire(msg DebounceMsg) tea.Cmd {
	if msg.id != d.id || d.action == nil {
		return nil
	}
	action := d.action
	d.action = nil
	return action()
}

// Cancel drops the pending action, if any. Safe to call repeatedly.
func (d *Debouncer) Cancel() {
	d.action = nil
}

// Pending reports whether a scheduled action has not yet fired or been
// cancelled.
func (d *Debouncer) Pending() bool {
	return d.action != nil
}
