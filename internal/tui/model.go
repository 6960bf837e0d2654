// Package tui is the terminal front end: one input line, a result list,
// and the routing between application search, backend search (":s") and
// the configured colon commands.
package tui

import (
	"context"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/glint-sh/glint/internal/action"
	"github.com/glint-sh/glint/internal/apps"
	"github.com/glint-sh/glint/internal/backend"
	"github.com/glint-sh/glint/internal/command"
	"github.com/glint-sh/glint/internal/config"
	"github.com/glint-sh/glint/internal/search"
)

// mode says which result source the current query addresses.
type mode int

const (
	modeApps mode = iota
	modeBackend
	modeCommand
)

// rowKind tags what a list row holds.
type rowKind int

const (
	rowApp rowKind = iota
	rowResult
	rowLine
	rowNotice
)

// row is one list entry.
type row struct {
	kind   rowKind
	app    apps.App
	result backend.Result
	line   string
	notice string
}

// commandDoneMsg carries finished colon-command output.
type commandDoneMsg struct {
	id    uint64
	lines []string
	err   error
}

// commandState is shared across model copies so a fetch scheduled on an
// older copy still talks to the current bookkeeping.
type commandState struct {
	requestID uint64 // Monotonic counter for stale detection
	running   bool
	cancel    context.CancelFunc
}

// Deps are the engines the model drives.
type Deps struct {
	Apps     []apps.App
	Usage    map[string]int // launch counts by .desktop path
	Registry *backend.Registry
	Session  *search.Session
	Runner   *command.Runner
	Launcher *action.Launcher
	Logger   *slog.Logger
}

// Model is the Bubble Tea model for the launcher window.
type Model struct {
	cfg  *config.Config
	deps Deps

	input textinput.Model
	spin  spinner.Model

	mode      mode
	cmdName   string // active colon command name; "s" is backend search
	rows      []row
	selection int // Index into rows; -1 when empty

	cmd *commandState

	width  int
	height int
}

// NewModel builds the launcher model. The app list shows immediately.
func NewModel(cfg *config.Config, deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}

	ti := textinput.New()
	ti.Placeholder = "Search applications…"
	ti.CharLimit = 200
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := Model{
		cfg:       cfg,
		deps:      deps,
		input:     ti,
		spin:      sp,
		cmd:       &commandState{},
		selection: -1,
	}
	m.rows = m.appRows("")
	m.resetSelection()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 6
		return m, nil

	case search.DebounceMsg:
		return m, m.deps.Session.Debounce(msg)

	case search.BatchMsg:
		cmd, accepted := m.deps.Session.AcceptBatch(msg)
		if accepted {
			m.rows = m.resultRows()
			m.clampSelection()
		}
		return m, cmd

	case search.ClearMsg:
		if m.deps.Session.Clear(msg) {
			m.rows = m.resultRows()
			m.clampSelection()
		}
		return m, nil

	case search.DrainedMsg:
		m.deps.Session.Drained(msg)
		return m, nil

	case commandDoneMsg:
		return m.handleCommandDone(msg)

	case spinner.TickMsg:
		if m.searching() {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	// Cursor blinks and other component messages.
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.teardown()
		return m, tea.Quit

	case tea.KeyEnter:
		m.activateSelection()
		m.teardown()
		return m, tea.Quit

	case tea.KeyUp:
		if m.selection > 0 {
			m.selection--
		}
		return m, nil

	case tea.KeyDown:
		if m.selection < len(m.rows)-1 {
			m.selection++
		}
		return m, nil

	case tea.KeyPgUp:
		m.selection -= m.listHeight()
		m.clampSelection()
		return m, nil

	case tea.KeyPgDown:
		m.selection += m.listHeight()
		m.clampSelection()
		return m, nil
	}

	// Everything else edits the query.
	prev := m.input.Value()
	var inputCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	if m.input.Value() == prev {
		return m, inputCmd
	}

	next, routeCmd := m.route(m.input.Value())
	return next, tea.Batch(inputCmd, routeCmd)
}

// route reacts to a changed query: it retires whatever the previous
// keystroke had pending, then dispatches by prefix.
func (m Model) route(query string) (Model, tea.Cmd) {
	m.deps.Session.CancelPending()
	m.cancelCommand()

	if strings.HasPrefix(query, ":") {
		return m.routeColon(query)
	}

	if m.mode == modeBackend {
		m.deps.Session.Reset()
	}
	m.mode = modeApps
	m.cmdName = ""
	m.rows = m.appRows(query)
	m.resetSelection()
	return m, nil
}

// routeColon dispatches ":name arg" input.
func (m Model) routeColon(query string) (Model, tea.Cmd) {
	name, arg := parseColon(query)

	if name == "s" {
		m.mode = modeBackend
		m.cmdName = name
		if arg == "" {
			m.deps.Session.Reset()
			m.rows = nil
			m.selection = -1
			return m, nil
		}
		if len(m.deps.Registry.Backends()) == 0 {
			m.rows = []row{{kind: rowNotice, notice: "No search backends found"}}
			m.selection = 0
			return m, nil
		}
		return m, tea.Batch(
			m.deps.Session.ScheduleSearch(strings.Fields(arg)),
			m.spin.Tick,
		)
	}

	template, ok := m.cfg.Commands[name]
	if !ok {
		// Unknown command; keep whatever is showing.
		return m, nil
	}
	if m.mode == modeBackend {
		m.deps.Session.Reset()
	}
	m.mode = modeCommand
	m.cmdName = name
	if arg == "" {
		m.rows = nil
		m.selection = -1
		return m, nil
	}
	return m, tea.Batch(
		m.deps.Session.ScheduleCommand(m.commandAction(template, arg)),
		m.spin.Tick,
	)
}

// commandAction returns the debounced action for one command fetch. It
// captures the shared fetch state, never the model copy it was built on.
func (m Model) commandAction(template, arg string) func() tea.Cmd {
	st := m.cmd
	runner := m.deps.Runner
	return func() tea.Cmd {
		st.requestID++
		if st.cancel != nil {
			st.cancel()
		}
		ctx, cancel := context.WithCancel(context.Background())
		st.cancel = cancel
		st.running = true

		id := st.requestID
		return func() tea.Msg {
			lines, err := runner.Run(ctx, template, arg)
			return commandDoneMsg{id: id, lines: lines, err: err}
		}
	}
}

// handleCommandDone installs finished command output, unless stale.
func (m Model) handleCommandDone(msg commandDoneMsg) (tea.Model, tea.Cmd) {
	if msg.id != m.cmd.requestID {
		return m, nil
	}
	m.cmd.running = false

	if msg.err != nil {
		m.rows = []row{{kind: rowNotice, notice: "Command failed: " + msg.err.Error()}}
		m.selection = 0
		return m, nil
	}

	rows := make([]row, 0, len(msg.lines))
	for _, line := range msg.lines {
		rows = append(rows, row{kind: rowLine, line: line})
	}
	m.rows = rows
	m.resetSelection()
	return m, nil
}

// activateSelection hands the selected row to the launcher. The work is
// queued; the caller quits right after.
func (m *Model) activateSelection() {
	if m.selection < 0 || m.selection >= len(m.rows) {
		return
	}
	query := m.input.Value()
	r := m.rows[m.selection]

	var err error
	switch r.kind {
	case rowApp:
		err = m.deps.Launcher.LaunchApp(r.app, query)
	case rowResult:
		_, arg := parseColon(query)
		err = m.deps.Launcher.ActivateResult(r.result, strings.Fields(arg), query)
	case rowLine:
		err = m.deps.Launcher.OpenLine(r.line, query)
	case rowNotice:
		return
	}
	if err != nil {
		m.deps.Logger.Warn("activation failed", "error", err)
	}
}

// appRows builds the application list. An empty query shows everything,
// most-launched first.
func (m Model) appRows(query string) []row {
	var matched []apps.App
	if query == "" {
		matched = apps.SortByUsage(m.deps.Apps, m.deps.Usage)
	} else {
		matched = apps.Match(m.deps.Apps, query, m.cfg.Search.MaxResults)
	}
	rows := make([]row, 0, len(matched))
	for _, a := range matched {
		rows = append(rows, row{kind: rowApp, app: a})
	}
	return rows
}

// resultRows mirrors the session's current backend results.
func (m Model) resultRows() []row {
	results := m.deps.Session.Results()
	rows := make([]row, 0, len(results))
	for _, res := range results {
		rows = append(rows, row{kind: rowResult, result: res})
	}
	return rows
}

// cancelCommand retires any in-flight or pending command fetch.
func (m *Model) cancelCommand() {
	m.cmd.requestID++
	if m.cmd.cancel != nil {
		m.cmd.cancel()
		m.cmd.cancel = nil
	}
	m.cmd.running = false
}

// teardown stops everything that may still be running.
func (m *Model) teardown() {
	m.deps.Session.Close()
	m.cancelCommand()
}

// searching reports whether any result source is still working.
func (m Model) searching() bool {
	return m.deps.Session.Searching() || m.cmd.running
}

// clampSelection keeps the selection index within bounds.
func (m *Model) clampSelection() {
	if len(m.rows) == 0 {
		m.selection = -1
		return
	}
	if m.selection < 0 {
		m.selection = 0
	}
	if m.selection >= len(m.rows) {
		m.selection = len(m.rows) - 1
	}
}

// resetSelection selects the first row, if any.
func (m *Model) resetSelection() {
	if len(m.rows) > 0 {
		m.selection = 0
	} else {
		m.selection = -1
	}
}

// listHeight is the number of visible list rows: terminal height minus the
// input and status lines.
func (m Model) listHeight() int {
	const chrome = 2
	h := m.height - chrome
	if h < 1 {
		h = 20 // Sensible default before first WindowSizeMsg
	}
	return h
}

// parseColon splits ":name arg" into the command name and trimmed argument.
func parseColon(query string) (string, string) {
	rest := strings.TrimPrefix(query, ":")
	name, arg, found := strings.Cut(rest, " ")
	if !found {
		return rest, ""
	}
	return name, strings.TrimSpace(arg)
}
