package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	modeStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	normalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	descStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	spinnerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.viewInput())
	b.WriteRune('\n')
	b.WriteString(m.viewList())
	b.WriteRune('\n')
	b.WriteString(m.viewStatus())

	return b.String()
}

// viewInput renders the query line with the mode badge and, while a source
// is working, the spinner.
func (m Model) viewInput() string {
	var b strings.Builder
	if badge := m.modeBadge(); badge != "" {
		b.WriteString(modeStyle.Render(badge))
		b.WriteString(" ")
	}
	b.WriteString(m.input.View())
	if m.searching() {
		b.WriteString(" ")
		b.WriteString(m.spin.View())
	}
	return b.String()
}

// modeBadge labels the special modes the way the entry icon does in a
// graphical launcher.
func (m Model) modeBadge() string {
	switch m.mode {
	case modeBackend:
		return "search"
	case modeCommand:
		return ":" + m.cmdName
	default:
		return ""
	}
}

// viewList renders the rows visible around the selection.
func (m Model) viewList() string {
	if len(m.rows) == 0 {
		if m.searching() {
			return dimStyle.Render("Searching…")
		}
		return dimStyle.Render("No matches")
	}

	maxRows := m.listHeight()
	start := 0
	if m.selection >= maxRows {
		start = m.selection - maxRows + 1
	}
	end := start + maxRows
	if end > len(m.rows) {
		end = len(m.rows)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		b.WriteString(m.renderRow(m.rows[i], i == m.selection))
		if i < end-1 {
			b.WriteRune('\n')
		}
	}
	return b.String()
}

// renderRow renders one entry with the selection marker.
func (m Model) renderRow(r row, selected bool) string {
	marker := "  "
	nameStyle := normalStyle
	if selected {
		marker = "> "
		nameStyle = selectedStyle
	}

	avail := m.width - 2
	if m.width == 0 {
		avail = 78
	}
	if avail < 8 {
		avail = 8
	}

	switch r.kind {
	case rowNotice:
		return noticeStyle.Render(marker + truncate(clean(r.notice), avail))

	case rowLine:
		// Paths keep their tail; the filename is the interesting part.
		return nameStyle.Render(marker + middleTruncate(clean(r.line), avail))

	default:
		name, desc := r.app.Name, r.app.Description
		if r.kind == rowResult {
			name, desc = r.result.Name, r.result.Description
		}
		name = truncate(clean(name), avail)
		out := nameStyle.Render(marker + name)
		if desc != "" {
			rest := avail - runewidth.StringWidth(name) - 2
			if rest > 3 {
				out += descStyle.Render("  " + truncate(clean(desc), rest))
			}
		}
		return out
	}
}

// viewStatus renders the bottom line.
func (m Model) viewStatus() string {
	n := len(m.rows)
	label := "results"
	if n == 1 {
		label = "result"
	}
	if m.searching() {
		return dimStyle.Render(fmt.Sprintf("%d %s · searching", n, label))
	}
	return dimStyle.Render(fmt.Sprintf("%d %s", n, label))
}
