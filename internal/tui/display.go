package tui

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// ansiRE matches CSI sequences (colors, cursor movement) and OSC sequences
// (titles, hyperlinks) that subprocess output may carry.
var ansiRE = regexp.MustCompile(`\x1b(?:\[[0-9;]*[A-Za-z]|\].*?(?:\x1b\\|\x07))`)

// clean makes arbitrary subprocess or backend text safe to render as one
// list row: escapes stripped, invalid UTF-8 replaced, control characters
// flattened to spaces.
func clean(s string) string {
	s = ansiRE.ReplaceAllString(s, "")
	s = strings.ToValidUTF8(s, string(utf8.RuneError))
	return strings.Map(func(r rune) rune {
		if r < ' ' {
			return ' '
		}
		return r
	}, s)
}

// truncate cuts s on the right to fit maxWidth display columns.
func truncate(s string, maxWidth int) string {
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	return runewidth.Truncate(s, maxWidth, "…")
}

// middleTruncate drops the middle of s so head and tail both stay visible.
// Wide runes count for two columns.
func middleTruncate(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	sw := runewidth.StringWidth(s)
	if sw <= maxWidth {
		return s
	}
	if maxWidth < 4 {
		return runewidth.Truncate(s, maxWidth, "")
	}

	remaining := maxWidth - 1
	headWidth := (remaining + 1) / 2
	tailWidth := remaining - headWidth

	head := runewidth.Truncate(s, headWidth, "")
	tail := runewidth.TruncateLeft(s, sw-tailWidth, "")
	return head + "…" + tail
}
