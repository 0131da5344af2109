package ui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// MaxLabelRunes caps list labels before any terminal-width fitting.
const MaxLabelRunes = 120

// EmptyMessage is shown when the index has no entries.
const EmptyMessage = "No questions indexed yet."

// Label shortens text to MaxLabelRunes characters, marking cuts with "…".
func Label(text string) string {
	r := []rune(text)
	if len(r) <= MaxLabelRunes {
		return text
	}
	return string(r[:MaxLabelRunes]) + "…"
}

// CountLine is the status line for n visible questions.
func CountLine(n int) string {
	if n == 0 {
		return EmptyMessage
	}
	return fmt.Sprintf("%d question(s)", n)
}

// fit collapses whitespace and truncates to width terminal cells.
func fit(text string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(text) <= width {
		return text
	}
	return runewidth.Truncate(text, width, "…")
}
