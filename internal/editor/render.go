// SPDX-License-Identifier: MPL-2.0

package editor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/invowk/scribe/pkg/textdoc"
)

// paint is the decoration of one rune cell; higher values win when markers
// overlap.
type paint int

const (
	paintNone paint = iota
	paintHighlight
	paintCursor
)

var (
	gutterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	highlightStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#F59E0B")).
			Foreground(lipgloss.Color("#111827"))

	cursorStyle = lipgloss.NewStyle().
			Reverse(true).
			Bold(true)
)

// Render draws the visible rows with a line-number gutter and the markers
// painted over them.
func (e *Editor) Render() string {
	first, last := e.VisibleRows()
	width := len(fmt.Sprint(last + 1))

	var sb strings.Builder
	for row := first; row <= last; row++ {
		if row > first {
			sb.WriteByte('\n')
		}
		sb.WriteString(gutterStyle.Render(fmt.Sprintf("%*d ", width, row+1)))
		sb.WriteString(e.renderLine(row))
	}
	return sb.String()
}

func (e *Editor) renderLine(row int) string {
	line := []rune(e.buf.Line(row))
	// One extra cell so a cursor at the line end has somewhere to draw.
	cells := make([]paint, len(line)+1)
	for _, m := range e.markers {
		p := paintHighlight
		if m.Kind != textdoc.MarkerHighlight {
			p = paintCursor
		}
		from, to, ok := rowSpan(m.Range.Normalize(), row, len(cells))
		if !ok {
			continue
		}
		for col := from; col < to; col++ {
			cells[col] = max(cells[col], p)
		}
	}

	var sb strings.Builder
	start := 0
	for col := 1; col <= len(cells); col++ {
		if col < len(cells) && cells[col] == cells[start] {
			continue
		}
		sb.WriteString(paintRun(cells[start], runSlice(line, start, col, cells[start] != paintNone)))
		start = col
	}
	return sb.String()
}

// rowSpan clips r to the columns it covers on row.
func rowSpan(r textdoc.Range, row, width int) (from, to int, ok bool) {
	if row < r.Start.Row || row > r.End.Row {
		return 0, 0, false
	}
	from, to = 0, width
	if row == r.Start.Row {
		from = r.Start.Column
	}
	if row == r.End.Row {
		to = r.End.Column
	}
	from, to = max(from, 0), min(to, width)
	return from, to, from < to
}

// runSlice returns the runes in [from, to). The cell past the line end is
// drawn as a space only when it is painted.
func runSlice(line []rune, from, to int, painted bool) string {
	if to <= len(line) {
		return string(line[from:to])
	}
	s := string(line[min(from, len(line)):])
	if painted {
		s += " "
	}
	return s
}

func paintRun(p paint, s string) string {
	switch p {
	case paintHighlight:
		return highlightStyle.Render(s)
	case paintCursor:
		return cursorStyle.Render(s)
	default:
		return s
	}
}
