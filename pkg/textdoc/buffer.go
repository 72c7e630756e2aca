// SPDX-License-Identifier: MPL-2.0

package textdoc

import (
	"strings"
	"unicode/utf8"
)

type (
	// Buffer is a mutable Document with grouped undo.
	// A Buffer is not safe for concurrent use.
	Buffer struct {
		lines [][]rune

		version    int
		undoStack  []undoGroup
		pending    undoGroup
		groupDepth int
		replaying  bool
	}

	// edit records enough to revert one Replace call.
	edit struct {
		inserted Range
		removed  string
	}

	undoGroup []edit
)

// NewBuffer creates a Buffer holding text.
func NewBuffer(text string) *Buffer {
	b := &Buffer{}
	b.lines = splitLines(text)
	return b
}

func splitLines(text string) [][]rune {
	parts := strings.Split(text, Newline)
	lines := make([][]rune, len(parts))
	for i, part := range parts {
		lines[i] = []rune(part)
	}
	return lines
}

// Text returns the whole document.
func (b *Buffer) Text() string {
	return strings.Join(b.Lines(), Newline)
}

// Lines returns a copy of the document's lines.
func (b *Buffer) Lines() []string {
	out := make([]string, len(b.lines))
	for i, line := range b.lines {
		out[i] = string(line)
	}
	return out
}

// Newline returns the line separator.
func (b *Buffer) Newline() string { return Newline }

// LineCount returns the number of lines. An empty buffer has one empty line.
func (b *Buffer) LineCount() int { return len(b.lines) }

// Line returns the text of row, or "" when row is out of range.
func (b *Buffer) Line(row int) string {
	if row < 0 || row >= len(b.lines) {
		return ""
	}
	return string(b.lines[row])
}

// LineLength returns the rune length of row, or 0 when row is out of range.
func (b *Buffer) LineLength(row int) int {
	if row < 0 || row >= len(b.lines) {
		return 0
	}
	return len(b.lines[row])
}

// Version increases with every mutation, including undo.
func (b *Buffer) Version() int { return b.version }

// EndPosition returns the position just past the last rune.
func (b *Buffer) EndPosition() Position {
	last := len(b.lines) - 1
	return Pos(last, len(b.lines[last]))
}

// Clamp moves p to the nearest position that exists in the document.
func (b *Buffer) Clamp(p Position) Position {
	if p.Row < 0 {
		return Pos(0, 0)
	}
	if p.Row >= len(b.lines) {
		return b.EndPosition()
	}
	return Pos(p.Row, min(max(p.Column, 0), len(b.lines[p.Row])))
}

// PositionToIndex converts p to a flat rune offset.
func (b *Buffer) PositionToIndex(p Position) int {
	p = b.Clamp(p)
	idx := 0
	for row := range p.Row {
		idx += len(b.lines[row]) + 1
	}
	return idx + p.Column
}

// IndexToPosition converts a flat rune offset to a position.
func (b *Buffer) IndexToPosition(i int) Position {
	if i <= 0 {
		return Pos(0, 0)
	}
	for row, line := range b.lines {
		if i <= len(line) {
			return Pos(row, i)
		}
		i -= len(line) + 1
	}
	return b.EndPosition()
}

// TextInRange returns the text between r.Start and r.End.
func (b *Buffer) TextInRange(r Range) string {
	r = r.Normalize()
	start, end := b.Clamp(r.Start), b.Clamp(r.End)
	if start.Row == end.Row {
		return string(b.lines[start.Row][start.Column:end.Column])
	}
	var sb strings.Builder
	sb.WriteString(string(b.lines[start.Row][start.Column:]))
	for row := start.Row + 1; row < end.Row; row++ {
		sb.WriteString(Newline)
		sb.WriteString(string(b.lines[row]))
	}
	sb.WriteString(Newline)
	sb.WriteString(string(b.lines[end.Row][:end.Column]))
	return sb.String()
}

// Insert inserts text at p and returns the range it now occupies.
func (b *Buffer) Insert(p Position, text string) Range {
	return b.Replace(Range{Start: p, End: p}, text)
}

// Replace substitutes the text in r with text and returns the range the new
// text occupies.
func (b *Buffer) Replace(r Range, text string) Range {
	r = r.Normalize()
	start, end := b.Clamp(r.Start), b.Clamp(r.End)
	removed := b.TextInRange(Range{Start: start, End: end})

	prefix := b.lines[start.Row][:start.Column]
	suffix := b.lines[end.Row][end.Column:]
	inserted := splitLines(text)
	n := len(inserted)

	// The new lines must not alias the old backing arrays.
	first := make([]rune, 0, len(prefix)+len(inserted[0]))
	first = append(first, prefix...)
	first = append(first, inserted[0]...)
	endCol := len(first)
	if n == 1 {
		first = append(first, suffix...)
		inserted[0] = first
	} else {
		inserted[0] = first
		lastText := inserted[n-1]
		endCol = len(lastText)
		last := make([]rune, 0, len(lastText)+len(suffix))
		last = append(last, lastText...)
		last = append(last, suffix...)
		inserted[n-1] = last
	}

	lines := make([][]rune, 0, len(b.lines)-(end.Row-start.Row)+n-1)
	lines = append(lines, b.lines[:start.Row]...)
	lines = append(lines, inserted...)
	lines = append(lines, b.lines[end.Row+1:]...)
	b.lines = lines
	b.version++

	insertedRange := Range{Start: start, End: Pos(start.Row+n-1, endCol)}
	if !b.replaying {
		b.record(edit{inserted: insertedRange, removed: removed})
	}
	return insertedRange
}

func (b *Buffer) record(e edit) {
	if b.groupDepth > 0 {
		b.pending = append(b.pending, e)
		return
	}
	b.undoStack = append(b.undoStack, undoGroup{e})
}

// BeginUndoGroup starts collecting edits into a single undo step.
// Groups nest; only the outermost EndUndoGroup closes the step.
func (b *Buffer) BeginUndoGroup() {
	b.groupDepth++
}

// EndUndoGroup closes the group opened by the matching BeginUndoGroup.
func (b *Buffer) EndUndoGroup() {
	if b.groupDepth == 0 {
		return
	}
	b.groupDepth--
	if b.groupDepth == 0 && len(b.pending) > 0 {
		b.undoStack = append(b.undoStack, b.pending)
		b.pending = nil
	}
}

// CanUndo reports whether there is an undo step available.
func (b *Buffer) CanUndo() bool { return len(b.undoStack) > 0 }

// Undo reverts the most recent undo step. It returns false when there is
// nothing to undo.
func (b *Buffer) Undo() bool {
	if len(b.undoStack) == 0 {
		return false
	}
	group := b.undoStack[len(b.undoStack)-1]
	b.undoStack = b.undoStack[:len(b.undoStack)-1]

	b.replaying = true
	defer func() { b.replaying = false }()
	for i := len(group) - 1; i >= 0; i-- {
		b.Replace(group[i].inserted, group[i].removed)
	}
	return true
}

// ScanForward visits every position from start to the end of the document.
func (b *Buffer) ScanForward(start Position, visit Visitor) {
	start = b.Clamp(start)
	last := len(b.lines) - 1
	for row := start.Row; row <= last; row++ {
		line := b.lines[row]
		col := 0
		if row == start.Row {
			col = start.Column
		}
		for ; col <= len(line); col++ {
			ch, ok := runeAt(line, col, row == last)
			if !ok {
				break
			}
			if visit(ch, Pos(row, col)) == Stop {
				return
			}
		}
	}
}

// ScanBackward visits every position strictly before start, right to left.
func (b *Buffer) ScanBackward(start Position, visit Visitor) {
	start = b.Clamp(start)
	for row := start.Row; row >= 0; row-- {
		line := b.lines[row]
		col := len(line)
		if row == start.Row {
			col = start.Column - 1
		}
		for ; col >= 0; col-- {
			ch, _ := runeAt(line, col, false)
			if visit(ch, Pos(row, col)) == Stop {
				return
			}
		}
	}
}

// runeAt returns the rune at col, reporting the line end as '\n' unless the
// line is the last one.
func runeAt(line []rune, col int, lastLine bool) (rune, bool) {
	if col < len(line) {
		return line[col], true
	}
	if lastLine {
		return utf8.RuneError, false
	}
	return '\n', true
}
