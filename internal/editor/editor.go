// SPDX-License-Identifier: MPL-2.0

package editor

import (
	"slices"

	"github.com/invowk/scribe/pkg/textdoc"
)

// DefaultHeight is the number of rows visible when no height is configured.
const DefaultHeight = 24

type (
	// Editor is a headless editor over a textdoc.Buffer.
	Editor struct {
		buf        *textdoc.Buffer
		sel        textdoc.Selection
		markActive bool
		scrollTop  int
		height     int
		textMap    bool
		markers    []textdoc.Marker
		marks      []textdoc.Position
	}

	// Option configures an Editor.
	Option func(*Editor)
)

// WithHeight sets the number of visible rows. Values below 1 are ignored.
func WithHeight(rows int) Option {
	return func(e *Editor) {
		if rows > 0 {
			e.height = rows
		}
	}
}

// WithTextMap marks the editor as having a whole-document overview, which
// lets searches highlight beyond the visible rows.
func WithTextMap() Option {
	return func(e *Editor) { e.textMap = true }
}

// New creates an editor holding text with the caret at the origin.
func New(text string, opts ...Option) *Editor {
	e := &Editor{buf: textdoc.NewBuffer(text), height: DefaultHeight}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Document returns the editable document.
func (e *Editor) Document() textdoc.Editable { return e.buf }

// Buffer returns the underlying buffer.
func (e *Editor) Buffer() *textdoc.Buffer { return e.buf }

// Text returns the whole document.
func (e *Editor) Text() string { return e.buf.Text() }

// Selection returns the current selection.
func (e *Editor) Selection() textdoc.Selection { return e.sel }

// SetSelection replaces the selection, clamping both ends to the document.
func (e *Editor) SetSelection(s textdoc.Selection) {
	e.sel = textdoc.Selection{Anchor: e.buf.Clamp(s.Anchor), Lead: e.buf.Clamp(s.Lead)}
}

// Cursor returns the selection lead.
func (e *Editor) Cursor() textdoc.Position { return e.sel.Lead }

// SetCursor collapses the selection to p.
func (e *Editor) SetCursor(p textdoc.Position) {
	e.SetSelection(textdoc.Caret(p))
}

// MarkActive reports whether caret movement extends the selection.
func (e *Editor) MarkActive() bool { return e.markActive }

// SetMarkActive toggles selection extension.
func (e *Editor) SetMarkActive(active bool) { e.markActive = active }

// HasTextMap reports whether WithTextMap was given.
func (e *Editor) HasTextMap() bool { return e.textMap }

// SaveMark pushes p onto the mark ring.
func (e *Editor) SaveMark(p textdoc.Position) {
	e.marks = append(e.marks, e.buf.Clamp(p))
}

// Marks returns the mark ring, oldest first.
func (e *Editor) Marks() []textdoc.Position { return slices.Clone(e.marks) }

// PopMark removes and returns the most recent mark.
func (e *Editor) PopMark() (textdoc.Position, bool) {
	if len(e.marks) == 0 {
		return textdoc.Position{}, false
	}
	p := e.marks[len(e.marks)-1]
	e.marks = e.marks[:len(e.marks)-1]
	return p, true
}

// Undo reverts the most recent undo step.
func (e *Editor) Undo() bool {
	ok := e.buf.Undo()
	e.SetSelection(e.sel)
	return ok
}
