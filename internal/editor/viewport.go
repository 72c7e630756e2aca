// SPDX-License-Identifier: MPL-2.0

package editor

// Height returns the number of visible rows.
func (e *Editor) Height() int { return e.height }

// ScrollTop returns the first visible row.
func (e *Editor) ScrollTop() int { return e.scrollTop }

// SetScrollTop scrolls so that row is the first visible row, clamped so the
// viewport never starts past the last line.
func (e *Editor) SetScrollTop(row int) {
	e.scrollTop = min(max(row, 0), e.buf.LineCount()-1)
}

// VisibleRows returns the first and last visible rows, inclusive.
func (e *Editor) VisibleRows() (first, last int) {
	return e.scrollTop, min(e.scrollTop+e.height-1, e.buf.LineCount()-1)
}

// IsRowFullyVisible reports whether row lies inside the viewport.
func (e *Editor) IsRowFullyVisible(row int) bool {
	first, last := e.VisibleRows()
	return row >= first && row <= last
}

// CenterRow scrolls so that row sits in the middle of the viewport.
func (e *Editor) CenterRow(row int) {
	e.SetScrollTop(row - e.height/2)
}
