// SPDX-License-Identifier: MPL-2.0

package searchsession

import "github.com/invowk/scribe/pkg/textdoc"

// Target is the editor a Controller drives.
type Target interface {
	Document() textdoc.Editable

	Selection() textdoc.Selection
	SetSelection(s textdoc.Selection)
	// MarkActive reports whether caret movement extends the selection.
	MarkActive() bool

	ScrollTop() int
	SetScrollTop(row int)
	// VisibleRows returns the first and last visible rows, inclusive.
	VisibleRows() (first, last int)
	IsRowFullyVisible(row int) bool
	CenterRow(row int)

	AddMarker(m textdoc.Marker)
	RemoveMarker(id string)
	Markers() []textdoc.Marker
	// HasTextMap reports whether a whole-document overview is shown, which
	// makes highlighting every occurrence worthwhile.
	HasTextMap() bool

	// SaveMark records a position the user can jump back to.
	SaveMark(p textdoc.Position)
}
