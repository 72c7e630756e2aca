// SPDX-License-Identifier: MPL-2.0

package textdoc

const (
	// MarkerHighlight paints the background of an occurrence.
	MarkerHighlight MarkerKind = iota
	// MarkerCursorLeft draws a bar on the left edge of its range.
	MarkerCursorLeft
	// MarkerCursorRight draws a bar on the right edge of its range.
	MarkerCursorRight
)

type (
	// MarkerKind selects how a host renders a marker.
	MarkerKind int

	// Marker is a decoration over a range, keyed by ID.
	Marker struct {
		ID    string
		Range Range
		Kind  MarkerKind
	}
)

// String returns a human-readable name for the kind.
func (k MarkerKind) String() string {
	switch k {
	case MarkerHighlight:
		return "highlight"
	case MarkerCursorLeft:
		return "cursor-left"
	case MarkerCursorRight:
		return "cursor-right"
	default:
		return "unknown"
	}
}
