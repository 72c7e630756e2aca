// SPDX-License-Identifier: MPL-2.0

package textdoc

// Newline separates lines in every document.
const Newline = "\n"

const (
	// Continue tells a scan to visit the next position.
	Continue ScanAction = iota
	// Stop ends a scan immediately.
	Stop
)

type (
	// ScanAction is returned by a Visitor to steer a scan.
	ScanAction int

	// Visitor is invoked once per visited position. The rune at the end of a
	// line that is followed by another line is reported as '\n'.
	Visitor func(ch rune, pos Position) ScanAction

	// Document is the read-only view of a line-structured text.
	Document interface {
		// Lines returns the document's lines without separators.
		Lines() []string
		// Newline returns the line separator.
		Newline() string
		// PositionToIndex converts a position to a flat rune offset,
		// clamping positions that fall outside the document.
		PositionToIndex(p Position) int
		// IndexToPosition converts a flat rune offset back to a position,
		// clamping to the document bounds.
		IndexToPosition(i int) Position
		// ScanForward visits positions from start to the end of the document.
		ScanForward(start Position, visit Visitor)
		// ScanBackward visits positions strictly before start, right to left.
		ScanBackward(start Position, visit Visitor)
	}

	// Editable is a Document that can be changed in undoable steps.
	Editable interface {
		Document
		// TextInRange returns the text between r.Start and r.End.
		TextInRange(r Range) string
		// Replace substitutes the text in r and returns the range the new
		// text occupies.
		Replace(r Range, text string) Range
		// BeginUndoGroup and EndUndoGroup bracket edits that undo as one step.
		BeginUndoGroup()
		EndUndoGroup()
	}
)

var _ Editable = (*Buffer)(nil)
