// SPDX-License-Identifier: MPL-2.0

package textdoc

import (
	"cmp"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidPosition is the sentinel error wrapped by InvalidPositionError.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrInvalidRange is the sentinel error wrapped by InvalidRangeError.
	ErrInvalidRange = errors.New("invalid range")
)

type (
	// Position is a row/column coordinate into a document. Columns count runes.
	// Positions are totally ordered lexicographically by (Row, Column).
	Position struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	}

	// Range is a [Start, End) pair of positions.
	Range struct {
		Start Position `json:"start"`
		End   Position `json:"end"`
	}

	// Selection is an anchored range whose Lead is the caret.
	// An empty selection (Anchor == Lead) is a bare caret.
	Selection struct {
		Anchor Position
		Lead   Position
	}

	// InvalidPositionError is returned when a position cannot be parsed or has
	// negative coordinates.
	InvalidPositionError struct {
		Value  string
		Reason string
	}

	// InvalidRangeError is returned when a range cannot be parsed.
	InvalidRangeError struct {
		Value string
	}
)

// Pos is shorthand for Position{Row: row, Column: column}.
func Pos(row, column int) Position {
	return Position{Row: row, Column: column}
}

// Compare returns -1, 0 or +1 depending on whether p sorts before, equal to,
// or after o.
func (p Position) Compare(o Position) int {
	if c := cmp.Compare(p.Row, o.Row); c != 0 {
		return c
	}
	return cmp.Compare(p.Column, o.Column)
}

// Less reports whether p sorts strictly before o.
func (p Position) Less(o Position) bool { return p.Compare(o) < 0 }

// String renders the position as "row:column".
func (p Position) String() string {
	return strconv.Itoa(p.Row) + ":" + strconv.Itoa(p.Column)
}

// Validate returns an error wrapping ErrInvalidPosition when either coordinate
// is negative.
func (p Position) Validate() error {
	if p.Row < 0 || p.Column < 0 {
		return &InvalidPositionError{Value: p.String(), Reason: "coordinates must not be negative"}
	}
	return nil
}

// MinPosition returns the smaller of a and b.
func MinPosition(a, b Position) Position {
	if b.Less(a) {
		return b
	}
	return a
}

// MaxPosition returns the larger of a and b.
func MaxPosition(a, b Position) Position {
	if a.Less(b) {
		return b
	}
	return a
}

// ParsePosition parses the "row:column" form produced by Position.String.
func ParsePosition(s string) (Position, error) {
	rowStr, colStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Position{}, &InvalidPositionError{Value: s, Reason: "expected row:column"}
	}
	row, err := strconv.Atoi(rowStr)
	if err != nil {
		return Position{}, &InvalidPositionError{Value: s, Reason: "row is not a number"}
	}
	col, err := strconv.Atoi(colStr)
	if err != nil {
		return Position{}, &InvalidPositionError{Value: s, Reason: "column is not a number"}
	}
	p := Pos(row, col)
	if err := p.Validate(); err != nil {
		return Position{}, err
	}
	return p, nil
}

// Error implements the error interface for InvalidPositionError.
func (e *InvalidPositionError) Error() string {
	return fmt.Sprintf("invalid position %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidPosition for errors.Is() compatibility.
func (e *InvalidPositionError) Unwrap() error { return ErrInvalidPosition }

// Contains reports whether p lies within [Start, End], boundaries included.
func (r Range) Contains(p Position) bool {
	return !p.Less(r.Start) && !r.End.Less(p)
}

// IsEmpty reports whether the range covers no text.
func (r Range) IsEmpty() bool { return r.Start == r.End }

// Normalize returns the range with Start <= End.
func (r Range) Normalize() Range {
	if r.End.Less(r.Start) {
		return Range{Start: r.End, End: r.Start}
	}
	return r
}

// String renders the range as "row:column-row:column".
func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// ParseRange parses the "row:column-row:column" form produced by Range.String.
func ParseRange(s string) (Range, error) {
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Range{}, &InvalidRangeError{Value: s}
	}
	start, err := ParsePosition(startStr)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %w", &InvalidRangeError{Value: s}, err)
	}
	end, err := ParsePosition(endStr)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %w", &InvalidRangeError{Value: s}, err)
	}
	return Range{Start: start, End: end}.Normalize(), nil
}

// Error implements the error interface for InvalidRangeError.
func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range %q: expected row:column-row:column", e.Value)
}

// Unwrap returns ErrInvalidRange for errors.Is() compatibility.
func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// Caret returns a collapsed selection at p.
func Caret(p Position) Selection {
	return Selection{Anchor: p, Lead: p}
}

// IsEmpty reports whether the selection is a bare caret.
func (s Selection) IsEmpty() bool { return s.Anchor == s.Lead }

// IsReverse reports whether the lead sits before the anchor.
func (s Selection) IsReverse() bool { return s.Lead.Less(s.Anchor) }

// Range returns the selected range in document order.
func (s Selection) Range() Range {
	return Range{Start: s.Anchor, End: s.Lead}.Normalize()
}
