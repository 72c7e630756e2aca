// SPDX-License-Identifier: MPL-2.0

package searchsession

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/invowk/scribe/internal/textsearch"
	"github.com/invowk/scribe/pkg/textdoc"
)

const (
	// MarkerPrefix starts the ID of every marker the controller owns.
	MarkerPrefix = "search-highlight"
	// CursorMarkerID identifies the marker on the caret edge of the match.
	CursorMarkerID = MarkerPrefix + "-cursor"

	// DefaultHighlightDeadline bounds the time spent adding highlight markers.
	DefaultHighlightDeadline = 300 * time.Millisecond
	// DefaultFastHighlightLineCount is the document size below which every
	// row may be highlighted.
	DefaultFastHighlightLineCount = 10000
	// DefaultMaxCharsPerLine caps the columns examined on each row.
	DefaultMaxCharsPerLine = 1000

	// minFullHighlightLength is the shortest match worth highlighting outside
	// the viewport.
	minFullHighlightLength = 3
)

type (
	// MarkerPolicy bounds the cost of highlighting occurrences.
	MarkerPolicy struct {
		Deadline               time.Duration
		FastHighlightLineCount int
		MaxCharsPerLine        int
	}

	// HighlightStats describes the last highlighting pass.
	HighlightStats struct {
		Highlighted int
		// Truncated is set when the deadline cut the pass short.
		Truncated bool
	}
)

// DefaultMarkerPolicy returns the default highlighting bounds.
func DefaultMarkerPolicy() MarkerPolicy {
	return MarkerPolicy{
		Deadline:               DefaultHighlightDeadline,
		FastHighlightLineCount: DefaultFastHighlightLineCount,
		MaxCharsPerLine:        DefaultMaxCharsPerLine,
	}
}

func (p MarkerPolicy) withDefaults() MarkerPolicy {
	def := DefaultMarkerPolicy()
	if p.Deadline <= 0 {
		p.Deadline = def.Deadline
	}
	if p.FastHighlightLineCount <= 0 {
		p.FastHighlightLineCount = def.FastHighlightLineCount
	}
	if p.MaxCharsPerLine <= 0 {
		p.MaxCharsPerLine = def.MaxCharsPerLine
	}
	return p
}

// HighlightMarkerID returns the ID of the i-th occurrence marker.
func HighlightMarkerID(i int) string {
	return MarkerPrefix + "-" + strconv.Itoa(i)
}

func (c *Controller) removeMarkers() {
	for _, m := range c.target.Markers() {
		if strings.HasPrefix(m.ID, MarkerPrefix) {
			c.target.RemoveMarker(m.ID)
		}
	}
}

// addMarkers highlights occurrences of found's text and, when cursor is set,
// marks the caret edge of found.
func (c *Controller) addMarkers(found *textsearch.Match, backwards, cursor bool) {
	c.removeMarkers()

	lines := c.target.Document().Lines()
	first, last := c.target.VisibleRows()
	needle := []rune(found.Text)
	if c.target.HasTextMap() && len(needle) >= minFullHighlightLength && len(lines) < c.policy.FastHighlightLineCount {
		first, last = 0, len(lines)-1
	}
	fold := !c.caseSensitive
	if fold {
		needle = lowerRunes(needle)
	}

	stats := HighlightStats{}
	if len(needle) > 0 {
		start := c.clock.Now()
	rows:
		for row := max(first, 0); row <= last && row < len(lines); row++ {
			line := []rune(lines[row])
			if fold {
				line = lowerRunes(line)
			}
			limit := min(len(line), c.policy.MaxCharsPerLine)
			for col := 0; col < limit; col++ {
				if c.clock.Now().Sub(start) > c.policy.Deadline {
					stats.Truncated = true
					break rows
				}
				if !hasPrefixAt(line, col, needle) {
					continue
				}
				c.target.AddMarker(textdoc.Marker{
					ID:    HighlightMarkerID(stats.Highlighted),
					Range: textdoc.Range{Start: textdoc.Pos(row, col), End: textdoc.Pos(row, col+len(needle))},
					Kind:  textdoc.MarkerHighlight,
				})
				stats.Highlighted++
				col += len(needle) - 1
			}
		}
	}
	c.highlight = stats

	if cursor {
		c.target.AddMarker(cursorMarker(found.Range, backwards))
	}
}

func cursorMarker(r textdoc.Range, backwards bool) textdoc.Marker {
	if backwards {
		p := r.Start
		return textdoc.Marker{
			ID:    CursorMarkerID,
			Range: textdoc.Range{Start: p, End: textdoc.Pos(p.Row, p.Column+1)},
			Kind:  textdoc.MarkerCursorLeft,
		}
	}
	p := r.End
	return textdoc.Marker{
		ID:    CursorMarkerID,
		Range: textdoc.Range{Start: textdoc.Pos(p.Row, max(p.Column-1, 0)), End: p},
		Kind:  textdoc.MarkerCursorRight,
	}
}

func hasPrefixAt(line []rune, col int, needle []rune) bool {
	if col+len(needle) > len(line) {
		return false
	}
	for i, r := range needle {
		if line[col+i] != r {
			return false
		}
	}
	return true
}

func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}
