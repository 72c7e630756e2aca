// SPDX-License-Identifier: MPL-2.0

package searchsession

import (
	"errors"

	"github.com/invowk/scribe/internal/core/clock"
	"github.com/invowk/scribe/internal/textsearch"
	"github.com/invowk/scribe/pkg/textdoc"
)

const (
	// Idle means no session is open.
	Idle State = iota
	// Searching means a session is open and no search has run yet.
	Searching
	// Found means the last search step produced a match.
	Found
	// NotFound means the last search step produced no match.
	NotFound
)

// ErrNoActiveMatch is returned by replace operations when the session has no
// current match.
var ErrNoActiveMatch = errors.New("no active match")

type (
	// State is the controller's position in the session lifecycle.
	State int

	// Options configures a Controller.
	Options struct {
		CaseSensitive bool
		// MaxMatches bounds ReplaceAll; zero keeps textsearch.DefaultMaxMatches.
		MaxMatches int
		Markers    MarkerPolicy
		// Clock times the highlighting pass; nil uses the system clock.
		Clock clock.Clock
	}

	// Result is one search step.
	Result struct {
		Needle    textsearch.Needle
		Backwards bool
		Start     textdoc.Position
		// Found is nil when the step did not match.
		Found *textsearch.Match
	}

	// before is the target state restored by Cancel(true).
	before struct {
		position  textdoc.Position
		selection textdoc.Selection
		scrollTop int
	}

	// Controller runs interactive search sessions over a Target.
	// A Controller is not safe for concurrent use.
	Controller struct {
		target        Target
		caseSensitive bool
		maxMatches    int
		policy        MarkerPolicy
		clock         clock.Clock

		state      State
		needle     textsearch.Needle
		backwards  bool
		position   textdoc.Position
		before     *before
		inProgress *Result
		last       *Result
		highlight  HighlightStats
	}
)

// New creates a Controller for target.
func New(target Target, opts Options) *Controller {
	c := &Controller{
		target:        target,
		caseSensitive: opts.CaseSensitive,
		maxMatches:    opts.MaxMatches,
		policy:        opts.Markers.withDefaults(),
		clock:         opts.Clock,
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	return c
}

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Found:
		return "found"
	case NotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// State returns the lifecycle state.
func (c *Controller) State() State { return c.state }

// Needle returns the session's needle.
func (c *Controller) Needle() textsearch.Needle { return c.needle }

// Backwards reports the current search direction.
func (c *Controller) Backwards() bool { return c.backwards }

// Current returns the active search step, or nil.
func (c *Controller) Current() *Result { return c.inProgress }

// Last returns the step committed by the most recent Accept or Cancel.
func (c *Controller) Last() *Result { return c.last }

// Highlight describes the most recent highlighting pass.
func (c *Controller) Highlight() HighlightStats { return c.highlight }

// StartSession opens a session anchored at initial. When a previous session
// left a match behind, its needle is restored and its occurrences are
// highlighted without moving the caret.
func (c *Controller) StartSession(initial textdoc.Position) {
	if c.state != Idle {
		c.Cancel(false)
	}
	c.position = initial
	c.before = &before{
		position:  initial,
		selection: c.target.Selection(),
		scrollTop: c.target.ScrollTop(),
	}
	c.state = Searching

	if c.last != nil && c.last.Found != nil {
		c.needle = c.last.Needle
		c.backwards = c.last.Backwards
		c.addMarkers(c.last.Found, c.backwards, false)
	}
}

// SetNeedle replaces the needle and searches again from the session anchor.
func (c *Controller) SetNeedle(n textsearch.Needle) *Result {
	c.ensureSession()
	c.needle = n
	return c.Search()
}

// Advance moves to the next match in the given direction. Continuing in the
// same direction anchors past the current match. Reversing direction anchors
// at the far edge of the current match, so the first step back selects the
// current match again with the caret on its new leading edge.
func (c *Controller) Advance(backwards bool) *Result {
	c.ensureSession()
	if cur := c.inProgress; cur != nil && cur.Found != nil {
		reversed := backwards != c.backwards
		switch {
		case reversed && backwards:
			c.position = cur.Found.Range.End
		case reversed:
			c.position = cur.Found.Range.Start
		case backwards:
			c.position = cur.Found.Range.Start
		default:
			c.position = cur.Found.Range.End
		}
	}
	c.backwards = backwards
	return c.Search()
}

// Search runs one step from the session anchor. It returns nil when the
// needle is empty. Invalid regular expressions produce a Result without a
// match.
func (c *Controller) Search() *Result {
	c.ensureSession()
	if c.needle.IsEmpty() {
		c.cleanup()
		c.state = Searching
		return nil
	}

	q := textsearch.Query{
		Needle:        c.needle,
		Backwards:     c.backwards,
		CaseSensitive: c.caseSensitive,
		Start:         c.position,
	}
	found := c.searcher().Search(q)
	result := &Result{Needle: c.needle, Backwards: c.backwards, Start: c.position, Found: found}
	c.inProgress = result
	c.applyResult(result)

	if found == nil {
		c.cleanup()
		c.state = NotFound
		return result
	}
	c.addMarkers(found, c.backwards, true)
	c.state = Found
	return result
}

// Accept commits the current match, records a mark at the session start and
// closes the session.
func (c *Controller) Accept() {
	if c.inProgress != nil {
		c.last = c.inProgress
	}
	if c.applyResult(c.inProgress) && c.before != nil {
		c.target.SaveMark(c.before.position)
	}
	c.close()
}

// Cancel closes the session. With reset, the caret, selection and scroll are
// restored to what they were when the session started.
func (c *Controller) Cancel(reset bool) {
	if c.inProgress != nil {
		c.last = c.inProgress
	}
	if reset && c.before != nil {
		c.target.SetSelection(c.before.selection)
		c.target.SetScrollTop(c.before.scrollTop)
	}
	c.close()
}

// ReplaceOne replaces the current match and advances to the next one in the
// current direction. Regular-expression needles expand group references in
// replacement against the matched text.
func (c *Controller) ReplaceOne(replacement string) (*Result, error) {
	cur := c.inProgress
	if cur == nil || cur.Found == nil {
		return nil, ErrNoActiveMatch
	}
	text := cur.Needle.Expand(cur.Found.Text, replacement, c.caseSensitive)
	inserted := c.target.Document().Replace(cur.Found.Range, text)

	c.inProgress = nil
	if c.backwards {
		c.position = inserted.Start
	} else {
		c.position = inserted.End
	}
	return c.Search(), nil
}

// ReplaceAll replaces every occurrence of the session's needle in the
// document as a single undo step, then accepts the session. It returns the
// number of replacements. Matches are enumerated from the document origin
// in forward order and applied back to front so earlier coordinates stay
// valid. An unbounded needle is reported as textsearch.ErrUnboundedSearch
// and leaves the document untouched.
func (c *Controller) ReplaceAll(replacement string) (int, error) {
	cur := c.inProgress
	if cur == nil || cur.Found == nil {
		return 0, ErrNoActiveMatch
	}

	matches, err := c.searcher().SearchForAll(textsearch.Query{
		Needle:        cur.Needle,
		CaseSensitive: c.caseSensitive,
	})
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		c.Accept()
		return 0, nil
	}

	doc := c.target.Document()
	texts := make([]string, len(matches))
	shift := 0
	for i, m := range matches {
		texts[i] = cur.Needle.Expand(m.Text, replacement, c.caseSensitive)
		if i < len(matches)-1 {
			shift += runeLen(texts[i]) - (doc.PositionToIndex(m.Range.End) - doc.PositionToIndex(m.Range.Start))
		}
	}
	lastMatch := matches[len(matches)-1]
	lastStart := doc.PositionToIndex(lastMatch.Range.Start) + shift

	doc.BeginUndoGroup()
	for i := len(matches) - 1; i >= 0; i-- {
		doc.Replace(matches[i].Range, texts[i])
	}
	doc.EndUndoGroup()

	lastText := texts[len(texts)-1]
	cur.Backwards = false
	cur.Found = &textsearch.Match{
		Range: textdoc.Range{
			Start: doc.IndexToPosition(lastStart),
			End:   doc.IndexToPosition(lastStart + runeLen(lastText)),
		},
		Text: lastText,
	}
	c.backwards = false
	c.Accept()
	return len(matches), nil
}

func (c *Controller) ensureSession() {
	if c.state == Idle {
		c.StartSession(c.target.Selection().Lead)
	}
}

func (c *Controller) searcher() *textsearch.Searcher {
	return textsearch.New(c.target.Document(), textsearch.WithMaxMatches(c.maxMatches))
}

// applyResult moves the caret, or the selection lead when a selection is
// being extended, to the match edge in the search direction.
func (c *Controller) applyResult(r *Result) bool {
	if r == nil || r.Found == nil {
		return false
	}
	pos := r.Found.Range.End
	if r.Backwards {
		pos = r.Found.Range.Start
	}
	sel := c.target.Selection()
	if c.target.MarkActive() || !sel.IsEmpty() {
		sel.Lead = pos
	} else {
		sel = textdoc.Caret(pos)
	}
	c.target.SetSelection(sel)
	if !c.target.IsRowFullyVisible(pos.Row) {
		c.target.CenterRow(pos.Row)
	}
	return true
}

func (c *Controller) cleanup() {
	c.removeMarkers()
	c.highlight = HighlightStats{}
	c.inProgress = nil
}

func (c *Controller) close() {
	c.cleanup()
	c.before = nil
	c.state = Idle
}

func runeLen(s string) int {
	return len([]rune(s))
}
