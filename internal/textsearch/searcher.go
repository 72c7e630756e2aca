// SPDX-License-Identifier: MPL-2.0

package textsearch

import (
	"errors"
	"fmt"

	"github.com/invowk/scribe/pkg/textdoc"
)

// DefaultMaxMatches is the number of matches SearchForAll tolerates before it
// declares the query unbounded.
const DefaultMaxMatches = 10000

// ErrUnboundedSearch is the sentinel error wrapped by UnboundedSearchError.
var ErrUnboundedSearch = errors.New("unbounded search")

type (
	// Query describes one search step.
	Query struct {
		Needle        Needle
		Backwards     bool
		CaseSensitive bool
		Start         textdoc.Position
		// InRange, when set, confines matches to [InRange.Start, InRange.End].
		InRange *textdoc.Range
	}

	// Match is one occurrence. Range.End is exclusive.
	Match struct {
		Range textdoc.Range
		Text  string
	}

	// UnboundedSearchError is returned by SearchForAll when a query produces
	// more than Limit matches, which happens for empty or zero-width needles.
	UnboundedSearchError struct {
		Needle string
		Limit  int
	}

	// Searcher runs queries against one document.
	Searcher struct {
		doc        textdoc.Document
		maxMatches int
	}

	// Option configures a Searcher.
	Option func(*Searcher)
)

// WithMaxMatches overrides DefaultMaxMatches. Non-positive values are ignored.
func WithMaxMatches(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.maxMatches = n
		}
	}
}

// New creates a Searcher over doc.
func New(doc textdoc.Document, opts ...Option) *Searcher {
	s := &Searcher{doc: doc, maxMatches: DefaultMaxMatches}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxMatches returns the SearchForAll match limit.
func (s *Searcher) MaxMatches() int { return s.maxMatches }

// Search returns the first match of q, or nil when there is none. Forward
// searches consider candidates at or after q.Start; backward searches consider
// candidates strictly before q.Start whose match also ends at or before it.
func (s *Searcher) Search(q Query) *Match {
	m := s.prepare(q)
	if m == nil {
		return nil
	}
	return s.search(q, newSnapshot(s.doc.Lines()), m)
}

// SearchForAll repeatedly searches, moving the start past each match, and
// returns every match in scan order.
func (s *Searcher) SearchForAll(q Query) ([]Match, error) {
	if q.Needle.IsEmpty() {
		return nil, &UnboundedSearchError{Needle: q.Needle.String(), Limit: s.maxMatches}
	}
	m := s.prepare(q)
	if m == nil {
		return nil, nil
	}

	snap := newSnapshot(s.doc.Lines())
	var results []Match
	for {
		found := s.search(q, snap, m)
		if found == nil {
			return results, nil
		}
		results = append(results, *found)
		if len(results) > s.maxMatches {
			return nil, &UnboundedSearchError{Needle: q.Needle.String(), Limit: s.maxMatches}
		}
		if q.Backwards {
			q.Start = found.Range.Start
		} else {
			q.Start = found.Range.End
		}
	}
}

// prepare returns nil for needles that cannot match anything.
func (s *Searcher) prepare(q Query) matcher {
	if q.Needle.IsEmpty() || q.Needle.Err() != nil {
		return nil
	}
	if q.Needle.IsRegexp() {
		re, err := q.Needle.compile(q.CaseSensitive, true)
		if err != nil {
			return nil
		}
		return &regexMatcher{re: re, multiline: q.Needle.Multiline()}
	}
	return newLiteralMatcher(q.Needle.Text(), s.doc.Newline(), !q.CaseSensitive)
}

func (s *Searcher) search(q Query, snap *snapshot, m matcher) *Match {
	start := q.Start
	var bounds *textdoc.Range
	endLimit := -1
	if q.InRange != nil {
		r := q.InRange.Normalize()
		bounds = &r
		endLimit = s.doc.PositionToIndex(r.End)
		if q.Backwards {
			start = textdoc.MinPosition(r.End, start)
		} else {
			start = textdoc.MaxPosition(r.Start, start)
		}
	}
	limit := len(snap.runes)
	if q.Backwards {
		limit = s.doc.PositionToIndex(start)
	}
	if endLimit >= 0 {
		limit = min(limit, endLimit)
	}

	var found *Match
	visit := func(ch rune, pos textdoc.Position) textdoc.ScanAction {
		if bounds != nil && !bounds.Contains(pos) {
			return textdoc.Stop
		}
		idx := snap.index(pos)
		text, n, ok := m.matchAt(snap, ch, pos, idx, limit)
		if !ok || idx+n > limit {
			return textdoc.Continue
		}
		found = s.processFind(pos, text, n)
		return textdoc.Stop
	}

	if q.Backwards {
		s.doc.ScanBackward(start, visit)
	} else {
		s.doc.ScanForward(start, visit)
	}
	return found
}

// processFind derives the match range through the document's own index
// conversion.
func (s *Searcher) processFind(start textdoc.Position, text string, length int) *Match {
	end := s.doc.IndexToPosition(s.doc.PositionToIndex(start) + length)
	return &Match{Range: textdoc.Range{Start: start, End: end}, Text: text}
}

// Error implements the error interface for UnboundedSearchError.
func (e *UnboundedSearchError) Error() string {
	return fmt.Sprintf("unbounded search: needle %q produced more than %d matches", e.Needle, e.Limit)
}

// Unwrap returns ErrUnboundedSearch for errors.Is() compatibility.
func (e *UnboundedSearchError) Unwrap() error { return ErrUnboundedSearch }
