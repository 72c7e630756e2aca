// SPDX-License-Identifier: MPL-2.0

// Package textsearch finds literal and regular-expression needles in a
// textdoc.Document.
//
// A Searcher walks the document one position at a time in either direction
// and reports the first position where the needle matches the text that
// begins there. Regular expressions are always anchored at the visited
// position. A query may be confined to a range, which acts as a hard boundary:
// the scan stops as soon as it leaves the range.
//
// Malformed needles (empty text, unparsable patterns) never produce an error
// from Search; they simply do not match. SearchForAll is the one operation
// with a fatal condition: a query that yields more than the configured number
// of matches fails with ErrUnboundedSearch.
package textsearch
