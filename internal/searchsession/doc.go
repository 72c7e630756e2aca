// SPDX-License-Identifier: MPL-2.0

// Package searchsession implements interactive incremental search and
// replace over an editor-like Target.
//
// A Controller runs one session at a time. StartSession snapshots the
// target's caret, selection and scroll; SetNeedle and Advance search from the
// session anchor and move the caret to the match; Accept commits and Cancel
// optionally restores the snapshot. The most recent match survives the end of
// a session so the next one can resume it. While a match is active the
// controller keeps "search-highlight-" markers on the target: one per visible
// occurrence plus a cursor marker on the caret edge of the match.
package searchsession
