// SPDX-License-Identifier: MPL-2.0

// Package textdoc provides the line-indexed document model that search and
// editing operate on.
//
// A document is an ordered sequence of lines separated by "\n". Positions
// address a rune within a line by row and column; flat indexes count runes
// across the whole document with each line separator counted as one. The
// Document interface is the read-only contract consumed by the searcher,
// and Buffer is the mutable implementation with grouped undo used by the
// headless editor.
package textdoc
