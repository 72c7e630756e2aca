// SPDX-License-Identifier: MPL-2.0

package textsearch

import (
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"

	"github.com/invowk/scribe/pkg/textdoc"
)

type (
	// snapshot flattens the document once per query so every candidate
	// subject is a slice rather than a freshly built string.
	snapshot struct {
		runes   []rune
		offsets []int
		lens    []int
	}

	matcher interface {
		// matchAt reports the text matched at pos (flat index idx) and its
		// rune length. The match must end at or before the flat index limit.
		matchAt(snap *snapshot, ch rune, pos textdoc.Position, idx, limit int) (string, int, bool)
	}

	literalMatcher struct {
		needle []rune
		fold   bool
	}

	regexMatcher struct {
		re        *regexp2.Regexp
		multiline bool
	}
)

func newSnapshot(lines []string) *snapshot {
	s := &snapshot{
		offsets: make([]int, len(lines)),
		lens:    make([]int, len(lines)),
	}
	for row, line := range lines {
		if row > 0 {
			s.runes = append(s.runes, '\n')
		}
		s.offsets[row] = len(s.runes)
		s.runes = append(s.runes, []rune(line)...)
		s.lens[row] = len(s.runes) - s.offsets[row]
	}
	return s
}

func (s *snapshot) index(p textdoc.Position) int {
	return s.offsets[p.Row] + p.Column
}

func (s *snapshot) lineEnd(row int) int {
	return s.offsets[row] + s.lens[row]
}

func newLiteralMatcher(text, newline string, fold bool) *literalMatcher {
	if newline != "\n" {
		text = strings.ReplaceAll(text, newline, "\n")
	}
	needle := []rune(text)
	if fold {
		for i, r := range needle {
			needle[i] = unicode.ToLower(r)
		}
	}
	return &literalMatcher{needle: needle, fold: fold}
}

func (m *literalMatcher) matchAt(snap *snapshot, ch rune, _ textdoc.Position, idx, limit int) (string, int, bool) {
	if m.fold {
		ch = unicode.ToLower(ch)
	}
	if ch != m.needle[0] {
		return "", 0, false
	}
	n := len(m.needle)
	if idx+n > limit {
		return "", 0, false
	}
	subject := snap.runes[idx : idx+n]
	for i, r := range subject {
		if m.fold {
			r = unicode.ToLower(r)
		}
		if r != m.needle[i] {
			return "", 0, false
		}
	}
	return string(subject), n, true
}

// The subject is cut at limit so a greedy pattern settles for the longest
// match that fits instead of overshooting and being rejected.
func (m *regexMatcher) matchAt(snap *snapshot, _ rune, pos textdoc.Position, idx, limit int) (string, int, bool) {
	end := min(len(snap.runes), limit)
	if !m.multiline {
		end = min(end, snap.lineEnd(pos.Row))
	}
	if end < idx {
		return "", 0, false
	}
	match, err := m.re.FindRunesMatch(snap.runes[idx:end])
	if err != nil || match == nil {
		return "", 0, false
	}
	return match.String(), match.Length, true
}
