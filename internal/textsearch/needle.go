// SPDX-License-Identifier: MPL-2.0

package textsearch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// regexTimeout bounds a single anchored match attempt.
const regexTimeout = time.Second

var (
	// ErrInvalidNeedle is the sentinel error wrapped by InvalidNeedleError.
	ErrInvalidNeedle = errors.New("invalid needle")

	// needleSyntax recognizes the "/source/flags" input form.
	needleSyntax = regexp2.MustCompile(`^/(.*)/([a-z]*)$`, regexp2.ECMAScript)
)

type (
	// Needle is the literal text or regular expression being searched for.
	// The zero value is an empty literal, which never matches.
	Needle struct {
		text       string
		regex      bool
		ignoreCase bool
		multiline  bool
		dotAll     bool
		flags      string
		err        error
	}

	// InvalidNeedleError describes a regular expression that cannot be used.
	InvalidNeedleError struct {
		Source string
		Reason string
	}
)

// Literal returns a needle that matches text verbatim.
func Literal(text string) Needle {
	return Needle{text: text}
}

// Regexp returns a needle for an ECMAScript-style pattern with JavaScript
// flags. Of the flags, "i" makes matching case-insensitive, "m" lets a match
// continue past the end of the line it starts on and "s" lets "." match line
// breaks; "d", "g", "u" and "y" are accepted and ignored. An unknown flag or an unparsable pattern yields a
// needle that never matches; Err reports why.
func Regexp(source, flags string) Needle {
	n := Needle{text: source, regex: true, flags: flags}
	for _, f := range flags {
		switch f {
		case 'i':
			n.ignoreCase = true
		case 'm':
			n.multiline = true
		case 's':
			n.dotAll = true
		case 'd', 'g', 'u', 'y':
		default:
			n.err = &InvalidNeedleError{Source: n.String(), Reason: fmt.Sprintf("unsupported flag %q", f)}
			return n
		}
	}
	if _, err := n.compile(true, false); err != nil {
		n.err = &InvalidNeedleError{Source: n.String(), Reason: err.Error()}
	}
	return n
}

// ParseNeedle interprets search input. Input of the form "/source/flags" is a
// regular expression; anything else is literal text.
func ParseNeedle(input string) Needle {
	m, err := needleSyntax.FindStringMatch(input)
	if err != nil || m == nil {
		return Literal(input)
	}
	groups := m.Groups()
	return Regexp(groups[1].String(), groups[2].String())
}

// IsRegexp reports whether the needle is a regular expression.
func (n Needle) IsRegexp() bool { return n.regex }

// IsEmpty reports whether the needle is an empty literal.
func (n Needle) IsEmpty() bool { return !n.regex && n.text == "" }

// Text returns the literal text or the pattern source.
func (n Needle) Text() string { return n.text }

// Flags returns the flags a regular-expression needle was created with.
func (n Needle) Flags() string { return n.flags }

// Multiline reports whether a regular-expression match may span lines.
func (n Needle) Multiline() bool { return n.multiline }

// Err returns the reason a regular-expression needle cannot match, or nil.
func (n Needle) Err() error { return n.err }

// String renders the needle in the form ParseNeedle accepts.
func (n Needle) String() string {
	if n.regex {
		return "/" + n.text + "/" + n.flags
	}
	return n.text
}

// compile builds the pattern. An anchored pattern only matches at the start of
// its subject, whatever anchors the source already carried.
func (n Needle) compile(caseSensitive, anchored bool) (*regexp2.Regexp, error) {
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	if n.ignoreCase || !caseSensitive {
		opts |= regexp2.IgnoreCase
	}
	source := n.text
	if n.dotAll {
		source = expandDot(source)
	}
	if anchored {
		source = "^(?:" + strings.TrimLeft(source, "^") + ")"
	}
	re, err := regexp2.Compile(source, opts)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = regexTimeout
	return re, nil
}

// expandDot rewrites every "." outside a character class and not escaped
// into a class that also matches line breaks. ECMAScript mode in regexp2
// ignores Singleline, so the "s" flag is applied to the source instead.
func expandDot(source string) string {
	var sb strings.Builder
	inClass, escaped := false, false
	for _, r := range source {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case inClass:
			inClass = r != ']'
		case r == '[':
			inClass = true
		case r == '.':
			sb.WriteString(`[\s\S]`)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Expand computes the replacement for one match. For a regular-expression
// needle the pattern is substituted over matched, so "$1"-style references
// in replacement resolve against that match's groups. Literal needles return
// replacement unchanged.
func (n Needle) Expand(matched, replacement string, caseSensitive bool) string {
	if !n.regex || n.err != nil {
		return replacement
	}
	re, err := n.compile(caseSensitive, false)
	if err != nil {
		return replacement
	}
	out, err := re.Replace(matched, replacement, -1, 1)
	if err != nil {
		return replacement
	}
	return out
}

// Error implements the error interface for InvalidNeedleError.
func (e *InvalidNeedleError) Error() string {
	return fmt.Sprintf("invalid needle %s: %s", e.Source, e.Reason)
}

// Unwrap returns ErrInvalidNeedle for errors.Is() compatibility.
func (e *InvalidNeedleError) Unwrap() error { return ErrInvalidNeedle }
