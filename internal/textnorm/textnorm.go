// Package textnorm canonicalizes transcript and phrase text so that both sides
// of a comparison go through exactly the same transformation.
//
// The canonical form is case folded, stripped of diacritics, has every
// non-alphanumeric rune replaced by a single space and carries no leading or
// trailing whitespace. Apostrophes inside words are dropped instead of split,
// so "don't" and "dont" compare equal.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the canonical comparison form of s.
// Normalize(Normalize(s)) == Normalize(s) for every s.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	// Compatibility letters such as ℌ only become foldable after NFKD, and
	// folding can emit combining marks (İ -> i̇), so decompose on both sides
	// of the fold. Casers and transform chains keep internal buffers and
	// must not be shared between goroutines.
	marks := runes.In(unicode.Mn)
	stripped, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(marks), cases.Fold(), norm.NFKD, runes.Remove(marks)),
		s,
	)
	if err != nil {
		stripped = cases.Fold().String(s)
	}

	var b strings.Builder
	b.Grow(len(stripped))
	pendingSpace := false
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case isApostrophe(r):
			// joined: "don't" -> "dont"
		default:
			pendingSpace = true
		}
	}
	return b.String()
}

// Tokens splits the canonical form of s into words.
func Tokens(s string) []string {
	n := Normalize(s)
	if n == "" {
		return nil
	}
	return strings.Split(n, " ")
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '’' || r == 'ʼ'
}
