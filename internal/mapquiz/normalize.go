package mapquiz

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize converts raw input into the canonical comparable form: combining
// marks stripped after canonical decomposition, whitespace removed,
// upper-cased. Đ has no decomposition and is folded to D explicitly.
func Normalize(input string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, input)
	if err != nil {
		stripped = input
	}

	stripped = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return -1
		case r == 'đ' || r == 'Đ':
			// NFD leaves đ intact; without this "Đà Nẵng" would never
			// match the catalog answer DANANG.
			return 'D'
		}
		return r
	}, stripped)

	return strings.ToUpper(stripped)
}

// SameAnswer reports whether two answers are equal in canonical form.
func SameAnswer(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
