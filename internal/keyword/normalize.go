// Package keyword turns raw extracted text into canonical keywords and decides
// which of them are worth indexing.
package keyword

import (
	"strings"
	"unicode"
)

// substitutions are applied in order to the lowercased copy of a keyword.
var substitutions = []struct {
	from string
	to   string
}{
	{"&", " and "},
	{"/", " or "},
	{"+", " plus "},
	{"@", " at "},
	{"#", " number "},
	{"%", " percent "},
}

// Normalize returns the canonical form used to deduplicate keywords.
// Normalize(Normalize(s)) == Normalize(s) for every s.
func Normalize(text string) string {
	s := strings.ToLower(collapse(text))
	for _, sub := range substitutions {
		s = strings.ReplaceAll(s, sub.from, sub.to)
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Trim(collapse(b.String()), " -")
}

// DisplayText trims and collapses whitespace but keeps every other character,
// producing the human-facing form stored alongside the normalized keyword.
func DisplayText(text string) string {
	return collapse(text)
}

// WordCount returns the number of whitespace separated words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
