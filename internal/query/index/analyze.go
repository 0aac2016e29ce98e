package index

import (
	"strings"
	"unicode"
)

// Analyze lowercases text and splits it on anything that is not a letter or digit.
func Analyze(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Matches reports whether every token of term occurs in text.
func Matches(text, term string) bool {
	want := Analyze(term)
	if len(want) == 0 {
		return false
	}
	have := make(map[string]struct{})
	for _, t := range Analyze(text) {
		have[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := have[t]; !ok {
			return false
		}
	}
	return true
}
