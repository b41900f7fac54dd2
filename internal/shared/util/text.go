package util

import (
	"strings"
	"unicode/utf8"
)

// Truncate cuts s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for pos := range s {
		if count == n {
			return s[:pos]
		}
		count++
	}
	return s
}

// OneLine prepares free text for a single-line text column: invalid UTF-8 is
// replaced, line breaks become spaces and the result holds at most n
// characters.
func OneLine(s string, n int) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	return Truncate(strings.TrimSpace(s), n)
}
