package validation

import (
	"strings"
	"unicode"
)

// Sanitize trims the input, replaces tab and newline characters with spaces,
// drops every other control character and truncates the result to maxLen
// runes. maxLen <= 0 disables truncation. An empty result is valid: callers
// treat it as "no preference" or "today".
func Sanitize(input string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(' ')
		case unicode.IsControl(r) || r == unicode.ReplacementChar:
		default:
			b.WriteRune(r)
		}
	}
	s := strings.TrimSpace(b.String())
	if maxLen > 0 {
		if r := []rune(s); len(r) > maxLen {
			s = strings.TrimSpace(string(r[:maxLen]))
		}
	}
	return s
}
