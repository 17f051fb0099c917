// Package text holds deterministic text helpers shared by the embedding paths.
package text

import (
	"strings"
	"unicode"
)

// CountTokens counts whitespace-separated tokens.
func CountTokens(s string) int {
	return len(strings.Fields(s))
}

// Truncate keeps the first maxTokens whitespace-separated tokens of s,
// preserving the original separators between them. maxTokens <= 0 disables truncation.
func Truncate(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return s
	}

	count := 0
	inToken := false
	for i, r := range s {
		if unicode.IsSpace(r) {
			if inToken && count == maxTokens {
				return s[:i]
			}
			inToken = false
			continue
		}
		if !inToken {
			inToken = true
			count++
		}
	}
	return s
}

// Words lowercases s and splits it into alphanumeric words.
func Words(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
