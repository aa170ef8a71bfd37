package business

import (
	"strings"
	"unicode/utf8"
)

// Normalize lowercases, trims and collapses runs of whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ContainsText reports whether normalized haystack contains normalized needle.
// An empty needle never matches.
func ContainsText(haystack, needle string) bool {
	n := Normalize(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Normalize(haystack), n)
}

// RunePrefix returns at most n runes of s.
func RunePrefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// RuneLen counts runes, used for trigger specificity.
func RuneLen(s string) int { return utf8.RuneCountInString(s) }
