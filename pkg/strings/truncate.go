// Package strings holds small text helpers shared by the CLI output code.
package strings

import (
	"fmt"
	"strings"
)

// DefaultMaxLen is the default cell width for single-line output.
const DefaultMaxLen = 60

// MinTruncateLen leaves room for one character plus "...".
const MinTruncateLen = 4

// Truncate collapses all whitespace runs in s to single spaces and cuts the
// result to maxLen runes, ending in "..." when cut. maxLen is clamped to
// MinTruncateLen.
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

// Redact describes a secret without revealing it.
func Redact(secret string) string {
	if secret == "" {
		return "none"
	}
	return fmt.Sprintf("present (%d chars)", len(secret))
}
