package logutil

import "strings"

// SanitizeForLog strips control characters from user-provided strings before
// they reach the log, so a hostile session name or error message cannot
// inject fake log lines.
func SanitizeForLog(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n', r == '\r', r == '\t':
			b.WriteByte(' ')
		case r < 32:
			// drop other control characters
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
