// Package util provides common utility functions used across the Derive
// Sonora services.
package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionID mints a walk session identifier: the creation time in unix
// milliseconds plus a short random suffix, so two sessions created in the
// same millisecond never collide.
func SessionID(t time.Time) string {
	return fmt.Sprintf("derive_%d_%s", t.UnixMilli(), uuid.NewString()[:8])
}

// SanitizeName reduces a user-supplied name to a filesystem-safe token:
// lowercased, with every run of non-alphanumeric characters collapsed to a
// single underscore. Empty input yields "anon".
func SanitizeName(s string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "anon"
	}
	return out
}

// FormatDuration renders a duration in seconds as "m:ss" for display.
func FormatDuration(seconds float64) string {
	total := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// ISODate formats a time as the date-only token used in export filenames.
func ISODate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
