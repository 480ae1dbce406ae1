package scenario

import (
	"regexp"
	"strings"
)

const slugFallback = "scenario"

var unsafeChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// Slug converts a scenario description into a filesystem-friendly name:
// lowercased, unsafe runs collapsed to a single underscore, trimmed. Blank
// input yields "scenario".
func Slug(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return slugFallback
	}
	safe := strings.Trim(unsafeChars.ReplaceAllString(normalized, "_"), "._-")
	if safe == "" {
		return slugFallback
	}
	return safe
}
