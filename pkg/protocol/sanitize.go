package protocol

import "strings"

// DefaultNickname is assigned when a client never introduces itself or
// sends an empty name.
const DefaultNickname = "Guest"

// CleanNickname trims and truncates a display name, falling back to
// DefaultNickname when nothing usable remains.
func CleanNickname(s string, max int) string {
	s = Truncate(strings.TrimSpace(s), max)
	if s == "" {
		return DefaultNickname
	}
	return s
}

// CleanText trims and truncates relayed text.
func CleanText(s string, max int) string {
	return Truncate(strings.TrimSpace(s), max)
}

// Truncate caps a string at max runes, keeping it valid UTF-8.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
