package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Clip trims s, drops control characters and keeps at most limit bytes without
// splitting a rune. A limit of 0 keeps everything.
func Clip(s string, limit int) string {
	s = strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s))
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}

// ClipOptional is Clip for optional fields; blank results become nil.
func ClipOptional(s *string, limit int) *string {
	if s == nil {
		return nil
	}
	if v := Clip(*s, limit); v != "" {
		return &v
	}
	return nil
}
