package util

import "strings"

// SanitizePostgresText strips invalid UTF-8 and NUL bytes, neither of
// which Postgres text columns accept.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// FirstLine returns the first non-empty line of text, truncated to at
// most limit runes. Used for record summaries shown in listings.
func FirstLine(text string, limit int) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		runes := []rune(line)
		if limit > 0 && len(runes) > limit {
			return string(runes[:limit-1]) + "…"
		}
		return line
	}
	return ""
}
