package mcp

import (
	"encoding/base64"
	"regexp"
	"strings"
	"unicode/utf8"

	"creek/src/sanitize"
)

// whitespacePattern matches multiple consecutive whitespace characters.
var whitespacePattern = regexp.MustCompile(`\s+`)

// normalizeWhitespace collapses multiple spaces/tabs and trims.
func normalizeWhitespace(line string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(line, " "))
}

// previewValue renders a payload for an LLM: text is flattened onto one
// line and cut to maxLen runes, binary data is base64 encoded first.
func previewValue(b []byte, maxLen int) string {
	var s string
	if utf8.Valid(b) {
		s = normalizeWhitespace(sanitize.Printable(string(b)))
	} else {
		s = "base64:" + base64.StdEncoding.EncodeToString(b)
	}

	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}

// encodeValue returns the full payload and the encoding used.
func encodeValue(b []byte) (string, string) {
	if utf8.Valid(b) {
		return string(b), "utf8"
	}
	return base64.StdEncoding.EncodeToString(b), "base64"
}
