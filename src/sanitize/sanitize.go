// Package sanitize makes record payloads safe to print on a terminal or to
// return from MCP tools. Payloads are opaque bytes from any producer, so
// escape sequences and control characters are removed before display.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// CSI sequences: \x1b[...m colors, cursor movement, screen clearing
	csiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

	// OSC, APC and DCS strings ended by BEL or ST, e.g. terminal titles and
	// CI timestamp markers like \x1b_bk;t=...\x07
	stringPattern = regexp.MustCompile(`\x1b[\]_P][^\x07\x1b]*(?:\x07|\x1b\\)`)
)

// StripANSI removes terminal escape sequences.
func StripANSI(s string) string {
	s = stringPattern.ReplaceAllString(s, "")
	s = csiPattern.ReplaceAllString(s, "")
	return s
}

// Printable strips escape sequences and replaces every remaining control
// character except newline and tab with '.'.
func Printable(s string) string {
	s = StripANSI(s)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return '.'
		}
		return r
	}, s)
}
