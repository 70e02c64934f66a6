package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strictPolicy removes all HTML tags and attributes. User-provided text
// (names, titles, message bodies) is stored and pushed as plain text only.
var strictPolicy = bluemonday.StrictPolicy()

// MaxContentLength bounds free-text fields (message bodies, notification
// content) before sanitization.
const MaxContentLength = 1000

// Text strips all HTML from input and unescapes entities the policy
// introduced, returning plain text safe for storage and JSON payloads.
func Text(input string) string {
	return html.UnescapeString(strictPolicy.Sanitize(input))
}

// Content clamps input to max runes, then strips HTML and escapes the
// remainder. The escaped form is what gets stored and what goes out on
// the live stream, so a crafted message cannot inject markup into either.
func Content(input string, max int) string {
	clamped := Clamp(strings.TrimSpace(input), max)
	return html.EscapeString(Text(clamped))
}

// Clamp truncates s to at most max runes.
func Clamp(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
