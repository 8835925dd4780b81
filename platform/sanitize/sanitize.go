// Package sanitize provides text sanitization utilities.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// StripHTML removes all HTML tags from a string, making it safe for text-only display.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	// encoded tags survive the first pass
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text sanitizes user-provided free text such as notes and problem statements.
func Text(s string) string {
	return StripHTML(s)
}

// Line sanitizes text and collapses all whitespace, including newlines, to
// single spaces. Audit entries are newline separated, so anything embedded in
// one must be a single line.
func Line(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(Text(s), " "))
}

// TextPtr is a helper for optional string pointers
func TextPtr(s *string) *string {
	if s == nil {
		return nil
	}
	result := Text(*s)
	return &result
}
