package search

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/yomu/internal/vector"
)

var wordSpan = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+`)

// Highlight returns at most maxLen characters of text, starting shortly before the
// first word that also occurs in query. Cut ends are marked with "...".
// A non-positive maxLen returns text unchanged.
func Highlight(text, query string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	terms := make(map[string]bool)
	for _, t := range vector.Tokenize(query) {
		terms[t] = true
	}

	startByte := 0
	for _, loc := range wordSpan.FindAllStringIndex(text, -1) {
		if terms[strings.ToLower(text[loc[0]:loc[1]])] {
			startByte = loc[0]
			break
		}
	}

	runes := []rune(text)
	start := utf8.RuneCountInString(text[:startByte])
	// Keep a little context before the match.
	start -= maxLen / 4
	if start < 0 {
		start = 0
	}
	if start > len(runes)-maxLen {
		start = len(runes) - maxLen
	}
	end := start + maxLen

	out := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		out = "..." + out
	}
	if end < len(runes) {
		out += "..."
	}
	return out
}
