package indexer

import "strings"

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Normalize prepares document content for storage: invalid UTF-8 is replaced,
// line endings become "\n", NUL bytes are dropped and surrounding whitespace
// is trimmed. Blank lines are kept since they mark paragraph boundaries.
func Normalize(text string) string {
	text = strings.ToValidUTF8(text, "\uFFFD")
	text = lineEndings.Replace(text)
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(text)
}
