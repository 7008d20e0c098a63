package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes extracted text before chunking. Whitespace runs (including no-break spaces)
// become one space, control and invisible format characters (NUL, zero-width space, soft hyphen, BOM)
// are removed, and the ends are trimmed.
func Preprocess(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r), r == unicode.ReplacementChar:
			continue
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
