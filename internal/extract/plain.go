package extract

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// extractPlain returns content as a string. Invalid UTF-8 fails with ErrInvalidEncoding; a leading BOM is dropped.
func extractPlain(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: plain text is not valid UTF-8", ErrInvalidEncoding)
	}
	return string(content), nil
}
