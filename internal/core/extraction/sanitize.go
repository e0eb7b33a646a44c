package extraction

import (
	"strings"
	"unicode"
)

// SanitizeText makes extracted text safe to paste into a prompt: invalid
// UTF-8 is replaced, line endings become \n, and control characters other
// than \n and \t are dropped along with byte order marks.
func SanitizeText(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\uFEFF' || unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
}
