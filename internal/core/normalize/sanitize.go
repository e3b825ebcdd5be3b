package normalize

import (
	"strings"
	"unicode/utf8"
)

// Sanitize cleans a raw spreadsheet cell: NUL and other C0 controls except
// tab, CR and LF are dropped, as are DEL, C1 controls and invalid UTF-8.
// NBSP becomes a plain space. Clean input is returned as is.
func Sanitize(s string) string {
	if clean(s) {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == utf8.RuneError:
			return -1
		case r == '\u00a0':
			return ' '
		case dropRune(r):
			return -1
		}
		return r
	}, s)
}

func dropRune(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return false
	case r < 0x20 || r == 0x7f:
		return true
	}
	return r >= 0x80 && r <= 0x9f
}

func clean(s string) bool {
	for i := 0; i < len(s); {
		if b := s[i]; b < utf8.RuneSelf {
			if dropRune(rune(b)) {
				return false
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError || r == '\u00a0' || dropRune(r) {
			return false
		}
		i += size
	}
	return true
}
