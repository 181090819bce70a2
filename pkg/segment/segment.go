// Package segment splits reply text into speakable sentence units.
package segment

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

func isTerminal(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}

// Sentences yields the sentences of text lazily. A boundary follows a '.',
// '?' or '!' when the next character is whitespace; the whole whitespace run
// is consumed by the boundary. Yielded segments are trimmed and never empty.
// The sequence holds no state between iterations and can be ranged again.
func Sentences(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start := 0
		prev := rune(0)
		for i := 0; i < len(text); {
			r, size := utf8.DecodeRuneInString(text[i:])
			if unicode.IsSpace(r) && isTerminal(prev) {
				if s := strings.TrimSpace(text[start:i]); s != "" {
					if !yield(s) {
						return
					}
				}
				// skip the rest of the whitespace run
				for i < len(text) {
					r, size = utf8.DecodeRuneInString(text[i:])
					if !unicode.IsSpace(r) {
						break
					}
					i += size
				}
				start = i
				prev = 0
				continue
			}
			prev = r
			i += size
		}
		if s := strings.TrimSpace(text[start:]); s != "" {
			yield(s)
		}
	}
}

// Split collects Sentences(text) into a slice.
func Split(text string) []string {
	var out []string
	for s := range Sentences(text) {
		out = append(out, s)
	}
	return out
}
