package text

import (
	"strings"
	"unicode/utf8"
)

// Split cuts s into ordered chunks of at most maxRunes code points each.
// Concatenating the chunks yields s exactly. A cut prefers the last newline in the
// window, then the last space, so the separator stays at the end of the chunk.
// An empty s yields no chunks.
func Split(s string, maxRunes int) []string {
	if s == "" {
		return nil
	}
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return []string{s}
	}

	var chunks []string
	for s != "" {
		cut := windowEnd(s, maxRunes)
		if cut == len(s) {
			chunks = append(chunks, s)
			break
		}
		if nl := strings.LastIndexByte(s[:cut], '\n'); nl > 0 {
			cut = nl + 1
		} else if sp := strings.LastIndexByte(s[:cut], ' '); sp > 0 {
			cut = sp + 1
		}
		chunks = append(chunks, s[:cut])
		s = s[cut:]
	}
	return chunks
}

// windowEnd returns the byte offset just past the first n runes of s.
func windowEnd(s string, n int) int {
	for i := range s {
		if n == 0 {
			return i
		}
		n--
	}
	return len(s)
}
