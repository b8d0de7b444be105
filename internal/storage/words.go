package storage

import (
	"strings"
	"unicode"
)

// CountWords counts prose length in a script-aware way: text that is
// mostly CJK is counted per character (ignoring whitespace), everything
// else per whitespace-separated word. The threshold is 30% CJK, so
// Chinese prose with embedded Latin names still counts by character.
func CountWords(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	var cjk, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isCJKRune(r) {
			cjk++
		}
	}
	if total == 0 {
		return 0
	}

	if float64(cjk)/float64(total) >= 0.3 {
		return total
	}
	return len(strings.Fields(text))
}

func isCJKRune(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
