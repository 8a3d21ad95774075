package correction

import (
	"strings"
	"unicode/utf8"
)

// fallbackTable is the local substitution table used when the backend is
// unreachable. Rules apply in order.
var fallbackTable = [][2]string{
	{"انا", "أنا"},
	{"هاذا", "هذا"},
	{"هاذه", "هذه"},
	{"إنشاءالله", "إن شاء الله"},
}

// Fallback applies the local substitution table to text until nothing
// changes, so Fallback(Fallback(x)) == Fallback(x). A rewrite can expose a
// new match ("انانا" needs two passes). Every change removes a bare alif
// or a fused "إنشاءالله", so the rune count bounds the passes.
func Fallback(text string) string {
	for range utf8.RuneCountInString(text) + 1 {
		next := text
		for _, rule := range fallbackTable {
			next = strings.ReplaceAll(next, rule[0], rule[1])
		}
		if next == text {
			break
		}
		text = next
	}
	return text
}

// IsArabic reports whether r is in the Arabic block (U+0600..U+06FF).
func IsArabic(r rune) bool {
	return r >= 0x0600 && r <= 0x06FF
}

// ContainsArabic reports whether text holds at least one Arabic rune.
func ContainsArabic(text string) bool {
	for _, r := range text {
		if IsArabic(r) {
			return true
		}
	}
	return false
}

// Eligible reports whether text is worth sending for correction: it must
// be non-blank and contain Arabic.
func Eligible(text string) bool {
	return strings.TrimSpace(text) != "" && ContainsArabic(text)
}

// Len returns the length of text in runes, the unit of FlaggedRange.
func Len(text string) int {
	return utf8.RuneCountInString(text)
}
