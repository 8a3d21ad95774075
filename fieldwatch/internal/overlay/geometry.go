// Package overlay draws validation highlights: underline overlays over
// single and multi-line fields, inline highlight spans inside rich
// editable fields.
package overlay

import (
	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
)

const (
	// SampleGlyph is measured to approximate per-character width.
	SampleGlyph = "ا"
	// FallbackCharWidth is used when the sample glyph cannot be measured.
	FallbackCharWidth = 8.0
	// FallbackLineHeight is used when the field reports "normal".
	FallbackLineHeight = 20.0
	// UnderlineInset is the distance from the text baseline area edge.
	UnderlineInset = 3.0
)

// Layout is what geometry needs to know about a field.
type Layout struct {
	Kind      page.Kind
	Text      string
	Style     page.Style
	CharWidth float64
}

// Underlines computes one mark per range. Horizontal offsets are measured
// from the right edge for RTL fields and the left edge otherwise.
// Multi-line fields place each mark on the line holding its start.
func Underlines(l Layout, ranges []correction.FlaggedRange) []page.Underline {
	cw := l.CharWidth
	if cw <= 0 {
		cw = FallbackCharWidth
	}
	lineHeight := l.Style.LineHeight
	if lineHeight <= 0 {
		lineHeight = FallbackLineHeight
	}
	runes := []rune(l.Text)
	total := len(runes)

	marks := make([]page.Underline, 0, len(ranges))
	for _, r := range ranges {
		if !r.Within(total) {
			continue
		}
		u := page.Underline{
			Width: float64(r.EndIndex-r.StartIndex) * cw,
			Word:  r.Word,
		}

		start, end, lineLen, line := r.StartIndex, r.EndIndex, total, 0
		if l.Kind == page.KindMultiLine {
			line, start, lineLen = lineOf(runes, r.StartIndex)
			end = start + (r.EndIndex - r.StartIndex)
		}

		if l.Style.RTL() {
			u.Side = "right"
			u.Offset = float64(lineLen-end)*cw + l.Style.PaddingRight
			// A range running past its line would go negative.
			if u.Offset < l.Style.PaddingRight {
				u.Offset = l.Style.PaddingRight
			}
		} else {
			u.Side = "left"
			u.Offset = float64(start)*cw + l.Style.PaddingLeft
		}

		if l.Kind == page.KindMultiLine {
			u.Edge = "top"
			u.Inset = float64(line)*lineHeight + lineHeight - UnderlineInset
		} else {
			u.Edge = "bottom"
			u.Inset = UnderlineInset
		}
		marks = append(marks, u)
	}
	return marks
}

// lineOf returns the line index holding rune offset pos, pos relative to
// that line's start, and the line's length in runes.
func lineOf(runes []rune, pos int) (line, col, length int) {
	lineStart := 0
	for i := 0; i < pos && i < len(runes); i++ {
		if runes[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	lineEnd := lineStart
	for lineEnd < len(runes) && runes[lineEnd] != '\n' {
		lineEnd++
	}
	return line, pos - lineStart, lineEnd - lineStart
}
