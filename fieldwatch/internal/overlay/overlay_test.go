package overlay

import (
	"context"
	"strings"
	"testing"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page/pagetest"
)

func TestUnderlinesSingleLineRTL(t *testing.T) {
	l := Layout{
		Kind:      page.KindSingleLine,
		Text:      "انا هاذا",
		Style:     page.Style{Direction: "rtl", PaddingLeft: 2, PaddingRight: 4},
		CharWidth: 10,
	}
	marks := Underlines(l, []correction.FlaggedRange{{Word: "هاذا", StartIndex: 4, EndIndex: 8}})
	if len(marks) != 1 {
		t.Fatalf("marks = %d, want 1", len(marks))
	}
	m := marks[0]
	if m.Side != "right" || m.Offset != 4 || m.Width != 40 {
		t.Errorf("horizontal = %s %v width %v, want right 4 width 40", m.Side, m.Offset, m.Width)
	}
	if m.Edge != "bottom" || m.Inset != 3 {
		t.Errorf("vertical = %s %v, want bottom 3", m.Edge, m.Inset)
	}
}

func TestUnderlinesSingleLineLTR(t *testing.T) {
	l := Layout{
		Kind:      page.KindSingleLine,
		Text:      "abc انا",
		Style:     page.Style{Direction: "ltr", PaddingLeft: 5},
		CharWidth: 8,
	}
	marks := Underlines(l, []correction.FlaggedRange{{Word: "انا", StartIndex: 4, EndIndex: 7}})
	if len(marks) != 1 {
		t.Fatalf("marks = %d", len(marks))
	}
	if marks[0].Side != "left" || marks[0].Offset != 37 || marks[0].Width != 24 {
		t.Fatalf("mark = %+v", marks[0])
	}
}

func TestUnderlinesMultiLine(t *testing.T) {
	l := Layout{
		Kind:      page.KindMultiLine,
		Text:      "سطر\nانا هنا",
		Style:     page.Style{Direction: "rtl", LineHeight: 0},
		CharWidth: 10,
	}
	// "انا" starts at rune 4, column 0 of line 1 (7 runes long).
	marks := Underlines(l, []correction.FlaggedRange{{Word: "انا", StartIndex: 4, EndIndex: 7}})
	if len(marks) != 1 {
		t.Fatalf("marks = %d", len(marks))
	}
	m := marks[0]
	if m.Edge != "top" || m.Inset != FallbackLineHeight*2-3 {
		t.Errorf("vertical = %s %v, want top %v", m.Edge, m.Inset, FallbackLineHeight*2-3)
	}
	if m.Offset != 40 {
		t.Errorf("offset = %v, want 40", m.Offset)
	}
}

func TestUnderlinesDropsInvalidRanges(t *testing.T) {
	l := Layout{Kind: page.KindSingleLine, Text: "انا", CharWidth: 0}
	marks := Underlines(l, []correction.FlaggedRange{
		{Word: "x", StartIndex: 0, EndIndex: 9},
		{Word: "x", StartIndex: 2, EndIndex: 2},
		{Word: "انا", StartIndex: 0, EndIndex: 3},
	})
	if len(marks) != 1 {
		t.Fatalf("marks = %d, want 1", len(marks))
	}
	if marks[0].Width != 3*FallbackCharWidth {
		t.Errorf("width = %v, fallback char width not used", marks[0].Width)
	}
}

func TestHighlightAndStrip(t *testing.T) {
	src := "انا <b>هاذا</b> نص"
	out, err := Highlight(src, []correction.FlaggedRange{
		{Word: "انا", StartIndex: 0, EndIndex: 3},
		{Word: "هاذا", StartIndex: 4, EndIndex: 8},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out, `data-lasen-owned="highlight"`); n != 2 {
		t.Fatalf("spans = %d, want 2: %s", n, out)
	}
	if !strings.Contains(out, "<b><span") {
		t.Errorf("span not placed inside <b>: %s", out)
	}

	text, err := Text(out)
	if err != nil {
		t.Fatal(err)
	}
	if text != "انا هاذا نص" {
		t.Fatalf("Text = %q", text)
	}

	// A second pass replaces, never accumulates.
	again, err := Highlight(out, []correction.FlaggedRange{{Word: "نص", StartIndex: 9, EndIndex: 11}})
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(again, `data-lasen-owned="highlight"`); n != 1 {
		t.Fatalf("spans after second pass = %d, want 1: %s", n, again)
	}

	stripped, err := Strip(again)
	if err != nil {
		t.Fatal(err)
	}
	if stripped != src {
		t.Fatalf("Strip = %q, want %q", stripped, src)
	}
}

func TestHighlightOverlapAndCrossNode(t *testing.T) {
	src := "اب<i>جد</i>هو"
	out, err := Highlight(src, []correction.FlaggedRange{
		{Word: "بجده", StartIndex: 1, EndIndex: 5},
		{Word: "جد", StartIndex: 2, EndIndex: 4},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out, `data-word="بجده"`); n != 3 {
		t.Fatalf("cross-node range produced %d spans, want 3: %s", n, out)
	}
	if strings.Contains(out, `data-word="جد"`) {
		t.Fatalf("overlapping range kept: %s", out)
	}
}

func TestTextBreaks(t *testing.T) {
	text, err := Text("سطر<br>ثاني")
	if err != nil {
		t.Fatal(err)
	}
	if text != "سطر\nثاني" {
		t.Fatalf("Text = %q", text)
	}
}

func TestRendererLifecycle(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New()
	p.AddField("in", page.KindSingleLine, "انا هاذا")
	p.SetGlyphWidth(7)
	r := NewRenderer(p, nil)

	ranges := []correction.FlaggedRange{{Word: "هاذا", StartIndex: 4, EndIndex: 8}}
	if err := r.Render(ctx, "in", page.KindSingleLine, "انا هاذا", ranges); err != nil {
		t.Fatal(err)
	}
	spec, ok := p.Overlay("in")
	if !ok || len(spec.Marks) != 1 {
		t.Fatalf("overlay = %+v %v", spec, ok)
	}
	if spec.Marks[0].Width != 28 {
		t.Errorf("width = %v, want 28", spec.Marks[0].Width)
	}

	// Width is measured once per font.
	if err := r.Render(ctx, "in", page.KindSingleLine, "انا هاذا", ranges); err != nil {
		t.Fatal(err)
	}
	if got := p.Calls("GlyphWidth"); got != 1 {
		t.Errorf("GlyphWidth calls = %d, want 1", got)
	}

	p.Update("in", func(f *pagetest.Field) { f.Rect.Top = 400 })
	if err := r.Reposition(ctx, "in"); err != nil {
		t.Fatal(err)
	}
	if spec, _ := p.Overlay("in"); spec.Box.Top != 400 {
		t.Errorf("overlay top = %v after reposition", spec.Box.Top)
	}

	if err := r.Render(ctx, "in", page.KindSingleLine, "انا هاذا", nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Overlay("in"); ok {
		t.Fatal("zero ranges left the overlay in place")
	}
	if r.Active("in") {
		t.Fatal("renderer still tracks cleared field")
	}
}

func TestRendererRichField(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New()
	p.AddField("ce", page.KindRichEditable, "انا هاذا")
	r := NewRenderer(p, nil)

	err := r.Render(ctx, "ce", page.KindRichEditable, "انا هاذا",
		[]correction.FlaggedRange{{Word: "هاذا", StartIndex: 4, EndIndex: 8}})
	if err != nil {
		t.Fatal(err)
	}
	f, _ := p.Field("ce")
	if !strings.Contains(f.HTML, `class="lasen-highlight"`) {
		t.Fatalf("html = %s", f.HTML)
	}
	if err := r.Clear(ctx, "ce"); err != nil {
		t.Fatal(err)
	}
	f, _ = p.Field("ce")
	if f.HTML != "انا هاذا" {
		t.Fatalf("html after clear = %q", f.HTML)
	}
	if p.Calls("DrawOverlay") != 0 {
		t.Fatal("rich field used an overlay")
	}
}
