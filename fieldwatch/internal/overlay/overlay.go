package overlay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
)

type drawn struct {
	kind   page.Kind
	text   string
	ranges []correction.FlaggedRange
}

// Renderer holds the highlight state of one page. Each Render replaces the
// field's previous state. Not safe for concurrent use.
type Renderer struct {
	page   page.Page
	logger *slog.Logger
	widths map[string]float64
	drawn  map[page.NodeID]drawn
}

// NewRenderer returns a renderer drawing on p.
func NewRenderer(p page.Page, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		page:   p,
		logger: logger,
		widths: make(map[string]float64),
		drawn:  make(map[page.NodeID]drawn),
	}
}

// Render shows ranges over field. Zero ranges clear the field.
func (r *Renderer) Render(ctx context.Context, field page.NodeID, kind page.Kind, text string, ranges []correction.FlaggedRange) error {
	if len(ranges) == 0 {
		return r.Clear(ctx, field)
	}

	if kind == page.KindRichEditable {
		current, err := r.page.ReadHTML(ctx, field)
		if err != nil {
			return fmt.Errorf("overlay: read field html: %w", err)
		}
		out, err := Highlight(current, ranges)
		if err != nil {
			return err
		}
		if err := r.page.WriteHTML(ctx, field, out); err != nil {
			return fmt.Errorf("overlay: write field html: %w", err)
		}
		r.drawn[field] = drawn{kind: kind, text: text, ranges: ranges}
		return nil
	}

	d := drawn{kind: kind, text: text, ranges: ranges}
	if err := r.draw(ctx, field, d); err != nil {
		return err
	}
	r.drawn[field] = d
	return nil
}

func (r *Renderer) draw(ctx context.Context, field page.NodeID, d drawn) error {
	box, err := r.page.Rect(ctx, field)
	if err != nil {
		return fmt.Errorf("overlay: field rect: %w", err)
	}
	style, err := r.page.Style(ctx, field)
	if err != nil {
		return fmt.Errorf("overlay: field style: %w", err)
	}
	marks := Underlines(Layout{
		Kind:      d.kind,
		Text:      d.text,
		Style:     style,
		CharWidth: r.charWidth(ctx, style.Font),
	}, d.ranges)
	if err := r.page.DrawOverlay(ctx, page.OverlaySpec{Field: field, Box: box, Marks: marks}); err != nil {
		return fmt.Errorf("overlay: draw: %w", err)
	}
	return nil
}

// charWidth measures the sample glyph once per font.
func (r *Renderer) charWidth(ctx context.Context, font string) float64 {
	if w, ok := r.widths[font]; ok {
		return w
	}
	w, err := r.page.GlyphWidth(ctx, font, SampleGlyph)
	if err != nil || w <= 0 {
		r.logger.Debug("overlay: measure glyph", "font", font, "error", err)
		w = FallbackCharWidth
	}
	r.widths[font] = w
	return w
}

// Reposition redraws the field's overlay at the field's current box. Rich
// fields carry their highlights inline and need nothing.
func (r *Renderer) Reposition(ctx context.Context, field page.NodeID) error {
	d, ok := r.drawn[field]
	if !ok || d.kind == page.KindRichEditable {
		return nil
	}
	return r.draw(ctx, field, d)
}

// Clear removes every highlight of field.
func (r *Renderer) Clear(ctx context.Context, field page.NodeID) error {
	d, ok := r.drawn[field]
	if !ok {
		return nil
	}
	delete(r.drawn, field)

	if d.kind != page.KindRichEditable {
		if err := r.page.RemoveOverlay(ctx, field); err != nil {
			return fmt.Errorf("overlay: remove: %w", err)
		}
		return nil
	}
	current, err := r.page.ReadHTML(ctx, field)
	if err != nil {
		return fmt.Errorf("overlay: read field html: %w", err)
	}
	out, err := Strip(current)
	if err != nil {
		return err
	}
	if out == current {
		return nil
	}
	if err := r.page.WriteHTML(ctx, field, out); err != nil {
		return fmt.Errorf("overlay: write field html: %w", err)
	}
	return nil
}

// Active reports whether field currently shows highlights.
func (r *Renderer) Active(field page.NodeID) bool {
	_, ok := r.drawn[field]
	return ok
}

// Forget drops state for a field that left the document.
func (r *Renderer) Forget(field page.NodeID) {
	delete(r.drawn, field)
}
