// Package page is the boundary between the engine and a host document.
// Everything the engine reads from or writes to the DOM goes through the
// Page interface. Nodes are addressed by ids assigned by the injected
// script; the engine never assumes a node still exists.
package page

import "context"

// Marker attributes written into the host document.
const (
	// AttrOwned is carried by every node the engine injects: controls,
	// menus, overlays, highlight spans, toasts.
	AttrOwned = "data-lasen-owned"
	// AttrField marks a processed field; its value is the field id.
	AttrField = "data-lasen-field"
	// AttrControl carries the control id on a control container.
	AttrControl = "data-lasen-control"
	// HighlightClass is the class of rich-text highlight spans.
	HighlightClass = "lasen-highlight"
)

// NodeID identifies a candidate field in the host document.
type NodeID string

// ControlID identifies an injected affordance control.
type ControlID string

// Kind is the category of an editable surface.
type Kind string

const (
	KindSingleLine   Kind = "single-line"
	KindMultiLine    Kind = "multi-line"
	KindRichEditable Kind = "rich-editable"
)

// FieldNode is a candidate field as enumerated from the document.
type FieldNode struct {
	ID        NodeID `json:"id"`
	Kind      Kind   `json:"kind"`
	Processed bool   `json:"processed"`
}

// Rect is a layout box in document coordinates (scroll offset included).
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Right() float64  { return r.Left + r.Width }
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Point is a document coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Style is the subset of computed style the overlay geometry needs.
// LineHeight is 0 when the page reports "normal".
type Style struct {
	Direction    string  `json:"direction"`
	PaddingLeft  float64 `json:"padding_left"`
	PaddingRight float64 `json:"padding_right"`
	LineHeight   float64 `json:"line_height"`
	Font         string  `json:"font"`
}

// RTL reports whether the field lays text out right to left.
func (s Style) RTL() bool { return s.Direction == "rtl" }

// MenuItem is one entry of a control's action menu.
type MenuItem struct {
	Action string `json:"action"`
	Label  string `json:"label"`
}

// ControlSpec describes a control to create.
type ControlSpec struct {
	ID    ControlID  `json:"id"`
	Size  float64    `json:"size"`
	Title string     `json:"title"`
	Items []MenuItem `json:"items"`
}

// Underline is one mark of a highlight overlay, relative to the overlay
// box. Offset is measured from the box edge named by Side ("left" or
// "right"), Inset from the edge named by Edge ("top" or "bottom").
type Underline struct {
	Side   string  `json:"side"`
	Offset float64 `json:"offset"`
	Width  float64 `json:"width"`
	Edge   string  `json:"edge"`
	Inset  float64 `json:"inset"`
	Word   string  `json:"word"`
}

// OverlaySpec is a highlight overlay positioned over a field.
type OverlaySpec struct {
	Field NodeID      `json:"field"`
	Box   Rect        `json:"box"`
	Marks []Underline `json:"marks"`
}

// Page is a host document the engine instruments.
type Page interface {
	// Events delivers host-page events. The channel is closed when the
	// page goes away.
	Events() <-chan Event

	// Fields lists every candidate field in document order.
	Fields(ctx context.Context) ([]FieldNode, error)
	Mark(ctx context.Context, id NodeID) error
	Unmark(ctx context.Context, id NodeID) error

	Rect(ctx context.Context, id NodeID) (Rect, error)
	Style(ctx context.Context, id NodeID) (Style, error)
	// GlyphWidth measures glyph rendered in font, off screen.
	GlyphWidth(ctx context.Context, font, glyph string) (float64, error)

	ReadText(ctx context.Context, id NodeID) (string, error)
	// WriteText replaces the field content and fires exactly one
	// bubbling input event on it.
	WriteText(ctx context.Context, id NodeID, text string) error
	ReadHTML(ctx context.Context, id NodeID) (string, error)
	WriteHTML(ctx context.Context, id NodeID, html string) error

	CreateControl(ctx context.Context, spec ControlSpec) error
	BindControl(ctx context.Context, cid ControlID, field NodeID) error
	PlaceControl(ctx context.Context, cid ControlID, at Point) error
	ShowControl(ctx context.Context, cid ControlID) error
	HideControl(ctx context.Context, cid ControlID) error
	RemoveControl(ctx context.Context, cid ControlID) error
	// ActiveControl returns the control holding focus, or "".
	ActiveControl(ctx context.Context) (ControlID, error)

	DrawOverlay(ctx context.Context, spec OverlaySpec) error
	RemoveOverlay(ctx context.Context, field NodeID) error

	// Alert shows a transient, non-blocking message to the user.
	Alert(ctx context.Context, msg string) error
	Selection(ctx context.Context) (string, error)
	ReplaceSelection(ctx context.Context, text string) error
}
