// Package pagetest provides an in-memory page.Page for engine tests.
package pagetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
)

// Field is the fake's view of one editable node.
type Field struct {
	Kind        page.Kind
	Text        string
	HTML        string
	Rect        page.Rect
	Style       page.Style
	Processed   bool
	InputEvents int
}

// Control is the fake's view of one injected control.
type Control struct {
	Spec    page.ControlSpec
	Field   page.NodeID
	At      page.Point
	Visible bool
}

// Fake implements page.Page in memory. It is safe for concurrent use.
type Fake struct {
	mu       sync.Mutex
	order    []page.NodeID
	fields   map[page.NodeID]*Field
	controls map[page.ControlID]*Control
	overlays map[page.NodeID]page.OverlaySpec
	active   page.ControlID
	alerts   []string
	selected string
	glyph    float64
	calls    map[string]int
	fail     map[string]error

	events chan page.Event
	closed bool
}

// New returns an empty fake page.
func New() *Fake {
	return &Fake{
		fields:   make(map[page.NodeID]*Field),
		controls: make(map[page.ControlID]*Control),
		overlays: make(map[page.NodeID]page.OverlaySpec),
		calls:    make(map[string]int),
		fail:     make(map[string]error),
		glyph:    10,
		events:   make(chan page.Event, 64),
	}
}

// AddField inserts a field. Rect and Style default to a 200x30 LTR box.
func (f *Fake) AddField(id page.NodeID, kind page.Kind, text string) *Field {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl := &Field{
		Kind:  kind,
		Text:  text,
		HTML:  text,
		Rect:  page.Rect{Left: 100, Top: 50, Width: 200, Height: 30},
		Style: page.Style{Direction: "ltr", PaddingLeft: 4, PaddingRight: 4, LineHeight: 18, Font: "16px serif"},
	}
	f.fields[id] = fl
	f.order = append(f.order, id)
	return fl
}

// RemoveField deletes a field from the document.
func (f *Fake) RemoveField(id page.NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fields, id)
	for i, o := range f.order {
		if o == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// Navigate replaces the document: every field, control and overlay is
// gone. Populate the new document, then Emit page.EventReset as the shim
// does once it loads.
func (f *Fake) Navigate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = nil
	f.fields = make(map[page.NodeID]*Field)
	f.controls = make(map[page.ControlID]*Control)
	f.overlays = make(map[page.NodeID]page.OverlaySpec)
	f.active = ""
	f.selected = ""
}

// Field returns a copy of the field state.
func (f *Fake) Field(id page.NodeID) (Field, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.fields[id]
	if !ok {
		return Field{}, false
	}
	return *fl, true
}

// Update mutates a field under the fake's lock.
func (f *Fake) Update(id page.NodeID, fn func(*Field)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fl, ok := f.fields[id]; ok {
		fn(fl)
	}
}

// Controls returns a copy of every live control.
func (f *Fake) Controls() map[page.ControlID]Control {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[page.ControlID]Control, len(f.controls))
	for id, c := range f.controls {
		out[id] = *c
	}
	return out
}

// ControlFor returns the control bound to field, if any.
func (f *Fake) ControlFor(field page.NodeID) (page.ControlID, Control, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.controls {
		if c.Field == field {
			return id, *c, true
		}
	}
	return "", Control{}, false
}

// Overlay returns the overlay drawn over field, if any.
func (f *Fake) Overlay(field page.NodeID) (page.OverlaySpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.overlays[field]
	return o, ok
}

// Alerts returns the messages shown so far.
func (f *Fake) Alerts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.alerts...)
}

// SetActive sets the control reported by ActiveControl.
func (f *Fake) SetActive(cid page.ControlID) {
	f.mu.Lock()
	f.active = cid
	f.mu.Unlock()
}

// SetSelection sets the text reported by Selection.
func (f *Fake) SetSelection(s string) {
	f.mu.Lock()
	f.selected = s
	f.mu.Unlock()
}

// SetGlyphWidth sets the width reported by GlyphWidth.
func (f *Fake) SetGlyphWidth(w float64) {
	f.mu.Lock()
	f.glyph = w
	f.mu.Unlock()
}

// FailOn makes the named method return err until cleared with nil.
func (f *Fake) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, method)
		return
	}
	f.fail[method] = err
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Emit queues a host event.
func (f *Fake) Emit(ev page.Event) { f.events <- ev }

// Close closes the event channel, as when the page goes away.
func (f *Fake) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
}

func (f *Fake) Events() <-chan page.Event { return f.events }

// enter records a call and returns the injected failure, if any. Callers
// hold f.mu.
func (f *Fake) enter(method string) error {
	f.calls[method]++
	return f.fail[method]
}

func (f *Fake) field(id page.NodeID) (*Field, error) {
	fl, ok := f.fields[id]
	if !ok {
		return nil, fmt.Errorf("pagetest: node %s gone", id)
	}
	return fl, nil
}

func (f *Fake) Fields(ctx context.Context) ([]page.FieldNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Fields"); err != nil {
		return nil, err
	}
	out := make([]page.FieldNode, 0, len(f.order))
	for _, id := range f.order {
		fl := f.fields[id]
		out = append(out, page.FieldNode{ID: id, Kind: fl.Kind, Processed: fl.Processed})
	}
	return out, nil
}

func (f *Fake) Mark(ctx context.Context, id page.NodeID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Mark"); err != nil {
		return err
	}
	fl, err := f.field(id)
	if err != nil {
		return err
	}
	fl.Processed = true
	return nil
}

func (f *Fake) Unmark(ctx context.Context, id page.NodeID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Unmark"); err != nil {
		return err
	}
	if fl, ok := f.fields[id]; ok {
		fl.Processed = false
	}
	return nil
}

func (f *Fake) Rect(ctx context.Context, id page.NodeID) (page.Rect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Rect"); err != nil {
		return page.Rect{}, err
	}
	fl, err := f.field(id)
	if err != nil {
		return page.Rect{}, err
	}
	return fl.Rect, nil
}

func (f *Fake) Style(ctx context.Context, id page.NodeID) (page.Style, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Style"); err != nil {
		return page.Style{}, err
	}
	fl, err := f.field(id)
	if err != nil {
		return page.Style{}, err
	}
	return fl.Style, nil
}

func (f *Fake) GlyphWidth(ctx context.Context, font, glyph string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GlyphWidth"); err != nil {
		return 0, err
	}
	return f.glyph, nil
}

func (f *Fake) ReadText(ctx context.Context, id page.NodeID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ReadText"); err != nil {
		return "", err
	}
	fl, err := f.field(id)
	if err != nil {
		return "", err
	}
	return fl.Text, nil
}

func (f *Fake) WriteText(ctx context.Context, id page.NodeID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("WriteText"); err != nil {
		return err
	}
	fl, err := f.field(id)
	if err != nil {
		return err
	}
	fl.Text = text
	fl.HTML = text
	fl.InputEvents++
	return nil
}

func (f *Fake) ReadHTML(ctx context.Context, id page.NodeID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ReadHTML"); err != nil {
		return "", err
	}
	fl, err := f.field(id)
	if err != nil {
		return "", err
	}
	return fl.HTML, nil
}

func (f *Fake) WriteHTML(ctx context.Context, id page.NodeID, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("WriteHTML"); err != nil {
		return err
	}
	fl, err := f.field(id)
	if err != nil {
		return err
	}
	fl.HTML = html
	return nil
}

func (f *Fake) CreateControl(ctx context.Context, spec page.ControlSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateControl"); err != nil {
		return err
	}
	f.controls[spec.ID] = &Control{Spec: spec}
	return nil
}

func (f *Fake) control(cid page.ControlID) (*Control, error) {
	c, ok := f.controls[cid]
	if !ok {
		return nil, fmt.Errorf("pagetest: control %s unknown", cid)
	}
	return c, nil
}

func (f *Fake) BindControl(ctx context.Context, cid page.ControlID, field page.NodeID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("BindControl"); err != nil {
		return err
	}
	c, err := f.control(cid)
	if err != nil {
		return err
	}
	c.Field = field
	return nil
}

func (f *Fake) PlaceControl(ctx context.Context, cid page.ControlID, at page.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PlaceControl"); err != nil {
		return err
	}
	c, err := f.control(cid)
	if err != nil {
		return err
	}
	c.At = at
	return nil
}

func (f *Fake) ShowControl(ctx context.Context, cid page.ControlID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ShowControl"); err != nil {
		return err
	}
	c, err := f.control(cid)
	if err != nil {
		return err
	}
	c.Visible = true
	return nil
}

func (f *Fake) HideControl(ctx context.Context, cid page.ControlID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("HideControl"); err != nil {
		return err
	}
	c, err := f.control(cid)
	if err != nil {
		return err
	}
	c.Visible = false
	return nil
}

func (f *Fake) RemoveControl(ctx context.Context, cid page.ControlID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("RemoveControl"); err != nil {
		return err
	}
	delete(f.controls, cid)
	return nil
}

func (f *Fake) ActiveControl(ctx context.Context) (page.ControlID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ActiveControl"); err != nil {
		return "", err
	}
	return f.active, nil
}

func (f *Fake) DrawOverlay(ctx context.Context, spec page.OverlaySpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DrawOverlay"); err != nil {
		return err
	}
	f.overlays[spec.Field] = spec
	return nil
}

func (f *Fake) RemoveOverlay(ctx context.Context, field page.NodeID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("RemoveOverlay"); err != nil {
		return err
	}
	delete(f.overlays, field)
	return nil
}

func (f *Fake) Alert(ctx context.Context, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Alert"); err != nil {
		return err
	}
	f.alerts = append(f.alerts, msg)
	return nil
}

func (f *Fake) Selection(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Selection"); err != nil {
		return "", err
	}
	return f.selected, nil
}

func (f *Fake) ReplaceSelection(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ReplaceSelection"); err != nil {
		return err
	}
	f.selected = text
	return nil
}

var _ page.Page = (*Fake)(nil)
