package page

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

//go:embed shim.js
var shimJS string

const bindingName = "__lasen_binding"

// Rod drives a host document through a rod page. The shim is injected on
// every new document of the page, and events flow back over a Runtime
// binding.
type Rod struct {
	page   *rod.Page
	logger *slog.Logger
	events chan Event

	cancel    context.CancelFunc
	closeOnce sync.Once
	removeNew func() error
}

// Attach installs the binding and the shim on p and starts listening for
// events. The returned Rod stops when ctx is cancelled or Close is called.
func Attach(ctx context.Context, p *rod.Page, logger *slog.Logger) (*Rod, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	r := &Rod{
		page:   p,
		logger: logger,
		events: make(chan Event, 256),
		cancel: cancel,
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(p); err != nil {
		logger.Warn("page: addBinding failed (may already exist)", "error", err)
	}

	wait := p.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		ev, err := ParseEvent(e.Payload)
		if err != nil {
			logger.Warn("page: bad binding payload", "error", err)
			return
		}
		select {
		case r.events <- ev:
		case <-ctx.Done():
		default:
			logger.Warn("page: event dropped, engine busy", "type", ev.Type)
		}
	})

	remove, err := p.EvalOnNewDocument("(" + shimJS + ")(true)")
	if err != nil {
		cancel()
		return nil, fmt.Errorf("page: register shim: %w", err)
	}
	r.removeNew = remove

	if _, err := p.Context(ctx).Eval(shimJS); err != nil {
		cancel()
		remove()
		return nil, fmt.Errorf("page: inject shim: %w", err)
	}

	go func() {
		wait()
		close(r.events)
	}()
	return r, nil
}

// Close stops event delivery; the Events channel is closed once the
// listener has returned. The shim stays in the document until the next
// navigation.
func (r *Rod) Close() error {
	r.closeOnce.Do(func() {
		r.cancel()
		if err := r.removeNew(); err != nil {
			r.logger.Debug("page: remove shim registration", "error", err)
		}
	})
	return nil
}

// Events implements Page.
func (r *Rod) Events() <-chan Event { return r.events }

// call runs window.__lasen.<fn>(args...) and decodes the result into out
// when out is non-nil.
func (r *Rod) call(ctx context.Context, fn string, out any, args ...any) error {
	params := ""
	for i := range args {
		if i > 0 {
			params += ", "
		}
		params += fmt.Sprintf("a%d", i)
	}
	js := fmt.Sprintf("(%s) => JSON.stringify(window.__lasen.%s(%s) ?? null)", params, fn, params)
	res, err := r.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return fmt.Errorf("page: %s: %w", fn, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), out); err != nil {
		return fmt.Errorf("page: %s: decode: %w", fn, err)
	}
	return nil
}

func (r *Rod) Fields(ctx context.Context) ([]FieldNode, error) {
	var out []FieldNode
	err := r.call(ctx, "fields", &out)
	return out, err
}

func (r *Rod) Mark(ctx context.Context, id NodeID) error {
	return r.call(ctx, "mark", nil, string(id))
}

func (r *Rod) Unmark(ctx context.Context, id NodeID) error {
	return r.call(ctx, "unmark", nil, string(id))
}

func (r *Rod) Rect(ctx context.Context, id NodeID) (Rect, error) {
	var out Rect
	err := r.call(ctx, "rect", &out, string(id))
	return out, err
}

func (r *Rod) Style(ctx context.Context, id NodeID) (Style, error) {
	var out Style
	err := r.call(ctx, "style", &out, string(id))
	return out, err
}

func (r *Rod) GlyphWidth(ctx context.Context, font, glyph string) (float64, error) {
	var out float64
	err := r.call(ctx, "glyphWidth", &out, font, glyph)
	return out, err
}

func (r *Rod) ReadText(ctx context.Context, id NodeID) (string, error) {
	var out string
	err := r.call(ctx, "readText", &out, string(id))
	return out, err
}

func (r *Rod) WriteText(ctx context.Context, id NodeID, text string) error {
	return r.call(ctx, "writeText", nil, string(id), text)
}

func (r *Rod) ReadHTML(ctx context.Context, id NodeID) (string, error) {
	var out string
	err := r.call(ctx, "readHTML", &out, string(id))
	return out, err
}

func (r *Rod) WriteHTML(ctx context.Context, id NodeID, html string) error {
	return r.call(ctx, "writeHTML", nil, string(id), html)
}

func (r *Rod) CreateControl(ctx context.Context, spec ControlSpec) error {
	return r.call(ctx, "createControl", nil, spec)
}

func (r *Rod) BindControl(ctx context.Context, cid ControlID, field NodeID) error {
	return r.call(ctx, "bindControl", nil, string(cid), string(field))
}

func (r *Rod) PlaceControl(ctx context.Context, cid ControlID, at Point) error {
	return r.call(ctx, "placeControl", nil, string(cid), at.X, at.Y)
}

func (r *Rod) ShowControl(ctx context.Context, cid ControlID) error {
	return r.call(ctx, "showControl", nil, string(cid))
}

func (r *Rod) HideControl(ctx context.Context, cid ControlID) error {
	return r.call(ctx, "hideControl", nil, string(cid))
}

func (r *Rod) RemoveControl(ctx context.Context, cid ControlID) error {
	return r.call(ctx, "removeControl", nil, string(cid))
}

func (r *Rod) ActiveControl(ctx context.Context) (ControlID, error) {
	var out string
	err := r.call(ctx, "activeControl", &out)
	return ControlID(out), err
}

func (r *Rod) DrawOverlay(ctx context.Context, spec OverlaySpec) error {
	return r.call(ctx, "drawOverlay", nil, spec)
}

func (r *Rod) RemoveOverlay(ctx context.Context, field NodeID) error {
	return r.call(ctx, "removeOverlay", nil, string(field))
}

func (r *Rod) Alert(ctx context.Context, msg string) error {
	return r.call(ctx, "alert", nil, msg)
}

func (r *Rod) Selection(ctx context.Context) (string, error) {
	var out string
	err := r.call(ctx, "selection", &out)
	return out, err
}

func (r *Rod) ReplaceSelection(ctx context.Context, text string) error {
	return r.call(ctx, "replaceSelection", nil, text)
}
