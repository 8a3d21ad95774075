// Package affordance owns the floating controls attached to registered
// fields: a pooled arena of handles indexed by field id, their placement
// next to the field, and their visibility.
//
// An Arena is not safe for concurrent use; the page session loop is its
// only caller.
package affordance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
)

const (
	DefaultGap     = 8
	DefaultSize    = 28
	DefaultGrace   = 200 * time.Millisecond
	DefaultMaxIdle = 4
)

// Config tunes an Arena. Zero values take the defaults.
type Config struct {
	// Gap between the field's trailing edge and the control, in CSS px.
	Gap float64
	// Size of the square control, in CSS px.
	Size float64
	// MaxIdle is how many released controls stay pooled after Shrink.
	// Negative keeps none.
	MaxIdle int
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.Gap <= 0 {
		c.Gap = DefaultGap
	}
	if c.Size <= 0 {
		c.Size = DefaultSize
	}
	if c.MaxIdle < 0 {
		c.MaxIdle = 0
	} else if c.MaxIdle == 0 {
		c.MaxIdle = DefaultMaxIdle
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Control is a handle on one injected control.
type Control struct {
	ID      page.ControlID
	Field   page.NodeID
	Visible bool
}

// Arena pools controls and binds them 1:1 to fields.
type Arena struct {
	page  page.Page
	cfg   Config
	bound map[page.NodeID]*Control
	owner map[page.ControlID]page.NodeID
	free  []*Control
	next  int
}

// New returns an empty arena drawing on p.
func New(p page.Page, cfg Config) *Arena {
	cfg.defaults()
	return &Arena{
		page:  p,
		cfg:   cfg,
		bound: make(map[page.NodeID]*Control),
		owner: make(map[page.ControlID]page.NodeID),
	}
}

// Place computes the control position for a field box: Gap past the
// right edge, vertically centred.
func Place(r page.Rect, gap, size float64) page.Point {
	return page.Point{
		X: r.Right() + gap,
		Y: r.Top + (r.Height-size)/2,
	}
}

// Attach binds a control to field, reusing a pooled one when available.
// Attaching an already bound field returns its control. A pooled control
// the page no longer knows is dropped and the next one tried.
func (a *Arena) Attach(ctx context.Context, field page.NodeID) (*Control, error) {
	if c, ok := a.bound[field]; ok {
		return c, nil
	}

	for n := len(a.free); n > 0; n = len(a.free) {
		c := a.free[n-1]
		a.free = a.free[:n-1]
		if err := a.page.BindControl(ctx, c.ID, field); err != nil {
			a.cfg.Logger.Debug("affordance: drop stale control", "control", c.ID, "error", err)
			continue
		}
		a.bind(c, field)
		return c, nil
	}

	a.next++
	c := &Control{ID: page.ControlID(fmt.Sprintf("c%d", a.next))}
	spec := page.ControlSpec{
		ID:    c.ID,
		Size:  a.cfg.Size,
		Title: "تصحيح",
		Items: Catalog(),
	}
	if err := a.page.CreateControl(ctx, spec); err != nil {
		return nil, fmt.Errorf("affordance: create control: %w", err)
	}
	if err := a.page.BindControl(ctx, c.ID, field); err != nil {
		a.free = append(a.free, c)
		return nil, fmt.Errorf("affordance: bind control: %w", err)
	}
	a.bind(c, field)
	return c, nil
}

func (a *Arena) bind(c *Control, field page.NodeID) {
	c.Field = field
	c.Visible = false
	a.bound[field] = c
	a.owner[c.ID] = field
}

// Release hides the field's control and returns it to the pool.
func (a *Arena) Release(ctx context.Context, field page.NodeID) error {
	c, ok := a.bound[field]
	if !ok {
		return nil
	}
	delete(a.bound, field)
	delete(a.owner, c.ID)
	c.Field = ""
	c.Visible = false
	a.free = append(a.free, c)

	if err := a.page.HideControl(ctx, c.ID); err != nil {
		return fmt.Errorf("affordance: hide released control: %w", err)
	}
	if err := a.page.BindControl(ctx, c.ID, ""); err != nil {
		return fmt.Errorf("affordance: unbind control: %w", err)
	}
	return nil
}

// Shrink removes pooled controls beyond MaxIdle and returns how many were
// removed.
func (a *Arena) Shrink(ctx context.Context) int {
	removed := 0
	for len(a.free) > a.cfg.MaxIdle {
		n := len(a.free)
		c := a.free[n-1]
		a.free = a.free[:n-1]
		if err := a.page.RemoveControl(ctx, c.ID); err != nil {
			a.cfg.Logger.Debug("affordance: remove idle control", "control", c.ID, "error", err)
		}
		removed++
	}
	return removed
}

// Lookup returns the control bound to field.
func (a *Arena) Lookup(field page.NodeID) (*Control, bool) {
	c, ok := a.bound[field]
	return c, ok
}

// FieldOf returns the field a control is bound to.
func (a *Arena) FieldOf(cid page.ControlID) (page.NodeID, bool) {
	f, ok := a.owner[cid]
	return f, ok
}

// Reposition moves the field's control next to the field's current box.
func (a *Arena) Reposition(ctx context.Context, field page.NodeID) error {
	c, ok := a.bound[field]
	if !ok {
		return nil
	}
	r, err := a.page.Rect(ctx, field)
	if err != nil {
		return fmt.Errorf("affordance: field rect: %w", err)
	}
	if err := a.page.PlaceControl(ctx, c.ID, Place(r, a.cfg.Gap, a.cfg.Size)); err != nil {
		return fmt.Errorf("affordance: place control: %w", err)
	}
	return nil
}

// RepositionVisible repositions every visible control. Hidden controls are
// placed when they are next shown.
func (a *Arena) RepositionVisible(ctx context.Context) {
	for field, c := range a.bound {
		if !c.Visible {
			continue
		}
		if err := a.Reposition(ctx, field); err != nil {
			a.cfg.Logger.Debug("affordance: reposition", "field", field, "error", err)
		}
	}
}

// Show positions and reveals the field's control.
func (a *Arena) Show(ctx context.Context, field page.NodeID) error {
	c, ok := a.bound[field]
	if !ok {
		return nil
	}
	if err := a.Reposition(ctx, field); err != nil {
		return err
	}
	if err := a.page.ShowControl(ctx, c.ID); err != nil {
		return fmt.Errorf("affordance: show control: %w", err)
	}
	c.Visible = true
	return nil
}

// Hide conceals the field's control.
func (a *Arena) Hide(ctx context.Context, field page.NodeID) error {
	c, ok := a.bound[field]
	if !ok || !c.Visible {
		return nil
	}
	if err := a.page.HideControl(ctx, c.ID); err != nil {
		return fmt.Errorf("affordance: hide control: %w", err)
	}
	c.Visible = false
	return nil
}

// HideUnlessActive hides the field's control unless focus now sits in that
// control or its menu. Run it after the blur grace delay.
func (a *Arena) HideUnlessActive(ctx context.Context, field page.NodeID) error {
	c, ok := a.bound[field]
	if !ok {
		return nil
	}
	active, err := a.page.ActiveControl(ctx)
	if err != nil {
		return fmt.Errorf("affordance: active control: %w", err)
	}
	if active == c.ID {
		return nil
	}
	return a.Hide(ctx, field)
}

// Len is the number of bound controls.
func (a *Arena) Len() int { return len(a.bound) }

// Idle is the number of pooled, unbound controls.
func (a *Arena) Idle() int { return len(a.free) }

// Close removes every control from the page, bound or pooled, and empties
// the arena. It returns how many controls were removed.
func (a *Arena) Close(ctx context.Context) int {
	removed := 0
	remove := func(c *Control) {
		if err := a.page.RemoveControl(ctx, c.ID); err != nil {
			a.cfg.Logger.Debug("affordance: remove control", "control", c.ID, "error", err)
		}
		removed++
	}
	for _, c := range a.bound {
		remove(c)
	}
	for _, c := range a.free {
		remove(c)
	}
	clear(a.bound)
	clear(a.owner)
	a.free = nil
	return removed
}
