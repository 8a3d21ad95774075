package affordance

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page/pagetest"
)

func TestPlace(t *testing.T) {
	r := page.Rect{Left: 100, Top: 50, Width: 200, Height: 30}
	got := Place(r, 8, 28)
	if got.X != 308 || got.Y != 51 {
		t.Fatalf("Place = %+v, want {308 51}", got)
	}
}

func TestAttachIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New()
	p.AddField("f1", page.KindSingleLine, "")
	a := New(p, Config{})

	c1, err := a.Attach(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	c2, err := a.Attach(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if c1 != c2 {
		t.Fatal("second Attach returned a different control")
	}
	if n := len(p.Controls()); n != 1 {
		t.Fatalf("controls = %d, want 1", n)
	}
	if got := p.Calls("CreateControl"); got != 1 {
		t.Fatalf("CreateControl calls = %d, want 1", got)
	}
}

func TestReleaseReusesPooledControl(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New()
	p.AddField("f1", page.KindSingleLine, "")
	p.AddField("f2", page.KindMultiLine, "")
	a := New(p, Config{})

	c1, err := a.Attach(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	id := c1.ID
	if err := a.Release(ctx, "f1"); err != nil {
		t.Fatal(err)
	}
	if a.Len() != 0 || a.Idle() != 1 {
		t.Fatalf("len=%d idle=%d, want 0/1", a.Len(), a.Idle())
	}

	c2, err := a.Attach(ctx, "f2")
	if err != nil {
		t.Fatal(err)
	}
	if c2.ID != id {
		t.Fatalf("control %s not reused, got %s", id, c2.ID)
	}
	if got := p.Calls("CreateControl"); got != 1 {
		t.Fatalf("CreateControl calls = %d, want 1", got)
	}
	if f, ok := a.FieldOf(id); !ok || f != "f2" {
		t.Fatalf("FieldOf = %q %v", f, ok)
	}
	ctl := p.Controls()[id]
	if ctl.Field != "f2" {
		t.Fatalf("page binding = %q, want f2", ctl.Field)
	}
}

func TestAttachSkipsStalePooledControl(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New()
	p.AddField("f1", page.KindSingleLine, "")
	a := New(p, Config{})

	c1, err := a.Attach(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	stale := c1.ID
	if err := a.Release(ctx, "f1"); err != nil {
		t.Fatal(err)
	}

	// The document is replaced: the pooled control no longer exists.
	p.Navigate()
	p.AddField("x-f1", page.KindSingleLine, "")

	c2, err := a.Attach(ctx, "x-f1")
	if err != nil {
		t.Fatal(err)
	}
	if c2.ID == stale {
		t.Fatalf("stale control %s reused", stale)
	}
	if a.Idle() != 0 {
		t.Fatalf("idle = %d, stale control kept in pool", a.Idle())
	}
	ctl, ok := p.Controls()[c2.ID]
	if !ok || ctl.Field != "x-f1" {
		t.Fatalf("page control = %+v %v, want bound to x-f1", ctl, ok)
	}
}

func TestShrink(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New()
	a := New(p, Config{MaxIdle: 1})
	for _, id := range []page.NodeID{"a", "b", "c"} {
		p.AddField(id, page.KindSingleLine, "")
		if _, err := a.Attach(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range []page.NodeID{"a", "b", "c"} {
		if err := a.Release(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	if removed := a.Shrink(ctx); removed != 2 {
		t.Fatalf("Shrink removed %d, want 2", removed)
	}
	if a.Idle() != 1 || len(p.Controls()) != 1 {
		t.Fatalf("idle=%d page controls=%d, want 1/1", a.Idle(), len(p.Controls()))
	}
}

func TestShowHideUnlessActive(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New()
	p.AddField("f1", page.KindSingleLine, "")
	a := New(p, Config{})
	c, err := a.Attach(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Show(ctx, "f1"); err != nil {
		t.Fatal(err)
	}
	ctl := p.Controls()[c.ID]
	if !ctl.Visible {
		t.Fatal("control not visible after Show")
	}
	if ctl.At.X != 308 {
		t.Fatalf("control x = %v, want 308", ctl.At.X)
	}

	p.SetActive(c.ID)
	if err := a.HideUnlessActive(ctx, "f1"); err != nil {
		t.Fatal(err)
	}
	if !p.Controls()[c.ID].Visible {
		t.Fatal("control hidden while it holds focus")
	}

	p.SetActive("")
	if err := a.HideUnlessActive(ctx, "f1"); err != nil {
		t.Fatal(err)
	}
	if p.Controls()[c.ID].Visible {
		t.Fatal("control still visible after focus left")
	}
}

func TestAttachCreateFailure(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New()
	p.AddField("f1", page.KindSingleLine, "")
	p.FailOn("CreateControl", errors.New("detached"))
	a := New(p, Config{})
	if _, err := a.Attach(ctx, "f1"); err == nil {
		t.Fatal("expected error")
	}
	if a.Len() != 0 {
		t.Fatal("failed attach left a binding")
	}
}

func TestCatalogAndParseAction(t *testing.T) {
	items := Catalog()
	if len(items) != 1+len(correction.Dialects) {
		t.Fatalf("catalog has %d items", len(items))
	}
	if items[0].Action != "correct" {
		t.Fatalf("first item = %q", items[0].Action)
	}
	for _, item := range items {
		a, err := ParseAction(item.Action)
		if err != nil {
			t.Fatalf("ParseAction(%q): %v", item.Action, err)
		}
		if a.String() != item.Action {
			t.Errorf("round trip %q -> %q", item.Action, a.String())
		}
	}
	if a, _ := ParseAction("convert:gulf"); a.Dialect != correction.Gulf {
		t.Errorf("dialect = %q", a.Dialect)
	}
	for _, bad := range []string{"", "convert", "convert:", "convert:klingon", "delete"} {
		if _, err := ParseAction(bad); err == nil {
			t.Errorf("ParseAction(%q) accepted", bad)
		}
	}
}

func TestCloseRemovesBoundAndPooled(t *testing.T) {
	ctx := context.Background()
	p := pagetest.New()
	p.AddField("f1", page.KindSingleLine, "")
	p.AddField("f2", page.KindSingleLine, "")
	a := New(p, Config{})

	for _, f := range []page.NodeID{"f1", "f2"} {
		if _, err := a.Attach(ctx, f); err != nil {
			t.Fatal(err)
		}
	}
	if err := a.Release(ctx, "f2"); err != nil {
		t.Fatal(err)
	}
	if n := a.Close(ctx); n != 2 {
		t.Fatalf("Close removed %d, want 2", n)
	}
	if len(p.Controls()) != 0 || a.Len() != 0 || a.Idle() != 0 {
		t.Fatalf("arena not empty: page=%d bound=%d idle=%d", len(p.Controls()), a.Len(), a.Idle())
	}
}
