package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/fieldwatch/internal/affordance"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page/pagetest"
)

func setup(t *testing.T) (*pagetest.Fake, *Registry) {
	t.Helper()
	p := pagetest.New()
	p.AddField("in", page.KindSingleLine, "")
	p.AddField("ta", page.KindMultiLine, "")
	p.AddField("ce", page.KindRichEditable, "")
	arena := affordance.New(p, affordance.Config{})
	return p, New(p, arena, nil)
}

func TestScanAttachesEnabledKinds(t *testing.T) {
	ctx := context.Background()
	p, r := setup(t)

	res, err := r.Scan(ctx, correction.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Attached) != 3 {
		t.Fatalf("attached %d, want 3", len(res.Attached))
	}
	for _, id := range []page.NodeID{"in", "ta", "ce"} {
		f, _ := p.Field(id)
		if !f.Processed {
			t.Errorf("%s not marked processed", id)
		}
		if _, _, ok := p.ControlFor(id); !ok {
			t.Errorf("%s has no control", id)
		}
	}
}

func TestScanIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p, r := setup(t)
	s := correction.DefaultSettings()

	if _, err := r.Scan(ctx, s); err != nil {
		t.Fatal(err)
	}
	before := len(p.Controls())
	res, err := r.Scan(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Attached) != 0 || len(res.Detached) != 0 {
		t.Fatalf("second scan changed state: %+v", res)
	}
	if after := len(p.Controls()); after != before {
		t.Fatalf("controls %d -> %d", before, after)
	}
}

func TestScanDisablingInputsRemovesControl(t *testing.T) {
	ctx := context.Background()
	p, r := setup(t)

	if _, err := r.Scan(ctx, correction.DefaultSettings()); err != nil {
		t.Fatal(err)
	}
	s := correction.DefaultSettings()
	s.ProcessInputs = false
	res, err := r.Scan(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Detached) != 1 || res.Detached[0] != "in" {
		t.Fatalf("detached = %v, want [in]", res.Detached)
	}
	f, _ := p.Field("in")
	if f.Processed {
		t.Error("input still marked processed")
	}
	if _, _, ok := p.ControlFor("in"); ok {
		t.Error("input still has a bound control")
	}
	if _, ok := r.Lookup("in"); ok {
		t.Error("input still registered")
	}
	if r.Len() != 2 {
		t.Fatalf("registered = %d, want 2", r.Len())
	}
}

func TestScanInputsDisabledFromStart(t *testing.T) {
	ctx := context.Background()
	p, r := setup(t)
	s := correction.DefaultSettings()
	s.ProcessInputs = false

	if _, err := r.Scan(ctx, s); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := p.ControlFor("in"); ok {
		t.Fatal("plain input got a control with ProcessInputs=false")
	}
	if f, _ := p.Field("in"); f.Processed {
		t.Fatal("plain input marked with ProcessInputs=false")
	}
}

func TestScanDropsRemovedNodes(t *testing.T) {
	ctx := context.Background()
	p, r := setup(t)
	if _, err := r.Scan(ctx, correction.DefaultSettings()); err != nil {
		t.Fatal(err)
	}

	p.RemoveField("ta")
	res, err := r.Scan(ctx, correction.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Detached) != 1 || res.Detached[0] != "ta" {
		t.Fatalf("detached = %v, want [ta]", res.Detached)
	}

	p.AddField("new", page.KindMultiLine, "")
	if _, err := r.Scan(ctx, correction.DefaultSettings()); err != nil {
		t.Fatal(err)
	}
	if got := p.Calls("CreateControl"); got != 3 {
		t.Fatalf("CreateControl calls = %d, want 3 (pooled control reused)", got)
	}
}

func TestScanEmptyDocument(t *testing.T) {
	p := pagetest.New()
	r := New(p, affordance.New(p, affordance.Config{}), nil)
	res, err := r.Scan(context.Background(), correction.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Attached)+len(res.Detached) != 0 {
		t.Fatalf("res = %+v", res)
	}
}

func TestScanEnumerationFailure(t *testing.T) {
	p, r := setup(t)
	p.FailOn("Fields", errors.New("target closed"))
	if _, err := r.Scan(context.Background(), correction.DefaultSettings()); err == nil {
		t.Fatal("expected error")
	}
}

func TestScanAttachFailureRollsBackMark(t *testing.T) {
	p, r := setup(t)
	p.FailOn("CreateControl", errors.New("no body"))
	res, err := r.Scan(context.Background(), correction.DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Attached) != 0 {
		t.Fatalf("attached = %v", res.Attached)
	}
	if f, _ := p.Field("in"); f.Processed {
		t.Fatal("mark kept after failed attach")
	}
}

func TestResetUnmarksEverything(t *testing.T) {
	ctx := context.Background()
	p, r := setup(t)
	if _, err := r.Scan(ctx, correction.DefaultSettings()); err != nil {
		t.Fatal(err)
	}
	ids := r.Reset(ctx)
	if len(ids) != 3 || r.Len() != 0 {
		t.Fatalf("reset %d fields, %d left", len(ids), r.Len())
	}
	for _, id := range ids {
		if f, _ := p.Field(id); f.Processed {
			t.Errorf("%s still marked", id)
		}
		if _, _, ok := p.ControlFor(id); ok {
			t.Errorf("%s still bound", id)
		}
	}
}
