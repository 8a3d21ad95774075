package page

import (
	"strings"
	"testing"
)

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent(`{"type":"blur","field":"f3","to_control":true}`)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventBlur || ev.Field != "f3" || !ev.ToControl {
		t.Fatalf("event = %+v", ev)
	}

	ev, err = ParseEvent(`{"type":"mutation","records":[{"target_owned":true,"html":"<div></div>"},{"html":"<input>"}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if len(ev.Records) != 2 || !ev.Records[0].TargetOwned || ev.Records[1].HTML != "<input>" {
		t.Fatalf("records = %+v", ev.Records)
	}

	ev, err = ParseEvent(`{"type":"mutation","records":[{"html":"<div><p>","truncated":true}]}`)
	if err != nil {
		t.Fatal(err)
	}
	if !ev.Records[0].Truncated {
		t.Fatalf("truncated flag lost: %+v", ev.Records)
	}

	ev, err = ParseEvent(`{"type":"reset"}`)
	if err != nil || ev.Type != EventReset {
		t.Fatalf("reset event = %+v, %v", ev, err)
	}

	if _, err := ParseEvent(`{"field":"f1"}`); err == nil {
		t.Error("expected error for missing type")
	}
	if _, err := ParseEvent(`not json`); err == nil {
		t.Error("expected error for bad payload")
	}
}

func TestShimEmbedded(t *testing.T) {
	if !strings.HasPrefix(strings.TrimSpace(shimJS), "(fresh) =>") {
		t.Fatal("shim must be a function expression taking the fresh flag")
	}
	if !strings.Contains(shimJS, "type: '"+string(EventReset)+"'") {
		t.Error("shim never announces a new document")
	}
	for _, want := range []string{bindingName, AttrOwned, AttrField, AttrControl} {
		if !strings.Contains(shimJS, want) {
			t.Errorf("shim does not reference %q", want)
		}
	}
}

func TestRect(t *testing.T) {
	r := Rect{Left: 10, Top: 20, Width: 100, Height: 30}
	if r.Right() != 110 || r.Bottom() != 50 {
		t.Fatalf("right=%v bottom=%v", r.Right(), r.Bottom())
	}
	if !(Style{Direction: "rtl"}).RTL() {
		t.Error("rtl not detected")
	}
}
