package validate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
)

type stubMessenger struct {
	alive bool
	send  func(ctx context.Context, msg correction.Message) (correction.Response, error)
}

func (m stubMessenger) Send(ctx context.Context, msg correction.Message) (correction.Response, error) {
	return m.send(ctx, msg)
}

func (m stubMessenger) Alive() bool { return m.alive }

func wait(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
		return Result{}
	}
}

func TestShouldValidate(t *testing.T) {
	cases := map[string]bool{
		"":        false,
		"ا":       false,
		"اب":      true,
		"ab":      false,
		"انا هنا": true,
	}
	for in, want := range cases {
		if got := ShouldValidate(in); got != want {
			t.Errorf("ShouldValidate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSanitize(t *testing.T) {
	text := "انا هاذا"
	in := []correction.FlaggedRange{
		{Word: "هاذا", StartIndex: 4, EndIndex: 8},
		{Word: "x", StartIndex: 8, EndIndex: 9},
		{Word: "x", StartIndex: 3, EndIndex: 3},
		{Word: "x", StartIndex: -2, EndIndex: 1},
		{Word: "انا", StartIndex: 0, EndIndex: 3},
	}
	out := Sanitize(text, in)
	if len(out) != 2 {
		t.Fatalf("kept %d ranges, want 2: %+v", len(out), out)
	}
	for _, r := range out {
		if !(r.StartIndex < r.EndIndex && r.EndIndex <= correction.Len(text)) {
			t.Errorf("invalid range kept: %+v", r)
		}
	}
}

func TestRequestDeliversSanitizedRanges(t *testing.T) {
	results := make(chan Result, 1)
	m := stubMessenger{alive: true, send: func(ctx context.Context, msg correction.Message) (correction.Response, error) {
		if msg.Type != correction.ValidateText {
			t.Errorf("type = %s", msg.Type)
		}
		return correction.Response{IncorrectWords: []correction.FlaggedRange{
			{Word: "هاذا", StartIndex: 4, EndIndex: 8},
			{Word: "bad", StartIndex: 6, EndIndex: 40},
		}}, nil
	}}
	v := New(m, results, Config{})
	if !v.Request(context.Background(), "f1", "انا هاذا") {
		t.Fatal("request rejected")
	}
	res := wait(t, results)
	if !v.Current(res) {
		t.Fatal("latest result not current")
	}
	if res.Err != nil || len(res.Ranges) != 1 || res.Ranges[0].StartIndex != 4 {
		t.Fatalf("result = %+v", res)
	}
}

func TestRequestGuard(t *testing.T) {
	var calls atomic.Int64
	m := stubMessenger{alive: true, send: func(ctx context.Context, msg correction.Message) (correction.Response, error) {
		calls.Add(1)
		return correction.Response{}, nil
	}}
	v := New(m, make(chan Result, 1), Config{})
	if v.Request(context.Background(), "f1", "ا") || v.Request(context.Background(), "f1", "hello") {
		t.Fatal("guard let text through")
	}
	if calls.Load() != 0 {
		t.Fatal("messenger called")
	}
}

func TestRequestTimeout(t *testing.T) {
	results := make(chan Result, 1)
	block := make(chan struct{})
	defer close(block)
	m := stubMessenger{alive: true, send: func(ctx context.Context, msg correction.Message) (correction.Response, error) {
		<-block
		return correction.Response{}, nil
	}}
	v := New(m, results, Config{Timeout: 30 * time.Millisecond})
	v.Request(context.Background(), "f1", "انا هاذا")
	res := wait(t, results)
	if !errors.Is(res.Err, ErrTimeout) {
		t.Fatalf("err = %v", res.Err)
	}
}

func TestRequestNotAlive(t *testing.T) {
	results := make(chan Result, 1)
	m := stubMessenger{alive: false}
	v := New(m, results, Config{})
	v.Request(context.Background(), "f1", "انا هاذا")
	if res := wait(t, results); !errors.Is(res.Err, ErrNotAlive) {
		t.Fatalf("err = %v", res.Err)
	}
}

func TestInvalidate(t *testing.T) {
	results := make(chan Result, 1)
	m := stubMessenger{alive: true, send: func(ctx context.Context, msg correction.Message) (correction.Response, error) {
		return correction.Response{}, nil
	}}
	v := New(m, results, Config{})
	v.Request(context.Background(), "f1", "انا هاذا")
	v.Invalidate("f1")
	if v.Current(wait(t, results)) {
		t.Fatal("invalidated result still current")
	}
}

func TestDebouncerTrailing(t *testing.T) {
	fired := make(chan uint64, 4)
	d := NewDebouncer(40*time.Millisecond, func(field page.NodeID, gen uint64) { fired <- gen })

	d.Touch("f1")
	time.Sleep(10 * time.Millisecond)
	d.Touch("f1")
	time.Sleep(10 * time.Millisecond)
	d.Touch("f1")

	var gen uint64
	select {
	case gen = <-fired:
	case <-time.After(time.Second):
		t.Fatal("debouncer never fired")
	}
	if !d.Due("f1", gen) {
		t.Fatal("latest generation not due")
	}
	if d.Due("f1", gen) {
		t.Fatal("generation consumed twice")
	}
	select {
	case g := <-fired:
		if d.Due("f1", g) {
			t.Fatalf("superseded generation %d due", g)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncerCancel(t *testing.T) {
	fired := make(chan uint64, 1)
	d := NewDebouncer(20*time.Millisecond, func(field page.NodeID, gen uint64) { fired <- gen })
	d.Touch("f1")
	d.Cancel("f1")
	if d.Pending("f1") {
		t.Fatal("still pending after Cancel")
	}
	select {
	case g := <-fired:
		if d.Due("f1", g) {
			t.Fatal("cancelled touch became due")
		}
	case <-time.After(60 * time.Millisecond):
	}
}
