package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/fieldwatch/internal/affordance"
)

type fakeMessenger struct {
	alive atomic.Bool
	calls atomic.Int64
	send  func(ctx context.Context, msg correction.Message) (correction.Response, error)
}

func newMessenger(send func(ctx context.Context, msg correction.Message) (correction.Response, error)) *fakeMessenger {
	m := &fakeMessenger{send: send}
	m.alive.Store(true)
	return m
}

func (m *fakeMessenger) Send(ctx context.Context, msg correction.Message) (correction.Response, error) {
	m.calls.Add(1)
	return m.send(ctx, msg)
}

func (m *fakeMessenger) Alive() bool { return m.alive.Load() }

func receive(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome delivered")
		return Outcome{}
	}
}

func TestDispatchSuccess(t *testing.T) {
	results := make(chan Outcome, 4)
	m := newMessenger(func(ctx context.Context, msg correction.Message) (correction.Response, error) {
		if msg.Type != correction.CorrectText {
			t.Errorf("type = %s", msg.Type)
		}
		return correction.Response{CorrectedText: "أنا هنا"}, nil
	})
	d := New(m, results, Config{})

	if !d.Dispatch(context.Background(), "f1", affordance.Correct, "انا هنا") {
		t.Fatal("eligible text not dispatched")
	}
	if d.State("f1") != Sent {
		t.Fatalf("state = %s, want sent", d.State("f1"))
	}
	out := receive(t, results)
	if !d.Accept(out) {
		t.Fatal("current outcome rejected")
	}
	if out.State != Succeeded || out.Text != "أنا هنا" {
		t.Fatalf("outcome = %+v", out)
	}
	d.Done(out)
	if d.State("f1") != Idle {
		t.Fatalf("state = %s, want idle", d.State("f1"))
	}
}

func TestDispatchIneligibleIsNoop(t *testing.T) {
	results := make(chan Outcome, 1)
	m := newMessenger(func(ctx context.Context, msg correction.Message) (correction.Response, error) {
		return correction.Response{}, nil
	})
	d := New(m, results, Config{})
	for _, text := range []string{"", "   ", "hello world"} {
		if d.Dispatch(context.Background(), "f1", affordance.Correct, text) {
			t.Errorf("Dispatch(%q) returned true", text)
		}
	}
	if m.calls.Load() != 0 {
		t.Fatal("messenger called for ineligible text")
	}
}

func TestDispatchTimeoutUsesFallback(t *testing.T) {
	results := make(chan Outcome, 1)
	release := make(chan struct{})
	defer close(release)
	m := newMessenger(func(ctx context.Context, msg correction.Message) (correction.Response, error) {
		<-release
		return correction.Response{CorrectedText: "late"}, nil
	})
	d := New(m, results, Config{CorrectTimeout: 50 * time.Millisecond})

	start := time.Now()
	d.Dispatch(context.Background(), "f1", affordance.Correct, "انا هاذا")
	out := receive(t, results)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("timeout outcome took %v", elapsed)
	}
	if out.State != TimedOut {
		t.Fatalf("state = %s, want timed_out", out.State)
	}
	if out.Text != "أنا هذا" {
		t.Fatalf("text = %q, want fallback", out.Text)
	}
	if !errors.Is(out.Err, ErrTimeout) {
		t.Fatalf("err = %v", out.Err)
	}
}

func TestDispatchFailureUsesFallback(t *testing.T) {
	results := make(chan Outcome, 1)
	m := newMessenger(func(ctx context.Context, msg correction.Message) (correction.Response, error) {
		return correction.Response{}, errors.New("connection refused")
	})
	d := New(m, results, Config{})
	d.Dispatch(context.Background(), "f1", affordance.Correct, "انا هاذا")
	out := receive(t, results)
	if out.State != Failed || out.Text != "أنا هذا" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestDispatchNotAlive(t *testing.T) {
	results := make(chan Outcome, 1)
	m := newMessenger(func(ctx context.Context, msg correction.Message) (correction.Response, error) {
		return correction.Response{CorrectedText: "x"}, nil
	})
	m.alive.Store(false)
	d := New(m, results, Config{})
	d.Dispatch(context.Background(), "f1", affordance.Correct, "انا")
	out := receive(t, results)
	if !errors.Is(out.Err, ErrNotAlive) || out.Text != "أنا" {
		t.Fatalf("outcome = %+v", out)
	}
	if m.calls.Load() != 0 {
		t.Fatal("messenger called after invalidation")
	}
}

func TestDispatchConvertFailureAlerts(t *testing.T) {
	results := make(chan Outcome, 1)
	m := newMessenger(func(ctx context.Context, msg correction.Message) (correction.Response, error) {
		if msg.Type != correction.ConvertDialect || msg.Dialect != correction.Gulf {
			t.Errorf("msg = %+v", msg)
		}
		return correction.Response{ConvertedText: "نص", Success: correction.Bool(false), Error: "Timeout"}, nil
	})
	d := New(m, results, Config{})
	d.Dispatch(context.Background(), "f1", affordance.Convert(correction.Gulf), "نص عربي")
	out := receive(t, results)
	if out.State != Failed {
		t.Fatalf("state = %s", out.State)
	}
	if out.Text != "" || out.Alert == "" {
		t.Fatalf("outcome = %+v, want alert and no text", out)
	}
}

func TestDispatchConvertSuccess(t *testing.T) {
	results := make(chan Outcome, 1)
	m := newMessenger(func(ctx context.Context, msg correction.Message) (correction.Response, error) {
		return correction.Response{ConvertedText: "شلونك", Success: correction.Bool(true)}, nil
	})
	d := New(m, results, Config{})
	d.Dispatch(context.Background(), "f1", affordance.Convert(correction.Gulf), "كيف حالك")
	out := receive(t, results)
	if out.State != Succeeded || out.Text != "شلونك" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestStaleOutcomeDropped(t *testing.T) {
	results := make(chan Outcome, 2)
	first := make(chan struct{})
	m := newMessenger(func(ctx context.Context, msg correction.Message) (correction.Response, error) {
		if msg.Text == "انا اول" {
			<-first
			return correction.Response{CorrectedText: "old"}, nil
		}
		return correction.Response{CorrectedText: "new"}, nil
	})
	d := New(m, results, Config{})

	d.Dispatch(context.Background(), "f1", affordance.Correct, "انا اول")
	d.Dispatch(context.Background(), "f1", affordance.Correct, "انا ثاني")

	newest := receive(t, results)
	if newest.Text != "new" || !d.Accept(newest) {
		t.Fatalf("newest = %+v", newest)
	}
	close(first)
	old := receive(t, results)
	if old.Text != "old" {
		t.Fatalf("old = %+v", old)
	}
	if d.Accept(old) {
		t.Fatal("stale outcome accepted")
	}
}

func TestForgetMakesInFlightStale(t *testing.T) {
	results := make(chan Outcome, 1)
	m := newMessenger(func(ctx context.Context, msg correction.Message) (correction.Response, error) {
		return correction.Response{CorrectedText: "x"}, nil
	})
	d := New(m, results, Config{})
	d.Dispatch(context.Background(), "f1", affordance.Correct, "انا")
	d.Forget("f1")
	if d.Accept(receive(t, results)) {
		t.Fatal("outcome for forgotten field accepted")
	}
}

func TestSendPanicIsContained(t *testing.T) {
	results := make(chan Outcome, 1)
	m := newMessenger(func(ctx context.Context, msg correction.Message) (correction.Response, error) {
		panic("boom")
	})
	d := New(m, results, Config{})
	d.Dispatch(context.Background(), "f1", affordance.Correct, "انا")
	out := receive(t, results)
	if out.State != Failed || out.Text != "أنا" {
		t.Fatalf("outcome = %+v", out)
	}
}
