package changes

import (
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
)

func TestRelevant(t *testing.T) {
	tests := []struct {
		name    string
		records []page.Record
		want    bool
	}{
		{"text input", []page.Record{{HTML: `<input type="text">`}}, true},
		{"untyped input", []page.Record{{HTML: `<input name="q">`}}, true},
		{"password input", []page.Record{{HTML: `<input type="password">`}}, false},
		{"nested textarea", []page.Record{{HTML: `<div><form><textarea></textarea></form></div>`}}, true},
		{"editable region", []page.Record{{HTML: `<section><p contenteditable="true">x</p></section>`}}, true},
		{"editable false", []page.Record{{HTML: `<p contenteditable="false">x</p>`}}, false},
		{"plain markup", []page.Record{{HTML: `<div><span>نص</span></div>`}}, false},
		{"owned target", []page.Record{{TargetOwned: true, HTML: `<textarea></textarea>`}}, false},
		{"owned root", []page.Record{{HTML: `<div data-lasen-owned="control"><input type="text"></div>`}}, false},
		{"owned subtree skipped", []page.Record{{HTML: `<div><div data-lasen-owned="menu"><input></div></div>`}}, false},
		{"one of many", []page.Record{
			{HTML: `<span></span>`},
			{TargetOwned: true, HTML: `<input>`},
			{HTML: `<div><textarea></textarea></div>`},
		}, true},
		{"truncated without visible candidate", []page.Record{{Truncated: true, HTML: `<div><p>` + strings.Repeat("نص ", 100)}}, true},
		{"truncated owned root", []page.Record{{Truncated: true, HTML: `<div data-lasen-owned="overlay"><span>`}}, false},
		{"truncated owned target", []page.Record{{TargetOwned: true, Truncated: true, HTML: `<div>`}}, false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Relevant(tt.records); got != tt.want {
				t.Errorf("Relevant = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWatcherDebounce(t *testing.T) {
	w := New(Config{Window: 20 * time.Millisecond})
	if w.C() != nil {
		t.Fatal("timer channel set before any batch")
	}

	if w.Observe([]page.Record{{HTML: `<b>x</b>`}}) {
		t.Fatal("irrelevant batch scheduled a rescan")
	}
	if w.Pending() {
		t.Fatal("pending after irrelevant batch")
	}

	relevant := []page.Record{{HTML: `<textarea></textarea>`}}
	w.Observe(relevant)
	w.Observe(relevant)
	w.Observe(relevant)

	select {
	case <-w.C():
	case <-time.After(time.Second):
		t.Fatal("rescan window never expired")
	}
	if n := w.Fired(); n != 3 {
		t.Fatalf("coalesced = %d, want 3", n)
	}
	if w.Pending() || w.C() != nil {
		t.Fatal("watcher not reset after firing")
	}
}

func TestWatcherStop(t *testing.T) {
	w := New(Config{Window: 10 * time.Millisecond})
	w.Observe([]page.Record{{HTML: `<input>`}})
	w.Stop()
	if w.Pending() {
		t.Fatal("pending after Stop")
	}
	if w.Fired() != 0 {
		t.Fatal("Stop kept the pending count")
	}
}
