// Package changes watches mutation batches for newly inserted editable
// fields and schedules a debounced registry rescan.
package changes

import (
	"log/slog"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
)

// DefaultWindow is the quiet period before a rescan.
const DefaultWindow = 500 * time.Millisecond

// Config controls the watcher.
type Config struct {
	// Window is the debounce time. Default: 500ms.
	Window time.Duration
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Watcher decides which mutation batches need a rescan and debounces them.
// Not safe for concurrent use: the owning loop calls Observe, selects on C
// and calls Fired when it fires.
type Watcher struct {
	cfg     Config
	timer   *time.Timer
	timerCh <-chan time.Time
	pending int
}

// New returns a watcher.
func New(cfg Config) *Watcher {
	cfg.defaults()
	return &Watcher{cfg: cfg}
}

// Observe inspects one batch. When any inserted, non-injected node is or
// contains a candidate field, the rescan window (re)starts and Observe
// returns true.
func (w *Watcher) Observe(records []page.Record) bool {
	if !Relevant(records) {
		return false
	}
	w.pending++
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.NewTimer(w.cfg.Window)
	w.timerCh = w.timer.C
	return true
}

// C fires when the rescan window expires. Nil while nothing is pending.
func (w *Watcher) C() <-chan time.Time {
	return w.timerCh
}

// Fired resets the watcher after C fired and returns how many relevant
// batches were folded into this rescan.
func (w *Watcher) Fired() int {
	n := w.pending
	w.pending = 0
	w.timer = nil
	w.timerCh = nil
	if n > 1 {
		w.cfg.Logger.Debug("changes: batches coalesced", "batches", n)
	}
	return n
}

// Pending reports whether a rescan is scheduled.
func (w *Watcher) Pending() bool {
	return w.timerCh != nil
}

// Stop drops any scheduled rescan.
func (w *Watcher) Stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = nil
	w.timerCh = nil
	w.pending = 0
}

// Relevant reports whether a batch inserted at least one candidate field
// outside injected nodes. A truncated record counts as relevant unless its
// root is injected.
func Relevant(records []page.Record) bool {
	for _, rec := range records {
		if rec.TargetOwned {
			continue
		}
		root, ok := parse(rec.HTML)
		if ok && SelfAuthored(root) {
			continue
		}
		// A cut fragment may hide candidates past the cut.
		if rec.Truncated {
			return true
		}
		if ok && containsCandidate(root) {
			return true
		}
	}
	return false
}

// parse returns the inserted element.
func parse(fragment string) (*html.Node, bool) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, false
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return n, true
		}
	}
	return nil, false
}

// SelfAuthored reports whether n is one of our injected nodes.
func SelfAuthored(n *html.Node) bool {
	_, ok := attr(n, page.AttrOwned)
	return ok
}

// containsCandidate walks n's subtree, skipping injected subtrees.
func containsCandidate(n *html.Node) bool {
	if n.Type == html.ElementNode {
		if SelfAuthored(n) {
			return false
		}
		if Candidate(n) {
			return true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if containsCandidate(c) {
			return true
		}
	}
	return false
}

// Candidate reports whether element n would be picked up by a registry scan.
func Candidate(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Input:
		typ, ok := attr(n, "type")
		return !ok || strings.EqualFold(typ, "text")
	case atom.Textarea:
		return true
	}
	v, ok := attr(n, "contenteditable")
	return ok && strings.EqualFold(v, "true")
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
