package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is a browser page the engine instruments.
type Tab struct {
	Page *rod.Page
	ID   string
	URL  string

	hijack *rod.HijackRouter
	// opened is false for tabs found in an attached browser; those are
	// left open on Close.
	opened bool
}

// OpenTab creates a stealth tab, applies resource blocking and navigates
// to pageURL.
func OpenTab(ctx context.Context, mgr *Manager, id, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	t := &Tab{Page: page, ID: id, URL: pageURL, opened: true}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		t.hijack = blockResources(page, mgr.cfg.ResourceBlocking)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return t, nil
}

// ExistingTabs lists the regular web pages already open in the browser.
func ExistingTabs(mgr *Manager) ([]*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	pages, err := b.Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list pages: %w", err)
	}
	var tabs []*Tab
	for _, p := range pages {
		info, err := p.Info()
		if err != nil || !instrumentable(info) {
			continue
		}
		tabs = append(tabs, &Tab{Page: p, ID: string(p.TargetID), URL: info.URL})
	}
	return tabs, nil
}

func instrumentable(info *proto.TargetTargetInfo) bool {
	if info.Type != proto.TargetTargetInfoTypePage {
		return false
	}
	return strings.HasPrefix(info.URL, "http://") || strings.HasPrefix(info.URL, "https://")
}

// Close stops request interception and closes tabs this process opened.
func (t *Tab) Close() error {
	if t.hijack != nil {
		t.hijack.Stop()
		t.hijack = nil
	}
	if t.Page != nil && t.opened {
		return t.Page.Close()
	}
	return nil
}
