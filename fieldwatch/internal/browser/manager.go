// Package browser manages the Chrome instance fieldwatch instruments:
// launch or attach, JS heap monitoring, recycling, and tab opening.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrClosed is returned once the manager has been closed.
var ErrClosed = errors.New("browser: manager is closed")

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the DevTools URL of a running Chrome (ws:// or the
	// http://host:port debugging endpoint). Empty launches a local Chrome.
	RemoteURL string

	// MemoryLimit is the summed JS heap, in bytes, above which a launched
	// Chrome is recycled. Default: 1GB.
	MemoryLimit int64

	// RecycleInterval is the maximum lifetime of a launched Chrome. Default: 4h.
	RecycleInterval time.Duration

	// MonitorInterval is how often heap and age are checked. Default: 30s.
	MonitorInterval time.Duration

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	// Headful runs Chrome with a window on an Xvfb display.
	Headful     bool
	XvfbDisplay string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = 30 * time.Second
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome connection. Safe for concurrent use.
type Manager struct {
	cfg       Config
	mu        sync.RWMutex
	browser   *rod.Browser
	lnch      *launcher.Launcher
	xvfb      *exec.Cmd
	startAt   time.Time
	closed    bool
	onRecycle func(*rod.Browser)
}

// NewManager creates a Manager. Call Start to connect.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// OnRecycle registers fn to run with the new browser after a recycle, so
// instrumented pages can be reopened.
func (m *Manager) OnRecycle(fn func(*rod.Browser)) {
	m.mu.Lock()
	m.onRecycle = fn
	m.mu.Unlock()
}

// Remote reports whether the manager attached to an existing Chrome.
func (m *Manager) Remote() bool { return m.cfg.RemoteURL != "" }

// Start launches or attaches to Chrome and starts the monitor goroutine,
// which stops with ctx.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	b, err := m.launch(ctx)
	if err != nil {
		return nil, err
	}
	m.browser = b
	m.startAt = time.Now()

	go m.monitorLoop(ctx)
	return b, nil
}

// Browser returns the current browser handle.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Recycle restarts a launched Chrome. Attached browsers belong to someone
// else and are never restarted.
func (m *Manager) Recycle(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.Remote() {
		m.mu.Unlock()
		return fmt.Errorf("browser: recycle: attached browser")
	}
	log := m.cfg.Logger
	log.Info("browser: recycling", "uptime", time.Since(m.startAt))

	m.cleanup()
	b, err := m.launch(ctx)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	fn := m.onRecycle
	m.mu.Unlock()

	if fn != nil {
		fn(b)
	}
	log.Info("browser: recycled")
	return nil
}

// Close disconnects and, for a launched Chrome, kills it and Xvfb.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		u, err := launcher.ResolveURL(m.cfg.RemoteURL)
		if err != nil {
			return nil, fmt.Errorf("browser: resolve remote: %w", err)
		}
		wsURL = u
		log.Info("browser: attaching to remote", "url", wsURL)
	} else {
		if m.cfg.Headful {
			if err := m.startXvfb(ctx); err != nil {
				return nil, fmt.Errorf("browser: xvfb: %w", err)
			}
		}
		l := launcher.New().Headless(!m.cfg.Headful)
		if m.cfg.Headful {
			l = l.Env("DISPLAY=" + m.cfg.XvfbDisplay)
		}
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched chrome", "url", wsURL, "headful", m.cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil && !m.Remote() {
		m.browser.Close()
	}
	m.browser = nil
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
}

func (m *Manager) monitorLoop(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		closed, b, startAt := m.closed, m.browser, m.startAt
		m.mu.RUnlock()
		if closed {
			return
		}
		if b == nil {
			continue
		}

		used, err := heapUsage(b)
		if err != nil {
			log.Debug("browser: heap check failed", "error", err)
		} else {
			log.Debug("browser: heap", "used", used, "limit", m.cfg.MemoryLimit)
		}
		if m.Remote() {
			if used > m.cfg.MemoryLimit {
				log.Warn("browser: attached browser over memory limit", "used", used, "limit", m.cfg.MemoryLimit)
			}
			continue
		}

		reason := ""
		switch {
		case time.Since(startAt) > m.cfg.RecycleInterval:
			reason = "interval"
		case used > m.cfg.MemoryLimit:
			reason = "memory"
		}
		if reason == "" {
			continue
		}
		log.Info("browser: recycle triggered", "reason", reason, "used", used)
		if err := m.Recycle(ctx); err != nil {
			log.Error("browser: recycle failed", "error", err)
		}
	}
}

// heapUsage sums JSHeapUsedSize over every open page.
func heapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, fmt.Errorf("browser: list pages: %w", err)
	}
	if len(pages) == 0 {
		return 0, fmt.Errorf("browser: no pages for heap check")
	}
	var total int64
	for _, p := range pages {
		if err := (proto.PerformanceEnable{}).Call(p); err != nil {
			continue
		}
		res, err := proto.PerformanceGetMetrics{}.Call(p)
		if err != nil {
			continue
		}
		total += jsHeap(res.Metrics)
	}
	return total, nil
}

func jsHeap(metrics []*proto.PerformanceMetric) int64 {
	for _, m := range metrics {
		if m != nil && m.Name == "JSHeapUsedSize" {
			return int64(m.Value)
		}
	}
	return 0
}
