package fieldwatch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/lasen/background"
	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/dbopen"
	"github.com/hazyhaar/lasen/fieldwatch/internal/browser"
	"github.com/hazyhaar/lasen/fieldwatch/internal/config"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
)

// FileConfig is the daemon configuration read from YAML.
type FileConfig = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig names a page to instrument.
type PageConfig = config.PageConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*FileConfig, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns the configuration used without a file.
func DefaultConfig() *FileConfig {
	return config.Default()
}

// Daemon ties the browser, the broker, the settings store and the engine
// together. Create one per process.
type Daemon struct {
	cfg    *FileConfig
	logger *slog.Logger
	setup  []func(*background.Router)

	mu   sync.Mutex
	eng  *Engine
	mgr  *browser.Manager
	tabs map[string]*instrumented
}

type instrumented struct {
	tab *browser.Tab
	rod *page.Rod
}

// NewDaemon creates a daemon from cfg. Nothing starts until Run.
func NewDaemon(cfg *FileConfig, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{cfg: cfg, logger: logger, tabs: make(map[string]*instrumented)}
}

// OnRouter registers fn to run on the broker's router before any page is
// attached, typically to add in-process handlers.
func (d *Daemon) OnRouter(fn func(*background.Router)) {
	d.setup = append(d.setup, fn)
}

// Engine returns the running engine, or nil before Run.
func (d *Daemon) Engine() *Engine {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eng
}

// Run starts everything and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	db, err := dbopen.Open(d.cfg.SettingsDB,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(config.Schema),
	)
	if err != nil {
		return fmt.Errorf("fieldwatch: open settings: %w", err)
	}
	defer db.Close()

	settings, err := initialSettings(ctx, db, d.cfg)
	if err != nil {
		return err
	}

	bcfg := d.cfg.Broker
	bcfg.Logger = d.logger
	broker, err := background.New(ctx, bcfg)
	if err != nil {
		return fmt.Errorf("fieldwatch: broker: %w", err)
	}
	defer broker.Close()
	for _, fn := range d.setup {
		fn(broker.Router())
	}

	eng := New(broker, engineConfig(d.cfg, settings, d.logger))
	defer eng.Close()

	mgr := browser.NewManager(browserConfig(d.cfg, d.logger))
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("fieldwatch: start browser: %w", err)
	}
	defer mgr.Close()

	d.mu.Lock()
	d.eng, d.mgr = eng, mgr
	d.mu.Unlock()
	defer d.release()

	mgr.OnRecycle(func(*rod.Browser) { d.instrument(ctx) })
	d.instrument(ctx)

	config.WatchSettings(ctx, db, config.WatchOptions{
		Interval: d.cfg.SettingsPoll,
		Logger:   d.logger,
	}, eng.UpdateSettings)
	return nil
}

// instrument drops every instrumented tab and attaches the configured
// pages again, plus the browser's own tabs when AllTabs is set.
func (d *Daemon) instrument(ctx context.Context) {
	d.release()

	d.mu.Lock()
	eng, mgr := d.eng, d.mgr
	d.mu.Unlock()
	if eng == nil || mgr == nil {
		return
	}

	var tabs []*browser.Tab
	for _, pc := range d.cfg.Pages {
		tab, err := browser.OpenTab(ctx, mgr, pc.ID, pc.URL)
		if err != nil {
			d.logger.Error("fieldwatch: open page failed", "page", pc.ID, "url", pc.URL, "error", err)
			continue
		}
		tabs = append(tabs, tab)
	}
	if d.cfg.Browser.AllTabs {
		existing, err := browser.ExistingTabs(mgr)
		if err != nil {
			d.logger.Error("fieldwatch: list tabs failed", "error", err)
		}
		tabs = append(tabs, existing...)
	}

	for _, tab := range tabs {
		r, err := page.Attach(ctx, tab.Page, d.logger)
		if err != nil {
			d.logger.Error("fieldwatch: inject failed", "page", tab.ID, "error", err)
			tab.Close()
			continue
		}
		if err := eng.Attach(ctx, tab.ID, r); err != nil {
			d.logger.Error("fieldwatch: attach failed", "page", tab.ID, "error", err)
			r.Close()
			tab.Close()
			continue
		}
		d.mu.Lock()
		d.tabs[tab.ID] = &instrumented{tab: tab, rod: r}
		d.mu.Unlock()
	}
}

func (d *Daemon) release() {
	d.mu.Lock()
	tabs := d.tabs
	d.tabs = make(map[string]*instrumented)
	eng := d.eng
	d.mu.Unlock()

	for id, it := range tabs {
		if eng != nil {
			eng.Detach(id)
		}
		it.rod.Close()
		if err := it.tab.Close(); err != nil {
			d.logger.Debug("fieldwatch: close tab", "page", id, "error", err)
		}
	}
}

// initialSettings seeds the store with the configured settings on first
// start and returns what the store holds.
func initialSettings(ctx context.Context, db *sql.DB, cfg *FileConfig) (correction.Settings, error) {
	if err := config.SeedSettings(ctx, db, cfg.Settings); err != nil {
		return correction.Settings{}, fmt.Errorf("fieldwatch: seed settings: %w", err)
	}
	s, err := config.LoadSettings(ctx, db)
	if err != nil {
		return correction.Settings{}, fmt.Errorf("fieldwatch: load settings: %w", err)
	}
	return s, nil
}

func engineConfig(cfg *FileConfig, s correction.Settings, logger *slog.Logger) Config {
	e := cfg.Engine
	return Config{
		Gap:                e.Gap,
		ControlSize:        e.ControlSize,
		BlurGrace:          e.BlurGrace,
		MaxIdle:            e.MaxIdle,
		CorrectTimeout:     e.CorrectTimeout,
		ConvertTimeout:     e.ConvertTimeout,
		ValidateTimeout:    e.ValidateTimeout,
		ValidationDebounce: e.ValidationDebounce,
		MutationDebounce:   e.MutationDebounce,
		Settings:           &s,
		Logger:             logger,
	}
}

func browserConfig(cfg *FileConfig, logger *slog.Logger) browser.Config {
	b := cfg.Browser
	return browser.Config{
		RemoteURL:        b.Remote,
		MemoryLimit:      b.MemoryLimit,
		RecycleInterval:  b.RecycleInterval,
		ResourceBlocking: b.ResourceBlocking,
		Headful:          b.Stealth == "headful",
		XvfbDisplay:      b.XvfbDisplay,
		Logger:           logger,
	}
}
