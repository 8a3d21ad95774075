// Package fieldwatch instruments editable fields of live browser pages
// with Arabic correction controls, dialect conversion and live validation
// highlights.
//
// Each attached page gets a session: one goroutine owning every piece of
// state for that page (registry, control arena, dispatcher, validator,
// overlay renderer, mutation watcher). Host events, network results and
// timers reach the session as channel messages, so no component needs a
// lock.
//
//	eng := fieldwatch.New(broker, fieldwatch.Config{Settings: &settings})
//	p, _ := page.Attach(ctx, rodPage, logger)
//	eng.Attach(ctx, "tab-1", p)
//	eng.UpdateSettings(newSettings) // rescans every page
package fieldwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/fieldwatch/internal/affordance"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
)

var (
	// ErrClosed is returned by operations on a stopped engine.
	ErrClosed = errors.New("fieldwatch: engine closed")
	// ErrUnknownPage is returned for a page id that is not attached.
	ErrUnknownPage = errors.New("fieldwatch: unknown page")
	// ErrDuplicatePage is returned when attaching an id twice.
	ErrDuplicatePage = errors.New("fieldwatch: page already attached")
	// ErrIneligible is returned when the selected text is blank or has no
	// Arabic.
	ErrIneligible = errors.New("fieldwatch: selection has no Arabic text")
)

// Messenger carries requests to the background broker. A
// *background.Broker satisfies it.
type Messenger interface {
	Send(ctx context.Context, msg correction.Message) (correction.Response, error)
	// Alive is false once the messenger's context is gone.
	Alive() bool
}

// Config tunes the engine. Zero values take the defaults of the package
// implementing each concern.
type Config struct {
	Gap         float64
	ControlSize float64
	// BlurGrace delays hiding a control after its field blurs. Default: 200ms.
	BlurGrace time.Duration
	MaxIdle   int

	CorrectTimeout     time.Duration
	ConvertTimeout     time.Duration
	ValidateTimeout    time.Duration
	ValidationDebounce time.Duration
	MutationDebounce   time.Duration

	// Settings are the initial user settings. Nil takes
	// correction.DefaultSettings.
	Settings *correction.Settings

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.BlurGrace <= 0 {
		c.BlurGrace = affordance.DefaultGrace
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) initialSettings() correction.Settings {
	s := correction.DefaultSettings()
	if c.Settings != nil {
		s = *c.Settings
	}
	return s.Normalize()
}

// Engine runs one session per attached page.
type Engine struct {
	cfg Config
	msg Messenger

	mu       sync.Mutex
	settings correction.Settings
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

// New returns an engine sending requests through msg.
func New(msg Messenger, cfg Config) *Engine {
	cfg.defaults()
	return &Engine{
		cfg:      cfg,
		msg:      msg,
		settings: cfg.initialSettings(),
		sessions: make(map[string]*session),
	}
}

// Attach starts instrumenting p under id. The session runs until ctx is
// cancelled, the page's event stream ends, or Detach is called.
func (e *Engine) Attach(ctx context.Context, id string, p page.Page) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if _, ok := e.sessions[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePage, id)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := newSession(id, p, e.msg, e.cfg, e.settings, cancel)
	e.sessions[id] = s

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		s.run(sctx)
		e.mu.Lock()
		if e.sessions[id] == s {
			delete(e.sessions, id)
		}
		e.mu.Unlock()
	}()
	e.cfg.Logger.Info("fieldwatch: page attached", "page", id)
	return nil
}

// Detach stops the page's session and removes everything it injected.
// It returns once the session has finished.
func (e *Engine) Detach(id string) error {
	e.mu.Lock()
	s, ok := e.sessions[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPage, id)
	}
	s.cancel()
	<-s.done
	return nil
}

// Pages lists the attached page ids, sorted.
func (e *Engine) Pages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Settings returns the settings currently in force.
func (e *Engine) Settings() correction.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// UpdateSettings hands new settings to every session, each of which
// rescans its page. Only the latest settings are kept for a session
// that has not caught up yet.
func (e *Engine) UpdateSettings(s correction.Settings) {
	s = s.Normalize()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = s
	for _, sess := range e.sessions {
		sess.pushSettings(s)
	}
	e.cfg.Logger.Info("fieldwatch: settings updated",
		"inputs", s.ProcessInputs,
		"textareas", s.ProcessTextareas,
		"editable", s.ProcessContentEditable,
		"instant_check", s.InstantCheck)
}

// CorrectSelection corrects the text selected in page id and replaces
// the selection with the result. The request completes asynchronously.
func (e *Engine) CorrectSelection(ctx context.Context, id string) error {
	return e.selection(ctx, id, affordance.Correct)
}

// ConvertSelection converts the selected text to dialect d, or to the
// settings' default dialect when d is empty.
func (e *Engine) ConvertSelection(ctx context.Context, id string, d correction.Dialect) error {
	if d == "" {
		d = e.Settings().DefaultDialect
	}
	if !d.Valid() {
		return fmt.Errorf("fieldwatch: convert selection: unknown dialect %q", d)
	}
	return e.selection(ctx, id, affordance.Convert(d))
}

func (e *Engine) selection(ctx context.Context, id string, action affordance.Action) error {
	e.mu.Lock()
	s, ok := e.sessions[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPage, id)
	}
	req := selectionRequest{action: action, reply: make(chan error, 1)}
	select {
	case s.selections <- req:
	case <-s.done:
		return fmt.Errorf("%w: %s", ErrUnknownPage, id)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-s.done:
		return fmt.Errorf("%w: %s", ErrUnknownPage, id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops every session and waits for them.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	for _, s := range e.sessions {
		s.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}
