package fieldwatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/fieldwatch/internal/affordance"
	"github.com/hazyhaar/lasen/fieldwatch/internal/changes"
	"github.com/hazyhaar/lasen/fieldwatch/internal/dispatch"
	"github.com/hazyhaar/lasen/fieldwatch/internal/overlay"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
	"github.com/hazyhaar/lasen/fieldwatch/internal/registry"
	"github.com/hazyhaar/lasen/fieldwatch/internal/validate"
)

// selectionField keys dispatches of selected text, which belong to no
// field.
const selectionField page.NodeID = "\x00selection"

// teardownTimeout bounds cleanup of injected nodes when a session ends
// while its page is still alive.
const teardownTimeout = 5 * time.Second

type fieldTimer struct {
	field page.NodeID
	gen   uint64
}

type selectionRequest struct {
	action affordance.Action
	reply  chan error
}

// session owns all engine state for one page. Every method runs on the
// run goroutine.
type session struct {
	id       string
	page     page.Page
	cfg      Config
	logger   *slog.Logger
	settings correction.Settings
	cancel   context.CancelFunc
	done     chan struct{}

	arena    *affordance.Arena
	reg      *registry.Registry
	disp     *dispatch.Dispatcher
	val      *validate.Validator
	rend     *overlay.Renderer
	watch    *changes.Watcher
	debounce *validate.Debouncer

	outcomes   chan dispatch.Outcome
	results    chan validate.Result
	due        chan fieldTimer
	blurs      chan fieldTimer
	settingsCh chan correction.Settings
	selections chan selectionRequest

	// blurGen invalidates pending hide timers when the field refocuses.
	blurGen map[page.NodeID]uint64
	focused page.NodeID
}

func newSession(id string, p page.Page, msg Messenger, cfg Config, settings correction.Settings, cancel context.CancelFunc) *session {
	logger := cfg.Logger.With("page", id)
	s := &session{
		id:         id,
		page:       p,
		cfg:        cfg,
		logger:     logger,
		settings:   settings,
		cancel:     cancel,
		done:       make(chan struct{}),
		outcomes:   make(chan dispatch.Outcome, 16),
		results:    make(chan validate.Result, 16),
		due:        make(chan fieldTimer, 16),
		blurs:      make(chan fieldTimer, 16),
		settingsCh: make(chan correction.Settings, 1),
		selections: make(chan selectionRequest),
		blurGen:    make(map[page.NodeID]uint64),
	}
	s.arena = affordance.New(p, affordance.Config{
		Gap:     cfg.Gap,
		Size:    cfg.ControlSize,
		MaxIdle: cfg.MaxIdle,
		Logger:  logger,
	})
	s.reg = registry.New(p, s.arena, logger)
	s.disp = dispatch.New(msg, s.outcomes, dispatch.Config{
		CorrectTimeout: cfg.CorrectTimeout,
		ConvertTimeout: cfg.ConvertTimeout,
		Logger:         logger,
	})
	s.val = validate.New(msg, s.results, validate.Config{
		Debounce: cfg.ValidationDebounce,
		Timeout:  cfg.ValidateTimeout,
		Logger:   logger,
	})
	s.rend = overlay.NewRenderer(p, logger)
	s.watch = changes.New(changes.Config{Window: cfg.MutationDebounce, Logger: logger})
	s.debounce = validate.NewDebouncer(s.val.Debounce(), func(field page.NodeID, gen uint64) {
		s.post(s.due, fieldTimer{field, gen})
	})
	return s
}

// post delivers a timer firing to the loop unless the session is over.
func (s *session) post(ch chan<- fieldTimer, t fieldTimer) {
	select {
	case ch <- t:
	case <-s.done:
	}
}

// pushSettings replaces any settings the loop has not consumed yet.
// Callers serialize through the engine mutex.
func (s *session) pushSettings(st correction.Settings) {
	select {
	case <-s.settingsCh:
	default:
	}
	s.settingsCh <- st
}

func (s *session) run(ctx context.Context) {
	defer close(s.done)
	defer s.teardown(ctx)

	s.scan(ctx)
	events := s.page.Events()
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				s.logger.Info("fieldwatch: page event stream closed")
				return
			}
			s.handleEvent(ctx, ev)

		case out := <-s.outcomes:
			s.applyOutcome(ctx, out)

		case res := <-s.results:
			s.applyValidation(ctx, res)

		case t := <-s.due:
			if s.debounce.Due(t.field, t.gen) {
				s.validateNow(ctx, t.field)
			}

		case t := <-s.blurs:
			if s.blurGen[t.field] == t.gen && s.focused != t.field {
				if err := s.arena.HideUnlessActive(ctx, t.field); err != nil {
					s.logger.Debug("fieldwatch: hide control", "field", t.field, "error", err)
				}
			}

		case <-s.watch.C():
			n := s.watch.Fired()
			s.logger.Debug("fieldwatch: rescan after mutations", "batches", n)
			s.scan(ctx)

		case st := <-s.settingsCh:
			s.applySettings(ctx, st)

		case req := <-s.selections:
			req.reply <- s.handleSelection(ctx, req.action)
		}
	}
}

func (s *session) scan(ctx context.Context) {
	res, err := s.reg.Scan(ctx, s.settings)
	if err != nil {
		s.logger.Warn("fieldwatch: scan failed", "error", err)
		return
	}
	for _, id := range res.Detached {
		s.forget(ctx, id)
	}
}

// forget drops per-field state of a deregistered field.
func (s *session) forget(ctx context.Context, field page.NodeID) {
	s.drop(field)
	if err := s.rend.Clear(ctx, field); err != nil {
		s.logger.Debug("fieldwatch: clear highlights", "field", field, "error", err)
		s.rend.Forget(field)
	}
}

// drop discards the loop's own state for field without touching the page.
func (s *session) drop(field page.NodeID) {
	s.disp.Forget(field)
	s.val.Invalidate(field)
	s.debounce.Cancel(field)
	delete(s.blurGen, field)
	if s.focused == field {
		s.focused = ""
	}
}

// reset runs when the page loaded a new document. Every node and control
// the session knew belongs to the old one, so all of it is dropped and
// the new document scanned from scratch.
func (s *session) reset(ctx context.Context) {
	s.watch.Stop()
	ids := s.reg.Reset(ctx)
	for _, id := range ids {
		s.drop(id)
		s.rend.Forget(id)
	}
	removed := s.arena.Close(ctx)
	s.logger.Info("fieldwatch: document replaced", "fields_dropped", len(ids), "controls_dropped", removed)
	s.scan(ctx)
}

func (s *session) handleEvent(ctx context.Context, ev page.Event) {
	switch ev.Type {
	case page.EventFocus:
		s.onFocus(ctx, ev.Field)
	case page.EventBlur:
		s.onBlur(ctx, ev)
	case page.EventInput:
		s.onInput(ctx, ev.Field)
	case page.EventScroll, page.EventResize:
		s.reposition(ctx)
	case page.EventAction:
		s.onAction(ctx, ev)
	case page.EventMutation:
		s.watch.Observe(ev.Records)
	case page.EventReset:
		s.reset(ctx)
	default:
		s.logger.Debug("fieldwatch: unknown event", "type", ev.Type)
	}
}

func (s *session) onFocus(ctx context.Context, field page.NodeID) {
	if _, ok := s.reg.Lookup(field); !ok {
		return
	}
	// Focus moved on: any other control still showing goes away.
	for _, id := range s.reg.IDs() {
		if id != field {
			s.arena.Hide(ctx, id)
		}
	}
	s.focused = field
	s.blurGen[field]++
	if err := s.arena.Show(ctx, field); err != nil {
		s.logger.Debug("fieldwatch: show control", "field", field, "error", err)
	}
	if err := s.rend.Reposition(ctx, field); err != nil {
		s.logger.Debug("fieldwatch: reposition overlay", "field", field, "error", err)
	}
}

func (s *session) onBlur(ctx context.Context, ev page.Event) {
	field := ev.Field
	if _, ok := s.reg.Lookup(field); !ok {
		return
	}
	if s.focused == field {
		s.focused = ""
	}
	s.val.Invalidate(field)
	s.debounce.Cancel(field)
	if err := s.rend.Clear(ctx, field); err != nil {
		s.logger.Debug("fieldwatch: clear highlights", "field", field, "error", err)
	}

	if ev.ToControl {
		// The user is reaching for the control; it stays until focus
		// lands elsewhere.
		return
	}
	s.blurGen[field]++
	t := fieldTimer{field: field, gen: s.blurGen[field]}
	time.AfterFunc(s.cfg.BlurGrace, func() { s.post(s.blurs, t) })
}

func (s *session) onInput(ctx context.Context, field page.NodeID) {
	if _, ok := s.reg.Lookup(field); !ok {
		return
	}
	// Offsets of a validation still in flight no longer match the text.
	s.val.Invalidate(field)
	if err := s.rend.Reposition(ctx, field); err != nil {
		s.logger.Debug("fieldwatch: reposition overlay", "field", field, "error", err)
	}
	if s.settings.InstantCheck {
		s.debounce.Touch(field)
	}
}

func (s *session) reposition(ctx context.Context) {
	s.arena.RepositionVisible(ctx)
	for _, id := range s.reg.IDs() {
		if err := s.rend.Reposition(ctx, id); err != nil {
			s.logger.Debug("fieldwatch: reposition overlay", "field", id, "error", err)
		}
	}
}

func (s *session) onAction(ctx context.Context, ev page.Event) {
	field, ok := s.arena.FieldOf(ev.Control)
	if !ok {
		field = ev.Field
	}
	if _, ok := s.reg.Lookup(field); !ok {
		s.logger.Debug("fieldwatch: action for unregistered field", "field", field, "control", ev.Control)
		return
	}
	action, err := affordance.ParseAction(ev.Action)
	if err != nil {
		s.logger.Warn("fieldwatch: bad action", "action", ev.Action, "error", err)
		return
	}
	text, err := s.page.ReadText(ctx, field)
	if err != nil {
		s.logger.Warn("fieldwatch: read field", "field", field, "error", err)
		return
	}
	// The text is about to change; pending validation would be stale.
	s.val.Invalidate(field)
	s.debounce.Cancel(field)
	if !s.disp.Dispatch(ctx, field, action, text) {
		s.logger.Debug("fieldwatch: nothing to send", "field", field, "action", action.String())
		return
	}
	s.logger.Debug("fieldwatch: dispatched", "field", field, "action", action.String())
}

func (s *session) applyOutcome(ctx context.Context, out dispatch.Outcome) {
	if !s.disp.Accept(out) {
		return
	}
	defer s.disp.Done(out)

	if out.Alert != "" {
		if err := s.page.Alert(ctx, out.Alert); err != nil {
			s.logger.Warn("fieldwatch: alert", "error", err)
		}
		return
	}

	if out.Field == selectionField {
		if err := s.page.ReplaceSelection(ctx, out.Text); err != nil {
			s.logger.Warn("fieldwatch: replace selection", "error", err)
		}
		return
	}

	if _, ok := s.reg.Lookup(out.Field); !ok {
		s.logger.Debug("fieldwatch: outcome for departed field", "field", out.Field)
		return
	}
	if err := s.rend.Clear(ctx, out.Field); err != nil {
		s.logger.Debug("fieldwatch: clear highlights", "field", out.Field, "error", err)
	}
	if err := s.page.WriteText(ctx, out.Field, out.Text); err != nil {
		s.logger.Warn("fieldwatch: write field", "field", out.Field, "error", err)
		return
	}
	s.logger.Info("fieldwatch: field updated",
		"field", out.Field,
		"action", out.Action.String(),
		"state", out.State.String())
}

// validateNow reads the field and requests validation. A rejected text
// clears the field's highlights.
func (s *session) validateNow(ctx context.Context, field page.NodeID) {
	f, ok := s.reg.Lookup(field)
	if !ok || !s.settings.InstantCheck {
		return
	}
	text, err := s.fieldText(ctx, f)
	if err != nil {
		s.logger.Debug("fieldwatch: read field for validation", "field", field, "error", err)
		return
	}
	if !s.val.Request(ctx, field, text) {
		s.val.Invalidate(field)
		if err := s.rend.Clear(ctx, field); err != nil {
			s.logger.Debug("fieldwatch: clear highlights", "field", field, "error", err)
		}
	}
}

// fieldText is the text validation offsets are counted against. For rich
// fields it is derived from the markup so offsets map onto text nodes.
func (s *session) fieldText(ctx context.Context, f *registry.Field) (string, error) {
	if f.Kind != page.KindRichEditable {
		return s.page.ReadText(ctx, f.ID)
	}
	html, err := s.page.ReadHTML(ctx, f.ID)
	if err != nil {
		return "", err
	}
	return overlay.Text(html)
}

func (s *session) applyValidation(ctx context.Context, res validate.Result) {
	if !s.val.Current(res) {
		return
	}
	f, ok := s.reg.Lookup(res.Field)
	if !ok || !s.settings.InstantCheck {
		return
	}
	ranges := res.Ranges
	if res.Err != nil {
		ranges = nil
	}
	text, err := s.fieldText(ctx, f)
	if err != nil {
		s.logger.Debug("fieldwatch: read field for highlights", "field", f.ID, "error", err)
		return
	}
	if text != res.Text {
		s.logger.Debug("fieldwatch: validation outdated by edit", "field", f.ID)
		return
	}
	if err := s.rend.Render(ctx, f.ID, f.Kind, res.Text, ranges); err != nil {
		s.logger.Debug("fieldwatch: render highlights", "field", f.ID, "error", err)
	}
}

func (s *session) applySettings(ctx context.Context, st correction.Settings) {
	prev := s.settings
	s.settings = st
	if prev.InstantCheck && !st.InstantCheck {
		s.debounce.Stop()
		for _, id := range s.reg.IDs() {
			s.val.Invalidate(id)
			if err := s.rend.Clear(ctx, id); err != nil {
				s.logger.Debug("fieldwatch: clear highlights", "field", id, "error", err)
			}
		}
	}
	s.scan(ctx)
}

func (s *session) handleSelection(ctx context.Context, action affordance.Action) error {
	text, err := s.page.Selection(ctx)
	if err != nil {
		return fmt.Errorf("fieldwatch: read selection: %w", err)
	}
	if !s.disp.Dispatch(ctx, selectionField, action, text) {
		return ErrIneligible
	}
	return nil
}

// teardown removes what the session injected. The page may already be
// gone, so failures are only logged.
func (s *session) teardown(ctx context.Context) {
	s.debounce.Stop()
	s.watch.Stop()

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	for _, id := range s.reg.IDs() {
		if err := s.rend.Clear(cctx, id); err != nil {
			s.rend.Forget(id)
		}
	}
	s.reg.Reset(cctx)
	removed := s.arena.Close(cctx)
	s.logger.Info("fieldwatch: session ended", "controls_removed", removed)
}
