// Package dispatch sends a field's text for correction or dialect
// conversion and turns the reply, a timeout or a failure into exactly one
// Outcome for the page session to apply.
//
// Each dispatch gets a per-field sequence number. An Outcome older than the
// field's latest dispatch is stale and must be dropped, so a slow first
// reply can never overwrite the result of a later action.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/fieldwatch/internal/affordance"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
)

const (
	DefaultCorrectTimeout = 5 * time.Second
	DefaultConvertTimeout = 5 * time.Second
)

// ErrNotAlive is returned when the messenger's context was torn down
// before sending.
var ErrNotAlive = errors.New("dispatch: messenger context invalidated")

// ErrTimeout marks an outcome produced by the timeout race.
var ErrTimeout = errors.New("dispatch: timed out")

// Messenger carries requests to the background broker.
type Messenger interface {
	Send(ctx context.Context, msg correction.Message) (correction.Response, error)
	// Alive is false once the messenger's context is gone.
	Alive() bool
}

// State is the per-field dispatch state.
type State int

const (
	Idle State = iota
	Sent
	Succeeded
	TimedOut
	Failed
	Applied
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sent:
		return "sent"
	case Succeeded:
		return "succeeded"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	case Applied:
		return "applied"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is the resolved result of one dispatch.
type Outcome struct {
	Field  page.NodeID
	Seq    uint64
	Action affordance.Action
	State  State
	// Text replaces the field content. Empty when Alert is set.
	Text string
	// Alert is shown to the user when no local fallback exists.
	Alert string
	Err   error
}

// Config tunes a Dispatcher.
type Config struct {
	CorrectTimeout time.Duration
	ConvertTimeout time.Duration
	Logger         *slog.Logger
}

func (c *Config) defaults() {
	if c.CorrectTimeout <= 0 {
		c.CorrectTimeout = DefaultCorrectTimeout
	}
	if c.ConvertTimeout <= 0 {
		c.ConvertTimeout = DefaultConvertTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Dispatcher tracks dispatch state per field. Dispatch, Accept and Done
// must be called from one goroutine; outcomes arrive on the results
// channel from worker goroutines.
type Dispatcher struct {
	msg     Messenger
	cfg     Config
	results chan<- Outcome
	latest  map[page.NodeID]uint64
	states  map[page.NodeID]State
}

// New returns a dispatcher delivering outcomes to results.
func New(msg Messenger, results chan<- Outcome, cfg Config) *Dispatcher {
	cfg.defaults()
	return &Dispatcher{
		msg:     msg,
		cfg:     cfg,
		results: results,
		latest:  make(map[page.NodeID]uint64),
		states:  make(map[page.NodeID]State),
	}
}

// Dispatch starts a request for field and returns false when text is
// blank or carries no Arabic, in which case nothing happens.
func (d *Dispatcher) Dispatch(ctx context.Context, field page.NodeID, action affordance.Action, text string) bool {
	if !correction.Eligible(text) {
		return false
	}
	seq := d.latest[field] + 1
	d.latest[field] = seq
	d.states[field] = Sent

	go func() {
		out := d.resolve(ctx, action, text)
		out.Field = field
		out.Seq = seq
		out.Action = action
		select {
		case d.results <- out:
		case <-ctx.Done():
		}
	}()
	return true
}

// Accept moves field to the outcome's terminal state and reports whether
// the outcome is current. Stale outcomes leave state untouched.
func (d *Dispatcher) Accept(out Outcome) bool {
	if d.latest[out.Field] != out.Seq {
		d.cfg.Logger.Debug("dispatch: stale outcome dropped",
			"field", out.Field, "seq", out.Seq, "latest", d.latest[out.Field])
		return false
	}
	d.states[out.Field] = out.State
	return true
}

// Done records that the session applied the outcome (Applied) and returns
// the field to Idle, unless a newer dispatch is in flight.
func (d *Dispatcher) Done(out Outcome) {
	if d.latest[out.Field] != out.Seq {
		return
	}
	d.cfg.Logger.Debug("dispatch: applied", "field", out.Field, "seq", out.Seq, "state", out.State.String())
	d.states[out.Field] = Idle
}

// State returns the field's current dispatch state.
func (d *Dispatcher) State(field page.NodeID) State {
	return d.states[field]
}

// Forget drops bookkeeping for a deregistered field. In-flight outcomes
// for it become stale.
func (d *Dispatcher) Forget(field page.NodeID) {
	delete(d.states, field)
	d.latest[field]++
}

func (d *Dispatcher) resolve(ctx context.Context, action affordance.Action, text string) Outcome {
	msg := correction.Message{Type: correction.CorrectText, Text: text}
	timeout := d.cfg.CorrectTimeout
	if action.Kind == affordance.ActionConvert {
		msg = correction.Message{Type: correction.ConvertDialect, Text: text, Dialect: action.Dialect}
		timeout = d.cfg.ConvertTimeout
	}

	if !d.msg.Alive() {
		return d.failure(action, text, Failed, ErrNotAlive)
	}

	type reply struct {
		resp correction.Response
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: fmt.Errorf("dispatch: send panic: %v", r)}
			}
		}()
		resp, err := d.msg.Send(ctx, msg)
		ch <- reply{resp: resp, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			return d.failure(action, text, Failed, r.err)
		}
		if r.resp.Failed() {
			return d.failure(action, text, Failed, fmt.Errorf("dispatch: broker: %s", r.resp.Error))
		}
		result := r.resp.CorrectedText
		if action.Kind == affordance.ActionConvert {
			result = r.resp.ConvertedText
		}
		if result == "" {
			result = text
		}
		return Outcome{State: Succeeded, Text: result}
	case <-timer.C:
		return d.failure(action, text, TimedOut, ErrTimeout)
	case <-ctx.Done():
		return d.failure(action, text, Failed, ctx.Err())
	}
}

// failure builds the outcome of a failed or timed out request: the local
// fallback for corrections, a user alert for conversions.
func (d *Dispatcher) failure(action affordance.Action, text string, state State, err error) Outcome {
	d.cfg.Logger.Warn("dispatch: request failed",
		"action", action.String(), "state", state.String(), "error", err)
	if action.Kind == affordance.ActionConvert {
		return Outcome{
			State: state,
			Alert: fmt.Sprintf("تعذر التحويل إلى %s، حاول مرة أخرى", action.Dialect.DisplayName()),
			Err:   err,
		}
	}
	return Outcome{State: state, Text: correction.Fallback(text), Err: err}
}
