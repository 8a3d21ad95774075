// Package validate runs live validation for focused fields: a trailing
// debounce per field, a guard on the text, a bounded request to the
// broker, and sanitizing of the flagged ranges it returns.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
)

const (
	DefaultDebounce = 800 * time.Millisecond
	DefaultTimeout  = 3 * time.Second
	// MinRunes is the shortest text worth validating.
	MinRunes = 2
)

// ErrTimeout is set on results cut short by the request bound.
var ErrTimeout = errors.New("validate: timed out")

// ErrNotAlive is set when the messenger context was gone before sending.
var ErrNotAlive = errors.New("validate: messenger context invalidated")

// Messenger carries requests to the background broker.
type Messenger interface {
	Send(ctx context.Context, msg correction.Message) (correction.Response, error)
	Alive() bool
}

// Config tunes a Validator.
type Config struct {
	Debounce time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Result is the answer to one validation request. Ranges are sanitized
// against Text. A non-nil Err means highlights must be cleared.
type Result struct {
	Field  page.NodeID
	Seq    uint64
	Text   string
	Ranges []correction.FlaggedRange
	Err    error
}

// ShouldValidate reports whether text passes the guard: at least MinRunes
// runes and some Arabic.
func ShouldValidate(text string) bool {
	return correction.Len(text) >= MinRunes && correction.ContainsArabic(text)
}

// Sanitize keeps the ranges satisfying 0 <= start < end <= len(text),
// counted in runes.
func Sanitize(text string, ranges []correction.FlaggedRange) []correction.FlaggedRange {
	n := correction.Len(text)
	out := make([]correction.FlaggedRange, 0, len(ranges))
	for _, r := range ranges {
		if r.Within(n) {
			out = append(out, r)
		}
	}
	return out
}

// Validator issues validation requests. Request, Current and Invalidate
// must be called from one goroutine.
type Validator struct {
	msg     Messenger
	cfg     Config
	results chan<- Result
	latest  map[page.NodeID]uint64
}

// New returns a validator delivering results to results.
func New(msg Messenger, results chan<- Result, cfg Config) *Validator {
	cfg.defaults()
	return &Validator{
		msg:     msg,
		cfg:     cfg,
		results: results,
		latest:  make(map[page.NodeID]uint64),
	}
}

// Debounce is the configured quiet period before validating.
func (v *Validator) Debounce() time.Duration { return v.cfg.Debounce }

// Request validates text for field in the background. It returns false
// when the guard rejects text.
func (v *Validator) Request(ctx context.Context, field page.NodeID, text string) bool {
	if !ShouldValidate(text) {
		return false
	}
	seq := v.latest[field] + 1
	v.latest[field] = seq

	go func() {
		res := v.run(ctx, text)
		res.Field = field
		res.Seq = seq
		res.Text = text
		select {
		case v.results <- res:
		case <-ctx.Done():
		}
	}()
	return true
}

// Current reports whether res answers the field's latest request.
func (v *Validator) Current(res Result) bool {
	return v.latest[res.Field] == res.Seq
}

// Invalidate makes every in-flight request for field stale.
func (v *Validator) Invalidate(field page.NodeID) {
	v.latest[field]++
}

func (v *Validator) run(ctx context.Context, text string) Result {
	if !v.msg.Alive() {
		return Result{Err: ErrNotAlive}
	}

	type reply struct {
		resp correction.Response
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: fmt.Errorf("validate: send panic: %v", r)}
			}
		}()
		resp, err := v.msg.Send(ctx, correction.Message{Type: correction.ValidateText, Text: text})
		ch <- reply{resp: resp, err: err}
	}()

	timer := time.NewTimer(v.cfg.Timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			v.cfg.Logger.Debug("validate: request failed", "error", r.err)
			return Result{Err: r.err}
		}
		if r.resp.Error != "" {
			return Result{Err: fmt.Errorf("validate: broker: %s", r.resp.Error)}
		}
		return Result{Ranges: Sanitize(text, r.resp.IncorrectWords)}
	case <-timer.C:
		v.cfg.Logger.Debug("validate: request timed out", "timeout", v.cfg.Timeout)
		return Result{Err: ErrTimeout}
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}
