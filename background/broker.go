package background

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hazyhaar/lasen/correction"
)

// Broker answers page messages by calling the correction services through
// a Router. Every message gets exactly one response.
type Broker struct {
	cfg    Config
	router *Router
	logger *slog.Logger
	closed atomic.Bool
}

// New builds a broker and configures its router from cfg.Routes. Local
// handlers can be added afterwards through Router().RegisterLocal.
func New(ctx context.Context, cfg Config) (*Broker, error) {
	cfg.defaults()
	r := NewRouter(cfg)
	if len(cfg.Routes) > 0 {
		if err := r.Configure(ctx, cfg.Routes); err != nil {
			return nil, err
		}
	}
	return &Broker{cfg: cfg, router: r, logger: cfg.Logger}, nil
}

// Router returns the broker's service router.
func (b *Broker) Router() *Router { return b.router }

// Alive is false once the broker is closed.
func (b *Broker) Alive() bool { return !b.closed.Load() }

// Close invalidates the broker. Later sends fail with
// ErrContextInvalidated.
func (b *Broker) Close() error {
	b.closed.Store(true)
	return nil
}

// Send delivers msg and returns its response.
func (b *Broker) Send(ctx context.Context, msg correction.Message) (correction.Response, error) {
	if b.closed.Load() {
		return correction.Response{}, ErrContextInvalidated
	}
	return b.Handle(ctx, msg), nil
}

// Handle answers one message. Failures are folded into the response:
// corrections fall back to the local substitution table, validation
// yields no ranges, and conversions report success=false with the
// original text.
func (b *Broker) Handle(ctx context.Context, msg correction.Message) (resp correction.Response) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "background: handle panic recovered", "type", msg.Type, "panic", r)
			resp = b.failed(msg, &ErrPanic{Value: r})
		}
	}()

	switch msg.Type {
	case correction.CorrectText:
		out, err := b.correct(ctx, msg.Text)
		if err != nil {
			return b.failed(msg, err)
		}
		return correction.Response{CorrectedText: out}
	case correction.ValidateText:
		ranges, err := b.validate(ctx, msg.Text)
		if err != nil {
			return b.failed(msg, err)
		}
		return correction.Response{IncorrectWords: ranges}
	case correction.ConvertDialect:
		out, err := b.convert(ctx, msg.Text, msg.Dialect)
		if err != nil {
			return b.failed(msg, err)
		}
		return correction.Response{ConvertedText: out, Success: correction.Bool(true)}
	}
	b.logger.WarnContext(ctx, "background: unknown message type", "type", msg.Type)
	return correction.Response{Error: fmt.Sprintf("unknown message type %q", msg.Type)}
}

func (b *Broker) failed(msg correction.Message, err error) correction.Response {
	b.logger.Warn("background: request failed", "type", msg.Type, "error", err)
	switch msg.Type {
	case correction.CorrectText:
		return correction.Response{CorrectedText: correction.Fallback(msg.Text)}
	case correction.ValidateText:
		return correction.Response{IncorrectWords: []correction.FlaggedRange{}}
	case correction.ConvertDialect:
		text := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			text = "Timeout"
		}
		return correction.Response{ConvertedText: msg.Text, Success: correction.Bool(false), Error: text}
	}
	return correction.Response{Error: err.Error()}
}

func (b *Broker) correct(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.CorrectTimeout)
	defer cancel()
	out, err := b.call(ctx, ServiceCorrect, correction.TextRequest{Text: text})
	if err != nil {
		return "", err
	}
	var cr correction.CorrectResponse
	if err := json.Unmarshal(out, &cr); err != nil {
		return "", fmt.Errorf("background: decode correction: %w", err)
	}
	if cr.CorrectedText == "" {
		return "", errors.New("background: empty correction")
	}
	return cr.CorrectedText, nil
}

func (b *Broker) validate(ctx context.Context, text string) ([]correction.FlaggedRange, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ValidateTimeout)
	defer cancel()
	out, err := b.call(ctx, ServiceValidate, correction.TextRequest{Text: text})
	if err != nil {
		return nil, err
	}
	return correction.DecodeIncorrectWords(out)
}

func (b *Broker) convert(ctx context.Context, text string, d correction.Dialect) (string, error) {
	if !d.Valid() {
		return "", fmt.Errorf("background: invalid dialect %q", d)
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.ConvertTimeout)
	defer cancel()
	out, err := b.call(ctx, ServiceDialect, correction.DialectRequest{Text: text, Dialect: string(d)})
	if err != nil {
		return "", err
	}
	var dr correction.DialectResponse
	if err := json.Unmarshal(out, &dr); err != nil {
		return "", fmt.Errorf("background: decode conversion: %w", err)
	}
	if dr.ConvertedText == "" {
		return "", errors.New("background: empty conversion")
	}
	return dr.ConvertedText, nil
}

func (b *Broker) call(ctx context.Context, service string, req any) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("background: encode %s: %w", service, err)
	}
	out, err := b.router.Call(ctx, service, payload)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("background: %s: empty reply", service)
	}
	return out, nil
}
