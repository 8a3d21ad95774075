package background

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// Middleware wraps a Handler with cross-cutting behaviour.
type Middleware func(next Handler) Handler

// Chain composes middlewares left to right: the first is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call with its duration.
func Logging(logger *slog.Logger, service string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, payload)
			dur := time.Since(start)
			if err != nil {
				logger.WarnContext(ctx, "background: call failed",
					"service", service,
					"duration_ms", dur.Milliseconds(),
					"error", err)
			} else {
				logger.DebugContext(ctx, "background: call ok",
					"service", service,
					"duration_ms", dur.Milliseconds(),
					"response_bytes", len(resp))
			}
			return resp, err
		}
	}
}

// Timeout bounds the call. The handler sees a context with the deadline.
func Timeout(d time.Duration) Middleware {
	return func(next Handler) Handler {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, payload)
		}
	}
}

// Recovery turns a handler panic into an *ErrPanic.
func Recovery(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorContext(ctx, "background: handler panic recovered",
						"panic", r,
						"stack", string(debug.Stack()))
					err = &ErrPanic{Value: r}
				}
			}()
			return next(ctx, payload)
		}
	}
}

// WithFallback retries on local when the primary handler fails. A caller
// that gave up (ctx done) is not retried.
func WithFallback(local Handler, service string, logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		if local == nil {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			resp, err := next(ctx, payload)
			if err == nil || ctx.Err() != nil {
				return resp, err
			}
			logger.WarnContext(ctx, "background: remote failed, falling back to local",
				"service", service, "remote_error", err)
			return local(ctx, payload)
		}
	}
}
