package httpmw

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	traceIDKey contextKey = "httpmw_trace_id"
	loggerKey  contextKey = "httpmw_logger"
)

// TraceID gives each request an id, echoed in X-Trace-ID, and a logger
// carrying it. An incoming X-Trace-ID is kept when it parses as a UUID.
func TraceID(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Trace-ID")
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set("X-Trace-ID", id)

			logger := base.With(
				"trace_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", ClientIP(r),
			)
			ctx := context.WithValue(r.Context(), traceIDKey, id)
			ctx = context.WithValue(ctx, loggerKey, logger)

			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))
			logger.Info("request", "status", sw.status, "duration_ms", time.Since(start).Milliseconds())
		})
	}
}

// GetTraceID returns the request's trace id, or "".
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

// GetLogger returns the per-request logger, or slog.Default().
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers (the MCP endpoint) flush through the
// wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
