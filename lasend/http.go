package lasend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/lasend/internal/httpmw"
)

const apiMessage = "Arabic Correction API is running"

// Handler returns the HTTP surface: the JSON API under /api and the MCP
// endpoint at /mcp. Background work (rate limiter GC) stops with ctx.
func (s *Service) Handler(ctx context.Context) http.Handler {
	limiter := httpmw.NewRateLimiter(s.cfg.RateLimit, s.logger)
	limiter.StartGC(ctx.Done(), 5*time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpmw.SecurityHeaders(httpmw.APIHeaders()))
	r.Use(httpmw.TraceID(s.logger))
	r.Use(httpmw.CORS(s.cfg.CORSOrigins))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": apiMessage})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(httpmw.MaxBody(s.cfg.MaxBodyBytes))
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))

		r.Get("/health", s.handleHealth)
		r.Get("/corrections", s.handleHistory)
		r.Post("/corrections", s.handleRecord)

		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/correct", s.handleCorrect)
			r.Post("/dialect", s.handleDialect)
			r.Post("/validate", s.handleValidate)
		})
	})

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "lasen", Version: "1.0.0"}, nil)
	s.RegisterMCP(mcpSrv)
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
	r.With(limiter.Middleware).Handle("/mcp", mcpHandler)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Route not found"})
	})
	return r
}

type textBody struct {
	Text *string `json:"text"`
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   apiMessage,
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Service) handleCorrect(w http.ResponseWriter, r *http.Request) {
	var body textBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Text == nil || strings.TrimSpace(*body.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	out, err := s.Correct(r.Context(), *body.Text, correction.SourceAPI)
	if err != nil {
		httpmw.GetLogger(r.Context()).Error("lasend: correct", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Error correcting text",
			"details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, correction.CorrectResponse{CorrectedText: out})
}

func (s *Service) handleDialect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text    *string `json:"text"`
		Dialect *string `json:"dialect"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Text == nil || strings.TrimSpace(*body.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text is required and must be a string")
		return
	}
	if body.Dialect == nil || *body.Dialect == "" {
		writeError(w, http.StatusBadRequest, "Dialect is required and must be a string")
		return
	}
	out, err := s.ConvertDialect(r.Context(), *body.Text, *body.Dialect)
	switch {
	case errors.Is(err, ErrInvalidDialect):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":           "Invalid dialect specified",
			"validDialects":   correction.DialectNames(),
			"receivedDialect": *body.Dialect,
		})
		return
	case err != nil:
		httpmw.GetLogger(r.Context()).Error("lasend: convert dialect", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Error converting text",
			"details": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, correction.DialectResponse{ConvertedText: out})
}

func (s *Service) handleValidate(w http.ResponseWriter, r *http.Request) {
	var body textBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Text == nil || strings.TrimSpace(*body.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	ranges, err := s.Validate(r.Context(), *body.Text)
	switch {
	case errors.Is(err, ErrEmptyText):
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	case err != nil:
		httpmw.GetLogger(r.Context()).Warn("lasend: validate", "error", err)
		ranges = []correction.FlaggedRange{}
	}
	writeJSON(w, http.StatusOK, correction.ValidateResponse{Success: true, IncorrectWords: ranges})
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.History(r.Context(), queryInt(r, "page", 1), queryInt(r, "limit", defaultPageSize))
	if err != nil {
		httpmw.GetLogger(r.Context()).Error("lasend: history", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Server error",
		})
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Service) handleRecord(w http.ResponseWriter, r *http.Request) {
	var rec correction.Record
	if !decodeBody(w, r, &rec) {
		return
	}
	if err := s.Record(r.Context(), &rec); err != nil {
		if errors.Is(err, ErrInvalidRecord) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		httpmw.GetLogger(r.Context()).Error("lasend: record", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": rec})
}

// decodeBody decodes a JSON body into v, answering 413 or 400 itself and
// returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe):
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, "Request body is required")
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "Invalid JSON in request body",
			"details": err.Error(),
		})
	}
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, correction.ErrorResponse{Error: msg})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
