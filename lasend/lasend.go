// Package lasend is the correction backend: it proxies correction,
// validation and dialect conversion to an LLM provider and keeps a history
// of the changes it made.
//
// Usage:
//
//	svc, err := lasend.Open(ctx, cfg, logger)
//	defer svc.Close()
//	http.ListenAndServe(cfg.Addr, svc.Handler(ctx))
//	svc.RegisterConnectivity(router)
//	svc.RegisterMCP(mcpServer)
package lasend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/lasend/internal/llm"
	"github.com/hazyhaar/lasen/lasend/internal/store"
)

var (
	// ErrEmptyText is returned for a missing or blank text.
	ErrEmptyText = errors.New("lasend: text is required")
	// ErrInvalidDialect is returned for a dialect outside the supported set.
	ErrInvalidDialect = errors.New("lasend: invalid dialect")
	// ErrInvalidRecord is returned by Record for records the store refuses.
	ErrInvalidRecord = store.ErrInvalidRecord
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service implements the backend operations.
type Service struct {
	cfg    *Config
	store  *store.Store
	llm    *llm.Client
	logger *slog.Logger
}

// Provider generates a completion for a prompt.
type Provider = llm.Provider

// ProviderFunc adapts a function to Provider.
type ProviderFunc = llm.ProviderFunc

// Open builds the provider named by cfg.LLM and opens the service.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	provider, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("lasend: provider: %w", err)
	}
	return New(cfg, provider, logger)
}

// New opens the history database at cfg.DBPath and wraps provider.
func New(cfg *Config, provider llm.Provider, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	svc := newService(cfg, st, provider, logger)
	svc.logger.Info("lasend: service ready", "db", cfg.DBPath, "provider", provider.Name())
	return svc, nil
}

func newService(cfg *Config, st *store.Store, provider llm.Provider, logger *slog.Logger) *Service {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:    cfg,
		store:  st,
		llm:    llm.NewClient(provider, logger),
		logger: logger,
	}
}

// Close closes the history database.
func (s *Service) Close() error {
	return s.store.Close()
}

// Correct returns the corrected text. A changed result is recorded under
// src; a failed write is logged and does not fail the call.
func (s *Service) Correct(ctx context.Context, text string, src correction.Source) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	out, err := s.llm.Correct(ctx, text)
	if err != nil {
		return "", err
	}
	if out != text {
		s.record(ctx, &correction.Record{OriginalText: text, CorrectedText: out, Source: src})
	}
	return out, nil
}

// ConvertDialect rewrites text in dialect, matched case-insensitively.
func (s *Service) ConvertDialect(ctx context.Context, text, dialect string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	d, err := correction.ParseDialect(dialect)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDialect, dialect)
	}
	out, err := s.llm.Convert(ctx, text, d)
	if err != nil {
		return "", err
	}
	if out != text {
		s.record(ctx, &correction.Record{
			OriginalText:  text,
			CorrectedText: out,
			Source:        correction.SourceAPIDialect,
			Dialect:       d,
		})
	}
	return out, nil
}

// Validate returns the flagged ranges of text. Provider and parse failures
// yield no ranges; only a blank text is an error.
func (s *Service) Validate(ctx context.Context, text string) ([]correction.FlaggedRange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	ranges, err := s.llm.Validate(ctx, text)
	if err != nil {
		s.logger.WarnContext(ctx, "lasend: validation failed", "error", err)
		return []correction.FlaggedRange{}, nil
	}
	return ranges, nil
}

// History is one page of correction records.
type History struct {
	Success bool                `json:"success"`
	Count   int                 `json:"count"`
	Total   int                 `json:"total"`
	Page    int                 `json:"page"`
	Pages   int                 `json:"pages"`
	Data    []correction.Record `json:"data"`
}

// History returns page (from 1) of the records, newest first. limit
// defaults to 20 and is capped at 100.
func (s *Service) History(ctx context.Context, page, limit int) (*History, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	recs, total, err := s.store.List(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	return &History{
		Success: true,
		Count:   len(recs),
		Total:   total,
		Page:    page,
		Pages:   (total + limit - 1) / limit,
		Data:    recs,
	}, nil
}

// Record stores a correction made elsewhere. Source defaults to extension.
func (s *Service) Record(ctx context.Context, r *correction.Record) error {
	r.ID = ""
	r.CreatedAt = r.CreatedAt.UTC()
	if r.Dialect != "" {
		d, err := correction.ParseDialect(string(r.Dialect))
		if err != nil {
			return fmt.Errorf("%w: dialect %q", ErrInvalidRecord, r.Dialect)
		}
		r.Dialect = d
	}
	return s.store.Insert(ctx, r)
}

func (s *Service) record(ctx context.Context, r *correction.Record) {
	// The caller's context may be cancelled as soon as the reply is written.
	ctx = context.WithoutCancel(ctx)
	if err := s.store.Insert(ctx, r); err != nil {
		s.logger.ErrorContext(ctx, "lasend: record correction", "source", r.Source, "error", err)
	}
}
