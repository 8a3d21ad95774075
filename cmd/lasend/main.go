// Command lasend serves the Arabic correction backend.
//
// Usage:
//
//	lasend                           # defaults, keys from GEMINI_API_KEY / OPENAI_API_KEY
//	lasend -config lasend.yaml
//	lasend -addr :8080 -log-level debug
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/lasen/lasend"
)

func main() {
	configPath := flag.String("config", "", "path to lasend.yaml config file")
	addr := flag.String("addr", "", "listen address (overrides config and LASEN_ADDR)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *addr); err != nil {
		logger.Error("lasend: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, addr string) error {
	cfg, err := lasend.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.Addr = addr
	}

	svc, err := lasend.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer svc.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           svc.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("lasend: listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("lasend: shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
