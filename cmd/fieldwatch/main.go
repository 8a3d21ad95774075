// Command fieldwatch instruments browser pages with Arabic correction
// controls.
//
// Usage:
//
//	fieldwatch -config fieldwatch.yaml
//	fieldwatch -url https://example.com/form -backend http://localhost:5000
//	fieldwatch -remote ws://127.0.0.1:9222/devtools/browser/<id> -all-tabs
//	fieldwatch -url https://example.com/form -embedded lasend.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/lasen/background"
	"github.com/hazyhaar/lasen/fieldwatch"
	"github.com/hazyhaar/lasen/lasend"
)

type options struct {
	configPath string
	url        string
	remote     string
	allTabs    bool
	backend    string
	embedded   string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to fieldwatch.yaml config file")
	flag.StringVar(&o.url, "url", "", "instrument a single URL")
	flag.StringVar(&o.remote, "remote", "", "attach to a running Chrome at this DevTools URL")
	flag.BoolVar(&o.allTabs, "all-tabs", false, "instrument every tab already open in the remote browser")
	flag.StringVar(&o.backend, "backend", "", "lasend base URL, e.g. http://localhost:5000")
	flag.StringVar(&o.embedded, "embedded", "", "run the backend in-process from this lasend config (\"-\" for defaults)")
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

	if err := run(ctx, logger, o); err != nil {
		logger.Error("fieldwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg := fieldwatch.DefaultConfig()
	if o.configPath != "" {
		loaded, err := fieldwatch.LoadConfigFile(o.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if o.url != "" {
		cfg.Pages = append(cfg.Pages, fieldwatch.PageConfig{
			ID:  fmt.Sprintf("page-%d", len(cfg.Pages)+1),
			URL: o.url,
		})
	}
	if o.remote != "" {
		cfg.Browser.Remote = o.remote
	}
	if o.allTabs {
		cfg.Browser.AllTabs = true
	}
	if o.backend != "" {
		cfg.Broker.Routes = background.BackendRoutes(o.backend, true)
	}
	if len(cfg.Pages) == 0 && !cfg.Browser.AllTabs {
		fmt.Fprintln(os.Stderr, "usage: fieldwatch -config <file> | -url <url> | -remote <ws> -all-tabs")
		os.Exit(1)
	}

	d := fieldwatch.NewDaemon(cfg, logger)

	if o.embedded != "" {
		path := o.embedded
		if path == "-" {
			path = ""
		}
		lcfg, err := lasend.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("load backend config: %w", err)
		}
		svc, err := lasend.Open(ctx, lcfg, logger)
		if err != nil {
			return fmt.Errorf("open backend: %w", err)
		}
		defer svc.Close()
		d.OnRouter(svc.RegisterConnectivity)
	} else if len(cfg.Broker.Routes) == 0 {
		logger.Warn("fieldwatch: no backend configured, corrections will fall back")
	}

	return d.Run(ctx)
}
