package background

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Service names the broker routes.
const (
	ServiceCorrect  = "lasen_correct"
	ServiceValidate = "lasen_validate"
	ServiceDialect  = "lasen_dialect"
)

// Route strategies.
const (
	StrategyLocal = "local"
	StrategyHTTP  = "http"
	StrategyNoop  = "noop"
)

const (
	DefaultCorrectTimeout  = 5 * time.Second
	DefaultValidateTimeout = 3 * time.Second
	DefaultConvertTimeout  = 5 * time.Second
)

// Route says how one service is reached.
type Route struct {
	Service  string `yaml:"service"`
	Strategy string `yaml:"strategy"`
	// Endpoint is the URL POSTed to by the http strategy.
	Endpoint string `yaml:"endpoint"`
	// Timeout bounds one remote call. Default: the message timeout.
	Timeout time.Duration `yaml:"timeout"`
	// AllowPrivate lets the endpoint resolve to loopback or private
	// addresses, for a backend on the same host.
	AllowPrivate bool `yaml:"allow_private"`
	// Fallback retries a failed remote call on the local handler.
	Fallback bool `yaml:"fallback"`
}

// BreakerConfig tunes the per-service circuit breaker.
type BreakerConfig struct {
	Threshold    int           `yaml:"threshold"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// Config configures the router and broker.
type Config struct {
	Routes          []Route       `yaml:"routes"`
	Breaker         BreakerConfig `yaml:"breaker"`
	CorrectTimeout  time.Duration `yaml:"correct_timeout"`
	ValidateTimeout time.Duration `yaml:"validate_timeout"`
	ConvertTimeout  time.Duration `yaml:"convert_timeout"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.CorrectTimeout <= 0 {
		c.CorrectTimeout = DefaultCorrectTimeout
	}
	if c.ValidateTimeout <= 0 {
		c.ValidateTimeout = DefaultValidateTimeout
	}
	if c.ConvertTimeout <= 0 {
		c.ConvertTimeout = DefaultConvertTimeout
	}
	if c.Breaker.Threshold <= 0 {
		c.Breaker.Threshold = 5
	}
	if c.Breaker.ResetTimeout <= 0 {
		c.Breaker.ResetTimeout = 30 * time.Second
	}
	if c.Breaker.HalfOpenMax <= 0 {
		c.Breaker.HalfOpenMax = 2
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks route strategies and endpoints without touching the
// network.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Routes))
	for i, rt := range c.Routes {
		if rt.Service == "" {
			return fmt.Errorf("background: route %d: service required", i)
		}
		if seen[rt.Service] {
			return fmt.Errorf("background: route %d: duplicate service %s", i, rt.Service)
		}
		seen[rt.Service] = true
		switch rt.Strategy {
		case StrategyLocal, StrategyNoop:
		case StrategyHTTP:
			if rt.Endpoint == "" {
				return fmt.Errorf("background: route %s: endpoint required", rt.Service)
			}
		default:
			return fmt.Errorf("%w: %q (service %s)", ErrUnknownStrategy, rt.Strategy, rt.Service)
		}
	}
	return nil
}

// BackendRoutes returns http routes for the three services of a lasend
// backend at base, each falling back to a local handler when one is
// registered.
func BackendRoutes(base string, allowPrivate bool) []Route {
	base = strings.TrimRight(base, "/")
	paths := []struct{ service, path string }{
		{ServiceCorrect, "/api/correct"},
		{ServiceValidate, "/api/validate"},
		{ServiceDialect, "/api/dialect"},
	}
	routes := make([]Route, 0, len(paths))
	for _, p := range paths {
		routes = append(routes, Route{
			Service:      p.service,
			Strategy:     StrategyHTTP,
			Endpoint:     base + p.path,
			AllowPrivate: allowPrivate,
			Fallback:     true,
		})
	}
	return routes
}
