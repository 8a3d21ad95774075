package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler is one service operation. Payloads are the JSON bodies of the
// backend endpoints, so a local function and a remote endpoint are
// interchangeable.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

type routeEntry struct {
	route   Route
	handler Handler
	breaker *CircuitBreaker
}

// Router resolves a service name to a local handler or a remote endpoint.
// Callers do not know which one served them.
type Router struct {
	logger  *slog.Logger
	breaker BreakerConfig

	mu     sync.RWMutex
	local  map[string]Handler
	routes map[string]*routeEntry
}

// NewRouter returns a Router with no routes and no local handlers.
func NewRouter(cfg Config) *Router {
	cfg.defaults()
	return &Router{
		logger:  cfg.Logger,
		breaker: cfg.Breaker,
		local:   make(map[string]Handler),
		routes:  make(map[string]*routeEntry),
	}
}

// RegisterLocal registers an in-process handler for service. It serves
// calls when the route strategy is local or there is no route, and is
// the fallback target of http routes with fallback enabled.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[service] = h
	// Rebuild http routes so a late registration becomes their fallback.
	for name, e := range r.routes {
		if e.route.Strategy == StrategyHTTP && e.route.Fallback {
			r.routes[name] = r.build(context.Background(), e.route, e.breaker)
		}
	}
}

// Configure replaces the route table. Endpoints are checked before any
// route is swapped in; on error the previous table stays.
func (r *Router) Configure(ctx context.Context, routes []Route) error {
	cfg := Config{Routes: routes}
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, rt := range routes {
		if rt.Strategy != StrategyHTTP {
			continue
		}
		if err := CheckEndpoint(ctx, rt.Endpoint, rt.AllowPrivate); err != nil {
			return fmt.Errorf("background: route %s: %w", rt.Service, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[string]*routeEntry, len(routes))
	for _, rt := range routes {
		var cb *CircuitBreaker
		// Keep breaker state across a reload of an unchanged route.
		if old, ok := r.routes[rt.Service]; ok && old.route == rt {
			cb = old.breaker
		}
		next[rt.Service] = r.build(ctx, rt, cb)
	}
	r.routes = next
	r.logger.InfoContext(ctx, "background: routes configured", "routes", len(next))
	return nil
}

// Must be called with mu held.
func (r *Router) build(ctx context.Context, rt Route, cb *CircuitBreaker) *routeEntry {
	e := &routeEntry{route: rt, breaker: cb}
	if rt.Strategy != StrategyHTTP {
		return e
	}
	if e.breaker == nil {
		e.breaker = NewCircuitBreaker(r.breaker)
	}
	var fallback Handler
	if rt.Fallback {
		fallback = r.local[rt.Service]
	}
	mws := []Middleware{
		Recovery(r.logger),
		WithFallback(fallback, rt.Service, r.logger),
		Logging(r.logger, rt.Service),
		WithBreaker(e.breaker, rt.Service),
		Timeout(rt.Timeout),
	}
	e.handler = Chain(mws...)(HTTPHandler(rt.Service, rt.Endpoint, newHTTPClient(httpTimeout(rt.Timeout))))
	r.logger.DebugContext(ctx, "background: http route", "service", rt.Service, "endpoint", rt.Endpoint)
	return e
}

func httpTimeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return 30 * time.Second
}

// Call routes one request:
//  1. noop route: succeeds with a nil reply.
//  2. http route: POST to the endpoint.
//  3. local handler: strategy local, or no route.
//  4. ErrServiceNotFound.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	e, hasRoute := r.routes[service]
	localH := r.local[service]
	r.mu.RUnlock()

	if hasRoute {
		switch e.route.Strategy {
		case StrategyNoop:
			r.logger.DebugContext(ctx, "background: routing noop", "service", service)
			return nil, nil
		case StrategyHTTP:
			return e.handler(ctx, payload)
		}
	}
	if localH != nil {
		return Chain(Recovery(r.logger), Timeout(e.timeout()))(localH)(ctx, payload)
	}
	return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, service)
}

func (e *routeEntry) timeout() time.Duration {
	if e == nil {
		return 0
	}
	return e.route.Timeout
}

// BreakerState reports the breaker state of an http route. ok is false for
// services without one.
func (r *Router) BreakerState(service string) (state BreakerState, ok bool) {
	r.mu.RLock()
	e, found := r.routes[service]
	r.mu.RUnlock()
	if !found || e.breaker == nil {
		return BreakerClosed, false
	}
	return e.breaker.State(), true
}
