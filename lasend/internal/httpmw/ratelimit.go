package httpmw

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket per client IP.
type RateLimitConfig struct {
	// PerMinute is the sustained request rate. Zero disables limiting.
	PerMinute int `yaml:"per_minute"`
	Burst     int `yaml:"burst"`
	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool `yaml:"trust_proxy"`
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter limits requests per client IP. Idle clients are forgotten
// by GC.
type RateLimiter struct {
	cfg    RateLimitConfig
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*client
	now     func() time.Time
}

// NewRateLimiter returns a limiter. A zero Burst defaults to PerMinute/6,
// at least 1.
func NewRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = max(cfg.PerMinute/6, 1)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*client),
		now:     time.Now,
	}
}

// Allow reports whether ip may make a request now.
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.cfg.PerMinute <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	c, ok := rl.clients[ip]
	if !ok {
		c = &client{lim: rate.NewLimiter(rate.Limit(float64(rl.cfg.PerMinute)/60), rl.cfg.Burst)}
		rl.clients[ip] = c
	}
	c.seen = now
	return c.lim.AllowN(now, 1)
}

// GC drops clients idle for longer than idle and returns how many.
func (rl *RateLimiter) GC(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-idle)
	n := 0
	for ip, c := range rl.clients {
		if c.seen.Before(cutoff) {
			delete(rl.clients, ip)
			n++
		}
	}
	return n
}

// StartGC runs GC every interval until done is closed.
func (rl *RateLimiter) StartGC(done <-chan struct{}, interval time.Duration) {
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				rl.GC(interval)
			}
		}
	}()
}

// Middleware rejects over-limit requests with 429 and a JSON error.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if rl.cfg.TrustProxy {
			ip = forwardedIP(r, ip)
		}
		if rl.Allow(ip) {
			next.ServeHTTP(w, r)
			return
		}
		rl.logger.Warn("httpmw: rate limit exceeded", "ip", ip, "path", r.URL.Path)
		retry := max(60/max(rl.cfg.PerMinute, 1), 1)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ClientIP returns the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func forwardedIP(r *http.Request, fallback string) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return fallback
	}
	first, _, _ := strings.Cut(xff, ",")
	if ip := strings.TrimSpace(first); ip != "" {
		return ip
	}
	return fallback
}
