// Package middleware holds HTTP middleware shared by the API server.
package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lcrostarosa/proofmode/internal/config"
	"github.com/lcrostarosa/proofmode/internal/logging"
)

// Limits is a token bucket applied to each client separately.
type Limits struct {
	PerSecond float64
	Burst     int
	// Idle is how long a client may stay quiet before its bucket is dropped.
	Idle time.Duration
	// TrustProxy takes the client address from X-Forwarded-For or X-Real-IP.
	// Only enable it behind a reverse proxy that sets those headers.
	TrustProxy bool
}

// DefaultLimits allows 10 requests per second with bursts of 20.
func DefaultLimits() Limits {
	return Limits{PerSecond: 10, Burst: 20, Idle: 5 * time.Minute}
}

// LimitsFromConfig applies the configured rate on top of DefaultLimits.
func LimitsFromConfig(cfg config.RateLimitConfig) Limits {
	l := DefaultLimits()
	if cfg.RequestsPerSecond > 0 {
		l.PerSecond = cfg.RequestsPerSecond
	}
	if cfg.Burst > 0 {
		l.Burst = cfg.Burst
	}
	l.TrustProxy = cfg.TrustProxy
	return l
}

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter rejects requests from clients that exceed their Limits
// with 429 and a Retry-After header.
type ClientLimiter struct {
	limits Limits

	mu      sync.Mutex
	clients map[string]*client

	done     chan struct{}
	stopOnce sync.Once
}

// NewClientLimiter starts a limiter. Stop releases its sweeper goroutine.
func NewClientLimiter(l Limits) *ClientLimiter {
	if l.Burst < 1 {
		l.Burst = 1
	}
	if l.Idle <= 0 {
		l.Idle = DefaultLimits().Idle
	}
	c := &ClientLimiter{limits: l, clients: make(map[string]*client), done: make(chan struct{})}
	go c.sweepEvery(max(l.Idle/2, time.Second))
	return c
}

// Handler wraps next.
func (c *ClientLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := c.clientKey(r)
		if wait := c.reserve(key, time.Now()); wait > 0 {
			logging.Debug("Rate limited", logging.String("client", key), logging.String("path", r.URL.Path))
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"error":"too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// reserve takes a token for key and returns zero, or returns how long the
// client must wait and takes nothing.
func (c *ClientLimiter) reserve(key string, now time.Time) time.Duration {
	c.mu.Lock()
	cl, ok := c.clients[key]
	if !ok {
		cl = &client{bucket: rate.NewLimiter(rate.Limit(c.limits.PerSecond), c.limits.Burst)}
		c.clients[key] = cl
	}
	cl.lastSeen = now
	c.mu.Unlock()

	res := cl.bucket.ReserveN(now, 1)
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return d
	}
	return 0
}

func (c *ClientLimiter) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.sweep(now)
		case <-c.done:
			return
		}
	}
}

// sweep forgets clients idle since before now minus Idle.
func (c *ClientLimiter) sweep(now time.Time) {
	cutoff := now.Add(-c.limits.Idle)
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, cl := range c.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(c.clients, key)
		}
	}
}

// Clients returns the number of clients currently tracked.
func (c *ClientLimiter) Clients() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// Stop ends the sweeper. It may be called more than once.
func (c *ClientLimiter) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *ClientLimiter) clientKey(r *http.Request) string {
	if c.limits.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
