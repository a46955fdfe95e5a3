package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// RateLimitConfig describes one request budget.
type RateLimitConfig struct {
	// Name identifies the budget in the X-RateLimit-Scope header and logs.
	Name string
	// Max is the number of requests a client may make per Window.
	Max int
	// Window is the length of the sliding window.
	Window time.Duration
	// KeyFunc returns the client a request is charged to. Requests with an
	// empty key are not charged. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// window is a sliding window approximated by two fixed windows: the count of
// the previous window is weighted by how much of it still overlaps.
type window struct {
	start time.Time
	prev  float64
	curr  float64
}

func (w *window) advance(now time.Time, size time.Duration) {
	start := now.Truncate(size)
	switch gap := start.Sub(w.start); {
	case gap == 0:
	case gap == size:
		w.prev, w.curr = w.curr, 0
	default:
		w.prev, w.curr = 0, 0
	}
	w.start = start
}

// take charges one request unless the weighted count already reached limit.
func (w *window) take(now time.Time, size time.Duration, limit int) (remaining int, reset time.Time, ok bool) {
	w.advance(now, size)
	reset = w.start.Add(size)

	overlap := 1 - float64(now.Sub(w.start))/float64(size)
	used := w.prev*overlap + w.curr
	if used >= float64(limit) {
		return 0, reset, false
	}
	w.curr++
	return max(0, int(float64(limit)-used-1)), reset, true
}

func (w *window) idle(now time.Time, size time.Duration) bool {
	return now.Sub(w.start) >= 2*size
}

// RateLimiter enforces a RateLimitConfig per client.
type RateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	clients map[string]*window
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &RateLimiter{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*window),
	}
}

func (l *RateLimiter) take(key string) (remaining int, reset time.Time, ok bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, found := l.clients[key]
	if !found {
		w = &window{}
		l.clients[key] = w
	}
	return w.take(now, l.cfg.Window, l.cfg.Max)
}

// evict drops clients idle for two windows.
func (l *RateLimiter) evict() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.clients {
		if w.idle(now, l.cfg.Window) {
			delete(l.clients, key)
		}
	}
}

// StartCleanup evicts idle clients every two windows until ctx is done.
func (l *RateLimiter) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(2 * l.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.evict()
			}
		}
	}()
}

// Middleware charges each request to its client and answers 429 with the
// error envelope once the budget is spent.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.cfg.KeyFunc(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		remaining, reset, ok := l.take(key)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		if l.cfg.Name != "" {
			h.Set("X-RateLimit-Scope", l.cfg.Name)
		}

		if !ok {
			wait := max(0, reset.Sub(l.now()))
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			zctx.From(r.Context()).Warn("Rate limited",
				zap.String("budget", l.cfg.Name),
				zap.String("client", key),
			)
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimit returns a per-client rate limiting middleware without eviction
// of idle clients.
func RateLimit(cfg RateLimitConfig) Middleware {
	return NewRateLimiter(cfg).Middleware
}

// RateLimitWithCleanup is RateLimit with idle clients evicted until ctx is
// done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := NewRateLimiter(cfg)
	l.StartCleanup(ctx)
	return l.Middleware
}

// ClientIP returns the originating address of r: the first X-Forwarded-For
// hop, then X-Real-IP, then the connection peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
