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

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests a key may make per Window.
	Max    int
	Window time.Duration
	// KeyFunc picks the budget a request is charged to. Defaults to the
	// client IP.
	KeyFunc func(*http.Request) string
	// Skip exempts requests from limiting, e.g. health probes.
	Skip func(*http.Request) bool
}

// counter approximates a sliding window from two aligned fixed windows: the
// previous window's count is weighted by how much of it the sliding window
// still covers.
type counter struct {
	start time.Time // start of the current fixed window
	prev  int
	curr  int
}

func (c *counter) advance(now time.Time, window time.Duration) {
	start := now.Truncate(window)
	switch d := start.Sub(c.start); {
	case d <= 0:
		return
	case d == window:
		c.prev, c.curr = c.curr, 0
	default:
		c.prev, c.curr = 0, 0
	}
	c.start = start
}

func (c *counter) estimate(now time.Time, window time.Duration) float64 {
	weight := 1 - float64(now.Sub(c.start))/float64(window)
	if weight < 0 {
		weight = 0
	}
	return float64(c.prev)*weight + float64(c.curr)
}

// quota is the outcome of charging one request to a key.
type quota struct {
	limit     int
	remaining int
	reset     time.Time
	allowed   bool
}

func (q quota) writeHeaders(h http.Header, now time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(q.limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(q.remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(q.reset.Unix(), 10))
	if !q.allowed {
		wait := math.Ceil(q.reset.Sub(now).Seconds())
		h.Set("Retry-After", strconv.Itoa(max(1, int(wait))))
	}
}

type limiter struct {
	max    int
	window time.Duration
	key    func(*http.Request) string
	skip   func(*http.Request) bool
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

func newLimiter(cfg RateLimitConfig) *limiter {
	l := &limiter{
		max:      cfg.Max,
		window:   cfg.Window,
		key:      cfg.KeyFunc,
		skip:     cfg.Skip,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
	if l.key == nil {
		l.key = defaultKeyFunc
	}
	if l.skip == nil {
		l.skip = func(*http.Request) bool { return false }
	}
	return l
}

// take charges one request to key unless its budget is spent.
func (l *limiter) take(key string, now time.Time) quota {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok {
		c = &counter{start: now.Truncate(l.window)}
		l.counters[key] = c
	}
	c.advance(now, l.window)

	q := quota{limit: l.max, reset: c.start.Add(l.window)}
	used := c.estimate(now, l.window)
	if used >= float64(l.max) {
		return q
	}
	c.curr++
	q.allowed = true
	q.remaining = max(0, l.max-int(math.Ceil(used+1)))
	return q
}

// sweep drops keys whose counts no longer affect any sliding window.
func (l *limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, c := range l.counters {
		if now.Sub(c.start) >= 2*l.window {
			delete(l.counters, key)
		}
	}
}

func (l *limiter) sweepEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		key := l.key(r)
		now := l.now()
		q := l.take(key, now)
		q.writeHeaders(w.Header(), now)
		if !q.allowed {
			zctx.From(r.Context()).Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("path", r.URL.Path),
			)
			WriteError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit limits each key to cfg.Max requests per sliding cfg.Window.
// Rejected requests get 429 with the failure envelope and Retry-After.
// Idle keys are never evicted; long-running servers should use
// RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit with a goroutine that evicts idle keys
// until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go l.sweepEvery(ctx, 2*cfg.Window)
	return l.middleware
}

// SkipPaths exempts requests to the given exact paths.
func SkipPaths(paths ...string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.URL.Path]
		return ok
	}
}

// HeaderKeyFunc keys requests by header value joined with the client IP, so
// a spoofed header cannot spend another caller's budget. Requests without
// the header are keyed by IP alone.
func HeaderKeyFunc(header string) func(*http.Request) string {
	return func(r *http.Request) string {
		ip := defaultKeyFunc(r)
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return v + "|" + ip
		}
		return ip
	}
}

// defaultKeyFunc returns the first X-Forwarded-For hop, then X-Real-IP, then
// the RemoteAddr host.
func defaultKeyFunc(r *http.Request) string {
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
