// Package ratelimit caps record mutations per client in fixed windows.
// Reads are never limited.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Config sets the budget of each client. Zero values fall back to DefaultConfig.
type Config struct {
	// Requests allowed per client in one window.
	Requests int
	Window   time.Duration
	// IdleTTL is how long an idle client stays tracked.
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig allows 60 mutations per minute.
func DefaultConfig() Config {
	return Config{
		Requests:        60,
		Window:          time.Minute,
		IdleTTL:         10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Requests <= 0 {
		c.Requests = d.Requests
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = d.IdleTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	return c
}

type window struct {
	start time.Time
	last  time.Time
	count int
}

// Limiter tracks one window per client key.
type Limiter struct {
	cfg  Config
	now  func() time.Time
	hits atomic.Int64

	mu      sync.Mutex
	clients map[string]*window

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter starts a limiter and its sweeper. Call Stop to release it.
func NewLimiter(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		clients: make(map[string]*window),
		stop:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow records a request for key. When the budget is spent it returns
// false and the time left until the window resets.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[key]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		l.clients[key] = &window{start: now, last: now, count: 1}
		return true, 0
	}
	w.last = now
	if w.count >= l.cfg.Requests {
		l.hits.Add(1)
		return false, w.start.Add(l.cfg.Window).Sub(now)
	}
	w.count++
	return true, 0
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.dropIdle()
		case <-l.stop:
			return
		}
	}
}

// dropIdle forgets clients idle for longer than IdleTTL.
func (l *Limiter) dropIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.cfg.IdleTTL)
	removed := 0
	for key, w := range l.clients {
		if w.last.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Stop ends the sweeper. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Metrics is a point-in-time view for /metrics.
type Metrics struct {
	TotalHits   int64
	ClientCount int64
}

func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalHits:   l.hits.Load(),
		ClientCount: int64(l.ActiveClients()),
	}
}

// LimitFunc answers a rejected request. retryAfter is the time left in the
// client's window.
type LimitFunc func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)

// RetryAfterSeconds rounds d up to whole seconds for the Retry-After header.
func RetryAfterSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	return max(s, 1)
}

// Middleware limits unsafe methods per key(r). GET, HEAD and OPTIONS pass
// through untouched.
func (l *Limiter) Middleware(key func(*http.Request) string, onLimit LimitFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			ok, retry := l.Allow(key(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			if onLimit != nil {
				onLimit(w, r, retry)
				return
			}
			w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds(retry)))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		})
	}
}
