package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Limiter counts requests per key in fixed windows. A key's window opens
// with its first request and closes Window later.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	rejected atomic.Int64

	limit      int
	length     time.Duration
	staleAfter time.Duration
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type window struct {
	opened time.Time
	count  int
}

type Config struct {
	// Limit is the number of requests a key may make per window.
	Limit           int
	Window          time.Duration
	CleanupInterval time.Duration
	// StaleAfter drops keys whose window opened longer ago than this.
	StaleAfter time.Duration
}

// DefaultConfig allows 60 writes per minute per client.
func DefaultConfig() Config {
	return Config{
		Limit:           60,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
		StaleAfter:      10 * time.Minute,
	}
}

// NewLimiter starts a limiter and its cleanup loop. Zero fields take their
// defaults.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.StaleAfter < cfg.Window {
		cfg.StaleAfter = max(def.StaleAfter, cfg.Window)
	}

	l := &Limiter{
		windows:    make(map[string]*window),
		limit:      cfg.Limit,
		length:     cfg.Window,
		staleAfter: cfg.StaleAfter,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	go l.cleanupLoop(cfg.CleanupInterval)
	return l
}

// Allow records a request for key and reports whether it fits the window.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.take(key)
	return ok
}

// take also returns how long until key's window closes.
func (l *Limiter) take(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, found := l.windows[key]
	if !found || now.Sub(w.opened) >= l.length {
		l.windows[key] = &window{opened: now, count: 1}
		return true, l.length
	}

	w.count++
	remaining := l.length - now.Sub(w.opened)
	if w.count > l.limit {
		l.rejected.Add(1)
		return false, remaining
	}
	return true, remaining
}

func (l *Limiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, w := range l.windows {
		if now.Sub(w.opened) > l.staleAfter {
			delete(l.windows, key)
		}
	}
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Stats is a point-in-time view of the limiter.
type Stats struct {
	Rejected int64
	Keys     int
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	keys := len(l.windows)
	l.mu.Unlock()
	return Stats{Rejected: l.rejected.Load(), Keys: keys}
}

// Middleware limits requests matched by applies, keyed by key(r).
// A nil applies limits every request; a nil onLimit writes a plain 429.
func (l *Limiter) Middleware(key func(*http.Request) string, applies func(*http.Request) bool, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if applies != nil && !applies(r) {
				next.ServeHTTP(w, r)
				return
			}
			ok, remaining := l.take(key(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			secs := int(remaining.Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		})
	}
}
