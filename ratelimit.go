package auth

import (
	"sync"
	"time"

	"github.com/goliatone/go-router"
	"golang.org/x/time/rate"
)

// LoginLimiter throttles login requests per client key with a token bucket.
type LoginLimiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	maxKeys int
	now     func() time.Time
	clients map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type LoginLimiterOption func(*LoginLimiter)

func WithLimiterClock(now func() time.Time) LoginLimiterOption {
	return func(l *LoginLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLimiterMaxKeys bounds the number of tracked clients.
func WithLimiterMaxKeys(n int) LoginLimiterOption {
	return func(l *LoginLimiter) {
		if n > 0 {
			l.maxKeys = n
		}
	}
}

// NewLoginLimiter allows burst requests at once and one more every interval.
func NewLoginLimiter(interval time.Duration, burst int, opts ...LoginLimiterOption) *LoginLimiter {
	if burst <= 0 {
		burst = 1
	}
	l := &LoginLimiter{
		every:   rate.Every(interval),
		burst:   burst,
		maxKeys: 10_000,
		now:     time.Now,
		clients: make(map[string]*limiterEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Allow reports whether key may send one more request now.
func (l *LoginLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	entry, ok := l.clients[key]
	if !ok {
		if len(l.clients) >= l.maxKeys {
			l.pruneLocked(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.clients[key] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// pruneLocked drops clients whose bucket has refilled, then the least
// recently seen one if that was not enough.
func (l *LoginLimiter) pruneLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for key, entry := range l.clients {
		if entry.limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.clients, key)
			continue
		}
		if oldestKey == "" || entry.lastSeen.Before(oldest) {
			oldestKey, oldest = key, entry.lastSeen
		}
	}
	if len(l.clients) >= l.maxKeys && oldestKey != "" {
		delete(l.clients, oldestKey)
	}
}

// Handler returns a router middleware keyed by client IP.
func (l *LoginLimiter) Handler() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if !l.Allow(ctx.IP()) {
				return writeError(ctx, ErrRateLimited)
			}
			return next(ctx)
		}
	}
}
