// Package ratelimit throttles clients with a token bucket per key.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Limiter hands each client a bucket refilled at a steady rate.
type Limiter struct {
	mu           sync.Mutex
	clients      map[string]*bucket
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
	now          func() time.Time

	// Configuration
	perSecond       float64
	burst           float64
	cleanupInterval time.Duration
	onLimit         func()
}

type bucket struct {
	tokens float64
	last   time.Time
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	// Burst defaults to RequestsPerMinute.
	Burst           int
	CleanupInterval time.Duration
	// OnLimit is called for every rejected request.
	OnLimit func()
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 20,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewLimiter creates a new rate limiter and starts its cleanup loop.
func NewLimiter(config Config) *Limiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if config.Burst <= 0 {
		config.Burst = config.RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	rl := &Limiter{
		clients:         make(map[string]*bucket),
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
		perSecond:       float64(config.RequestsPerMinute) / 60,
		burst:           float64(config.Burst),
		cleanupInterval: config.CleanupInterval,
		onLimit:         config.OnLimit,
	}
	go rl.startCleanup()
	return rl
}

// refill tops up b for the time elapsed since its last use. Caller holds mu.
func (rl *Limiter) refill(key string, now time.Time) *bucket {
	b, ok := rl.clients[key]
	if !ok {
		b = &bucket{tokens: rl.burst, last: now}
		rl.clients[key] = b
		return b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = math.Min(rl.burst, b.tokens+elapsed*rl.perSecond)
		b.last = now
	}
	return b
}

// Allow takes a token for key if one is available.
func (rl *Limiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b := rl.refill(key, rl.now())
	if b.tokens < 1 {
		if rl.onLimit != nil {
			rl.onLimit()
		}
		return false
	}
	b.tokens--
	return true
}

// RetryAfter is how long key must wait for its next token.
func (rl *Limiter) RetryAfter(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b := rl.refill(key, rl.now())
	if b.tokens >= 1 {
		return 0
	}
	return time.Duration((1 - b.tokens) / rl.perSecond * float64(time.Second))
}

func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupIdle()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupIdle drops buckets that have refilled completely; a fresh bucket
// is identical to them.
func (rl *Limiter) cleanupIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.clients {
		if b.tokens+now.Sub(b.last).Seconds()*rl.perSecond >= rl.burst {
			delete(rl.clients, key)
		}
	}
}

// ActiveClients returns the number of currently tracked clients
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop gracefully shuts down the cleanup goroutine
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Middleware rejects requests over the limit with 429. onLimit may write a
// custom response; Retry-After is set before it runs.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := extractIP(r)

			if !rl.Allow(clientIP) {
				secs := int(math.Ceil(rl.RetryAfter(clientIP).Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				if onLimit != nil {
					onLimit(w, r)
				} else {
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
