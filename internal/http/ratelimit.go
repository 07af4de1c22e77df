package http

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultRequestsPerMinute = 60
	limiterCleanupInterval   = 5 * time.Minute
	limiterStaleAfter        = 10 * time.Minute
)

// rateLimiter is a fixed one minute window per client IP.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	limit        int
	now          func() time.Time
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	windowStart time.Time
	requests    int
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	return &rateLimiter{
		clients:     make(map[string]*clientInfo),
		limit:       requestsPerMinute,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
}

func (rl *rateLimiter) start() {
	go func() {
		ticker := time.NewTicker(limiterCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanupStaleEntries()
			case <-rl.stopCleanup:
				return
			}
		}
	}()
}

func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-limiterStaleAfter)
	for ip, c := range rl.clients {
		if c.windowStart.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() { close(rl.stopCleanup) })
}

// allow counts one request for clientIP and reports whether it fits the window.
func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[clientIP]
	if !ok || now.Sub(c.windowStart) >= time.Minute {
		rl.clients[clientIP] = &clientInfo{windowStart: now, requests: 1}
		return true
	}
	c.requests++
	return c.requests <= rl.limit
}

func (rl *rateLimiter) middleware(m *securityMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(extractClientIP(r)) {
				atomic.AddInt64(&m.rateLimitHits, 1)
				ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").
					Header("Retry-After", strconv.Itoa(60)).
					Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
