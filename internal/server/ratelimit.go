package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// rateLimiterCleanupInterval is how often idle buckets are swept.
	rateLimiterCleanupInterval = 5 * time.Minute

	// rateLimiterIdleTTL is how long a bucket may stay unused before removal.
	rateLimiterIdleTTL = 10 * time.Minute
)

// RateLimiter implements a token bucket rate limiter per IP address
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*bucket
	rate       int  // tokens per second
	burst      int  // max burst size
	trustProxy bool // whether to trust proxy headers
	lastSweep  time.Time
	now        func() time.Time
}

// bucket represents a token bucket for rate limiting
type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewRateLimiter creates a new rate limiter
// rate: tokens per second, burst: maximum burst size, trustProxy: whether to trust proxy headers
func NewRateLimiter(rate, burst int, trustProxy bool) *RateLimiter {
	return &RateLimiter{
		limiters:   make(map[string]*bucket),
		rate:       rate,
		burst:      burst,
		trustProxy: trustProxy,
		lastSweep:  time.Now(),
		now:        time.Now,
	}
}

// Allow checks if a request from the given IP should be allowed
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	b, exists := rl.limiters[ip]
	if !exists {
		b = &bucket{tokens: float64(rl.burst), lastUpdate: now}
		rl.limiters[ip] = b
	}

	// Add tokens based on elapsed time
	elapsed := now.Sub(b.lastUpdate).Seconds()
	b.tokens = min(b.tokens+elapsed*float64(rl.rate), float64(rl.burst))
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// sweep drops idle buckets. Called with mu held.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rateLimiterCleanupInterval {
		return
	}
	rl.lastSweep = now
	for ip, b := range rl.limiters {
		if now.Sub(b.lastUpdate) > rateLimiterIdleTTL {
			delete(rl.limiters, ip)
		}
	}
}

// getClientIP extracts the client IP address from the request
// trustProxy: if true, trust X-Forwarded-For and X-Real-IP headers (only if behind trusted proxy)
func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
