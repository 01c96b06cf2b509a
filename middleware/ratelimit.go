package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter stores rate limiters for each IP
type RateLimiter struct {
	clients  map[string]*client
	mu       sync.Mutex
	requests int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clients:  make(map[string]*client),
		requests: requests,
		window:   window,
		now:      time.Now,
	}
}

// GetLimiter returns a rate limiter for the given IP
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, exists := rl.clients[ip]
	if !exists {
		// requests per second, bursting up to the full window allowance
		ratePerSecond := float64(rl.requests) / rl.window.Seconds()
		c = &client{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), rl.requests)}
		rl.clients[ip] = c
	}
	c.lastSeen = rl.now()
	return c.limiter
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.GetLimiter(clientIP(r)).Allow() {
				writeError(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Prune drops limiters idle for longer than maxIdle.
func (rl *RateLimiter) Prune(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-maxIdle)
	removed := 0
	for ip, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

// CleanupOldLimiters prunes idle limiters every hour until ctx is done.
func (rl *RateLimiter) CleanupOldLimiters(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Prune(time.Hour)
			}
		}
	}()
}
