package mw

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// IPRateLimiter hands out one token bucket per client IP, so a single
// misbehaving importer cannot starve the other viewers.
type IPRateLimiter struct {
	mu    sync.Mutex
	ips   map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

// NewIPRateLimiter creates a limiter pool with the given refill rate and
// burst size.
func NewIPRateLimiter(limit rate.Limit, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:   make(map[string]*rate.Limiter),
		limit: limit,
		burst: burst,
	}
}

// Limiter returns the bucket for an IP, creating it on first sight.
func (i *IPRateLimiter) Limiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	limiter, ok := i.ips[ip]
	if !ok {
		limiter = rate.NewLimiter(i.limit, i.burst)
		i.ips[ip] = limiter
	}
	return limiter
}

// RateLimiter is gin middleware applying per-IP rate limiting to the API
// group it is mounted on.
func RateLimiter(limit rate.Limit, burst int) gin.HandlerFunc {
	limiters := NewIPRateLimiter(limit, burst)
	return func(c *gin.Context) {
		if !limiters.Limiter(c.ClientIP()).Allow() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
