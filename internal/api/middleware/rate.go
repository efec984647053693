package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig bounds admin requests per client address
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// AdminRateLimitConfig derives a per-client limit from the configured
// requests per second. Zero disables limiting.
func AdminRateLimitConfig(perSecond int) RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: perSecond, Burst: 2 * perSecond}
}

// RateLimit limits each client address separately
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	var (
		mu      sync.Mutex
		clients = make(map[string]*rate.Limiter)
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		limiter, ok := clients[ip]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
			clients[ip] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
