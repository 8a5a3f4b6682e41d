package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/dorkhound/config"
	"github.com/use-agent/dorkhound/models"
	"golang.org/x/time/rate"
)

const (
	limiterTTL    = time.Hour
	sweepInterval = 5 * time.Minute
)

// RateLimit returns token-bucket rate limiting middleware backed by
// golang.org/x/time/rate. Buckets are keyed per caller (API key when the
// auth middleware set one, client IP otherwise) and per route, so a
// caller hammering POST /search does not lock themselves out of reading
// their own stats.
//
// Stale buckets are swept lazily on access instead of by a background
// goroutine; a quiet server holds no timers.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	rl := &routeLimiter{
		perSecond: rate.Limit(cfg.RequestsPerSecond),
		burst:     cfg.Burst,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}

	return func(c *gin.Context) {
		caller, ok := c.Get("api_key")
		if !ok {
			caller = c.ClientIP()
		}
		key := caller.(string) + " " + c.Request.Method + " " + c.FullPath()

		if !rl.allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.SearchResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}
		c.Next()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type routeLimiter struct {
	perSecond rate.Limit
	burst     int

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func (rl *routeLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) >= sweepInterval {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) > limiterTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.perSecond, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}
