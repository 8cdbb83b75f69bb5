package api

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Per-IP rate limiting for the analysis routes.
//
// Each client IP gets its own token bucket (x/time/rate). When the bucket is
// empty the request receives HTTP 429 with a Retry-After header in seconds.
// Buckets idle for longer than cleanupIdleDuration are dropped.

const cleanupIdleDuration = 10 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds per-IP state.
type RateLimiter struct {
	limit      rate.Limit
	burst      int
	ratePerMin int

	mu      sync.Mutex
	clients map[string]*ipLimiter
}

// NewRateLimiter allows ratePerMin requests per minute per IP with the given
// burst capacity.
func NewRateLimiter(ratePerMin, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:      rate.Limit(float64(ratePerMin) / 60.0),
		burst:      burst,
		ratePerMin: ratePerMin,
		clients:    make(map[string]*ipLimiter),
	}
}

func (rl *RateLimiter) get(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.clients[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (rl *RateLimiter) allow(ip string) (bool, time.Duration) {
	now := time.Now()
	r := rl.get(ip, now).ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Middleware returns a Gin handler that enforces the rate limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := rl.allow(c.ClientIP())
		if !allowed {
			secs := int(math.Ceil(retryAfter.Seconds()))
			c.Header("Retry-After", fmt.Sprintf("%d", secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Rate limit exceeded",
				"retryAfter": secs,
				"limit":      fmt.Sprintf("%d requests/minute per IP", rl.ratePerMin),
			})
			return
		}
		c.Next()
	}
}

// CleanupLoop removes idle IP buckets until ctx is cancelled.
func (rl *RateLimiter) CleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupIdleDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.evictIdle(now.Add(-cleanupIdleDuration))
		}
	}
}

func (rl *RateLimiter) evictIdle(cutoff time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	evicted := 0
	for ip, entry := range rl.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
			evicted++
		}
	}
	return evicted
}
