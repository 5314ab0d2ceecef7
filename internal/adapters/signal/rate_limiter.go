package signal

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ConnRateLimiter caps how many sockets one client IP may open per interval.
// Each IP gets a token bucket holding limit tokens that refills over interval.
type ConnRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rate      rate.Limit
	burst     int
	interval  time.Duration
	cleanupAt time.Time
	now       func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnRateLimiter(limit int, interval time.Duration) *ConnRateLimiter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ConnRateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Every(interval / time.Duration(limit)),
		burst:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *ConnRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if rl.cleanupAt.IsZero() {
		rl.cleanupAt = now.Add(rl.interval)
	}
	if !now.Before(rl.cleanupAt) {
		rl.cleanup(now)
		rl.cleanupAt = now.Add(rl.interval)
	}

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// cleanup drops limiters idle for a full interval. Their buckets have
// refilled by then, so a fresh one behaves the same. Must be called with mu held.
func (rl *ConnRateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-rl.interval)
	for key, entry := range rl.limiters {
		if !entry.lastSeen.After(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

// ActiveLimiters returns how many client IPs are currently tracked.
func (rl *ConnRateLimiter) ActiveLimiters() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Middleware rejects over-limit upgrades with 429 before they reach the
// WebSocket handler.
func (rl *ConnRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !rl.Allow(ip) {
			log.Warn().Str("module", "signal").Str("remote", ip).Msg("connection rate limited")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many connections"})
			return
		}
		c.Next()
	}
}
