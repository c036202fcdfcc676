package tools

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces per-session tool call rate limits using token buckets.
type RateLimiter struct {
	limiters sync.Map   // session key → *limiterEntry
	r        rate.Limit // refill rate (calls per second)
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing cpm tool calls per minute per
// session. If cpm <= 0 the limiter always allows.
func NewRateLimiter(cpm, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 3
	}
	r := rate.Limit(0)
	if cpm > 0 {
		r = rate.Limit(float64(cpm) / 60.0)
	}
	rl := &RateLimiter{r: r, burst: burst}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a tool call for the given session key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.r == 0 {
		return true
	}
	entry := rl.getOrCreate(key)
	if !entry.limiter.Allow() {
		slog.Warn("tool call rate limited", "session", key)
		return false
	}
	entry.lastSeen = time.Now()
	return true
}

func (rl *RateLimiter) getOrCreate(key string) *limiterEntry {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	entry := &limiterEntry{
		limiter:  rate.NewLimiter(rl.r, rl.burst),
		lastSeen: time.Now(),
	}
	actual, _ := rl.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		rl.limiters.Range(func(key, value any) bool {
			if value.(*limiterEntry).lastSeen.Before(cutoff) {
				rl.limiters.Delete(key)
			}
			return true
		})
	}
}
