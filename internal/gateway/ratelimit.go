// ABOUTME: Per-conversation token bucket limiting for inbound activities
// ABOUTME: Limiters live in a bounded TTL cache and are recreated after expiry

package gateway

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/coven-botkit/internal/cache"
)

const (
	limiterIdleTTL  = 10 * time.Minute
	limiterMaxCount = 100_000
)

// conversationLimiter holds one token bucket per conversation. A nil
// limiter allows everything.
type conversationLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *cache.Cache[*rate.Limiter]
}

func newConversationLimiter(rps float64, burst int) *conversationLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &conversationLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: cache.New[*rate.Limiter](limiterIdleTTL, limiterMaxCount),
	}
}

// Allow reports whether an activity for key may proceed now.
func (l *conversationLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	lim, ok := l.limiters.Get(key)
	if !ok {
		candidate := rate.NewLimiter(l.limit, l.burst)
		if l.limiters.SetIfAbsent(key, candidate) {
			lim, ok = l.limiters.Get(key)
		}
		if !ok {
			lim = candidate
		}
	}
	return lim.Allow()
}

// Close stops the cache cleanup goroutine.
func (l *conversationLimiter) Close() {
	if l != nil {
		l.limiters.Close()
	}
}
