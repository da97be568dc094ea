package signal

import (
	"sync"

	"github.com/dkeye/callplane/internal/core"
	"golang.org/x/time/rate"
)

// LinkRateLimiter keeps one token bucket per host link.
type LinkRateLimiter struct {
	mu       sync.Mutex
	limiters map[core.LinkID]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewLinkRateLimiter allows perSecond commands with bursts of burst. A
// non-positive perSecond disables limiting.
func NewLinkRateLimiter(perSecond float64, burst int) *LinkRateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &LinkRateLimiter{
		limiters: make(map[core.LinkID]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (rl *LinkRateLimiter) Allow(link core.LinkID) bool {
	rl.mu.Lock()
	l, ok := rl.limiters[link]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[link] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

func (rl *LinkRateLimiter) Forget(link core.LinkID) {
	rl.mu.Lock()
	delete(rl.limiters, link)
	rl.mu.Unlock()
}
