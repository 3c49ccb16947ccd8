package providers

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Throttle paces outbound provider calls per key (typically the cache domain)
// so bursts of UI searches do not trip upstream rate limits.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewThrottle allows perSecond requests per key with the given burst. A
// non-positive rate disables throttling.
func NewThrottle(perSecond float64, burst int) *Throttle {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until a call for key may proceed or ctx is done.
func (t *Throttle) Wait(ctx context.Context, key string) error {
	if t == nil {
		return nil
	}
	return t.limiter(key).Wait(ctx)
}

// Allow reports whether a call for key may proceed now without waiting.
func (t *Throttle) Allow(key string) bool {
	if t == nil {
		return true
	}
	return t.limiter(key).Allow()
}

func (t *Throttle) limiter(key string) *rate.Limiter {
	if key == "" {
		key = "default"
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if l, ok := t.limiters[key]; ok {
		return l
	}
	l := rate.NewLimiter(t.limit, t.burst)
	t.limiters[key] = l
	return l
}
