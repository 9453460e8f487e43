package crawler

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostLimiter paces requests per host so successive fetches against the same
// site are at least one delay apart. The first request to a host goes through
// immediately.
type hostLimiter struct {
	mu       sync.Mutex
	delay    time.Duration
	limiters map[string]*rate.Limiter
}

func newHostLimiter(delay time.Duration) *hostLimiter {
	return &hostLimiter{
		delay:    delay,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (h *hostLimiter) limiterFor(rawURL string) *rate.Limiter {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	lim, ok := h.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(h.delay), 1)
		h.limiters[host] = lim
	}
	return lim
}

// Wait blocks until the host's limiter admits another request or the context
// is cancelled. A zero delay never blocks.
func (h *hostLimiter) Wait(ctx context.Context, rawURL string) error {
	if h.delay <= 0 {
		return ctx.Err()
	}
	return h.limiterFor(rawURL).Wait(ctx)
}
