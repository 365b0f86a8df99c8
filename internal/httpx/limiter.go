// Package httpx is the shared JSON-over-HTTP plumbing for third-party APIs:
// per-host token-bucket limits, timeouts and status classification.
package httpx

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter rate limits requests per host.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
	perHost  map[string]rate.Limit
}

// NewLimiter creates a limiter allowing rps requests per second per host.
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
		perHost:  make(map[string]rate.Limit),
	}
}

// SetHostRPS overrides the rate for one host. Call before first use of that host.
func (l *Limiter) SetHostRPS(host string, rps float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perHost[host] = rate.Limit(rps)
	if lim, ok := l.limiters[host]; ok {
		lim.SetLimit(rate.Limit(rps))
	}
}

func (l *Limiter) get(host string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[host]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[host]; ok {
		return lim
	}
	r := rate.Limit(l.rps)
	if v, ok := l.perHost[host]; ok {
		r = v
	}
	lim = rate.NewLimiter(r, l.burst)
	l.limiters[host] = lim
	return lim
}

// Wait blocks until host may be called or ctx ends.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if l == nil {
		return nil
	}
	return l.get(host).Wait(ctx)
}

// Allow reports whether host may be called now without waiting.
func (l *Limiter) Allow(host string) bool {
	if l == nil {
		return true
	}
	return l.get(host).Allow()
}
