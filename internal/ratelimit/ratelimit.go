// Package ratelimit wraps golang.org/x/time/rate with the two shapes the
// detector needs: per-minute budgets for outbound sinks and per-second
// budgets for on-chain reads.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket.
type Limiter struct {
	limiter *rate.Limiter
}

// New allows requestsPerMinute with a burst of a tenth of that, at least one.
func New(requestsPerMinute int) *Limiter {
	burst := max(requestsPerMinute/10, 1)
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst),
	}
}

// NewWithBurst allows requestsPerSecond with an explicit burst.
func NewWithBurst(requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
