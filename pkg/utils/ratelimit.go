package utils

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces outbound calls with a token bucket.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter allowing requestsPerSecond with bursts of maxBurst.
func NewRateLimiter(requestsPerSecond float64, maxBurst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1.0
	}
	if maxBurst <= 0 {
		maxBurst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), maxBurst)}
}

// Wait blocks until a token is available or context is cancelled
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}
