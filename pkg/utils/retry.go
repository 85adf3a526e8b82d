// Package utils provides small helpers shared by the smoke test packages.
package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig defines the configuration for retry logic using backoff/v4
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// NewExponentialBackOff creates a backoff.ExponentialBackOff from RetryConfig
func (rc RetryConfig) NewExponentialBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rc.InitialDelay
	b.MaxInterval = rc.MaxDelay
	if rc.Multiplier > 0 {
		b.Multiplier = rc.Multiplier
	}
	if !rc.Jitter {
		b.RandomizationFactor = 0
	}
	// Attempts are bounded by MaxRetries, not by wall clock
	b.MaxElapsedTime = 0
	return b
}

// ExecuteWithRetryContext runs operation once plus at most MaxRetries retries,
// giving up when ctx is done. notify, when non-nil, is told about every failed
// attempt before the next wait.
func ExecuteWithRetryContext(ctx context.Context, operation func() error, config RetryConfig, notify ...backoff.Notify) error {
	var b backoff.BackOff = config.NewExponentialBackOff()
	if config.MaxRetries >= 0 {
		b = backoff.WithMaxRetries(b, uint64(config.MaxRetries))
	}
	b = backoff.WithContext(b, ctx)

	var n backoff.Notify
	if len(notify) > 0 {
		n = notify[0]
	}

	if err := backoff.RetryNotify(operation, b, n); err != nil {
		return fmt.Errorf("operation failed after retries: %w", err)
	}
	return nil
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
