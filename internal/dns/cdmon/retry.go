package cdmon

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how transient API failures are retried. Delays start at
// BaseDelay and double up to MaxDelay. A zero BaseDelay retries immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the CDmon plugin defaults: three attempts with a
// 0.5s backoff factor.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// NoDelay returns a policy that retries immediately, for tests.
func NoDelay(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts}
}

// Attempts returns the total number of tries, never less than one.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delays lists the waits between consecutive attempts.
func (p RetryPolicy) Delays() []time.Duration {
	b := p.backOff(context.Background())
	b.Reset()
	var delays []time.Duration
	for {
		d := b.NextBackOff()
		if d == backoff.Stop {
			return delays
		}
		delays = append(delays, d)
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if p.BaseDelay > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.BaseDelay
		eb.Multiplier = 2
		eb.RandomizationFactor = 0
		eb.MaxInterval = p.BaseDelay
		if p.MaxDelay > p.BaseDelay {
			eb.MaxInterval = p.MaxDelay
		}
		eb.MaxElapsedTime = 0
		eb.Reset()
		b = eb
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.Attempts()-1)), ctx)
}
