package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy configures bounded exponential backoff for transport failures.
type RetryPolicy struct {
	MaxRetries        int           // retry attempts, not counting the first call
	BaseDelay         time.Duration // initial delay
	MaxDelay          time.Duration // cap on a single delay
	BackoffMultiplier float64
	Jitter            bool
	OnRetry           func(err error, delay time.Duration)
}

// DefaultRetryPolicy returns two retries starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         time.Second,
		MaxDelay:          time.Minute,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.BaseDelay > 0 {
		b.InitialInterval = p.BaseDelay
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	if p.BackoffMultiplier >= 1 {
		b.Multiplier = p.BackoffMultiplier
	}
	if !p.Jitter {
		b.RandomizationFactor = 0
	}
	return b
}

// Retry runs fn under the policy. Only retryable errors are retried; a rate
// limit whose Retry-After exceeds MaxDelay is returned immediately.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	op := func() (T, error) {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return result, backoff.Permanent(err)
		}
		var e *Error
		if errors.As(err, &e) && e.Class == ClassRateLimit && policy.MaxDelay > 0 && e.RetryAfter > policy.MaxDelay {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxTries(uint(max(policy.MaxRetries, 0)) + 1),
	}
	if policy.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(policy.OnRetry))
	}

	result, err := backoff.Retry(ctx, op, opts...)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return result, newError(ClassAborted, "", "request cancelled during retry", err)
	}
	return result, err
}
