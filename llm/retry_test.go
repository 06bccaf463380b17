package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:        retries,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 1,
	}
}

func serverErr() error {
	return &Error{Class: ClassServer, StatusCode: 503, Message: "server error"}
}

func TestRetrySuccess(t *testing.T) {
	callCount := 0
	result, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		callCount++
		if callCount < 3 {
			return "", serverErr()
		}
		return "success", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "success" {
		t.Errorf("expected %q, got %q", "success", result)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetryExhausted(t *testing.T) {
	callCount := 0
	_, err := Retry(context.Background(), fastPolicy(2), func(ctx context.Context) (int, error) {
		callCount++
		return 0, serverErr()
	})
	if ClassOf(err) != ClassServer {
		t.Fatalf("expected server error, got %T: %v", err, err)
	}
	if callCount != 3 {
		t.Errorf("expected initial call plus 2 retries, got %d", callCount)
	}
}

func TestRetryNonRetryable(t *testing.T) {
	callCount := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		callCount++
		return 0, &Error{Class: ClassAuth, StatusCode: 401, Message: "bad key"}
	})
	if ClassOf(err) != ClassAuth {
		t.Fatalf("expected auth error, got %T: %v", err, err)
	}
	if callCount != 1 {
		t.Errorf("non-retryable errors must not be retried, got %d calls", callCount)
	}
}

func TestRetryAfterBeyondMaxDelay(t *testing.T) {
	callCount := 0
	_, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		callCount++
		return 0, &Error{Class: ClassRateLimit, StatusCode: 429, RetryAfter: 2 * time.Minute}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if callCount != 1 {
		t.Errorf("expected no retry when Retry-After exceeds MaxDelay, got %d calls", callCount)
	}
}

func TestRetryNotifies(t *testing.T) {
	var notified int
	policy := fastPolicy(2)
	policy.OnRetry = func(err error, delay time.Duration) { notified++ }

	_, _ = Retry(context.Background(), policy, func(ctx context.Context) (int, error) {
		return 0, serverErr()
	})
	if notified != 2 {
		t.Errorf("expected 2 notifications, got %d", notified)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, fastPolicy(3), func(ctx context.Context) (int, error) {
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}
