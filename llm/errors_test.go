package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassForStatus(t *testing.T) {
	tests := []struct {
		status    int
		class     Class
		retryable bool
	}{
		{400, ClassInvalid, false},
		{401, ClassAuth, false},
		{403, ClassAuth, false},
		{404, ClassNotFound, false},
		{408, ClassTimeout, true},
		{413, ClassContextLength, false},
		{422, ClassInvalid, false},
		{429, ClassRateLimit, true},
		{503, ClassServer, true},
		{302, ClassUnknown, true},
	}

	for _, tt := range tests {
		got := classForStatus(tt.status)
		if got != tt.class {
			t.Errorf("status %d: expected %s, got %s", tt.status, tt.class, got)
		}
		err := &Error{Class: got, StatusCode: tt.status}
		if IsRetryable(err) != tt.retryable {
			t.Errorf("status %d: expected retryable=%v", tt.status, tt.retryable)
		}
	}
}

func TestIsRetryableWrapped(t *testing.T) {
	wrapped := fmt.Errorf("complete: %w", newError(ClassNetwork, "openai", "reset", nil))
	if !IsRetryable(wrapped) {
		t.Error("wrapped network error should be retryable")
	}

	cfg := fmt.Errorf("setup: %w", newError(ClassConfig, "", "no key", nil))
	if IsRetryable(cfg) {
		t.Error("configuration error should not be retryable")
	}

	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
	if IsRetryable(context.DeadlineExceeded) {
		t.Error("deadline exceeded is not retryable")
	}
	if !IsRetryable(errors.New("mystery")) {
		t.Error("unknown errors default to retryable")
	}
}

func TestClassOf(t *testing.T) {
	if ClassOf(nil) != "" {
		t.Error("nil has no class")
	}
	if ClassOf(context.Canceled) != ClassAborted {
		t.Error("cancellation is aborted")
	}
	if ClassOf(errors.New("x")) != ClassUnknown {
		t.Error("plain errors are unknown")
	}
	if ClassOf(fmt.Errorf("wrap: %w", &Error{Class: ClassRateLimit})) != ClassRateLimit {
		t.Error("class must survive wrapping")
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{Class: ClassRateLimit, Provider: "openai", StatusCode: 429, RetryAfter: time.Second, Message: "slow down", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	want := "[openai] rate_limit (status 429): slow down: root cause"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}

	same := &Error{Class: ClassUnknown, Message: "boom", Err: errors.New("boom")}
	if same.Error() != "unknown: boom" {
		t.Errorf("cause equal to the message is printed once, got %q", same.Error())
	}
}
