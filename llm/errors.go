package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Class groups model-service failures by how a caller should react to them.
type Class string

const (
	ClassAuth          Class = "auth"
	ClassNotFound      Class = "not_found"
	ClassInvalid       Class = "invalid_request"
	ClassContextLength Class = "context_length"
	ClassContentFilter Class = "content_filter"
	ClassRateLimit     Class = "rate_limit"
	ClassServer        Class = "server"
	ClassTimeout       Class = "timeout"
	ClassNetwork       Class = "network"
	ClassConfig        Class = "config"
	ClassAborted       Class = "aborted"
	ClassUnknown       Class = "unknown"
)

// Error is a failed model call.
type Error struct {
	Class      Class
	Provider   string
	StatusCode int // 0 when the provider reported none
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		fmt.Fprintf(&b, "[%s] ", e.Provider)
	}
	b.WriteString(string(e.Class))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed if sent again.
func (e *Error) Retryable() bool {
	switch e.Class {
	case ClassRateLimit, ClassServer, ClassTimeout, ClassNetwork, ClassUnknown:
		return true
	}
	return false
}

func newError(class Class, provider, message string, cause error) *Error {
	return &Error{Class: class, Provider: provider, Message: message, Err: cause}
}

// ClassOf returns the class of err, or "" for nil.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassAborted
	}
	return ClassUnknown
}

// IsRetryable reports whether err is a transport-level failure that is safe
// to retry. Cancellation of the caller's context never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return true
}

// classForStatus maps an HTTP status reported by a provider to a class.
func classForStatus(code int) Class {
	switch {
	case code == 401 || code == 403:
		return ClassAuth
	case code == 404:
		return ClassNotFound
	case code == 408:
		return ClassTimeout
	case code == 413:
		return ClassContextLength
	case code == 429:
		return ClassRateLimit
	case code >= 500 && code <= 599:
		return ClassServer
	case code >= 400 && code <= 499:
		return ClassInvalid
	}
	return ClassUnknown
}
