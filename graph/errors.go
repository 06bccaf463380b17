package graph

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMaxStepsExceeded is returned when a turn needs more tool-enabled
	// reasoning passes than allowed.
	ErrMaxStepsExceeded = errors.New("graph: max steps exceeded")

	// ErrInputRejected is returned when the input guard refuses a message.
	ErrInputRejected = errors.New("graph: input rejected")

	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("graph: executor closed")
)

// ErrorKind classifies turn-level failures.
type ErrorKind string

const (
	KindTransport     ErrorKind = "TransportError"
	KindTimeout       ErrorKind = "Timeout"
	KindCanceled      ErrorKind = "Canceled"
	KindMaxSteps      ErrorKind = "MaxStepsExceeded"
	KindInputRejected ErrorKind = "InputRejected"
	KindCheckpoint    ErrorKind = "CheckpointError"
	KindInvalidState  ErrorKind = "InvalidState"
)

// TurnError is returned by Executor.Run when a turn aborts. Tool failures
// never produce one; they are recorded in the history instead.
type TurnError struct {
	Kind ErrorKind
	Err  error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

func turnError(kind ErrorKind, err error) *TurnError {
	return &TurnError{Kind: kind, Err: err}
}

// contextKind maps a context failure to its turn error kind.
func contextKind(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindCanceled
}

// KindOf returns the kind of a turn error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var te *TurnError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
