package sandbox

import (
	"fmt"

	"github.com/RaghavMittal2005/speech2speech/conversation"
)

// ErrorKind classifies a tool failure. Failures travel back to the model as
// data; they are never Go errors escaping the dispatcher.
type ErrorKind string

const (
	KindCommandNotAllowed ErrorKind = "CommandNotAllowed"
	KindAccessDenied      ErrorKind = "AccessDenied"
	KindUnknownTool       ErrorKind = "UnknownTool"
	KindFileNotFound      ErrorKind = "FileNotFound"
	KindIOError           ErrorKind = "IOError"
	KindInvalidArguments  ErrorKind = "InvalidArguments"
	KindTimeout           ErrorKind = "Timeout"
)

// Error is the failure half of an Outcome.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Outcome is what every capability returns: a JSON-serializable value or a
// structured error.
type Outcome struct {
	Value any
	Err   *Error
}

// OK wraps a successful value.
func OK(v any) Outcome { return Outcome{Value: v} }

// Fail wraps a failure.
func Fail(err *Error) Outcome { return Outcome{Err: err} }

// Label returns "ok" or the error kind, for metrics and logs.
func (o Outcome) Label() string {
	if o.Err != nil {
		return string(o.Err.Kind)
	}
	return "ok"
}

// Result converts the outcome to the history representation. A value that
// cannot be encoded becomes an IOError.
func (o Outcome) Result() conversation.ToolResult {
	if o.Err != nil {
		return conversation.ToolResult{Error: &conversation.ToolError{
			Kind:   string(o.Err.Kind),
			Detail: o.Err.Detail,
		}}
	}
	raw, err := marshalValue(o.Value)
	if err != nil {
		return conversation.ToolResult{Error: &conversation.ToolError{
			Kind:   string(KindIOError),
			Detail: err.Error(),
		}}
	}
	return conversation.ToolResult{Value: raw}
}
