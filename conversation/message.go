// Package conversation holds the message history threaded through the agent
// graph: an ordered, append-only log of user, assistant and tool messages.
package conversation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role discriminates between message types.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-issued request to run a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolError is the structured failure descriptor of a tool invocation.
type ToolError struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Detail == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// ToolResult carries the outcome of exactly one tool call. Exactly one of
// Value and Error is set.
type ToolResult struct {
	Value json.RawMessage `json:"value,omitempty"`
	Error *ToolError      `json:"error,omitempty"`
}

// IsError reports whether the result is a failure.
func (r ToolResult) IsError() bool { return r.Error != nil }

// Payload returns the JSON text sent back to the model for this result.
func (r ToolResult) Payload() string {
	if r.Error != nil {
		b, _ := json.Marshal(map[string]*ToolError{"error": r.Error})
		return string(b)
	}
	if len(r.Value) == 0 {
		return "null"
	}
	return string(r.Value)
}

// Message is a single entry in the conversation history.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Assistant messages only.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Tool messages only.
	ToolCallID string      `json:"tool_call_id,omitempty"`
	Result     *ToolResult `json:"result,omitempty"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewAssistantMessage creates an assistant message with optional tool calls.
func NewAssistantMessage(content string, calls []ToolCall) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now().UTC(),
		ToolCalls: cloneToolCalls(calls),
	}
}

// NewToolResultMessage creates the tool message answering callID.
func NewToolResultMessage(callID string, result ToolResult) Message {
	r := cloneResult(result)
	return Message{
		ID:         uuid.NewString(),
		Role:       RoleTool,
		Timestamp:  time.Now().UTC(),
		ToolCallID: callID,
		Result:     &r,
	}
}

// HasToolCalls reports whether an assistant message requests any tools.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	out.ToolCalls = cloneToolCalls(m.ToolCalls)
	if m.Result != nil {
		r := cloneResult(*m.Result)
		out.Result = &r
	}
	return out
}

func cloneToolCalls(calls []ToolCall) []ToolCall {
	if calls == nil {
		return nil
	}
	out := make([]ToolCall, len(calls))
	for i, c := range calls {
		out[i] = ToolCall{
			ID:        c.ID,
			Name:      c.Name,
			Arguments: cloneRaw(c.Arguments),
		}
	}
	return out
}

func cloneResult(r ToolResult) ToolResult {
	out := ToolResult{Value: cloneRaw(r.Value)}
	if r.Error != nil {
		e := *r.Error
		out.Error = &e
	}
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
