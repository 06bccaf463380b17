package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidThreadID is returned for an empty or blank thread identifier.
	ErrInvalidThreadID = errors.New("conversation: thread id is required")

	// ErrOrphanResult is returned when a tool message answers no prior request.
	ErrOrphanResult = errors.New("conversation: tool result without matching request")

	// ErrDuplicateResult is returned when a request is answered twice.
	ErrDuplicateResult = errors.New("conversation: tool call answered more than once")

	// ErrDuplicateCallID is returned when two requests share an id.
	ErrDuplicateCallID = errors.New("conversation: duplicate tool call id")
)

// State is the ordered message history of one conversation thread.
type State struct {
	ThreadID  string    `json:"thread_id"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState returns an empty state for threadID.
func NewState(threadID string) (*State, error) {
	trimmed := strings.TrimSpace(threadID)
	if trimmed == "" {
		return nil, ErrInvalidThreadID
	}
	return &State{ThreadID: trimmed, Messages: make([]Message, 0, 16)}, nil
}

// Append adds messages to the end of the history.
func (s *State) Append(msgs ...Message) {
	for _, m := range msgs {
		s.Messages = append(s.Messages, m.Clone())
	}
	s.UpdatedAt = time.Now().UTC()
}

// Len returns the number of messages.
func (s *State) Len() int { return len(s.Messages) }

// Last returns the most recent message, if any.
func (s *State) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastAssistant returns the most recent assistant message, if any.
func (s *State) LastAssistant() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// PendingToolCalls returns, in request order, the calls of the latest
// assistant message that have no tool message yet.
func (s *State) PendingToolCalls() []ToolCall {
	idx := -1
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	answered := make(map[string]bool)
	for _, m := range s.Messages[idx+1:] {
		if m.Role == RoleTool {
			answered[m.ToolCallID] = true
		}
	}

	var pending []ToolCall
	for _, c := range s.Messages[idx].ToolCalls {
		if !answered[c.ID] {
			pending = append(pending, c)
		}
	}
	return pending
}

// Settled reports whether every tool call in the history has been answered.
func (s *State) Settled() bool {
	answered := make(map[string]bool)
	for _, m := range s.Messages {
		if m.Role == RoleTool {
			answered[m.ToolCallID] = true
		}
	}
	for _, m := range s.Messages {
		for _, c := range m.ToolCalls {
			if !answered[c.ID] {
				return false
			}
		}
	}
	return true
}

// Validate checks the request/result pairing rules: call ids are unique,
// every tool message answers an earlier request, and no request is answered
// twice. Unanswered requests are allowed; use Settled to check for them.
func (s *State) Validate() error {
	if strings.TrimSpace(s.ThreadID) == "" {
		return ErrInvalidThreadID
	}
	requested := make(map[string]bool)
	answered := make(map[string]bool)
	for i, m := range s.Messages {
		switch m.Role {
		case RoleAssistant:
			for _, c := range m.ToolCalls {
				if requested[c.ID] {
					return fmt.Errorf("%w: %q at message %d", ErrDuplicateCallID, c.ID, i)
				}
				requested[c.ID] = true
			}
		case RoleTool:
			if !requested[m.ToolCallID] {
				return fmt.Errorf("%w: %q at message %d", ErrOrphanResult, m.ToolCallID, i)
			}
			if answered[m.ToolCallID] {
				return fmt.Errorf("%w: %q at message %d", ErrDuplicateResult, m.ToolCallID, i)
			}
			answered[m.ToolCallID] = true
		case RoleUser:
		default:
			return fmt.Errorf("conversation: unknown role %q at message %d", m.Role, i)
		}
	}
	return nil
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{
		ThreadID:  s.ThreadID,
		UpdatedAt: s.UpdatedAt,
		Messages:  make([]Message, len(s.Messages)),
	}
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}
