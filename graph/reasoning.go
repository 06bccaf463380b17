package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RaghavMittal2005/speech2speech/conversation"
	"github.com/RaghavMittal2005/speech2speech/llm"
	"github.com/RaghavMittal2005/speech2speech/sandbox"
)

// ReasoningNode asks the model for the next assistant message. A node with
// no tool definitions is plain: it offers no tools and drops any tool calls
// the model returns anyway.
type ReasoningNode struct {
	Name     Node
	Client   llm.Completer
	Model    string
	Provider string
	System   string
	Tools    []llm.ToolDefinition
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Plain reports whether the node runs without tools.
func (n *ReasoningNode) Plain() bool { return len(n.Tools) == 0 }

// Invoke builds a request from the system instruction and the full history,
// calls the model under the node timeout and converts the reply into an
// assistant message. Notes are appended to the system instruction for this
// call only. Invoke does not modify state.
func (n *ReasoningNode) Invoke(ctx context.Context, state *conversation.State, notes ...string) (conversation.Message, *llm.Response, error) {
	system := n.System
	for _, note := range notes {
		if note != "" {
			system += "\n\n" + note
		}
	}
	req := llm.Request{
		Model:    n.Model,
		Provider: n.Provider,
		Messages: BuildMessages(system, state),
	}
	if n.Plain() {
		req.ToolChoice = &llm.ToolChoice{Mode: "none"}
	} else {
		req.ToolDefs = n.Tools
		req.ToolChoice = &llm.ToolChoice{Mode: "auto"}
	}

	callCtx := ctx
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := n.Client.Complete(callCtx, req)
	if err != nil {
		return conversation.Message{}, nil, n.classify(ctx, callCtx, err)
	}
	if resp == nil {
		return conversation.Message{}, nil, turnError(KindTransport, errors.New("model returned no response"))
	}

	var calls []conversation.ToolCall
	if n.Plain() {
		if dropped := len(resp.ToolCalls()); dropped > 0 {
			n.logger().Debug("dropping tool calls from plain reasoning pass", zap.Int("count", dropped))
		}
	} else {
		calls = convertToolCalls(resp.ToolCalls(), state)
	}

	n.logger().Debug("model replied",
		zap.String("node", string(n.Name)),
		zap.Int("tool_calls", len(calls)),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return conversation.NewAssistantMessage(resp.Message.Content, calls), resp, nil
}

func (n *ReasoningNode) logger() *zap.Logger {
	if n.Logger == nil {
		return zap.NewNop()
	}
	return n.Logger
}

// classify maps a model failure to a turn error. Expiry of the node's own
// deadline is a Timeout even when the client wrapped the context error.
func (n *ReasoningNode) classify(parent, callCtx context.Context, err error) error {
	if perr := parent.Err(); perr != nil {
		return turnError(contextKind(perr), err)
	}
	if callCtx.Err() != nil {
		return turnError(KindTimeout, fmt.Errorf("model call exceeded %s: %w", n.Timeout, err))
	}
	return turnError(KindTransport, err)
}

// BuildMessages renders the request prompt: system instruction first, then
// the history in order.
func BuildMessages(system string, state *conversation.State) []llm.Message {
	msgs := make([]llm.Message, 0, state.Len()+1)
	if system != "" {
		msgs = append(msgs, llm.SystemMessage(system))
	}
	for _, m := range state.Messages {
		switch m.Role {
		case conversation.RoleUser:
			msgs = append(msgs, llm.UserMessage(m.Content))
		case conversation.RoleAssistant:
			calls := make([]llm.ToolCall, 0, len(m.ToolCalls))
			for _, c := range m.ToolCalls {
				calls = append(calls, llm.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
			}
			msgs = append(msgs, llm.AssistantMessage(m.Content, calls...))
		case conversation.RoleTool:
			var result conversation.ToolResult
			if m.Result != nil {
				result = *m.Result
			}
			msgs = append(msgs, llm.ToolResultMessage(m.ToolCallID, result.Payload(), result.IsError()))
		}
	}
	return msgs
}

// ToolDefinitions converts registry definitions into model tool definitions.
func ToolDefinitions(defs []sandbox.Definition) []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, llm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return out
}

// convertToolCalls copies model tool calls into history form. Missing ids
// and ids already used in the thread are replaced so that every result
// pairs with exactly one request.
func convertToolCalls(calls []llm.ToolCall, state *conversation.State) []conversation.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	used := make(map[string]bool)
	for _, m := range state.Messages {
		for _, c := range m.ToolCalls {
			used[c.ID] = true
		}
	}

	out := make([]conversation.ToolCall, 0, len(calls))
	for _, c := range calls {
		id := c.ID
		if id == "" || used[id] {
			id = "call_" + uuid.NewString()
		}
		used[id] = true

		args := c.Arguments
		switch {
		case len(args) == 0:
			args = json.RawMessage(`{}`)
		case !json.Valid(args):
			// Kept as a JSON string so the handler reports InvalidArguments.
			args, _ = json.Marshal(string(args))
		}
		out = append(out, conversation.ToolCall{ID: id, Name: c.Name, Arguments: args})
	}
	return out
}
