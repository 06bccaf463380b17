package graph

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RaghavMittal2005/speech2speech/conversation"
	"github.com/RaghavMittal2005/speech2speech/sandbox"
)

// ToolInvoker runs tools by name. *sandbox.Registry satisfies it.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) sandbox.Outcome
	Definitions() []sandbox.Definition
}

// ToolDispatchNode executes the pending tool calls of the latest assistant
// message and appends one tool message per call, in request order.
type ToolDispatchNode struct {
	Tools ToolInvoker

	// Parallel runs calls concurrently; results are still appended in
	// request order. MaxParallel caps concurrency when positive.
	Parallel    bool
	MaxParallel int

	Events *EventEmitter
	Logger *zap.Logger
}

// Run dispatches every pending call and returns how many were answered.
// Tool failures become error results; Run itself never fails.
func (d *ToolDispatchNode) Run(ctx context.Context, state *conversation.State) int {
	calls := state.PendingToolCalls()
	if len(calls) == 0 {
		return 0
	}

	results := make([]conversation.ToolResult, len(calls))
	if d.Parallel && len(calls) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		if d.MaxParallel > 0 {
			g.SetLimit(d.MaxParallel)
		}
		for i, call := range calls {
			g.Go(func() error {
				results[i] = d.invoke(gctx, state.ThreadID, call)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, call := range calls {
			results[i] = d.invoke(ctx, state.ThreadID, call)
		}
	}

	for i, call := range calls {
		state.Append(conversation.NewToolResultMessage(call.ID, results[i]))
	}
	return len(calls)
}

func (d *ToolDispatchNode) invoke(ctx context.Context, threadID string, call conversation.ToolCall) conversation.ToolResult {
	d.Events.Emit(threadID, EventToolCallStart, map[string]any{
		"tool_name": call.Name,
		"call_id":   call.ID,
		"arguments": string(call.Arguments),
	})

	start := time.Now()
	outcome := d.Tools.Invoke(ctx, call.Name, call.Arguments)
	result := outcome.Result()

	data := map[string]any{
		"tool_name":   call.Name,
		"call_id":     call.ID,
		"outcome":     outcome.Label(),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if result.IsError() {
		data["error"] = result.Error.Error()
		d.logger().Info("tool call failed",
			zap.String("thread_id", threadID),
			zap.String("tool", call.Name),
			zap.String("call_id", call.ID),
			zap.String("kind", result.Error.Kind),
		)
	} else {
		data["output"] = string(result.Value)
	}
	d.Events.Emit(threadID, EventToolCallEnd, data)
	return result
}

func (d *ToolDispatchNode) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
