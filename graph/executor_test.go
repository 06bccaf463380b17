package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaghavMittal2005/speech2speech/conversation"
	"github.com/RaghavMittal2005/speech2speech/llm"
	"github.com/RaghavMittal2005/speech2speech/sandbox"
)

func roles(state *conversation.State) []conversation.Role {
	out := make([]conversation.Role, 0, state.Len())
	for _, m := range state.Messages {
		out = append(out, m.Role)
	}
	return out
}

func TestListFilesScenario(t *testing.T) {
	h := newHarness(t, nil,
		reply("", toolCall("call_1", sandbox.ToolRunCommand, `{"cmd":"dir chat_gpt"}`)),
		reply("The folder contains hello.py."),
	)
	h.runner.stdout = "hello.py\n"

	state, err := h.exec.Run(context.Background(), "t1", "list files in chat_gpt")
	require.NoError(t, err)

	assert.Equal(t, []conversation.Role{
		conversation.RoleUser,
		conversation.RoleAssistant,
		conversation.RoleTool,
		conversation.RoleAssistant,
	}, roles(state))
	assert.Equal(t, int32(1), h.runner.calls.Load())
	assert.Equal(t, []string{"dir chat_gpt"}, h.runner.cmds)

	tool := state.Messages[2]
	assert.Equal(t, "call_1", tool.ToolCallID)
	require.NotNil(t, tool.Result)
	assert.False(t, tool.Result.IsError())
	assert.Contains(t, string(tool.Result.Value), "hello.py")
	assert.Equal(t, "The folder contains hello.py.", state.Messages[3].Content)
	assert.True(t, state.Settled())

	// The second model call sees the tool result as the latest message.
	reqs := h.adapter.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, llm.RoleSystem, reqs[1].Messages[0].Role)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
	assert.Contains(t, last.Content, "hello.py")

	saved, err := h.store.Load(context.Background(), "t1")
	require.NoError(t, err)
	if diff := cmp.Diff(state, saved); diff != "" {
		t.Errorf("saved state mismatch (-returned +saved):\n%s", diff)
	}
}

func TestDeniedCommandScenario(t *testing.T) {
	h := newHarness(t, nil,
		reply("", toolCall("call_1", sandbox.ToolRunCommand, `{"cmd":"rm -rf chat_gpt"}`)),
		reply("I am not allowed to delete that directory."),
	)

	state, err := h.exec.Run(context.Background(), "t1", "clean up chat_gpt")
	require.NoError(t, err)
	assert.Equal(t, int32(0), h.runner.calls.Load())

	tool := state.Messages[2]
	require.NotNil(t, tool.Result)
	require.True(t, tool.Result.IsError())
	assert.Equal(t, string(sandbox.KindCommandNotAllowed), tool.Result.Error.Kind)
	assert.Equal(t, "rm -rf chat_gpt", tool.Result.Error.Detail)

	reqs := h.adapter.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.True(t, last.IsError)
	assert.Contains(t, last.Content, "CommandNotAllowed")
	assert.Equal(t, "I am not allowed to delete that directory.", state.Messages[3].Content)
}

func TestWriteOutsideRootScenario(t *testing.T) {
	h := newHarness(t, nil,
		reply("", toolCall("call_1", sandbox.ToolWriteFile, `{"path":"secrets.txt","content":"x"}`)),
		reply("That path is outside the sandbox."),
	)

	state, err := h.exec.Run(context.Background(), "t1", "save a secret")
	require.NoError(t, err)

	tool := state.Messages[2]
	require.True(t, tool.Result.IsError())
	assert.Equal(t, string(sandbox.KindAccessDenied), tool.Result.Error.Kind)

	exists, err := afero.Exists(h.fs, "secrets.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWriteThenRunInsideRoot(t *testing.T) {
	h := newHarness(t, nil,
		reply("",
			toolCall("w", sandbox.ToolWriteFile, `{"path":"chat_gpt/hello.py","content":"print('hi')\n"}`),
			toolCall("r", sandbox.ToolRunCommand, `{"cmd":"python chat_gpt/hello.py"}`),
		),
		reply("Done."),
	)
	h.runner.stdout = "hi\n"

	state, err := h.exec.Run(context.Background(), "t1", "write and run hello")
	require.NoError(t, err)

	data, err := afero.ReadFile(h.fs, "chat_gpt/hello.py")
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", string(data))
	assert.Equal(t, "w", state.Messages[2].ToolCallID)
	assert.Equal(t, "r", state.Messages[3].ToolCallID)
}

func TestMaxStepsFailsClosed(t *testing.T) {
	loop := reply("", toolCall("", sandbox.ToolReadFile, `{"path":"chat_gpt/missing.txt"}`))
	h := newHarness(t, func(c *Config) { c.MaxSteps = 3 })
	h.adapter.fallback = loop

	state, err := h.exec.Run(context.Background(), "t1", "loop forever")
	require.Error(t, err)
	assert.Nil(t, state)
	assert.ErrorIs(t, err, ErrMaxStepsExceeded)
	assert.Equal(t, KindMaxSteps, KindOf(err))
	assert.Len(t, h.adapter.Requests(), 3)

	saved, err := h.store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, saved)

	var sawLimit bool
	for _, ev := range drain(h.exec.Events()) {
		if ev.Kind == EventStepLimit {
			sawLimit = true
		}
	}
	assert.True(t, sawLimit)
}

func TestStepWiseCheckpointKeepsSettledPrefix(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.MaxSteps = 2
		c.StepWiseCheckpoint = true
	})
	h.adapter.fallback = reply("", toolCall("", sandbox.ToolReadFile, `{"path":"chat_gpt/missing.txt"}`))

	_, err := h.exec.Run(context.Background(), "t1", "loop")
	require.ErrorIs(t, err, ErrMaxStepsExceeded)

	saved, err := h.store.Load(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.True(t, saved.Settled())
	assert.NoError(t, saved.Validate())
	last, _ := saved.Last()
	assert.Equal(t, conversation.RoleTool, last.Role)
	assert.Equal(t, string(sandbox.KindFileNotFound), last.Result.Error.Kind)
}

func TestInputGuardRejectsBeforeAnyChange(t *testing.T) {
	h := newHarness(t, nil, reply("should not be called"))
	guard, err := NewPatternGuard(0, `\b\d{16}\b`)
	require.NoError(t, err)
	h.exec.guard = guard

	_, err = h.exec.Run(context.Background(), "t1", "my card is 4111111111111111")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInputRejected)
	assert.Equal(t, KindInputRejected, KindOf(err))
	assert.Empty(t, h.adapter.Requests())

	saved, err := h.store.Load(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestModelTimeout(t *testing.T) {
	block := func(ctx context.Context, _ llm.Request) (*llm.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	h := newHarness(t, func(c *Config) { c.ModelTimeout = 20 * time.Millisecond }, block)

	_, err := h.exec.Run(context.Background(), "t1", "hello")
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransportErrorSurfaces(t *testing.T) {
	fail := func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, &llm.Error{Class: llm.ClassServer, Provider: "scripted", StatusCode: 500, Message: "boom"}
	}
	h := newHarness(t, nil, fail)

	_, err := h.exec.Run(context.Background(), "t1", "hello")
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))

	var modelErr *llm.Error
	require.True(t, errors.As(err, &modelErr))
	assert.Equal(t, llm.ClassServer, modelErr.Class)

	saved, _ := h.store.Load(context.Background(), "t1")
	assert.Nil(t, saved)
}

func TestHistoryCarriesAcrossTurns(t *testing.T) {
	h := newHarness(t, nil, reply("first"), reply("second"), reply("other thread"))

	_, err := h.exec.Run(context.Background(), "t1", "one")
	require.NoError(t, err)
	state, err := h.exec.Run(context.Background(), "t1", "two")
	require.NoError(t, err)
	assert.Equal(t, 4, state.Len())

	other, err := h.exec.Run(context.Background(), "t2", "three")
	require.NoError(t, err)
	assert.Equal(t, 2, other.Len())

	reqs := h.adapter.Requests()
	require.Len(t, reqs, 3)
	// system + user + assistant + user
	assert.Len(t, reqs[1].Messages, 4)
	// system + user
	assert.Len(t, reqs[2].Messages, 2)
}

func TestPlannerPassOffersNoTools(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Planner = true },
		reply("1. list the folder", toolCall("p1", sandbox.ToolRunCommand, `{"cmd":"dir"}`)),
		reply("Nothing to do."),
	)

	state, err := h.exec.Run(context.Background(), "t1", "plan something")
	require.NoError(t, err)
	assert.Equal(t, int32(0), h.runner.calls.Load())

	assert.Equal(t, []conversation.Role{
		conversation.RoleUser,
		conversation.RoleAssistant,
		conversation.RoleAssistant,
	}, roles(state))
	assert.Empty(t, state.Messages[1].ToolCalls)

	reqs := h.adapter.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].ToolDefs)
	assert.Equal(t, "none", reqs[0].ToolChoice.Mode)
	assert.Len(t, reqs[1].ToolDefs, 3)
	assert.Equal(t, "auto", reqs[1].ToolChoice.Mode)
}

func TestInterruptedCallsAnsweredOnLoad(t *testing.T) {
	h := newHarness(t, nil, reply("recovered"))

	seed, err := conversation.NewState("t1")
	require.NoError(t, err)
	seed.Append(
		conversation.NewUserMessage("run it"),
		conversation.NewAssistantMessage("", []conversation.ToolCall{
			{ID: "old", Name: sandbox.ToolRunCommand, Arguments: json.RawMessage(`{"cmd":"dir"}`)},
		}),
	)
	require.NoError(t, h.store.Save(context.Background(), seed))

	state, err := h.exec.Run(context.Background(), "t1", "are you there?")
	require.NoError(t, err)
	assert.True(t, state.Settled())
	assert.NoError(t, state.Validate())

	tool := state.Messages[2]
	assert.Equal(t, "old", tool.ToolCallID)
	require.True(t, tool.Result.IsError())
	assert.Contains(t, tool.Result.Error.Detail, "interrupted")
}

func TestEventsFollowTheTurn(t *testing.T) {
	h := newHarness(t, nil,
		reply("", toolCall("c", sandbox.ToolRunCommand, `{"cmd":"dir"}`)),
		reply("done"),
	)

	_, err := h.exec.Run(context.Background(), "t1", "go")
	require.NoError(t, err)

	var kinds []EventKind
	for _, ev := range drain(h.exec.Events()) {
		assert.Equal(t, "t1", ev.ThreadID)
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{
		EventUserInput,
		EventAssistantMessage,
		EventToolCallStart,
		EventToolCallEnd,
		EventAssistantMessage,
		EventTurnEnd,
	}, kinds)
}

func TestFullEventBufferKeepsTurnResult(t *testing.T) {
	var steps []step
	for r := 0; r < 5; r++ {
		calls := make([]llm.ToolCall, 0, 3)
		for c := 0; c < 3; c++ {
			calls = append(calls, toolCall(fmt.Sprintf("c%d_%d", r, c), sandbox.ToolRunCommand, fmt.Sprintf(`{"cmd":"dir %d"}`, r*3+c)))
		}
		steps = append(steps, reply("", calls...))
	}
	steps = append(steps, reply("FINAL ANSWER"))
	h := newHarness(t, func(c *Config) { c.EventBuffer = 4 }, steps...)

	state, err := h.exec.Run(context.Background(), "t1", "go")
	require.NoError(t, err)

	last, ok := state.Last()
	require.True(t, ok)
	assert.Equal(t, "FINAL ANSWER", last.Content)
	assert.Len(t, drain(h.exec.Events()), 4)
	// user_input, 6 assistant messages, 30 tool events and turn_end.
	assert.Equal(t, 38-4, h.exec.events.Dropped())
}

func TestSameThreadTurnsAreSerialized(t *testing.T) {
	var active, peak atomic.Int32
	slow := func(context.Context, llm.Request) (*llm.Response, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return &llm.Response{Message: llm.AssistantMessage("ok")}, nil
	}
	h := newHarness(t, nil)
	h.adapter.fallback = slow

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.exec.Run(context.Background(), "shared", "hi")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	saved, err := h.store.Load(context.Background(), "shared")
	require.NoError(t, err)
	assert.Equal(t, 8, saved.Len())
	assert.Equal(t, 0, h.exec.locks.size())
}

func TestRunValidatesThreadAndClose(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.exec.Run(context.Background(), "  ", "hi")
	assert.ErrorIs(t, err, conversation.ErrInvalidThreadID)

	h.exec.Close()
	_, err = h.exec.Run(context.Background(), "t1", "hi")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCanceledContext(t *testing.T) {
	h := newHarness(t, nil, reply("never"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.exec.Run(ctx, "t1", "hi")
	require.Error(t, err)
	assert.Equal(t, KindCanceled, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecutorMetrics(t *testing.T) {
	adapter := &scriptedAdapter{steps: []step{reply("hi"), func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, errors.New("connection reset")
	}}}
	tb := sandbox.NewToolbox(sandbox.DefaultConfig(), afero.NewMemMapFs(), &fakeRunner{}, nil, nil)
	tools, err := sandbox.NewCoreRegistry(tb, nil, nil)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	exec, err := NewExecutor(Options{
		Client:   llm.NewClient(adapter),
		Tools:    tools,
		Registry: registry,
	}, nil)
	require.NoError(t, err)
	defer exec.Close()

	_, err = exec.Run(context.Background(), "t1", "a")
	require.NoError(t, err)
	_, err = exec.Run(context.Background(), "t1", "b")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(exec.metrics.turns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exec.metrics.turns.WithLabelValues(string(KindTransport))))
	assert.Equal(t, 1.0, testutil.ToFloat64(exec.metrics.modelCalls.WithLabelValues(string(NodeChatbot), "ok")))
}

func TestNewExecutorValidation(t *testing.T) {
	tb := sandbox.NewToolbox(sandbox.DefaultConfig(), afero.NewMemMapFs(), &fakeRunner{}, nil, nil)
	tools, err := sandbox.NewCoreRegistry(tb, nil, nil)
	require.NoError(t, err)
	client := llm.NewClient(&scriptedAdapter{})
	empty, err := sandbox.NewRegistry(nil, nil)
	require.NoError(t, err)

	_, err = NewExecutor(Options{Tools: tools}, nil)
	assert.Error(t, err)
	_, err = NewExecutor(Options{Client: client}, nil)
	assert.Error(t, err)
	_, err = NewExecutor(Options{Client: client, Tools: empty}, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.MaxSteps = 0
	_, err = NewExecutor(Options{Client: client, Tools: tools}, &cfg)
	assert.Error(t, err)
}
