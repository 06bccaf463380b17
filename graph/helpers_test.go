package graph

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/RaghavMittal2005/speech2speech/checkpoint"
	"github.com/RaghavMittal2005/speech2speech/llm"
	"github.com/RaghavMittal2005/speech2speech/sandbox"
)

type step func(ctx context.Context, req llm.Request) (*llm.Response, error)

// scriptedAdapter replays a fixed sequence of model replies. When the script
// runs out, fallback is used if set.
type scriptedAdapter struct {
	mu       sync.Mutex
	steps    []step
	fallback step
	requests []llm.Request
}

func (s *scriptedAdapter) Name() string { return "scripted" }

func (s *scriptedAdapter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	var next step
	if len(s.steps) > 0 {
		next = s.steps[0]
		s.steps = s.steps[1:]
	} else {
		next = s.fallback
	}
	s.mu.Unlock()

	if next == nil {
		return nil, errors.New("script exhausted")
	}
	return next(ctx, req)
}

func (s *scriptedAdapter) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

func reply(text string, calls ...llm.ToolCall) step {
	return func(context.Context, llm.Request) (*llm.Response, error) {
		return &llm.Response{
			Message:      llm.AssistantMessage(text, calls...),
			FinishReason: llm.FinishReason{Reason: "stop"},
		}, nil
	}
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

// fakeRunner stands in for the host shell.
type fakeRunner struct {
	mu     sync.Mutex
	calls  atomic.Int32
	stdout string
	cmds   []string
}

func (f *fakeRunner) Run(_ context.Context, command, _ string, _ time.Duration) (*sandbox.ExecResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.cmds = append(f.cmds, command)
	f.mu.Unlock()
	return &sandbox.ExecResult{Stdout: f.stdout}, nil
}

type harness struct {
	exec    *Executor
	adapter *scriptedAdapter
	runner  *fakeRunner
	fs      afero.Fs
	store   *checkpoint.Memory
}

func newHarness(t *testing.T, configure func(*Config), steps ...step) *harness {
	t.Helper()

	h := &harness{
		adapter: &scriptedAdapter{steps: steps},
		runner:  &fakeRunner{},
		fs:      afero.NewMemMapFs(),
		store:   checkpoint.NewMemory(),
	}
	tb := sandbox.NewToolbox(sandbox.DefaultConfig(), h.fs, h.runner, nil, nil)
	registry, err := sandbox.NewCoreRegistry(tb, nil, nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ModelTimeout = 5 * time.Second
	if configure != nil {
		configure(&cfg)
	}

	h.exec, err = NewExecutor(Options{
		Client: llm.NewClient(h.adapter),
		Tools:  registry,
		Store:  h.store,
	}, &cfg)
	require.NoError(t, err)
	t.Cleanup(h.exec.Close)
	return h
}

// drain collects buffered events without blocking.
func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}
