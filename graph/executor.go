// Package graph runs one conversational turn as a small state machine:
// an optional planning pass, then tool-enabled reasoning alternating with
// tool dispatch until the model stops requesting tools.
package graph

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/RaghavMittal2005/speech2speech/checkpoint"
	"github.com/RaghavMittal2005/speech2speech/conversation"
	"github.com/RaghavMittal2005/speech2speech/llm"
	"github.com/RaghavMittal2005/speech2speech/sandbox"
)

// Config holds the tunables of an Executor.
type Config struct {
	Model    string
	Provider string

	// SystemPrompt overrides the tool-enabled instruction built from Prompt.
	SystemPrompt  string
	PlannerPrompt string
	Prompt        PromptConfig

	// Planner runs a plain reasoning pass before the tool-enabled loop.
	Planner bool

	MaxSteps           int           // tool-enabled reasoning passes per turn
	ModelTimeout       time.Duration // per model invocation, 0 = none
	ParallelTools      bool
	MaxParallelTools   int
	StepWiseCheckpoint bool // save after every tool dispatch
	LoopDetection      int  // window of repeated tool calls that triggers a warning, 0 = off
	EventBuffer        int
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	box := sandbox.DefaultConfig()
	return Config{
		Model:         llm.DefaultModel,
		MaxSteps:      25,
		ModelTimeout:  2 * time.Minute,
		LoopDetection: 10,
		EventBuffer:   256,
		Prompt: PromptConfig{
			Platform:        runtime.GOOS,
			Root:            box.Root,
			AllowedPrefixes: box.AllowedPrefixes,
		},
	}
}

// Options carries the collaborators of an Executor.
type Options struct {
	Client   llm.Completer
	Tools    ToolInvoker
	Store    checkpoint.Store // nil = in-memory
	Guard    InputGuard       // nil = accept everything
	Logger   *zap.Logger
	Registry *prometheus.Registry // nil = no metrics
}

// Executor runs turns against persisted conversation threads. Turns for the
// same thread are serialized; different threads run independently.
type Executor struct {
	cfg      Config
	store    checkpoint.Store
	guard    InputGuard
	planner  *ReasoningNode
	chatbot  *ReasoningNode
	dispatch *ToolDispatchNode
	events   *EventEmitter
	locks    *threadLocks
	metrics  *Metrics
	logger   *zap.Logger
	closed   atomic.Bool
}

// NewExecutor wires an executor. cfg may be nil for defaults.
func NewExecutor(opts Options, cfg *Config) (*Executor, error) {
	if opts.Client == nil {
		return nil, errors.New("graph: model client is required")
	}
	if opts.Tools == nil {
		return nil, errors.New("graph: tool registry is required")
	}

	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if c.MaxSteps <= 0 {
		return nil, fmt.Errorf("graph: max steps must be positive, got %d", c.MaxSteps)
	}
	if c.Prompt.Model == "" {
		c.Prompt.Model = c.Model
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("graph")

	store := opts.Store
	if store == nil {
		store = checkpoint.NewMemory()
	}

	system := c.SystemPrompt
	if system == "" {
		system = BuildToolPrompt(c.Prompt)
	}

	e := &Executor{
		cfg:   c,
		store: store,
		guard: opts.Guard,
		chatbot: &ReasoningNode{
			Name:     NodeChatbot,
			Client:   opts.Client,
			Model:    c.Model,
			Provider: c.Provider,
			System:   system,
			Tools:    ToolDefinitions(opts.Tools.Definitions()),
			Timeout:  c.ModelTimeout,
			Logger:   logger,
		},
		events:  NewEventEmitter(c.EventBuffer),
		locks:   newThreadLocks(),
		metrics: NewMetrics(opts.Registry),
		logger:  logger,
	}
	if e.chatbot.Plain() {
		return nil, errors.New("graph: tool registry has no tools")
	}
	e.dispatch = &ToolDispatchNode{
		Tools:       opts.Tools,
		Parallel:    c.ParallelTools,
		MaxParallel: c.MaxParallelTools,
		Events:      e.events,
		Logger:      logger,
	}

	if c.Planner {
		prompt := c.PlannerPrompt
		if prompt == "" {
			prompt = BuildPlannerPrompt(c.Prompt)
		}
		e.planner = &ReasoningNode{
			Name:     NodePlanner,
			Client:   opts.Client,
			Model:    c.Model,
			Provider: c.Provider,
			System:   prompt,
			Timeout:  c.ModelTimeout,
			Logger:   logger,
		}
	}
	return e, nil
}

// Events returns the executor event stream. It is closed by Close.
func (e *Executor) Events() <-chan Event {
	return e.events.Events()
}

// Close stops event delivery. Later calls to Run fail with ErrClosed.
func (e *Executor) Close() {
	e.closed.Store(true)
	e.events.Close()
}

// Run executes one turn for threadID and returns the settled history. On
// failure nothing is written back apart from step-wise saves made before
// it. Failures after the thread lock is taken are *TurnError values.
func (e *Executor) Run(ctx context.Context, threadID, input string) (*conversation.State, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, conversation.ErrInvalidThreadID
	}

	release, err := e.locks.acquire(ctx, threadID)
	if err != nil {
		return nil, turnError(contextKind(err), err)
	}
	defer release()

	start := time.Now()
	state, steps, err := e.runTurn(ctx, threadID, input)
	elapsed := time.Since(start)

	if err != nil {
		kind := KindOf(err)
		e.metrics.ObserveTurn(string(kind), elapsed.Seconds())
		e.events.Emit(threadID, EventError, map[string]any{
			"kind":  string(kind),
			"error": err.Error(),
		})
		e.logger.Warn("turn failed",
			zap.String("thread_id", threadID),
			zap.String("kind", string(kind)),
			zap.Int("steps", steps),
			zap.Error(err),
		)
		return nil, err
	}

	e.metrics.ObserveTurn("ok", elapsed.Seconds())
	e.events.Emit(threadID, EventTurnEnd, map[string]any{
		"steps":    steps,
		"messages": state.Len(),
	})
	e.logger.Info("turn complete",
		zap.String("thread_id", threadID),
		zap.Int("steps", steps),
		zap.Int("messages", state.Len()),
		zap.Duration("elapsed", elapsed),
	)
	return state, nil
}

func (e *Executor) runTurn(ctx context.Context, threadID, input string) (*conversation.State, int, error) {
	if e.guard != nil {
		if err := e.guard.Check(ctx, input); err != nil {
			return nil, 0, turnError(KindInputRejected, fmt.Errorf("%w: %w", ErrInputRejected, err))
		}
	}

	state, err := e.load(ctx, threadID)
	if err != nil {
		return nil, 0, err
	}

	state.Append(conversation.NewUserMessage(input))
	e.events.Emit(threadID, EventUserInput, map[string]any{"content": input})

	steps, err := e.execute(ctx, state)
	if err != nil {
		return nil, steps, err
	}
	if err := e.store.Save(ctx, state); err != nil {
		return nil, steps, turnError(KindCheckpoint, err)
	}
	return state, steps, nil
}

// load returns the persisted history of threadID, or an empty one. Calls
// left unanswered by an interrupted turn are answered with an IOError so
// the history the model sees stays paired.
func (e *Executor) load(ctx context.Context, threadID string) (*conversation.State, error) {
	state, err := e.store.Load(ctx, threadID)
	if err != nil {
		return nil, turnError(KindCheckpoint, err)
	}
	if state == nil {
		state, err = conversation.NewState(threadID)
		if err != nil {
			return nil, turnError(KindInvalidState, err)
		}
		return state, nil
	}
	if err := state.Validate(); err != nil {
		return nil, turnError(KindInvalidState, err)
	}

	for _, call := range state.PendingToolCalls() {
		e.logger.Warn("answering interrupted tool call",
			zap.String("thread_id", threadID),
			zap.String("call_id", call.ID),
			zap.String("tool", call.Name),
		)
		state.Append(conversation.NewToolResultMessage(call.ID, conversation.ToolResult{
			Error: &conversation.ToolError{
				Kind:   string(sandbox.KindIOError),
				Detail: "tool call interrupted before a result was recorded",
			},
		}))
	}
	return state, nil
}

// execute drives the state machine until the terminal node and returns the
// number of tool-enabled reasoning passes taken.
func (e *Executor) execute(ctx context.Context, state *conversation.State) (int, error) {
	node := NodeChatbot
	if e.planner != nil {
		node = NodePlanner
	}

	steps := 0
	note := ""
	for {
		if err := ctx.Err(); err != nil {
			return steps, turnError(contextKind(err), err)
		}

		switch node {
		case NodePlanner:
			if err := e.reason(ctx, e.planner, state, ""); err != nil {
				return steps, err
			}
			node = NodeChatbot

		case NodeChatbot:
			if steps >= e.cfg.MaxSteps {
				e.events.Emit(state.ThreadID, EventStepLimit, map[string]any{"max_steps": e.cfg.MaxSteps})
				return steps, turnError(KindMaxSteps, fmt.Errorf("%w: limit %d", ErrMaxStepsExceeded, e.cfg.MaxSteps))
			}
			steps++
			if err := e.reason(ctx, e.chatbot, state, note); err != nil {
				return steps, err
			}
			note = ""
			node = Route(state)

		case NodeTools:
			e.dispatch.Run(ctx, state)
			if err := ctx.Err(); err != nil {
				return steps, turnError(contextKind(err), err)
			}
			if e.cfg.StepWiseCheckpoint {
				if err := e.store.Save(ctx, state); err != nil {
					return steps, turnError(KindCheckpoint, err)
				}
			}
			if DetectLoop(state, e.cfg.LoopDetection) {
				note = loopWarning(e.cfg.LoopDetection)
				e.events.Emit(state.ThreadID, EventLoopDetected, map[string]any{"window": e.cfg.LoopDetection})
				e.logger.Warn("tool call loop detected",
					zap.String("thread_id", state.ThreadID),
					zap.Int("window", e.cfg.LoopDetection),
				)
			}
			node = NodeChatbot

		default:
			return steps, nil
		}
	}
}

func (e *Executor) reason(ctx context.Context, node *ReasoningNode, state *conversation.State, note string) error {
	msg, _, err := node.Invoke(ctx, state, note)
	if err != nil {
		e.metrics.IncrementModelCall(node.Name, string(KindOf(err)))
		return err
	}
	e.metrics.IncrementModelCall(node.Name, "ok")

	state.Append(msg)
	e.events.Emit(state.ThreadID, EventAssistantMessage, map[string]any{
		"node":       string(node.Name),
		"content":    msg.Content,
		"tool_calls": len(msg.ToolCalls),
	})
	return nil
}
