package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Handler executes one tool invocation.
type Handler func(ctx context.Context, args json.RawMessage) Outcome

// Definition describes a tool to the model.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Tool pairs a definition with its handler.
type Tool struct {
	Definition Definition
	Handler    Handler
}

// Registry is a closed mapping from tool name to handler. It is fixed at
// construction and safe for concurrent use.
type Registry struct {
	tools   map[string]Tool
	order   []string
	logger  *zap.Logger
	metrics *Metrics
}

// NewRegistry validates and indexes tools. Empty or duplicate names and
// missing handlers are configuration errors.
func NewRegistry(logger *zap.Logger, metrics *Metrics, tools ...Tool) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		tools:   make(map[string]Tool, len(tools)),
		order:   make([]string, 0, len(tools)),
		logger:  logger.Named("registry"),
		metrics: metrics,
	}
	for i, t := range tools {
		name := t.Definition.Name
		if name == "" {
			return nil, fmt.Errorf("sandbox: tool %d has no name", i)
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("sandbox: tool %q has no handler", name)
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("sandbox: duplicate tool %q", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

// Definitions returns tool definitions in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

const unknownToolLabel = "unknown"

// Invoke runs the named tool. Unknown names yield an UnknownTool outcome and
// a panicking handler yields an IOError; neither escapes as a Go error.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (out Outcome) {
	start := time.Now()
	t, known := r.tools[name]
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", zap.String("tool", name), zap.Any("panic", p))
			out = Fail(newError(KindIOError, "tool %s failed: %v", name, p))
		}
		// Names come from the model; only registered ones become label values.
		label := name
		if !known {
			label = unknownToolLabel
		}
		r.metrics.IncrementInvocation(label, out.Label())
		r.logger.Debug("tool invoked",
			zap.String("tool", name),
			zap.String("outcome", out.Label()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()

	if !known {
		return Fail(&Error{Kind: KindUnknownTool, Detail: name})
	}
	return t.Handler(ctx, args)
}
