package llm

import (
	"context"
	"fmt"
)

// Handler sends one request to the model service.
type Handler func(ctx context.Context, req Request) (*Response, error)

// Middleware wraps the call to the next handler.
type Middleware func(ctx context.Context, req Request, next Handler) (*Response, error)

// Completer is the narrow view of a Client used by the agent graph.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Client sends requests to a single provider adapter through a fixed
// middleware chain. Requests without a model get the client's default.
type Client struct {
	adapter ProviderAdapter
	model   string
	handler Handler
}

// ClientOption configures a Client.
type ClientOption func(*Client, *[]Middleware)

// WithMiddleware adds middleware; the first added runs outermost.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(_ *Client, chain *[]Middleware) {
		*chain = append(*chain, mw...)
	}
}

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(model string) ClientOption {
	return func(c *Client, _ *[]Middleware) {
		c.model = model
	}
}

// NewClient builds a client for adapter.
func NewClient(adapter ProviderAdapter, opts ...ClientOption) *Client {
	c := &Client{adapter: adapter}
	var chain []Middleware
	for _, opt := range opts {
		opt(c, &chain)
	}

	h := c.send
	for i := len(chain) - 1; i >= 0; i-- {
		mw, next := chain[i], h
		h = func(ctx context.Context, req Request) (*Response, error) {
			return mw(ctx, req, next)
		}
	}
	c.handler = h
	return c
}

func (c *Client) send(ctx context.Context, req Request) (*Response, error) {
	return c.adapter.Complete(ctx, req)
}

// Provider returns the name of the adapter the client talks to.
func (c *Client) Provider() string {
	if c.adapter == nil {
		return ""
	}
	return c.adapter.Name()
}

// Complete fills in provider and model defaults and runs the request
// through the middleware chain. A request addressed to another provider
// is rejected.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.adapter == nil {
		return nil, newError(ClassConfig, req.Provider, "no provider adapter configured", nil)
	}
	name := c.adapter.Name()
	switch req.Provider {
	case "":
		req.Provider = name
	case name:
	default:
		return nil, newError(ClassConfig, req.Provider,
			fmt.Sprintf("client is configured for provider %q", name), nil)
	}
	if req.Model == "" {
		req.Model = c.model
	}
	return c.handler(ctx, req)
}

// Close releases resources held by the adapter.
func (c *Client) Close() error {
	if closer, ok := c.adapter.(Closer); ok {
		return closer.Close()
	}
	return nil
}
