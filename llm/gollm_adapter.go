package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM and implements ProviderAdapter.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string

	// gollm options are set on the shared LLM, so calls are serialized.
	mu sync.Mutex
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key for the adapter.
func WithAPIKey(key string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates an adapter for provider. With an empty key gollm
// reads the provider's key from the environment.
func NewGollmAdapter(provider string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		maxTokens:   4096,
		temperature: 0,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		model = DefaultModelFor(provider)
	}
	if model == "" {
		model = DefaultModel
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries happen in RetryMiddleware
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, newError(ClassConfig, provider, "create gollm client", err)
	}

	return &GollmAdapter{provider: provider, llm: llm, model: model}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM.
func NewGollmAdapterFromLLM(provider, model string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{provider: provider, llm: llm, model: model}
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete renders the request as a gollm prompt and parses tool calls out
// of the generated text.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.applyRequestOptions(req)
	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildResponse(req, text), nil
}

func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	system, body := renderPrompt(req.Messages)

	var promptOpts []gollm.PromptOption
	if system != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.ToolDefs) > 0 {
		tools := make([]gollm.Tool, 0, len(req.ToolDefs))
		for _, t := range req.ToolDefs {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
		if req.ToolChoice != nil {
			promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice.Mode))
		}
	}

	return gollm.NewPrompt(body, promptOpts...)
}

// renderPrompt flattens the conversation into gollm's single system prompt
// and prompt body.
func renderPrompt(msgs []Message) (system, body string) {
	var sys []string
	var parts []string
	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			sys = append(sys, msg.Content)
		case RoleUser:
			parts = append(parts, "[User]: "+msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Content)
			}
			for _, c := range msg.ToolCalls {
				parts = append(parts, fmt.Sprintf("[Assistant called %s (id=%s)]: %s", c.Name, c.ID, string(c.Arguments)))
			}
		case RoleTool:
			prefix := "[Tool Result"
			if msg.IsError {
				prefix = "[Tool Error"
			}
			parts = append(parts, fmt.Sprintf("%s (id=%s)]: %s", prefix, msg.ToolCallID, msg.Content))
		}
	}

	body = strings.Join(parts, "\n")
	if body == "" {
		body = "Hello"
	}
	return strings.TrimSpace(strings.Join(sys, "\n")), body
}

func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	calls, rest := parseToolCalls(text)
	finish := FinishReason{Reason: "stop", Raw: "stop"}
	if len(calls) > 0 {
		finish = FinishReason{Reason: "tool_calls", Raw: "tool_calls"}
	}

	// gollm does not expose usage; estimate at four characters per token.
	in := estimateTokens(req)
	out := len(text) / 4
	return &Response{
		ID:           "resp_" + uuid.NewString()[:8],
		Model:        model,
		Provider:     a.provider,
		Message:      AssistantMessage(rest, calls...),
		FinishReason: finish,
		Usage:        Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

var functionCallBlock = regexp.MustCompile(`(?s)<function_call>\s*(.*?)\s*</function_call>`)

type rawToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Function  *struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// parseToolCalls extracts tool calls embedded in generated text and returns
// them with the remaining prose. gollm reports calls as <function_call>
// blocks; bare {"tool_calls": [...]} objects and [{"name": ...}] arrays are
// accepted too.
func parseToolCalls(text string) ([]ToolCall, string) {
	var raws []rawToolCall

	if matches := functionCallBlock.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		for _, m := range matches {
			var rc rawToolCall
			if err := json.Unmarshal([]byte(m[1]), &rc); err == nil {
				raws = append(raws, rc)
			}
		}
		text = functionCallBlock.ReplaceAllString(text, "")
	} else if idx := strings.Index(text, `{"tool_calls"`); idx != -1 {
		var wrapper struct {
			ToolCalls []rawToolCall `json:"tool_calls"`
		}
		if err := json.NewDecoder(strings.NewReader(text[idx:])).Decode(&wrapper); err == nil {
			raws = wrapper.ToolCalls
			text = text[:idx]
		}
	} else if idx := strings.Index(text, `[{"name"`); idx != -1 {
		if err := json.NewDecoder(strings.NewReader(text[idx:])).Decode(&raws); err == nil {
			text = text[:idx]
		} else {
			raws = nil
		}
	}

	calls := make([]ToolCall, 0, len(raws))
	for _, rc := range raws {
		name, args := rc.Name, rc.Arguments
		if rc.Function != nil {
			name, args = rc.Function.Name, rc.Function.Arguments
		}
		if name == "" {
			continue
		}
		id := rc.ID
		if id == "" {
			id = "call_" + uuid.NewString()[:8]
		}
		calls = append(calls, ToolCall{ID: id, Name: name, Arguments: normalizeArguments(args)})
	}
	if len(calls) == 0 {
		calls = nil
	}
	return calls, strings.TrimSpace(text)
}

// normalizeArguments turns a JSON-encoded argument string into the object it
// encodes and defaults missing arguments to {}.
func normalizeArguments(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`)
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil && json.Valid([]byte(s)) {
			return json.RawMessage(s)
		}
	}
	return json.RawMessage(trimmed)
}

// statusPattern finds an HTTP status in a provider error message such as
// "API error: status code 429 - ..." or "401 Unauthorized".
var statusPattern = regexp.MustCompile(`(?i:\bstatus(?:\s*code)?)\s*[:=]?\s*([45]\d\d)\b|(?:^|:\s*)([45]\d\d)\s+[A-Za-z]`)

// messageClasses is matched in order. The first two entries win over a
// status code because providers report them as plain 400s.
var messageClasses = []struct {
	class Class
	words []string
}{
	{ClassContextLength, []string{"context length", "context_length", "too many tokens", "maximum context"}},
	{ClassContentFilter, []string{"content filter", "content_filter", "safety"}},
	{ClassAuth, []string{"unauthorized", "invalid api key", "forbidden"}},
	{ClassRateLimit, []string{"rate limit", "too many requests"}},
	{ClassTimeout, []string{"timeout", "timed out"}},
	{ClassNetwork, []string{"connection refused", "no such host", "connection reset", "unexpected eof"}},
}

func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(ClassTimeout, a.provider, "model request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return newError(ClassAborted, a.provider, "model request cancelled", err)
	}

	msg := err.Error()
	e := newError(ClassUnknown, a.provider, msg, err)
	lower := strings.ToLower(msg)
	for _, mc := range messageClasses[:2] {
		if containsAny(lower, mc.words) {
			e.Class = mc.class
			return e
		}
	}
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		code := m[1]
		if code == "" {
			code = m[2]
		}
		e.StatusCode, _ = strconv.Atoi(code)
		e.Class = classForStatus(e.StatusCode)
		return e
	}
	for _, mc := range messageClasses[2:] {
		if containsAny(lower, mc.words) {
			e.Class = mc.class
			return e
		}
	}
	return e
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	if total == 0 {
		total = 10
	}
	return total
}
