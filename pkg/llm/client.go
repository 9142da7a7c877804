package llm

import (
	"context"
	"time"

	"github.com/jmylchreest/cinetag/internal/logger"
)

// SystemPrompt frames every completion as a structured extraction task.
const SystemPrompt = `You are a content metadata extraction system for a streaming platform.
You respond with a single JSON object and nothing else.`

// Client adapts a Provider to a single-prompt text completion call.
// A Client holds only static configuration and is safe for concurrent use
// when the underlying Provider is.
type Client struct {
	provider     Provider
	temperature  float64
	maxTokens    int
	systemPrompt string
	timeout      time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTemperature sets the sampling temperature (default 0).
func WithTemperature(t float64) ClientOption {
	return func(c *Client) { c.temperature = t }
}

// WithMaxTokens sets the maximum output tokens.
func WithMaxTokens(n int) ClientOption {
	return func(c *Client) { c.maxTokens = n }
}

// WithSystemPrompt overrides the system prompt. An empty string sends none.
func WithSystemPrompt(s string) ClientOption {
	return func(c *Client) { c.systemPrompt = s }
}

// WithTimeout bounds each request. Zero leaves the provider's transport timeout in charge.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// CallOptions are the per-call settings of one Complete call.
type CallOptions struct {
	// Temperature is nil when the call leaves the client default in place.
	Temperature *float64
	// Model is empty when the call keeps the provider's model.
	Model string
}

// CallOption adjusts a single Complete call.
type CallOption func(*CallOptions)

// CallTemperature sets the sampling temperature for one call, overriding
// the client's default.
func CallTemperature(t float64) CallOption {
	return func(o *CallOptions) { o.Temperature = &t }
}

// CallModel requests a model for one call. Empty keeps the provider's model.
func CallModel(model string) CallOption {
	return func(o *CallOptions) { o.Model = model }
}

// ApplyCallOptions folds opts into a CallOptions value. ModelClient
// implementations other than Client use it to read the requested settings.
func ApplyCallOptions(opts ...CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewClient wraps provider.
func NewClient(provider Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider:     provider,
		maxTokens:    defaultMaxTokens,
		systemPrompt: SystemPrompt,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends prompt as a single request and returns the raw model text.
// Failures are returned as *ServiceError and are not retried.
func (c *Client) Complete(ctx context.Context, prompt string, opts ...CallOption) (string, error) {
	call := ApplyCallOptions(opts...)
	temperature := c.temperature
	if call.Temperature != nil {
		temperature = *call.Temperature
	}
	model := c.provider.Model()
	if call.Model != "" {
		model = call.Model
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := make([]Message, 0, 2)
	if c.systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: c.systemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: prompt})

	logger.Debug("llm request",
		"provider", c.provider.Name(),
		"model", model,
		"prompt_size", len(prompt),
		"temperature", temperature,
		"max_tokens", c.maxTokens)

	resp, err := c.provider.Execute(ctx, Request{
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: temperature,
		Model:       call.Model,
	})
	if err != nil {
		se := NewServiceError(c.provider.Name(), 0, err)
		logger.Debug("llm request failed", "provider", c.provider.Name(), "kind", se.Kind, "error", err)
		return "", se
	}

	logger.Debug("llm response",
		"provider", c.provider.Name(),
		"model", resp.Model,
		"response_size", len(resp.Content),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"finish_reason", resp.FinishReason,
		"duration", resp.Duration)

	return resp.Content, nil
}

// Name returns the underlying provider name.
func (c *Client) Name() string {
	return c.provider.Name()
}

// Model returns the underlying provider model.
func (c *Client) Model() string {
	return c.provider.Model()
}
