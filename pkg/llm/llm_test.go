package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmylchreest/cinetag/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider records requests and replays a fixed response.
type stubProvider struct {
	requests []llm.Request
	content  string
	err      error
	delay    time.Duration
}

func (s *stubProvider) Execute(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.requests = append(s.requests, req)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.content, Model: "stub-1"}, nil
}

func (s *stubProvider) Name() string  { return "stub" }
func (s *stubProvider) Model() string { return "stub-1" }

func TestClient_Complete(t *testing.T) {
	t.Parallel()

	p := &stubProvider{content: `{"genres":["Drama"]}`}
	c := llm.NewClient(p, llm.WithTemperature(0), llm.WithMaxTokens(321))

	out, err := c.Complete(context.Background(), "describe this")

	require.NoError(t, err)
	assert.Equal(t, `{"genres":["Drama"]}`, out)
	require.Len(t, p.requests, 1)

	req := p.requests[0]
	assert.Equal(t, 321, req.MaxTokens)
	assert.Equal(t, 0.0, req.Temperature)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, llm.SystemPrompt, req.Messages[0].Content)
	assert.Equal(t, llm.RoleUser, req.Messages[1].Role)
	assert.Equal(t, "describe this", req.Messages[1].Content)
	assert.Equal(t, "stub", c.Name())
	assert.Equal(t, "stub-1", c.Model())
}

func TestClient_Complete_CallOptions(t *testing.T) {
	t.Parallel()

	p := &stubProvider{content: "{}"}
	c := llm.NewClient(p, llm.WithTemperature(0.2))

	_, err := c.Complete(context.Background(), "hi", llm.CallTemperature(0.7), llm.CallModel("stub-2"))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "hi")
	require.NoError(t, err)

	require.Len(t, p.requests, 2)
	assert.InDelta(t, 0.7, p.requests[0].Temperature, 1e-9)
	assert.Equal(t, "stub-2", p.requests[0].Model)
	assert.InDelta(t, 0.2, p.requests[1].Temperature, 1e-9, "call options do not stick to the client")
	assert.Empty(t, p.requests[1].Model)
}

func TestClient_Complete_WithoutSystemPrompt(t *testing.T) {
	t.Parallel()

	p := &stubProvider{content: "{}"}
	c := llm.NewClient(p, llm.WithSystemPrompt(""))

	_, err := c.Complete(context.Background(), "hi")

	require.NoError(t, err)
	require.Len(t, p.requests[0].Messages, 1)
	assert.Equal(t, llm.RoleUser, p.requests[0].Messages[0].Role)
}

func TestClient_Complete_WrapsFailuresAsServiceError(t *testing.T) {
	t.Parallel()

	p := &stubProvider{err: errors.New("connection reset by peer")}
	c := llm.NewClient(p)

	_, err := c.Complete(context.Background(), "hi")

	var se *llm.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "stub", se.Provider)
	assert.Equal(t, llm.KindNetwork, se.Kind)
	assert.Len(t, p.requests, 1, "client must not retry")
}

func TestClient_Complete_Timeout(t *testing.T) {
	t.Parallel()

	p := &stubProvider{content: "{}", delay: time.Second}
	c := llm.NewClient(p, llm.WithTimeout(10*time.Millisecond))

	_, err := c.Complete(context.Background(), "hi")

	var se *llm.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, llm.KindTimeout, se.Kind)
	assert.True(t, se.Temporary())
}

func TestNewServiceError_Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		err       error
		kind      llm.ErrorKind
		temporary bool
	}{
		{"unauthorized", 401, errors.New("bad key"), llm.KindAuth, false},
		{"forbidden", 403, errors.New("no access"), llm.KindAuth, false},
		{"rate limited", 429, errors.New("slow down"), llm.KindRateLimit, true},
		{"server error", 503, errors.New("overloaded"), llm.KindService, true},
		{"bad request", 400, errors.New("invalid model"), llm.KindService, false},
		{"gateway timeout", 504, errors.New("upstream"), llm.KindTimeout, true},
		{"canceled", 0, fmt.Errorf("call: %w", context.Canceled), llm.KindCanceled, false},
		{"deadline", 0, context.DeadlineExceeded, llm.KindTimeout, true},
		{"transport", 0, errors.New("dial tcp: connection refused"), llm.KindNetwork, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			se := llm.NewServiceError("anthropic", tt.status, tt.err)

			assert.Equal(t, tt.kind, se.Kind)
			assert.Equal(t, tt.temporary, se.Temporary())
			assert.ErrorIs(t, se, tt.err)
			assert.Contains(t, se.Error(), "anthropic")
		})
	}
}

func TestNewServiceError_KeepsExistingClassification(t *testing.T) {
	t.Parallel()

	inner := llm.NewServiceError("openai", 429, errors.New("slow down"))
	outer := llm.NewServiceError("client", 0, fmt.Errorf("wrapped: %w", inner))

	assert.Same(t, inner, outer)
	assert.True(t, llm.IsServiceError(fmt.Errorf("x: %w", inner)))
	assert.False(t, llm.IsServiceError(errors.New("plain")))
}

func TestOllamaProvider_Execute(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"model":"llama3.2","message":{"role":"assistant","content":"{\"genres\":[\"Drama\"]}"},"done":true,"prompt_eval_count":12,"eval_count":7}`))
	}))
	defer srv.Close()

	p, err := llm.NewOllamaProvider(llm.ProviderConfig{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	resp, err := p.Execute(context.Background(), llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
		Temperature: 0,
		MaxTokens:   100,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"genres":["Drama"]}`, resp.Content)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 7, resp.Usage.OutputTokens)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, "llama3.2", got["model"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, map[string]any{"temperature": 0.0, "num_predict": 100.0}, got["options"])
}

func TestOllamaProvider_Execute_RequestModel(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"model":"qwen2.5","message":{"role":"assistant","content":"{}"},"done":true}`))
	}))
	defer srv.Close()

	p, err := llm.NewOllamaProvider(llm.ProviderConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
		Temperature: 0.5,
		Model:       "qwen2.5",
	})

	require.NoError(t, err)
	assert.Equal(t, "qwen2.5", got["model"])
	assert.Equal(t, 0.5, got["options"].(map[string]any)["temperature"])
}

func TestOllamaProvider_Execute_StatusErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		kind   llm.ErrorKind
	}{
		{http.StatusTooManyRequests, llm.KindRateLimit},
		{http.StatusUnauthorized, llm.KindAuth},
		{http.StatusInternalServerError, llm.KindService},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			p, err := llm.NewOllamaProvider(llm.ProviderConfig{BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = p.Execute(context.Background(), llm.Request{})

			var se *llm.ServiceError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.kind, se.Kind)
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, int32(1), hits.Load())
		})
	}
}

func TestOllamaProvider_Execute_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, err := llm.NewOllamaProvider(llm.ProviderConfig{BaseURL: url})
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), llm.Request{})

	var se *llm.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, llm.KindNetwork, se.Kind)
	assert.Zero(t, se.StatusCode)
}

func TestOpenAIProvider_Execute(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"genres\":[\"Comedy\"]}"}}],"usage":{"prompt_tokens":9,"completion_tokens":4,"total_tokens":13}}`))
	}))
	defer srv.Close()

	p, err := llm.NewOpenAIProvider(llm.ProviderConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := p.Execute(context.Background(), llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "sys"},
			{Role: llm.RoleUser, Content: "user"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, `{"genres":["Comedy"]}`, resp.Content)
	assert.Equal(t, 9, resp.Usage.InputTokens)
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, 0.0, body["temperature"])
	assert.Len(t, body["messages"], 2)
}

func TestOpenAIProvider_Execute_RateLimitNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	p, err := llm.NewOpenAIProvider(llm.ProviderConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})

	var se *llm.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, llm.KindRateLimit, se.Kind)
	assert.Equal(t, "openai", se.Provider)
	assert.Equal(t, int32(1), hits.Load())
}

func TestAnthropicProvider_Execute(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514","content":[{"type":"text","text":"{\"genres\":[\"Horror\"]}"}],"stop_reason":"end_turn","usage":{"input_tokens":20,"output_tokens":6}}`))
	}))
	defer srv.Close()

	p, err := llm.NewAnthropicProvider(llm.ProviderConfig{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)

	resp, err := p.Execute(context.Background(), llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "sys"},
			{Role: llm.RoleUser, Content: "user"},
		},
		MaxTokens: 500,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"genres":["Horror"]}`, resp.Content)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 20, resp.Usage.InputTokens)
	assert.Equal(t, "claude-sonnet-4-20250514", body["model"])
	assert.Equal(t, 500.0, body["max_tokens"])
	assert.Equal(t, 0.0, body["temperature"])
	assert.NotNil(t, body["system"])
}

func TestAnthropicProvider_Execute_AuthFailure(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	p, err := llm.NewAnthropicProvider(llm.ProviderConfig{APIKey: "bad", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})

	var se *llm.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, llm.KindAuth, se.Kind)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestProviders_RequireAPIKey(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"anthropic", "openai", "openrouter", "gemini"} {
		_, err := llm.NewProvider(name, llm.ProviderConfig{})
		assert.Error(t, err, name)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"anthropic", "gemini", "ollama", "openai", "openrouter"}, llm.AvailableProviders())
	assert.True(t, llm.IsRegistered("ollama"))
	assert.Equal(t, "claude-sonnet-4-20250514", llm.GetDefaultModel("anthropic"))
	assert.Equal(t, "ANTHROPIC_API_KEY", llm.APIKeyEnv("anthropic"))

	_, err := llm.NewProvider("bogus", llm.ProviderConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider: bogus")

	p, err := llm.NewProvider("ollama", llm.ProviderConfig{Model: "qwen2.5"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
	assert.Equal(t, "qwen2.5", p.Model())
}

func TestDetectProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	name, key := llm.DetectProvider()
	assert.Equal(t, "ollama", name)
	assert.Empty(t, key)

	t.Setenv("OPENAI_API_KEY", "sk-openai")
	name, key = llm.DetectProvider()
	assert.Equal(t, "openai", name)
	assert.Equal(t, "sk-openai", key)

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	name, key = llm.DetectProvider()
	assert.Equal(t, "anthropic", name)
	assert.Equal(t, "sk-ant", key)
}
