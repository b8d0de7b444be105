package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider scripts a sequence of responses for client tests.
type stubProvider struct {
	calls     int
	responses []stubCall
	lastReq   ChatRequest
}

type stubCall struct {
	content string
	err     error
}

func (s *stubProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	s.lastReq = req
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	call := s.responses[idx]
	if call.err != nil {
		return nil, call.err
	}
	return &ChatResponse{
		Message: NewAssistantMessage(call.content),
		Usage:   TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (s *stubProvider) Capabilities() Capabilities { return Capabilities{} }
func (s *stubProvider) Close() error               { return nil }

func newTestClient(opts ...ClientOption) *Client {
	base := []ClientOption{
		WithRetry(2, time.Millisecond),
		WithRateLimit(1000, 1000),
	}
	return NewClient(append(base, opts...)...)
}

func TestClient_NoProvider(t *testing.T) {
	c := newTestClient()
	_, err := c.Chat(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestClient_ChatSuccess(t *testing.T) {
	p := &stubProvider{responses: []stubCall{{content: "hello"}}}
	c := newTestClient()
	c.Register("primary", p)

	resp, err := c.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Message.Content)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Requests)
	assert.Equal(t, uint64(10), stats.PromptTokens)
	assert.Equal(t, uint64(5), stats.CompletionTokens)
}

func TestClient_RetriesRateLimit(t *testing.T) {
	p := &stubProvider{responses: []stubCall{
		{err: ErrRateLimited},
		{err: ErrRateLimited},
		{content: "third time lucky"},
	}}
	c := newTestClient()
	c.Register("primary", p)

	resp, err := c.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", resp.Message.Content)
	assert.Equal(t, 3, p.calls)
}

func TestClient_NonRetryableFailsFast(t *testing.T) {
	p := &stubProvider{responses: []stubCall{{err: ErrInvalidAPIKey}}}
	c := newTestClient()
	c.Register("primary", p)

	_, err := c.Chat(context.Background(), ChatRequest{})
	require.ErrorIs(t, err, ErrInvalidAPIKey)
	assert.Equal(t, 1, p.calls, "invalid key must not be retried")
}

func TestClient_FallbackProvider(t *testing.T) {
	primary := &stubProvider{responses: []stubCall{{err: ErrRateLimited}}}
	backup := &stubProvider{responses: []stubCall{{content: "from backup"}}}

	c := newTestClient(WithFallback("backup"))
	c.Register("primary", primary)
	c.Register("backup", backup)

	resp, err := c.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from backup", resp.Message.Content)
	assert.Equal(t, 3, primary.calls, "primary exhausts its retries first")
}

func TestClient_ChatForAgent(t *testing.T) {
	def := &stubProvider{responses: []stubCall{{content: "default"}}}
	creative := &stubProvider{responses: []stubCall{{content: "creative"}}}

	c := newTestClient()
	c.Register("default", def)
	c.Register("creative", creative)
	c.ConfigureAgent("writer", AgentConfig{Provider: "creative", Temperature: 0.9, MaxTokens: 4000})

	resp, err := c.ChatForAgent(context.Background(), "writer", ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "creative", resp.Message.Content)
	assert.Equal(t, 0.9, creative.lastReq.Temperature)
	assert.Equal(t, 4000, creative.lastReq.MaxTokens)
}

func TestClient_ChatForAgent_Unconfigured(t *testing.T) {
	def := &stubProvider{responses: []stubCall{{content: "default"}}}
	c := newTestClient()
	c.Register("default", def)

	resp, err := c.ChatForAgent(context.Background(), "reviewer", ChatRequest{Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "default", resp.Message.Content)
	assert.Equal(t, 0.2, def.lastReq.Temperature)
}

func TestClient_FailureCounted(t *testing.T) {
	p := &stubProvider{responses: []stubCall{{err: errors.New("boom")}}}
	c := newTestClient()
	c.Register("primary", p)

	_, err := c.Chat(context.Background(), ChatRequest{})
	require.Error(t, err)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Failures)
}
