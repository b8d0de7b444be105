package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AgentConfig selects the provider and sampling parameters for one
// agent role.
type AgentConfig struct {
	// Provider names the registered provider to use.
	Provider string

	// Temperature overrides the default sampling temperature.
	Temperature float64

	// MaxTokens caps generation length. 0 uses the provider default.
	MaxTokens int
}

// UsageStats accumulates request and token counts across a client's
// lifetime.
type UsageStats struct {
	Requests         uint64
	Failures         uint64
	PromptTokens     uint64
	CompletionTokens uint64
}

// Client routes chat requests to registered providers with per-agent
// configuration, request rate limiting, and bounded retry. Safe for
// concurrent use.
type Client struct {
	mu        sync.RWMutex
	providers map[string]Provider
	agents    map[string]AgentConfig
	primary   string
	fallback  string

	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration

	stats  UsageStats
	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimit caps outgoing requests to rps per second with the given
// burst.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the retry budget for retryable failures.
func WithRetry(maxRetries int, retryDelay time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = retryDelay
	}
}

// WithFallback names the provider used when the primary fails all
// retries.
func WithFallback(name string) ClientOption {
	return func(c *Client) {
		c.fallback = name
	}
}

// NewClient creates a client with no providers registered.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		providers:  make(map[string]Provider),
		agents:     make(map[string]AgentConfig),
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		maxRetries: 3,
		retryDelay: time.Second,
		logger:     slog.Default().With("component", "llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a named provider. The first registered provider becomes
// the primary.
func (c *Client) Register(name string, p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = p
	if c.primary == "" {
		c.primary = name
	}
}

// ConfigureAgent binds an agent role to a provider and sampling
// parameters.
func (c *Client) ConfigureAgent(agent string, cfg AgentConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents[agent] = cfg
}

// ChatForAgent sends the request through the provider configured for
// the agent role, applying the role's temperature and token cap.
// Unconfigured agents use the primary provider with the request's own
// parameters.
func (c *Client) ChatForAgent(ctx context.Context, agent string, req ChatRequest) (*ChatResponse, error) {
	c.mu.RLock()
	cfg, ok := c.agents[agent]
	c.mu.RUnlock()
	if ok {
		if cfg.Temperature > 0 {
			req.Temperature = cfg.Temperature
		}
		if cfg.MaxTokens > 0 {
			req.MaxTokens = cfg.MaxTokens
		}
		if cfg.Provider != "" {
			return c.chatVia(ctx, cfg.Provider, req)
		}
	}
	return c.Chat(ctx, req)
}

// Chat sends the request through the primary provider, falling back to
// the configured fallback provider if every retry fails.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	c.mu.RLock()
	primary, fallback := c.primary, c.fallback
	c.mu.RUnlock()

	if primary == "" {
		return nil, ErrNoProvider
	}

	resp, err := c.chatVia(ctx, primary, req)
	if err == nil {
		return resp, nil
	}
	if fallback == "" || fallback == primary {
		return nil, err
	}

	c.logger.Warn("primary provider failed, trying fallback",
		"primary", primary, "fallback", fallback, "error", err)
	return c.chatVia(ctx, fallback, req)
}

// chatVia runs the request against one named provider with rate
// limiting and exponential backoff on retryable errors.
func (c *Client) chatVia(ctx context.Context, name string, req ChatRequest) (*ChatResponse, error) {
	c.mu.RLock()
	p, ok := c.providers[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q not registered", ErrNoProvider, name)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * (1 << (attempt - 1))
			c.logger.Debug("retrying request", "provider", name, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := p.Chat(ctx, req)
		if err == nil {
			c.recordSuccess(resp)
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}

	c.recordFailure()
	return nil, fmt.Errorf("chat via %q: %w", name, lastErr)
}

// Stats returns a snapshot of the cumulative usage counters.
func (c *Client) Stats() UsageStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Close closes every registered provider, returning the first error.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for name, p := range c.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close provider %q: %w", name, err)
		}
	}
	return firstErr
}

func (c *Client) recordSuccess(resp *ChatResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Requests++
	c.stats.PromptTokens += uint64(resp.Usage.PromptTokens)
	c.stats.CompletionTokens += uint64(resp.Usage.CompletionTokens)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Requests++
	c.stats.Failures++
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		(errors.Is(err, ErrAPIError) && !errors.Is(err, ErrInvalidAPIKey))
}
