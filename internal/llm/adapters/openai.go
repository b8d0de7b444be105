// Package adapters provides LLM provider implementations.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/yewanyuan/Cursor-Writing/internal/llm"
)

// modelCapabilities maps model names to their capabilities.
var modelCapabilities = map[string]llm.Capabilities{
	"gpt-4o": {
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
		TokenizerType:    "o200k_base",
	},
	"gpt-4o-mini": {
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
		TokenizerType:    "o200k_base",
	},
	"gpt-4-turbo": {
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
		TokenizerType:    "cl100k_base",
	},
	"o1": {
		MaxContextTokens: 200000,
		MaxOutputTokens:  100000,
		TokenizerType:    "o200k_base",
	},
	"o1-mini": {
		MaxContextTokens: 128000,
		MaxOutputTokens:  65536,
		TokenizerType:    "o200k_base",
	},
}

// defaultCapabilities is used for unknown models.
var defaultCapabilities = llm.Capabilities{
	MaxContextTokens: 128000,
	MaxOutputTokens:  4096,
	TokenizerType:    "cl100k_base",
}

// OpenAIAdapter implements the Provider interface for the OpenAI API
// and compatible endpoints.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
	config OpenAIConfig
}

// OpenAIConfig holds configuration for the OpenAI adapter.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key.
	APIKey string

	// Model is the model to use for completions.
	Model string

	// BaseURL overrides the default API URL (for Azure or compatible APIs).
	BaseURL string

	// Organization is the optional OpenAI organization ID.
	Organization string

	// Timeout is the request timeout duration.
	Timeout time.Duration
}

// OpenAIOption configures an OpenAIAdapter.
type OpenAIOption func(*OpenAIConfig)

// WithOpenAIBaseURL sets a custom base URL.
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(c *OpenAIConfig) {
		c.BaseURL = baseURL
	}
}

// WithOpenAIOrganization sets the organization ID.
func WithOpenAIOrganization(org string) OpenAIOption {
	return func(c *OpenAIConfig) {
		c.Organization = org
	}
}

// WithOpenAITimeout sets the request timeout.
func WithOpenAITimeout(timeout time.Duration) OpenAIOption {
	return func(c *OpenAIConfig) {
		c.Timeout = timeout
	}
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(apiKey, model string, opts ...OpenAIOption) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", llm.ErrInvalidAPIKey)
	}

	if model == "" {
		model = "gpt-4o"
	}

	config := OpenAIConfig{
		APIKey:  apiKey,
		Model:   model,
		Timeout: 120 * time.Second,
	}

	for _, opt := range opts {
		opt(&config)
	}

	clientConfig := openai.DefaultConfig(apiKey)

	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	if config.Organization != "" {
		clientConfig.OrgID = config.Organization
	}

	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		config: config,
	}, nil
}

// Chat sends a chat completion request and returns the complete response.
func (a *OpenAIAdapter) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	resp, err := a.client.CreateChatCompletion(ctx, a.buildRequest(req))
	if err != nil {
		return nil, a.handleError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", llm.ErrAPIError)
	}

	return a.buildResponse(resp), nil
}

// Capabilities returns the provider's capabilities.
func (a *OpenAIAdapter) Capabilities() llm.Capabilities {
	caps, ok := modelCapabilities[a.model]
	if !ok {
		caps = defaultCapabilities
	}
	caps.Models = []string{a.model}
	return caps
}

// Close releases resources held by the adapter.
func (a *OpenAIAdapter) Close() error {
	// No persistent resources to clean up
	return nil
}

// Model returns the current model name.
func (a *OpenAIAdapter) Model() string {
	return a.model
}

// buildRequest converts our ChatRequest to the OpenAI format.
func (a *OpenAIAdapter) buildRequest(req llm.ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	openAIReq := openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: messages,
		Stop:     req.Stop,
	}

	if req.MaxTokens > 0 {
		openAIReq.MaxTokens = req.MaxTokens
	}

	if req.Temperature > 0 {
		openAIReq.Temperature = float32(req.Temperature)
	}

	return openAIReq
}

// buildResponse converts an OpenAI response to our ChatResponse.
func (a *OpenAIAdapter) buildResponse(resp openai.ChatCompletionResponse) *llm.ChatResponse {
	choice := resp.Choices[0]

	return &llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    choice.Message.Role,
			Content: choice.Message.Content,
		},
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
	}
}

// handleError converts OpenAI errors to our error types.
func (a *OpenAIAdapter) handleError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("request canceled: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401:
			return fmt.Errorf("%w: %s", llm.ErrInvalidAPIKey, apiErr.Message)
		case 404:
			return fmt.Errorf("%w: %s", llm.ErrModelNotFound, apiErr.Message)
		case 429:
			return fmt.Errorf("%w: %s", llm.ErrRateLimited, apiErr.Message)
		case 400:
			if apiErr.Code == "context_length_exceeded" {
				return fmt.Errorf("%w: %s", llm.ErrContextTooLong, apiErr.Message)
			}
			return fmt.Errorf("%w: %s", llm.ErrAPIError, apiErr.Message)
		case 500, 502, 503, 504:
			return fmt.Errorf("%w: server error - %s", llm.ErrAPIError, apiErr.Message)
		default:
			return fmt.Errorf("%w: HTTP %d - %s", llm.ErrAPIError, apiErr.HTTPStatusCode, apiErr.Message)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: %s", llm.ErrAPIError, reqErr.Error())
	}

	return fmt.Errorf("%w: %s", llm.ErrAPIError, err.Error())
}

// Verify OpenAIAdapter implements Provider interface.
var _ llm.Provider = (*OpenAIAdapter)(nil)
