package llm

import (
	"context"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/apperrors"
)

// Config holds configuration for creating a completion client.
type Config struct {
	Endpoint string // base URL, e.g. "https://api.openai.com/v1"
	Model    string // model name, e.g. "gpt-4o"
	APIKey   string // optional for local endpoints
}

// Client wraps an OpenAI-compatible chat completion endpoint behind a
// circuit breaker. Safe for concurrent use.
type Client struct {
	client   *openai.Client
	model    string
	endpoint string
	breaker  *CircuitBreaker
	logger   *zap.Logger
}

// NewClient creates a completion client.
func NewClient(cfg Config, breaker *CircuitBreaker, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, apperrors.New(apperrors.SysConfigurationError, "llm endpoint is required")
	}
	if cfg.Model == "" {
		return nil, apperrors.New(apperrors.SysConfigurationError, "llm model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	if breaker == nil {
		breaker = NewCircuitBreaker(DefaultCircuitBreakerConfig())
	}

	return &Client{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    cfg.Model,
		endpoint: cfg.Endpoint,
		breaker:  breaker,
		logger:   logger.Named("llm"),
	}, nil
}

// Complete implements CompletionClient.
func (c *Client) Complete(ctx context.Context, req Request) (*Result, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.System},
		{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
	}

	c.logger.Debug("completion request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(req.Prompt)),
		zap.Float64("temperature", req.Temperature))

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		c.breaker.RecordFailure()
		c.logger.Error("completion request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyProviderError(err)
	}

	if len(resp.Choices) == 0 {
		c.breaker.RecordFailure()
		return nil, apperrors.New(apperrors.LLMInvalidResponse, "no choices in response")
	}
	c.breaker.RecordSuccess()

	c.logger.Info("completion request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// Model implements CompletionClient.
func (c *Client) Model() string {
	return c.model
}

// Endpoint returns the configured endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ClassifyProviderError maps raw provider errors onto the stable error
// codes. Classification is by message inspection because OpenAI-compatible
// endpoints differ in how much structure they return.
func ClassifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*apperrors.Error); ok {
		return err
	}

	lower := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key"):
		return apperrors.Wrap(apperrors.LLMAPIKeyMissing, "authentication failed", err)
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit"):
		return apperrors.Wrap(apperrors.LLMRateLimited, "rate limited", err)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host"),
		strings.Contains(lower, "500") || strings.Contains(lower, "502") ||
			strings.Contains(lower, "503") || strings.Contains(lower, "504"):
		return apperrors.Wrap(apperrors.LLMUnavailable, "provider unavailable", err)
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "context canceled"):
		return apperrors.Wrap(apperrors.LLMUnavailable, "request timeout", err)
	default:
		return apperrors.Wrap(apperrors.LLMInvalidResponse, "provider error", err)
	}
}
