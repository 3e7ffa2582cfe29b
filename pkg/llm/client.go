package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1"

// defaultEmbeddingModel is used when callers do not name one explicitly.
const defaultEmbeddingModel = "text-embedding-3-small"

// Config holds configuration for creating a model provider client.
type Config struct {
	Endpoint          string        // Base URL; empty selects the provider default
	Model             string        // Model name, e.g. "gpt-4o-mini"
	APIKey            string        // Optional for local OpenAI-compatible endpoints
	MaxTokens         int           // Completion token cap; 0 leaves the provider default
	Timeout           time.Duration // Per-call timeout; 0 disables
	BreakerThreshold  int           // Consecutive failures before the circuit trips; 0 uses the default
	BreakerResetAfter time.Duration // Wait before a tripped circuit admits a probe; 0 uses the default
}

// breaker builds the circuit breaker described by the config.
func (c *Config) breaker() *CircuitBreaker {
	bc := DefaultCircuitBreakerConfig()
	if c.BreakerThreshold > 0 {
		bc.Threshold = c.BreakerThreshold
	}
	if c.BreakerResetAfter > 0 {
		bc.ResetAfter = c.BreakerResetAfter
	}
	return NewCircuitBreaker(bc)
}

// callContext applies the per-call timeout when one is configured.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// Client provides access to OpenAI-compatible model endpoints.
type Client struct {
	client    *openai.Client
	endpoint  string
	model     string
	maxTokens int
	timeout   time.Duration
	breaker   *CircuitBreaker
	logger    *zap.Logger
}

// NewClient creates a new OpenAI-compatible LLM client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(endpoint, "/")

	return &Client{
		client:    openai.NewClientWithConfig(clientConfig),
		endpoint:  endpoint,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		breaker:   cfg.breaker(),
		logger:    logger.Named("llm"),
	}, nil
}

// GenerateResponse generates a chat completion response with usage stats.
// Calls are gated by the circuit breaker so a dead provider fails fast
// instead of stacking timeouts attempt after attempt.
func (c *Client) GenerateResponse(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
) (*GenerateResponseResult, error) {
	if allowed, err := c.breaker.Allow(); !allowed {
		return nil, NewError(ErrorTypeEndpoint, err.Error(), false, nil)
	}

	ctx, cancel := callContext(ctx, c.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemMessage},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature))

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               c.model,
		Messages:            messages,
		Temperature:         float32(temperature),
		MaxCompletionTokens: c.maxTokens,
	})
	if err != nil {
		c.breaker.RecordFailure()
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, c.parseError(err)
	}

	c.breaker.RecordSuccess()

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	elapsed := time.Since(start)

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", elapsed))

	return &GenerateResponseResult{
		Content:          content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// CreateEmbedding generates an embedding vector for the input text.
func (c *Client) CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error) {
	embeddings, err := c.CreateEmbeddings(ctx, []string{input}, model)
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}
	return embeddings[0], nil
}

// CreateEmbeddings generates embeddings for multiple inputs.
func (c *Client) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	if model == "" {
		model = defaultEmbeddingModel
	}

	if allowed, err := c.breaker.Allow(); !allowed {
		return nil, NewError(ErrorTypeEndpoint, err.Error(), false, nil)
	}

	ctx, cancel := callContext(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(model),
		Input: inputs,
	})
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("create embeddings: %w", c.parseError(err))
	}

	c.breaker.RecordSuccess()

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}

	return embeddings, nil
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}

// parseError categorizes provider API errors using the structured Error type.
func (c *Client) parseError(err error) error {
	return ClassifyError(err)
}

// Ensure Client implements LLMClient at compile time.
var _ LLMClient = (*Client)(nil)
