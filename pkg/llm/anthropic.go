package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const defaultAnthropicEndpoint = "https://api.anthropic.com/v1"

// AnthropicClient provides access to the Anthropic Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	endpoint  string
	model     string
	maxTokens int
	timeout   time.Duration
	breaker   *CircuitBreaker
	logger    *zap.Logger
}

// NewAnthropicClient creates a new Anthropic-backed LLM client.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	endpoint := cfg.Endpoint
	opts := []anthropic.ClientOption{}
	if endpoint == "" {
		endpoint = defaultAnthropicEndpoint
	} else {
		opts = append(opts, anthropic.WithBaseURL(endpoint))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(cfg.APIKey, opts...),
		endpoint:  endpoint,
		model:     cfg.Model,
		maxTokens: maxTokens,
		timeout:   cfg.Timeout,
		breaker:   cfg.breaker(),
		logger:    logger.Named("llm"),
	}, nil
}

// GenerateResponse generates a chat completion response with usage stats.
func (c *AnthropicClient) GenerateResponse(
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

	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", temperature))

	temp := float32(temperature)
	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		System:      systemMessage,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		c.breaker.RecordFailure()
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyError(err)
	}

	c.breaker.RecordSuccess()

	content := firstTextBlock(resp)
	if content == "" {
		return nil, fmt.Errorf("no text content in response")
	}

	elapsed := time.Since(start)

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.InputTokens),
		zap.Int("completion_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", elapsed))

	return &GenerateResponseResult{
		Content:          content,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

// firstTextBlock returns the first text content block of a messages response.
func firstTextBlock(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}

// CreateEmbedding implements LLMClient. Anthropic has no embeddings API, so
// callers that need vectors must degrade to lexical matching.
func (c *AnthropicClient) CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error) {
	return nil, NewError(ErrorTypeModel, "anthropic provider does not support embeddings", false, nil)
}

// CreateEmbeddings implements LLMClient.
func (c *AnthropicClient) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	return nil, NewError(ErrorTypeModel, "anthropic provider does not support embeddings", false, nil)
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *AnthropicClient) GetEndpoint() string {
	return c.endpoint
}

// Ensure AnthropicClient implements LLMClient at compile time.
var _ LLMClient = (*AnthropicClient)(nil)
