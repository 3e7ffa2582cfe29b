package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewAnthropicClient_RequiresModel(t *testing.T) {
	_, err := NewAnthropicClient(&Config{APIKey: "sk-ant-test"}, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for missing model")
	}
	if !strings.Contains(err.Error(), "model is required") {
		t.Errorf("expected 'model is required' error, got: %v", err)
	}
}

func TestNewAnthropicClient_RequiresAPIKey(t *testing.T) {
	_, err := NewAnthropicClient(&Config{Model: "claude-sonnet-4-5"}, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for missing api key")
	}
	if !strings.Contains(err.Error(), "api key is required") {
		t.Errorf("expected 'api key is required' error, got: %v", err)
	}
}

func TestNewAnthropicClient_Defaults(t *testing.T) {
	client, err := NewAnthropicClient(&Config{
		Model:  "claude-sonnet-4-5",
		APIKey: "sk-ant-test",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.GetEndpoint() != defaultAnthropicEndpoint {
		t.Errorf("expected default endpoint %q, got %q", defaultAnthropicEndpoint, client.GetEndpoint())
	}
	if client.GetModel() != "claude-sonnet-4-5" {
		t.Errorf("expected model 'claude-sonnet-4-5', got %q", client.GetModel())
	}
	if client.maxTokens != 2048 {
		t.Errorf("expected default max tokens 2048, got %d", client.maxTokens)
	}
}

func TestAnthropicClient_EmbeddingsUnsupported(t *testing.T) {
	client, err := NewAnthropicClient(&Config{
		Model:  "claude-sonnet-4-5",
		APIKey: "sk-ant-test",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = client.CreateEmbedding(context.Background(), "test", "")
	if err == nil {
		t.Fatal("expected error for unsupported embeddings")
	}

	var llmErr *Error
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if llmErr.Type != ErrorTypeModel {
		t.Errorf("expected type %s, got %s", ErrorTypeModel, llmErr.Type)
	}
	if llmErr.Retryable {
		t.Error("unsupported embeddings should not be retryable")
	}

	_, err = client.CreateEmbeddings(context.Background(), []string{"test"}, "")
	if err == nil {
		t.Fatal("expected error for unsupported embeddings")
	}
}
