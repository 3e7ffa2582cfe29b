package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewClient_RequiresModel(t *testing.T) {
	_, err := NewClient(&Config{}, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for missing model")
	}
	if !strings.Contains(err.Error(), "model is required") {
		t.Errorf("expected 'model is required' error, got: %v", err)
	}
}

func TestNewClient_DefaultEndpoint(t *testing.T) {
	client, err := NewClient(&Config{Model: "gpt-4o-mini"}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.GetEndpoint() != defaultOpenAIEndpoint {
		t.Errorf("expected default endpoint %q, got %q", defaultOpenAIEndpoint, client.GetEndpoint())
	}
	if client.GetModel() != "gpt-4o-mini" {
		t.Errorf("expected model 'gpt-4o-mini', got %q", client.GetModel())
	}
}

func TestNewClient_CustomEndpoint(t *testing.T) {
	client, err := NewClient(&Config{
		Model:    "qwen2.5-coder",
		Endpoint: "http://localhost:8000/v1",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.GetEndpoint() != "http://localhost:8000/v1" {
		t.Errorf("expected custom endpoint, got %q", client.GetEndpoint())
	}
}

func TestClient_GenerateResponse_BreakerOpen(t *testing.T) {
	client, err := NewClient(&Config{
		Model:             "gpt-4o-mini",
		BreakerThreshold:  1,
		BreakerResetAfter: time.Hour,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Trip the breaker so the call is rejected before any network I/O
	client.breaker.RecordFailure()

	_, err = client.GenerateResponse(context.Background(), "hello", "", 0)
	if err == nil {
		t.Fatal("expected error from open circuit")
	}

	var llmErr *Error
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if llmErr.Type != ErrorTypeEndpoint {
		t.Errorf("expected type %s, got %s", ErrorTypeEndpoint, llmErr.Type)
	}
	if llmErr.Retryable {
		t.Error("breaker rejection should not be retryable")
	}
	if !strings.Contains(err.Error(), "circuit breaker open") {
		t.Errorf("expected circuit breaker message, got: %v", err)
	}
}

func TestClient_CreateEmbeddings_BreakerOpen(t *testing.T) {
	client, err := NewClient(&Config{
		Model:             "gpt-4o-mini",
		BreakerThreshold:  1,
		BreakerResetAfter: time.Hour,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client.breaker.RecordFailure()

	_, err = client.CreateEmbeddings(context.Background(), []string{"x"}, "")
	if err == nil {
		t.Fatal("expected error from open circuit")
	}
	if !strings.Contains(err.Error(), "circuit breaker open") {
		t.Errorf("expected circuit breaker message, got: %v", err)
	}
}

func TestConfig_BreakerDefaults(t *testing.T) {
	cfg := &Config{Model: "gpt-4o-mini"}
	cb := cfg.breaker()

	if cb.threshold != 5 {
		t.Errorf("expected default threshold 5, got %d", cb.threshold)
	}
	if cb.resetAfter != 30*time.Second {
		t.Errorf("expected default reset 30s, got %v", cb.resetAfter)
	}

	cfg = &Config{Model: "gpt-4o-mini", BreakerThreshold: 2, BreakerResetAfter: time.Minute}
	cb = cfg.breaker()

	if cb.threshold != 2 {
		t.Errorf("expected threshold 2, got %d", cb.threshold)
	}
	if cb.resetAfter != time.Minute {
		t.Errorf("expected reset 1m, got %v", cb.resetAfter)
	}
}
