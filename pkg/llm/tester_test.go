package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestConnectionTester_BothSuccessful(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
		return &GenerateResponseResult{Content: "ok"}, nil
	}
	mock.CreateEmbeddingFunc = func(ctx context.Context, input, model string) ([]float32, error) {
		return []float32{0.1, 0.2, 0.3}, nil
	}

	tester := NewConnectionTester()
	result := tester.Test(context.Background(), mock, "text-embedding-3-small")

	if !result.Success {
		t.Errorf("expected overall success, got message: %s", result.Message)
	}
	if !result.LLMSuccess {
		t.Errorf("expected LLM success, got: %s", result.LLMMessage)
	}
	if !result.EmbeddingSuccess {
		t.Errorf("expected embedding success, got: %s", result.EmbeddingMessage)
	}
	if result.Message != "LLM and embedding connections successful" {
		t.Errorf("unexpected message: %s", result.Message)
	}
}

func TestConnectionTester_LLMFailure(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
		return nil, NewError(ErrorTypeAuth, "authentication failed", false, errors.New("HTTP 401"))
	}

	tester := NewConnectionTester()
	result := tester.Test(context.Background(), mock, "")

	if result.Success {
		t.Error("expected overall failure")
	}
	if result.LLMSuccess {
		t.Error("expected LLM failure")
	}
	if result.LLMErrorType != ErrorTypeAuth {
		t.Errorf("expected error type %s, got %s", ErrorTypeAuth, result.LLMErrorType)
	}
	if !strings.Contains(result.Message, "authentication failed") {
		t.Errorf("expected auth failure message, got: %s", result.Message)
	}
}

func TestConnectionTester_EmbeddingNotConfigured(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
		return &GenerateResponseResult{Content: "ok"}, nil
	}

	tester := NewConnectionTester()
	result := tester.Test(context.Background(), mock, "")

	if !result.Success {
		t.Errorf("expected overall success, got: %s", result.Message)
	}
	if mock.CreateEmbeddingCalls != 0 {
		t.Errorf("expected no embedding calls, got %d", mock.CreateEmbeddingCalls)
	}
	if !strings.Contains(result.Message, "embedding not configured") {
		t.Errorf("expected not-configured message, got: %s", result.Message)
	}
}

func TestConnectionTester_EmbeddingUnsupported(t *testing.T) {
	mock := NewMockLLMClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
		return &GenerateResponseResult{Content: "ok"}, nil
	}
	mock.CreateEmbeddingFunc = func(ctx context.Context, input, model string) ([]float32, error) {
		return nil, NewError(ErrorTypeModel, "anthropic provider does not support embeddings", false, nil)
	}

	tester := NewConnectionTester()
	result := tester.Test(context.Background(), mock, "text-embedding-3-small")

	if !result.Success {
		t.Errorf("expected overall success despite embedding failure, got: %s", result.Message)
	}
	if result.EmbeddingSuccess {
		t.Error("expected embedding failure")
	}
	if result.EmbeddingErrorType != ErrorTypeModel {
		t.Errorf("expected error type %s, got %s", ErrorTypeModel, result.EmbeddingErrorType)
	}
	if result.Message != "LLM connection successful, embedding failed" {
		t.Errorf("unexpected message: %s", result.Message)
	}
}
