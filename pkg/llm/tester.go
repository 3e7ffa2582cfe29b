package llm

import (
	"context"
	"fmt"
	"time"
)

// TestResult contains connection test results.
type TestResult struct {
	Success            bool      `json:"success"`
	Message            string    `json:"message"`
	LLMSuccess         bool      `json:"llm_success"`
	LLMMessage         string    `json:"llm_message,omitempty"`
	LLMErrorType       ErrorType `json:"llm_error_type,omitempty"`
	LLMResponseTimeMs  int64     `json:"llm_response_time_ms,omitempty"`
	EmbeddingSuccess   bool      `json:"embedding_success"`
	EmbeddingMessage   string    `json:"embedding_message,omitempty"`
	EmbeddingErrorType ErrorType `json:"embedding_error_type,omitempty"`
}

// ConnectionTester verifies that a configured provider answers completion
// and embedding calls. This interface enables mocking in tests.
type ConnectionTester interface {
	// Test exercises both completion and embedding calls on the client.
	// Pass an empty embeddingModel to skip the embedding check.
	Test(ctx context.Context, client LLMClient, embeddingModel string) *TestResult
}

// connectionTester implements ConnectionTester with real API calls.
type connectionTester struct {
	timeout time.Duration
}

// NewConnectionTester creates a new tester.
func NewConnectionTester() ConnectionTester {
	return &connectionTester{timeout: 30 * time.Second}
}

// Test exercises both completion and embedding calls on the client.
func (t *connectionTester) Test(ctx context.Context, client LLMClient, embeddingModel string) *TestResult {
	result := &TestResult{}

	llmResult := t.testLLM(ctx, client)
	result.LLMSuccess = llmResult.Success
	result.LLMMessage = llmResult.Message
	result.LLMErrorType = llmResult.ErrorType
	result.LLMResponseTimeMs = llmResult.ResponseTimeMs

	if embeddingModel != "" {
		embResult := t.testEmbedding(ctx, client, embeddingModel)
		result.EmbeddingSuccess = embResult.Success
		result.EmbeddingMessage = embResult.Message
		result.EmbeddingErrorType = embResult.ErrorType
	}

	// Overall success
	if result.LLMSuccess {
		result.Success = true
		if result.EmbeddingSuccess {
			result.Message = "LLM and embedding connections successful"
		} else if embeddingModel == "" {
			result.Message = "LLM connection successful (embedding not configured)"
		} else {
			result.Message = "LLM connection successful, embedding failed"
		}
	} else {
		result.Message = result.LLMMessage
	}

	return result
}

type singleResult struct {
	Success        bool
	Message        string
	ErrorType      ErrorType
	ResponseTimeMs int64
}

func (t *connectionTester) testLLM(ctx context.Context, client LLMClient) singleResult {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()

	resp, err := client.GenerateResponse(ctx, "Say 'ok' and nothing else.", "", 0)

	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		classified := ClassifyError(err)
		return singleResult{
			Message:        fmt.Sprintf("LLM: %s", classified.Message),
			ErrorType:      classified.Type,
			ResponseTimeMs: elapsed,
		}
	}

	if resp.Content == "" {
		return singleResult{Message: "LLM returned no response", ErrorType: ErrorTypeUnknown}
	}

	return singleResult{
		Success:        true,
		Message:        fmt.Sprintf("LLM connection successful (model: %s, %dms)", client.GetModel(), elapsed),
		ResponseTimeMs: elapsed,
	}
}

func (t *connectionTester) testEmbedding(ctx context.Context, client LLMClient, model string) singleResult {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()

	embedding, err := client.CreateEmbedding(ctx, "test", model)

	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		classified := ClassifyError(err)
		return singleResult{
			Message:        fmt.Sprintf("Embedding: %s", classified.Message),
			ErrorType:      classified.Type,
			ResponseTimeMs: elapsed,
		}
	}

	if len(embedding) == 0 {
		return singleResult{Message: "Embedding returned no vectors", ErrorType: ErrorTypeUnknown}
	}

	return singleResult{
		Success:        true,
		Message:        fmt.Sprintf("Embedding successful (model: %s, %dms, %d dims)", model, elapsed, len(embedding)),
		ResponseTimeMs: elapsed,
	}
}

// Ensure connectionTester implements ConnectionTester at compile time.
var _ ConnectionTester = (*connectionTester)(nil)
