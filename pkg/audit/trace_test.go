package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/text2sql/pkg/models"
)

func TestLogTraceWriter(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	writer := NewLogTraceWriter(logger)

	requestID := uuid.New()
	trace := &QueryTrace{
		RequestID:  requestID,
		UserID:     "analyst-7",
		Question:   "How much did gold tier players deposit last month?",
		Status:     models.StatusSucceeded,
		SQL:        "SELECT SUM(amount) FROM deposits",
		Confidence: 0.87,
		Attempts:   1,
		Stages: []StageTiming{
			{Stage: "analysis", DurationMs: 420},
			{Stage: "retrieval", DurationMs: 180},
			{Stage: "generation", DurationMs: 1300},
		},
		Usage:     models.TokenUsage{PromptTokens: 900, CompletionTokens: 120, TotalTokens: 1020},
		ElapsedMs: 2100,
		CreatedAt: time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
	}

	require.NoError(t, writer.WriteTrace(context.Background(), trace))

	logs := recorded.All()
	require.Len(t, logs, 1)

	entry := logs[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "Query processed", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, requestID.String(), fields["request_id"])
	assert.Equal(t, "succeeded", fields["status"])
	assert.Equal(t, 0.87, fields["confidence"])
	assert.Equal(t, int64(2100), fields["elapsed_ms"])

	var logged QueryTrace
	require.NoError(t, json.Unmarshal([]byte(fields["trace_json"].(string)), &logged))
	assert.Equal(t, requestID, logged.RequestID)
	assert.Len(t, logged.Stages, 3)
	assert.Equal(t, 1020, logged.Usage.TotalTokens)
}

func TestLogTraceWriter_SanitizesBeforeLogging(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	writer := NewLogTraceWriter(logger)

	trace := &QueryTrace{
		RequestID: uuid.New(),
		Question:  "connect with password=hunter2 and show deposits",
		Status:    models.StatusFailed,
	}

	require.NoError(t, writer.WriteTrace(context.Background(), trace))

	logs := recorded.All()
	require.Len(t, logs, 1)

	traceJSON := logs[0].ContextMap()["trace_json"].(string)
	assert.NotContains(t, traceJSON, "hunter2")

	// The caller's trace is left untouched.
	assert.Contains(t, trace.Question, "hunter2")
}

func TestMockTraceWriter(t *testing.T) {
	mock := &MockTraceWriter{}

	trace := &QueryTrace{RequestID: uuid.New(), Status: models.StatusSucceeded}
	require.NoError(t, mock.WriteTrace(context.Background(), trace))
	require.Len(t, mock.Traces, 1)
	assert.Same(t, trace, mock.Traces[0])

	sinkErr := errors.New("sink offline")
	mock.WriteTraceFunc = func(ctx context.Context, trace *QueryTrace) error {
		return sinkErr
	}
	err := mock.WriteTrace(context.Background(), &QueryTrace{})
	assert.ErrorIs(t, err, sinkErr)
	assert.Len(t, mock.Traces, 2)
}
