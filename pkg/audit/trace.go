package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/text2sql/pkg/logging"
	"github.com/ekaya-inc/text2sql/pkg/models"
)

// StageTiming records how long one pipeline stage took.
type StageTiming struct {
	Stage      string `json:"stage"`
	DurationMs int64  `json:"duration_ms"`
	Failed     bool   `json:"failed,omitempty"`
}

// QueryTrace is the record of one pipeline run, written once on every exit
// path. It carries enough to reconstruct what happened without re-running
// the question.
type QueryTrace struct {
	RequestID  uuid.UUID                `json:"request_id"`
	UserID     string                   `json:"user_id,omitempty"`
	Question   string                   `json:"question"`
	Status     models.PipelineStatus    `json:"status"`
	SQL        string                   `json:"sql,omitempty"`
	Confidence float64                  `json:"confidence"`
	Attempts   int                      `json:"attempts"`
	Issues     []models.ValidationIssue `json:"issues,omitempty"`
	Stages     []StageTiming            `json:"stages,omitempty"`
	Usage      models.TokenUsage        `json:"usage"`
	ElapsedMs  int64                    `json:"elapsed_ms"`
	CreatedAt  time.Time                `json:"created_at"`
}

// TraceWriter persists pipeline traces. The pipeline only writes; it never
// reads its own traces back.
type TraceWriter interface {
	WriteTrace(ctx context.Context, trace *QueryTrace) error
}

// LogTraceWriter is the default TraceWriter. It emits each trace as one
// structured log entry under the "query_trace" namespace, which is enough
// for log-backed analytics until a real store is wired in.
type LogTraceWriter struct {
	logger *zap.Logger
}

// NewLogTraceWriter creates a trace writer backed by the structured log.
func NewLogTraceWriter(logger *zap.Logger) *LogTraceWriter {
	return &LogTraceWriter{logger: logger.Named("query_trace")}
}

// WriteTrace implements TraceWriter. Question and SQL are sanitized before
// they reach the log.
func (w *LogTraceWriter) WriteTrace(ctx context.Context, trace *QueryTrace) error {
	sanitized := *trace
	sanitized.Question = logging.SanitizeQuestion(trace.Question)
	sanitized.SQL = logging.SanitizeQuery(trace.SQL)

	// Ignoring error as marshaling known types should never fail
	traceJSON, _ := json.Marshal(&sanitized)

	w.logger.Info("Query processed",
		zap.String("trace_json", string(traceJSON)),
		zap.String("request_id", trace.RequestID.String()),
		zap.String("status", string(trace.Status)),
		zap.Float64("confidence", trace.Confidence),
		zap.Int("attempts", trace.Attempts),
		zap.Int64("elapsed_ms", trace.ElapsedMs),
	)
	return nil
}

// MockTraceWriter records traces for test verification.
type MockTraceWriter struct {
	// WriteTraceFunc is called when WriteTrace is invoked.
	// If nil, the trace is recorded and nil returned.
	WriteTraceFunc func(ctx context.Context, trace *QueryTrace) error

	// Traces records every trace written, in order.
	Traces []*QueryTrace
}

// WriteTrace implements TraceWriter.
func (m *MockTraceWriter) WriteTrace(ctx context.Context, trace *QueryTrace) error {
	m.Traces = append(m.Traces, trace)
	if m.WriteTraceFunc != nil {
		return m.WriteTraceFunc(ctx, trace)
	}
	return nil
}

// Ensure implementations satisfy TraceWriter at compile time.
var (
	_ TraceWriter = (*LogTraceWriter)(nil)
	_ TraceWriter = (*MockTraceWriter)(nil)
)
