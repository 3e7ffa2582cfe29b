package datasource

import (
	"context"
	"time"
)

// MockExplainer is a configurable mock for testing dry-run behavior.
// Set the function fields to control behavior in tests.
type MockExplainer struct {
	// ExplainFunc is called when Explain is invoked.
	// If nil, returns an empty result and nil error.
	ExplainFunc func(ctx context.Context, sqlQuery string, timeout time.Duration) (*ExplainResult, error)

	// TestConnectionFunc is called when TestConnection is invoked.
	// If nil, returns nil.
	TestConnectionFunc func(ctx context.Context) error

	// EngineName is returned by Engine. Defaults to "mock".
	EngineName string

	// Call tracking for verification
	ExplainCalls        int
	TestConnectionCalls int
	CloseCalls          int

	// Queries records every SQL string passed to Explain, in order.
	Queries []string
}

// NewMockExplainer creates a new mock with sensible defaults.
func NewMockExplainer() *MockExplainer {
	return &MockExplainer{
		EngineName: "mock",
	}
}

// Explain implements Explainer.
func (m *MockExplainer) Explain(ctx context.Context, sqlQuery string, timeout time.Duration) (*ExplainResult, error) {
	m.ExplainCalls++
	m.Queries = append(m.Queries, sqlQuery)
	if m.ExplainFunc != nil {
		return m.ExplainFunc(ctx, sqlQuery, timeout)
	}
	return &ExplainResult{}, nil
}

// TestConnection implements Explainer.
func (m *MockExplainer) TestConnection(ctx context.Context) error {
	m.TestConnectionCalls++
	if m.TestConnectionFunc != nil {
		return m.TestConnectionFunc(ctx)
	}
	return nil
}

// Engine implements Explainer.
func (m *MockExplainer) Engine() string {
	if m.EngineName == "" {
		return "mock"
	}
	return m.EngineName
}

// Close implements Explainer.
func (m *MockExplainer) Close() error {
	m.CloseCalls++
	return nil
}

// Reset clears call tracking counters.
func (m *MockExplainer) Reset() {
	m.ExplainCalls = 0
	m.TestConnectionCalls = 0
	m.CloseCalls = 0
	m.Queries = nil
}

// Ensure MockExplainer implements Explainer at compile time.
var _ Explainer = (*MockExplainer)(nil)
