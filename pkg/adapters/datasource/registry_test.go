package datasource

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/text2sql/pkg/config"
)

func TestRegisterAndLookup(t *testing.T) {
	Register(AdapterRegistration{
		Info: AdapterInfo{
			Engine:      "fake",
			DisplayName: "Fake Engine",
			Description: "registered by tests",
		},
		Factory: func(ctx context.Context, cfg *config.SandboxConfig) (Explainer, error) {
			return NewMockExplainer(), nil
		},
	})

	assert.True(t, IsRegistered("fake"))
	assert.False(t, IsRegistered("oracle"))

	assert.NotNil(t, GetFactory("fake"))
	assert.Nil(t, GetFactory("oracle"))

	var found bool
	for _, info := range RegisteredEngines() {
		if info.Engine == "fake" {
			found = true
			assert.Equal(t, "Fake Engine", info.DisplayName)
		}
	}
	assert.True(t, found, "RegisteredEngines should include the fake engine")
}

func TestNewExplainer(t *testing.T) {
	Register(AdapterRegistration{
		Info: AdapterInfo{Engine: "fake-ok"},
		Factory: func(ctx context.Context, cfg *config.SandboxConfig) (Explainer, error) {
			mock := NewMockExplainer()
			mock.EngineName = "fake-ok"
			return mock, nil
		},
	})

	explainer, err := NewExplainer(context.Background(), &config.SandboxConfig{Type: "fake-ok"})
	require.NoError(t, err)
	assert.Equal(t, "fake-ok", explainer.Engine())
}

func TestNewExplainer_UnknownEngine(t *testing.T) {
	_, err := NewExplainer(context.Background(), &config.SandboxConfig{Type: "sqlite"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported sandbox type: sqlite")
}

func TestNewExplainer_FactoryError(t *testing.T) {
	Register(AdapterRegistration{
		Info: AdapterInfo{Engine: "fake-broken"},
		Factory: func(ctx context.Context, cfg *config.SandboxConfig) (Explainer, error) {
			return nil, fmt.Errorf("%w: dial refused", ErrUnavailable)
		},
	})

	_, err := NewExplainer(context.Background(), &config.SandboxConfig{Type: "fake-broken"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestMockExplainer(t *testing.T) {
	mock := NewMockExplainer()

	result, err := mock.Explain(context.Background(), "SELECT 1", time.Second)
	require.NoError(t, err)
	assert.NotNil(t, result)

	require.NoError(t, mock.TestConnection(context.Background()))
	require.NoError(t, mock.Close())

	assert.Equal(t, 1, mock.ExplainCalls)
	assert.Equal(t, 1, mock.TestConnectionCalls)
	assert.Equal(t, 1, mock.CloseCalls)
	assert.Equal(t, []string{"SELECT 1"}, mock.Queries)
	assert.Equal(t, "mock", mock.Engine())

	mock.Reset()
	assert.Equal(t, 0, mock.ExplainCalls)
	assert.Nil(t, mock.Queries)
}

func TestSyntaxError(t *testing.T) {
	withPos := &SyntaxError{Message: `syntax error at or near "FORM"`, Position: 8}
	assert.Equal(t, `syntax error at or near "FORM" (position 8)`, withPos.Error())

	noPos := &SyntaxError{Message: "invalid column name 'amnt'"}
	assert.Equal(t, "invalid column name 'amnt'", noPos.Error())
}
