package datasource

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/text2sql/pkg/config"
)

// NewExplainer creates the sandbox adapter selected by cfg.Type using the
// global registry. Callers are expected to skip construction entirely when
// cfg.Type is empty; that means dry-run validation is disabled.
func NewExplainer(ctx context.Context, cfg *config.SandboxConfig) (Explainer, error) {
	factory := GetFactory(cfg.Type)
	if factory == nil {
		return nil, fmt.Errorf("unsupported sandbox type: %s (not compiled in)", cfg.Type)
	}
	return factory(ctx, cfg)
}
