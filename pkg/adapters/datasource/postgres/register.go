package postgres

import (
	"context"

	"github.com/ekaya-inc/text2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/text2sql/pkg/config"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Engine:      "postgres",
			DisplayName: "PostgreSQL",
			Description: "PostgreSQL 12+ sandbox, planned with EXPLAIN (FORMAT JSON)",
		},
		Factory: func(ctx context.Context, cfg *config.SandboxConfig) (datasource.Explainer, error) {
			return NewAdapter(ctx, cfg)
		},
	})
}
