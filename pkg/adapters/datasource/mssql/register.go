package mssql

import (
	"context"

	"github.com/ekaya-inc/text2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/text2sql/pkg/config"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Engine:      "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "SQL Server 2019+ sandbox, planned with SET SHOWPLAN_ALL",
		},
		Factory: func(ctx context.Context, cfg *config.SandboxConfig) (datasource.Explainer, error) {
			return NewAdapter(ctx, cfg)
		},
	})
}
