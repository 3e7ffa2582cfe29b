// Package catalog provides read access to the curated schema catalog: the
// tables, columns and join edges the pipeline is allowed to reason about.
// The catalog is produced by an external enrichment process and consumed
// here as an immutable, versioned snapshot.
package catalog

import (
	"context"

	"github.com/ekaya-inc/text2sql/pkg/models"
)

// Catalog is the read-only schema source consumed by the pipeline.
type Catalog interface {
	// ListTables returns table metadata for the given schema. An empty
	// schema name returns every table in the catalog.
	ListTables(ctx context.Context, schemaName string) ([]models.TableMeta, error)

	// GetForeignKeys returns the join edges touching the given
	// schema-qualified table.
	GetForeignKeys(ctx context.Context, table string) ([]models.ForeignKey, error)
}
