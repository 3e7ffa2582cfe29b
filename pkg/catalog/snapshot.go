package catalog

import (
	"context"

	"github.com/ekaya-inc/text2sql/pkg/models"
)

// Snapshot is the in-memory Catalog implementation. A snapshot is immutable
// after construction and safe for concurrent use; consumers must treat
// returned metadata as read-only.
type Snapshot struct {
	version     string
	tables      []models.TableMeta
	foreignKeys []models.ForeignKey
	byName      map[string]*models.TableMeta
}

var _ Catalog = (*Snapshot)(nil)

// NewSnapshot builds a snapshot over the given tables and join edges.
func NewSnapshot(version string, tables []models.TableMeta, foreignKeys []models.ForeignKey) *Snapshot {
	s := &Snapshot{
		version:     version,
		tables:      tables,
		foreignKeys: foreignKeys,
		byName:      make(map[string]*models.TableMeta, len(tables)),
	}
	for i := range s.tables {
		t := &s.tables[i]
		s.byName[t.QualifiedName()] = t
		// Bare names resolve too unless shadowed by a qualified duplicate
		if _, exists := s.byName[t.TableName]; !exists {
			s.byName[t.TableName] = t
		}
	}
	return s
}

// Version returns the snapshot version tag.
func (s *Snapshot) Version() string {
	return s.version
}

// ListTables returns table metadata for the given schema, or every table
// when schemaName is empty.
func (s *Snapshot) ListTables(_ context.Context, schemaName string) ([]models.TableMeta, error) {
	if schemaName == "" {
		out := make([]models.TableMeta, len(s.tables))
		copy(out, s.tables)
		return out, nil
	}

	var out []models.TableMeta
	for i := range s.tables {
		if s.tables[i].SchemaName == schemaName {
			out = append(out, s.tables[i])
		}
	}
	return out, nil
}

// GetForeignKeys returns the join edges touching the given table.
func (s *Snapshot) GetForeignKeys(_ context.Context, table string) ([]models.ForeignKey, error) {
	var out []models.ForeignKey
	for i := range s.foreignKeys {
		if s.foreignKeys[i].Touches(table) {
			out = append(out, s.foreignKeys[i])
		}
	}
	return out, nil
}

// Table returns the table with the given bare or qualified name, or nil.
func (s *Snapshot) Table(name string) *models.TableMeta {
	return s.byName[name]
}

// Tables returns all tables in catalog order.
func (s *Snapshot) Tables() []models.TableMeta {
	out := make([]models.TableMeta, len(s.tables))
	copy(out, s.tables)
	return out
}

// ForeignKeys returns all join edges.
func (s *Snapshot) ForeignKeys() []models.ForeignKey {
	out := make([]models.ForeignKey, len(s.foreignKeys))
	copy(out, s.foreignKeys)
	return out
}

// TableCount returns the number of tables in the snapshot.
func (s *Snapshot) TableCount() int {
	return len(s.tables)
}
