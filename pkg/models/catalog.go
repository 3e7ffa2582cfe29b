package models

// TableMeta describes one table of the catalog snapshot, combining physical
// schema with curated business metadata.
type TableMeta struct {
	SchemaName   string       `json:"schema_name" yaml:"schema_name"`
	TableName    string       `json:"table_name" yaml:"table_name"`
	BusinessName string       `json:"business_name,omitempty" yaml:"business_name,omitempty"`
	Description  string       `json:"description,omitempty" yaml:"description,omitempty"`
	Domains      []string     `json:"domains,omitempty" yaml:"domains,omitempty"`
	RowCount     int64        `json:"row_count,omitempty" yaml:"row_count,omitempty"`
	Columns      []ColumnMeta `json:"columns,omitempty" yaml:"columns,omitempty"`
	// Embedding is an optional precomputed vector over the table's business
	// description, used by semantic retrieval. Empty when not embedded.
	Embedding []float32 `json:"-" yaml:"embedding,omitempty"`
}

// QualifiedName returns the schema-qualified table name.
func (t *TableMeta) QualifiedName() string {
	if t.SchemaName == "" {
		return t.TableName
	}
	return t.SchemaName + "." + t.TableName
}

// Column returns the column with the given name, or nil.
func (t *TableMeta) Column(name string) *ColumnMeta {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnMeta describes one column of a catalog table.
type ColumnMeta struct {
	Name           string   `json:"name" yaml:"name"`
	DataType       string   `json:"data_type" yaml:"data_type"`
	BusinessName   string   `json:"business_name,omitempty" yaml:"business_name,omitempty"`
	Description    string   `json:"description,omitempty" yaml:"description,omitempty"`
	IsPrimaryKey   bool     `json:"is_primary_key,omitempty" yaml:"is_primary_key,omitempty"`
	IsForeignKey   bool     `json:"is_foreign_key,omitempty" yaml:"is_foreign_key,omitempty"`
	IsFilterable   bool     `json:"is_filterable,omitempty" yaml:"is_filterable,omitempty"`
	IsAggregatable bool     `json:"is_aggregatable,omitempty" yaml:"is_aggregatable,omitempty"`
	SampleValues   []string `json:"sample_values,omitempty" yaml:"sample_values,omitempty"`
}

// ForeignKey is a directed join edge between two catalog tables.
type ForeignKey struct {
	SourceTable  string `json:"source_table" yaml:"source_table"`
	SourceColumn string `json:"source_column" yaml:"source_column"`
	TargetTable  string `json:"target_table" yaml:"target_table"`
	TargetColumn string `json:"target_column" yaml:"target_column"`
}

// Joins returns true if the edge connects the two given tables, in either
// direction. Table names are schema-qualified.
func (fk *ForeignKey) Joins(a, b string) bool {
	return (fk.SourceTable == a && fk.TargetTable == b) ||
		(fk.SourceTable == b && fk.TargetTable == a)
}

// Touches returns true if either end of the edge is the given table.
func (fk *ForeignKey) Touches(table string) bool {
	return fk.SourceTable == table || fk.TargetTable == table
}
