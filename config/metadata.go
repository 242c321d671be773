package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Metadata is the optional per-database and per-table configuration file.
// JSON is a subset of YAML, so both formats are accepted.
type Metadata struct {
	Title       string `yaml:"title,omitempty" json:"title,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	Attribution `yaml:",inline"`

	Databases map[string]DatabaseMetadata `yaml:"databases,omitempty" json:"databases,omitempty"`
}

// Attribution credits the data. It is copied into every database, table,
// row and query response.
type Attribution struct {
	Source     string `yaml:"source,omitempty" json:"source,omitempty"`
	SourceURL  string `yaml:"source_url,omitempty" json:"source_url,omitempty"`
	License    string `yaml:"license,omitempty" json:"license,omitempty"`
	LicenseURL string `yaml:"license_url,omitempty" json:"license_url,omitempty"`
}

// DatabaseMetadata holds table overrides and canned queries for one database.
type DatabaseMetadata struct {
	Title   string                   `yaml:"title,omitempty" json:"title,omitempty"`
	Tables  map[string]TableMetadata `yaml:"tables,omitempty" json:"tables,omitempty"`
	Queries map[string]CannedQuery   `yaml:"queries,omitempty" json:"queries,omitempty"`
}

// TableMetadata overrides inspected table settings.
type TableMetadata struct {
	Title           string   `yaml:"title,omitempty" json:"title,omitempty"`
	SortableColumns []string `yaml:"sortable_columns,omitempty" json:"sortable_columns,omitempty"`
	LabelColumn     string   `yaml:"label_column,omitempty" json:"label_column,omitempty"`
	Hidden          bool     `yaml:"hidden,omitempty" json:"hidden,omitempty"`
}

// CannedQuery is a named SQL statement exposed like a table.
type CannedQuery struct {
	SQL   string `yaml:"sql" json:"sql"`
	Title string `yaml:"title,omitempty" json:"title,omitempty"`
}

// UnmarshalYAML accepts either a bare SQL string or a mapping.
func (q *CannedQuery) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&q.SQL)
	}
	type plain CannedQuery
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*q = CannedQuery(p)
	return nil
}

// LoadMetadata reads a metadata file. An empty path yields empty metadata.
func LoadMetadata(path string) (*Metadata, error) {
	md := &Metadata{}
	if path == "" {
		return md, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, md); err != nil {
		return nil, fmt.Errorf("failed to parse metadata %s: %w", path, err)
	}
	return md, nil
}

// Credits returns the data attribution, empty when unset.
func (m *Metadata) Credits() Attribution {
	if m == nil {
		return Attribution{}
	}
	return m.Attribution
}

// Table returns the overrides for db/table, if any.
func (m *Metadata) Table(db, table string) TableMetadata {
	if m == nil {
		return TableMetadata{}
	}
	return m.Databases[db].Tables[table]
}

// Query returns the canned query db/name.
func (m *Metadata) Query(db, name string) (CannedQuery, bool) {
	if m == nil {
		return CannedQuery{}, false
	}
	q, ok := m.Databases[db].Queries[name]
	return q, ok
}

// QueryNames lists the canned queries of db, sorted.
func (m *Metadata) QueryNames(db string) []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.Databases[db].Queries))
	for name := range m.Databases[db].Queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
