// Package inspect reads the schema of read-only SQLite files.
package inspect

import "strings"

// Database is one inspected SQLite file. It is never mutated after
// inspection; a refresh replaces it wholesale.
type Database struct {
	Name   string            `json:"name"`   // Filename stem, unique across the served set
	Hash   string            `json:"hash"`   // Hex SHA-256 of the file content
	Path   string            `json:"file"`   // Absolute path
	Size   int64             `json:"size"`   // File size in bytes
	Tables map[string]*Table `json:"tables"` // Keyed by table name
	Views  []string          `json:"views"`  // Sorted view names

	ViewDefinitions map[string]string `json:"view_definitions"` // CREATE VIEW statements by view name
}

// ShortHash is the display prefix of the content hash.
func (d *Database) ShortHash() string {
	if len(d.Hash) < 7 {
		return d.Hash
	}
	return d.Hash[:7]
}

// IsView reports whether name is a view of this database.
func (d *Database) IsView(name string) bool {
	for _, v := range d.Views {
		if v == name {
			return true
		}
	}
	return false
}

// TableNames returns all table names, sorted.
func (d *Database) TableNames() []string {
	return sortedKeys(d.Tables)
}

// HiddenCount is the number of hidden tables.
func (d *Database) HiddenCount() int {
	n := 0
	for _, t := range d.Tables {
		if t.Hidden {
			n++
		}
	}
	return n
}

// Table is the inspected shape of one table.
type Table struct {
	Name        string      `json:"name"`
	Columns     []string    `json:"columns"`      // In declared order
	Count       int64       `json:"count"`        // Row count at inspection time
	PrimaryKeys []string    `json:"primary_keys"` // Empty means rowid
	LabelColumn string      `json:"label_column"` // Empty when not inferred
	Hidden      bool        `json:"hidden"`
	FTSTable    string      `json:"fts_table"` // Full-text virtual table indexing this table
	ForeignKeys ForeignKeys `json:"foreign_keys"`

	ColumnTypes map[string]string `json:"column_types"` // Declared type by column, "" when untyped
	Definition  string            `json:"definition"`   // CREATE TABLE statement
}

// UsesRowid reports whether the table has no declared primary key.
func (t *Table) UsesRowid() bool {
	return len(t.PrimaryKeys) == 0
}

// HasColumn reports whether col is one of the table's columns.
func (t *Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Affinity is the SQLite type affinity of a column.
type Affinity int

const (
	AffinityBlob Affinity = iota
	AffinityText
	AffinityNumeric
	AffinityInteger
	AffinityReal
)

// AffinityOf applies the SQLite rules for deriving affinity from a
// declared column type, in order.
func AffinityOf(declared string) Affinity {
	t := strings.ToUpper(declared)
	switch {
	case strings.Contains(t, "INT"):
		return AffinityInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return AffinityText
	case t == "", strings.Contains(t, "BLOB"):
		return AffinityBlob
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return AffinityReal
	}
	return AffinityNumeric
}

// Affinity returns the affinity of col. The rowid is always an integer.
func (t *Table) Affinity(col string) Affinity {
	if col == "rowid" && t.UsesRowid() {
		return AffinityInteger
	}
	return AffinityOf(t.ColumnTypes[col])
}

// OutgoingFor returns the outgoing foreign key declared on column.
func (t *Table) OutgoingFor(column string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys.Outgoing {
		if fk.Column == column {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// ForeignKeys holds both directions of a table's declared relationships.
type ForeignKeys struct {
	Incoming []ForeignKey `json:"incoming"`
	Outgoing []ForeignKey `json:"outgoing"`
}

// ForeignKey is one declared relationship, seen from the owning table.
// For an outgoing key Column is local; for an incoming key Column is the
// local column being referenced.
type ForeignKey struct {
	Column      string `json:"column"`
	OtherTable  string `json:"other_table"`
	OtherColumn string `json:"other_column"`
}
