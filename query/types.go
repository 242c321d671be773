package query

import (
	"github.com/joe-ervin05/litebrowse/config"
	"github.com/joe-ervin05/litebrowse/facets"
	"github.com/joe-ervin05/litebrowse/sandbox"
	"github.com/joe-ervin05/litebrowse/tools"
)

// Request identifies a table page and carries its query string.
type Request struct {
	Database string
	Table    string
	Path     string     // Path of the page, used to build next and toggle URLs
	Args     tools.Args // Raw query string, in order
}

// Statement is the SQL that produced a result.
type Statement struct {
	SQL    string         `json:"sql"`
	Params map[string]any `json:"params"`
}

// RowSet is the tabular part of every response.
type RowSet struct {
	Columns     []string
	Rows        [][]sandbox.Cell
	PrimaryKeys []string // Key columns present in Columns; empty for queries and views
}

// Response is implemented by every result the engine returns.
type Response interface {
	RowSet() RowSet
}

// TableResult is a page of a table or view.
type TableResult struct {
	Database         string           `json:"database"`
	Table            string           `json:"table"`
	IsView           bool             `json:"is_view"`
	TableDefinition  *string          `json:"table_definition"`
	ViewDefinition   *string          `json:"view_definition"`
	HumanDescription string           `json:"human_description_en"`
	Columns          []string         `json:"columns"`
	Rows             [][]sandbox.Cell `json:"rows"`
	Truncated        bool             `json:"truncated"`
	PrimaryKeys      []string         `json:"primary_keys"`

	TableRowsCount         *int64 `json:"table_rows_count"`
	FilteredTableRowsCount *int64 `json:"filtered_table_rows_count"`

	Next    *string   `json:"next"`
	NextURL *string   `json:"next_url"`
	Query   Statement `json:"query"`
	QueryMs float64   `json:"query_ms"`

	FacetResults    map[string]facets.Result `json:"facet_results"`
	FacetsTimedOut  []string                 `json:"facets_timed_out"`
	SuggestedFacets []facets.Suggestion      `json:"suggested_facets"`

	Sort     *string `json:"sort"`
	SortDesc *string `json:"sort_desc"`

	Labels map[string]map[string]sandbox.Cell `json:"labels,omitempty"`

	config.Attribution

	keyColumns []string
}

// RowSet implements Response.
func (r *TableResult) RowSet() RowSet {
	return RowSet{Columns: r.Columns, Rows: r.Rows, PrimaryKeys: r.keyColumns}
}

// RowResult is a single record looked up by primary key.
type RowResult struct {
	Database         string           `json:"database"`
	Table            string           `json:"table"`
	Columns          []string         `json:"columns"`
	Rows             [][]sandbox.Cell `json:"rows"`
	PrimaryKeys      []string         `json:"primary_keys"`
	PrimaryKeyValues []string         `json:"primary_key_values"`
	Query            Statement        `json:"query"`
	QueryMs          float64          `json:"query_ms"`

	ForeignKeyTables []ForeignKeyTable                  `json:"foreign_key_tables,omitempty"`
	Labels           map[string]map[string]sandbox.Cell `json:"labels,omitempty"`

	config.Attribution
}

// RowSet implements Response.
func (r *RowResult) RowSet() RowSet {
	return RowSet{Columns: r.Columns, Rows: r.Rows, PrimaryKeys: r.PrimaryKeys}
}

// ForeignKeyTable counts the rows of another table pointing at a record.
type ForeignKeyTable struct {
	OtherTable  string `json:"other_table"`
	Column      string `json:"column"`
	OtherColumn string `json:"other_column"`
	Count       int64  `json:"count"`
}

// QueryResult is the outcome of custom or canned SQL.
type QueryResult struct {
	Database    string           `json:"database"`
	CannedQuery string           `json:"canned_query,omitempty"`
	Title       string           `json:"title,omitempty"`
	Columns     []string         `json:"columns"`
	Rows        [][]sandbox.Cell `json:"rows"`
	Truncated   bool             `json:"truncated"`
	Query       Statement        `json:"query"`
	QueryMs     float64          `json:"query_ms"`

	config.Attribution
}

// RowSet implements Response.
func (r *QueryResult) RowSet() RowSet {
	return RowSet{Columns: r.Columns, Rows: r.Rows}
}

// RedirectError is returned by Table when the query string uses legacy
// filter arguments. URL is the canonical location.
type RedirectError struct {
	URL string
}

func (r *RedirectError) Error() string {
	return "redirect to " + r.URL
}
