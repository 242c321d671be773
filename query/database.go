package query

import (
	"context"
	"net/url"
	"sort"

	"github.com/joe-ervin05/litebrowse/config"
)

// DatabaseSummary is one entry of the index.
type DatabaseSummary struct {
	Name              string `json:"name"`
	Hash              string `json:"hash"`
	Path              string `json:"path"`
	Size              int64  `json:"size"`
	TablesCount       int    `json:"tables_count"`
	HiddenTablesCount int    `json:"hidden_tables_count"`
	ViewsCount        int    `json:"views_count"`
	TableRowsSum      int64  `json:"table_rows_sum"`
}

// Index summarizes every served database, in name order.
func (e *Engine) Index(ctx context.Context) ([]DatabaseSummary, error) {
	out := make([]DatabaseSummary, 0, len(e.inspector.Names()))
	for _, name := range e.inspector.Names() {
		db, err := e.inspector.Database(ctx, name)
		if err != nil {
			return nil, err
		}
		path := "/" + url.PathEscape(name)
		if e.cfg.HashURLs {
			path += "-" + db.ShortHash()
		}
		s := DatabaseSummary{
			Name:              name,
			Hash:              db.Hash,
			Path:              path,
			Size:              db.Size,
			TablesCount:       len(db.Tables) - db.HiddenCount(),
			HiddenTablesCount: db.HiddenCount(),
			ViewsCount:        len(db.Views),
		}
		for _, t := range db.Tables {
			if !t.Hidden {
				s.TableRowsSum += t.Count
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// TableSummary describes a table on the database page.
type TableSummary struct {
	Name        string   `json:"name"`
	Columns     []string `json:"columns"`
	PrimaryKeys []string `json:"primary_keys"`
	Count       int64    `json:"count"`
	Hidden      bool     `json:"hidden"`
	FTSTable    string   `json:"fts_table"`
	LabelColumn string   `json:"label_column"`
}

// QuerySummary describes a canned query on the database page.
type QuerySummary struct {
	Name  string `json:"name"`
	SQL   string `json:"sql"`
	Title string `json:"title,omitempty"`
}

// DatabaseInfo is the database page.
type DatabaseInfo struct {
	Database    string         `json:"database"`
	Hash        string         `json:"hash"`
	Size        int64          `json:"size"`
	Tables      []TableSummary `json:"tables"`
	Views       []string       `json:"views"`
	Queries     []QuerySummary `json:"queries"`
	HiddenCount int            `json:"hidden_count"`

	config.Attribution
}

// Database describes one database: visible tables first, then hidden ones,
// each group sorted by name.
func (e *Engine) Database(ctx context.Context, name string) (*DatabaseInfo, error) {
	db, err := e.inspector.Database(ctx, name)
	if err != nil {
		return nil, err
	}

	info := &DatabaseInfo{
		Database:    name,
		Hash:        db.Hash,
		Size:        db.Size,
		Tables:      make([]TableSummary, 0, len(db.Tables)),
		Views:       append([]string{}, db.Views...),
		Queries:     []QuerySummary{},
		HiddenCount: db.HiddenCount(),
		Attribution: e.metadata.Credits(),
	}
	for _, tn := range db.TableNames() {
		t := db.Tables[tn]
		info.Tables = append(info.Tables, TableSummary{
			Name:        t.Name,
			Columns:     t.Columns,
			PrimaryKeys: t.PrimaryKeys,
			Count:       t.Count,
			Hidden:      t.Hidden,
			FTSTable:    t.FTSTable,
			LabelColumn: t.LabelColumn,
		})
	}
	sort.SliceStable(info.Tables, func(i, j int) bool {
		return !info.Tables[i].Hidden && info.Tables[j].Hidden
	})

	for _, qn := range e.metadata.QueryNames(name) {
		q, _ := e.metadata.Query(name, qn)
		info.Queries = append(info.Queries, QuerySummary{Name: qn, SQL: q.SQL, Title: q.Title})
	}
	return info, nil
}
