package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joe-ervin05/litebrowse/facets"
	"github.com/joe-ervin05/litebrowse/filters"
	"github.com/joe-ervin05/litebrowse/inspect"
	"github.com/joe-ervin05/litebrowse/paginate"
	"github.com/joe-ervin05/litebrowse/sandbox"
	"github.com/joe-ervin05/litebrowse/tools"
)

// Redirect returns the canonical URL for a request using the legacy
// _filter_column / _filter_op / _filter_value arguments.
func (e *Engine) Redirect(req Request) (string, bool) {
	special, _ := splitArgs(req.Args)
	redirects := filters.RedirectParams(special)
	if len(redirects) == 0 {
		return "", false
	}
	return filters.ApplyRedirect(req.Args, redirects).URL(req.Path), true
}

// target is the table or view a request resolved to.
type target struct {
	db      *inspect.Database
	name    string
	table   *inspect.Table // nil for views
	columns []string
}

func (t target) isView() bool { return t.table == nil }

func (t target) usesRowid() bool { return t.table != nil && t.table.UsesRowid() }

// keyColumns are the columns identifying a row: the primary keys, rowid,
// or nothing for views.
func (t target) keyColumns() []string {
	switch {
	case t.table == nil:
		return nil
	case t.table.UsesRowid():
		return []string{"rowid"}
	}
	return t.table.PrimaryKeys
}

func (t target) hasColumn(col string) bool {
	if t.table != nil {
		return t.table.HasColumn(col) || (col == "rowid" && t.usesRowid())
	}
	for _, c := range t.columns {
		if c == col {
			return true
		}
	}
	return false
}

func (e *Engine) resolve(ctx context.Context, dbName, name string) (target, error) {
	db, err := e.inspector.Database(ctx, dbName)
	if err != nil {
		return target{}, err
	}
	if table, ok := db.Tables[name]; ok {
		return target{db: db, name: name, table: table, columns: table.Columns}, nil
	}
	if !db.IsView(name) {
		return target{}, tools.TableNotFoundErr(name)
	}
	cols, err := e.viewColumns(ctx, dbName, name)
	if err != nil {
		return target{}, err
	}
	return target{db: db, name: name, columns: cols}, nil
}

func (e *Engine) viewColumns(ctx context.Context, dbName, view string) ([]string, error) {
	res, err := e.exec.Execute(ctx, sandbox.Request{
		Database: dbName,
		SQL:      "select name from pragma_table_info(:view) order by cid",
		Params:   map[string]any{"view": view},
	})
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(res.Rows))
	for i, row := range res.Rows {
		cols[i] = row[0].String()
	}
	return cols, nil
}

// Table lists one page of a table or view. A canned query with the same
// name takes precedence and is returned as a *QueryResult.
func (e *Engine) Table(ctx context.Context, req Request) (Response, error) {
	if _, ok := e.metadata.Query(req.Database, req.Table); ok {
		res, err := e.Canned(ctx, req.Database, req.Table, req.Args)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	if u, ok := e.Redirect(req); ok {
		return nil, &RedirectError{URL: u}
	}

	t, err := e.resolve(ctx, req.Database, req.Table)
	if err != nil {
		return nil, err
	}
	special, pairs := splitArgs(req.Args)

	pageSize, err := e.pageSize(special)
	if err != nil {
		return nil, err
	}
	sortCol, sortDesc, err := e.sortOrder(t, special)
	if err != nil {
		return nil, err
	}
	facetCols := req.Args.GetAll("_facet")
	if len(facetCols) > 0 && !e.cfg.AllowFacet {
		return nil, tools.InvalidQueryErr("_facet= is not allowed")
	}
	for _, col := range facetCols {
		if !t.hasColumn(col) {
			return nil, tools.UnknownColumnErr("Cannot facet by " + col)
		}
	}
	groupCols := req.Args.GetAll("_group_count")
	for _, col := range groupCols {
		if !t.hasColumn(col) {
			return nil, tools.UnknownColumnErr("Cannot group by " + col)
		}
	}

	set := filters.Parse(pairs)
	for _, sel := range set {
		if _, known := filters.Lookup(sel.Op); known && !t.hasColumn(sel.Column) {
			return nil, tools.UnknownColumnErr("Cannot filter by " + sel.Column)
		}
	}
	compiled := set.Compile()
	where := compiled.Where
	params := compiled.Params

	searchDesc, err := e.search(t, req.Args, &where, params)
	if err != nil {
		return nil, err
	}
	// the count query shares the filters but not the page position
	filterWhere := append([]string{}, where...)
	filterParams := make(map[string]any, len(params))
	mergeParams(filterParams, params)

	sorted := sortCol != ""
	grouped := len(groupCols) > 0
	kind := paginate.KindFor(t.isView(), sorted, grouped, t.usesRowid())
	pks := t.keyColumns()

	var token *paginate.Token
	if next := special["_next"]; next != "" {
		tok, err := paginate.Decode(next, kind, len(pks))
		if err != nil {
			return nil, err
		}
		token = &tok
	}
	clause, err := paginate.Apply(token, pks, len(set))
	if err != nil {
		return nil, err
	}
	if clause.Where != "" {
		where = append(where, clause.Where)
		mergeParams(params, clause.Params)
	}

	statement := e.tableSQL(t, where, groupCols, sortCol, sortDesc, pageSize, clause.Offset)
	limit := e.timeLimit(req.Args)
	res, ms, err := e.execute(ctx, sandbox.Request{
		Database:  req.Database,
		SQL:       statement,
		Params:    params,
		TimeLimit: limit,
	})
	if err != nil {
		return nil, err
	}

	out := &TableResult{
		Database:        req.Database,
		Table:           req.Table,
		IsView:          t.isView(),
		Columns:         res.Columns,
		Rows:            res.Rows,
		Truncated:       res.Truncated,
		PrimaryKeys:     []string{},
		Query:           Statement{SQL: statement, Params: params},
		QueryMs:         ms,
		FacetResults:    map[string]facets.Result{},
		FacetsTimedOut:  []string{},
		SuggestedFacets: []facets.Suggestion{},
		Attribution:     e.metadata.Credits(),
	}
	if t.isView() {
		def := t.db.ViewDefinitions[t.name]
		out.ViewDefinition = &def
	} else {
		out.TableDefinition = &t.table.Definition
	}
	if t.table != nil {
		out.PrimaryKeys = append(out.PrimaryKeys, t.table.PrimaryKeys...)
		out.TableRowsCount = int64Ptr(t.table.Count)
		if !grouped {
			out.keyColumns = pks
		}
	}
	if sorted {
		if sortDesc {
			out.SortDesc = &sortCol
		} else {
			out.Sort = &sortCol
		}
	}

	keyIdx := columnIndexes(res.Columns, pks)
	next := paginate.NextToken(len(res.Rows), pageSize, kind, clause.Offset, func(row int) []sandbox.Cell {
		keys := make([]sandbox.Cell, len(keyIdx))
		for i, idx := range keyIdx {
			if idx >= 0 {
				keys[i] = res.Rows[row][idx]
			}
		}
		return keys
	})
	if next != nil {
		s := next.Encode()
		u := req.Args.With("_next", s).URL(req.Path)
		out.Next, out.NextURL = &s, &u
	}
	if len(out.Rows) > pageSize {
		out.Rows = out.Rows[:pageSize]
	}

	// grouped pages hold groups, not rows
	switch {
	case grouped:
	case len(filterWhere) == 0 && t.table != nil:
		out.FilteredTableRowsCount = out.TableRowsCount
	case token == nil && !res.Truncated && len(out.Rows) < pageSize:
		out.FilteredTableRowsCount = int64Ptr(int64(len(out.Rows)))
	default:
		out.FilteredTableRowsCount = e.count(ctx, req.Database, t.name, filterWhere, filterParams, limit)
	}

	desc := set.Human(searchDesc)
	if desc != "" {
		out.HumanDescription = "where " + desc
	}
	if sorted {
		by := "sorted by " + sortCol
		if sortDesc {
			by += " descending"
		}
		out.HumanDescription = strings.TrimSpace(out.HumanDescription + " " + by)
	}

	if !grouped {
		fr := facets.Request{
			Database:         req.Database,
			Table:            t.name,
			Where:            filterWhere,
			Params:           filterParams,
			Args:             req.Args,
			Selections:       set,
			Path:             req.Path,
			Size:             e.facetSize(special),
			TimeLimit:        e.cfg.FacetTimeLimit(),
			SuggestTimeLimit: e.cfg.FacetSuggestTimeLimit(),
			Labeler:          e.labeler(req.Database, t),
		}
		if len(facetCols) > 0 {
			out.FacetResults, out.FacetsTimedOut = e.facets.Compute(ctx, fr, facetCols)
		}
		if e.cfg.SuggestFacets && e.cfg.AllowFacet && token == nil {
			filtered := int64(-1)
			if out.FilteredTableRowsCount != nil {
				filtered = *out.FilteredTableRowsCount
			}
			out.SuggestedFacets = e.facets.Suggest(ctx, fr, t.columns, facetCols, filtered)
		}
	}

	if only, ok := labelRequest(req.Args); ok && t.table != nil {
		out.Labels = e.ExpandLabels(ctx, req.Database, t.db, t.table, out.Columns, out.Rows, only)
	}
	return out, nil
}

// pageSize reads _size: a non-negative integer or "max".
func (e *Engine) pageSize(special map[string]string) (int, error) {
	raw, ok := special["_size"]
	if !ok || raw == "" {
		return e.cfg.DefaultPageSize, nil
	}
	if raw == "max" {
		return e.cfg.MaxReturnedRows, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, tools.InvalidQueryErr("_size must be a positive integer")
	}
	if n > e.cfg.MaxReturnedRows {
		return 0, tools.InvalidQueryErr(fmt.Sprintf("_size must be <= %d", e.cfg.MaxReturnedRows))
	}
	return n, nil
}

func (e *Engine) facetSize(special map[string]string) int {
	n, err := strconv.Atoi(special["_facet_size"])
	if err != nil || n <= 0 {
		return e.cfg.DefaultFacetSize
	}
	return min(n, e.cfg.MaxReturnedRows)
}

// sortOrder reads _sort and _sort_desc.
func (e *Engine) sortOrder(t target, special map[string]string) (string, bool, error) {
	asc, desc := special["_sort"], special["_sort_desc"]
	if asc != "" && desc != "" {
		return "", false, tools.InvalidQueryErr("Cannot use _sort and _sort_desc at the same time")
	}
	col := asc
	if desc != "" {
		col = desc
	}
	if col == "" {
		return "", false, nil
	}

	allowed := e.metadata.Table(t.db.Name, t.name).SortableColumns
	ok := false
	if len(allowed) > 0 {
		for _, c := range allowed {
			if c == col {
				ok = true
				break
			}
		}
	} else {
		ok = t.hasColumn(col)
	}
	if !ok {
		return "", false, tools.UnknownColumnErr("Cannot sort table by " + col)
	}
	return col, desc != "", nil
}

// search adds _search and _search_<column> clauses against the table's
// full-text index and returns their description.
func (e *Engine) search(t target, args tools.Args, where *[]string, params map[string]any) (string, error) {
	fts := ""
	if t.table != nil {
		fts = t.table.FTSTable
	}
	var ftsColumns []string
	if ftsTable, ok := t.db.Tables[fts]; ok {
		ftsColumns = ftsTable.Columns
	}

	var descs []string
	n := 0
	for _, a := range args {
		if a.Value == "" || strings.Contains(a.Key, "__") {
			continue
		}
		switch {
		case a.Key == "_search":
			if fts == "" {
				continue
			}
			escaped := tools.EscapeName(fts)
			*where = append(*where, fmt.Sprintf("rowid in (select rowid from %s where %s match :search)", escaped, escaped))
			params["search"] = a.Value
			descs = append(descs, fmt.Sprintf(`search matches "%s"`, a.Value))

		case strings.HasPrefix(a.Key, "_search_"):
			col := strings.TrimPrefix(a.Key, "_search_")
			if fts == "" || !contains(ftsColumns, col) {
				return "", tools.UnknownColumnErr("Cannot search by that column")
			}
			name := fmt.Sprintf("search_%d", n)
			n++
			*where = append(*where, fmt.Sprintf("rowid in (select rowid from %s where %s match :%s)",
				tools.EscapeName(fts), tools.EscapeName(col), name))
			params[name] = a.Value
			descs = append(descs, fmt.Sprintf(`search column "%s" matches "%s"`, col, a.Value))
		}
	}
	return strings.Join(descs, " and "), nil
}

// tableSQL builds the page query.
func (e *Engine) tableSQL(t target, where, groupCols []string, sortCol string, sortDesc bool, pageSize, offset int) string {
	from := tools.EscapeName(t.name)
	limit := pageSize + 1
	if pageSize == 0 {
		limit = 0
	}
	tail := fmt.Sprintf(" limit %d", limit)
	if offset > 0 {
		tail += fmt.Sprintf(" offset %d", offset)
	}

	if len(groupCols) > 0 {
		cols := make([]string, len(groupCols))
		for i, c := range groupCols {
			cols[i] = tools.EscapeName(c)
		}
		list := strings.Join(cols, ", ")
		return fmt.Sprintf(`select %s, count(*) as "count" from %s%s group by %s order by "count" desc%s`,
			list, from, whereSQL(where), list, tail)
	}

	selectList := "*"
	if t.usesRowid() {
		selectList = "rowid, *"
	}

	var order []string
	if sortCol != "" {
		o := tools.EscapeName(sortCol)
		if sortDesc {
			o += " desc"
		}
		order = append(order, o)
	}
	for _, k := range t.keyColumns() {
		if k != sortCol {
			order = append(order, tools.EscapeName(k))
		}
	}
	orderBy := ""
	if len(order) > 0 {
		orderBy = " order by " + strings.Join(order, ", ")
	}
	return fmt.Sprintf("select %s from %s%s%s%s", selectList, from, whereSQL(where), orderBy, tail)
}

// count runs a bounded count(*). A timeout or failure yields nil.
func (e *Engine) count(ctx context.Context, dbName, table string, where []string, params map[string]any, limit time.Duration) *int64 {
	res, err := e.exec.Execute(ctx, sandbox.Request{
		Database:  dbName,
		SQL:       fmt.Sprintf("select count(*) from %s%s", tools.EscapeName(table), whereSQL(where)),
		Params:    params,
		TimeLimit: limit,
	})
	if err != nil {
		if !errors.Is(err, tools.ErrQueryInterrupted) {
			e.logger.Warn("count failed", "database", dbName, "table", table, "error", err)
		}
		return nil
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return nil
	}
	return int64Ptr(res.Rows[0][0].Int)
}

func columnIndexes(columns, names []string) []int {
	idx := make([]int, len(names))
	for i, name := range names {
		idx[i] = -1
		for j, c := range columns {
			if c == name {
				idx[i] = j
				break
			}
		}
	}
	return idx
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
