package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/joe-ervin05/litebrowse/inspect"
	"github.com/joe-ervin05/litebrowse/sandbox"
	"github.com/joe-ervin05/litebrowse/tools"
)

// Row looks up a single record. pkPath holds the primary key values as
// rendered by RowPath, or the rowid for tables without a declared key.
func (e *Engine) Row(ctx context.Context, req Request, pkPath string) (*RowResult, error) {
	t, err := e.resolve(ctx, req.Database, req.Table)
	if err != nil {
		return nil, err
	}
	if t.isView() {
		return nil, tools.TableNotFoundErr(req.Table)
	}

	values := parseRowPath(pkPath)
	pks := t.keyColumns()
	if len(values) != len(pks) {
		return nil, tools.RowNotFoundErr(values)
	}

	selectList := "*"
	if t.usesRowid() {
		selectList = "rowid, *"
	}
	where := make([]string, len(pks))
	params := make(map[string]any, len(pks))
	for i, pk := range pks {
		name := fmt.Sprintf("p%d", i)
		where[i] = fmt.Sprintf("%s = :%s", tools.EscapeName(pk), name)
		params[name] = bindKey(t, pk, values[i])
	}
	statement := fmt.Sprintf("select %s from %s%s", selectList, tools.EscapeName(t.name), whereSQL(where))

	res, ms, err := e.execute(ctx, sandbox.Request{
		Database:  req.Database,
		SQL:       statement,
		Params:    params,
		TimeLimit: e.timeLimit(req.Args),
	})
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, tools.RowNotFoundErr(values)
	}

	out := &RowResult{
		Database:         req.Database,
		Table:            req.Table,
		Columns:          res.Columns,
		Rows:             res.Rows,
		PrimaryKeys:      pks,
		PrimaryKeyValues: values,
		Query:            Statement{SQL: statement, Params: params},
		QueryMs:          ms,
		Attribution:      e.metadata.Credits(),
	}
	for _, extra := range req.Args.GetAll("_extras") {
		for _, name := range strings.Split(extra, ",") {
			if name == "foreign_key_tables" {
				out.ForeignKeyTables = e.foreignKeyTables(ctx, req.Database, t, values)
			}
		}
	}
	if only, ok := labelRequest(req.Args); ok {
		out.Labels = e.ExpandLabels(ctx, req.Database, t.db, t.table, out.Columns, out.Rows, only)
	}
	return out, nil
}

// bindKey converts a key from a row path to the value SQLite would store
// for it in col, following the column's type affinity. The text "4" does not
// equal an integer 4 stored in a column declared without a type.
func bindKey(t target, col, value string) any {
	aff := t.table.Affinity(col)
	if aff == inspect.AffinityText {
		return value
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if strings.ContainsAny(value, "nNiIxX") {
		return value
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// foreignKeyTables counts, for every incoming foreign key, the rows of the
// other table referencing the record. Compound keys and failed counts yield
// an empty list.
func (e *Engine) foreignKeyTables(ctx context.Context, dbName string, t target, values []string) []ForeignKeyTable {
	out := []ForeignKeyTable{}
	incoming := t.table.ForeignKeys.Incoming
	if len(values) != 1 || len(incoming) == 0 {
		return out
	}

	selects := make([]string, len(incoming))
	for i, fk := range incoming {
		selects[i] = fmt.Sprintf("(select count(*) from %s where %s = :id) as c%d",
			tools.EscapeName(fk.OtherTable), tools.EscapeName(fk.OtherColumn), i)
	}
	res, err := e.exec.Execute(ctx, sandbox.Request{
		Database:  dbName,
		SQL:       "select " + strings.Join(selects, ", "),
		Params:    map[string]any{"id": bindKey(t, t.keyColumns()[0], values[0])},
		TimeLimit: e.cfg.SQLTimeLimit(),
	})
	if err != nil {
		if !errors.Is(err, tools.ErrQueryInterrupted) {
			e.logger.Warn("foreign key counts failed", "database", dbName, "table", t.name, "error", err)
		}
		return out
	}
	if len(res.Rows) == 0 {
		return out
	}
	for i, fk := range incoming {
		out = append(out, ForeignKeyTable{
			OtherTable:  fk.OtherTable,
			Column:      fk.Column,
			OtherColumn: fk.OtherColumn,
			Count:       res.Rows[0][i].Int,
		})
	}
	return out
}
