package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joe-ervin05/litebrowse/facets"
	"github.com/joe-ervin05/litebrowse/inspect"
	"github.com/joe-ervin05/litebrowse/sandbox"
	"github.com/joe-ervin05/litebrowse/tools"
)

// labelRequest reads _labels=on (every foreign key) or _label=col.
func labelRequest(args tools.Args) ([]string, bool) {
	if v, ok := args.Get("_labels"); ok {
		switch strings.ToLower(v) {
		case "on", "1", "true":
			return nil, true
		}
	}
	only := args.GetAll("_label")
	return only, len(only) > 0
}

// ExpandLabels looks up the label of every foreign key value in rows. When
// only is non-empty just those columns are expanded. The result maps column
// to value (as Cell.String()) to label. Lookups that fail or time out are
// skipped.
func (e *Engine) ExpandLabels(ctx context.Context, dbName string, db *inspect.Database, table *inspect.Table, columns []string, rows [][]sandbox.Cell, only []string) map[string]map[string]sandbox.Cell {
	out := make(map[string]map[string]sandbox.Cell)
	for _, fk := range table.ForeignKeys.Outgoing {
		if len(only) > 0 && !contains(only, fk.Column) {
			continue
		}
		idx := columnIndexes(columns, []string{fk.Column})[0]
		if idx < 0 {
			continue
		}
		values := make([]sandbox.Cell, 0, len(rows))
		for _, row := range rows {
			values = append(values, row[idx])
		}
		labels, err := e.lookupLabels(ctx, dbName, db, fk, values)
		if err != nil {
			if !errors.Is(err, tools.ErrQueryInterrupted) {
				e.logger.Warn("label lookup failed", "database", dbName, "column", fk.Column, "error", err)
			}
			continue
		}
		if len(labels) > 0 {
			out[fk.Column] = labels
		}
	}
	return out
}

// labeler returns a facet Labeler resolving foreign key columns of t.
func (e *Engine) labeler(dbName string, t target) facets.Labeler {
	if t.table == nil {
		return nil
	}
	return func(ctx context.Context, column string, values []sandbox.Cell) (map[string]sandbox.Cell, error) {
		fk, ok := t.table.OutgoingFor(column)
		if !ok {
			return nil, nil
		}
		return e.lookupLabels(ctx, dbName, t.db, fk, values)
	}
}

// lookupLabels maps distinct non-null values to the label column of the
// referenced table. It returns nil when that table has no label column.
func (e *Engine) lookupLabels(ctx context.Context, dbName string, db *inspect.Database, fk inspect.ForeignKey, values []sandbox.Cell) (map[string]sandbox.Cell, error) {
	other, ok := db.Tables[fk.OtherTable]
	if !ok || other.LabelColumn == "" {
		return nil, nil
	}

	seen := make(map[string]bool)
	params := make(map[string]any)
	var placeholders []string
	for _, v := range values {
		if v.IsNull() || seen[v.String()] {
			continue
		}
		seen[v.String()] = true
		name := fmt.Sprintf("l%d", len(placeholders))
		placeholders = append(placeholders, ":"+name)
		params[name] = v.Value()
	}
	if len(placeholders) == 0 {
		return nil, nil
	}

	statement := fmt.Sprintf("select %s, %s from %s where %s in (%s)",
		tools.EscapeName(fk.OtherColumn),
		tools.EscapeName(other.LabelColumn),
		tools.EscapeName(fk.OtherTable),
		tools.EscapeName(fk.OtherColumn),
		strings.Join(placeholders, ", "),
	)
	res, err := e.exec.Execute(ctx, sandbox.Request{
		Database:  dbName,
		SQL:       statement,
		Params:    params,
		TimeLimit: e.cfg.SQLTimeLimit(),
	})
	if err != nil {
		return nil, err
	}

	labels := make(map[string]sandbox.Cell, len(res.Rows))
	for _, row := range res.Rows {
		labels[row[0].String()] = row[1]
	}
	return labels, nil
}
