package inspect

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/joe-ervin05/litebrowse/tools"
)

// Querier is the subset of *sql.DB and *sql.Conn used for introspection.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// schemaObject is a table or view and the SQL that created it.
type schemaObject struct {
	name, typ, sql string
}

// schemaObjects lists tables and views from sqlite_master, by name.
func schemaObjects(ctx context.Context, db Querier) ([]schemaObject, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, type, sql FROM sqlite_master
		WHERE type IN ('table', 'view')
		ORDER BY name ASC;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objects []schemaObject
	for rows.Next() {
		var o schemaObject
		var def sql.NullString
		if err := rows.Scan(&o.name, &o.typ, &def); err != nil {
			return nil, err
		}
		o.sql = def.String
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

// schemaColumns returns a table's columns in declared order with their
// declared types, and its primary key columns in key order.
func schemaColumns(ctx context.Context, db Querier, table string) (cols []string, types map[string]string, pks []string, err error) {
	rows, err := db.QueryContext(ctx, `SELECT name, type, pk FROM pragma_table_info(?) ORDER BY cid ASC;`, table)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rows.Close()

	type pkCol struct {
		name string
		seq  int
	}
	var keyed []pkCol
	types = make(map[string]string)
	for rows.Next() {
		var name, typ string
		var pk int
		if err := rows.Scan(&name, &typ, &pk); err != nil {
			return nil, nil, nil, err
		}
		cols = append(cols, name)
		types[name] = typ
		if pk > 0 {
			keyed = append(keyed, pkCol{name, pk})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, err
	}

	sort.Slice(keyed, func(i, j int) bool { return keyed[i].seq < keyed[j].seq })
	for _, k := range keyed {
		pks = append(pks, k.name)
	}
	return cols, types, pks, nil
}

// schemaCount counts the rows of a table.
func schemaCount(ctx context.Context, db Querier, table string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx, "SELECT count(*) FROM "+tools.EscapeName(table)).Scan(&n)
	return n, err
}

// fkRow is one row of pragma_foreign_key_list joined with its owning table.
type fkRow struct {
	table, other, from, to string
}

// schemaFks reads every declared foreign key in the database.
func schemaFks(ctx context.Context, db Querier) ([]fkRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT m.name, p."table", p."from", p."to"
		FROM sqlite_master m
		JOIN pragma_foreign_key_list(m.name) p
		WHERE m.type = 'table'
		ORDER BY m.name ASC, p.id ASC, p.seq ASC;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []fkRow
	for rows.Next() {
		var table, other, from string
		var to sql.NullString
		if err := rows.Scan(&table, &other, &from, &to); err != nil {
			return nil, err
		}
		fks = append(fks, fkRow{table, other, from, to.String})
	}
	return fks, rows.Err()
}

// ftsVirtualTables lists full-text virtual tables. Their shadow tables share
// the name as a prefix.
func ftsVirtualTables(ctx context.Context, db Querier) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE rootpage = 0 AND sql LIKE '%VIRTUAL TABLE%USING FTS%'
		ORDER BY name ASC;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// detectFTS returns the full-text table indexing table: an external content
// table declaring content="table", or a virtual table whose tbl_name is table.
func detectFTS(ctx context.Context, db Querier, table string) (string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE rootpage = 0
		AND (
			sql LIKE '%VIRTUAL TABLE%USING FTS%content=' || quote(?) || '%'
			OR sql LIKE '%VIRTUAL TABLE%USING FTS%content="' || ? || '"%'
			OR (tbl_name = ? AND sql LIKE '%VIRTUAL TABLE%USING FTS%')
		)
		ORDER BY name ASC;
	`, table, table, table)
	if err != nil {
		return "", fmt.Errorf("failed to detect fts table for %s: %w", table, err)
	}
	defer rows.Close()

	if rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", err
		}
		return name, nil
	}
	return "", rows.Err()
}
