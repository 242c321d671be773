package query

import (
	"context"
	"errors"
	"testing"

	"github.com/joe-ervin05/litebrowse/inspect"
	"github.com/joe-ervin05/litebrowse/sandbox"
	"github.com/joe-ervin05/litebrowse/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRow(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name    string
		table   string
		pkPath  string
		column  string
		want    string
		pks     []string
		wantErr error
	}{
		{"single key", "simple_primary_key", "1", "content", "hello", []string{"id"}, nil},
		{"empty value", "simple_primary_key", "3", "content", "", []string{"id"}, nil},
		{"compound key", "compound_primary_key", "a,b", "content", "c", []string{"pk1", "pk2"}, nil},
		{"three part key", "compound_three_primary_keys", "b,c,d", "content", "b-c-d", []string{"pk1", "pk2", "pk3"}, nil},
		{"rowid", "no_primary_key", "1", "content", "0", []string{"rowid"}, nil},
		{"integer key", "facetable", "15", "neighborhood", "Arcadia Planitia", []string{"pk"}, nil},
		{"slashes in table name", "table/with/slashes.csv", "3", "content", "hey", []string{"pk"}, nil},
		{"missing row", "simple_primary_key", "999", "", "", nil, tools.ErrRowNotFound},
		{"wrong key count", "compound_primary_key", "a", "", "", nil, tools.ErrRowNotFound},
		{"view", "simple_view", "1", "", "", nil, tools.ErrTableNotFound},
		{"unknown table", "nope", "1", "", "", nil, tools.ErrTableNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Row(context.Background(), tableRequest(tt.table, ""), tt.pkPath)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Len(t, res.Rows, 1)
			idx := columnIndexes(res.Columns, []string{tt.column})[0]
			require.GreaterOrEqual(t, idx, 0)
			assert.Equal(t, tt.want, res.Rows[0][idx].String())
			assert.Equal(t, tt.pks, res.PrimaryKeys)
			assert.Equal(t, tt.pks, res.RowSet().PrimaryKeys)
		})
	}
}

func TestRow_NotFoundMessage(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Row(context.Background(), tableRequest("compound_primary_key", ""), "a,z")
	require.Error(t, err)
	assert.Equal(t, "Record not found: [a, z]", err.Error())
}

func TestRow_ForeignKeyTables(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Row(context.Background(), tableRequest("facet_cities", "_extras=foreign_key_tables"), "1")
	require.NoError(t, err)
	assert.Equal(t, []ForeignKeyTable{
		{OtherTable: "facetable", Column: "id", OtherColumn: "city_id", Count: 6},
	}, res.ForeignKeyTables)

	res, err = e.Row(context.Background(), tableRequest("simple_primary_key", "_extras=foreign_key_tables"), "2")
	require.NoError(t, err)
	assert.Equal(t, []ForeignKeyTable{
		{OtherTable: "foreign_key_references", Column: "id", OtherColumn: "foreign_key_with_label", Count: 0},
	}, res.ForeignKeyTables)

	res, err = e.Row(context.Background(), tableRequest("compound_primary_key", "_extras=foreign_key_tables"), "a,b")
	require.NoError(t, err)
	assert.Empty(t, res.ForeignKeyTables)

	res, err = e.Row(context.Background(), tableRequest("facet_cities", ""), "1")
	require.NoError(t, err)
	assert.Nil(t, res.ForeignKeyTables)
}

func TestRow_Labels(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Row(context.Background(), tableRequest("facetable", "_labels=on"), "11")
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]sandbox.Cell{
		"city_id": {"3": sandbox.TextCell("Detroit")},
	}, res.Labels)
}

func TestRow_UntypedKeyColumns(t *testing.T) {
	e := newEngineFor(t, writeUntypedDB(t))
	req := Request{Database: "untyped", Table: "t", Args: tools.ParseArgs("")}

	tests := []struct {
		pkPath string
		want   string
	}{
		{"4,9", "row 49"},
		{"12,0", "row 120"},
		{"x,2.5", "mixed"},
	}
	for _, tt := range tests {
		t.Run(tt.pkPath, func(t *testing.T) {
			res, err := e.Row(context.Background(), req, tt.pkPath)
			require.NoError(t, err)
			require.Len(t, res.Rows, 1)
			idx := columnIndexes(res.Columns, []string{"content"})[0]
			assert.Equal(t, tt.want, res.Rows[0][idx].String())
		})
	}

	_, err := e.Row(context.Background(), req, "4,10")
	assert.True(t, errors.Is(err, tools.ErrRowNotFound))
}

func TestBindKey(t *testing.T) {
	table := &inspect.Table{
		Name:        "t",
		Columns:     []string{"untyped", "code", "n", "price"},
		ColumnTypes: map[string]string{"untyped": "", "code": "varchar(10)", "n": "INTEGER", "price": "REAL"},
		PrimaryKeys: []string{"untyped"},
	}
	tgt := target{name: "t", table: table, columns: table.Columns}

	tests := []struct {
		col, value string
		want       any
	}{
		{"untyped", "4", int64(4)},
		{"untyped", "2.5", 2.5},
		{"untyped", "abc", "abc"},
		{"untyped", "nan", "nan"},
		{"code", "4", "4"},
		{"n", "4", int64(4)},
		{"price", "1", int64(1)},
		{"price", "0.5", 0.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, bindKey(tgt, tt.col, tt.value), "%s=%s", tt.col, tt.value)
	}
}
