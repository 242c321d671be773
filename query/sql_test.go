package query

import (
	"context"
	"errors"
	"testing"

	"github.com/joe-ervin05/litebrowse/config"
	"github.com/joe-ervin05/litebrowse/inspect"
	"github.com/joe-ervin05/litebrowse/internal/testutil"
	"github.com/joe-ervin05/litebrowse/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSQL(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{"select 1", ""},
		{"  SELECT * from t", ""},
		{"explain select 1", ""},
		{"explain query plan select 1", ""},
		{"with x as (select 1) select * from x", ""},
		{"selectx from t", "Statement must be a SELECT"},
		{"delete from t", "Statement must be a SELECT"},
		{"update t set a = 1", "Statement must be a SELECT"},
		{"pragma table_info(t)", "Statement must be a SELECT"},
		{"select * from pragma_table_info('t')", "Statement may not contain PRAGMA"},
		{"", "Statement must be a SELECT"},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			err := ValidateSQL(tt.sql)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tools.ErrInvalidQuery))
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestNamedParams(t *testing.T) {
	tests := []struct {
		sql  string
		want []string
	}{
		{"select 1", nil},
		{"select * from t where a = :a and b = :b_2", []string{"a", "b_2"}},
		{"select :x, :x, :y", []string{"x", "y"}},
		{"select '12:30'", nil},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.want, NamedParams(tt.sql))
		})
	}
}

func TestSQL(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	res, err := e.SQL(ctx, "fixtures", "select content from simple_primary_key where id = :id", tools.ParseArgs("id=2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"content"}, res.Columns)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "world", res.Rows[0][0].String())
	assert.Equal(t, map[string]any{"id": "2"}, res.Query.Params)
	assert.False(t, res.Truncated)

	res, err = e.SQL(ctx, "fixtures", "select content from simple_primary_key where id = :id", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Equal(t, map[string]any{"id": ""}, res.Query.Params)

	res, err = e.SQL(ctx, "fixtures", "select * from compound_three_primary_keys", nil)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 100)
	assert.True(t, res.Truncated)

	_, err = e.SQL(ctx, "fixtures", "select * from nope", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tools.ErrQueryError))
	assert.Equal(t, "no such table: nope", err.Error())

	_, err = e.SQL(ctx, "nope", "select 1", nil)
	assert.True(t, errors.Is(err, tools.ErrDatabaseNotFound))
}

func TestSQL_Interrupted(t *testing.T) {
	e := newTestEngine(t)

	statement := "with recursive r(i) as (select 1 union all select i + 1 from r) select count(*) from r"
	_, err := e.SQL(context.Background(), "fixtures", statement, tools.ParseArgs("_timelimit=20"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, tools.ErrQueryInterrupted))
	assert.Contains(t, err.Error(), statement)

	// the worker survives the interrupt
	res, err := e.SQL(context.Background(), "fixtures", "select 1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Rows[0][0].Int)
}

func TestSQL_RejectedBeforeExecution(t *testing.T) {
	in, err := inspect.New([]string{testutil.FixtureDB(t)}, inspect.Options{Logger: testutil.NewTestLogger()})
	require.NoError(t, err)
	exec := &countingExecutor{}
	e := New(in, exec, Options{Logger: testutil.NewTestLogger()})

	for _, statement := range []string{
		"select * from pragma_database_list()",
		"pragma schema_version",
		"drop table simple_primary_key",
	} {
		_, err := e.SQL(context.Background(), "fixtures", statement, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, tools.ErrInvalidQuery))
	}
	assert.Zero(t, exec.calls)

	_, err = e.SQL(context.Background(), "fixtures", "select 1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, exec.calls)
}

func TestSQL_Disabled(t *testing.T) {
	e := newTestEngine(t, func(cfg *config.Config, md *config.Metadata) {
		cfg.AllowSQL = false
		md.Databases = map[string]config.DatabaseMetadata{
			"fixtures": {Queries: map[string]config.CannedQuery{
				"neighborhoods": {SQL: "select neighborhood from facetable where state = :state order by pk"},
			}},
		}
	})

	_, err := e.SQL(context.Background(), "fixtures", "select 1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tools.ErrInvalidQuery))
	assert.Equal(t, "sql= is not allowed", err.Error())

	res, err := e.Canned(context.Background(), "fixtures", "neighborhoods", tools.ParseArgs("state=MI"))
	require.NoError(t, err)
	assert.Len(t, res.Rows, 4)
}

func TestCanned(t *testing.T) {
	e := newTestEngine(t, func(_ *config.Config, md *config.Metadata) {
		md.Databases = map[string]config.DatabaseMetadata{
			"fixtures": {Queries: map[string]config.CannedQuery{
				"neighborhoods": {
					SQL:   "select neighborhood from facetable where state = :state order by pk",
					Title: "Neighborhoods by state",
				},
			}},
		}
	})

	res, err := e.Table(context.Background(), tableRequest("neighborhoods", "state=MI"))
	require.NoError(t, err)
	q, ok := res.(*QueryResult)
	require.True(t, ok)
	assert.Equal(t, "neighborhoods", q.CannedQuery)
	assert.Equal(t, "Neighborhoods by state", q.Title)
	assert.Equal(t, "fixtures", q.Database)
	var got []string
	for _, row := range q.Rows {
		got = append(got, row[0].String())
	}
	assert.Equal(t, []string{"Downtown", "Greektown", "Corktown", "Mexicantown"}, got)

	_, err = e.Canned(context.Background(), "fixtures", "nope", nil)
	assert.True(t, errors.Is(err, tools.ErrTableNotFound))
}
