package query

import (
	"context"
	"testing"
	"time"

	"github.com/joe-ervin05/litebrowse/config"
	"github.com/joe-ervin05/litebrowse/inspect"
	"github.com/joe-ervin05/litebrowse/internal/testutil"
	"github.com/joe-ervin05/litebrowse/sandbox"
	"github.com/joe-ervin05/litebrowse/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineOption func(*config.Config, *config.Metadata)

func newTestEngine(t *testing.T, opts ...engineOption) *Engine {
	t.Helper()
	return newEngineFor(t, testutil.FixtureDB(t), opts...)
}

// newEngineFor serves the single database file at path.
func newEngineFor(t *testing.T, path string, opts ...engineOption) *Engine {
	t.Helper()

	cfg := config.Default()
	cfg.DefaultPageSize = 50
	cfg.MaxReturnedRows = 100
	md := &config.Metadata{}
	for _, opt := range opts {
		opt(cfg, md)
	}

	in, err := inspect.New([]string{path}, inspect.Options{
		Metadata: md,
		Logger:   testutil.NewTestLogger(),
	})
	require.NoError(t, err)

	pool := sandbox.New(in, sandbox.Options{
		Workers:   3,
		TimeLimit: cfg.SQLTimeLimit(),
		Logger:    testutil.NewTestLogger(),
	})
	t.Cleanup(func() { pool.Close() })

	return New(in, pool, Options{Config: cfg, Metadata: md, Logger: testutil.NewTestLogger()})
}

// countingExecutor records calls without touching a database.
type countingExecutor struct {
	calls int
}

func (c *countingExecutor) Execute(ctx context.Context, req sandbox.Request) (*sandbox.Result, error) {
	c.calls++
	return &sandbox.Result{Columns: []string{}, Rows: [][]sandbox.Cell{}}, nil
}

func TestTimeLimit(t *testing.T) {
	e := New(nil, &countingExecutor{}, Options{Logger: testutil.NewTestLogger()})
	limit := e.cfg.SQLTimeLimit()

	tests := []struct {
		name string
		args string
		want time.Duration
	}{
		{"default", "", limit},
		{"lowered", "_timelimit=10", 10 * time.Millisecond},
		{"legacy name", "_sql_time_limit_ms=20", 20 * time.Millisecond},
		{"cannot raise", "_timelimit=999999", limit},
		{"invalid ignored", "_timelimit=abc", limit},
		{"lowest wins", "_timelimit=30&_sql_time_limit_ms=15", 15 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.timeLimit(tools.ParseArgs(tt.args)))
		})
	}
}

func TestSplitArgs(t *testing.T) {
	special, pairs := splitArgs(tools.ParseArgs("_size=10&state=CA&_size=20&_col__exact=x&city_id__gt=1"))

	assert.Equal(t, map[string]string{"_size": "10"}, special)
	assert.Equal(t, tools.Args{
		{Key: "state", Value: "CA"},
		{Key: "_col__exact", Value: "x"},
		{Key: "city_id__gt", Value: "1"},
	}, pairs)
}

func TestRowPath(t *testing.T) {
	columns := []string{"pk1", "content", "pk2"}
	row := []sandbox.Cell{sandbox.TextCell("a,b"), sandbox.TextCell("x"), sandbox.IntCell(3)}

	path := RowPath(columns, row, []string{"pk1", "pk2"})
	assert.Equal(t, "a%2Cb,3", path)
	assert.Equal(t, []string{"a,b", "3"}, parseRowPath(path))
}
