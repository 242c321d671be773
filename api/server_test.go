package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/joe-ervin05/litebrowse/config"
	"github.com/joe-ervin05/litebrowse/inspect"
	"github.com/joe-ervin05/litebrowse/internal/testutil"
	"github.com/joe-ervin05/litebrowse/query"
	"github.com/joe-ervin05/litebrowse/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mutate ...func(*config.Config)) http.Handler {
	t.Helper()

	cfg := config.Default()
	cfg.DefaultPageSize = 50
	cfg.MaxReturnedRows = 100
	cfg.HashURLs = false
	for _, m := range mutate {
		m(cfg)
	}
	md := &config.Metadata{
		Title: "Fixtures",
		Attribution: config.Attribution{
			Source:     "Fixture generator",
			SourceURL:  "https://example.com/fixtures",
			License:    "CC0",
			LicenseURL: "https://example.com/cc0",
		},
		Databases: map[string]config.DatabaseMetadata{
			"fixtures": {Queries: map[string]config.CannedQuery{
				"cities": {SQL: "select name from facet_cities order by id", Title: "Cities"},
			}},
		},
	}
	logger := testutil.NewTestLogger()

	in, err := inspect.New([]string{testutil.FixtureDB(t)}, inspect.Options{Metadata: md, Logger: logger})
	require.NoError(t, err)
	pool := sandbox.New(in, sandbox.Options{Workers: 2, TimeLimit: cfg.SQLTimeLimit(), Logger: logger})
	t.Cleanup(func() { pool.Close() })
	in.OnRefresh(pool.Reset)

	engine := query.New(in, pool, query.Options{Config: cfg, Metadata: md, Logger: logger})
	return New(Options{
		Config:    cfg,
		Metadata:  md,
		Inspector: in,
		Engine:    engine,
		Logger:    logger,
		Version:   "test",
	}).Handler()
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestIndex(t *testing.T) {
	h := newTestServer(t)

	for _, target := range []string{"/", "/.json"} {
		rec := do(t, h, http.MethodGet, target)
		require.Equal(t, http.StatusOK, rec.Code)
		var index []query.DatabaseSummary
		decode(t, rec, &index)
		require.Len(t, index, 1)
		assert.Equal(t, "fixtures", index[0].Name)
		assert.Equal(t, 2, index[0].ViewsCount)
	}
}

func TestDatabase(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/fixtures.json")
	require.Equal(t, http.StatusOK, rec.Code)
	var info query.DatabaseInfo
	decode(t, rec, &info)
	assert.Equal(t, "fixtures", info.Database)
	assert.Equal(t, []string{"paginated_view", "simple_view"}, info.Views)
	require.Len(t, info.Queries, 1)
	assert.Equal(t, "cities", info.Queries[0].Name)

	rec = do(t, h, http.MethodGet, "/nope.json")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"DATABASE_NOT_FOUND"`)
}

func TestTable(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/fixtures/simple_primary_key.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	var page struct {
		Table   string          `json:"table"`
		Columns []string        `json:"columns"`
		Rows    [][]any         `json:"rows"`
		Next    *string         `json:"next"`
		Query   query.Statement `json:"query"`
	}
	decode(t, rec, &page)
	assert.Equal(t, "simple_primary_key", page.Table)
	assert.Equal(t, []string{"id", "content"}, page.Columns)
	assert.Equal(t, [][]any{{"1", "hello"}, {"2", "world"}, {"3", ""}}, page.Rows)
	assert.Nil(t, page.Next)

	rec = do(t, h, http.MethodGet, "/fixtures/table%2Fwith%2Fslashes.csv.json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"hey"`)

	rec = do(t, h, http.MethodGet, "/fixtures/nope.json")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTable_NextURLIsAbsolute(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/fixtures/compound_three_primary_keys.json?_size=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Next    string `json:"next"`
		NextURL string `json:"next_url"`
	}
	decode(t, rec, &page)
	assert.Equal(t, "t:a,t:a,t:b", page.Next)
	assert.True(t, strings.HasPrefix(page.NextURL, "http://example.com/fixtures/compound_three_primary_keys.json?"), page.NextURL)
	assert.Contains(t, page.NextURL, "_size=2")
}

func TestTable_Errors(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		target string
		status int
		code   string
		msg    string
	}{
		{"/fixtures/sortable.json?_sort=sortable&_sort_desc=sortable", 400, "INVALID_QUERY", "Cannot use _sort and _sort_desc at the same time"},
		{"/fixtures/sortable.json?_sort=nope", 400, "UNKNOWN_COLUMN", "Cannot sort table by nope"},
		{"/fixtures/simple_primary_key.json?_shape=bad", 400, "INVALID_QUERY", "Invalid _shape: bad"},
		{"/fixtures/simple_view.json?_shape=object", 400, "INVALID_QUERY", "_shape=object is only available on tables"},
		{"/fixtures/simple_primary_key/999.json", 404, "ROW_NOT_FOUND", "Record not found: [999]"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			var apiErr struct {
				OK     bool   `json:"ok"`
				Code   string `json:"code"`
				Error  string `json:"error"`
				Status int    `json:"status"`
			}
			decode(t, rec, &apiErr)
			assert.False(t, apiErr.OK)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.msg, apiErr.Error)
			assert.Equal(t, tt.status, apiErr.Status)
		})
	}
}

func TestShapes(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/fixtures/simple_primary_key.json?_shape=objects")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `{"id":"1","content":"hello"}`)
	assert.Contains(t, rec.Body.String(), `"table":"simple_primary_key"`)

	rec = do(t, h, http.MethodGet, "/fixtures/simple_primary_key.json?_shape=array")
	require.Equal(t, http.StatusOK, rec.Code)
	var array []map[string]any
	decode(t, rec, &array)
	assert.Equal(t, []map[string]any{
		{"id": "1", "content": "hello"},
		{"id": "2", "content": "world"},
		{"id": "3", "content": ""},
	}, array)

	rec = do(t, h, http.MethodGet, "/fixtures/compound_primary_key.json?_shape=object")
	require.Equal(t, http.StatusOK, rec.Code)
	var object map[string]map[string]any
	decode(t, rec, &object)
	assert.Equal(t, map[string]map[string]any{
		"a,b": {"pk1": "a", "pk2": "b", "content": "c"},
	}, object)

	rec = do(t, h, http.MethodGet, "/fixtures/binary_data.json?_shape=array")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"$base64":true`)
}

func TestJSONColumns(t *testing.T) {
	h := newTestServer(t)

	target := "/fixtures.json?" + url.Values{
		"sql":    {`select '{"a":[1,2]}' as data, 'nope' as other`},
		"_json":  {"data", "other"},
		"_shape": {"array"},
	}.Encode()
	rec := do(t, h, http.MethodGet, target)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rows []map[string]any
	decode(t, rec, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{"a": []any{float64(1), float64(2)}}, rows[0]["data"])
	assert.Equal(t, "nope", rows[0]["other"])
}

func TestCacheControl(t *testing.T) {
	h := newTestServer(t)
	hashed := "/fixtures-" + shortHash(t, h)

	tests := []struct {
		prefix string
		query  string
		want   string
	}{
		{hashed, "", "max-age=31536000"},
		{hashed, "?_ttl=60", "max-age=60"},
		{hashed, "?_ttl=0", "no-cache"},
		{hashed, "?_ttl=abc", "max-age=31536000"},
		{"/fixtures", "", "no-cache"},
		{"/fixtures", "?_ttl=abc", "no-cache"},
		{"/fixtures", "?_ttl=60", "max-age=60"},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodGet, tt.prefix+"/simple_primary_key.json"+tt.query)
		require.Equal(t, http.StatusOK, rec.Code, tt.prefix)
		assert.Equal(t, tt.want, rec.Header().Get("Cache-Control"), tt.prefix+tt.query)
	}
}

// shortHash reads the fixture database's short hash from /-/inspect.json.
func shortHash(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodGet, "/-/inspect.json")
	require.Equal(t, http.StatusOK, rec.Code)
	var dbs map[string]inspect.Database
	decode(t, rec, &dbs)
	db := dbs["fixtures"]
	return db.ShortHash()
}

func TestHashedURLs_Redirects(t *testing.T) {
	h := newTestServer(t, func(cfg *config.Config) { cfg.HashURLs = true })
	short := shortHash(t, h)

	tests := []struct {
		target string
		want   string
	}{
		{"/fixtures/simple_primary_key.json?_size=1", "/fixtures-" + short + "/simple_primary_key.json?_size=1"},
		{"/fixtures.json", "/fixtures-" + short + ".json"},
		{"/fixtures-0000000/facet_cities/1.json", "/fixtures-" + short + "/facet_cities/1.json"},
		{"/fixtures.db", "/fixtures-" + short + ".db"},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodGet, tt.target)
		assert.Equal(t, http.StatusFound, rec.Code, tt.target)
		assert.Equal(t, tt.want, rec.Header().Get("Location"), tt.target)
	}

	rec := do(t, h, http.MethodGet, "/fixtures-"+short+"/simple_primary_key.json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "max-age=31536000", rec.Header().Get("Cache-Control"))

	rec = do(t, h, http.MethodGet, "/fixtures-"+short+".db")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="fixtures.db"`, rec.Header().Get("Content-Disposition"))
}

func TestHashedURLs_LinksKeepTheHash(t *testing.T) {
	h := newTestServer(t, func(cfg *config.Config) { cfg.HashURLs = true })
	prefix := "/fixtures-" + shortHash(t, h)

	rec := do(t, h, http.MethodGet, prefix+"/facetable.json?_size=2&_facet=state")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		NextURL      string `json:"next_url"`
		FacetResults map[string]struct {
			Results []struct {
				ToggleURL string `json:"toggle_url"`
			} `json:"results"`
		} `json:"facet_results"`
	}
	decode(t, rec, &page)
	assert.True(t, strings.HasPrefix(page.NextURL, "http://example.com"+prefix+"/facetable.json?"), page.NextURL)
	require.NotEmpty(t, page.FacetResults["state"].Results)
	assert.True(t, strings.HasPrefix(page.FacetResults["state"].Results[0].ToggleURL, prefix+"/facetable.json?"))

	rec = do(t, h, http.MethodGet, "/")
	var index []query.DatabaseSummary
	decode(t, rec, &index)
	require.Len(t, index, 1)
	assert.Equal(t, prefix, index[0].Path)
}

func TestInvalidIdentifier(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/fixtures/bad%00name.json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"INVALID_QUERY"`)
}

func TestAttribution(t *testing.T) {
	h := newTestServer(t)

	for _, target := range []string{
		"/fixtures.json",
		"/fixtures/simple_primary_key.json",
		"/fixtures/simple_primary_key/1.json",
		"/fixtures.json?sql=select+1",
		"/fixtures/cities.json",
	} {
		rec := do(t, h, http.MethodGet, target)
		require.Equal(t, http.StatusOK, rec.Code, target)
		var attr config.Attribution
		decode(t, rec, &attr)
		assert.Equal(t, config.Attribution{
			Source:     "Fixture generator",
			SourceURL:  "https://example.com/fixtures",
			License:    "CC0",
			LicenseURL: "https://example.com/cc0",
		}, attr, target)
	}
}

func TestTableDefinitions(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/fixtures/simple_primary_key.json")
	require.Equal(t, http.StatusOK, rec.Code)
	var table struct {
		TableDefinition *string `json:"table_definition"`
		ViewDefinition  *string `json:"view_definition"`
	}
	decode(t, rec, &table)
	require.NotNil(t, table.TableDefinition)
	assert.Contains(t, *table.TableDefinition, "CREATE TABLE simple_primary_key")
	assert.Nil(t, table.ViewDefinition)

	rec = do(t, h, http.MethodGet, "/fixtures/simple_view.json")
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		TableDefinition *string `json:"table_definition"`
		ViewDefinition  *string `json:"view_definition"`
	}
	decode(t, rec, &view)
	require.NotNil(t, view.ViewDefinition)
	assert.Contains(t, *view.ViewDefinition, "CREATE VIEW simple_view")
	assert.Nil(t, view.TableDefinition)
}

func TestFilterOperators(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/-/filters.json")
	require.Equal(t, http.StatusOK, rec.Code)
	var ops []struct {
		Key        string `json:"key"`
		Display    string `json:"display"`
		NoArgument bool   `json:"no_argument"`
	}
	decode(t, rec, &ops)
	require.NotEmpty(t, ops)
	assert.Equal(t, "exact", ops[0].Key)
	assert.Equal(t, "=", ops[0].Display)

	var isnull bool
	for _, op := range ops {
		if op.Key == "isnull" {
			isnull = op.NoArgument
		}
	}
	assert.True(t, isnull)
}

func TestRow(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/fixtures/compound_primary_key/a,b.json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var row struct {
		PrimaryKeyValues []string `json:"primary_key_values"`
		Rows             [][]any  `json:"rows"`
	}
	decode(t, rec, &row)
	assert.Equal(t, []string{"a", "b"}, row.PrimaryKeyValues)
	assert.Equal(t, [][]any{{"a", "b", "c"}}, row.Rows)

	rec = do(t, h, http.MethodGet, "/fixtures/facet_cities/1.json?_extras=foreign_key_tables")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"foreign_key_tables":[{"other_table":"facetable","column":"id","other_column":"city_id","count":6}]`)
}

func TestLegacyFilterRedirect(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/fixtures/facetable.json?_filter_column=state&_filter_op=exact&_filter_value=CA")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/fixtures/facetable.json?state__exact=CA", rec.Header().Get("Location"))
}

func TestSQL(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/fixtures.json?"+url.Values{
		"sql": {"select content from simple_primary_key where id = :id"},
		"id":  {"2"},
	}.Encode())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		CannedQuery string  `json:"canned_query"`
		Rows        [][]any `json:"rows"`
	}
	decode(t, rec, &res)
	assert.Equal(t, [][]any{{"world"}}, res.Rows)

	rec = do(t, h, http.MethodGet, "/fixtures.json?"+url.Values{
		"sql": {"select * from pragma_table_info('facetable')"},
	}.Encode())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Statement may not contain PRAGMA")

	rec = do(t, h, http.MethodGet, "/fixtures/cities.json")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &res)
	assert.Equal(t, "cities", res.CannedQuery)
	assert.Len(t, res.Rows, 4)

	disabled := newTestServer(t, func(cfg *config.Config) { cfg.AllowSQL = false })
	rec = do(t, disabled, http.MethodGet, "/fixtures.json?sql=select+1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "sql= is not allowed")
}

func TestDownload(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/fixtures.db")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="fixtures.db"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "SQLite format 3"))

	disabled := newTestServer(t, func(cfg *config.Config) { cfg.AllowDownload = false })
	rec = do(t, disabled, http.MethodGet, "/fixtures.db")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOperationalEndpoints(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/-/inspect.json")
	require.Equal(t, http.StatusOK, rec.Code)
	var dbs map[string]inspect.Database
	decode(t, rec, &dbs)
	require.Contains(t, dbs, "fixtures")
	assert.Contains(t, dbs["fixtures"].Tables, "facetable")

	rec = do(t, h, http.MethodGet, "/-/metadata.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Fixtures"`)

	rec = do(t, h, http.MethodGet, "/-/config.json")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg map[string]any
	decode(t, rec, &cfg)
	assert.Equal(t, float64(50), cfg["default_page_size"])
	assert.NotContains(t, cfg, "port")

	rec = do(t, h, http.MethodGet, "/-/versions.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sqlite_version"`)
	assert.Contains(t, rec.Body.String(), `"litebrowse":"test"`)

	rec = do(t, h, http.MethodPost, "/-/inspect/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok":true`)

	rec = do(t, h, http.MethodGet, "/fixtures/simple_primary_key.json")
	assert.Equal(t, http.StatusOK, rec.Code)
}
