package inspect

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/joe-ervin05/litebrowse/config"
	"github.com/joe-ervin05/litebrowse/tools"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Options configures an Inspector.
type Options struct {
	Driver   string           // database/sql driver name, "sqlite3" when empty
	Metadata *config.Metadata // Optional table overrides
	Logger   *slog.Logger
}

// Inspector inspects a fixed set of database files and caches the result.
type Inspector struct {
	paths    map[string]string // name -> absolute path
	names    []string
	driver   string
	metadata *config.Metadata
	logger   *slog.Logger

	mu        sync.Mutex // serializes inspection
	cache     *lru.Cache[string, *Database]
	onRefresh []func(name string)
}

// New validates the file set. Names are derived from file stems and must be
// unique; every file must exist.
func New(files []string, opts Options) (*Inspector, error) {
	if opts.Driver == "" {
		opts.Driver = "sqlite3"
	}
	if opts.Logger == nil {
		opts.Logger = tools.Logger
	}

	paths := make(map[string]string, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, tools.ConfigurationErr("invalid database path %s: %v", f, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, tools.ConfigurationErr("database file %s: %v", f, err)
		}
		if info.IsDir() {
			return nil, tools.ConfigurationErr("database file %s is a directory", f)
		}
		name := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
		if other, dup := paths[name]; dup {
			return nil, tools.ConfigurationErr("multiple database files share the name %q: %s and %s", name, other, abs)
		}
		paths[name] = abs
	}

	cache, err := lru.New[string, *Database](max(len(paths), 1))
	if err != nil {
		return nil, err
	}

	return &Inspector{
		paths:    paths,
		names:    sortedKeys(paths),
		driver:   opts.Driver,
		metadata: opts.Metadata,
		logger:   opts.Logger,
		cache:    cache,
	}, nil
}

// Names returns the database names, sorted.
func (i *Inspector) Names() []string {
	return i.names
}

// Path returns the absolute file path of a database.
func (i *Inspector) Path(name string) (string, error) {
	p, ok := i.paths[name]
	if !ok {
		return "", tools.DatabaseNotFoundErr(name)
	}
	return p, nil
}

// DSN returns the read-only connection string for a database file.
func DSN(path string) string {
	escaped := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(filepath.ToSlash(path))
	return "file:" + escaped + "?mode=ro&immutable=1"
}

// Open opens a read-only pool for a database. The caller owns it.
func (i *Inspector) Open(name string) (*sql.DB, error) {
	path, err := i.Path(name)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(i.driver, DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return db, nil
}

// OnRefresh registers fn to run after a database is re-inspected.
// Connection pools use it to drop handles onto the old file.
func (i *Inspector) OnRefresh(fn func(name string)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onRefresh = append(i.onRefresh, fn)
}

// Inspect returns every database, inspecting those not yet cached.
func (i *Inspector) Inspect(ctx context.Context) (map[string]*Database, error) {
	out := make(map[string]*Database, len(i.names))
	for _, name := range i.names {
		db, err := i.Database(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = db
	}
	return out, nil
}

// Database returns one inspected database.
func (i *Inspector) Database(ctx context.Context, name string) (*Database, error) {
	if db, ok := i.cache.Get(name); ok {
		return db, nil
	}
	path, err := i.Path(name)
	if err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	// another caller may have finished while we waited
	if db, ok := i.cache.Get(name); ok {
		return db, nil
	}

	db, err := i.inspectFile(ctx, name, path)
	if err != nil {
		return nil, err
	}
	i.cache.Add(name, db)
	return db, nil
}

// Refresh drops the cached inspection of name and inspects it again.
func (i *Inspector) Refresh(ctx context.Context, name string) (*Database, error) {
	if _, err := i.Path(name); err != nil {
		return nil, err
	}
	i.cache.Remove(name)
	db, err := i.Database(ctx, name)
	if err != nil {
		return nil, err
	}

	i.mu.Lock()
	hooks := append([]func(string){}, i.onRefresh...)
	i.mu.Unlock()
	for _, fn := range hooks {
		fn(name)
	}
	return db, nil
}

// RefreshAll re-inspects every database.
func (i *Inspector) RefreshAll(ctx context.Context) (map[string]*Database, error) {
	for _, name := range i.names {
		if _, err := i.Refresh(ctx, name); err != nil {
			return nil, err
		}
	}
	return i.Inspect(ctx)
}

func (i *Inspector) inspectFile(ctx context.Context, name, path string) (*Database, error) {
	hash, size, err := hashFile(path)
	if err != nil {
		return nil, err
	}

	client, err := sql.Open(i.driver, DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer client.Close()
	client.SetMaxOpenConns(1)

	if err := client.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping %s: %w", path, err)
	}

	objects, err := schemaObjects(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables in %s: %w", name, err)
	}
	var tableNames, views []string
	definitions := make(map[string]string, len(objects))
	viewDefinitions := make(map[string]string)
	for _, o := range objects {
		if o.typ == "view" {
			views = append(views, o.name)
			viewDefinitions[o.name] = o.sql
			continue
		}
		tableNames = append(tableNames, o.name)
		definitions[o.name] = o.sql
	}
	ftsNames, err := ftsVirtualTables(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to list fts tables in %s: %w", name, err)
	}

	tables := make(map[string]*Table, len(tableNames))
	for _, tn := range tableNames {
		t := &Table{Name: tn, Definition: definitions[tn]}
		meta := i.metadata.Table(name, tn)

		t.Columns, t.ColumnTypes, t.PrimaryKeys, err = schemaColumns(ctx, client, tn)
		if err != nil {
			// virtual tables whose module is not compiled in cannot be read
			i.logger.Warn("failed to read columns", "database", name, "table", tn, "error", err)
		}
		if t.Count, err = schemaCount(ctx, client, tn); err != nil {
			i.logger.Warn("failed to count rows", "database", name, "table", tn, "error", err)
		}
		if t.FTSTable, err = detectFTS(ctx, client, tn); err != nil {
			return nil, err
		}

		t.LabelColumn = meta.LabelColumn
		if t.LabelColumn == "" {
			t.LabelColumn = inferLabelColumn(t.Columns, t.PrimaryKeys)
		}
		t.Hidden = meta.Hidden || isShadowTable(tn, ftsNames)
		tables[tn] = t
	}

	fks, err := schemaFks(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys in %s: %w", name, err)
	}
	linkForeignKeys(tables, fks)

	i.logger.Debug("inspected database", "database", name, "tables", len(tables), "views", len(views), "hash", hash[:7])

	return &Database{
		Name:   name,
		Hash:   hash,
		Path:   path,
		Size:   size,
		Tables: tables,
		Views:  views,

		ViewDefinitions: viewDefinitions,
	}, nil
}

// inferLabelColumn picks the non-identifier column of a two column table.
func inferLabelColumn(cols, pks []string) string {
	if len(cols) != 2 {
		return ""
	}
	id := "id"
	if len(pks) == 1 {
		id = pks[0]
	}
	switch id {
	case cols[0]:
		return cols[1]
	case cols[1]:
		return cols[0]
	}
	return ""
}

// isShadowTable reports whether name is a full-text virtual table or one of
// its backing tables.
func isShadowTable(name string, ftsNames []string) bool {
	for _, fts := range ftsNames {
		if strings.HasPrefix(name, fts) {
			return true
		}
	}
	return false
}

// linkForeignKeys records each declared key on both of its tables.
func linkForeignKeys(tables map[string]*Table, fks []fkRow) {
	for _, fk := range fks {
		owner, ok := tables[fk.table]
		if !ok {
			continue
		}
		to := fk.to
		other, known := tables[fk.other]
		if to == "" {
			// REFERENCES other with no column targets its primary key
			to = "rowid"
			if known && len(other.PrimaryKeys) == 1 {
				to = other.PrimaryKeys[0]
			}
		}
		owner.ForeignKeys.Outgoing = append(owner.ForeignKeys.Outgoing, ForeignKey{
			Column:      fk.from,
			OtherTable:  fk.other,
			OtherColumn: to,
		})
		if known {
			other.ForeignKeys.Incoming = append(other.ForeignKeys.Incoming, ForeignKey{
				Column:      to,
				OtherTable:  fk.table,
				OtherColumn: fk.from,
			})
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
