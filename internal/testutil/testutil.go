// Package testutil builds SQLite fixture files for tests.
package testutil

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// NewTestLogger returns a logger that discards everything.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WriteDB creates dir/name.db, runs stmts against it and returns its path.
func WriteDB(t testing.TB, dir, name string, stmts ...string) string {
	t.Helper()

	path := filepath.Join(dir, name+".db")
	client, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer client.Close()

	for _, stmt := range stmts {
		if _, err := client.Exec(stmt); err != nil {
			t.Fatalf("failed to run fixture statement %q: %v", stmt, err)
		}
	}
	return path
}

// Fixture row counts.
const (
	CompoundThreeRows = 1001
	NoPrimaryKeyRows  = 201
	SortableRows      = 201
	FacetableRows     = 15
)

var fixtureSchema = []string{
	`CREATE TABLE simple_primary_key (id varchar(30) PRIMARY KEY, content text)`,
	`INSERT INTO simple_primary_key VALUES ('1', 'hello'), ('2', 'world'), ('3', '')`,

	`CREATE TABLE primary_key_multiple_columns (id varchar(30) PRIMARY KEY, content text, content2 text)`,
	`INSERT INTO primary_key_multiple_columns VALUES ('1', 'hey', 'world')`,

	`CREATE TABLE compound_primary_key (pk1 varchar(30), pk2 varchar(30), content text, PRIMARY KEY (pk1, pk2))`,
	`INSERT INTO compound_primary_key VALUES ('a', 'b', 'c')`,

	`CREATE TABLE compound_three_primary_keys (
		pk1 varchar(30), pk2 varchar(30), pk3 varchar(30), content text,
		PRIMARY KEY (pk1, pk2, pk3)
	)`,

	`CREATE TABLE no_primary_key (content text, a text, b text, c text)`,

	`CREATE TABLE sortable (
		pk1 varchar(30), pk2 varchar(30), content text,
		sortable integer, sortable_with_nulls real, sortable_with_nulls_2 real, text text,
		PRIMARY KEY (pk1, pk2)
	)`,

	`CREATE TABLE foreign_key_references (
		pk varchar(30) PRIMARY KEY,
		foreign_key_with_label varchar(30),
		foreign_key_with_no_label varchar(30),
		FOREIGN KEY (foreign_key_with_label) REFERENCES simple_primary_key(id),
		FOREIGN KEY (foreign_key_with_no_label) REFERENCES primary_key_multiple_columns(id)
	)`,
	`INSERT INTO foreign_key_references VALUES ('1', '1', '1')`,

	`CREATE TABLE facet_cities (id integer PRIMARY KEY, name text)`,
	`INSERT INTO facet_cities VALUES (1, 'San Francisco'), (2, 'Los Angeles'), (3, 'Detroit'), (4, 'Memnonia')`,

	`CREATE TABLE facetable (
		pk integer PRIMARY KEY,
		planet_int integer,
		on_earth integer,
		state text,
		city_id integer,
		neighborhood text,
		FOREIGN KEY (city_id) REFERENCES facet_cities(id)
	)`,
	`INSERT INTO facetable (planet_int, on_earth, state, city_id, neighborhood) VALUES
		(1, 1, 'CA', 1, 'Mission'),
		(1, 1, 'CA', 1, 'Dogpatch'),
		(1, 1, 'CA', 1, 'SOMA'),
		(1, 1, 'CA', 1, 'Tenderloin'),
		(1, 1, 'CA', 1, 'Bernal Heights'),
		(1, 1, 'CA', 1, 'Hayes Valley'),
		(1, 1, 'CA', 2, 'Hollywood'),
		(1, 1, 'CA', 2, 'Downtown'),
		(1, 1, 'CA', 2, 'Los Feliz'),
		(1, 1, 'CA', 2, 'Koreatown'),
		(1, 1, 'MI', 3, 'Downtown'),
		(1, 1, 'MI', 3, 'Greektown'),
		(1, 1, 'MI', 3, 'Corktown'),
		(1, 1, 'MI', 3, 'Mexicantown'),
		(2, 0, 'MC', 4, 'Arcadia Planitia')`,

	`CREATE TABLE searchable (pk integer PRIMARY KEY, text1 text, text2 text)`,
	`INSERT INTO searchable VALUES (1, 'barry cat', 'terry dog'), (2, 'terry dog', 'sara weasel')`,
	`CREATE VIRTUAL TABLE searchable_fts USING FTS4 (text1, text2, content="searchable")`,
	`INSERT INTO searchable_fts (rowid, text1, text2) SELECT rowid, text1, text2 FROM searchable`,

	`CREATE TABLE binary_data (data blob)`,
	`INSERT INTO binary_data VALUES (x'ff00')`,

	`CREATE TABLE [table/with/slashes.csv] (pk varchar(30) PRIMARY KEY, content text)`,
	`INSERT INTO [table/with/slashes.csv] VALUES ('3', 'hey')`,

	`CREATE VIEW simple_view AS SELECT content, upper(content) AS upper_content FROM simple_primary_key`,
	`CREATE VIEW paginated_view AS SELECT content, '- ' || content || ' -' AS content_extra FROM no_primary_key`,
}

// FixtureDB writes the shared fixtures database into a temporary directory
// and returns its path. The database is named "fixtures".
func FixtureDB(t testing.TB) string {
	t.Helper()

	path := WriteDB(t, t.TempDir(), "fixtures", fixtureSchema...)

	client, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("failed to reopen fixtures: %v", err)
	}
	defer client.Close()

	tx, err := client.Begin()
	if err != nil {
		t.Fatalf("failed to begin fixture transaction: %v", err)
	}
	insert := func(query string, args ...any) {
		if _, err := tx.Exec(query, args...); err != nil {
			tx.Rollback()
			t.Fatalf("failed to insert fixture row: %v", err)
		}
	}

	n := 0
	for a := 'a'; a <= 'z' && n < CompoundThreeRows; a++ {
		for b := 'a'; b <= 'z' && n < CompoundThreeRows; b++ {
			for c := 'a'; c <= 'z' && n < CompoundThreeRows; c++ {
				insert(`INSERT INTO compound_three_primary_keys VALUES (?, ?, ?, ?)`,
					string(a), string(b), string(c), fmt.Sprintf("%c-%c-%c", a, b, c))
				n++
			}
		}
	}

	for i := 0; i < NoPrimaryKeyRows; i++ {
		s := strconv.Itoa(i)
		insert(`INSERT INTO no_primary_key VALUES (?, ?, ?, ?)`, s, "a"+s, "b"+s, "c"+s)
	}

	for i := 0; i < SortableRows; i++ {
		pk1 := string(rune('a' + i/26))
		pk2 := string(rune('a' + i%26))
		var withNulls, withNulls2 any
		if i%3 != 0 {
			withNulls = float64(i % 17)
		}
		if i%5 != 0 {
			withNulls2 = float64(i % 7)
		}
		insert(`INSERT INTO sortable VALUES (?, ?, ?, ?, ?, ?, ?)`,
			pk1, pk2, pk1+pk2, (i*37)%101, withNulls, withNulls2, "$"+pk2+pk1)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit fixtures: %v", err)
	}
	return path
}
