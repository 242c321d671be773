package inspect

import (
	"context"
	"database/sql"
	"fmt"
)

// Versions describes the SQLite engine behind the driver.
type Versions struct {
	Driver  string   `json:"driver"`
	SQLite  string   `json:"sqlite_version"`
	Modules []string `json:"fts_versions"`
}

// Versions reports the engine version and which full-text modules it was
// compiled with.
func (i *Inspector) Versions(ctx context.Context) (Versions, error) {
	v := Versions{Driver: i.driver, Modules: []string{}}

	db, err := sql.Open(i.driver, "file::memory:")
	if err != nil {
		return v, err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&v.SQLite); err != nil {
		return v, fmt.Errorf("failed to read sqlite version: %w", err)
	}

	for _, mod := range []string{"FTS5", "FTS4", "FTS3"} {
		probe := "v_" + mod
		if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE VIRTUAL TABLE %s USING %s(t)", probe, mod)); err != nil {
			continue
		}
		v.Modules = append(v.Modules, mod)
		if _, err := db.ExecContext(ctx, "DROP TABLE "+probe); err != nil {
			return v, err
		}
	}
	return v, nil
}
