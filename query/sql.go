package query

import (
	"context"
	"regexp"
	"strings"

	"github.com/joe-ervin05/litebrowse/sandbox"
	"github.com/joe-ervin05/litebrowse/tools"
)

var (
	allowedSQL = []*regexp.Regexp{
		regexp.MustCompile(`^select\b`),
		regexp.MustCompile(`^explain\s+select\b`),
		regexp.MustCompile(`^explain\s+query\s+plan\s+select\b`),
		regexp.MustCompile(`^with\b`),
	}
	disallowedSQL = []struct {
		re  *regexp.Regexp
		msg string
	}{
		{regexp.MustCompile(`pragma`), "Statement may not contain PRAGMA"},
	}

	namedParam = regexp.MustCompile(`:([a-zA-Z0-9_]+)`)
)

// ValidateSQL rejects anything but a read-only SELECT statement.
func ValidateSQL(statement string) error {
	s := strings.ToLower(strings.TrimSpace(statement))
	allowed := false
	for _, re := range allowedSQL {
		if re.MatchString(s) {
			allowed = true
			break
		}
	}
	if !allowed {
		return tools.InvalidQueryErr("Statement must be a SELECT")
	}
	for _, d := range disallowedSQL {
		if d.re.MatchString(s) {
			return tools.InvalidQueryErr(d.msg)
		}
	}
	return nil
}

// NamedParams lists the :name parameters of a statement in order of first
// use. Names must start with a letter to be bindable.
func NamedParams(statement string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range namedParam.FindAllStringSubmatch(statement, -1) {
		name := m[1]
		if seen[name] || !isLetter(name[0]) {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// SQL runs a custom statement against db.
func (e *Engine) SQL(ctx context.Context, db, statement string, args tools.Args) (*QueryResult, error) {
	if !e.cfg.AllowSQL {
		return nil, tools.InvalidQueryErr("sql= is not allowed")
	}
	if err := ValidateSQL(statement); err != nil {
		return nil, err
	}
	return e.run(ctx, db, statement, args, &QueryResult{Database: db})
}

// Canned runs the metadata query name of db. Canned statements are trusted
// and run even when custom SQL is disabled.
func (e *Engine) Canned(ctx context.Context, db, name string, args tools.Args) (*QueryResult, error) {
	q, ok := e.metadata.Query(db, name)
	if !ok {
		return nil, tools.TableNotFoundErr(name)
	}
	return e.run(ctx, db, q.SQL, args, &QueryResult{Database: db, CannedQuery: name, Title: q.Title})
}

func (e *Engine) run(ctx context.Context, db, statement string, args tools.Args, out *QueryResult) (*QueryResult, error) {
	if _, err := e.inspector.Database(ctx, db); err != nil {
		return nil, err
	}
	out.Attribution = e.metadata.Credits()

	params := make(map[string]any)
	for _, name := range NamedParams(statement) {
		v, _ := args.Get(name)
		params[name] = v
	}

	res, ms, err := e.execute(ctx, sandbox.Request{
		Database:   db,
		SQL:        statement,
		Params:     params,
		TimeLimit:  e.timeLimit(args),
		TruncateAt: e.cfg.MaxReturnedRows,
	})
	if err != nil {
		return nil, err
	}

	out.Columns = res.Columns
	out.Rows = res.Rows
	out.Truncated = res.Truncated
	out.Query = Statement{SQL: statement, Params: params}
	out.QueryMs = ms
	return out, nil
}
