// Package facets counts the distinct values of columns within a filtered
// table, one bounded query per column.
package facets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/joe-ervin05/litebrowse/filters"
	"github.com/joe-ervin05/litebrowse/sandbox"
	"github.com/joe-ervin05/litebrowse/tools"
	"golang.org/x/sync/errgroup"
)

// Executor runs a statement; *sandbox.Pool satisfies it.
type Executor interface {
	Execute(ctx context.Context, req sandbox.Request) (*sandbox.Result, error)
}

// Labeler maps the values of a column to display labels, keyed by
// Cell.String(). Values without a label are left out.
type Labeler func(ctx context.Context, column string, values []sandbox.Cell) (map[string]sandbox.Cell, error)

// Request describes the filtered table being faceted.
type Request struct {
	Database   string
	Table      string
	Where      []string       // Filter fragments, joined with "and"
	Params     map[string]any // Parameters of Where
	Args       tools.Args     // Current query string, for toggle URLs
	Selections filters.Set    // Parsed filters of Args
	Path       string         // Path of the table page, for toggle URLs

	Size             int
	TimeLimit        time.Duration
	SuggestTimeLimit time.Duration
	Labeler          Labeler
}

// Value is one distinct value of a faceted column.
type Value struct {
	Value     sandbox.Cell `json:"value"`
	Label     sandbox.Cell `json:"label"`
	Count     int64        `json:"count"`
	ToggleURL string       `json:"toggle_url"`
	Selected  bool         `json:"selected"`
}

// Result is the facet of one column.
type Result struct {
	Name      string  `json:"name"`
	Results   []Value `json:"results"`
	Truncated bool    `json:"truncated"`
}

// Engine computes facets through an Executor.
type Engine struct {
	exec   Executor
	logger *slog.Logger
}

// New returns an Engine.
func New(exec Executor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = tools.Logger
	}
	return &Engine{exec: exec, logger: logger}
}

// Compute facets every column concurrently. A column whose query fails or
// runs out of time is reported in timedOut and does not affect the others.
func (e *Engine) Compute(ctx context.Context, req Request, columns []string) (map[string]Result, []string) {
	columns = dedupe(columns)
	results := make([]*Result, len(columns))

	var g errgroup.Group
	for i, col := range columns {
		g.Go(func() error {
			res, err := e.facet(ctx, req, col)
			if err != nil {
				if !errors.Is(err, tools.ErrQueryInterrupted) {
					e.logger.Warn("facet failed", "database", req.Database, "table", req.Table, "column", col, "error", err)
				}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	out := make(map[string]Result, len(columns))
	timedOut := []string{}
	for i, col := range columns {
		if results[i] == nil {
			timedOut = append(timedOut, col)
			continue
		}
		out[col] = *results[i]
	}
	return out, timedOut
}

func (e *Engine) facet(ctx context.Context, req Request, col string) (*Result, error) {
	escaped := tools.EscapeName(col)
	where := append(append([]string{}, req.Where...), escaped+" is not null")
	query := fmt.Sprintf(
		"select %s as value, count(*) as count from %s where %s group by %s order by count desc, value limit %d",
		escaped, tools.EscapeName(req.Table), strings.Join(where, " and "), escaped, req.Size+1,
	)

	rows, err := e.exec.Execute(ctx, sandbox.Request{
		Database:  req.Database,
		SQL:       query,
		Params:    req.Params,
		TimeLimit: req.TimeLimit,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Name: col, Results: []Value{}}
	data := rows.Rows
	if len(data) > req.Size {
		res.Truncated = true
		data = data[:req.Size]
	}

	var labels map[string]sandbox.Cell
	if req.Labeler != nil && len(data) > 0 {
		values := make([]sandbox.Cell, len(data))
		for i, row := range data {
			values[i] = row[0]
		}
		if labels, err = req.Labeler(ctx, col, values); err != nil {
			// labels are cosmetic
			e.logger.Debug("facet labels unavailable", "column", col, "error", err)
		}
	}

	for _, row := range data {
		value, count := row[0], row[1]
		key := value.String()
		label, ok := labels[key]
		if !ok {
			label = value
		}
		selected := slices.Contains(req.Selections.Exact(col), key)
		res.Results = append(res.Results, Value{
			Value:     value,
			Label:     label,
			Count:     count.Int,
			Selected:  selected,
			ToggleURL: ToggleURL(req.Path, req.Args, col, key, selected),
		})
	}
	return res, nil
}

// ToggleURL adds col=value to args, or removes it when already selected,
// in either its col=value or col__exact=value spelling. The _next token is
// dropped since the filtered set changes.
func ToggleURL(path string, args tools.Args, col, value string, selected bool) string {
	args = args.WithoutKey("_next")
	if selected {
		return args.Without(col, value).Without(col+"__exact", value).URL(path)
	}
	return args.With(col, value).URL(path)
}

func dedupe(columns []string) []string {
	seen := make(map[string]bool, len(columns))
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// whereClause renders fragments as a full WHERE clause, or nothing.
func whereClause(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return " where " + strings.Join(where, " and ")
}
