package facets

import (
	"context"
	"fmt"

	"github.com/joe-ervin05/litebrowse/sandbox"
	"github.com/joe-ervin05/litebrowse/tools"
	"golang.org/x/sync/errgroup"
)

// Suggestion is a column worth faceting by.
type Suggestion struct {
	Name      string `json:"name"`
	ToggleURL string `json:"toggle_url"`
}

// Suggest proposes columns with between 2 and Size distinct values that do
// not identify every row. Columns already in faceted are skipped. A negative
// filteredCount means the count is unknown.
func (e *Engine) Suggest(ctx context.Context, req Request, columns, faceted []string, filteredCount int64) []Suggestion {
	skip := make(map[string]bool, len(faceted))
	for _, f := range faceted {
		skip[f] = true
	}

	var candidates []string
	for _, col := range dedupe(columns) {
		if !skip[col] {
			candidates = append(candidates, col)
		}
	}
	keep := make([]bool, len(candidates))

	var g errgroup.Group
	for i, col := range candidates {
		g.Go(func() error {
			query := fmt.Sprintf("select distinct %s from %s%s limit %d",
				tools.EscapeName(col), tools.EscapeName(req.Table), whereClause(req.Where), req.Size+1)

			res, err := e.exec.Execute(ctx, sandbox.Request{
				Database:  req.Database,
				SQL:       query,
				Params:    req.Params,
				TimeLimit: req.SuggestTimeLimit,
			})
			if err != nil {
				return nil
			}
			n := int64(len(res.Rows))
			keep[i] = n > 1 && n <= int64(req.Size) && (filteredCount < 0 || n < filteredCount)
			return nil
		})
	}
	g.Wait()

	suggestions := []Suggestion{}
	for i, col := range candidates {
		if keep[i] {
			suggestions = append(suggestions, Suggestion{
				Name:      col,
				ToggleURL: req.Args.WithoutKey("_next").Append("_facet", col).URL(req.Path),
			})
		}
	}
	return suggestions
}
