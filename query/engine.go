// Package query turns table URLs and custom SQL into bounded sandbox
// queries and assembles their JSON results.
package query

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joe-ervin05/litebrowse/config"
	"github.com/joe-ervin05/litebrowse/facets"
	"github.com/joe-ervin05/litebrowse/inspect"
	"github.com/joe-ervin05/litebrowse/sandbox"
	"github.com/joe-ervin05/litebrowse/tools"
)

// Inspector supplies inspected databases.
type Inspector interface {
	Names() []string
	Database(ctx context.Context, name string) (*inspect.Database, error)
}

// Options configures an Engine.
type Options struct {
	Config   *config.Config
	Metadata *config.Metadata
	Logger   *slog.Logger
}

// Engine answers table, row and SQL requests.
type Engine struct {
	inspector Inspector
	exec      facets.Executor
	facets    *facets.Engine
	cfg       *config.Config
	metadata  *config.Metadata
	logger    *slog.Logger
}

// New returns an Engine running its statements on exec.
func New(in Inspector, exec facets.Executor, opts Options) *Engine {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = tools.Logger
	}
	return &Engine{
		inspector: in,
		exec:      exec,
		facets:    facets.New(exec, opts.Logger),
		cfg:       opts.Config,
		metadata:  opts.Metadata,
		logger:    opts.Logger,
	}
}

// execute runs a statement and reports its duration in milliseconds.
func (e *Engine) execute(ctx context.Context, req sandbox.Request) (*sandbox.Result, float64, error) {
	start := time.Now()
	res, err := e.exec.Execute(ctx, req)
	ms := float64(time.Since(start).Microseconds()) / 1000
	return res, ms, err
}

// timeLimit applies a _timelimit or _sql_time_limit_ms argument. Either can
// only lower the configured limit.
func (e *Engine) timeLimit(args tools.Args) time.Duration {
	limit := e.cfg.SQLTimeLimit()
	for _, key := range []string{"_timelimit", "_sql_time_limit_ms"} {
		v, ok := args.Get(key)
		if !ok {
			continue
		}
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			continue
		}
		if d := time.Duration(ms) * time.Millisecond; d < limit {
			limit = d
		}
	}
	return limit
}

// splitArgs separates special arguments, which start with "_" and contain
// no "__", from filter pairs. A column starting with "_" can still be
// filtered with ?_col__exact=.
func splitArgs(args tools.Args) (special map[string]string, pairs tools.Args) {
	special = make(map[string]string)
	for _, a := range args {
		if strings.HasPrefix(a.Key, "_") && !strings.Contains(a.Key, "__") {
			if _, seen := special[a.Key]; !seen {
				special[a.Key] = a.Value
			}
			continue
		}
		pairs = append(pairs, a)
	}
	return special, pairs
}

// RowPath renders the primary key values of row as a URL path segment:
// each value query-escaped and joined with ",".
func RowPath(columns []string, row []sandbox.Cell, pks []string) string {
	parts := make([]string, 0, len(pks))
	for _, pk := range pks {
		for i, c := range columns {
			if c == pk {
				parts = append(parts, url.QueryEscape(row[i].String()))
				break
			}
		}
	}
	return strings.Join(parts, ",")
}

// parseRowPath inverts RowPath.
func parseRowPath(path string) []string {
	parts := strings.Split(path, ",")
	for i, p := range parts {
		if v, err := url.QueryUnescape(p); err == nil {
			parts[i] = v
		}
	}
	return parts
}

// int64Ptr returns a pointer to n.
func int64Ptr(n int64) *int64 {
	return &n
}

// whereSQL renders fragments as a WHERE clause with a leading space.
func whereSQL(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return " where " + strings.Join(where, " and ")
}

func mergeParams(dst map[string]any, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
