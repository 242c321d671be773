// Package api serves databases, tables, rows and custom SQL as JSON.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joe-ervin05/litebrowse/config"
	"github.com/joe-ervin05/litebrowse/inspect"
	"github.com/joe-ervin05/litebrowse/query"
	"github.com/joe-ervin05/litebrowse/tools"
)

// Options wires a Server to its collaborators.
type Options struct {
	Config    *config.Config
	Metadata  *config.Metadata
	Inspector *inspect.Inspector
	Engine    *query.Engine
	Logger    *slog.Logger
	Version   string
}

// Server holds the HTTP handlers.
type Server struct {
	cfg       *config.Config
	metadata  *config.Metadata
	inspector *inspect.Inspector
	engine    *query.Engine
	logger    *slog.Logger
	version   string
}

// New returns a Server.
func New(opts Options) *Server {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Metadata == nil {
		opts.Metadata = &config.Metadata{}
	}
	if opts.Logger == nil {
		opts.Logger = tools.Logger
	}
	return &Server{
		cfg:       opts.Config,
		metadata:  opts.Metadata,
		inspector: opts.Inspector,
		engine:    opts.Engine,
		logger:    opts.Logger,
		version:   opts.Version,
	}
}

// Handler returns the router with the middleware chain applied:
// panic recovery -> logging -> compression -> rate limit -> cors -> timeout -> routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Recoverer,
		tools.LoggingMiddleware,
		middleware.Compress(5),
		tools.RateLimitMiddleware(s.cfg.RateLimit),
		tools.CORSMiddleware(s.cfg.CORSOrigins),
		tools.TimeoutMiddleware(time.Duration(s.cfg.RequestTimeout)*time.Second),
	)
	s.Routes(r)
	return r
}

// Routes registers every endpoint on r.
//
// Routes:
//   - GET /, /.json - database index
//   - GET /-/inspect.json, /-/metadata.json, /-/config.json, /-/versions.json
//   - POST /-/inspect/refresh - re-inspect every database file
//   - GET /-/filters.json - the filter operators
//   - GET /{db} - database info, custom SQL with ?sql=, or the file itself as /{db}.db
//   - GET /{db}/{table} - table, view or canned query
//   - GET /{db}/{table}/{pks} - a single row
//
// {db} is the database name, or name-hash with the file's short hash. With
// hash_urls on, bare names redirect to the hashed form.
func (s *Server) Routes(r chi.Router) {
	r.Get("/", s.handle(s.handleIndex))
	r.Get("/.json", s.handle(s.handleIndex))

	r.Route("/-", func(r chi.Router) {
		r.Get("/inspect.json", s.handle(s.handleInspect))
		r.Get("/metadata.json", s.handle(s.handleMetadata))
		r.Get("/config.json", s.handle(s.handleConfig))
		r.Get("/versions.json", s.handle(s.handleVersions))
		r.Get("/filters.json", s.handle(s.handleFilters))
		r.Post("/inspect/refresh", s.handle(s.handleRefresh))
	})

	r.Route("/{db}", func(r chi.Router) {
		r.Use(s.resolveDatabase)
		r.Get("/", s.handleDatabase)
		r.Get("/{table}", s.handleRows(s.handleTable))
		r.Get("/{table}/{pks}", s.handleRows(s.handleRow))
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		tools.RespJSON(w, http.StatusNotFound, tools.APIError{
			Code:   "NOT_FOUND",
			Error:  "not found",
			Status: http.StatusNotFound,
		})
	})
}
