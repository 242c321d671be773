package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/joe-ervin05/litebrowse/filters"
	"github.com/joe-ervin05/litebrowse/query"
	"github.com/joe-ervin05/litebrowse/tools"
)

// jsonHandler returns a value written as is.
type jsonHandler func(r *http.Request) (any, error)

// rowsHandler returns a result whose rows are rendered per _shape and _json.
type rowsHandler func(r *http.Request, args tools.Args) (query.Response, error)

func (s *Server) handle(h jsonHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := h(r)
		if err != nil {
			tools.RespErr(w, err)
			return
		}
		tools.RespJSON(w, http.StatusOK, v)
	}
}

func (s *Server) handleRows(h rowsHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		args := tools.ParseArgs(r.URL.RawQuery)
		res, err := h(r, args)

		var redirect *query.RedirectError
		if errors.As(err, &redirect) {
			http.Redirect(w, r, redirect.URL, http.StatusFound)
			return
		}
		if err != nil {
			tools.RespErr(w, err)
			return
		}

		if page, ok := res.(*query.TableResult); ok && page.NextURL != nil {
			u := absoluteURL(r, *page.NextURL)
			page.NextURL = &u
		}
		body, err := shape(res, args)
		if err != nil {
			tools.RespErr(w, err)
			return
		}
		w.Header().Set("Cache-Control", s.cacheControl(args, dbFrom(r).hashed))
		tools.RespJSON(w, http.StatusOK, body)
	}
}

func (s *Server) handleIndex(r *http.Request) (any, error) {
	return s.engine.Index(r.Context())
}

func (s *Server) handleInspect(r *http.Request) (any, error) {
	return s.inspector.Inspect(r.Context())
}

func (s *Server) handleMetadata(_ *http.Request) (any, error) {
	return s.metadata, nil
}

func (s *Server) handleConfig(_ *http.Request) (any, error) {
	return s.cfg, nil
}

func (s *Server) handleVersions(r *http.Request) (any, error) {
	v, err := s.inspector.Versions(r.Context())
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"litebrowse": s.version,
		"go":         runtime.Version(),
		"sqlite":     v,
	}, nil
}

// filterOperator is the public form of a filters.Operator.
type filterOperator struct {
	Key        string `json:"key"`
	Display    string `json:"display"`
	NoArgument bool   `json:"no_argument"`
}

func (s *Server) handleFilters(_ *http.Request) (any, error) {
	ops := filters.Operators()
	out := make([]filterOperator, len(ops))
	for i, op := range ops {
		out[i] = filterOperator{Key: op.Key, Display: op.Display, NoArgument: op.NoArg}
	}
	return out, nil
}

// handleRefresh re-inspects every file and reports the new hashes.
func (s *Server) handleRefresh(r *http.Request) (any, error) {
	dbs, err := s.inspector.RefreshAll(r.Context())
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]string, len(dbs))
	for name, db := range dbs {
		hashes[name] = db.Hash
	}
	s.logger.Info("databases re-inspected", "count", len(dbs))
	return map[string]any{"ok": true, "databases": hashes}, nil
}

func (s *Server) handleDatabase(w http.ResponseWriter, r *http.Request) {
	ref := dbFrom(r)
	if ref.download {
		s.handleDownload(w, r, ref.name)
		return
	}
	name := ref.name

	args := tools.ParseArgs(r.URL.RawQuery)
	if statement, ok := args.Get("sql"); ok {
		s.handleRows(func(r *http.Request, args tools.Args) (query.Response, error) {
			res, err := s.engine.SQL(r.Context(), name, statement, args)
			if err != nil {
				return nil, err
			}
			return res, nil
		})(w, r)
		return
	}

	info, err := s.engine.Database(r.Context(), name)
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	w.Header().Set("Cache-Control", s.cacheControl(args, ref.hashed))
	tools.RespJSON(w, http.StatusOK, info)
}

func (s *Server) isDatabase(name string) bool {
	_, err := s.inspector.Path(name)
	return err == nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, name string) {
	if !s.cfg.AllowDownload {
		tools.RespErr(w, tools.ForbiddenErr("Database download is forbidden"))
		return
	}
	path, err := s.inspector.Path(name)
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		tools.RespErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.db"`, name))
	http.ServeContent(w, r, name+".db", info.ModTime(), f)
}

func (s *Server) handleTable(r *http.Request, args tools.Args) (query.Response, error) {
	req, err := tableRequest(r, args)
	if err != nil {
		return nil, err
	}
	return s.engine.Table(r.Context(), req)
}

func (s *Server) handleRow(r *http.Request, args tools.Args) (query.Response, error) {
	req, err := tableRequest(r, args)
	if err != nil {
		return nil, err
	}
	// values are unescaped one by one once split on ","
	pks := strings.TrimSuffix(chi.URLParam(r, "pks"), ".json")
	res, err := s.engine.Row(r.Context(), req, pks)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func tableRequest(r *http.Request, args tools.Args) (query.Request, error) {
	table, err := pathParam(r, "table")
	if err != nil {
		return query.Request{}, err
	}
	return query.Request{
		Database: dbFrom(r).name,
		Table:    table,
		Path:     r.URL.EscapedPath(),
		Args:     args,
	}, nil
}

// pathParam returns an unescaped route parameter without its .json suffix.
func pathParam(r *http.Request, key string) (string, error) {
	raw := strings.TrimSuffix(chi.URLParam(r, key), ".json")
	v, err := url.PathUnescape(raw)
	if err != nil {
		return "", tools.InvalidQueryErr("Invalid path segment: " + raw)
	}
	if err := tools.ValidateIdentifier(v); err != nil {
		return "", err
	}
	return v, nil
}

// absoluteURL prefixes a path with the scheme and host the client used.
func absoluteURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + path
}

// cacheControl applies _ttl. Without a valid one, hashed paths get
// default_cache_ttl and unhashed paths are not cached.
func (s *Server) cacheControl(args tools.Args, hashed bool) string {
	ttl := 0
	if hashed {
		ttl = s.cfg.DefaultCacheTTL
	}
	if v, ok := args.Get("_ttl"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			ttl = n
		}
	}
	if ttl <= 0 {
		return "no-cache"
	}
	return fmt.Sprintf("max-age=%d", ttl)
}
