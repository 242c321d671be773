package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/joe-ervin05/litebrowse/tools"
)

type dbRefKey struct{}

// dbRef is the database a request addresses, as resolved from the {db}
// path segment.
type dbRef struct {
	name     string
	hashed   bool // the segment carried the current short hash
	download bool // the segment ended in .db
}

func dbFrom(r *http.Request) dbRef {
	ref, _ := r.Context().Value(dbRefKey{}).(dbRef)
	return ref
}

// resolveDatabase maps the {db} segment to a database. The segment is
// either the name or name-hash, where hash is the first characters of the
// file's SHA-256. A stale hash, or a bare name while hash_urls is on, is
// redirected to the path carrying the current hash.
func (s *Server) resolveDatabase(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "db")
		seg, suffix := raw, ""
		if v, ok := strings.CutSuffix(seg, ".json"); ok {
			seg, suffix = v, ".json"
		} else if v, ok := strings.CutSuffix(seg, ".db"); ok && !strings.Contains(strings.Trim(r.URL.Path, "/"), "/") {
			if _, _, found := s.splitDatabase(v); found {
				seg, suffix = v, ".db"
			}
		}

		name, hash, found := s.splitDatabase(seg)
		if !found {
			tools.RespErr(w, tools.DatabaseNotFoundErr(unescaped(seg)))
			return
		}
		db, err := s.inspector.Database(r.Context(), name)
		if err != nil {
			tools.RespErr(w, err)
			return
		}

		short := db.ShortHash()
		if (hash != "" && hash != short) || (hash == "" && s.cfg.HashURLs) {
			http.Redirect(w, r, hashedPath(r, name, short, suffix), http.StatusFound)
			return
		}

		ref := dbRef{name: name, hashed: hash != "", download: suffix == ".db"}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), dbRefKey{}, ref)))
	})
}

// splitDatabase resolves a segment to a database name and the hash it
// carried. The text before the last "-" is tried first, then the whole
// segment.
func (s *Server) splitDatabase(seg string) (name, hash string, found bool) {
	name = unescaped(seg)
	if i := strings.LastIndex(name, "-"); i > 0 && s.isDatabase(name[:i]) {
		return name[:i], name[i+1:], true
	}
	if s.isDatabase(name) {
		return name, "", true
	}
	return "", "", false
}

func unescaped(seg string) string {
	if v, err := url.PathUnescape(seg); err == nil {
		return v
	}
	return seg
}

// hashedPath rewrites the request path so its first segment is name-short,
// keeping the remaining segments and the query string.
func hashedPath(r *http.Request, name, short, suffix string) string {
	var rest string
	p := strings.TrimPrefix(r.URL.EscapedPath(), "/")
	if i := strings.Index(p, "/"); i >= 0 {
		rest = p[i:]
	}
	u := "/" + url.PathEscape(name) + "-" + short + suffix + rest
	if r.URL.RawQuery != "" {
		u += "?" + r.URL.RawQuery
	}
	return u
}
