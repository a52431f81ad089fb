package ratelimit

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// RouteFunc devolve a rota usada para achar a política.
type RouteFunc func(r *http.Request) string

// PathRouteFunc usa o path cru; políticas "/prefix/*" e "*" cobrem o resto.
func PathRouteFunc(r *http.Request) string {
	return r.URL.Path
}

// ChiRouteFunc resolve o padrão chi ("/users/{id}") antes do roteamento,
// o que permite usar o middleware em r.Use. Sem match, cai no path cru.
func ChiRouteFunc(routes chi.Routes) RouteFunc {
	return func(r *http.Request) string {
		if routes == nil {
			return r.URL.Path
		}
		rctx := chi.NewRouteContext()
		if routes.Match(rctx, r.Method, r.URL.Path) {
			if pattern := rctx.RoutePattern(); pattern != "" {
				return pattern
			}
		}
		return r.URL.Path
	}
}

// SkipPrefixes marca como isentas as requests cujo path começa por um dos
// prefixos (ex.: "/static/"). Sem prefixos devolve nil.
func SkipPrefixes(prefixes ...string) func(r *http.Request) bool {
	clean := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		for _, p := range clean {
			if strings.HasPrefix(r.URL.Path, p) {
				return true
			}
		}
		return false
	}
}
