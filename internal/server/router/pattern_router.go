package router

import (
	"context"
	"net/http"
	"regexp"
	"strings"
)

// PatternRouter routes on path patterns with placeholders, such as
// "/api/streams/{id}/ws".
type PatternRouter struct {
	routes []routeEntry
}

type routeEntry struct {
	pattern *regexp.Regexp
	handler http.HandlerFunc
	keys    []string
}

type pathParamKey string

var placeholderRegex = regexp.MustCompile(`\{([^}:]+)(?::([^}]+))?\}`)

// NewPatternRouter creates a new pattern router
func NewPatternRouter() *PatternRouter {
	return &PatternRouter{}
}

// HandleFunc registers a handler. A placeholder is either {key}, matching one
// path segment, or {key:regex}.
func (pr *PatternRouter) HandleFunc(pattern string, handler http.HandlerFunc) {
	re, keys := compilePattern(pattern)
	pr.routes = append(pr.routes, routeEntry{pattern: re, handler: handler, keys: keys})
}

// ServeHTTP dispatches to the first matching route.
func (pr *PatternRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, route := range pr.routes {
		matches := route.pattern.FindStringSubmatch(r.URL.Path)
		if matches == nil {
			continue
		}
		if len(route.keys) > 0 {
			ctx := r.Context()
			for i, key := range route.keys {
				ctx = context.WithValue(ctx, pathParamKey(key), matches[i+1])
			}
			r = r.WithContext(ctx)
		}
		route.handler(w, r)
		return
	}
	http.NotFound(w, r)
}

func compilePattern(pattern string) (*regexp.Regexp, []string) {
	var (
		keys []string
		expr strings.Builder
		last int
	)
	expr.WriteString("^")
	for _, m := range placeholderRegex.FindAllStringSubmatchIndex(pattern, -1) {
		expr.WriteString(regexp.QuoteMeta(pattern[last:m[0]]))
		keys = append(keys, pattern[m[2]:m[3]])
		if m[4] >= 0 {
			expr.WriteString("(" + pattern[m[4]:m[5]] + ")")
		} else {
			expr.WriteString(`([^/]+)`)
		}
		last = m[1]
	}
	expr.WriteString(regexp.QuoteMeta(pattern[last:]))
	expr.WriteString("$")
	return regexp.MustCompile(expr.String()), keys
}

// PathParam returns a placeholder value captured for r, or "".
func PathParam(r *http.Request, key string) string {
	if val, ok := r.Context().Value(pathParamKey(key)).(string); ok {
		return val
	}
	return ""
}
