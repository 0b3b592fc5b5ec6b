package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/watzon/localgw/internal/requestctx"
)

// MethodAny registers a route for every method.
const MethodAny = "ANY"

type Middleware func(http.Handler) http.Handler

type route struct {
	method  string
	pattern *pattern
	handler http.Handler
}

// Router dispatches to the first route, in registration order, whose method
// and path match the request. GET routes also answer HEAD.
type Router struct {
	routes      []route
	middlewares []Middleware
}

func NewRouter() *Router {
	return &Router{}
}

func (rt *Router) Use(mw Middleware) {
	rt.middlewares = append(rt.middlewares, mw)
}

// Handle appends a route. path uses :name and *name parameter syntax.
func (rt *Router) Handle(method, path string, h http.Handler) error {
	p, err := compilePattern(path)
	if err != nil {
		return err
	}
	rt.routes = append(rt.routes, route{
		method:  strings.ToUpper(method),
		pattern: p,
		handler: h,
	})
	return nil
}

func (rt *Router) HandleFunc(method, path string, fn http.HandlerFunc) error {
	return rt.Handle(method, path, fn)
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(http.HandlerFunc(rt.dispatch))

	for i := len(rt.middlewares) - 1; i >= 0; i-- {
		handler = rt.middlewares[i](handler)
	}

	handler.ServeHTTP(w, r)
}

func (rt *Router) dispatch(w http.ResponseWriter, r *http.Request) {
	escaped := r.URL.EscapedPath()

	for _, rte := range rt.routes {
		if !methodMatches(rte.method, r.Method) {
			continue
		}
		params, ok := rte.pattern.match(escaped)
		if !ok {
			continue
		}

		ctx := context.WithValue(r.Context(), paramsKey{}, params)
		requestctx.SetRoute(ctx, rte.method+" "+rte.pattern.raw)
		rte.handler.ServeHTTP(w, r.WithContext(ctx))
		return
	}

	notFound(w, r)
}

func methodMatches(routeMethod, requestMethod string) bool {
	switch routeMethod {
	case MethodAny, requestMethod:
		return true
	case http.MethodGet:
		return requestMethod == http.MethodHead
	}
	return false
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusNotFound)
	_, _ = fmt.Fprintf(w, "Cannot %s %s", r.Method, r.URL.Path)
}

type paramsKey struct{}

// PathParams returns the parameters matched by the route. The map is never
// nil for a routed request.
func PathParams(r *http.Request) map[string]string {
	if params, ok := r.Context().Value(paramsKey{}).(map[string]string); ok {
		return params
	}
	return map[string]string{}
}

func PathParam(r *http.Request, name string) string {
	return PathParams(r)[name]
}
