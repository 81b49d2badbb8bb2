package router

import (
	"net/http"
)

// Router defines the interface for route registration
type Router interface {
	RegisterRoutes(mux *http.ServeMux, server interface{})
	GetPathPrefix() string
}

// RouteGroup helps organize related routes
type RouteGroup struct {
	prefix string
	mux    *http.ServeMux
}

// NewRouteGroup creates a new route group with a common prefix
func NewRouteGroup(prefix string, mux *http.ServeMux) *RouteGroup {
	return &RouteGroup{
		prefix: prefix,
		mux:    mux,
	}
}

// HandleFunc registers a handler for method and the group-relative path
func (g *RouteGroup) HandleFunc(method, pattern string, handler http.HandlerFunc) {
	g.mux.HandleFunc(method+" "+g.prefix+pattern, handler)
}

// Handle registers a handler for method and the group-relative path
func (g *RouteGroup) Handle(method, pattern string, handler http.Handler) {
	g.mux.Handle(method+" "+g.prefix+pattern, handler)
}
