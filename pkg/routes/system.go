// Package routes collects route groups and builds them into an http.Handler.
package routes

import (
	"log/slog"
	"net/http"
)

// System registers routes and groups and builds the multiplexer.
type System interface {
	RegisterGroup(group Group)
	RegisterRoute(route Route)
	Build() http.Handler
	Groups() []Group
	Routes() []Route
}

type system struct {
	routes []Route
	groups []Group
	logger *slog.Logger
}

// New creates an empty route system.
func New(logger *slog.Logger) System {
	return &system{
		logger: logger.With("system", "routes"),
		routes: []Route{},
		groups: []Group{},
	}
}

func (s *system) Groups() []Group { return s.groups }

func (s *system) Routes() []Route { return s.routes }

func (s *system) RegisterRoute(route Route) {
	s.routes = append(s.routes, route)
}

func (s *system) RegisterGroup(group Group) {
	s.groups = append(s.groups, group)
}

// Build registers every route on a new ServeMux. Group routes are mounted
// beneath their accumulated prefixes.
func (s *system) Build() http.Handler {
	mux := http.NewServeMux()

	for _, route := range s.routes {
		mux.HandleFunc(route.Method+" "+route.Pattern, route.Handler)
	}
	for _, group := range s.groups {
		s.mount(mux, "", group)
	}

	s.logger.Debug("routes built", "routes", len(s.routes), "groups", len(s.groups))
	return mux
}

func (s *system) mount(mux *http.ServeMux, parent string, group Group) {
	prefix := parent + group.Prefix
	for _, route := range group.Routes {
		mux.HandleFunc(route.Method+" "+prefix+route.Pattern, route.Handler)
	}
	for _, child := range group.Children {
		s.mount(mux, prefix, child)
	}
}
